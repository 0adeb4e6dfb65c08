package binance

import (
	"encoding/json"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
)

// StatusError is a non-2xx response from the exchange.
type StatusError struct {
	StatusCode int
	Body       string
	APIErr     *common.APIError
}

func newStatusError(status int, body []byte) *StatusError {
	e := &StatusError{StatusCode: status, Body: string(body)}
	var apiErr common.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Code != 0 || apiErr.Message != "") {
		e.APIErr = &apiErr
	}
	return e
}

func (e *StatusError) Error() string {
	if e.APIErr != nil {
		return fmt.Sprintf("binance returned status %d: %s", e.StatusCode, e.APIErr.Error())
	}
	return fmt.Sprintf("binance returned status %d", e.StatusCode)
}

// Temporary reports whether repeating the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 418 || e.StatusCode == 429
}
