package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/cenkalti/backoff/v4"

	"moverscan/config"
	ratemetrics "moverscan/internal/metrics/rate"
	"moverscan/logger"
	"moverscan/models"
)

const exchangeInfoPath = "/fapi/v1/exchangeInfo"

// FetchExchangeInfo downloads the futures exchange metadata. Transport errors,
// 5xx and throttling responses are retried with exponential backoff; other
// client errors fail immediately. The raw document is returned alongside the
// decoded view so it can be persisted without losing fields.
func FetchExchangeInfo(ctx context.Context, client *futures.Client, retry config.RetryConfig) (*models.ExchangeInfo, []byte, error) {
	log := logger.GetLogger().WithComponent("binance_reader").WithFields(logger.Fields{"operation": "FetchExchangeInfo"})
	start := time.Now()

	var raw []byte
	operation := func() error {
		body, err := getExchangeInfo(ctx, client)
		if err != nil {
			return err
		}
		raw = body
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	if retry.BaseDelay > 0 {
		strategy.InitialInterval = retry.BaseDelay
	}
	if retry.MaxDelay > 0 {
		strategy.MaxInterval = retry.MaxDelay
	}
	attempts := retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(strategy, uint64(attempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithFields(logger.Fields{"retry_in": wait.String()}).Warn("exchange info request failed, retrying")
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, nil, fmt.Errorf("fetch exchange info: %w", err)
	}

	var info models.ExchangeInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, nil, fmt.Errorf("decode exchange info: %w", err)
	}

	logger.LogPerformanceEntry(log, "binance_reader", "fetch_exchange_info", time.Since(start), logger.Fields{
		"symbols":     len(info.Symbols),
		"rate_limits": len(info.RateLimits),
	})
	return &info, raw, nil
}

func getExchangeInfo(ctx context.Context, client *futures.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.BaseURL+exchangeInfoPath, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := newStatusError(resp.StatusCode, body)
		if ratemetrics.IsRateLimitStatus(resp.StatusCode) {
			ratemetrics.ReportRateLimitExceeded(logger.GetLogger(), "binance_reader", "", resp.StatusCode)
			if until, ok := ParseBanUntil(body); ok {
				ratemetrics.ReportIPBan(logger.GetLogger(), "binance_reader", "", until.UnixMilli())
				// retrying inside a ban only extends it
				return nil, backoff.Permanent(statusErr)
			}
		}
		if !statusErr.Temporary() {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("exchange info response is not valid json")
	}
	return body, nil
}
