package binance

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
)

const (
	// banCode is the error code Binance returns while an IP is banned.
	banCode   = -1003
	banMarker = "-1003"

	// banGrace is added to the advertised resume instant.
	banGrace = 5 * time.Second
)

var banUntilRegexp = regexp.MustCompile(`until\s+(\d+)`)

var (
	timeNow   = time.Now
	sleepFunc = sleepContext
)

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseBanUntil extracts the resume instant from a 418/429 body carrying the
// IP ban code, e.g. {"code":-1003,"msg":"... IP banned until 1700000100000. ..."}.
func ParseBanUntil(body []byte) (time.Time, bool) {
	text := string(body)

	var apiErr common.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code == banCode {
		text = apiErr.Message
	} else if !strings.Contains(text, banMarker) {
		return time.Time{}, false
	}

	m := banUntilRegexp.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// BanGate holds the earliest instant at which requests may be sent again.
// Every fetch waits on it, so a ban observed by one request holds back the
// rest of the batch as well.
type BanGate struct {
	mu       sync.Mutex
	resumeAt time.Time
}

func NewBanGate() *BanGate {
	return &BanGate{}
}

// Extend moves the resume instant forward. Earlier instants are ignored.
func (g *BanGate) Extend(t time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !t.After(g.resumeAt) {
		return false
	}
	g.resumeAt = t
	return true
}

func (g *BanGate) ResumeAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resumeAt
}

// Wait blocks until the resume instant has passed or ctx is done.
func (g *BanGate) Wait(ctx context.Context) error {
	for {
		d := g.ResumeAt().Sub(timeNow())
		if d <= 0 {
			return ctx.Err()
		}
		if err := sleepFunc(ctx, d); err != nil {
			return err
		}
	}
}
