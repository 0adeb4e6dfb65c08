package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"moverscan/config"
	"moverscan/internal/metrics"
	binancemetrics "moverscan/internal/metrics/binance"
	ratemetrics "moverscan/internal/metrics/rate"
	"moverscan/logger"
	"moverscan/models"
)

const (
	klinesPath      = "/fapi/v1/klines"
	klinesComponent = "klines_reader"

	// lowHeadroom triggers a warning when the used-weight header shows less
	// than this share of the minute budget left.
	lowHeadroom = 0.10
)

// KlinesReader fetches one instrument's candle series per call. It is safe
// for concurrent use; the HTTP client and ban gate are shared.
type KlinesReader struct {
	client     *futures.Client
	interval   string
	limit      int
	gate       *BanGate
	limiter    *rate.Limiter
	usedWeight bool
	ceiling    int64
	log        *logger.Log
}

func NewKlinesReader(client *futures.Client, cfg *config.Config, gate *BanGate) *KlinesReader {
	if gate == nil {
		gate = NewBanGate()
	}
	r := &KlinesReader{
		client:     client,
		interval:   cfg.Klines.Interval,
		limit:      cfg.Klines.Limit,
		gate:       gate,
		usedWeight: cfg.Metrics.UsedWeight,
		log:        logger.GetLogger(),
	}
	if rl := cfg.Source.Binance.RateLimit; rl.RequestsPerSecond > 0 {
		burst := rl.BurstSize
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
	}
	return r
}

// SetWeightCeiling records the per-minute weight ceiling used for headroom
// warnings.
func (r *KlinesReader) SetWeightCeiling(ceiling int64) {
	r.ceiling = ceiling
}

// Gate exposes the shared ban gate.
func (r *KlinesReader) Gate() *BanGate {
	return r.gate
}

// Fetch downloads the candles of inst. The boolean is false when the
// instrument has to be skipped for this run; failures are logged and counted
// but never returned.
func (r *KlinesReader) Fetch(ctx context.Context, inst models.Instrument) (models.FetchResult, bool) {
	log := r.log.WithComponent(klinesComponent).WithFields(logger.Fields{"symbol": inst.Symbol})

	if err := r.gate.Wait(ctx); err != nil {
		log.WithError(err).Debug("fetch abandoned while waiting for ban to lift")
		return models.FetchResult{}, false
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			log.WithError(err).Debug("fetch abandoned while waiting for limiter")
			return models.FetchResult{}, false
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint(inst.Symbol), nil)
	if err != nil {
		r.fail(log, inst.Symbol, "request", err)
		return models.FetchResult{}, false
	}

	resp, err := r.client.HTTPClient.Do(req)
	if err != nil {
		// proxies in front of the exchange sometimes reset the connection with a throttling message
		if limited, _ := ratemetrics.LooksLikeLimit(err.Error()); limited {
			ratemetrics.ReportRateLimitExceeded(r.log, klinesComponent, inst.Symbol, 0)
		}
		r.fail(log, inst.Symbol, "transport", err)
		return models.FetchResult{}, false
	}
	defer resp.Body.Close()

	if r.usedWeight {
		if used, ok := binancemetrics.ReportUsedWeight(r.log, resp, klinesComponent, inst.Symbol); ok && r.ceiling > 0 {
			if binancemetrics.Headroom(used, r.ceiling) < lowHeadroom {
				log.WithFields(logger.Fields{"used_weight": used, "ceiling": r.ceiling}).Warn("request weight close to ceiling")
			}
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.fail(log, inst.Symbol, "read", err)
		return models.FetchResult{}, false
	}

	if ratemetrics.IsRateLimitStatus(resp.StatusCode) {
		r.handleRateLimited(ctx, log, inst.Symbol, resp.StatusCode, body)
		return models.FetchResult{}, false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.fail(log, inst.Symbol, "status", newStatusError(resp.StatusCode, body))
		return models.FetchResult{}, false
	}

	var tuples [][]json.RawMessage
	if err := json.Unmarshal(body, &tuples); err != nil {
		r.fail(log, inst.Symbol, "decode", fmt.Errorf("decode klines: %w", err))
		return models.FetchResult{}, false
	}

	candles := make([]models.Candle, 0, len(tuples))
	for _, tuple := range tuples {
		candles = append(candles, models.CandleFromTuple(tuple))
	}

	log.WithFields(logger.Fields{"candles": len(candles)}).Debug("klines fetched")
	return models.FetchResult{
		Symbol:   inst.Symbol,
		SubTypes: inst.SubTypes,
		Klines:   candles,
	}, true
}

// handleRateLimited deals with a 418/429. When the body announces an IP ban
// with a future resume instant the calling fetch sleeps until that instant
// plus banGrace, and the gate holds every other fetch back until then too.
func (r *KlinesReader) handleRateLimited(ctx context.Context, log *logger.Entry, symbol string, status int, body []byte) {
	ratemetrics.ReportRateLimitExceeded(r.log, klinesComponent, symbol, status)

	until, ok := ParseBanUntil(body)
	if !ok {
		return
	}
	now := timeNow()
	wait := BanWait(until, now)
	if wait == 0 {
		log.WithFields(logger.Fields{"until": until.UnixMilli()}).Debug("ban already expired")
		return
	}

	ratemetrics.ReportIPBan(r.log, klinesComponent, symbol, until.UnixMilli())
	r.gate.Extend(now.Add(wait))

	log.WithFields(logger.Fields{"wait": wait.String()}).Warn("suspending fetch until ban lifts")
	if err := sleepFunc(ctx, wait); err != nil {
		log.WithError(err).Debug("ban wait interrupted")
	}
}

func (r *KlinesReader) fail(log *logger.Entry, symbol, stage string, err error) {
	metrics.EmitMetric(r.log, klinesComponent, "fetch_failed", int64(1), "counter", logger.Fields{
		"symbol": symbol,
		"stage":  stage,
	})
	log.WithError(err).WithFields(logger.Fields{"stage": stage}).Warn("klines fetch failed; skipping instrument")
}

func (r *KlinesReader) endpoint(symbol string) string {
	q := url.Values{}
	q.Set("interval", r.interval)
	q.Set("limit", strconv.Itoa(r.limit))
	q.Set("symbol", symbol)
	return r.client.BaseURL + klinesPath + "?" + q.Encode()
}

// BanWait is how long a fetch observing a ban until the given instant sleeps.
func BanWait(until, now time.Time) time.Duration {
	if !until.After(now) {
		return 0
	}
	return until.Sub(now) + banGrace
}
