package rate

import (
	"strings"

	"moverscan/internal/metrics"
	"moverscan/logger"
)

// ReportRateLimitExceeded records a 418/429 response for symbol. status is
// zero when the limit was only recognised from a transport error.
func ReportRateLimitExceeded(log *logger.Log, component, symbol string, status int) {
	fields := logger.Fields{
		"exchange": "binance",
		"symbol":   symbol,
		"status":   status,
	}
	metrics.EmitMetric(log, component, "rate_limit_exceeded", int64(1), "counter", fields)
	log.WithComponent(component).WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan records an IP ban and the instant requests may resume.
func ReportIPBan(log *logger.Log, component, symbol string, resumeAtMs int64) {
	fields := logger.Fields{
		"exchange":  "binance",
		"symbol":    symbol,
		"resume_at": resumeAtMs,
	}
	metrics.EmitMetric(log, component, "ip_ban", int64(1), "counter", fields)
	log.WithComponent(component).WithFields(fields).Error("ip banned")
}

// IsRateLimitStatus reports whether status is one Binance uses for request
// throttling (429) or an active IP ban (418).
func IsRateLimitStatus(status int) bool {
	return status == 418 || status == 429
}

// LooksLikeLimit inspects an error message for throttling wording, for
// transports that surface limits only as text.
func LooksLikeLimit(msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
	ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	return
}
