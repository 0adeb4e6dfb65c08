package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// wrapperPackages log on behalf of their caller. Frames from them are skipped
// so a metric or rate-limit line points at the reader or scheduler that
// reported it.
var wrapperPackages = []string{
	"github.com/sirupsen/logrus.",
	"moverscan/logger.",
	"moverscan/internal/metrics.",
	"moverscan/internal/metrics/rate.",
	"moverscan/internal/metrics/binance.",
}

type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire sets the entry's Caller to the first frame outside the wrappers.
func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isWrapperFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isWrapperFrame(fn string) bool {
	if fn == "" {
		return true
	}
	for _, pkg := range wrapperPackages {
		if strings.HasPrefix(fn, pkg) {
			return true
		}
	}
	return false
}
