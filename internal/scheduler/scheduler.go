// Package scheduler walks the filtered instrument list in weight-sized
// batches. Instruments inside a batch are fetched concurrently; batches run
// one after another with pacing so a batch never shares a rate-limit minute
// with the one before it.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"moverscan/internal/metrics"
	"moverscan/logger"
	"moverscan/models"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultPause  = 62 * time.Second
)

// Fetcher retrieves one instrument's candles. A false result means the
// instrument is skipped for this run.
type Fetcher interface {
	Fetch(ctx context.Context, inst models.Instrument) (models.FetchResult, bool)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, inst models.Instrument) (models.FetchResult, bool)

func (f FetcherFunc) Fetch(ctx context.Context, inst models.Instrument) (models.FetchResult, bool) {
	return f(ctx, inst)
}

type State int32

const (
	StateIdle State = iota
	StateDispatching
	StateWaiting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateWaiting:
		return "waiting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

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

// Chunk splits list into consecutive slices of at most size elements.
func Chunk[T any](list []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	chunks := make([][]T, 0, (len(list)+size-1)/size)
	for start := 0; start < len(list); start += size {
		end := start + size
		if end > len(list) {
			end = len(list)
		}
		chunks = append(chunks, list[start:end:end])
	}
	return chunks
}

type Scheduler struct {
	fetcher   Fetcher
	batchSize int
	window    time.Duration
	pause     time.Duration
	state     atomic.Int32
	log       *logger.Log
}

// New returns a scheduler dispatching batchSize fetches at a time. A zero
// window or pause selects the defaults.
func New(fetcher Fetcher, batchSize int, window, pause time.Duration) *Scheduler {
	if batchSize < 1 {
		batchSize = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if pause <= 0 {
		pause = DefaultPause
	}
	return &Scheduler{
		fetcher:   fetcher,
		batchSize: batchSize,
		window:    window,
		pause:     pause,
		log:       logger.GetLogger(),
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Run fetches every instrument and returns the successful captures in input
// order. Only context cancellation is reported as an error; the captures
// gathered so far are returned with it.
func (s *Scheduler) Run(ctx context.Context, instruments []models.Instrument) ([]models.FetchResult, error) {
	log := s.log.WithComponent("scheduler")
	defer s.setState(StateDone)

	batches := Chunk(instruments, s.batchSize)
	log.WithFields(logger.Fields{
		"instruments": len(instruments),
		"batch_size":  s.batchSize,
		"batches":     len(batches),
	}).Info("starting batched fetch")

	results := make([]models.FetchResult, 0, len(instruments))
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		s.setState(StateDispatching)
		started := timeNow()
		captured := s.dispatch(ctx, batch)
		results = append(results, captured...)
		elapsed := timeNow().Sub(started)

		batchLog := log.WithFields(logger.Fields{
			"batch":      i + 1,
			"of":         len(batches),
			"requested":  len(batch),
			"captured":   len(captured),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		metrics.EmitMetric(s.log, "scheduler", "batch_duration_ms", elapsed.Milliseconds(), "gauge", logger.Fields{"unit": "milliseconds"})

		if i == len(batches)-1 {
			batchLog.Info("batch complete")
			break
		}
		if elapsed >= s.window {
			batchLog.Info("batch complete; window already elapsed, continuing")
			continue
		}

		wait := s.pause - elapsed
		s.setState(StateWaiting)
		batchLog.WithFields(logger.Fields{"wait": wait.String()}).Info("batch complete; pacing before next batch")
		if err := sleepFunc(ctx, wait); err != nil {
			return results, err
		}
	}

	return results, nil
}

// dispatch runs one fetch per instrument and waits for all of them. Each
// goroutine writes only its own slot, so no locking is needed.
func (s *Scheduler) dispatch(ctx context.Context, batch []models.Instrument) []models.FetchResult {
	type slot struct {
		result models.FetchResult
		ok     bool
	}
	slots := make([]slot, len(batch))

	var wg sync.WaitGroup
	for i, inst := range batch {
		wg.Add(1)
		go func(i int, inst models.Instrument) {
			defer wg.Done()
			slots[i].result, slots[i].ok = s.fetcher.Fetch(ctx, inst)
		}(i, inst)
	}
	wg.Wait()

	out := make([]models.FetchResult, 0, len(batch))
	for _, sl := range slots {
		if sl.ok {
			out = append(out, sl.result)
		}
	}
	return out
}
