// Package pipeline wires the three stages of a run. Stages hand data to each
// other only through storage, so each can also be run on its own.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"moverscan/config"
	"moverscan/internal/filter"
	"moverscan/internal/metrics"
	ratemetrics "moverscan/internal/metrics/rate"
	"moverscan/internal/scheduler"
	"moverscan/internal/storage"
	"moverscan/logger"
	"moverscan/models"
	"moverscan/processor"
	"moverscan/reader/binance"
	"moverscan/writer"
)

type Stage string

const (
	StageAll      Stage = "all"
	StageMetadata Stage = "metadata"
	StageKlines   Stage = "klines"
	StageAnalyze  Stage = "analyze"
)

// ParseStage validates a stage name. The empty string selects StageAll.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StageAll:
		return StageAll, nil
	case StageMetadata, StageKlines, StageAnalyze:
		return st, nil
	default:
		return "", fmt.Errorf("unknown stage %q (want all, metadata, klines or analyze)", s)
	}
}

type Pipeline struct {
	cfg       *config.Config
	store     *storage.Store
	client    *futures.Client
	reader    *binance.KlinesReader
	snapshots *writer.SnapshotWriter
	archive   *writer.CandleArchive
	runID     string
	log       *logger.Log
}

func New(cfg *config.Config, store *storage.Store, client *futures.Client) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		client:    client,
		reader:    binance.NewKlinesReader(client, cfg, binance.NewBanGate()),
		snapshots: writer.NewSnapshotWriter(store),
		runID:     uuid.New().String(),
		log:       logger.GetLogger(),
	}
	if cfg.Archive.Enabled {
		p.archive = writer.NewCandleArchive(store, cfg.Archive.Compression)
	}
	return p
}

func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes stage, or every stage in order for StageAll. The snapshot is
// returned when the analyze stage ran.
func (p *Pipeline) Run(ctx context.Context, stage Stage) (models.Snapshot, error) {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": p.runID, "stage": stage})
	start := time.Now()

	counter := metrics.NewCounter()
	id := metrics.RegisterMetricHandler(counter.Handle)
	defer metrics.UnregisterMetricHandler(id)

	log.Info("run started")

	var snap models.Snapshot
	var err error
	switch stage {
	case StageMetadata:
		err = p.FetchMetadata(ctx)
	case StageKlines:
		err = p.FetchCandles(ctx)
	case StageAnalyze:
		snap, err = p.Analyze(ctx)
	case StageAll:
		if err = p.FetchMetadata(ctx); err != nil {
			break
		}
		if err = p.FetchCandles(ctx); err != nil {
			break
		}
		snap, err = p.Analyze(ctx)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}

	summary := log.WithFields(logger.Fields{
		"duration":            time.Since(start).String(),
		"fetch_failed":        counter.Total("fetch_failed"),
		"rate_limit_exceeded": counter.Total("rate_limit_exceeded"),
		"ip_ban":              counter.Total("ip_ban"),
	})
	if err != nil {
		summary.WithError(err).Error("run failed")
		return snap, err
	}
	summary.Info("run finished")
	return snap, nil
}

// FetchMetadata downloads exchange metadata and stores it as exchange_info.
func (p *Pipeline) FetchMetadata(ctx context.Context) error {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": p.runID, "operation": "FetchMetadata"})

	info, raw, err := binance.FetchExchangeInfo(ctx, p.client, p.cfg.Source.Binance.Retry)
	if err != nil {
		return err
	}
	if err := p.store.Save(ctx, storage.KeyExchangeInfo, json.RawMessage(raw)); err != nil {
		return err
	}

	instruments := info.Instruments()
	matched := filter.Apply(instruments, p.cfg.Filters)
	log.WithFields(logger.Fields{
		"symbols":  len(instruments),
		"matching": len(matched),
		"filters":  p.cfg.Filters,
	}).Info("exchange info stored")
	return nil
}

// FetchCandles loads exchange_info, selects instruments and fetches their
// candles in weight-sized batches. The capture is stored as klines.
func (p *Pipeline) FetchCandles(ctx context.Context) error {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": p.runID, "operation": "FetchCandles"})

	var info models.ExchangeInfo
	if err := p.store.Load(ctx, storage.KeyExchangeInfo, &info); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("exchange info missing, run the metadata stage first: %w", err)
		}
		return err
	}

	instruments := filter.Apply(info.Instruments(), p.cfg.Filters)

	ceiling, advertised := ratemetrics.RequestWeightLimit(info.RateLimits)
	weight := ratemetrics.RequestWeight(p.cfg.Klines.Limit)
	batchSize := ratemetrics.BatchSize(ceiling, weight)
	p.reader.SetWeightCeiling(ceiling)

	log.WithFields(logger.Fields{
		"instruments":       len(instruments),
		"weight_ceiling":    ceiling,
		"ceiling_from_info": advertised,
		"request_weight":    weight,
		"batch_size":        batchSize,
		"interval":          p.cfg.Klines.Interval,
		"limit":             p.cfg.Klines.Limit,
	}).Info("fetch budget computed")

	sched := scheduler.New(p.reader, batchSize, p.cfg.Scheduler.Window, p.cfg.Scheduler.Pause)
	captures, err := sched.Run(ctx, instruments)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}

	if err := p.store.Save(ctx, storage.KeyKlines, captures); err != nil {
		return err
	}
	logger.LogDataFlowEntry(log, "binance", storage.KeyKlines, len(captures), "klines")

	if p.archive != nil {
		if _, err := p.archive.Write(ctx, p.runID, p.cfg.Klines.Interval, time.Now(), captures); err != nil {
			log.WithError(err).Warn("failed to write candle archive")
		}
	}
	return nil
}

// Analyze reduces the stored capture and publishes the ranking.
func (p *Pipeline) Analyze(ctx context.Context) (models.Snapshot, error) {
	var captures []models.FetchResult
	if err := p.store.Load(ctx, storage.KeyKlines, &captures); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Snapshot{}, fmt.Errorf("klines missing, run the klines stage first: %w", err)
		}
		return models.Snapshot{}, err
	}

	snap := processor.Reduce(captures, p.cfg.Analysis.RSIPeriod)
	snap.RunID = p.runID

	if _, err := p.snapshots.Publish(ctx, snap); err != nil {
		return snap, err
	}
	return snap, nil
}
