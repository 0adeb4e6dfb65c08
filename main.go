package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moverscan/config"
	"moverscan/internal/metrics"
	"moverscan/internal/pipeline"
	"moverscan/internal/storage"
	"moverscan/logger"
	"moverscan/reader/binance"
)

// topMovers is how many leading results are echoed to the log after a run.
const topMovers = 10

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	stageName := flag.String("stage", string(pipeline.StageAll), "Stage to run: all, metadata, klines or analyze")

	flag.Parse()

	stage, err := pipeline.ParseStage(*stageName)
	if err != nil {
		log.WithError(err).Error("Invalid stage")
		return 2
	}

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		return 1
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
		"stage":       stage,
	}).Info("starting moverscan")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
		defer func() {
			// the run context may already be cancelled
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			metrics.FlushCloudWatch(flushCtx)
		}()
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Error("Failed to open storage")
		return 1
	}
	defer store.Close()

	p := pipeline.New(cfg, store, binance.NewClient(cfg.Source.Binance))
	snap, err := p.Run(ctx, stage)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("run interrupted by shutdown signal")
		}
		return 1
	}

	if stage == pipeline.StageAll || stage == pipeline.StageAnalyze {
		for i, r := range snap.Results {
			if i == topMovers {
				break
			}
			fields := logger.Fields{
				"rank":         i + 1,
				"symbol":       r.Symbol,
				"movement_pct": r.MovementPct,
				"sub_type":     r.SubTypes,
			}
			if r.RSI != nil {
				fields["rsi"] = *r.RSI
			}
			log.WithComponent("main").WithFields(fields).Info("top mover")
		}
	}

	log.WithFields(logger.Fields{"run_id": p.RunID()}).Info("moverscan stopped")
	return 0
}
