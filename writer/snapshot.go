package writer

import (
	"context"
	"fmt"

	"moverscan/internal/metrics"
	"moverscan/internal/storage"
	"moverscan/logger"
	"moverscan/models"
)

// SnapshotWriter publishes the ranked snapshot for display consumers.
type SnapshotWriter struct {
	store *storage.Store
	log   *logger.Log
}

func NewSnapshotWriter(store *storage.Store) *SnapshotWriter {
	return &SnapshotWriter{store: store, log: logger.GetLogger()}
}

// Publish replaces the stored snapshot. An empty ranking leaves the previous
// snapshot in place and reports false.
func (w *SnapshotWriter) Publish(ctx context.Context, snap models.Snapshot) (bool, error) {
	log := w.log.WithComponent("snapshot_writer").WithFields(logger.Fields{"run_id": snap.RunID})

	if len(snap.Results) == 0 {
		log.Warn("no instrument produced a movement; keeping previous snapshot")
		return false, nil
	}

	if err := w.store.Save(ctx, storage.KeyResults, snap); err != nil {
		return false, fmt.Errorf("publish snapshot: %w", err)
	}

	metrics.EmitMetric(w.log, "snapshot_writer", "instruments_ranked", len(snap.Results), "gauge", logger.Fields{"unit": "count"})
	log.WithFields(logger.Fields{
		"instruments":            len(snap.Results),
		"last_updated_timestamp": snap.LastUpdatedTimestamp,
	}).Info("snapshot published")
	return true, nil
}

// Latest loads the currently published snapshot.
func (w *SnapshotWriter) Latest(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := w.store.Load(ctx, storage.KeyResults, &snap); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}
