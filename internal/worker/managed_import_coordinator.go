package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/syncbridge/internal/state"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// SyncEnumerator lists the loaded synchronization definitions.
// Implemented by definition.Registry.
type SyncEnumerator interface {
	List() []*types.Sync
}

// ListImporter runs a list import. Implemented by syncer.Importer.
type ListImporter interface {
	ImportRemoteList(ctx context.Context, syncID string, filters types.Filters, opts types.ImportListOptions) (*types.ImportListReport, error)
}

// ManagedImportCoordinator periodically runs the list import of every
// synchronization whose import_list state is managed. The managed plugin
// computes each run's window, so every tick resumes where the last
// successful run ended.
type ManagedImportCoordinator struct {
	syncs    SyncEnumerator
	importer ListImporter
	interval time.Duration
	only     []string
}

// NewManagedImportCoordinator creates the coordinator. A non-empty only
// restricts it to those synchronization IDs.
func NewManagedImportCoordinator(syncs SyncEnumerator, importer ListImporter, interval time.Duration, only []string) *ManagedImportCoordinator {
	return &ManagedImportCoordinator{
		syncs:    syncs,
		importer: importer,
		interval: interval,
		only:     only,
	}
}

// Run starts the coordinator loop. It blocks until ctx is cancelled.
// The first cycle runs after one interval, not on start.
func (c *ManagedImportCoordinator) Run(ctx context.Context) {
	slog.Info("managed import coordinator started",
		"component", "worker",
		"worker", "managed-import-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("managed import coordinator stopped",
				"component", "worker",
				"worker", "managed-import-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.importAll(ctx)
		}
	}
}

// targets returns the synchronization IDs a cycle imports.
func (c *ManagedImportCoordinator) targets() []string {
	if len(c.only) > 0 {
		return c.only
	}
	var ids []string
	for _, s := range c.syncs.List() {
		if s.OperationEnabled(types.OperationImportList) && state.Manages(s, types.OperationImportList) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// importAll imports every target, continuing on individual failures.
func (c *ManagedImportCoordinator) importAll(ctx context.Context) {
	ids := c.targets()

	var succeeded, cancelled, failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		switch c.importSync(ctx, id) {
		case cycleOK:
			succeeded++
		case cycleCancelled:
			cancelled++
		default:
			failed++
		}
	}

	if len(ids) > 0 {
		slog.Info("managed import cycle completed",
			"component", "worker",
			"worker", "managed-import-coordinator",
			"syncs_total", len(ids),
			"syncs_succeeded", succeeded,
			"syncs_cancelled", cancelled,
			"syncs_failed", failed,
		)
	}
}

type cycleResult int

const (
	cycleOK cycleResult = iota
	cycleCancelled
	cycleFailed
)

func (c *ManagedImportCoordinator) importSync(ctx context.Context, syncID string) cycleResult {
	start := time.Now()

	report, err := c.importer.ImportRemoteList(ctx, syncID, types.Filters{}, types.ImportListOptions{
		Context: map[string]any{"trigger": "managed-import-coordinator"},
	})
	if err != nil {
		if ctx.Err() != nil {
			return cycleFailed
		}
		slog.Error("managed import failed",
			"component", "worker",
			"worker", "managed-import-coordinator",
			"sync_id", syncID,
			"error", err,
		)
		return cycleFailed
	}
	if report.Cancelled {
		slog.Info("managed import cancelled",
			"component", "worker",
			"worker", "managed-import-coordinator",
			"sync_id", syncID,
			"reason", report.CancelMessage,
		)
		return cycleCancelled
	}

	slog.Info("managed import completed",
		"component", "worker",
		"worker", "managed-import-coordinator",
		"sync_id", syncID,
		"processed", report.Processed,
		"failed", report.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return cycleOK
}
