package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"ordersync/internal/types"
)

// compactionStore is the repository surface the compactor needs.
type compactionStore interface {
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.RelayEntry, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// compactBatchSize bounds one archive-then-delete pass so a large backlog is
// worked off in chunks instead of one giant transaction.
const compactBatchSize = 1000

// Compactor bounds relay queue growth. Terminal (sent/failed) entries older
// than the retention window are written to a zstd-compressed JSONL archive
// and then deleted. Entries are only deleted after the archive file is
// flushed and synced, so a crash mid-pass loses nothing.
type Compactor struct {
	store      compactionStore
	retention  time.Duration
	interval   time.Duration
	archiveDir string
	clock      types.Clock
	logger     *slog.Logger
}

// CompactorConfig configures a Compactor.
type CompactorConfig struct {
	Store     compactionStore
	Retention time.Duration
	Interval  time.Duration

	// ArchiveDir receives the compressed archives. Empty disables archiving
	// and entries are deleted without a copy.
	ArchiveDir string

	Clock  types.Clock
	Logger *slog.Logger
}

// NewCompactor creates a Compactor.
func NewCompactor(cfg CompactorConfig) *Compactor {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	return &Compactor{
		store:      cfg.Store,
		retention:  cfg.Retention,
		interval:   cfg.Interval,
		archiveDir: cfg.ArchiveDir,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// Run compacts on a fixed interval until the context is cancelled.
func (c *Compactor) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "relay compactor started",
		"retention", c.retention.String(),
		"interval", c.interval.String(),
		"archive_dir", c.archiveDir)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "relay compactor stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.CompactOnce(ctx); err != nil {
				c.logger.ErrorContext(ctx, "relay compaction failed", "error", err)
			}
		}
	}
}

// CompactOnce runs archive-then-delete passes until no eligible entries
// remain. Returns the total number of entries removed.
func (c *Compactor) CompactOnce(ctx context.Context) (int, error) {
	cutoff := c.clock.Now().Add(-c.retention)
	total := 0

	for {
		entries, err := c.store.ListTerminalBefore(ctx, cutoff, compactBatchSize)
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			return total, nil
		}

		if c.archiveDir != "" {
			if err := c.archive(entries); err != nil {
				return total, err
			}
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		deleted, err := c.store.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, err
		}
		total += deleted

		c.logger.InfoContext(ctx, "compacted relay entries",
			"deleted", deleted,
			"cutoff", cutoff.UTC().Format(time.RFC3339))

		if len(entries) < compactBatchSize {
			return total, nil
		}
	}
}

// archive writes the entries as zstd-compressed JSONL, one file per pass.
func (c *Compactor) archive(entries []types.RelayEntry) error {
	if err := os.MkdirAll(c.archiveDir, 0o755); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create archive directory", err)
	}

	name := fmt.Sprintf("relay-%s.jsonl.zst", c.clock.Now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(c.archiveDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create archive file", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create zstd writer", err)
	}

	enc := json.NewEncoder(zw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			zw.Close()
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode archive entry", err)
		}
	}

	if err := zw.Close(); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to finish archive", err)
	}
	if err := f.Sync(); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to sync archive file", err)
	}
	return nil
}
