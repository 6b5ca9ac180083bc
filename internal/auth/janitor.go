// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/calmpulse/calmpulse/pkg/errutil"
)

// Purger deletes refresh records that expired before now minus grace.
// *RefreshLedger implements it.
type Purger interface {
	Purge(ctx context.Context, grace time.Duration) (int64, error)
}

// PurgeRecorder counts purged refresh records.
type PurgeRecorder interface {
	RecordPurge(n int64)
}

// JanitorConfig defines how often expired refresh records are purged and
// how long they are kept past expiry.
type JanitorConfig struct {
	Interval time.Duration
	Grace    time.Duration
}

// Janitor periodically purges expired refresh records.
type Janitor struct {
	cfg      JanitorConfig
	purger   Purger
	logger   *slog.Logger
	recorder PurgeRecorder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithJanitorLogger sets the janitor's logger.
func WithJanitorLogger(logger *slog.Logger) JanitorOption {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithPurgeRecorder reports purge counts to r.
func WithPurgeRecorder(r PurgeRecorder) JanitorOption {
	return func(j *Janitor) { j.recorder = r }
}

// NewJanitor creates a janitor. The interval must be positive; a
// non-positive grace purges records as soon as they expire.
func NewJanitor(cfg JanitorConfig, purger Purger, opts ...JanitorOption) (*Janitor, error) {
	if purger == nil {
		return nil, oops.Errorf("purger is required")
	}
	if cfg.Interval <= 0 {
		return nil, oops.Code("JANITOR_CONFIG_INVALID").With("interval", cfg.Interval).
			Errorf("purge interval must be positive")
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	j := &Janitor{cfg: cfg, purger: purger, logger: slog.Default()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// RunOnce executes a single purge and returns the number of deleted records.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.purger.Purge(ctx, j.cfg.Grace)
	if err != nil {
		return 0, oops.Code("JANITOR_PURGE_FAILED").With("grace", j.cfg.Grace).Wrap(err)
	}
	if j.recorder != nil {
		j.recorder.RecordPurge(n)
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "purged expired refresh records", "count", n)
	}
	return n, nil
}

// Start begins periodic purging. The first purge runs immediately.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.run(ctx)
}

// Stop stops the janitor and waits for an in-flight purge to finish.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.cycle(ctx)
		}
	}
}

func (j *Janitor) cycle(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
		errutil.LogErrorContext(ctx, j.logger, "refresh purge failed", err)
	}
}
