// Package upsert submits records to a store in sequential sub-batches,
// retrying each failed batch with linear backoff.
package upsert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/resilience"
	"github.com/sells-group/directory-cli/internal/store"
)

// Defaults match the directory's REST limits.
const (
	DefaultBatchSize   = 100
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 3 * time.Second
	DefaultPause       = time.Second
)

// Config controls batching and retries.
type Config struct {
	BatchSize   int           `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	// Pause is slept between sub-batches.
	Pause time.Duration `yaml:"pause" mapstructure:"pause"`
}

// Result counts what a Write call submitted.
type Result struct {
	Written       int `json:"written"`
	Failed        int `json:"failed"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Written += o.Written
	r.Failed += o.Failed
	r.Batches += o.Batches
	r.FailedBatches += o.FailedBatches
}

// Writer is the batch upsert client.
type Writer struct {
	store store.Store
	cfg   Config
	clock resilience.Clock
}

// NewWriter creates a Writer over st. Zero config fields take defaults and
// a nil clock uses the real one.
func NewWriter(st store.Store, cfg Config, clock resilience.Clock) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if clock == nil {
		clock = resilience.RealClock{}
	}
	return &Writer{store: st, cfg: cfg, clock: clock}
}

// Write upserts records resolving conflicts on key. An exhausted batch is counted as
// failed and skipped. Only cancellation stops the run early; the partial
// result is returned with ctx.Err().
func (w *Writer) Write(ctx context.Context, records []company.Record, key store.ConflictKey) (Result, error) {
	var res Result
	total := (len(records) + w.cfg.BatchSize - 1) / w.cfg.BatchSize

	for start := 0; start < len(records); start += w.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		end := min(start+w.cfg.BatchSize, len(records))
		batch := records[start:end]
		n := start/w.cfg.BatchSize + 1
		res.Batches++

		err := resilience.Retry(ctx, resilience.Policy{
			Label:     "store upsert",
			Attempts:  w.cfg.MaxAttempts,
			Delay:     resilience.Linear(w.cfg.BaseDelay),
			Retryable: resilience.Always,
			Clock:     w.clock,
		}, func(ctx context.Context) error {
			return w.store.Upsert(ctx, batch, key)
		})
		if err != nil {
			if ctx.Err() != nil {
				res.Failed += len(batch)
				res.FailedBatches++
				return res, ctx.Err()
			}
			zap.L().Error("upsert: batch failed",
				zap.Int("batch", n),
				zap.Int("batches", total),
				zap.Int("records", len(batch)),
				zap.Error(err),
			)
			res.Failed += len(batch)
			res.FailedBatches++
		} else {
			res.Written += len(batch)
			zap.L().Info("upsert: batch written",
				zap.Int("batch", n),
				zap.Int("batches", total),
				zap.Int("records", len(batch)),
				zap.String("conflict_key", string(key)),
			)
		}

		if end < len(records) && w.cfg.Pause > 0 {
			if err := w.clock.Sleep(ctx, w.cfg.Pause); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
