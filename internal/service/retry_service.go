package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatvec/internal/aierr"
	"github.com/xxxsen/chatvec/internal/model"
	appErr "github.com/xxxsen/chatvec/internal/pkg/errors"
)

// ErrSweepInFlight is returned when a sweep is requested while another one is
// still running. A due record must never be dispatched by two sweeps at once.
var ErrSweepInFlight = fmt.Errorf("%w: retry sweep already running", appErr.ErrConflict)

// RetryHandler re-attempts the original operation behind a failed request.
type RetryHandler func(ctx context.Context, req *model.FailedAIRequest) error

type SweepStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RetrySweeper drains the failed-request queue on a schedule. One sweep at a
// time, enforced here so the admin trigger cannot overlap a cron tick; within
// a sweep, per-record dispatch runs on a bounded worker pool and all state
// transitions commit as one batch.
type RetrySweeper struct {
	failed    FailedRequestStore
	handlers  map[string]RetryHandler
	batchSize int
	workers   int
	running   atomic.Bool
	now       func() time.Time
}

type RetrySweeperConfig struct {
	BatchSize int
	Workers   int
}

func NewRetrySweeper(failed FailedRequestStore, cfg RetrySweeperConfig) *RetrySweeper {
	batch := cfg.BatchSize
	if batch <= 0 || batch > 50 {
		batch = 50
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &RetrySweeper{
		failed:    failed,
		handlers:  make(map[string]RetryHandler),
		batchSize: batch,
		workers:   workers,
		now:       time.Now,
	}
}

// Register wires the retry dispatch for one feature. Records of a feature with
// no handler are resolved as skipped rather than faked as success.
func (s *RetrySweeper) Register(feature string, handler RetryHandler) {
	s.handlers[feature] = handler
}

type recordOutcome int

const (
	outcomeSkipped recordOutcome = iota
	outcomeSucceeded
	outcomeFailed
)

func (s *RetrySweeper) Sweep(ctx context.Context) (SweepStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepStats{}, ErrSweepInFlight
	}
	defer s.running.Store(false)

	now := s.now()
	batch, err := s.failed.DueBatch(ctx, now.UnixMilli(), s.batchSize)
	if err != nil {
		return SweepStats{}, fmt.Errorf("select due batch: %w", err)
	}
	if len(batch) == 0 {
		return SweepStats{}, nil
	}

	outcomes := make([]recordOutcome, len(batch))
	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return SweepStats{}, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range batch {
		idx := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			outcomes[idx] = s.processRecord(ctx, now, &batch[idx])
		}
		if err := pool.Submit(task); err != nil {
			// Pool rejected the task; run inline rather than losing the record.
			task()
		}
	}
	wg.Wait()

	// Single atomic commit for the whole batch, applied only after every
	// dispatch has completed.
	if err := s.failed.ApplyBatch(ctx, batch); err != nil {
		return SweepStats{}, fmt.Errorf("apply batch: %w", err)
	}

	stats := SweepStats{Processed: len(batch)}
	for _, o := range outcomes {
		switch o {
		case outcomeSucceeded:
			stats.Succeeded++
		case outcomeFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}
	logutil.GetLogger(ctx).Info("retry sweep finished",
		zap.Int("processed", stats.Processed),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// processRecord mutates req in place to its next state and reports how the
// attempt went. It never panics out: a dispatch blow-up counts as a failure
// for this record only.
func (s *RetrySweeper) processRecord(ctx context.Context, now time.Time, req *model.FailedAIRequest) recordOutcome {
	nowMs := now.UnixMilli()
	logger := logutil.GetLogger(ctx).With(
		zap.String("request_id", req.ID),
		zap.String("feature", req.Feature),
		zap.String("resource_id", req.ResourceID))

	if req.RetryCount >= aierr.MaxAttempts {
		s.resolve(req, nowMs)
		logger.Warn("retries exhausted, giving up")
		return outcomeSkipped
	}
	cls := aierr.FromType(aierr.Type(req.ErrorType))
	if !cls.Retryable {
		s.resolve(req, nowMs)
		logger.Info("not retryable, resolved without dispatch", zap.String("error_type", req.ErrorType))
		return outcomeSkipped
	}
	handler := s.handlers[req.Feature]
	if handler == nil {
		s.resolve(req, nowMs)
		logger.Warn("no retry handler for feature, resolved")
		return outcomeSkipped
	}

	err := dispatch(ctx, handler, req)
	if err == nil {
		s.resolve(req, nowMs)
		logger.Info("retry succeeded", zap.Int("attempt", req.RetryCount))
		return outcomeSucceeded
	}

	req.RetryCount++
	req.Mtime = nowMs
	if req.RetryCount >= aierr.MaxAttempts {
		req.Resolved = true
		req.ResolvedAt = nowMs
		logger.Error("retry failed terminally", zap.Int("retry_count", req.RetryCount), zap.Error(err))
		return outcomeFailed
	}
	delay := aierr.RetryDelay(cls.RetryDelaySeconds, req.RetryCount)
	req.NextRetryAt = nowMs + delay*1000
	logger.Warn("retry failed, rescheduled",
		zap.Int("retry_count", req.RetryCount),
		zap.Int64("delay_seconds", delay),
		zap.Error(err))
	return outcomeFailed
}

func (s *RetrySweeper) resolve(req *model.FailedAIRequest, nowMs int64) {
	req.Resolved = true
	req.ResolvedAt = nowMs
	req.Mtime = nowMs
}

func dispatch(ctx context.Context, handler RetryHandler, req *model.FailedAIRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retry dispatch panic: %v", r)
		}
	}()
	return handler(ctx, req)
}
