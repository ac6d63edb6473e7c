package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"callguard/internal/platform/metrics"
)

// ErrSweepInProgress is returned when a trigger arrives while a sweep is
// already running. The trigger is coalesced, not queued.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Purger deletes records older than the cutoff for one category. The delete
// must be a single atomic bulk operation.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgerFunc adapts a function to the Purger interface.
type PurgerFunc func(ctx context.Context, cutoff time.Time) (int64, error)

func (f PurgerFunc) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return f(ctx, cutoff)
}

// Lock is an optional cross-instance lease so concurrent deployments never
// sweep the same categories at once.
type Lock interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// Result reports each category's outcome individually: a failure in one
// category never aborts the others.
type Result struct {
	Purged map[Category]int64
	Errors map[Category]error
}

// Sweeper purges expired records per the retention policy.
type Sweeper struct {
	policy  Policy
	purgers map[Category]Purger
	lock    Lock
	logger  *slog.Logger
	metrics *metrics.Metrics
	running atomic.Bool
}

func NewSweeper(policy Policy, purgers map[Category]Purger, lock Lock, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		policy:  policy,
		purgers: purgers,
		lock:    lock,
		logger:  logger,
		metrics: m,
	}
}

// Sweep purges every finite-window category concurrently. Categories marked
// permanent or lacking a purger are skipped. A second trigger while a sweep
// runs returns ErrSweepInProgress.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, 5*time.Minute)
		if err != nil {
			return Result{}, err
		}
		if !acquired {
			return Result{}, ErrSweepInProgress
		}
		defer func() { _ = s.lock.Release(context.WithoutCancel(ctx)) }()
	}

	result := Result{
		Purged: make(map[Category]int64),
		Errors: make(map[Category]error),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for category, purger := range s.purgers {
		if s.policy.Permanent(category) {
			continue
		}
		cutoff := now.Add(-s.policy[category])

		g.Go(func() error {
			purged, err := purger.PurgeOlderThan(gctx, cutoff)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[category] = err
				if s.metrics != nil {
					s.metrics.SweepFailures.WithLabelValues(string(category)).Inc()
				}
				s.logger.ErrorContext(gctx, "category sweep failed",
					"category", string(category),
					"error", err.Error(),
				)
				// Per-category isolation: report, don't abort siblings.
				return nil
			}
			result.Purged[category] = purged
			if s.metrics != nil && purged > 0 {
				s.metrics.RecordsPurged.WithLabelValues(string(category)).Add(float64(purged))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.InfoContext(ctx, "retention sweep complete",
		"purged", result.Purged,
		"failed_categories", len(result.Errors),
	)
	return result, nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx, time.Now()); err != nil && !errors.Is(err, ErrSweepInProgress) {
				s.logger.ErrorContext(ctx, "scheduled sweep failed", "error", err.Error())
			}
		}
	}
}
