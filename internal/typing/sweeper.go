package typing

import (
	"context"
	"sync"

	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/timer"
	"go.uber.org/zap"
)

// Sweeper periodically deletes stale typing records from the remote store.
// It is best-effort cleanup; failures are logged and retried next round.
type Sweeper struct {
	remote remote.Store
	sched  *timer.Scheduler
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	task   *timer.Task
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweeper creates a sweeper.
func NewSweeper(rs remote.Store, sched *timer.Scheduler, opts Options, logger *zap.Logger) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{remote: rs, sched: sched, opts: opts, logger: logging.OrNop(logger), ctx: ctx, cancel: cancel}
}

// Start begins sweeping every SweepInterval.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil {
		return
	}
	s.task = s.sched.Every(s.opts.SweepInterval, func() { s.Sweep(s.ctx) })
}

// Stop cancels the sweep timer and any sweep in flight.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.task.Cancel()
	s.cancel()
}

// Sweep deletes every typing record older than StaleAfter and returns how
// many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := s.sched.Now().Add(-s.opts.StaleAfter)
	recs, err := s.remote.QueryOnce(ctx, remote.Query{
		Collection: remote.TypingCollection,
		Where:      []remote.Filter{{Field: "lastTypingTime", Op: remote.Lt, Value: remote.Millis(cutoff)}},
	})
	if err != nil {
		s.logger.Debug("typing sweep skipped", zap.Error(err))
		return 0
	}

	removed := 0
	for _, rec := range recs {
		if err := s.remote.Delete(ctx, remote.TypingCollection, rec.ID); err != nil {
			s.logger.Debug("failed to delete stale typing record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("swept stale typing records", zap.Int("removed", removed))
	}
	return removed
}
