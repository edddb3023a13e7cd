package typing

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/status"
	"github.com/matheus3301/driftchat/internal/timer"
	"go.uber.org/zap"
)

// Watcher turns the remote typing feed into the list of peers currently
// typing, expiring stale records on a local tick.
type Watcher struct {
	remote remote.Store
	sched  *timer.Scheduler
	bus    *bus.Bus
	self   string
	opts   Options
	logger *zap.Logger
}

// NewWatcher creates a watcher that ignores the record of self.
func NewWatcher(rs remote.Store, sched *timer.Scheduler, b *bus.Bus, self string, opts Options, logger *zap.Logger) *Watcher {
	return &Watcher{remote: rs, sched: sched, bus: b, self: self, opts: opts, logger: logging.OrNop(logger)}
}

// Run blocks until ctx is done, calling out (and publishing typing.changed)
// whenever the set of typing peers changes. out may be nil.
func (w *Watcher) Run(ctx context.Context, out func([]Status)) error {
	feed, err := w.remote.Subscribe(ctx, remote.Query{
		Collection: remote.TypingCollection,
		Where:      []remote.Filter{{Field: "isTyping", Op: remote.Eq, Value: true}},
	})
	if err != nil {
		return fmt.Errorf("subscribe to typing: %w", err)
	}

	tick := make(chan struct{}, 1)
	task := w.sched.Every(w.tickInterval(), func() {
		select {
		case tick <- struct{}{}:
		default:
		}
	})
	defer task.Cancel()

	var records []Status
	var last []Status
	emit := func() {
		active := Active(records, w.self, w.sched.Now(), w.opts.Timeout)
		if sameUsers(active, last) {
			return
		}
		last = active
		if out != nil {
			out(active)
		}
		w.bus.Publish(bus.NewEvent(bus.TypingChanged, active))
	}

	for {
		select {
		case recs, ok := <-feed:
			if !ok {
				return nil
			}
			decoded, errs := decodeAll(recs)
			for _, err := range errs {
				w.logger.Debug("skipping malformed typing record", zap.Error(err))
			}
			records = decoded
			emit()
		case <-tick:
			emit()
		case <-ctx.Done():
			return nil
		}
	}
}

// Follow runs the watcher and re-runs it on every connection change into
// connected after the typing feed failed or closed. It blocks until ctx is
// done.
func (w *Watcher) Follow(ctx context.Context, out func([]Status)) {
	ch, unsub := w.bus.Subscribe("connection.", 16)
	defer unsub()

	for {
		if err := w.Run(ctx, out); err != nil {
			w.logger.Warn("typing feed unavailable, waiting for connection", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
		if !waitConnected(ctx, ch) {
			return
		}
	}
}

func waitConnected(ctx context.Context, ch <-chan bus.Event) bool {
	for {
		select {
		case evt := <-ch:
			if status.IsConnected(evt) {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (w *Watcher) tickInterval() time.Duration {
	d := w.opts.Timeout / 3
	if d <= 0 {
		d = time.Second
	}
	return d
}

func sameUsers(a, b []Status) bool {
	return slices.EqualFunc(a, b, func(x, y Status) bool {
		return x.UserID == y.UserID && x.UserAlias == y.UserAlias
	})
}
