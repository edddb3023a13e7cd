package typing

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/session"
	"github.com/matheus3301/driftchat/internal/timer"
	"go.uber.org/zap"
)

// Broadcaster publishes the local user's typing edges. A burst of keystrokes
// produces one "typing" write after the debounce window; inactivity for the
// timeout produces one "stopped" write.
type Broadcaster struct {
	remote remote.Store
	sched  *timer.Scheduler
	self   session.Identity
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu        sync.Mutex
	typing    bool
	announced bool
	lastWrite time.Time
	debounce  *timer.Task
	idle      *timer.Task
	closed    bool
}

// NewBroadcaster creates a broadcaster for self.
func NewBroadcaster(rs remote.Store, sched *timer.Scheduler, self session.Identity, opts Options, logger *zap.Logger) *Broadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		remote: rs,
		sched:  sched,
		self:   self,
		opts:   opts,
		logger: logging.OrNop(logger),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Typing reports the in-memory typing flag.
func (b *Broadcaster) Typing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typing
}

// Keystroke records local typing activity. It never blocks on the network.
func (b *Broadcaster) Keystroke() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.idle.Cancel()
	b.idle = b.sched.After(b.opts.Timeout, func() { b.Stop(b.ctx) })

	if !b.typing {
		b.typing = true
		b.debounce = b.sched.After(b.opts.Debounce, func() { b.write(b.ctx, true) })
		return
	}

	// Keep the remote record fresh so peers do not expire a live typist.
	if b.announced && b.sched.Now().Sub(b.lastWrite) >= b.opts.Refresh {
		b.lastWrite = b.sched.Now()
		go b.write(b.ctx, true)
	}
}

// Stop ends the typing state, for example when the message is sent. Only
// a previously announced start is followed by a "stopped" write.
func (b *Broadcaster) Stop(ctx context.Context) {
	b.mu.Lock()
	b.idle.Cancel()
	b.debounce.Cancel()
	if !b.typing {
		b.mu.Unlock()
		return
	}
	b.typing = false
	announced := b.announced
	b.announced = false
	b.mu.Unlock()

	if announced {
		b.write(ctx, false)
	}
}

// Close stops typing, cancels every timer and ignores later keystrokes.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.WriteTimeout)
	defer cancel()
	b.Stop(ctx)
	b.cancel()
}

// write upserts the local record. A write whose state no longer matches the
// in-memory flag is skipped, so a late "typing" never lands after "stopped".
func (b *Broadcaster) write(ctx context.Context, typing bool) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	if b.typing != typing {
		b.mu.Unlock()
		return
	}
	now := b.sched.Now()
	if typing {
		b.announced = true
		b.lastWrite = now
	}
	b.mu.Unlock()

	if b.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.WriteTimeout)
		defer cancel()
	}
	err := b.remote.Put(ctx, remote.TypingCollection, b.self.ID, map[string]any{
		"userId":         b.self.ID,
		"userAlias":      b.self.Alias,
		"isTyping":       typing,
		"lastTypingTime": remote.Millis(now),
	})
	if err != nil {
		b.logger.Debug("typing update failed", zap.Bool("typing", typing), zap.Error(err))
	}
}
