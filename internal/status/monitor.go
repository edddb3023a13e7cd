package status

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/timer"
	"go.uber.org/zap"
)

// Options tunes probing and reconnect backoff.
type Options struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxRetries    int
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// DefaultOptions returns 1s base, 30s cap, 10 retries, 30s probe interval.
func DefaultOptions() Options {
	return Options{
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		MaxRetries:    10,
		ProbeInterval: 30 * time.Second,
		ProbeTimeout:  5 * time.Second,
	}
}

// Monitor is the single source of truth for "can we currently reach the
// remote store". It probes the store, reacts to OS link changes and drives
// reconnection with capped exponential backoff.
type Monitor struct {
	store  remote.Store
	sched  *timer.Scheduler
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	linkUp    bool
	gen       uint64
	reconnect *timer.Task // auto-reconnect waiting to call Reconnect
	check     *timer.Task // probe scheduled by Reconnect
	periodic  *timer.Task
	closed    bool
}

// NewMonitor creates a monitor in the connecting state. The link is assumed
// up until told otherwise.
func NewMonitor(store remote.Store, sched *timer.Scheduler, b *bus.Bus, logger *zap.Logger, opts Options) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		store:  store,
		sched:  sched,
		bus:    b,
		logger: logging.OrNop(logger),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		state:  State{Status: Connecting},
		linkUp: true,
	}
}

// Start runs the first probe and begins periodic re-validation while
// connected.
func (m *Monitor) Start(ctx context.Context) {
	m.CheckStatus(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.periodic != nil {
		return
	}
	m.periodic = m.sched.Every(m.opts.ProbeInterval, m.revalidate)
}

// Close cancels every pending probe and timer. Later events are ignored.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cancel()
	m.reconnect.Cancel()
	m.check.Cancel()
	m.periodic.Cancel()
}

// State returns a snapshot of the connection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the current status.
func (m *Monitor) Status() Status {
	return m.State().Status
}

// Delay returns the backoff delay before attempt n.
func (m *Monitor) Delay(n int) time.Duration {
	return Backoff(n, m.opts.BaseDelay, m.opts.MaxDelay)
}

// CheckStatus probes the remote store with a lightweight one-shot query and
// records the outcome. It never fails; errors become state.
func (m *Monitor) CheckStatus(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	m.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	_, err := m.store.QueryOnce(pctx, remote.Query{Collection: remote.MessagesCollection, Limit: 1})

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if gen != m.gen || !m.linkUp {
		m.logger.Debug("discarding probe result: link went down", zap.Error(err))
		if !m.linkUp {
			m.setLocked(func(s *State) {
				s.Status = Disconnected
				s.Err = ErrNoInternet
				s.IsReconnecting = false
			})
		}
		return
	}

	if err != nil {
		m.logger.Warn("connection probe failed", zap.Error(err), zap.Int("retry_count", m.state.RetryCount))
		cause := err.Error()
		if m.state.RetryCount >= m.opts.MaxRetries {
			cause = ErrMaxAttempts
		}
		m.setLocked(func(s *State) {
			s.Status = Error
			s.Err = cause
			s.IsReconnecting = false
		})
		return
	}

	now := m.sched.Now()
	m.setLocked(func(s *State) {
		s.Status = Connected
		s.RetryCount = 0
		s.LastConnected = now
		s.Err = ""
		s.IsReconnecting = false
	})
}

// Reconnect schedules a probe after the current backoff delay and counts the
// attempt. Once the retry budget is spent it reports a terminal error and
// schedules nothing.
func (m *Monitor) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.reconnect.Cancel()
	m.reconnect = nil

	if m.state.RetryCount >= m.opts.MaxRetries {
		m.logger.Warn("reconnect budget exhausted", zap.Int("retry_count", m.state.RetryCount))
		m.setLocked(func(s *State) {
			s.Status = Error
			s.Err = ErrMaxAttempts
			s.IsReconnecting = false
		})
		return
	}

	delay := m.Delay(m.state.RetryCount)
	if !m.setLocked(func(s *State) {
		s.Status = Connecting
		s.IsReconnecting = true
		s.RetryCount++
	}) {
		return
	}
	m.check.Cancel()
	m.check = m.sched.After(delay, func() { m.CheckStatus(m.ctx) })
	m.logger.Info("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", m.state.RetryCount))
}

// Retry is the user-triggered reconnect: it resets the attempt counter and
// re-enters the backoff loop.
func (m *Monitor) Retry() {
	m.mu.Lock()
	m.state.RetryCount = 0
	m.mu.Unlock()
	m.Reconnect()
}

// HandleOffline records an OS offline signal. Offline is authoritative: it
// overrides any in-flight backoff and pending probe.
func (m *Monitor) HandleOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.linkUp = false
	m.gen++
	m.reconnect.Cancel()
	m.check.Cancel()
	m.setLocked(func(s *State) {
		s.Status = Disconnected
		s.Err = ErrNoInternet
		s.IsReconnecting = false
	})
}

// HandleOnline records an OS online signal and probes immediately.
func (m *Monitor) HandleOnline() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.linkUp = true
	m.mu.Unlock()

	m.CheckStatus(m.ctx)
}

func (m *Monitor) revalidate() {
	if m.Status() != Connected {
		return
	}
	m.CheckStatus(m.ctx)
}

// setLocked applies mutate to a copy of the state, enforces the transition
// table, publishes the change and re-arms auto-reconnect. Callers hold m.mu.
func (m *Monitor) setLocked(mutate func(*State)) bool {
	next := m.state
	mutate(&next)
	from := m.state.Status
	if err := checkTransition(from, next.Status); err != nil {
		m.logger.Warn("rejected connection transition", zap.Error(err))
		m.autoReconnectLocked()
		return false
	}
	if next == m.state {
		return true
	}
	m.state = next
	if from != next.Status {
		m.logger.Info("connection status changed", zap.String("from", string(from)), zap.String("to", string(next.Status)))
	}
	m.bus.Publish(bus.NewEvent(bus.ConnectionStatusChanged, StatusChange{From: from, To: next.Status, State: next}))
	m.autoReconnectLocked()
	return true
}

func (m *Monitor) autoReconnectLocked() {
	s := m.state
	if s.Status != Disconnected && s.Status != Error {
		return
	}
	// A spent budget gets one more Reconnect, which records the terminal
	// error. After that only Retry re-enters the loop.
	if !m.linkUp || s.IsReconnecting || s.Err == ErrMaxAttempts {
		return
	}
	if m.reconnect.Pending() || m.check.Pending() {
		return
	}
	m.reconnect = m.sched.After(m.Delay(s.RetryCount), m.Reconnect)
}
