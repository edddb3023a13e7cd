// Package netwatch turns the host's network interface state into online and
// offline edges.
package netwatch

import (
	"net"
	"sync"
	"time"

	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/timer"
	"go.uber.org/zap"
)

// Watcher polls link state and reports changes.
type Watcher struct {
	sched    *timer.Scheduler
	interval time.Duration
	logger   *zap.Logger
	probe    func() bool

	mu       sync.Mutex
	known    bool
	up       bool
	onChange func(up bool)
	task     *timer.Task
}

// New creates a watcher that checks the link every interval.
func New(sched *timer.Scheduler, interval time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		sched:    sched,
		interval: interval,
		logger:   logging.OrNop(logger),
		probe:    LinkUp,
	}
}

// Start evaluates the link once and then on every tick. The link is assumed
// up initially, so a first observation of "up" is not reported.
func (w *Watcher) Start(onChange func(up bool)) {
	w.mu.Lock()
	w.onChange = onChange
	w.mu.Unlock()

	w.poll()

	w.mu.Lock()
	if w.task == nil {
		w.task = w.sched.Every(w.interval, w.poll)
	}
	w.mu.Unlock()
}

// Stop cancels polling.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.task.Cancel()
	w.onChange = nil
}

// Up reports the last observed link state.
func (w *Watcher) Up() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.known || w.up
}

func (w *Watcher) poll() {
	up := w.probe()

	w.mu.Lock()
	changed := w.known && up != w.up
	first := !w.known
	w.known = true
	w.up = up
	cb := w.onChange
	w.mu.Unlock()

	if first && up {
		return
	}
	if !first && !changed {
		return
	}
	w.logger.Info("network link changed", zap.Bool("up", up))
	if cb != nil {
		cb(up)
	}
}

// LinkUp reports whether any non-loopback interface is up with a usable
// unicast address.
func LinkUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if ok && ipnet.IP.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}
