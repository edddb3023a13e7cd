// Package outbox holds messages that could not be delivered and replays them
// in order once the connection comes back.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/kv"
	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/timer"
	"go.uber.org/zap"
)

// StorageKey is the fixed local storage key holding the whole queue.
const StorageKey = "driftchat.offline_queue"

// QueuedMessage is a message waiting for delivery.
type QueuedMessage struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	SenderID    string    `json:"senderId"`
	SenderAlias string    `json:"senderAlias"`
	Timestamp   time.Time `json:"timestamp"`
	RetryCount  int       `json:"retryCount"`
}

// Options tunes the drain loop.
type Options struct {
	MaxRetries int
	DrainGap   time.Duration
}

// DefaultOptions returns 3 attempts and a 100ms gap between deliveries.
func DefaultOptions() Options {
	return Options{MaxRetries: 3, DrainGap: 100 * time.Millisecond}
}

// SendFunc delivers one message. A nil error means the remote store
// confirmed the write.
type SendFunc func(ctx context.Context, msg QueuedMessage) error

// DrainResult summarizes one pass over the queue.
type DrainResult struct {
	Delivered []string
	Retrying  []string
	Failed    []QueuedMessage
	Skipped   bool
}

// Outbox is a durable FIFO of undelivered messages. The in-memory queue is
// authoritative; every mutation rewrites the full record in storage.
type Outbox struct {
	storage kv.Storage
	sched   *timer.Scheduler
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	mu       sync.Mutex
	queue    []QueuedMessage
	draining atomic.Bool
}

// Load restores the queue from storage. An unreadable record is logged and
// the queue starts empty.
func Load(storage kv.Storage, sched *timer.Scheduler, opts Options, logger *zap.Logger, b *bus.Bus) *Outbox {
	if sched == nil {
		sched = timer.New(nil)
	}
	o := &Outbox{
		storage: storage,
		sched:   sched,
		bus:     b,
		logger:  logging.OrNop(logger),
		opts:    opts,
	}

	raw, ok, err := storage.GetItem(StorageKey)
	switch {
	case err != nil:
		o.logger.Error("failed to read offline queue", zap.Error(err))
	case ok:
		var msgs []QueuedMessage
		if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
			o.logger.Error("discarding unreadable offline queue", zap.Error(err))
			break
		}
		seen := make(map[string]bool, len(msgs))
		for _, m := range msgs {
			if m.ID == "" || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			o.queue = append(o.queue, m)
		}
		if len(o.queue) > 0 {
			o.logger.Info("restored offline queue", zap.Int("count", len(o.queue)))
		}
	}
	return o
}

// Enqueue appends msg with a fresh retry count. An id that is already queued
// is ignored.
func (o *Outbox) Enqueue(msg QueuedMessage) {
	o.mu.Lock()
	if o.indexLocked(msg.ID) >= 0 {
		o.mu.Unlock()
		o.logger.Debug("message already queued", zap.String("id", msg.ID))
		return
	}
	msg.RetryCount = 0
	o.queue = append(o.queue, msg)
	n := len(o.queue)
	o.persistLocked()
	o.mu.Unlock()

	o.logger.Info("message queued for later delivery", zap.String("id", msg.ID), zap.Int("queued", n))
	o.bus.Publish(bus.NewEvent(bus.OutboxQueued, msg))
	o.bus.Publish(bus.NewEvent(bus.OutboxChanged, n))
}

// Dequeue removes the message with id and reports whether it was queued.
func (o *Outbox) Dequeue(id string) bool {
	o.mu.Lock()
	i := o.indexLocked(id)
	if i < 0 {
		o.mu.Unlock()
		return false
	}
	o.queue = slices.Delete(o.queue, i, i+1)
	n := len(o.queue)
	o.persistLocked()
	o.mu.Unlock()

	o.bus.Publish(bus.NewEvent(bus.OutboxChanged, n))
	return true
}

// Clear empties the queue and removes the durable record.
func (o *Outbox) Clear() {
	o.mu.Lock()
	o.queue = nil
	if err := o.storage.RemoveItem(StorageKey); err != nil {
		o.logger.Error("failed to remove offline queue", zap.Error(err))
	}
	o.mu.Unlock()

	o.bus.Publish(bus.NewEvent(bus.OutboxChanged, 0))
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Messages returns a copy of the queue in delivery order.
func (o *Outbox) Messages() []QueuedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.queue)
}

// Draining reports whether a drain is in progress.
func (o *Outbox) Draining() bool {
	return o.draining.Load()
}

// Drain attempts every queued message once, in order. Only one drain runs at
// a time; a concurrent call returns immediately with Skipped set. Messages
// queued after the drain started wait for the next one. A cancelled ctx ends
// the pass before the next send; the untried messages stay queued with their
// retry counts unchanged.
func (o *Outbox) Drain(ctx context.Context, send SendFunc) DrainResult {
	if !o.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}
	}
	defer o.draining.Store(false)

	snapshot := o.Messages()
	if len(snapshot) == 0 {
		return DrainResult{}
	}
	o.logger.Info("draining offline queue", zap.Int("count", len(snapshot)))

	var res DrainResult
	for i, msg := range snapshot {
		if ctx.Err() != nil {
			break
		}

		if err := send(ctx, msg); err != nil {
			o.recordFailure(msg, err, &res)
			continue
		}

		if o.Dequeue(msg.ID) {
			res.Delivered = append(res.Delivered, msg.ID)
			o.bus.Publish(bus.NewEvent(bus.OutboxDelivered, msg))
		}
		if i < len(snapshot)-1 {
			o.sched.Sleep(o.opts.DrainGap)
		}
	}

	o.mu.Lock()
	o.persistLocked()
	remaining := len(o.queue)
	o.mu.Unlock()

	o.logger.Info("offline queue drained",
		zap.Int("delivered", len(res.Delivered)),
		zap.Int("retrying", len(res.Retrying)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("remaining", remaining),
	)
	return res
}

func (o *Outbox) recordFailure(msg QueuedMessage, sendErr error, res *DrainResult) {
	o.mu.Lock()
	i := o.indexLocked(msg.ID)
	if i < 0 {
		o.mu.Unlock()
		return
	}
	o.queue[i].RetryCount++
	cur := o.queue[i]
	dropped := cur.RetryCount >= o.opts.MaxRetries
	if dropped {
		o.queue = slices.Delete(o.queue, i, i+1)
	}
	n := len(o.queue)
	o.persistLocked()
	o.mu.Unlock()

	if dropped {
		o.logger.Error("giving up on queued message",
			zap.String("id", cur.ID), zap.Int("attempts", cur.RetryCount), zap.Error(sendErr))
		res.Failed = append(res.Failed, cur)
		o.bus.Publish(bus.NewEvent(bus.OutboxMessageFailed, cur))
		o.bus.Publish(bus.NewEvent(bus.OutboxChanged, n))
		return
	}
	o.logger.Warn("queued message delivery failed",
		zap.String("id", cur.ID), zap.Int("attempts", cur.RetryCount), zap.Error(sendErr))
	res.Retrying = append(res.Retrying, cur.ID)
	o.bus.Publish(bus.NewEvent(bus.OutboxRetryScheduled, cur))
}

func (o *Outbox) indexLocked(id string) int {
	return slices.IndexFunc(o.queue, func(m QueuedMessage) bool { return m.ID == id })
}

// persistLocked writes the full queue. Failures are logged; the in-memory
// queue stays authoritative.
func (o *Outbox) persistLocked() {
	if err := o.writeLocked(); err != nil {
		o.logger.Error("failed to persist offline queue", zap.Error(err), zap.Int("count", len(o.queue)))
	}
}

func (o *Outbox) writeLocked() error {
	queue := o.queue
	if queue == nil {
		queue = []QueuedMessage{}
	}
	data, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := o.storage.SetItem(StorageKey, string(data)); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}
