// Package delivery routes outgoing messages either straight to the remote
// store or through the offline outbox, and owns their delivery status.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/outbox"
	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/session"
	"github.com/matheus3301/driftchat/internal/status"
	"github.com/matheus3301/driftchat/internal/store"
	"github.com/matheus3301/driftchat/internal/timer"
	"go.uber.org/zap"
)

var (
	// ErrTooLong is returned for content over the configured maximum length.
	ErrTooLong = errors.New("delivery: message too long")
	// ErrUnknownMessage is returned when retrying an id the timeline does not hold.
	ErrUnknownMessage = errors.New("delivery: unknown message")
	// ErrNotFailed is returned when retrying a message that has not failed.
	ErrNotFailed = errors.New("delivery: message has not failed")
)

// Connection is the slice of the connection monitor the coordinator needs.
type Connection interface {
	Status() status.Status
	CheckStatus(ctx context.Context)
}

// History is the local message cache. It may be nil.
type History interface {
	UpsertMessage(m *store.Message) error
	ListMessages(beforeTs int64, limit int) ([]store.Message, error)
}

// Options bounds message size and how long one remote write may take.
type Options struct {
	MaxLength    int
	SendTimeout  time.Duration
	HistoryLimit int
}

// DefaultOptions returns a 1000 character limit and a 10s send timeout.
func DefaultOptions() Options {
	return Options{MaxLength: 1000, SendTimeout: 10 * time.Second, HistoryLimit: 200}
}

// Deps groups the coordinator's collaborators.
type Deps struct {
	Remote    remote.Store
	Conn      Connection
	Outbox    *outbox.Outbox
	Timeline  *Timeline
	History   History
	Scheduler *timer.Scheduler
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// Coordinator is the MessageDeliveryCoordinator: it sends directly while
// connected, queues while not, and drains the queue on reconnection.
type Coordinator struct {
	remote   remote.Store
	conn     Connection
	outbox   *outbox.Outbox
	timeline *Timeline
	history  History
	sched    *timer.Scheduler
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options

	mu     sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator.
func NewCoordinator(d Deps, opts Options) *Coordinator {
	sched := d.Scheduler
	if sched == nil {
		sched = timer.New(nil)
	}
	tl := d.Timeline
	if tl == nil {
		tl = NewTimeline(d.Bus)
	}
	return &Coordinator{
		remote:   d.Remote,
		conn:     d.Conn,
		outbox:   d.Outbox,
		timeline: tl,
		history:  d.History,
		sched:    sched,
		bus:      d.Bus,
		logger:   logging.OrNop(d.Logger),
		opts:     opts,
	}
}

// Timeline returns the message list the coordinator maintains.
func (c *Coordinator) Timeline() *Timeline { return c.timeline }

// Pending returns how many messages wait in the outbox.
func (c *Coordinator) Pending() int { return c.outbox.Len() }

// Start restores queued and cached messages into the timeline and begins
// draining the outbox whenever the connection is (re)established.
func (c *Coordinator) Start(ctx context.Context) {
	c.restore()

	ch, unsub := c.bus.Subscribe("connection.", 16)
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.runCtx = ctx
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsub()

		if c.conn.Status() == status.Connected {
			c.drain(ctx)
		}
		for {
			select {
			case evt := <-ch:
				// connected -> connected follows a successful re-probe and
				// still owes the queue a drain.
				if status.IsConnected(evt) {
					c.drain(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the reconnection listener and waits for an in-flight drain.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Send validates content, shows it immediately as sending and delivers it
// now or later. Blank content is a no-op returning (nil, nil).
func (c *Coordinator) Send(ctx context.Context, content string, from session.Identity) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	if c.opts.MaxLength > 0 && utf8.RuneCountInString(content) > c.opts.MaxLength {
		return nil, fmt.Errorf("%w: %d characters, limit %d", ErrTooLong, utf8.RuneCountInString(content), c.opts.MaxLength)
	}

	msg := Message{
		ID:          uuid.NewString(),
		Content:     content,
		SenderID:    from.ID,
		SenderAlias: from.Alias,
		Timestamp:   c.sched.Now(),
		Status:      Sending,
	}
	c.timeline.Insert(msg)
	c.saveHistory(msg)

	queued := toQueued(msg)
	if c.conn.Status() != status.Connected {
		c.logger.Info("offline, queueing message", zap.String("id", msg.ID))
		c.outbox.Enqueue(queued)
		return &msg, nil
	}

	if err := c.deliver(ctx, queued); err != nil {
		c.logger.Warn("direct send failed, queueing message", zap.String("id", msg.ID), zap.Error(err))
		c.outbox.Enqueue(queued)
		c.recheck(ctx)
		return &msg, nil
	}

	resolved := c.resolve(msg.ID, OutcomeConfirmed)
	return &resolved, nil
}

// Retry makes one more attempt at a failed message.
func (c *Coordinator) Retry(ctx context.Context, id string) error {
	msg, ok := c.timeline.Get(id)
	if !ok {
		return fmt.Errorf("retry %s: %w", id, ErrUnknownMessage)
	}
	if msg.Status != Failed {
		return fmt.Errorf("retry %s: %w", id, ErrNotFailed)
	}

	c.resolve(id, OutcomePending)
	if err := c.deliver(ctx, toQueued(msg)); err != nil {
		c.resolve(id, OutcomeFailed)
		return fmt.Errorf("retry %s: %w", id, err)
	}
	c.resolve(id, OutcomeConfirmed)
	return nil
}

// deliver performs one remote write. The message id doubles as the remote
// record id, so a resend after an unacknowledged success is an overwrite.
func (c *Coordinator) deliver(ctx context.Context, m outbox.QueuedMessage) error {
	if c.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SendTimeout)
		defer cancel()
	}
	return c.remote.Put(ctx, remote.MessagesCollection, m.ID, map[string]any{
		"content":     m.Content,
		"senderId":    m.SenderID,
		"senderAlias": m.SenderAlias,
		"timestamp":   remote.Millis(m.Timestamp),
	})
}

// recheck re-probes the connection after a failed direct send. When the probe
// confirms the store is reachable the queue is drained right away, since the
// monitor may report no status transition at all.
func (c *Coordinator) recheck(ctx context.Context) {
	c.mu.Lock()
	run := c.runCtx
	c.mu.Unlock()
	if run == nil {
		run = context.WithoutCancel(ctx)
	}
	if run.Err() != nil {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.conn.CheckStatus(run)
		if run.Err() == nil && c.conn.Status() == status.Connected {
			c.drain(run)
		}
	}()
}

func (c *Coordinator) drain(ctx context.Context) {
	if c.outbox.Len() == 0 {
		return
	}
	res := c.outbox.Drain(ctx, c.deliver)
	if res.Skipped {
		return
	}
	for _, id := range res.Delivered {
		c.resolve(id, OutcomeConfirmed)
	}
	for _, m := range res.Failed {
		c.resolve(m.ID, OutcomeFailed)
	}
}

func (c *Coordinator) resolve(id string, o Outcome) Message {
	m, changed := c.timeline.Resolve(id, o)
	if changed {
		c.logger.Debug("message status changed", zap.String("id", id), zap.String("status", string(m.Status)))
		c.saveHistory(m)
	}
	return m
}

// restore loads queued messages as sending and preloads the local history.
// A cached message stuck in sending that is no longer queued was lost
// mid-flight and is surfaced as failed.
func (c *Coordinator) restore() {
	queued := make(map[string]bool)
	for _, q := range c.outbox.Messages() {
		queued[q.ID] = true
		c.timeline.Insert(Message{
			ID:          q.ID,
			Content:     q.Content,
			SenderID:    q.SenderID,
			SenderAlias: q.SenderAlias,
			Timestamp:   q.Timestamp,
			Status:      Sending,
		})
	}

	if c.history == nil {
		return
	}
	cached, err := c.history.ListMessages(0, c.opts.HistoryLimit)
	if err != nil {
		c.logger.Error("failed to load message history", zap.Error(err))
		return
	}
	for _, sm := range cached {
		m := fromStore(sm)
		if m.Status == Sending && !queued[m.ID] {
			m.Status = Failed
			c.saveHistory(m)
		}
		c.timeline.Insert(m)
	}
	if len(cached) > 0 {
		c.logger.Info("restored message history", zap.Int("count", len(cached)), zap.Int("queued", len(queued)))
	}
}

func (c *Coordinator) saveHistory(m Message) {
	if c.history == nil {
		return
	}
	sm := toStore(m)
	if err := c.history.UpsertMessage(&sm); err != nil {
		c.logger.Warn("failed to cache message", zap.String("id", m.ID), zap.Error(err))
	}
}

func toQueued(m Message) outbox.QueuedMessage {
	return outbox.QueuedMessage{
		ID:          m.ID,
		Content:     m.Content,
		SenderID:    m.SenderID,
		SenderAlias: m.SenderAlias,
		Timestamp:   m.Timestamp,
	}
}

func toStore(m Message) store.Message {
	return store.Message{
		ID:          m.ID,
		Content:     m.Content,
		SenderID:    m.SenderID,
		SenderAlias: m.SenderAlias,
		Status:      string(m.Status),
		Timestamp:   remote.Millis(m.Timestamp),
	}
}

func fromStore(sm store.Message) Message {
	return Message{
		ID:          sm.ID,
		Content:     sm.Content,
		SenderID:    sm.SenderID,
		SenderAlias: sm.SenderAlias,
		Timestamp:   time.UnixMilli(sm.Timestamp),
		Status:      MessageStatus(sm.Status),
	}
}
