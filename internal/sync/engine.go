package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/delivery"
	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/status"
	"github.com/matheus3301/driftchat/internal/store"
	"go.uber.org/zap"
)

// FeedLimit bounds how many recent messages the live feed carries.
const FeedLimit = 200

// Cache is the local history the engine writes ingested messages to.
type Cache interface {
	UpsertMessage(m *store.Message) error
}

type remoteMessage struct {
	ID          string    `mapstructure:"id"`
	Content     string    `mapstructure:"content"`
	SenderID    string    `mapstructure:"senderId"`
	SenderAlias string    `mapstructure:"senderAlias"`
	Timestamp   time.Time `mapstructure:"timestamp"`
}

// Engine handles idempotent ingestion of the remote message feed into the
// timeline and the local history cache.
type Engine struct {
	remote     remote.Store
	timeline   *delivery.Timeline
	cache      Cache
	reconciler *Reconciler
	logger     *zap.Logger

	mu     gosync.Mutex
	seen   map[string]bool
	since  int64
	unseen int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine. cache and reconciler may be nil.
func NewEngine(rs remote.Store, tl *delivery.Timeline, cache Cache, reconciler *Reconciler, logger *zap.Logger) *Engine {
	return &Engine{
		remote:     rs,
		timeline:   tl,
		cache:      cache,
		reconciler: reconciler,
		logger:     logging.OrNop(logger),
		seen:       make(map[string]bool),
	}
}

// Start subscribes to the newest messages in the remote store.
func (e *Engine) Start(ctx context.Context) error {
	if e.reconciler != nil {
		since, err := e.reconciler.Checkpoint()
		if err != nil {
			e.logger.Warn("failed to read sync checkpoint", zap.Error(err))
		}
		e.since = since
	}

	ctx, cancel := context.WithCancel(ctx)
	ch, err := e.remote.Subscribe(ctx, remote.Query{
		Collection: remote.MessagesCollection,
		OrderBy:    "timestamp",
		Desc:       true,
		Limit:      FeedLimit,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to messages: %w", err)
	}

	e.mu.Lock()
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	go func() {
		defer close(done)
		for recs := range ch {
			e.IngestSnapshot(recs)
		}
	}()
	return nil
}

// Running reports whether the live feed is attached.
func (e *Engine) Running() bool {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Follow keeps the live feed attached: it starts the feed now and again on
// every connection change into connected while the feed is down. It blocks
// until ctx is done.
func (e *Engine) Follow(ctx context.Context, b *bus.Bus) {
	ch, unsub := b.Subscribe("connection.", 16)
	defer unsub()

	if err := e.Start(ctx); err != nil {
		e.logger.Warn("live feed unavailable, waiting for connection", zap.Error(err))
	}
	for {
		select {
		case evt := <-ch:
			if !status.IsConnected(evt) || e.Running() || ctx.Err() != nil {
				continue
			}
			if err := e.Start(ctx); err != nil {
				e.logger.Warn("live feed still unavailable", zap.Error(err))
				continue
			}
			e.logger.Info("live feed reattached")
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the engine and waits for the feed loop to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Unseen returns how many ingested messages are newer than the checkpoint
// recorded by the previous run.
func (e *Engine) Unseen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unseen
}

// IngestSnapshot processes one feed snapshot (idempotent). Records that fail
// to decode are logged and skipped.
func (e *Engine) IngestSnapshot(recs []remote.Record) {
	var newest int64
	ingested := 0
	for _, rec := range recs {
		var rm remoteMessage
		if err := remote.Decode(rec, &rm); err != nil {
			e.logger.Warn("skipping malformed message record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		if err := e.ingest(rm); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", rm.ID))
			continue
		}
		ingested++
		newest = max(newest, remote.Millis(rm.Timestamp))
	}

	if e.reconciler != nil && newest > 0 {
		if err := e.reconciler.UpdateCheckpoint(newest); err != nil {
			e.logger.Warn("failed to update sync checkpoint", zap.Error(err))
		}
	}
	e.logger.Debug("feed snapshot ingested", zap.Int("records", len(recs)), zap.Int("ingested", ingested))
}

// ingest records one remote message. A message already ingested by this
// engine is skipped.
func (e *Engine) ingest(rm remoteMessage) error {
	e.mu.Lock()
	if e.seen[rm.ID] {
		e.mu.Unlock()
		return nil
	}
	e.seen[rm.ID] = true
	if e.since > 0 && remote.Millis(rm.Timestamp) > e.since {
		e.unseen++
	}
	e.mu.Unlock()

	e.timeline.Ingest(delivery.Message{
		ID:          rm.ID,
		Content:     rm.Content,
		SenderID:    rm.SenderID,
		SenderAlias: rm.SenderAlias,
		Timestamp:   rm.Timestamp,
	})

	if e.cache == nil {
		return nil
	}
	if err := e.cache.UpsertMessage(&store.Message{
		ID:          rm.ID,
		Content:     rm.Content,
		SenderID:    rm.SenderID,
		SenderAlias: rm.SenderAlias,
		Status:      string(delivery.Delivered),
		Timestamp:   remote.Millis(rm.Timestamp),
	}); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}
