package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/kv"
	"github.com/matheus3301/driftchat/internal/timer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockSender records calls and fails the ids listed in fail.
type mockSender struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	block chan struct{}
}

func (m *mockSender) send(ctx context.Context, msg QueuedMessage) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg.ID)
	if m.fail[msg.ID] {
		return fmt.Errorf("remote rejected %s", msg.ID)
	}
	return nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testOutbox(t *testing.T, storage kv.Storage) *Outbox {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	opts := DefaultOptions()
	opts.DrainGap = time.Millisecond
	return Load(storage, timer.New(nil), opts, logger, bus.New())
}

func msg(id string, ts int64) QueuedMessage {
	return QueuedMessage{
		ID:          id,
		Content:     "content " + id,
		SenderID:    "u1",
		SenderAlias: "alice",
		Timestamp:   time.UnixMilli(ts),
	}
}

func TestEnqueueSurvivesReload(t *testing.T) {
	storage := kv.NewMemory()
	o := testOutbox(t, storage)
	o.Enqueue(msg("m1", 1000))
	o.Enqueue(msg("m2", 2000))

	reloaded := testOutbox(t, storage)
	got := reloaded.Messages()
	if len(got) != 2 {
		t.Fatalf("reloaded %d messages, want 2", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("order = %s,%s, want m1,m2", got[0].ID, got[1].ID)
	}
	if !got[0].Timestamp.Equal(time.UnixMilli(1000)) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, time.UnixMilli(1000))
	}
	if got[1].SenderAlias != "alice" {
		t.Errorf("alias = %q, want alice", got[1].SenderAlias)
	}
}

func TestStoredRecordFormat(t *testing.T) {
	storage := kv.NewMemory()
	o := testOutbox(t, storage)
	o.Enqueue(msg("m1", 1000))

	raw, ok, err := storage.GetItem(StorageKey)
	if err != nil || !ok {
		t.Fatalf("GetItem() = %v, %v", ok, err)
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		t.Fatal(err)
	}
	require.Len(t, records, 1)
	for _, key := range []string{"id", "content", "senderId", "senderAlias", "timestamp", "retryCount"} {
		if _, ok := records[0][key]; !ok {
			t.Errorf("stored record missing %q: %v", key, records[0])
		}
	}
}

func TestEnqueueIgnoresDuplicateID(t *testing.T) {
	o := testOutbox(t, kv.NewMemory())
	o.Enqueue(msg("m1", 1000))
	o.Enqueue(msg("m1", 1000))
	if o.Len() != 1 {
		t.Errorf("Len() = %d, want 1", o.Len())
	}
}

func TestEnqueueResetsRetryCount(t *testing.T) {
	o := testOutbox(t, kv.NewMemory())
	m := msg("m1", 1000)
	m.RetryCount = 2
	o.Enqueue(m)
	if got := o.Messages()[0].RetryCount; got != 0 {
		t.Errorf("RetryCount = %d, want 0", got)
	}
}

func TestLoadUnreadableRecord(t *testing.T) {
	storage := kv.NewMemory()
	_ = storage.SetItem(StorageKey, "not json")
	o := testOutbox(t, storage)
	if o.Len() != 0 {
		t.Errorf("Len() = %d, want 0", o.Len())
	}
}

func TestDrainDeliversInOrder(t *testing.T) {
	storage := kv.NewMemory()
	o := testOutbox(t, storage)
	for i := 1; i <= 3; i++ {
		o.Enqueue(msg(fmt.Sprintf("m%d", i), int64(i*1000)))
	}

	sender := &mockSender{}
	res := o.Drain(context.Background(), sender.send)

	require.Equal(t, []string{"m1", "m2", "m3"}, sender.calls)
	require.Equal(t, []string{"m1", "m2", "m3"}, res.Delivered)
	require.Zero(t, o.Len())

	raw, _, _ := storage.GetItem(StorageKey)
	require.JSONEq(t, "[]", raw)
}

func TestDrainPartialFailure(t *testing.T) {
	o := testOutbox(t, kv.NewMemory())
	o.Enqueue(msg("A", 1000))
	o.Enqueue(msg("B", 2000))
	o.Enqueue(msg("C", 3000))

	sender := &mockSender{fail: map[string]bool{"B": true}}
	res := o.Drain(context.Background(), sender.send)

	require.Equal(t, []string{"A", "B", "C"}, sender.calls)
	require.Equal(t, []string{"A", "C"}, res.Delivered)
	require.Equal(t, []string{"B"}, res.Retrying)

	left := o.Messages()
	require.Len(t, left, 1)
	require.Equal(t, "B", left[0].ID)
	require.Equal(t, 1, left[0].RetryCount)
}

func TestDrainDropsAfterMaxRetries(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("outbox.message_failed", 4)
	defer unsub()

	o := Load(kv.NewMemory(), timer.New(nil), Options{MaxRetries: 3}, nil, b)
	o.Enqueue(msg("m1", 1000))

	sender := &mockSender{fail: map[string]bool{"m1": true}}
	for attempt := 1; attempt <= 2; attempt++ {
		res := o.Drain(context.Background(), sender.send)
		require.Empty(t, res.Failed, "attempt %d", attempt)
		require.Equal(t, attempt, o.Messages()[0].RetryCount)
	}

	res := o.Drain(context.Background(), sender.send)
	require.Len(t, res.Failed, 1)
	require.Equal(t, 3, res.Failed[0].RetryCount)
	require.Zero(t, o.Len())
	require.Equal(t, 3, sender.callCount())

	select {
	case evt := <-ch:
		failed, ok := evt.Payload.(QueuedMessage)
		require.True(t, ok)
		require.Equal(t, "m1", failed.ID)
	case <-time.After(time.Second):
		t.Fatal("no message_failed event")
	}

	// Nothing left to attempt.
	o.Drain(context.Background(), sender.send)
	require.Equal(t, 3, sender.callCount())
}

func TestConcurrentDrainIsNoop(t *testing.T) {
	o := testOutbox(t, kv.NewMemory())
	o.Enqueue(msg("m1", 1000))

	sender := &mockSender{block: make(chan struct{})}
	done := make(chan DrainResult)
	go func() { done <- o.Drain(context.Background(), sender.send) }()

	require.Eventually(t, o.Draining, time.Second, time.Millisecond)
	second := o.Drain(context.Background(), sender.send)
	require.True(t, second.Skipped)

	close(sender.block)
	first := <-done
	require.False(t, first.Skipped)
	require.Equal(t, []string{"m1"}, first.Delivered)
	require.Equal(t, 1, sender.callCount())
}

func TestDrainEmptyQueue(t *testing.T) {
	o := testOutbox(t, kv.NewMemory())
	sender := &mockSender{}
	res := o.Drain(context.Background(), sender.send)
	require.False(t, res.Skipped)
	require.Zero(t, sender.callCount())
}

func TestQuotaFailureIsSwallowed(t *testing.T) {
	storage := kv.NewMemory()
	storage.Quota = 10
	o := testOutbox(t, storage)

	o.Enqueue(msg("m1", 1000))
	if o.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", o.Len())
	}
	if _, ok, _ := storage.GetItem(StorageKey); ok {
		t.Error("record should not have been written past the quota")
	}

	sender := &mockSender{}
	res := o.Drain(context.Background(), sender.send)
	require.Equal(t, []string{"m1"}, res.Delivered)
}

func TestStorageErrorsAreSwallowed(t *testing.T) {
	storage := kv.NewMemory()
	storage.FailWith(errors.New("disk gone"))

	o := testOutbox(t, storage)
	o.Enqueue(msg("m1", 1000))
	require.Equal(t, 1, o.Len())
	o.Clear()
	require.Zero(t, o.Len())
}

func TestClearRemovesRecord(t *testing.T) {
	storage := kv.NewMemory()
	o := testOutbox(t, storage)
	o.Enqueue(msg("m1", 1000))

	o.Clear()
	if o.Len() != 0 {
		t.Errorf("Len() = %d, want 0", o.Len())
	}
	if _, ok, _ := storage.GetItem(StorageKey); ok {
		t.Error("Clear() left the durable record behind")
	}
}

func TestDequeue(t *testing.T) {
	o := testOutbox(t, kv.NewMemory())
	o.Enqueue(msg("m1", 1000))
	if !o.Dequeue("m1") {
		t.Error("Dequeue(m1) = false, want true")
	}
	if o.Dequeue("m1") {
		t.Error("second Dequeue(m1) = true, want false")
	}
}

func TestDrainStopsOnCancelWithoutChargingRetries(t *testing.T) {
	o := testOutbox(t, kv.NewMemory())
	o.Enqueue(msg("a", 1))
	o.Enqueue(msg("b", 2))

	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	res := o.Drain(ctx, func(ctx context.Context, m QueuedMessage) error {
		calls = append(calls, m.ID)
		cancel()
		return nil
	})

	require.Equal(t, []string{"a"}, calls)
	require.Equal(t, []string{"a"}, res.Delivered)
	require.Equal(t, 1, o.Len())
	left := o.Messages()
	require.Equal(t, "b", left[0].ID)
	require.Zero(t, left[0].RetryCount)
	require.False(t, o.Draining())
}
