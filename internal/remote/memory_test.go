package remote

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan []Record) []Record {
	t.Helper()
	select {
	case recs, ok := <-ch:
		if !ok {
			t.Fatal("feed closed")
		}
		return recs
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for feed")
	}
	return nil
}

func TestMemoryPutIsUpsert(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.Put(ctx, MessagesCollection, "m1", map[string]any{"content": "hi"}); err != nil {
			t.Fatal(err)
		}
	}
	if m.Len(MessagesCollection) != 1 {
		t.Errorf("len = %d, want 1", m.Len(MessagesCollection))
	}
	if m.Commits(MessagesCollection, "m1") != 2 {
		t.Errorf("commits = %d, want 2", m.Commits(MessagesCollection, "m1"))
	}
}

func TestMemoryOffline(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SetOnline(false)

	if err := m.Put(ctx, MessagesCollection, "m1", nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Put offline error = %v, want ErrUnavailable", err)
	}
	if _, err := m.QueryOnce(ctx, Query{Collection: MessagesCollection}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("QueryOnce offline error = %v, want ErrUnavailable", err)
	}
	if err := m.Delete(ctx, MessagesCollection, "m1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Delete offline error = %v, want ErrUnavailable", err)
	}
	if m.Calls("put") != 1 {
		t.Errorf("put calls = %d, want 1", m.Calls("put"))
	}
}

func TestMemoryFailPuts(t *testing.T) {
	m := NewMemory()
	m.FailPuts(func(_, id string) error {
		if id == "bad" {
			return ErrRejected
		}
		return nil
	})
	ctx := context.Background()
	if err := m.Put(ctx, MessagesCollection, "bad", nil); !errors.Is(err, ErrRejected) {
		t.Errorf("Put(bad) error = %v", err)
	}
	if err := m.Put(ctx, MessagesCollection, "good", nil); err != nil {
		t.Errorf("Put(good) error = %v", err)
	}
}

func TestMemorySubscribe(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := m.Subscribe(ctx, Query{Collection: TypingCollection, OrderBy: "lastTypingTime"})
	if err != nil {
		t.Fatal(err)
	}
	if initial := recv(t, feed); len(initial) != 0 {
		t.Fatalf("initial snapshot = %v, want empty", initial)
	}

	if err := m.Put(ctx, TypingCollection, "u1", map[string]any{"lastTypingTime": int64(5)}); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, feed); len(got) != 1 || got[0].ID != "u1" {
		t.Errorf("snapshot = %v, want [u1]", got)
	}

	// Writes to other collections do not wake the feed.
	if err := m.Put(ctx, MessagesCollection, "m1", nil); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-feed:
		t.Errorf("unexpected snapshot %v", got)
	case <-time.After(30 * time.Millisecond):
	}

	if err := m.Delete(ctx, TypingCollection, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, feed); len(got) != 0 {
		t.Errorf("snapshot after delete = %v, want empty", got)
	}

	cancel()
	select {
	case _, ok := <-feed:
		if ok {
			// A final snapshot may still be buffered; the next read must see close.
			if _, ok := <-feed; ok {
				t.Error("feed not closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("feed not closed after cancel")
	}
}

func TestMemoryFeedPausesWhileOffline(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, _ := m.Subscribe(ctx, Query{Collection: MessagesCollection})
	recv(t, feed)

	m.SetOnline(false)
	select {
	case got := <-feed:
		t.Errorf("snapshot while offline: %v", got)
	case <-time.After(30 * time.Millisecond):
	}

	m.SetOnline(true)
	recv(t, feed)
}
