package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisPutQuery(t *testing.T) {
	r, _ := testRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, MessagesCollection, "m2", map[string]any{"content": "second", "timestamp": int64(2000)}))
	require.NoError(t, r.Put(ctx, MessagesCollection, "m1", map[string]any{"content": "first", "timestamp": int64(1000)}))
	// Same id again: still one record.
	require.NoError(t, r.Put(ctx, MessagesCollection, "m1", map[string]any{"content": "first", "timestamp": int64(1000)}))

	got, err := r.QueryOnce(ctx, Query{Collection: MessagesCollection, OrderBy: "timestamp"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0].ID)
	require.Equal(t, "m2", got[1].ID)

	var decoded struct {
		Content   string    `mapstructure:"content"`
		Timestamp time.Time `mapstructure:"timestamp"`
	}
	require.NoError(t, Decode(got[0], &decoded))
	require.Equal(t, "first", decoded.Content)
	require.Equal(t, int64(1000), decoded.Timestamp.UnixMilli())

	require.NoError(t, r.Delete(ctx, MessagesCollection, "m1"))
	got, err = r.QueryOnce(ctx, Query{Collection: MessagesCollection})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRedisSubscribe(t *testing.T) {
	r, _ := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := r.Subscribe(ctx, Query{Collection: TypingCollection})
	require.NoError(t, err)

	require.NoError(t, r.Put(ctx, TypingCollection, "u1", map[string]any{"isTyping": true}))

	require.Eventually(t, func() bool {
		select {
		case recs := <-feed:
			return len(recs) == 1 && recs[0].ID == "u1"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisUnavailable(t *testing.T) {
	r, mr := testRedis(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.QueryOnce(ctx, Query{Collection: MessagesCollection})
	require.True(t, errors.Is(err, ErrUnavailable), "err = %v", err)
}
