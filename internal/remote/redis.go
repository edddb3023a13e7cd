package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store on top of a redis server. Each collection is one hash
// (<prefix>:<collection>, field = record id, value = JSON fields) and every
// write publishes the collection name on <prefix>:changes so live queries
// can re-run.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "driftchat"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// DialRedis creates a client for addr. The connection is established lazily.
func DialRedis(addr, password string, db int, prefix string) *Redis {
	return NewRedis(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), prefix)
}

func (r *Redis) key(collection string) string { return r.prefix + ":" + collection }

func (r *Redis) changes() string { return r.prefix + ":changes" }

func (r *Redis) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: encode fields: %v", ErrRejected, err)
	}
	_, err = r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.key(collection), id, data)
		p.Publish(ctx, r.changes(), collection)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, collection, id string) error {
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, r.key(collection), id)
		p.Publish(ctx, r.changes(), collection)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return nil
}

func (r *Redis) QueryOnce(ctx context.Context, q Query) ([]Record, error) {
	raw, err := r.rdb.HGetAll(ctx, r.key(q.Collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrUnavailable, q.Collection, err)
	}
	recs := make([]Record, 0, len(raw))
	for id, data := range raw {
		var fields map[string]any
		if err := json.Unmarshal([]byte(data), &fields); err != nil {
			// A corrupt record must not hide the rest of the collection.
			continue
		}
		recs = append(recs, Record{ID: id, Fields: fields})
	}
	return Apply(recs, q), nil
}

func (r *Redis) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	ps := r.rdb.Subscribe(ctx, r.changes())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe: %v", ErrUnavailable, err)
	}

	out := make(chan []Record, 1)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()

		if recs, err := r.QueryOnce(ctx, q); err == nil {
			offer(out, recs)
		}
		msgs := ps.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload != q.Collection {
					continue
				}
				recs, err := r.QueryOnce(ctx, q)
				if err != nil {
					continue
				}
				offer(out, recs)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
