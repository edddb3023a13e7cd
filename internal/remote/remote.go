// Package remote is the client's view of the managed real-time store: keyed
// writes into named collections, one-shot queries, and live query feeds.
// Nothing in the core inspects untyped record maps; records are turned into
// domain structs with Decode at this boundary.
package remote

import (
	"context"
	"errors"
	"time"
)

// Collections used by the chat client.
const (
	MessagesCollection = "messages"
	TypingCollection   = "typing"
)

var (
	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("remote: store unavailable")
	// ErrRejected means the store refused the write.
	ErrRejected = errors.New("remote: write rejected")
)

// Record is one document of a collection.
type Record struct {
	ID     string
	Fields map[string]any
}

// Op is a filter comparison operator.
type Op string

const (
	Eq Op = "=="
	Ne Op = "!="
	Lt Op = "<"
	Le Op = "<="
	Gt Op = ">"
	Ge Op = ">="
)

// Filter restricts a query to records whose Field compares to Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects records from a collection. An empty OrderBy orders by id.
// Limit <= 0 means unlimited.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Store is the remote real-time store contract.
type Store interface {
	// Put creates or replaces the record id. Writing the same id twice
	// leaves a single record.
	Put(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes the record id. Deleting a missing record is not an error.
	Delete(ctx context.Context, collection, id string) error
	// QueryOnce returns the current result of q.
	QueryOnce(ctx context.Context, q Query) ([]Record, error)
	// Subscribe delivers the full result of q whenever matching data changes.
	// Delivery is best effort and may pause while the store is unreachable.
	// The channel is closed when ctx is done.
	Subscribe(ctx context.Context, q Query) (<-chan []Record, error)
}

// Millis converts t to the unix-millisecond representation stored remotely.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// offer sends recs on ch, replacing an undelivered older snapshot.
func offer(ch chan []Record, recs []Record) {
	select {
	case ch <- recs:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- recs:
	default:
	}
}
