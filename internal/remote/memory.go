package remote

import (
	"context"
	"maps"
	"sync"
)

// Memory is an in-process Store with live subscriptions. It doubles as the
// offline-capable backend for local use and as the test double for the core:
// SetOnline(false) makes every call fail with ErrUnavailable and pauses feeds.
type Memory struct {
	mu      sync.Mutex
	data    map[string]map[string]map[string]any
	online  bool
	subs    map[int]*memSub
	nextSub int
	puts    map[string]int
	calls   map[string]int
	putHook func(collection, id string) error
}

type memSub struct {
	q  Query
	ch chan []Record
}

// NewMemory creates an empty, reachable store.
func NewMemory() *Memory {
	return &Memory{
		data:   make(map[string]map[string]map[string]any),
		online: true,
		subs:   make(map[int]*memSub),
		puts:   make(map[string]int),
		calls:  make(map[string]int),
	}
}

func (m *Memory) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["put"]++
	if !m.online {
		return ErrUnavailable
	}
	if m.putHook != nil {
		if err := m.putHook(collection, id); err != nil {
			return err
		}
	}
	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.data[collection] = coll
	}
	coll[id] = maps.Clone(fields)
	m.puts[collection+"/"+id]++
	m.notifyLocked(collection)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete"]++
	if !m.online {
		return ErrUnavailable
	}
	if _, ok := m.data[collection][id]; !ok {
		return nil
	}
	delete(m.data[collection], id)
	m.notifyLocked(collection)
	return nil
}

func (m *Memory) QueryOnce(ctx context.Context, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["query"]++
	if !m.online {
		return nil, ErrUnavailable
	}
	return m.queryLocked(q), nil
}

func (m *Memory) Subscribe(ctx context.Context, q Query) (<-chan []Record, error) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	sub := &memSub{q: q, ch: make(chan []Record, 1)}
	m.subs[id] = sub
	if m.online {
		offer(sub.ch, m.queryLocked(q))
	}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		close(sub.ch)
		m.mu.Unlock()
	}()
	return sub.ch, nil
}

// SetOnline toggles reachability. Coming back online pushes a fresh snapshot
// to every live subscription.
func (m *Memory) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.online
	m.online = online
	if online && !was {
		for _, sub := range m.subs {
			offer(sub.ch, m.queryLocked(sub.q))
		}
	}
}

// FailPuts installs a hook consulted on every Put; a non-nil error rejects the write.
func (m *Memory) FailPuts(hook func(collection, id string) error) {
	m.mu.Lock()
	m.putHook = hook
	m.mu.Unlock()
}

// Commits returns how many successful Puts targeted collection/id.
func (m *Memory) Commits(collection, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[collection+"/"+id]
}

// Calls returns the number of attempted operations of a kind: put, delete or query.
func (m *Memory) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// Len returns the number of records in collection.
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[collection])
}

func (m *Memory) queryLocked(q Query) []Record {
	coll := m.data[q.Collection]
	recs := make([]Record, 0, len(coll))
	for id, fields := range coll {
		recs = append(recs, Record{ID: id, Fields: maps.Clone(fields)})
	}
	return Apply(recs, q)
}

func (m *Memory) notifyLocked(collection string) {
	for _, sub := range m.subs {
		if sub.q.Collection == collection {
			offer(sub.ch, m.queryLocked(sub.q))
		}
	}
}
