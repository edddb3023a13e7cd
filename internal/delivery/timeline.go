package delivery

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/driftchat/internal/bus"
)

// MessageStatus is the delivery state shown next to a message.
type MessageStatus string

const (
	Sending   MessageStatus = "sending"
	Delivered MessageStatus = "delivered"
	Failed    MessageStatus = "failed"
)

// Outcome is a delivery result fed into Timeline.Resolve.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeConfirmed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Message is a chat message as the local timeline shows it.
type Message struct {
	ID          string
	Content     string
	SenderID    string
	SenderAlias string
	Timestamp   time.Time
	Status      MessageStatus
}

// Timeline is the ordered list of messages the user sees. Resolve is the
// only way a message changes delivery status, and delivered is final.
type Timeline struct {
	bus *bus.Bus

	mu   sync.Mutex
	byID map[string]*Message
}

// NewTimeline creates an empty timeline publishing updates on b.
func NewTimeline(b *bus.Bus) *Timeline {
	return &Timeline{bus: b, byID: make(map[string]*Message)}
}

// Insert adds m if its id is new and reports whether it was added.
func (t *Timeline) Insert(m Message) bool {
	t.mu.Lock()
	if _, ok := t.byID[m.ID]; ok {
		t.mu.Unlock()
		return false
	}
	cp := m
	t.byID[m.ID] = &cp
	t.mu.Unlock()

	t.bus.Publish(bus.NewEvent(bus.MessageUpserted, m))
	return true
}

// Ingest records a message seen in the remote store. The remote copy proves
// delivery, so an optimistic local entry becomes delivered.
func (t *Timeline) Ingest(m Message) {
	m.Status = Delivered
	if t.Insert(m) {
		return
	}
	t.Resolve(m.ID, OutcomeConfirmed)
}

// Resolve applies a delivery outcome to the message with id. Confirmed is
// idempotent and sticky; a later Failed or Pending never downgrades a
// delivered message. It returns the message and whether it changed.
func (t *Timeline) Resolve(id string, o Outcome) (Message, bool) {
	t.mu.Lock()
	m, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return Message{}, false
	}

	next := m.Status
	switch o {
	case OutcomeConfirmed:
		next = Delivered
	case OutcomeFailed:
		if m.Status != Delivered {
			next = Failed
		}
	case OutcomePending:
		if m.Status != Delivered {
			next = Sending
		}
	}
	if next == m.Status {
		cur := *m
		t.mu.Unlock()
		return cur, false
	}
	m.Status = next
	cur := *m
	t.mu.Unlock()

	t.bus.Publish(bus.NewEvent(bus.MessageUpserted, cur))
	return cur, true
}

// Get returns the message with id.
func (t *Timeline) Get(id string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// List returns every message ordered by timestamp, ties broken by id.
func (t *Timeline) List() []Message {
	t.mu.Lock()
	out := make([]Message, 0, len(t.byID))
	for _, m := range t.byID {
		out = append(out, *m)
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b Message) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
