package status

import (
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/driftchat/internal/bus"
)

// Status is the client's view of whether the remote store is reachable.
type Status string

const (
	Connecting   Status = "connecting"
	Connected    Status = "connected"
	Disconnected Status = "disconnected"
	Error        Status = "error"
)

// User-facing causes recorded in State.Err.
const (
	ErrNoInternet  = "No internet connection"
	ErrMaxAttempts = "Maximum reconnection attempts reached"
)

// validTransitions defines allowed status changes. Staying in the same status
// is always allowed. Disconnected moves to Error when the link is back but the
// store still fails its probe; the monitor keeps Disconnected while the link
// is down.
var validTransitions = map[Status][]Status{
	Connecting:   {Connected, Error, Disconnected},
	Connected:    {Connecting, Disconnected, Error},
	Disconnected: {Connecting, Connected, Error},
	Error:        {Connecting, Connected, Disconnected},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return slices.Contains(validTransitions[from], to)
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// State is the connection snapshot exposed to the rest of the client.
// It is rebuilt on every start and never persisted.
type State struct {
	Status         Status
	IsReconnecting bool
	RetryCount     int
	LastConnected  time.Time
	Err            string
}

// StatusChange is the payload for connection.status_changed events.
type StatusChange struct {
	From  Status
	To    Status
	State State
}

// IsConnected reports whether evt is a status change that leaves the
// connection usable, including a connected -> connected refresh.
func IsConnected(evt bus.Event) bool {
	change, ok := evt.Payload.(StatusChange)
	return ok && evt.Kind == bus.ConnectionStatusChanged && change.To == Connected
}

// Backoff returns min(base * 2^n, max).
func Backoff(n int, base, max time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	d := base
	for i := 0; i < n; i++ {
		if d >= max {
			return max
		}
		d *= 2
	}
	return min(d, max)
}
