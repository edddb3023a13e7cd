// Package typing broadcasts and consumes short-lived "is typing" state.
package typing

import (
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/driftchat/internal/remote"
)

// Status is one user's typing record in the remote store.
type Status struct {
	UserID         string    `mapstructure:"userId"`
	UserAlias      string    `mapstructure:"userAlias"`
	IsTyping       bool      `mapstructure:"isTyping"`
	LastTypingTime time.Time `mapstructure:"lastTypingTime"`
}

// Options tunes typing timing.
type Options struct {
	Timeout       time.Duration
	Debounce      time.Duration
	Refresh       time.Duration
	SweepInterval time.Duration
	StaleAfter    time.Duration
	WriteTimeout  time.Duration
}

// DefaultOptions returns a 3s expiry, 300ms debounce, 2s refresh and a 30s
// sweep of records older than a minute.
func DefaultOptions() Options {
	return Options{
		Timeout:       3 * time.Second,
		Debounce:      300 * time.Millisecond,
		Refresh:       2 * time.Second,
		SweepInterval: 30 * time.Second,
		StaleAfter:    time.Minute,
		WriteTimeout:  5 * time.Second,
	}
}

// Active returns the users currently typing: records from others that say
// isTyping and are no older than timeout. Expiry is decided here, whatever
// the remote feed still claims. The result is sorted by alias.
func Active(records []Status, self string, now time.Time, timeout time.Duration) []Status {
	var out []Status
	for _, r := range records {
		if r.UserID == self || !r.IsTyping {
			continue
		}
		if now.Sub(r.LastTypingTime) > timeout {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Status) int {
		if c := strings.Compare(a.UserAlias, b.UserAlias); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}

func decodeAll(recs []remote.Record) ([]Status, []error) {
	out := make([]Status, 0, len(recs))
	var errs []error
	for _, rec := range recs {
		var s Status
		if err := remote.Decode(rec, &s); err != nil {
			errs = append(errs, err)
			continue
		}
		if s.UserID == "" {
			s.UserID = rec.ID
		}
		out = append(out, s)
	}
	return out, errs
}
