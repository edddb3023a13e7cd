package status

import (
	"testing"
	"time"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{Connecting, Connected},
		{Connecting, Error},
		{Connecting, Disconnected},
		{Connected, Connecting},
		{Connected, Disconnected},
		{Connected, Error},
		{Disconnected, Connecting},
		{Disconnected, Connected},
		{Disconnected, Error},
		{Error, Connecting},
		{Error, Connected},
		{Error, Disconnected},
		{Error, Error},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if !CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = false, want true", tt.from, tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{Connecting, Status("bogus")},
		{Status("bogus"), Connected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if err := checkTransition(tt.from, tt.to); err == nil {
				t.Errorf("checkTransition(%s, %s) should fail", tt.from, tt.to)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	base, max := time.Second, 30*time.Second
	tests := []struct {
		n    int
		want time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{200, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.n, base, max); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}
