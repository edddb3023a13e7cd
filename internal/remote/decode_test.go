package remote

import (
	"testing"
	"time"
)

type decodedMessage struct {
	ID        string    `mapstructure:"id"`
	Content   string    `mapstructure:"content"`
	SenderID  string    `mapstructure:"senderId"`
	Timestamp time.Time `mapstructure:"timestamp"`
	Retries   int       `mapstructure:"retries"`
}

func TestDecodeMillisToTime(t *testing.T) {
	tests := []struct {
		name string
		ts   any
	}{
		{"int64", int64(1700000000123)},
		{"float64 from JSON", float64(1700000000123)},
		{"rfc3339 string", "2023-11-14T22:13:20.123Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m decodedMessage
			err := Decode(Record{ID: "m1", Fields: map[string]any{
				"content":   "hi",
				"senderId":  "u1",
				"timestamp": tt.ts,
				"retries":   float64(2),
			}}, &m)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if m.ID != "m1" || m.Content != "hi" || m.SenderID != "u1" || m.Retries != 2 {
				t.Errorf("decoded = %+v", m)
			}
			if got := m.Timestamp.UnixMilli(); got != 1700000000123 {
				t.Errorf("timestamp = %d, want 1700000000123", got)
			}
		})
	}
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	var m decodedMessage
	err := Decode(Record{ID: "m1", Fields: map[string]any{"content": []int{1, 2}}}, &m)
	if err == nil {
		t.Error("Decode() of a list into a string should fail")
	}
}
