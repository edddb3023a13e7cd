package remote

import (
	"testing"
	"time"
)

func recs() []Record {
	return []Record{
		{ID: "c", Fields: map[string]any{"timestamp": int64(3000), "senderId": "u1", "isTyping": true}},
		{ID: "a", Fields: map[string]any{"timestamp": float64(1000), "senderId": "u2", "isTyping": false}},
		{ID: "b", Fields: map[string]any{"timestamp": 2000, "senderId": "u1", "isTyping": true}},
	}
}

func ids(rs []Record) string {
	s := ""
	for _, r := range rs {
		s += r.ID
	}
	return s
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{"default order by id", Query{}, "abc"},
		{"order by timestamp across numeric types", Query{OrderBy: "timestamp"}, "abc"},
		{"descending", Query{OrderBy: "timestamp", Desc: true}, "cba"},
		{"limit", Query{OrderBy: "timestamp", Desc: true, Limit: 2}, "cb"},
		{"eq filter", Query{Where: []Filter{{Field: "senderId", Op: Eq, Value: "u1"}}}, "bc"},
		{"ne filter", Query{Where: []Filter{{Field: "senderId", Op: Ne, Value: "u1"}}}, "a"},
		{"lt filter", Query{Where: []Filter{{Field: "timestamp", Op: Lt, Value: 2000}}}, "a"},
		{"ge filter", Query{Where: []Filter{{Field: "timestamp", Op: Ge, Value: int64(2000)}}}, "bc"},
		{"bool filter", Query{Where: []Filter{{Field: "isTyping", Op: Eq, Value: true}}}, "bc"},
		{"time value", Query{Where: []Filter{{Field: "timestamp", Op: Gt, Value: time.UnixMilli(2500)}}}, "c"},
		{"id filter", Query{Where: []Filter{{Field: "id", Op: Eq, Value: "b"}}}, "b"},
		{"missing field", Query{Where: []Filter{{Field: "nope", Op: Eq, Value: 1}}}, ""},
		{"type mismatch", Query{Where: []Filter{{Field: "senderId", Op: Gt, Value: 1}}}, ""},
		{"combined", Query{Where: []Filter{
			{Field: "senderId", Op: Eq, Value: "u1"},
			{Field: "timestamp", Op: Le, Value: 2000},
		}}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(Apply(recs(), tt.q)); got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}
