package remote

import (
	"cmp"
	"slices"
	"time"
)

// Apply filters, orders and limits records according to q.
func Apply(records []Record, q Query) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if matchesAll(rec, q.Where) {
			out = append(out, rec)
		}
	}

	slices.SortStableFunc(out, func(a, b Record) int {
		c := 0
		if q.OrderBy != "" {
			c, _ = compare(a.Fields[q.OrderBy], b.Fields[q.OrderBy])
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if q.Desc {
			return -c
		}
		return c
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matchesAll(rec Record, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(rec) {
			return false
		}
	}
	return true
}

// Match reports whether rec satisfies the filter. Values of incomparable
// types never match, except under Ne.
func (f Filter) Match(rec Record) bool {
	var v any
	if f.Field == "id" {
		v = rec.ID
	} else {
		var ok bool
		v, ok = rec.Fields[f.Field]
		if !ok {
			return false
		}
	}
	c, ok := compare(v, f.Value)
	if !ok {
		return f.Op == Ne
	}
	switch f.Op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Le:
		return c <= 0
	case Gt:
		return c > 0
	case Ge:
		return c >= 0
	}
	return false
}

// compare orders two field values. Numbers compare across numeric types and
// times compare as unix milliseconds.
func compare(a, b any) (int, bool) {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		if !ok {
			return 0, false
		}
		return cmp.Compare(fa, fb), true
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return cmp.Compare(va, vb), true
	case bool:
		vb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case va == vb:
			return 0, true
		case !va:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case time.Time:
		return float64(n.UnixMilli()), true
	}
	return 0, false
}
