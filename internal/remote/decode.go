package remote

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

var timeType = reflect.TypeOf(time.Time{})

// Decode converts rec into the struct pointed to by out, using mapstructure
// tags. The record id is available under the "id" key. Unix-millisecond
// numbers and RFC 3339 strings decode into time.Time fields.
func Decode(rec Record, out any) error {
	input := make(map[string]any, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		input[k] = v
	}
	input["id"] = rec.ID

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			millisToTime,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	return nil
}

func millisToTime(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case int64:
		return time.UnixMilli(v), nil
	case int:
		return time.UnixMilli(int64(v)), nil
	case float64:
		return time.UnixMilli(int64(v)), nil
	}
	return data, nil
}
