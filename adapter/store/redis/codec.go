package redis

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
)

// encode serializes a native value for a hash field or a set member.
func encode(v any) (string, error) {
	b, err := msgpack.Marshal(data.Native(v))
	if err != nil {
		return "", fmt.Errorf("encoding %T: %w", v, err)
	}
	return string(b), nil
}

func decode(s string) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseLooseInterfaceDecoding(true)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	return data.Native(v), nil
}

func decodeAll(members []string) ([]any, error) {
	res := make([]any, len(members))
	for i, m := range members {
		v, err := decode(m)
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

func encodeEntry(e data.Entry) (map[string]any, error) {
	fields := make(map[string]any, len(e))
	for k, v := range e {
		if v == nil {
			continue
		}
		enc, err := encode(v)
		if err != nil {
			return nil, err
		}
		fields[k] = enc
	}
	return fields, nil
}

func decodeEntry(fields map[string]string) (data.Entry, error) {
	e := make(data.Entry, len(fields))
	for k, raw := range fields {
		v, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		e[k] = v
	}
	return e, nil
}

// score returns the sorted set score of values supporting range queries.
func score(v any) (float64, bool) {
	switch t := data.Native(v).(type) {
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	case time.Time:
		return float64(t.UnixMilli()), true
	default:
		return 0, false
	}
}

// bound formats a score bound for ZRANGEBYSCORE.
func bound(v any, include bool, open string) (string, bool) {
	if v == nil {
		return open, true
	}
	s, ok := score(v)
	if !ok || math.IsNaN(s) {
		return "", false
	}
	f := strconv.FormatFloat(s, 'f', -1, 64)
	if include {
		return f, true
	}
	return "(" + f, true
}
