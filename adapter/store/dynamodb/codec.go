package dynamodb

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
)

func encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(data.Native(v))
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return b, nil
}

func decode(b []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	return data.Native(v), nil
}

func decodeEntry(b []byte) (data.Entry, error) {
	v, err := decode(b)
	if err != nil {
		return nil, err
	}
	e, _ := v.(data.Entry)
	if e == nil {
		e = data.Entry{}
	}
	return e, nil
}

func decodeKeys(b []byte) ([]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	v, err := decode(b)
	if err != nil {
		return nil, err
	}
	keys, _ := v.([]any)
	return keys, nil
}
