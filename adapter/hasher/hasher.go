// Package hasher contains the default [domain.Hasher] implementation.
package hasher

import (
	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Hasher implements domain.Hasher. Values are normalized with [data.Native]
// and encoded as msgpack with sorted map keys, so equal native values hash
// the same regardless of their Go type.
type Hasher struct{}

// NewHasher returns a new implementation of domain.Hasher.
func NewHasher() domain.Hasher {
	return &Hasher{}
}

// Hash implements domain.Hasher.
func (h *Hasher) Hash(a any) (uint64, error) {
	d := xxhash.New()
	enc := msgpack.NewEncoder(d)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(data.Native(a)); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}
