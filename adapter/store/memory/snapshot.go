package memory

import (
	"context"
	"fmt"
	"io"

	"github.com/dolmen-go/contextio"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
)

type snapshotEntry struct {
	Key   any            `msgpack:"k"`
	Entry map[string]any `msgpack:"e"`
}

type snapshotPair struct {
	Key   any `msgpack:"k"`
	Value any `msgpack:"v"`
}

type snapshotAssociation struct {
	Owner any   `msgpack:"o"`
	Keys  []any `msgpack:"k"`
}

type snapshot struct {
	Families     map[string][]snapshotEntry       `msgpack:"families"`
	Sequences    map[string]int64                 `msgpack:"sequences"`
	Properties   map[string][]snapshotPair        `msgpack:"properties"`
	Associations map[string][]snapshotAssociation `msgpack:"associations"`
}

// Snapshot writes the content of the store to w. Writes concurrent with the
// snapshot may or may not be included.
func (s *Store) Snapshot(ctx context.Context, w io.Writer) error {
	snap := snapshot{
		Families:     make(map[string][]snapshotEntry),
		Sequences:    make(map[string]int64),
		Properties:   make(map[string][]snapshotPair),
		Associations: make(map[string][]snapshotAssociation),
	}
	s.families.Range(func(name string, f *family) bool {
		f.Range(func(key any, e data.Entry) bool {
			snap.Families[name] = append(snap.Families[name], snapshotEntry{Key: key, Entry: e.Clone()})
			return true
		})
		return true
	})
	s.sequences.Range(func(name string, seq int64) bool {
		snap.Sequences[name] = seq
		return true
	})
	s.properties.Range(func(name string, idx *PropertyIndex) bool {
		snap.Properties[name] = idx.pairs()
		return true
	})
	s.assocs.Range(func(name string, idx *AssociationIndex) bool {
		idx.keys.Range(func(owner any, keys []any) bool {
			snap.Associations[name] = append(snap.Associations[name], snapshotAssociation{Owner: owner, Keys: keys})
			return true
		})
		return true
	})

	enc := msgpack.NewEncoder(contextio.NewWriter(ctx, w))
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	s.logger.Debug("snapshot written", zap.Int("families", len(snap.Families)))
	return nil
}

// Restore replaces the content of the store with a snapshot read from r.
// Association indexes are restored lazily on the next call to
// [Store.AssociationIndexer], which knows their entity.
func (s *Store) Restore(ctx context.Context, r io.Reader) error {
	dec := msgpack.NewDecoder(contextio.NewReader(ctx, r))
	dec.UseLooseInterfaceDecoding(true)
	var snap snapshot
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	s.families.Clear()
	for name, entries := range snap.Families {
		f := s.family(name)
		for _, e := range entries {
			f.Store(mapKey(e.Key), toEntry(e.Entry))
		}
	}
	s.sequences.Clear()
	for name, seq := range snap.Sequences {
		s.sequences.Store(name, seq)
	}
	s.properties.Clear()
	for name, pairs := range snap.Properties {
		idx := newPropertyIndex(s.comparer)
		for _, p := range pairs {
			if err := idx.Index(ctx, data.Native(p.Value), p.Key); err != nil {
				return err
			}
		}
		s.properties.Store(name, idx)
	}
	s.assocs.Clear()
	for name, owners := range snap.Associations {
		idx := newAssociationIndex(nil)
		for _, o := range owners {
			idx.keys.Store(mapKey(o.Owner), o.Keys)
		}
		s.assocs.Store(name, idx)
	}
	s.logger.Debug("snapshot restored", zap.Int("families", len(snap.Families)))
	return nil
}

// pairs lists the indexed values with their keys.
func (i *PropertyIndex) pairs() []snapshotPair {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var res []snapshotPair
	for key, vals := range i.values {
		for _, v := range vals {
			res = append(res, snapshotPair{Key: key, Value: v})
		}
	}
	return res
}

func toEntry(m map[string]any) data.Entry {
	e := make(data.Entry, len(m))
	for k, v := range m {
		e[k] = data.Native(v)
	}
	return e
}
