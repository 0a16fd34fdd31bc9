package persister

import (
	"context"
	"time"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Store is the contract a backend implements to have entities persisted by
// a [Persister]. E is the native entry type of the backend.
//
// Keys given to a Store are native values (see data.Native).
type Store[E any] interface {
	// CreateNewEntry allocates an empty entry for family.
	CreateNewEntry(family string) E
	GetEntryValue(entry E, key string) any
	// SetEntryValue writes one native value. Stores may skip values they
	// cannot represent.
	SetEntryValue(entry E, key string, value any)
	// RetrieveEntry fetches an entry by key. It returns false when there
	// is none.
	RetrieveEntry(ctx context.Context, entity *mapping.Entity, family string, key any) (E, bool, error)
	// StoreEntry inserts entry. When key is nil the store assigns one and
	// returns it.
	StoreEntry(ctx context.Context, entity *mapping.Entity, access domain.EntityAccess, key any, entry E) (any, error)
	// UpdateEntry replaces the entry stored under key. For versioned
	// entities entry holds the incremented version, and the store returns
	// [domain.ErrOptimisticLocking] when the stored version is not the one
	// before it.
	UpdateEntry(ctx context.Context, entity *mapping.Entity, access domain.EntityAccess, key any, entry E) error
	DeleteEntry(ctx context.Context, family string, key any) error
	// GenerateIdentifier returns the key of a new entry, or nil to let
	// [Store.StoreEntry] assign it.
	GenerateIdentifier(ctx context.Context, entity *mapping.Entity, entry E) (any, error)
	// PropertyIndexer returns the index of an indexed property, or nil when
	// the property is not indexed.
	PropertyIndexer(p mapping.Property) domain.PropertyValueIndexer
	// AssociationIndexer returns the index of a to-many association. entry
	// is the entry being written or hydrated.
	AssociationIndexer(entry E, p *mapping.OneToMany) domain.AssociationIndexer
}

// BatchRetriever is implemented by stores able to fetch many entries in one
// round trip. The found slice tells which keys had an entry.
type BatchRetriever[E any] interface {
	RetrieveEntries(ctx context.Context, entity *mapping.Entity, family string, keys []any) (entries []E, found []bool, err error)
}

// BatchDeleter is implemented by stores able to delete many entries in one
// round trip.
type BatchDeleter interface {
	DeleteEntries(ctx context.Context, family string, keys []any) error
}

// Locker is implemented by stores offering entry locks. LockEntry returns
// [domain.ErrCannotAcquireLock] when timeout elapses first.
type Locker interface {
	LockEntry(ctx context.Context, entity *mapping.Entity, key any, timeout time.Duration) error
	UnlockEntry(ctx context.Context, entity *mapping.Entity, key any) error
}

// EmbeddedStore is implemented by stores with nested entries. Embedded
// values are flattened into "property.sub" keys for other stores.
type EmbeddedStore[E any] interface {
	CreateEmbeddedEntry(entity *mapping.Entity) E
	SetEmbedded(entry E, key string, embedded E)
	GetEmbedded(entry E, key string) (E, bool)
}

// KeyScanner is implemented by stores able to list every key of a family.
// Queries that no index can answer scan those keys.
type KeyScanner interface {
	ScanKeys(ctx context.Context, entity *mapping.Entity, family string) ([]any, error)
}
