// Package dynamodb contains a store keeping native entries in a single
// DynamoDB table. Items are addressed by a string partition key PK and a
// string sort key SK. Entries are msgpack encoded in a binary attribute and
// the version, when the entity has one, is kept in a number attribute used
// by conditional writes.
package dynamodb

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/persister"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/timegetter"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

var (
	_ persister.Store[data.Entry]          = (*Store)(nil)
	_ persister.BatchRetriever[data.Entry] = (*Store)(nil)
	_ persister.BatchDeleter               = (*Store)(nil)
	_ persister.Locker                     = (*Store)(nil)
	_ persister.KeyScanner                 = (*Store)(nil)
)

const (
	entrySort = "ENTRY"
	seqSort   = "SEQ"
	lockSort  = "LOCK"
	assocSort = "ASSOC"

	batchGetLimit   = 100
	batchWriteLimit = 25
)

type itemKey struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

type entryItem struct {
	PK      string `dynamodbav:"PK"`
	SK      string `dynamodbav:"SK"`
	Family  string `dynamodbav:"Family"`
	Key     []byte `dynamodbav:"Key"`
	Data    []byte `dynamodbav:"Data"`
	Version *int64 `dynamodbav:"Version,omitempty"`
}

type seqItem struct {
	Seq int64 `dynamodbav:"Seq"`
}

// Store implements [persister.Store] over a DynamoDB table.
type Store struct {
	client          DBClient
	table           string
	lockTTL         time.Duration
	lockRetry       time.Duration
	breakerFailures uint32
	breakerTimeout  time.Duration
	tokens          *xsync.MapOf[string, string]
	comparer        domain.Comparer
	hasher          domain.Hasher
	ids             domain.IDGenerator
	clock           domain.TimeGetter
	logger          *zap.Logger
}

// NewStore returns a store writing to table. Unless disabled with
// [WithBreaker], calls go through a circuit breaker opening after five
// consecutive failures.
func NewStore(client DBClient, table string, opts ...Option) *Store {
	s := &Store{
		client:          client,
		table:           table,
		lockTTL:         30 * time.Second,
		lockRetry:       100 * time.Millisecond,
		breakerFailures: 5,
		breakerTimeout:  time.Minute,
		tokens:          xsync.NewMapOf[string, string](),
		comparer:        comparer.NewComparer(),
		hasher:          hasher.NewHasher(),
		ids:             idgenerator.NewIDGenerator(),
		clock:           timegetter.NewTimeGetter(),
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breakerFailures > 0 {
		failures := s.breakerFailures
		s.client = newBreakerClient(client, gobreaker.Settings{
			Name:        "gedm-dynamodb-" + table,
			MaxRequests: 1,
			Timeout:     s.breakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		})
	}
	return s
}

func keyString(key any) string {
	if b, ok := key.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(key)
}

func entryPK(family string, key any) string {
	return family + "#" + keyString(key)
}

func (s *Store) itemKey(pk, sk string) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(itemKey{PK: pk, SK: sk})
}

// CreateNewEntry implements [persister.Store].
func (s *Store) CreateNewEntry(string) data.Entry { return data.Entry{} }

// GetEntryValue implements [persister.Store].
func (s *Store) GetEntryValue(entry data.Entry, key string) any { return entry.Get(key) }

// SetEntryValue implements [persister.Store].
func (s *Store) SetEntryValue(entry data.Entry, key string, value any) { entry.Set(key, value) }

// RetrieveEntry implements [persister.Store].
func (s *Store) RetrieveEntry(ctx context.Context, _ *mapping.Entity, family string, key any) (data.Entry, bool, error) {
	k, err := s.itemKey(entryPK(family, key), entrySort)
	if err != nil {
		return nil, false, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("getting %s entry %v: %w", family, key, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var item entryItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, err
	}
	e, err := decodeEntry(item.Data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// RetrieveEntries implements [persister.BatchRetriever].
func (s *Store) RetrieveEntries(ctx context.Context, _ *mapping.Entity, family string, keys []any) ([]data.Entry, []bool, error) {
	entries := make([]data.Entry, len(keys))
	found := make([]bool, len(keys))
	for chunk := range slices.Chunk(indexes(len(keys)), batchGetLimit) {
		positions := make(map[string][]int, len(chunk))
		var request []map[string]types.AttributeValue
		for _, i := range chunk {
			pk := entryPK(family, keys[i])
			if _, ok := positions[pk]; !ok {
				k, err := s.itemKey(pk, entrySort)
				if err != nil {
					return nil, nil, err
				}
				request = append(request, k)
			}
			positions[pk] = append(positions[pk], i)
		}
		pending := map[string]types.KeysAndAttributes{
			s.table: {Keys: request, ConsistentRead: aws.Bool(true)},
		}
		for len(pending) > 0 {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, nil, fmt.Errorf("getting %s entries: %w", family, err)
			}
			var items []entryItem
			if err := attributevalue.UnmarshalListOfMaps(out.Responses[s.table], &items); err != nil {
				return nil, nil, err
			}
			for _, item := range items {
				for _, i := range positions[item.PK] {
					if entries[i], err = decodeEntry(item.Data); err != nil {
						return nil, nil, err
					}
					found[i] = true
				}
			}
			pending = out.UnprocessedKeys
		}
	}
	return entries, found, nil
}

func indexes(n int) []int {
	res := make([]int, n)
	for i := range res {
		res[i] = i
	}
	return res
}

func (s *Store) entryItem(entity *mapping.Entity, key any, entry data.Entry) (map[string]types.AttributeValue, error) {
	k, err := encode(key)
	if err != nil {
		return nil, err
	}
	d, err := encode(entry)
	if err != nil {
		return nil, err
	}
	item := entryItem{
		PK:     entryPK(entity.Family(), key),
		SK:     entrySort,
		Family: entity.Family(),
		Key:    k,
		Data:   d,
	}
	if v := entity.Version(); v != nil {
		if n, ok := version(entry.Get(v.Key())); ok {
			item.Version = &n
		}
	}
	return attributevalue.MarshalMap(item)
}

// StoreEntry implements [persister.Store]. The write fails when an entry
// with the same key exists.
func (s *Store) StoreEntry(ctx context.Context, entity *mapping.Entity, _ domain.EntityAccess, key any, entry data.Entry) (any, error) {
	family := entity.Family()
	var err error
	if key == nil {
		if key, err = s.nextSequence(ctx, family); err != nil {
			return nil, err
		}
	} else if err := s.observe(ctx, family, key); err != nil {
		return nil, err
	}
	item, err := s.entryItem(entity, key, entry)
	if err != nil {
		return nil, err
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if conditionFailed(err) {
		return nil, fmt.Errorf("%w: %s entry %v already exists", domain.ErrDataIntegrity, family, key)
	}
	if err != nil {
		return nil, fmt.Errorf("storing %s entry %v: %w", family, key, err)
	}
	s.logger.Debug("entry stored", zap.String("family", family), zap.Any("key", key))
	return key, nil
}

// UpdateEntry implements [persister.Store]. Versioned entries are only
// written when the stored version precedes the new one. Missing entries are
// created.
func (s *Store) UpdateEntry(ctx context.Context, entity *mapping.Entity, _ domain.EntityAccess, key any, entry data.Entry) error {
	family := entity.Family()
	item, err := s.entryItem(entity, key, entry)
	if err != nil {
		return err
	}
	in := &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: item}
	if v := entity.Version(); v != nil {
		if n, ok := version(entry.Get(v.Key())); ok {
			cond := expression.Name("PK").AttributeNotExists().
				Or(expression.Name("Version").Equal(expression.Value(n - 1)))
			expr, err := expression.NewBuilder().WithCondition(cond).Build()
			if err != nil {
				return err
			}
			in.ConditionExpression = expr.Condition()
			in.ExpressionAttributeNames = expr.Names()
			in.ExpressionAttributeValues = expr.Values()
		}
	}
	_, err = s.client.PutItem(ctx, in)
	if conditionFailed(err) {
		return fmt.Errorf("%w: %s entry %v", domain.ErrOptimisticLocking, family, key)
	}
	if err != nil {
		return fmt.Errorf("updating %s entry %v: %w", family, key, err)
	}
	return nil
}

func version(v any) (int64, bool) {
	switch t := data.Native(v).(type) {
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	}
	return 0, false
}

// DeleteEntry implements [persister.Store].
func (s *Store) DeleteEntry(ctx context.Context, family string, key any) error {
	k, err := s.itemKey(entryPK(family, key), entrySort)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(s.table), Key: k})
	if err != nil {
		return fmt.Errorf("deleting %s entry %v: %w", family, key, err)
	}
	return nil
}

// DeleteEntries implements [persister.BatchDeleter].
func (s *Store) DeleteEntries(ctx context.Context, family string, keys []any) error {
	for chunk := range slices.Chunk(keys, batchWriteLimit) {
		seen := make(map[string]bool, len(chunk))
		var requests []types.WriteRequest
		for _, key := range chunk {
			pk := entryPK(family, key)
			if seen[pk] {
				continue
			}
			seen[pk] = true
			k, err := s.itemKey(pk, entrySort)
			if err != nil {
				return err
			}
			requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
		}
		pending := map[string][]types.WriteRequest{s.table: requests}
		for len(pending) > 0 {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("deleting %s entries: %w", family, err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

func (s *Store) nextSequence(ctx context.Context, family string) (int64, error) {
	k, err := s.itemKey(family, seqSort)
	if err != nil {
		return 0, err
	}
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("Seq"), expression.Value(1))).
		Build()
	if err != nil {
		return 0, err
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       k,
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("incrementing %s sequence: %w", family, err)
	}
	var seq seqItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &seq); err != nil {
		return 0, err
	}
	return seq.Seq, nil
}

// observe keeps the family sequence past integer keys chosen elsewhere.
func (s *Store) observe(ctx context.Context, family string, key any) error {
	n, ok := key.(int64)
	if !ok {
		return nil
	}
	k, err := s.itemKey(family, seqSort)
	if err != nil {
		return err
	}
	cond := expression.Name("Seq").AttributeNotExists().
		Or(expression.Name("Seq").LessThan(expression.Value(n)))
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("Seq"), expression.Value(n))).
		WithCondition(cond).
		Build()
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       k,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil && !conditionFailed(err) {
		return fmt.Errorf("advancing %s sequence: %w", family, err)
	}
	return nil
}

// GenerateIdentifier implements [persister.Store]. Integer identifiers come
// from a sequence item per family.
func (s *Store) GenerateIdentifier(ctx context.Context, entity *mapping.Entity, _ data.Entry) (any, error) {
	id := entity.Root().Identity()
	if id == nil {
		return nil, nil
	}
	typ := id.Type()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return s.nextSequence(ctx, entity.Family())
	}
	return s.ids.GenerateID(ctx, typ)
}

// ScanKeys implements [persister.KeyScanner]. It scans the whole table, so
// it is only used by queries no index can answer.
func (s *Store) ScanKeys(ctx context.Context, _ *mapping.Entity, family string) ([]any, error) {
	filter := expression.Name("Family").Equal(expression.Value(family)).
		And(expression.Name("SK").Equal(expression.Value(entrySort)))
	expr, err := expression.NewBuilder().
		WithFilter(filter).
		WithProjection(expression.NamesList(expression.Name("Key"))).
		Build()
	if err != nil {
		return nil, err
	}
	pages := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var keys []any
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", family, err)
		}
		var items []entryItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			k, err := decode(item.Key)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, s.compare)
	return keys, nil
}

func (s *Store) compare(a, b any) int {
	c, err := s.comparer.Compare(a, b)
	if err != nil {
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return c
}

// PropertyIndexer implements [persister.Store].
func (s *Store) PropertyIndexer(p mapping.Property) domain.PropertyValueIndexer {
	if !p.Mapping().Index {
		return nil
	}
	return &PropertyIndex{store: s, root: "idx#" + p.Owner().Family() + "." + p.Key()}
}

// AssociationIndexer implements [persister.Store].
func (s *Store) AssociationIndexer(_ data.Entry, p *mapping.OneToMany) domain.AssociationIndexer {
	return &AssociationIndex{
		store:  s,
		root:   "assoc#" + p.Owner().Family() + "." + p.Key(),
		entity: p.AssociatedEntity(),
	}
}

func (s *Store) hashString(v any) (string, error) {
	h, err := s.hasher.Hash(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(h, 16), nil
}
