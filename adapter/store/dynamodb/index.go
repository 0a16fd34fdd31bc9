package dynamodb

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

var _ domain.AssociationIndexer = (*AssociationIndex)(nil)

// maxIndexRetries bounds the attempts to append to a concurrently modified
// association.
const maxIndexRetries = 5

type indexItem struct {
	PK  string `dynamodbav:"PK"`
	SK  string `dynamodbav:"SK"`
	Key []byte `dynamodbav:"Key"`
}

// PropertyIndex stores one item per indexed value and entry key, sharing
// the partition of the value hash. It answers equality only; range criteria
// fall back to a scan.
type PropertyIndex struct {
	store *Store
	root  string
}

func (i *PropertyIndex) item(value, key any) (indexItem, error) {
	h, err := i.store.hashString(value)
	if err != nil {
		return indexItem{}, err
	}
	k, err := encode(key)
	if err != nil {
		return indexItem{}, err
	}
	return indexItem{PK: i.root + "#" + h, SK: keyString(key), Key: k}, nil
}

// Index implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Index(ctx context.Context, value any, key any) error {
	if value == nil {
		return nil
	}
	item, err := i.item(value, key)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	_, err = i.store.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(i.store.table), Item: av})
	return err
}

// Deindex implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Deindex(ctx context.Context, value any, key any) error {
	if value == nil {
		return nil
	}
	item, err := i.item(value, key)
	if err != nil {
		return err
	}
	k, err := i.store.itemKey(item.PK, item.SK)
	if err != nil {
		return err
	}
	_, err = i.store.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(i.store.table), Key: k})
	return err
}

// Query implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Query(ctx context.Context, value any) ([]any, error) {
	h, err := i.store.hashString(value)
	if err != nil {
		return nil, err
	}
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("PK").Equal(expression.Value(i.root + "#" + h))).
		Build()
	if err != nil {
		return nil, err
	}
	pages := dynamodb.NewQueryPaginator(i.store.client, &dynamodb.QueryInput{
		TableName:                 aws.String(i.store.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})
	var keys []any
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying index %s: %w", i.root, err)
		}
		var items []indexItem
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
	return keys, nil
}

type assocItem struct {
	PK   string `dynamodbav:"PK"`
	SK   string `dynamodbav:"SK"`
	Keys []byte `dynamodbav:"Keys"`
	Rev  int64  `dynamodbav:"Rev"`
}

// AssociationIndex keeps the member keys of an association in one item per
// owner. Writes are guarded by a revision number.
type AssociationIndex struct {
	store  *Store
	root   string
	entity *mapping.Entity
}

func (a *AssociationIndex) pk(ownerKey any) string {
	return a.root + "#" + keyString(ownerKey)
}

func (a *AssociationIndex) load(ctx context.Context, ownerKey any) (assocItem, []any, error) {
	k, err := a.store.itemKey(a.pk(ownerKey), assocSort)
	if err != nil {
		return assocItem{}, nil, err
	}
	out, err := a.store.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.store.table),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return assocItem{}, nil, err
	}
	item := assocItem{PK: a.pk(ownerKey), SK: assocSort}
	if out.Item == nil {
		return item, nil, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return assocItem{}, nil, err
	}
	keys, err := decodeKeys(item.Keys)
	return item, keys, err
}

func (a *AssociationIndex) save(ctx context.Context, item assocItem, keys []any) error {
	b, err := encode(keys)
	if err != nil {
		return err
	}
	cond := expression.Name("PK").AttributeNotExists()
	if item.Rev > 0 {
		cond = expression.Name("Rev").Equal(expression.Value(item.Rev))
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return err
	}
	item.Keys = b
	item.Rev++
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	_, err = a.store.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(a.store.table),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return err
}

// Query implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) Query(ctx context.Context, ownerKey any) ([]any, error) {
	_, keys, err := a.load(ctx, ownerKey)
	return keys, err
}

// DoesReturnKeys implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) DoesReturnKeys() bool { return true }

// IndexedEntity implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) IndexedEntity() *mapping.Entity { return a.entity }

// Index implements [domain.AssociationIndexer].
func (a *AssociationIndex) Index(ctx context.Context, ownerKey any, keys []any) error {
	return a.update(ctx, ownerKey, func([]any) ([]any, bool) { return keys, true })
}

// IndexOne implements [domain.AssociationIndexer].
func (a *AssociationIndex) IndexOne(ctx context.Context, ownerKey any, key any) error {
	return a.update(ctx, ownerKey, func(keys []any) ([]any, bool) {
		if slices.ContainsFunc(keys, func(k any) bool { return a.store.compare(k, key) == 0 }) {
			return nil, false
		}
		return append(keys, key), true
	})
}

func (a *AssociationIndex) update(ctx context.Context, ownerKey any, fn func([]any) ([]any, bool)) error {
	for range maxIndexRetries {
		item, keys, err := a.load(ctx, ownerKey)
		if err != nil {
			return err
		}
		next, changed := fn(keys)
		if !changed {
			return nil
		}
		err = a.save(ctx, item, next)
		if !conditionFailed(err) {
			return err
		}
	}
	return fmt.Errorf("%w: association %s of %v keeps changing", domain.ErrOptimisticLocking, a.root, ownerKey)
}

// Deindex implements [domain.AssociationIndexer].
func (a *AssociationIndex) Deindex(ctx context.Context, ownerKey any) error {
	k, err := a.store.itemKey(a.pk(ownerKey), assocSort)
	if err != nil {
		return err
	}
	_, err = a.store.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(a.store.table), Key: k})
	return err
}
