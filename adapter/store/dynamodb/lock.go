package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// ErrNotLocked is returned when unlocking an entry this store did not lock.
var ErrNotLocked = errors.New("entry is not locked")

type lockItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Token     string `dynamodbav:"Token"`
	ExpiresAt int64  `dynamodbav:"ExpiresAt"`
	TTL       int64  `dynamodbav:"TTL"`
}

func lockPK(entity *mapping.Entity, key any) string {
	return "lock#" + entryPK(entity.Family(), key)
}

// LockEntry implements [persister.Locker]. A lock item is written unless a
// live one exists; expired locks are taken over.
func (s *Store) LockEntry(ctx context.Context, entity *mapping.Entity, key any, timeout time.Duration) error {
	pk := lockPK(entity, key)
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)
	for {
		ok, err := s.tryLock(ctx, pk, token)
		if err != nil {
			return err
		}
		if ok {
			s.tokens.Store(pk, token)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s entry %v", domain.ErrCannotAcquireLock, entity.Name(), key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(s.lockRetry, max(time.Until(deadline), time.Millisecond))):
		}
	}
}

func (s *Store) tryLock(ctx context.Context, pk, token string) (bool, error) {
	now := s.clock.GetTime()
	expires := now.Add(s.lockTTL)
	item, err := attributevalue.MarshalMap(lockItem{
		PK:        pk,
		SK:        lockSort,
		Token:     token,
		ExpiresAt: expires.UnixMilli(),
		TTL:       expires.Unix(),
	})
	if err != nil {
		return false, err
	}
	cond := expression.Name("PK").AttributeNotExists().
		Or(expression.Name("ExpiresAt").LessThan(expression.Value(now.UnixMilli())))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return false, err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if conditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", pk, err)
	}
	return true, nil
}

// UnlockEntry implements [persister.Locker].
func (s *Store) UnlockEntry(ctx context.Context, entity *mapping.Entity, key any) error {
	pk := lockPK(entity, key)
	token, ok := s.tokens.LoadAndDelete(pk)
	if !ok {
		return ErrNotLocked
	}
	k, err := s.itemKey(pk, lockSort)
	if err != nil {
		return err
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("Token").Equal(expression.Value(token))).
		Build()
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.table),
		Key:                       k,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if conditionFailed(err) {
		s.logger.Warn("lock expired before release", zap.String("lock", pk))
		return ErrNotLocked
	}
	return err
}
