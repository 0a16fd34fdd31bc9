package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sony/gobreaker"
)

// DBClient is the part of the DynamoDB API used by the store. It is
// satisfied by *dynamodb.Client.
type DBClient interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ DBClient = (*dynamodb.Client)(nil)

func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// breakerClient sends every call through a circuit breaker. Failed
// conditions and cancelled contexts do not count as failures.
type breakerClient struct {
	next DBClient
	cb   *gobreaker.CircuitBreaker
}

func newBreakerClient(next DBClient, st gobreaker.Settings) *breakerClient {
	st.IsSuccessful = func(err error) bool {
		return err == nil || conditionFailed(err) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	}
	return &breakerClient{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func guard[O any](cb *gobreaker.CircuitBreaker, fn func() (O, error)) (O, error) {
	res, err := cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		var zero O
		return zero, err
	}
	return res.(O), nil
}

func (c *breakerClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return guard(c.cb, func() (*dynamodb.GetItemOutput, error) { return c.next.GetItem(ctx, in, optFns...) })
}

func (c *breakerClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return guard(c.cb, func() (*dynamodb.PutItemOutput, error) { return c.next.PutItem(ctx, in, optFns...) })
}

func (c *breakerClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return guard(c.cb, func() (*dynamodb.DeleteItemOutput, error) { return c.next.DeleteItem(ctx, in, optFns...) })
}

func (c *breakerClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return guard(c.cb, func() (*dynamodb.UpdateItemOutput, error) { return c.next.UpdateItem(ctx, in, optFns...) })
}

func (c *breakerClient) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return guard(c.cb, func() (*dynamodb.QueryOutput, error) { return c.next.Query(ctx, in, optFns...) })
}

func (c *breakerClient) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return guard(c.cb, func() (*dynamodb.ScanOutput, error) { return c.next.Scan(ctx, in, optFns...) })
}

func (c *breakerClient) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	return guard(c.cb, func() (*dynamodb.BatchGetItemOutput, error) { return c.next.BatchGetItem(ctx, in, optFns...) })
}

func (c *breakerClient) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return guard(c.cb, func() (*dynamodb.BatchWriteItemOutput, error) { return c.next.BatchWriteItem(ctx, in, optFns...) })
}
