// Package gedm maps Go structs to key-value stores.
//
// Entity types are registered in a [Datastore], which hands out sessions.
// A session persists, retrieves, deletes and queries instances, keeping an
// identity map so each stored entry is loaded into at most one instance.
//
// The store behind the datastore is chosen by [Open] from a [config.Config]:
// an in-process memory store, Redis or DynamoDB. A memory store given a
// snapshot file is loaded from it on open and saved to it on close.
package gedm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/datastore"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/storage"
	dynamostore "github.com/vinicius-lino-figueiredo/gedm/adapter/store/dynamodb"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/store/memory"
	redisstore "github.com/vinicius-lino-figueiredo/gedm/adapter/store/redis"
	"github.com/vinicius-lino-figueiredo/gedm/config"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

var (
	// ErrIllegalMapping is returned when the mapping of a type is broken.
	ErrIllegalMapping = domain.ErrIllegalMapping
	// ErrUnknownIdentifier is returned when a mapped type has no identifier.
	ErrUnknownIdentifier = domain.ErrUnknownIdentifier
	// ErrDataIntegrity is returned when a required association is missing
	// or a stored entry already exists.
	ErrDataIntegrity = domain.ErrDataIntegrity
	// ErrOptimisticLocking is returned when a versioned entry was changed
	// by someone else.
	ErrOptimisticLocking = domain.ErrOptimisticLocking
	// ErrCannotAcquireLock is returned when an entry lock is not obtained
	// in time.
	ErrCannotAcquireLock = domain.ErrCannotAcquireLock
	// ErrNotPersistent is returned for values whose type is not mapped.
	ErrNotPersistent = domain.ErrNotPersistent
	// ErrNonPointer is returned when a pointer is required.
	ErrNonPointer = domain.ErrNonPointer
	// ErrTargetNil is returned when a nil target is given.
	ErrTargetNil = domain.ErrTargetNil
	// ErrUnsupportedQuery is returned when a store cannot evaluate a query.
	ErrUnsupportedQuery = domain.ErrUnsupportedQuery
)

// ErrDecode is returned when a stored value cannot be converted to a field.
type ErrDecode = domain.ErrDecode

// ErrCannotCompare is returned when two values have no defined order.
type ErrCannotCompare = domain.ErrCannotCompare

// ErrPropertyType is returned when a struct field has a type that cannot be
// mapped.
type ErrPropertyType = mapping.ErrPropertyType

// Datastore creates sessions over one store.
type Datastore = datastore.Datastore

// Open builds a datastore over the store described by cfg. The returned
// datastore still needs its entity types registered and
// [datastore.Datastore.Initialize] called.
func Open(ctx context.Context, cfg config.Config, opts ...datastore.Option) (*Datastore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	base := []datastore.Option{
		datastore.WithLogger(logger),
		datastore.WithFlushMode(cfg.Flush()),
	}
	opts = append(base, opts...)

	switch cfg.Store {
	case config.StoreRedis:
		client, err := RedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := redisstore.NewStore(client,
			redisstore.WithPrefix(cfg.RedisPrefix),
			redisstore.WithRangeCacheTTL(cfg.RangeCacheTTL),
			redisstore.WithLockTTL(cfg.LockTimeout),
			redisstore.WithLogger(logger.Named("redis")),
		)
		return datastore.New(store, append(opts, datastore.WithCloser(client.Close))...), nil
	case config.StoreDynamoDB:
		client, err := DynamoDBClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := dynamostore.NewStore(client, cfg.DynamoDBTable,
			dynamostore.WithLockTTL(cfg.LockTimeout),
			dynamostore.WithLogger(logger.Named("dynamodb")),
		)
		return datastore.New(store, opts...), nil
	default:
		store := memory.NewStore(memory.WithLogger(logger.Named("memory")))
		if cfg.MemorySnapshot == "" {
			return datastore.New(store, opts...), nil
		}
		st := storage.NewStorage()
		if _, err := store.LoadFile(ctx, st, cfg.MemorySnapshot); err != nil {
			return nil, fmt.Errorf("loading snapshot %s: %w", cfg.MemorySnapshot, err)
		}
		save := func() error {
			return store.SaveFile(context.Background(), st, cfg.MemorySnapshot)
		}
		return datastore.New(store, append(opts, datastore.WithCloser(save))...), nil
	}
}

// RedisClient connects to the Redis servers of cfg. Several comma separated
// addresses make a cluster client.
func RedisClient(ctx context.Context, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    strings.Split(cfg.RedisAddr, ","),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// DynamoDBClient builds a DynamoDB client from the default AWS credential
// chain and the region and endpoint of cfg.
func DynamoDBClient(ctx context.Context, cfg config.Config) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.DynamoDBRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.DynamoDBRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws configuration: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}
