package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vinicius-lino-figueiredo/gedm"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/storage"
	dynamostore "github.com/vinicius-lino-figueiredo/gedm/adapter/store/dynamodb"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/store/memory"
	redisstore "github.com/vinicius-lino-figueiredo/gedm/adapter/store/redis"
	"github.com/vinicius-lino-figueiredo/gedm/config"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type entryReader interface {
	RetrieveEntry(ctx context.Context, entity *mapping.Entity, family string, key any) (data.Entry, bool, error)
}

func newEntryCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "entry <family> <key>",
		Short: "Print one stored entry",
		Long: `Print the native entry kept under a family and key. Integer keys are
looked up as integers. The memory store reads its content from the file
given by --memory-snapshot.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			reader, closeFn, err := openReader(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			e, found, err := reader.RetrieveEntry(ctx, nil, args[0], parseKey(args[1]))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no %s entry with key %s", args[0], args[1])
			}
			printEntry(cmd.OutOrStdout(), e, "")
			return nil
		},
	}
}

func openReader(ctx context.Context, c config.Config) (entryReader, func() error, error) {
	noop := func() error { return nil }
	switch c.Store {
	case config.StoreRedis:
		client, err := gedm.RedisClient(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewStore(client, redisstore.WithPrefix(c.RedisPrefix)), client.Close, nil
	case config.StoreDynamoDB:
		client, err := gedm.DynamoDBClient(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return dynamostore.NewStore(client, c.DynamoDBTable), noop, nil
	default:
		if c.MemorySnapshot == "" {
			return nil, nil, fmt.Errorf("the memory store needs --memory-snapshot")
		}
		store := memory.NewStore()
		loaded, err := store.LoadFile(ctx, storage.NewStorage(), c.MemorySnapshot)
		if err != nil {
			return nil, nil, err
		}
		if !loaded {
			return nil, nil, fmt.Errorf("no snapshot at %s", c.MemorySnapshot)
		}
		return store, noop, nil
	}
}

func parseKey(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func printEntry(w io.Writer, e data.Entry, indent string) {
	keys := slices.Sorted(e.Keys())
	for _, k := range keys {
		switch v := e.Get(k).(type) {
		case data.Entry:
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			printEntry(w, v, indent+"  ")
		default:
			fmt.Fprintf(w, "%s%s: %v\n", indent, k, v)
		}
	}
}
