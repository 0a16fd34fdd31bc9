package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vinicius-lino-figueiredo/gedm/config"
)

// Version of the command.
const Version = "0.1.0"

func newRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:   "gedm",
		Short: "inspect gedm stores",
		Long: fmt.Sprintf(`gedm (v%s)

Reads the datastore configuration from GEDM_ environment variables,
.env files or flags, and inspects the entries kept in the configured store.`, Version),
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.String("store", config.StoreMemory, "store kind: memory, redis or dynamodb")
	flags.String("redis-addr", "localhost:6379", "comma separated Redis addresses")
	flags.Int("redis-db", 0, "Redis database")
	flags.String("redis-prefix", "gedm", "prefix of the Redis keys")
	flags.String("dynamodb-table", "", "DynamoDB table")
	flags.String("dynamodb-region", "", "AWS region of the DynamoDB table")
	flags.String("dynamodb-endpoint", "", "DynamoDB endpoint override")
	flags.String("memory-snapshot", "", "snapshot file of the memory store")
	flags.String("log-level", "info", "log level")
	cobra.CheckErr(v.BindPFlags(flags))

	root.AddCommand(newVersionCmd(), newConfigCmd(v), newEntryCmd(v))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gedm",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gedm v%s\n", Version)
		},
	}
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(v)
			if err != nil {
				return err
			}
			m := c.Map()
			keys := config.Keys()
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", k, m[k])
			}
			return nil
		},
	}
}
