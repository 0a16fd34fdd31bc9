// Package config reads the datastore configuration from the environment.
//
// Every key can be given as an environment variable with the GEDM_ prefix,
// dashes replaced by underscores, for example GEDM_REDIS_ADDR. Files .env and
// .env.local in the working directory are loaded first when present.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

// ErrInvalid is wrapped by the errors of [Config.Validate].
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration of a datastore.
type Config struct {
	Store            string        `mapstructure:"store"`
	RedisAddr        string        `mapstructure:"redis-addr"`
	RedisPassword    string        `mapstructure:"redis-password"`
	RedisDB          int           `mapstructure:"redis-db"`
	RedisPrefix      string        `mapstructure:"redis-prefix"`
	DynamoDBTable    string        `mapstructure:"dynamodb-table"`
	DynamoDBRegion   string        `mapstructure:"dynamodb-region"`
	DynamoDBEndpoint string        `mapstructure:"dynamodb-endpoint"`
	MemorySnapshot   string        `mapstructure:"memory-snapshot"`
	LockTimeout      time.Duration `mapstructure:"lock-timeout"`
	RangeCacheTTL    time.Duration `mapstructure:"range-cache-ttl"`
	FlushMode        string        `mapstructure:"flush-mode"`
	LogLevel         string        `mapstructure:"log-level"`
}

var defaults = map[string]any{
	"store":             StoreMemory,
	"redis-addr":        "localhost:6379",
	"redis-password":    "",
	"redis-db":          0,
	"redis-prefix":      "gedm",
	"dynamodb-table":    "",
	"dynamodb-region":   "",
	"dynamodb-endpoint": "",
	"memory-snapshot":   "",
	"lock-timeout":      30 * time.Second,
	"range-cache-ttl":   time.Minute,
	"flush-mode":        "auto",
	"log-level":         "info",
}

// Keys returns the configuration keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// New returns a viper instance reading the environment, after loading the
// env files.
func New() *viper.Viper {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix("gedm")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the values of c.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StoreDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("%w: dynamodb-table is required by the dynamodb store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store)
	}
	if c.FlushMode != "auto" && c.FlushMode != "commit" {
		return fmt.Errorf("%w: unknown flush mode %q", ErrInvalid, c.FlushMode)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.LockTimeout < 0 || c.RangeCacheTTL < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	return nil
}

// Flush returns the configured flush mode.
func (c Config) Flush() domain.FlushMode {
	if c.FlushMode == "commit" {
		return domain.FlushCommit
	}
	return domain.FlushAuto
}

// Logger builds a production logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// Map returns the configuration as key value pairs, with the Redis password
// masked.
func (c Config) Map() map[string]any {
	pw := ""
	if c.RedisPassword != "" {
		pw = "***"
	}
	return map[string]any{
		"store":             c.Store,
		"redis-addr":        c.RedisAddr,
		"redis-password":    pw,
		"redis-db":          c.RedisDB,
		"redis-prefix":      c.RedisPrefix,
		"dynamodb-table":    c.DynamoDBTable,
		"dynamodb-region":   c.DynamoDBRegion,
		"dynamodb-endpoint": c.DynamoDBEndpoint,
		"memory-snapshot":   c.MemorySnapshot,
		"lock-timeout":      c.LockTimeout,
		"range-cache-ttl":   c.RangeCacheTTL,
		"flush-mode":        c.FlushMode,
		"log-level":         c.LogLevel,
	}
}
