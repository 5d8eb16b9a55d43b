package config

import (
	"fmt"
	"time"

	"github.com/turtacn/trustkit/internal/infrastructure/persistence/redis"
	"github.com/turtacn/trustkit/internal/monitoring"
	"github.com/turtacn/trustkit/pkg/constants"
	"github.com/turtacn/trustkit/pkg/errors"
	"github.com/turtacn/trustkit/pkg/token"
	"github.com/turtacn/trustkit/pkg/ttlexpr"
)

// Config holds the toolkit configuration.
type Config struct {
	Token   TokenConfig              `mapstructure:"token"`
	Cache   CacheConfig              `mapstructure:"cache"`
	Redis   redis.Config             `mapstructure:"redis"`
	Log     LogConfig                `mapstructure:"log"`
	Metrics MetricsConfig            `mapstructure:"metrics"`
	Tracing monitoring.TracingConfig `mapstructure:"tracing"`
}

// TokenConfig configures the token service.
type TokenConfig struct {
	// Sign is the HMAC signing secret. Required.
	Sign string `mapstructure:"sign"`
	// Time is the lifetime expression in seconds, e.g. "15 * 24 * 60 * 60".
	Time string `mapstructure:"time"`
	// KeyStr enables payload encryption when set. It must be 16, 24 or 32 bytes.
	KeyStr string `mapstructure:"keystr"`
}

// Options converts the section to token service options.
func (c TokenConfig) Options() token.Options {
	return token.Options{Sign: c.Sign, Time: c.Time, KeyStr: c.KeyStr}
}

// CacheBackend selects the store behind the accessor.
type CacheBackend string

const (
	CacheBackendRedis  CacheBackend = "redis"
	CacheBackendMemory CacheBackend = "memory"
)

type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	LockShards int           `mapstructure:"lock_shards"`
	Backend    CacheBackend  `mapstructure:"backend"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// Validate checks the configuration and fails on the first problem.
func (c *Config) Validate() error {
	if c.Token.Sign == "" {
		return errors.ErrConfiguration("token.sign is required")
	}
	ttl, err := ttlexpr.Evaluate(c.Token.Time)
	if err != nil {
		return err
	}
	if ttl < 0 {
		return errors.ErrConfiguration(fmt.Sprintf("token.time %q evaluates to a negative lifetime", c.Token.Time))
	}
	switch len(c.Token.KeyStr) {
	case 0, 16, 24, 32:
	default:
		return errors.ErrConfiguration(fmt.Sprintf("token.keyStr must be 16, 24 or 32 bytes, got %d", len(c.Token.KeyStr)))
	}

	if c.Cache.TTL <= 0 {
		return errors.ErrConfiguration("cache.ttl must be positive")
	}
	if c.Cache.LockShards <= 0 {
		return errors.ErrConfiguration("cache.lock_shards must be positive")
	}
	switch c.Cache.Backend {
	case CacheBackendRedis:
		if err := c.Redis.Validate(); err != nil {
			return errors.WrapError(err, constants.ErrCodeConfiguration, "invalid redis configuration")
		}
	case CacheBackendMemory:
	default:
		return errors.ErrConfiguration(fmt.Sprintf("unsupported cache.backend %q", c.Cache.Backend))
	}

	switch constants.LogLevel(c.Log.Level) {
	case constants.LogLevelDebug, constants.LogLevelInfo, constants.LogLevelWarn, constants.LogLevelError:
	default:
		return errors.ErrConfiguration(fmt.Sprintf("unsupported log.level %q", c.Log.Level))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.ErrConfiguration("tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}
