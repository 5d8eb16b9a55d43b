// Package config loads trustkit settings from defaults, an optional YAML file and
// TRUSTKIT_* environment variables, and re-applies token lifetime changes while a
// process runs.
package config

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/trustkit/pkg/constants"
	"github.com/turtacn/trustkit/pkg/errors"
	"github.com/turtacn/trustkit/pkg/logger"
)

// Loader reads configuration through a private viper instance.
type Loader struct {
	v   *viper.Viper
	log logger.Logger
}

// NewLoader prepares a loader. configFile, when set, is read instead of searching
// for trustkit.yaml in the working directory and /etc/trustkit.
func NewLoader(configFile string, log logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(constants.ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/trustkit/")
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log.WithComponent("config")}
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv can override it on Unmarshal.
	v.SetDefault("token.sign", "")
	v.SetDefault("token.time", constants.DefaultTTLExpression)
	v.SetDefault("token.keystr", "")

	v.SetDefault("cache.ttl", constants.DefaultCacheTTL)
	v.SetDefault("cache.lock_shards", constants.DefaultLockShards)
	v.SetDefault("cache.backend", string(CacheBackendRedis))
	v.SetDefault("cache.key_prefix", "")

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("log.level", string(constants.LogLevelInfo))
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.namespace", constants.DefaultMetricsNamespace)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", constants.DefaultServiceName)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads and validates the configuration. A missing config file is not an
// error when the loader searches for one.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.WrapError(err, constants.ErrCodeConfiguration, "failed to read config file")
		}
		l.log.Debug(context.Background(), "No config file found, using defaults and environment")
	}
	return l.decode()
}

// Set overrides a single key, taking precedence over file and environment.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// ConfigFile returns the file in use, or "" when none was read.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeConfiguration, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TTLSetter is the part of the token service a reload updates.
type TTLSetter interface {
	SetTTLExpression(expr string) error
}

// Watch re-reads the config file on change and applies token.time to svc. A
// change that fails validation is logged and leaves the running lifetime intact.
// onChange, when non-nil, receives every configuration that passed validation.
func (l *Loader) Watch(svc TTLSetter, onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := l.decode()
		if err != nil {
			l.log.Error(ctx, "Ignoring invalid configuration change", err, logger.String("file", e.Name))
			return
		}
		if err := svc.SetTTLExpression(cfg.Token.Time); err != nil {
			l.log.Error(ctx, "Failed to apply token lifetime", err, logger.String("expression", cfg.Token.Time))
			return
		}
		l.log.Info(ctx, "Configuration reloaded",
			logger.String("file", e.Name),
			logger.String("token_time", cfg.Token.Time),
		)
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}
