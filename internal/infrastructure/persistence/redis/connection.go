// Package redis builds the Redis client behind the cache store.
// It supports standalone, cluster, and sentinel deployments.
package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/trustkit/pkg/logger"
)

// Mode is a Redis deployment mode.
type Mode string

const (
	ModeStandalone Mode = "standalone"
	ModeCluster    Mode = "cluster"
	ModeSentinel   Mode = "sentinel"
)

// Config holds Redis connection settings. Zero values are replaced by defaults on
// Connect.
type Config struct {
	Mode Mode `mapstructure:"mode"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Addrs lists cluster nodes or sentinels, depending on Mode.
	Addrs      []string `mapstructure:"addrs"`
	MasterName string   `mapstructure:"master_name"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxIdleTime  time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`

	EnableTLS     bool   `mapstructure:"enable_tls"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	TLSCACertFile string `mapstructure:"tls_ca_cert_file"`
	TLSCertFile   string `mapstructure:"tls_cert_file"`
	TLSKeyFile    string `mapstructure:"tls_key_file"`
}

// Validate checks mode-specific required settings.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", ModeStandalone:
	case ModeCluster:
		if len(c.Addrs) == 0 {
			return fmt.Errorf("redis cluster mode requires addrs")
		}
	case ModeSentinel:
		if len(c.Addrs) == 0 {
			return fmt.Errorf("redis sentinel mode requires addrs")
		}
		if c.MasterName == "" {
			return fmt.Errorf("redis sentinel mode requires master_name")
		}
	default:
		return fmt.Errorf("unsupported redis mode: %s", c.Mode)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("redis tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Mode == "" {
		out.Mode = ModeStandalone
	}
	if out.Host == "" {
		out.Host = "localhost"
	}
	if out.Port == 0 {
		out.Port = 6379
	}
	if out.PoolSize == 0 {
		out.PoolSize = 10
	}
	if out.MaxIdleTime == 0 {
		out.MaxIdleTime = 5 * time.Minute
	}
	if out.MaxLifetime == 0 {
		out.MaxLifetime = time.Hour
	}
	if out.DialTimeout == 0 {
		out.DialTimeout = 5 * time.Second
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = 3 * time.Second
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = 3 * time.Second
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = 3
	}
	return out
}

// Connection owns a Redis client for the lifetime of the process.
type Connection struct {
	config Config
	log    logger.Logger

	mu     sync.Mutex
	client redis.UniversalClient
}

// NewConnection creates a connection manager. Nothing is dialed until Connect.
func NewConnection(config Config, log logger.Logger) *Connection {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Connection{
		config: config.withDefaults(),
		log:    log.WithComponent("redis"),
	}
}

// Connect builds the client for the configured mode and pings it.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	if err := c.config.Validate(); err != nil {
		return err
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		c.log.Error(ctx, "Redis ping failed", err, logger.String("mode", string(c.config.Mode)))
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.client = client
	c.log.Info(ctx, "Redis connection established",
		logger.String("mode", string(c.config.Mode)),
		logger.Int("pool_size", c.config.PoolSize),
	)
	return nil
}

func (c *Connection) newClient() (redis.UniversalClient, error) {
	var tlsConfig *tls.Config
	if c.config.EnableTLS {
		var err error
		if tlsConfig, err = c.buildTLSConfig(); err != nil {
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
	}

	cfg := c.config
	switch cfg.Mode {
	case ModeCluster:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           cfg.Addrs,
			Password:        cfg.Password,
			PoolSize:        cfg.PoolSize,
			MinIdleConns:    cfg.MinIdleConns,
			ConnMaxIdleTime: cfg.MaxIdleTime,
			ConnMaxLifetime: cfg.MaxLifetime,
			DialTimeout:     cfg.DialTimeout,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			MaxRetries:      cfg.MaxRetries,
			TLSConfig:       tlsConfig,
		}), nil
	case ModeSentinel:
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:      cfg.MasterName,
			SentinelAddrs:   cfg.Addrs,
			Password:        cfg.Password,
			DB:              cfg.DB,
			PoolSize:        cfg.PoolSize,
			MinIdleConns:    cfg.MinIdleConns,
			ConnMaxIdleTime: cfg.MaxIdleTime,
			ConnMaxLifetime: cfg.MaxLifetime,
			DialTimeout:     cfg.DialTimeout,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			MaxRetries:      cfg.MaxRetries,
			TLSConfig:       tlsConfig,
		}), nil
	default:
		return redis.NewClient(&redis.Options{
			Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password:        cfg.Password,
			DB:              cfg.DB,
			PoolSize:        cfg.PoolSize,
			MinIdleConns:    cfg.MinIdleConns,
			ConnMaxIdleTime: cfg.MaxIdleTime,
			ConnMaxLifetime: cfg.MaxLifetime,
			DialTimeout:     cfg.DialTimeout,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			MaxRetries:      cfg.MaxRetries,
			TLSConfig:       tlsConfig,
		}), nil
	}
}

func (c *Connection) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.config.TLSSkipVerify, //nolint:gosec // opt-in for test clusters
	}
	if c.config.TLSCACertFile != "" {
		pem, err := os.ReadFile(c.config.TLSCACertFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.config.TLSCACertFile)
		}
		tlsConfig.RootCAs = pool
	}
	if c.config.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.config.TLSCertFile, c.config.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// Client returns the connected client, or nil before Connect succeeds.
func (c *Connection) Client() redis.UniversalClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// HealthCheck pings the server and reports latency and pool statistics.
func (c *Connection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	client := c.Client()
	if client == nil {
		return nil, fmt.Errorf("redis connection not initialized")
	}

	start := time.Now()
	err := client.Ping(ctx).Err()
	health := map[string]interface{}{
		"connected":  err == nil,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		health["error"] = err.Error()
		return health, err
	}

	stats := client.PoolStats()
	health["total_conns"] = stats.TotalConns
	health["idle_conns"] = stats.IdleConns
	health["pool_timeouts"] = stats.Timeouts
	return health, nil
}

// Close releases the client. Closing an unconnected manager is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		c.log.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	c.log.Info(context.Background(), "Redis connection closed")
	return nil
}
