// Package config loads kernel configuration from a file and KERNEL_ prefixed
// environment variables, validates it and optionally hot reloads it.
package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KERNEL_DATABASE_DSN.
const EnvPrefix = "KERNEL"

// Config is the top level kernel configuration.
type Config struct {
	Service  string         `mapstructure:"service"  validate:"required"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Bus      BusConfig      `mapstructure:"bus"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Azure    AzureConfig    `mapstructure:"azure"`
}

// LogConfig controls log level, format and file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig selects the gorm driver and pool settings.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres mysql sqlite"`
	DSN             string        `mapstructure:"dsn"    validate:"required"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
}

// RedisConfig is used by the idempotency store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// HTTPConfig configures the hosted HTTP server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

// BusConfig tunes the mediator.
type BusConfig struct {
	SequentialNotifications bool   `mapstructure:"sequential_notifications"`
	DefaultConnection       string `mapstructure:"default_connection"`
}

// OutboxConfig tunes the outbox relay.
type OutboxConfig struct {
	Interval   time.Duration `mapstructure:"interval"    validate:"gt=0"`
	BatchSize  int           `mapstructure:"batch_size"  validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gt=0"`
}

// BreakerConfig configures circuit breakers around transports.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
}

// RabbitMQConfig configures the AMQP transport.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
}

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL        string `mapstructure:"url"`
	QueueGroup string `mapstructure:"queue_group"`
}

// KafkaConfig configures the Kafka transport.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	GroupID  string   `mapstructure:"group_id"`
}

// AzureConfig configures the Azure Service Bus transport.
type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Queue            string `mapstructure:"queue"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file::memory:?cache=shared")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "idempotency")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.leeway", 30*time.Second)
	v.SetDefault("bus.sequential_notifications", false)
	v.SetDefault("bus.default_connection", "")
	v.SetDefault("outbox.interval", 5*time.Second)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.min_requests", 5)
	v.SetDefault("breaker.failure_ratio", 0.6)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "")
	v.SetDefault("rabbitmq.queue", "")
	v.SetDefault("rabbitmq.prefetch", 16)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.queue_group", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "")
	v.SetDefault("kafka.group_id", "")
	v.SetDefault("azure.connection_string", "")
	v.SetDefault("azure.queue", "")
}

// Loader owns a viper instance and the last valid Config it produced.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate
	logger   *slog.Logger

	mu      sync.RWMutex
	current *Config
	hooks   []func(*Config)
}

// Load reads path (toml, yaml or json by extension) plus environment overrides.
// An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	l, err := NewLoader(path, nil)
	if err != nil {
		return nil, err
	}

	return l.Config(), nil
}

// NewLoader loads and validates the configuration once.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	l := &Loader{v: v, validate: validator.New(), logger: logger}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.current = cfg

	return l, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := l.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Config returns the last valid configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.current
}

// OnReload registers fn to run with every successfully reloaded configuration.
func (l *Loader) OnReload(fn func(*Config)) {
	l.mu.Lock()
	l.hooks = append(l.hooks, fn)
	l.mu.Unlock()
}

// Watch reloads the file on change. Invalid changes are logged and ignored,
// keeping the previous configuration.
func (l *Loader) Watch() {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info("config change detected", "file", e.Name, "op", e.Op.String())

		cfg, err := l.decode()
		if err != nil {
			l.logger.Error("config reload rejected", "error", err)
			return
		}

		l.mu.Lock()
		l.current = cfg
		hooks := slices.Clone(l.hooks)
		l.mu.Unlock()

		for _, h := range hooks {
			h(cfg)
		}

		l.logger.Info("config reloaded")
	})
	l.v.WatchConfig()
}
