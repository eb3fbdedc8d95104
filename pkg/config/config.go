package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ServiceName is the default service name used for config file lookup and logging.
const ServiceName = "stock-service"

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the stock service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Metrics  MetricsConfig
	CORS     CORSConfig
	Log      LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Environment    string        `mapstructure:"environment"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// URL takes precedence over the individual fields when set.
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the libpq connection string, preferring URL when it parses.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		if parsed, err := ParseDatabaseURL(c.URL); err == nil {
			return parsed.ToDSN()
		}
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Validate checks that the database configuration is usable in the given environment.
func (c *DatabaseConfig) Validate(environment string) error {
	if !IsProductionLike(environment) {
		return nil
	}
	if c.URL == "" && c.Host == "" {
		return errors.New("MEDFLOW_DATABASE_URL or MEDFLOW_DATABASE_HOST required in " + environment)
	}
	if c.URL == "" && c.Host == "localhost" {
		return errors.New("localhost database not allowed in " + environment)
	}
	return nil
}

// RabbitMQConfig holds RabbitMQ connection configuration.
// An empty URL disables event publishing.
type RabbitMQConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PrefetchCount  int           `mapstructure:"prefetch_count"`
}

// RedisConfig configures the shared writer lock. An empty Addr keeps locks in-process.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// LedgerConfig holds the stock ledger rules
type LedgerConfig struct {
	Backend            string        `mapstructure:"backend"`
	Timezone           string        `mapstructure:"timezone"`
	NearExpiryDays     int           `mapstructure:"near_expiry_days"`
	DefaultProductName string        `mapstructure:"default_product_name"`
	DefaultUnit        string        `mapstructure:"default_unit"`
	DefaultMinStock    int           `mapstructure:"default_min_stock"`
	DefaultUnitPrice   string        `mapstructure:"default_unit_price"`
	RequireLot         bool          `mapstructure:"require_lot"`
	RequireExpiry      bool          `mapstructure:"require_expiry"`
	ExpiryScanInterval time.Duration `mapstructure:"expiry_scan_interval"`
	SeedDemoData       bool          `mapstructure:"seed_demo_data"`
}

// Location resolves the reference timezone used for calendar-day comparisons.
func (c *LedgerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// UnitPrice parses DefaultUnitPrice; an empty value means zero.
func (c *LedgerConfig) UnitPrice() (decimal.Decimal, error) {
	if c.DefaultUnitPrice == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(c.DefaultUnitPrice)
}

// Validate checks ledger settings that would otherwise fail at request time.
func (c *LedgerConfig) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unknown ledger backend %q (expected %s or %s)", c.Backend, BackendMemory, BackendPostgres)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid ledger timezone %q: %w", c.Timezone, err)
	}
	if c.NearExpiryDays <= 0 {
		return errors.New("ledger near_expiry_days must be positive")
	}
	if c.DefaultMinStock < 0 {
		return errors.New("ledger default_min_stock must not be negative")
	}
	price, err := c.UnitPrice()
	if err != nil {
		return fmt.Errorf("invalid ledger default_unit_price %q: %w", c.DefaultUnitPrice, err)
	}
	if price.IsNegative() {
		return errors.New("ledger default_unit_price must not be negative")
	}
	return nil
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CORSConfig lists the browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from defaults, an optional yaml file and MEDFLOW_* env vars.
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	setDefaults(v, serviceName)

	v.SetEnvPrefix("MEDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/medflow")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.Environment = NormalizeEnvironment(cfg.Server.Environment)
	cfg.Ledger.Backend = strings.ToLower(strings.TrimSpace(cfg.Ledger.Backend))

	return &cfg, nil
}

// LoadWithValidation loads configuration and fails fast when it cannot be served.
func LoadWithValidation(serviceName string) (*Config, error) {
	cfg, err := Load(serviceName)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole configuration for the current environment.
func (c *Config) Validate() error {
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger configuration error: %w", err)
	}

	if c.Ledger.Backend == BackendPostgres {
		if err := c.Database.Validate(c.Server.Environment); err != nil {
			return fmt.Errorf("database configuration error: %w", err)
		}
	} else if IsProductionLike(c.Server.Environment) {
		return errors.New("memory ledger backend is not allowed in " + c.Server.Environment)
	}

	if IsProductionLike(c.Server.Environment) && strings.Contains(c.RabbitMQ.URL, "localhost") {
		return errors.New("MEDFLOW_RABBITMQ_URL must not point at localhost in " + c.Server.Environment)
	}

	return nil
}

func setDefaults(v *viper.Viper, serviceName string) {
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.environment", EnvDevelopment)

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5437)
	v.SetDefault("database.user", "medflow")
	v.SetDefault("database.password", "devpassword")
	v.SetDefault("database.database", defaultDBName(serviceName))
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.reconnect_delay", 5*time.Second)
	v.SetDefault("rabbitmq.max_retries", 5)
	v.SetDefault("rabbitmq.prefetch_count", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 10*time.Second)

	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.timezone", "UTC")
	v.SetDefault("ledger.near_expiry_days", 30)
	v.SetDefault("ledger.default_product_name", "Unnamed product")
	v.SetDefault("ledger.default_unit", "pcs")
	v.SetDefault("ledger.default_min_stock", 10)
	v.SetDefault("ledger.default_unit_price", "0")
	v.SetDefault("ledger.require_lot", false)
	v.SetDefault("ledger.require_expiry", false)
	v.SetDefault("ledger.expiry_scan_interval", 6*time.Hour)
	v.SetDefault("ledger.seed_demo_data", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("log.level", "info")
}

func defaultDBName(serviceName string) string {
	if serviceName == ServiceName {
		return "medflow_stock"
	}
	return "medflow"
}
