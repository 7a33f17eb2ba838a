package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Batch     BatchConfig
	Ingestion IngestionConfig
	StockSync StockSyncConfig
	ClaimSync ClaimSyncConfig
	Tracking  TrackingConfig
	Retry     RetryConfig
	Channels  ChannelsConfig
	Carriers  CarriersConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// BatchConfig holds invoice batch settings. FirstRunAt and SecondRunAt
// are local times in HH:MM format.
type BatchConfig struct {
	Enabled        bool
	FirstRunAt     string
	SecondRunAt    string
	DefaultCarrier string
	LockTTL        time.Duration
	RunTimeout     time.Duration
}

// IngestionConfig holds order collection settings
type IngestionConfig struct {
	Enabled  bool
	Interval time.Duration
	PageSize int
}

// StockSyncConfig holds stock push settings
type StockSyncConfig struct {
	Enabled     bool
	Interval    time.Duration
	Concurrency int
}

// ClaimSyncConfig holds claim pull settings
type ClaimSyncConfig struct {
	Enabled  bool
	Interval time.Duration
	Lookback time.Duration
}

// TrackingConfig holds shipment tracking poll settings
type TrackingConfig struct {
	Enabled  bool
	Interval time.Duration
}

// RetryConfig bounds external API retries
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxElapsed   time.Duration
}

// ChannelsConfig holds per-marketplace credentials
type ChannelsConfig struct {
	Naver   NaverConfig
	Coupang CoupangConfig
}

// NaverConfig holds Naver Smart Store API settings
type NaverConfig struct {
	Enabled      bool
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// CoupangConfig holds Coupang open API settings
type CoupangConfig struct {
	Enabled   bool
	BaseURL   string
	VendorID  string
	AccessKey string
	SecretKey string
}

// CarriersConfig holds per-carrier credentials and the sender profile
// stamped on every invoice
type CarriersConfig struct {
	Sender SenderConfig
	CJ     CarrierAPIConfig
	Hanjin CarrierAPIConfig
}

// SenderConfig is the shipper block sent to carriers
type SenderConfig struct {
	Name    string
	Phone   string
	Zip     string
	Address string
}

// CarrierAPIConfig holds one carrier's API settings. TestMode issues
// deterministic local tracking numbers without calling the carrier.
type CarrierAPIConfig struct {
	Enabled      bool
	BaseURL      string
	APIKey       string
	APISecret    string
	ContractCode string
	TestMode     bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SHOPFLOW_ prefix (e.g., SHOPFLOW_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("SHOPFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Batch: BatchConfig{
			Enabled:        v.GetBool("batch.enabled"),
			FirstRunAt:     v.GetString("batch.first_run_at"),
			SecondRunAt:    v.GetString("batch.second_run_at"),
			DefaultCarrier: v.GetString("batch.default_carrier"),
			LockTTL:        v.GetDuration("batch.lock_ttl"),
			RunTimeout:     v.GetDuration("batch.run_timeout"),
		},
		Ingestion: IngestionConfig{
			Enabled:  v.GetBool("ingestion.enabled"),
			Interval: v.GetDuration("ingestion.interval"),
			PageSize: v.GetInt("ingestion.page_size"),
		},
		StockSync: StockSyncConfig{
			Enabled:     v.GetBool("stock_sync.enabled"),
			Interval:    v.GetDuration("stock_sync.interval"),
			Concurrency: v.GetInt("stock_sync.concurrency"),
		},
		ClaimSync: ClaimSyncConfig{
			Enabled:  v.GetBool("claim_sync.enabled"),
			Interval: v.GetDuration("claim_sync.interval"),
			Lookback: v.GetDuration("claim_sync.lookback"),
		},
		Tracking: TrackingConfig{
			Enabled:  v.GetBool("tracking.enabled"),
			Interval: v.GetDuration("tracking.interval"),
		},
		Retry: RetryConfig{
			MaxAttempts:  v.GetInt("retry.max_attempts"),
			InitialDelay: v.GetDuration("retry.initial_delay"),
			MaxDelay:     v.GetDuration("retry.max_delay"),
			MaxElapsed:   v.GetDuration("retry.max_elapsed"),
		},
		Channels: ChannelsConfig{
			Naver: NaverConfig{
				Enabled:      v.GetBool("channels.naver.enabled"),
				BaseURL:      v.GetString("channels.naver.base_url"),
				ClientID:     v.GetString("channels.naver.client_id"),
				ClientSecret: v.GetString("channels.naver.client_secret"),
			},
			Coupang: CoupangConfig{
				Enabled:   v.GetBool("channels.coupang.enabled"),
				BaseURL:   v.GetString("channels.coupang.base_url"),
				VendorID:  v.GetString("channels.coupang.vendor_id"),
				AccessKey: v.GetString("channels.coupang.access_key"),
				SecretKey: v.GetString("channels.coupang.secret_key"),
			},
		},
		Carriers: CarriersConfig{
			Sender: SenderConfig{
				Name:    v.GetString("carriers.sender.name"),
				Phone:   v.GetString("carriers.sender.phone"),
				Zip:     v.GetString("carriers.sender.zip"),
				Address: v.GetString("carriers.sender.address"),
			},
			CJ: CarrierAPIConfig{
				Enabled:      v.GetBool("carriers.cj.enabled"),
				BaseURL:      v.GetString("carriers.cj.base_url"),
				APIKey:       v.GetString("carriers.cj.api_key"),
				APISecret:    v.GetString("carriers.cj.api_secret"),
				ContractCode: v.GetString("carriers.cj.contract_code"),
				TestMode:     v.GetBool("carriers.cj.test_mode"),
			},
			Hanjin: CarrierAPIConfig{
				Enabled:      v.GetBool("carriers.hanjin.enabled"),
				BaseURL:      v.GetString("carriers.hanjin.base_url"),
				APIKey:       v.GetString("carriers.hanjin.api_key"),
				APISecret:    v.GetString("carriers.hanjin.api_secret"),
				ContractCode: v.GetString("carriers.hanjin.contract_code"),
				TestMode:     v.GetBool("carriers.hanjin.test_mode"),
			},
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "shopflow-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "shopflow"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Batch.FirstRunAt == "" {
		cfg.Batch.FirstRunAt = "10:00"
	}
	if cfg.Batch.SecondRunAt == "" {
		cfg.Batch.SecondRunAt = "16:00"
	}
	if cfg.Batch.DefaultCarrier == "" {
		cfg.Batch.DefaultCarrier = "cj"
	}
	if cfg.Batch.LockTTL == 0 {
		cfg.Batch.LockTTL = 30 * time.Second
	}
	if cfg.Batch.RunTimeout == 0 {
		cfg.Batch.RunTimeout = 30 * time.Minute
	}
	if cfg.Ingestion.Interval == 0 {
		cfg.Ingestion.Interval = 5 * time.Minute
	}
	if cfg.Ingestion.PageSize == 0 {
		cfg.Ingestion.PageSize = 100
	}
	if cfg.StockSync.Interval == 0 {
		cfg.StockSync.Interval = 10 * time.Minute
	}
	if cfg.StockSync.Concurrency == 0 {
		cfg.StockSync.Concurrency = 4
	}
	if cfg.ClaimSync.Interval == 0 {
		cfg.ClaimSync.Interval = 15 * time.Minute
	}
	if cfg.ClaimSync.Lookback == 0 {
		cfg.ClaimSync.Lookback = 24 * time.Hour
	}
	if cfg.Tracking.Interval == 0 {
		cfg.Tracking.Interval = 30 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = 2 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Retry.MaxElapsed == 0 {
		cfg.Retry.MaxElapsed = 2 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	for key, val := range map[string]string{
		"batch.first_run_at":  c.Batch.FirstRunAt,
		"batch.second_run_at": c.Batch.SecondRunAt,
	} {
		if _, err := time.Parse("15:04", val); err != nil {
			return fmt.Errorf("%s must be in HH:MM format, got %q", key, val)
		}
	}
	if c.Batch.FirstRunAt >= c.Batch.SecondRunAt {
		return fmt.Errorf("batch.first_run_at (%s) must be earlier than batch.second_run_at (%s)",
			c.Batch.FirstRunAt, c.Batch.SecondRunAt)
	}

	switch c.Batch.DefaultCarrier {
	case "cj", "hanjin", "lotte", "logen", "epost":
	default:
		return fmt.Errorf("batch.default_carrier %q is not a supported carrier", c.Batch.DefaultCarrier)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Channels.Naver.Enabled && (c.Channels.Naver.ClientID == "" || c.Channels.Naver.ClientSecret == "") {
			return fmt.Errorf("channels.naver credentials are required when the channel is enabled in production")
		}
		if c.Channels.Coupang.Enabled && (c.Channels.Coupang.AccessKey == "" || c.Channels.Coupang.SecretKey == "") {
			return fmt.Errorf("channels.coupang credentials are required when the channel is enabled in production")
		}
		for name, cc := range map[string]CarrierAPIConfig{"cj": c.Carriers.CJ, "hanjin": c.Carriers.Hanjin} {
			if cc.Enabled && !cc.TestMode && cc.APIKey == "" {
				return fmt.Errorf("carriers.%s.api_key is required when the carrier is enabled in production", name)
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port pair
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
