package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all daemon configuration
type Config struct {
	App        AppConfig
	Log        LogConfig
	Transport  TransportConfig
	Optimistic OptimisticConfig
	Notify     NotifyConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// TransportConfig holds push-channel connection settings
type TransportConfig struct {
	Endpoint     string        // ws:// or wss:// push endpoint
	Role         string        // role announced to the server (admin, cashier, ...)
	Token        string        // auth token sent with the announce frame
	Codec        string        // json or msgpack
	MaxAttempts  int           // consecutive failed dials before giving up
	BackoffBase  time.Duration // initial reconnect delay
	BackoffMax   time.Duration // capped reconnect delay
	WriteTimeout time.Duration // per-write deadline on the socket
}

// OptimisticConfig holds write-tracker settings
type OptimisticConfig struct {
	Timeout       time.Duration // how long a write may stay unconfirmed
	SweepInterval time.Duration // how often expired writes are collected
}

// NotifyConfig holds notification dispatcher settings
type NotifyConfig struct {
	Window time.Duration // burst-collapse window
}

// HTTPConfig holds the read-model HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	CORSAllowOrigins []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with SYNCD_ prefix (e.g., SYNCD_TRANSPORT_TOKEN)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/syncd")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("SYNCD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Transport: TransportConfig{
			Endpoint:     v.GetString("transport.endpoint"),
			Role:         v.GetString("transport.role"),
			Token:        v.GetString("transport.token"),
			Codec:        v.GetString("transport.codec"),
			MaxAttempts:  v.GetInt("transport.max_attempts"),
			BackoffBase:  v.GetDuration("transport.backoff_base"),
			BackoffMax:   v.GetDuration("transport.backoff_max"),
			WriteTimeout: v.GetDuration("transport.write_timeout"),
		},
		Optimistic: OptimisticConfig{
			Timeout:       v.GetDuration("optimistic.timeout"),
			SweepInterval: v.GetDuration("optimistic.sweep_interval"),
		},
		Notify: NotifyConfig{
			Window: v.GetDuration("notify.window"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     v.GetBool("telemetry.enabled"),
			ServiceName: v.GetString("telemetry.service_name"),
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
		cfg.App.Name = "syncd"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8090"
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
	if cfg.Transport.Endpoint == "" {
		cfg.Transport.Endpoint = "ws://localhost:8080/ws"
	}
	if cfg.Transport.Role == "" {
		cfg.Transport.Role = "admin"
	}
	if cfg.Transport.Codec == "" {
		cfg.Transport.Codec = "json"
	}
	if cfg.Transport.MaxAttempts == 0 {
		cfg.Transport.MaxAttempts = 5
	}
	if cfg.Transport.BackoffBase == 0 {
		cfg.Transport.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Transport.BackoffMax == 0 {
		cfg.Transport.BackoffMax = 30 * time.Second
	}
	if cfg.Transport.WriteTimeout == 0 {
		cfg.Transport.WriteTimeout = 10 * time.Second
	}
	if cfg.Optimistic.Timeout == 0 {
		cfg.Optimistic.Timeout = 8 * time.Second
	}
	if cfg.Optimistic.SweepInterval == 0 {
		cfg.Optimistic.SweepInterval = time.Second
	}
	if cfg.Notify.Window == 0 {
		cfg.Notify.Window = 2 * time.Second
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
	// NOTE: CORS origins are intentionally not given a default fallback to "*".
	// An empty list means no cross-origin requests are allowed until explicitly
	// configured.
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "syncd"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.Transport.Endpoint)
	if err != nil {
		return fmt.Errorf("transport.endpoint is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("transport.endpoint must use ws or wss, got %q", u.Scheme)
	}

	switch c.Transport.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("transport.codec must be json or msgpack, got %q", c.Transport.Codec)
	}

	if c.Transport.MaxAttempts < 1 {
		return fmt.Errorf("transport.max_attempts must be positive")
	}
	if c.Transport.BackoffBase > c.Transport.BackoffMax {
		return fmt.Errorf("transport.backoff_base (%s) cannot exceed transport.backoff_max (%s)",
			c.Transport.BackoffBase, c.Transport.BackoffMax)
	}

	if c.App.Env == "production" {
		if u.Scheme != "wss" {
			return fmt.Errorf("transport.endpoint must use wss in production")
		}
		if c.Transport.Token == "" {
			return fmt.Errorf("transport.token is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}
