package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Presence   PresenceConfig   `yaml:"presence"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Members    []MemberSeed     `yaml:"members"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
// Notifications are disabled when either key is empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// ScannerConfig holds the tag reader configuration.
type ScannerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Mode           string        `yaml:"mode"`   // "rfid" or "simulate"
	Device         string        `yaml:"device"` // line-oriented reader device, e.g. /dev/ttyUSB0
	HexUIDs        bool          `yaml:"hex_uids"`
	IntervalMillis int           `yaml:"interval_ms"`
	Interval       time.Duration `yaml:"-"`
	BackoffMillis  int           `yaml:"error_backoff_ms"`
	ErrorBackoff   time.Duration `yaml:"-"`
}

// PresenceConfig holds the business-logic timers of the presence engine.
type PresenceConfig struct {
	DebounceSeconds      int           `yaml:"debounce_seconds"`
	Debounce             time.Duration `yaml:"-"`
	AutoCheckoutHours    float64       `yaml:"auto_checkout_hours"`
	AutoCheckout         time.Duration `yaml:"-"`
	MaxCreditHours       float64       `yaml:"max_credit_hours"`
	MaxCredit            time.Duration `yaml:"-"`
	SweepIntervalMinutes int           `yaml:"sweep_interval_minutes"`
	SweepInterval        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// MemberSeed is a member inserted at startup if not already registered.
type MemberSeed struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Category  string `yaml:"category"`
	BoatClass string `yaml:"boat_class"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyEnv overrides file values with environment variables, which main
// populates from an optional .env file. Unparsable values are logged and ignored.
func (cfg *Config) ApplyEnv() {
	envString("PORT", func(v string) { envInt("PORT", v, &cfg.Server.Port) })
	envString("DEBOUNCE_SECONDS", func(v string) { envInt("DEBOUNCE_SECONDS", v, &cfg.Presence.DebounceSeconds) })
	envString("AUTO_CHECKOUT_HOURS", func(v string) { envFloat("AUTO_CHECKOUT_HOURS", v, &cfg.Presence.AutoCheckoutHours) })
	envString("SCAN_INTERVAL_MS", func(v string) { envInt("SCAN_INTERVAL_MS", v, &cfg.Scanner.IntervalMillis) })
	envString("RFID_DEVICE", func(v string) { cfg.Scanner.Device = v })
	envString("DATABASE_DRIVER", func(v string) { cfg.Database.Driver = v })
	envString("DATABASE_DSN", func(v string) { cfg.Database.DSN = v })
	envString("VAPID_PUBLIC_KEY", func(v string) { cfg.Push.PublicKey = v })
	envString("VAPID_PRIVATE_KEY", func(v string) { cfg.Push.PrivateKey = v })
}

func envString(key string, set func(string)) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		set(v)
	}
}

func envInt(key, v string, dst *int) {
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

func envFloat(key, v string, dst *float64) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = f
}

// ApplyDefaults fills zero values with their defaults and derives the durations.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Scanner.Mode == "" {
		cfg.Scanner.Mode = "rfid"
	}
	if cfg.Scanner.IntervalMillis <= 0 {
		cfg.Scanner.IntervalMillis = 500
	}
	cfg.Scanner.Interval = time.Duration(cfg.Scanner.IntervalMillis) * time.Millisecond
	if cfg.Scanner.BackoffMillis <= 0 {
		cfg.Scanner.BackoffMillis = 1000
	}
	cfg.Scanner.ErrorBackoff = time.Duration(cfg.Scanner.BackoffMillis) * time.Millisecond

	if cfg.Presence.DebounceSeconds <= 0 {
		cfg.Presence.DebounceSeconds = 5
	}
	cfg.Presence.Debounce = time.Duration(cfg.Presence.DebounceSeconds) * time.Second
	if cfg.Presence.AutoCheckoutHours <= 0 {
		cfg.Presence.AutoCheckoutHours = 5
	}
	cfg.Presence.AutoCheckout = hours(cfg.Presence.AutoCheckoutHours)
	if cfg.Presence.MaxCreditHours <= 0 {
		cfg.Presence.MaxCreditHours = cfg.Presence.AutoCheckoutHours
	}
	cfg.Presence.MaxCredit = hours(cfg.Presence.MaxCreditHours)
	if cfg.Presence.SweepIntervalMinutes <= 0 {
		cfg.Presence.SweepIntervalMinutes = 5
	}
	cfg.Presence.SweepInterval = time.Duration(cfg.Presence.SweepIntervalMinutes) * time.Minute

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "./data/presence.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
