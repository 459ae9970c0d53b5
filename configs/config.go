package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type R2 struct {
	AccountID  string `env:"ACCOUNT_ID"`
	AccessKey  string `env:"ACCESS_KEY"`
	SecretKey  string `env:"SECRET_KEY"`
	BucketName string `env:"BUCKET_NAME"`
	PublicURL  string `env:"PUBLIC_URL"`
}

func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != ""
}

type Queue struct {
	DefaultTimezone string        `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	RetentionDays   int           `env:"RETENTION_DAYS" envDefault:"30"`
	MaxDeferrals    int           `env:"MAX_DEFERRALS" envDefault:"10"`
	TickLockTTL     time.Duration `env:"TICK_LOCK_TTL" envDefault:"5m"`
	ProcessBatch    int           `env:"PROCESS_BATCH" envDefault:"100"`
	ClaimTimeout    time.Duration `env:"CLAIM_TIMEOUT" envDefault:"15m"`
}

type Publisher struct {
	Simulate             bool          `env:"SIMULATE" envDefault:"true"`
	SimulatedSuccessRate float64       `env:"SIMULATED_SUCCESS_RATE" envDefault:"0.9"`
	SimulatedDelay       time.Duration `env:"SIMULATED_DELAY" envDefault:"1s"`
	PlatformAPIRPS       float64       `env:"PLATFORM_API_RPS" envDefault:"5"`
}

type Config struct {
	PostgresURI       string `env:"POSTGRES_URI,required,notEmpty"`
	RedisURI          string `env:"REDIS_URI" envDefault:"localhost:6379"`
	ListenAddr        string `env:"LISTEN_ADDR" envDefault:":3000"`
	SecretKey         string `env:"SECRET_KEY"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"10"`
	MetricsEnabled    bool   `env:"METRICS_ENABLED" envDefault:"true"`

	Queue     Queue     `envPrefix:"QUEUE_"`
	Publisher Publisher `envPrefix:"PUBLISHER_"`
	R2        R2        `envPrefix:"R2_"`
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Queue.DefaultTimezone); err != nil {
		return fmt.Errorf("QUEUE_DEFAULT_TIMEZONE %q: %w", c.Queue.DefaultTimezone, err)
	}
	if c.Queue.RetentionDays < 0 {
		return fmt.Errorf("QUEUE_RETENTION_DAYS must not be negative")
	}
	if c.Queue.SweepInterval <= 0 {
		return fmt.Errorf("QUEUE_SWEEP_INTERVAL must be positive")
	}
	if c.Queue.ClaimTimeout <= c.Queue.TickLockTTL {
		return fmt.Errorf("QUEUE_CLAIM_TIMEOUT (%s) must exceed QUEUE_TICK_LOCK_TTL (%s)", c.Queue.ClaimTimeout, c.Queue.TickLockTTL)
	}
	if r := c.Publisher.SimulatedSuccessRate; r < 0 || r > 1 {
		return fmt.Errorf("PUBLISHER_SIMULATED_SUCCESS_RATE must be within [0, 1], got %v", r)
	}
	switch len(c.SecretKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes long")
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 10
	}
	return nil
}
