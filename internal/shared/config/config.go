package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "config/config.yaml"

type Config struct {
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Worker   Worker   `yaml:"worker"`
	API      API      `yaml:"api"`
	Database Database `yaml:"database"`
	Log      Log      `yaml:"log"`
}

type RabbitMQ struct {
	Host     string `yaml:"host" env:"RABBITMQ__HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"RABBITMQ__PORT" env-default:"5672"`
	User     string `yaml:"user" env:"RABBITMQ__USER" env-default:"guest"`
	Password string `yaml:"password" env:"RABBITMQ__PASS" env-default:"guest"`
	VHost    string `yaml:"vhost" env:"RABBITMQ__VHOST" env-default:"/"`
}

type Worker struct {
	Prefetch            int           `yaml:"prefetch" env:"WORKER__PREFETCH" env-default:"10"`
	RetryCount          int           `yaml:"retry_count" env:"WORKER__RETRYCOUNT" env-default:"3"`
	ReconnectDelay      time.Duration `yaml:"reconnect_delay" env:"WORKER__RECONNECTDELAY" env-default:"3s"`
	WorkDuration        time.Duration `yaml:"work_duration" env:"WORKER__WORKDURATION" env-default:"20ms"`
	IdempotencyTTL      time.Duration `yaml:"idempotency_ttl" env:"WORKER__IDEMPOTENCYTTL" env-default:"10m"`
	IdempotencyCapacity int           `yaml:"idempotency_capacity" env:"WORKER__IDEMPOTENCYCAPACITY" env-default:"10000"`
	MetricsAddr         string        `yaml:"metrics_addr" env:"WORKER__METRICSADDR" env-default:":9091"`
}

type API struct {
	Port int `yaml:"port" env:"API__PORT" env-default:"8080"`
}

type Database struct {
	URL string `yaml:"url" env:"DATABASE__URL"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG__LEVEL" env-default:"info"`
}

// Load reads an optional .env file, then the YAML file at CONFIG_PATH (if it exists)
// and finally environment variables, which override the file. The result is validated.
func Load() (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// AMQPURL builds the broker URL from the RabbitMQ section.
func (c *Config) AMQPURL() string {
	vhost := strings.TrimPrefix(c.RabbitMQ.VHost, "/")
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port, vhost)
}

// applyDefaults fills zero values that env-default cannot reach (e.g. partial YAML files).
func applyDefaults(cfg *Config) {
	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.User == "" {
		cfg.RabbitMQ.User = "guest"
	}
	if cfg.RabbitMQ.Password == "" {
		cfg.RabbitMQ.Password = "guest"
	}

	// Worker
	if cfg.Worker.Prefetch == 0 {
		cfg.Worker.Prefetch = 10
	}
	if cfg.Worker.ReconnectDelay == 0 {
		cfg.Worker.ReconnectDelay = 3 * time.Second
	}
	if cfg.Worker.WorkDuration == 0 {
		cfg.Worker.WorkDuration = 20 * time.Millisecond
	}
	if cfg.Worker.IdempotencyTTL == 0 {
		cfg.Worker.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.Worker.IdempotencyCapacity == 0 {
		cfg.Worker.IdempotencyCapacity = 10_000
	}

	// API
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks required fields and basic ranges.
func (c *Config) Validate() error {
	var problems []string

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}

	// Worker
	if c.Worker.Prefetch <= 0 || c.Worker.Prefetch > 65535 {
		problems = append(problems, "worker.prefetch must be in 1..65535")
	}
	if c.Worker.RetryCount < 0 {
		problems = append(problems, "worker.retry_count must not be negative")
	}
	if c.Worker.ReconnectDelay <= 0 {
		problems = append(problems, "worker.reconnect_delay must be > 0")
	}
	if c.Worker.WorkDuration < 0 {
		problems = append(problems, "worker.work_duration must not be negative")
	}
	if c.Worker.IdempotencyTTL <= 0 {
		problems = append(problems, "worker.idempotency_ttl must be > 0")
	}
	if c.Worker.IdempotencyCapacity <= 0 {
		problems = append(problems, "worker.idempotency_capacity must be > 0")
	}

	// API
	if c.API.Port <= 0 || c.API.Port > 65535 {
		problems = append(problems, "api.port must be in 1..65535")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "log.level must be one of debug, info, warn, error")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
