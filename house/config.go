package main

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const defaultConfigPath = "configs/auctionhouse.yaml"

// Config holds the house's runtime configuration. Values come from the YAML
// file first; environment variables override them.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Advisor       AdvisorConfig       `yaml:"advisor"`
	Enclave       EnclaveConfig       `yaml:"enclave"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	VsockPort       uint32        `yaml:"vsock_port"` // listen on vsock instead of TCP when non-zero
	MaxWorkers      int           `yaml:"max_workers"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty selects the in-memory store
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty keeps the feed in-process
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NotificationsConfig struct {
	Backend string `yaml:"backend"` // "log", "nats" or "amqp"
	NatsURL string `yaml:"nats_url"`
	AmqpURL string `yaml:"amqp_url"`
}

type AdvisorConfig struct {
	URL     string        `yaml:"url"` // empty approves every sealed bid
	Timeout time.Duration `yaml:"timeout"`
}

type EnclaveConfig struct {
	Attest bool `yaml:"attest"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxWorkers:      64,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Notifications: NotificationsConfig{
			Backend: "log",
			NatsURL: "nats://localhost:4222",
		},
		Advisor: AdvisorConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// LoadConfig reads .env (if present), the YAML file named by
// AUCTIONHOUSE_CONFIG (default configs/auctionhouse.yaml) and then applies
// environment overrides. A missing default file is not an error.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaultConfig()

	path, explicit := os.LookupEnv("AUCTIONHOUSE_CONFIG")
	if !explicit {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		log.Printf("INFO: Loaded config from %s", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
		log.Printf("INFO: No config file at %s, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrideString(&c.Server.Addr, "SERVER_ADDR")
	overrideString(&c.Database.URL, "DATABASE_URL")
	overrideString(&c.Redis.Addr, "REDIS_ADDR")
	overrideString(&c.Redis.Password, "REDIS_PASSWORD")
	overrideString(&c.Notifications.Backend, "NOTIFY_BACKEND")
	overrideString(&c.Notifications.NatsURL, "NATS_URL")
	overrideString(&c.Notifications.AmqpURL, "AMQP_URL")
	overrideString(&c.Advisor.URL, "ADVISOR_URL")

	var err error
	if c.Server.MaxWorkers, err = getEnvInt("MAX_WORKERS", c.Server.MaxWorkers); err != nil {
		return err
	}
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}

	vsockPort, err := getEnvInt("VSOCK_PORT", int(c.Server.VsockPort))
	if err != nil {
		return err
	}
	if vsockPort < 0 {
		return fmt.Errorf("invalid value for VSOCK_PORT: %d (must not be negative)", vsockPort)
	}
	if int64(vsockPort) > math.MaxUint32 {
		return fmt.Errorf("invalid value for VSOCK_PORT: %d (must fit in 32 bits)", vsockPort)
	}
	c.Server.VsockPort = uint32(vsockPort)

	if value := os.Getenv("ENCLAVE_ATTEST"); value != "" {
		attest, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for ENCLAVE_ATTEST: %s (must be a boolean)", value)
		}
		c.Enclave.Attest = attest
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.Server.MaxWorkers)
	}

	switch c.Notifications.Backend {
	case "log":
	case "nats":
		if c.Notifications.NatsURL == "" {
			return fmt.Errorf("nats notifications require nats_url")
		}
	case "amqp":
		if c.Notifications.AmqpURL == "" {
			return fmt.Errorf("amqp notifications require amqp_url")
		}
	default:
		return fmt.Errorf("unknown notification backend %q", c.Notifications.Backend)
	}
	return nil
}

func overrideString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

// getEnvInt parses an integer environment variable, keeping fallback when unset
func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}
