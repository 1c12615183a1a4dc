// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/hudong/internal/provider"
	"github.com/ashureev/hudong/internal/store"
	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`
	AppEnv      string `env:"APP_ENV"`
	SeedPath    string `env:"SEED_PATH"`

	Slot        SlotConfig
	Bus         BusConfig
	Provider    ProviderConfig
	Participant ParticipantConfig
}

// SlotConfig selects where the session document is stored.
type SlotConfig struct {
	Driver       string        `env:"SLOT_DRIVER" envDefault:"sqlite"`
	Key          string        `env:"SLOT_KEY" envDefault:"hudong_session_state"`
	DBPath       string        `env:"DB_PATH" envDefault:"./data/hudong.db"`
	Dir          string        `env:"SLOT_DIR" envDefault:"./data/slots"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	PollInterval time.Duration `env:"SLOT_POLL_INTERVAL" envDefault:"250ms"`
}

// BusConfig sizes the in-process broadcaster.
type BusConfig struct {
	QueueSize int `env:"BUS_QUEUE_SIZE" envDefault:"64"`
}

// ProviderConfig selects the slide generation backend.
type ProviderConfig struct {
	Mode       string        `env:"PROVIDER_MODE" envDefault:"auto"`
	APIKey     string        `env:"GEMINI_API_KEY"`
	Model      string        `env:"PROVIDER_MODEL" envDefault:"gemini-2.5-flash"`
	GRPCAddr   string        `env:"PROVIDER_GRPC_ADDR" envDefault:"localhost:50061"`
	Timeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"20s"`
	ListenAddr string        `env:"PROVIDER_LISTEN_ADDR" envDefault:":50061"`
}

// ParticipantConfig controls how long idle devices are remembered.
type ParticipantConfig struct {
	IdleTTL       time.Duration `env:"PARTICIPANT_IDLE_TTL" envDefault:"2h"`
	SweepInterval time.Duration `env:"PARTICIPANT_SWEEP_INTERVAL" envDefault:"10m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Slot.Key == "" {
		return fmt.Errorf("SLOT_KEY cannot be empty")
	}
	switch c.Slot.Driver {
	case store.DriverSQLite:
		if c.Slot.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case store.DriverFile:
		if c.Slot.Dir == "" {
			return fmt.Errorf("SLOT_DIR cannot be empty")
		}
	case store.DriverPostgres:
		if c.Slot.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SLOT_DRIVER=postgres")
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("SLOT_DRIVER %q is not one of sqlite, file, postgres, memory", c.Slot.Driver)
	}
	if c.Slot.PollInterval <= 0 {
		return fmt.Errorf("SLOT_POLL_INTERVAL must be > 0")
	}
	if c.Bus.QueueSize <= 0 {
		return fmt.Errorf("BUS_QUEUE_SIZE must be > 0")
	}
	switch c.Provider.Mode {
	case provider.ModeAuto, provider.ModeCanned, provider.ModeGRPC:
	case provider.ModeGenAI:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when PROVIDER_MODE=genai")
		}
	default:
		return fmt.Errorf("PROVIDER_MODE %q is not one of auto, genai, grpc, canned", c.Provider.Mode)
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be > 0")
	}
	if c.Participant.IdleTTL <= 0 || c.Participant.SweepInterval <= 0 {
		return fmt.Errorf("PARTICIPANT_IDLE_TTL and PARTICIPANT_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.AppEnv != "" {
		return c.AppEnv == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins lists the origins CORS accepts.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" || c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

// StoreOptions converts the slot settings for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:       c.Slot.Driver,
		DBPath:       c.Slot.DBPath,
		Dir:          c.Slot.Dir,
		DatabaseURL:  c.Slot.DatabaseURL,
		PollInterval: c.Slot.PollInterval,
	}
}

// ProviderOptions converts the provider settings for provider.Open.
func (c *Config) ProviderOptions() provider.Options {
	return provider.Options{
		Mode:     c.Provider.Mode,
		APIKey:   c.Provider.APIKey,
		Model:    c.Provider.Model,
		GRPCAddr: c.Provider.GRPCAddr,
	}
}
