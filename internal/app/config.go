package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"obvcore/internal/channel"
	"obvcore/internal/protocol/engine"
)

// ConfigFilename is the name of the config file inside the home directory.
const ConfigFilename = "obvcore.yaml"

var ErrInvalidConfig = errors.New("invalid configuration")

// RedisConfig selects a redis relay. An empty Addr selects the in-memory
// relay instead.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// Config holds runtime options.
type Config struct {
	Home            string      `yaml:"home" validate:"required"`
	Server          string      `yaml:"server" validate:"required"`
	LogLevel        string      `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	Workers         int         `yaml:"workers" validate:"gte=1,lte=256"`
	ProvisionWindow uint64      `yaml:"provision_window" validate:"gte=1,lte=10000"`
	Retention       string      `yaml:"retention" validate:"required"`
	ParkedTTL       string      `yaml:"parked_ttl" validate:"required"`
	CompletedTTL    string      `yaml:"completed_ttl" validate:"required"`
	Redis           RedisConfig `yaml:"redis"`

	// InMemory keeps the database in memory. Not settable from the file.
	InMemory bool `yaml:"-"`
}

// DefaultConfig returns the defaults for a home directory.
func DefaultConfig(home string) Config {
	return Config{
		Home:            home,
		Server:          "localhost",
		LogLevel:        "info",
		Workers:         engine.DefaultWorkers,
		ProvisionWindow: channel.DefaultWindow,
		Retention:       channel.DefaultRetention.String(),
		ParkedTTL:       engine.DefaultParkedTTL.String(),
		CompletedTTL:    engine.DefaultCompletedTTL.String(),
	}
}

// LoadConfig reads path over the defaults for home. A missing file is not
// an error.
func LoadConfig(path, home string) (Config, error) {
	cfg := DefaultConfig(home)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks field constraints and that durations parse.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for name, v := range map[string]string{
		"retention":     c.Retention,
		"parked_ttl":    c.ParkedTTL,
		"completed_ttl": c.CompletedTTL,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	return nil
}

// RetentionPeriod returns Retention parsed. Validate must have succeeded.
func (c Config) RetentionPeriod() time.Duration {
	d, _ := time.ParseDuration(c.Retention)
	return d
}

// ParkedPeriod returns ParkedTTL parsed. Validate must have succeeded.
func (c Config) ParkedPeriod() time.Duration {
	d, _ := time.ParseDuration(c.ParkedTTL)
	return d
}

// CompletedPeriod returns CompletedTTL parsed. Validate must have succeeded.
func (c Config) CompletedPeriod() time.Duration {
	d, _ := time.ParseDuration(c.CompletedTTL)
	return d
}

// Save writes c as YAML to path.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
