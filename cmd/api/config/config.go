package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/lending-service/cmd/api/lending"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LendingConfig struct {
	LoanPeriodDays int    `yaml:"loan_period_days"`
	FinePerDay     string `yaml:"fine_per_day"`
	MaxOpenLoans   int    `yaml:"max_open_loans"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MigrationsPath string `yaml:"migrations_path"`
}

type NotificationsConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	Mode          string              `yaml:"mode"`
	HTTP          HTTPConfig          `yaml:"http"`
	Lending       LendingConfig       `yaml:"lending"`
	Database      DatabaseConfig      `yaml:"database"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

func Default() Config {
	return Config{
		Mode: "release",
		HTTP: HTTPConfig{
			Port:           8080,
			RequestTimeout: 5 * time.Second,
		},
		Lending: LendingConfig{
			LoanPeriodDays: 14,
			FinePerDay:     "0.50",
			MaxOpenLoans:   5,
		},
		Database: DatabaseConfig{
			MigrationsPath: "migrations",
		},
		Notifications: NotificationsConfig{
			BaseURL: "https://ntfy.sh/lending-service",
			Timeout: 2 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file
// leaves the defaults in place. Environment variables win over both.
func Load(path string) (Config, error) {
	cfg := Default()
	buf, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides the file with the non-empty environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("DATABASE_MIGRATIONS_PATH"); v != "" {
		c.Database.MigrationsPath = v
	}
	if v := os.Getenv("NOTIFICATIONS_URL"); v != "" {
		c.Notifications.BaseURL = v
		c.Notifications.Enabled = true
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT %q is not a number: %w", v, err)
		}
		c.HTTP.Port = port
	}
	return nil
}

func (c Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.RequestTimeout <= 0 {
		return errors.New("http request_timeout must be positive")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Notifications.Enabled && c.Notifications.BaseURL == "" {
		return errors.New("notifications base_url must be set when notifications are enabled")
	}
	return nil
}

// Policy converts the lending section into the ledger policy.
func (c Config) Policy() (lending.Policy, error) {
	fine, err := lending.ParseMoney(c.Lending.FinePerDay)
	if err != nil {
		return lending.Policy{}, fmt.Errorf("lending fine_per_day: %w", err)
	}
	p := lending.Policy{
		LoanPeriodDays: c.Lending.LoanPeriodDays,
		FinePerDay:     fine,
		MaxOpenLoans:   c.Lending.MaxOpenLoans,
	}
	if err := p.Validate(); err != nil {
		return lending.Policy{}, fmt.Errorf("lending policy: %w", err)
	}
	return p, nil
}
