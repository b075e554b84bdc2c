package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string // development, production

	// Storage
	DatabasePath string // sqlite file holding the settings
	SpoolDir     string // filesystem root of the mail spool

	// SiteURL is the externally reachable base URL, used for the cron
	// processing link and the default From domain.
	SiteURL string

	// Security
	SettingsKey string // passphrase protecting settings at rest

	// Defaults applied while resolving submission headers.
	FromName  string
	FromEmail string
}

func Load() (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Define flags with env var fallbacks
	flag.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port")
	flag.StringVar(&cfg.Env, "env", getEnv("ENV", "development"), "Environment (development, production)")
	flag.StringVar(&cfg.DatabasePath, "database-path", getEnv("DATABASE_PATH", "mailspool.db"), "Path to the settings database")
	flag.StringVar(&cfg.SpoolDir, "spool-dir", getEnv("SPOOL_DIR", "spool"), "Mail spool directory")
	flag.StringVar(&cfg.SiteURL, "site-url", getEnv("SITE_URL", "http://localhost:8080"), "Externally reachable base URL")

	cfg.SettingsKey = getEnv("SETTINGS_ENCRYPTION_KEY", "")
	cfg.FromName = getEnv("FROM_NAME", "Mailspool")
	cfg.FromEmail = getEnv("FROM_EMAIL", "")

	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SettingsKey == "" {
		return fmt.Errorf("SETTINGS_ENCRYPTION_KEY is required")
	}
	if len(c.SettingsKey) < 16 {
		return fmt.Errorf("SETTINGS_ENCRYPTION_KEY must be at least 16 characters")
	}
	if c.SpoolDir == "" {
		return fmt.Errorf("SPOOL_DIR is required")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
