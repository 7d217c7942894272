package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr      string
	DatabaseURL     string // empty: in-memory only
	CatalogURL      string // empty: built-in sample catalog
	CatalogAPIKey   string
	OpenAIKey       string // empty: fallback announcement text only
	AnnounceDwell   time.Duration
	AnnounceTimeout time.Duration
	Development     bool
}

// Load reads configuration from the environment, with a .env file as a
// convenience for development. Variables are prefixed FILMDRAFT_, e.g.
// FILMDRAFT_LISTEN_ADDR.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FILMDRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("catalog_url", "")
	v.SetDefault("catalog_api_key", "")
	v.SetDefault("openai_key", "")
	v.SetDefault("announce_dwell", "12s")
	v.SetDefault("announce_timeout", "8s")
	v.SetDefault("development", false)

	cfg := &Config{
		ListenAddr:      v.GetString("listen_addr"),
		DatabaseURL:     v.GetString("database_url"),
		CatalogURL:      v.GetString("catalog_url"),
		CatalogAPIKey:   v.GetString("catalog_api_key"),
		OpenAIKey:       v.GetString("openai_key"),
		AnnounceDwell:   v.GetDuration("announce_dwell"),
		AnnounceTimeout: v.GetDuration("announce_timeout"),
		Development:     v.GetBool("development"),
	}

	if cfg.AnnounceDwell <= 0 {
		return nil, fmt.Errorf("announce_dwell must be positive, got %s", cfg.AnnounceDwell)
	}
	if cfg.AnnounceTimeout <= 0 {
		return nil, fmt.Errorf("announce_timeout must be positive, got %s", cfg.AnnounceTimeout)
	}
	if cfg.CatalogURL != "" && cfg.CatalogAPIKey == "" {
		return nil, fmt.Errorf("catalog_api_key is required when catalog_url is set")
	}
	return cfg, nil
}
