package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Listen         string `koanf:"listen"`
	AppURL         string `koanf:"app_url"`
	MusicBrainzURL string `koanf:"musicbrainz_url"`
	DatabaseURL    string `koanf:"database_url"`
	AuthJWTSecret  string `koanf:"auth_jwt_secret"`
	LogLevel       string `koanf:"log_level"`
}

func defaults() Config {
	return Config{
		Listen:         ":8080",
		AppURL:         "http://localhost:8080",
		MusicBrainzURL: "https://musicbrainz.org/ws/2",
		LogLevel:       "info",
	}
}

// Load layers HH_* environment variables over built-in defaults.
// A .env file is honored when present (development convenience).
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	// HH_DATABASE_URL -> database_url
	provider := env.Provider("HH_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "HH_"))
	})
	if err := k.Load(provider, nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
