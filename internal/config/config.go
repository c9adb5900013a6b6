package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	DefaultTenantID        string
	BusinessTimezone       string
	CatalogCacheTTLSeconds int
	CommitMaxAttempts      int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerPIN             string

	// register sync daemon
	ServerURL           string
	RegisterID          string
	RegisterToken       string
	RegisterUsername    string
	RegisterPassword    string
	RegisterListenAddr  string
	SyncIntervalSeconds int
	SyncMaxAttempts     int
	PriceRefreshSeconds int
}

// Load reads the environment, optionally backed by a .env file in the working
// directory. Secrets have no defaults.
func Load() Config {
	return load(".env")
}

func load(envFile string) Config {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_TENANT_ID", "tenant-main")
	v.SetDefault("BUSINESS_TIMEZONE", "UTC")
	v.SetDefault("CATALOG_CACHE_TTL_SECONDS", 30)
	v.SetDefault("COMMIT_MAX_ATTEMPTS", 3)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("SERVER_URL", "http://127.0.0.1:8080")
	v.SetDefault("SYNC_INTERVAL_SECONDS", 15)
	v.SetDefault("SYNC_MAX_ATTEMPTS", 5)
	v.SetDefault("REGISTER_LISTEN_ADDR", "127.0.0.1:8181")
	v.SetDefault("PRICE_REFRESH_SECONDS", 300)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[config] WARN: ignoring %s: %v", envFile, err)
		}
	}

	return Config{
		Port:                   v.GetString("PORT"),
		AllowedOrigin:          v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:              strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		DefaultTenantID:        v.GetString("DEFAULT_TENANT_ID"),
		BusinessTimezone:       v.GetString("BUSINESS_TIMEZONE"),
		CatalogCacheTTLSeconds: atLeast(v.GetInt("CATALOG_CACHE_TTL_SECONDS"), 0, 30),
		CommitMaxAttempts:      atLeast(v.GetInt("COMMIT_MAX_ATTEMPTS"), 1, 3),
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:  atLeast(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 1, 480),
		ManagerPIN:             strings.TrimSpace(v.GetString("MANAGER_PIN")),
		ServerURL:              v.GetString("SERVER_URL"),
		RegisterID:             strings.TrimSpace(v.GetString("REGISTER_ID")),
		RegisterToken:          strings.TrimSpace(v.GetString("REGISTER_TOKEN")),
		RegisterUsername:       strings.TrimSpace(v.GetString("REGISTER_USERNAME")),
		RegisterPassword:       v.GetString("REGISTER_PASSWORD"),
		RegisterListenAddr:     strings.TrimSpace(v.GetString("REGISTER_LISTEN_ADDR")),
		SyncIntervalSeconds:    atLeast(v.GetInt("SYNC_INTERVAL_SECONDS"), 1, 15),
		SyncMaxAttempts:        atLeast(v.GetInt("SYNC_MAX_ATTEMPTS"), 1, 5),
		PriceRefreshSeconds:    atLeast(v.GetInt("PRICE_REFRESH_SECONDS"), 10, 300),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves BUSINESS_TIMEZONE; sale numbers and daily reports use its
// calendar day.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.BusinessTimezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("BUSINESS_TIMEZONE %q: %w", c.BusinessTimezone, err)
	}
	return loc, nil
}

func atLeast(value int, min int, fallback int) int {
	if value < min {
		return fallback
	}
	return value
}
