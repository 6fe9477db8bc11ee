// Package config reads runtime settings from the environment. A .env file in
// the working directory is loaded first if present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings the server starts with. Command-line flags
// override these.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string

	// Interval between donation scans and matching sweeps. Zero disables
	// both.
	Interval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MatchThreshold int
	MatchMax       int
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DBPath:         "najdeno.sqlite3",
		Addr:           ":8080",
		AdminUser:      "Admin",
		Interval:       5 * time.Minute,
		MatchThreshold: 25,
		MatchMax:       100,
	}
}

// Load reads .env (if any) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the lookup function, starting from Defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Defaults()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("NAJDENO_DB", &cfg.DBPath)
	str("NAJDENO_ADDR", &cfg.Addr)
	str("NAJDENO_ADMIN_USER", &cfg.AdminUser)
	str("NAJDENO_LOG", &cfg.LogPath)
	str("NAJDENO_REDIS_ADDR", &cfg.RedisAddr)
	str("NAJDENO_REDIS_PASSWORD", &cfg.RedisPassword)

	if v := strings.TrimSpace(getenv("NAJDENO_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("invalid NAJDENO_INTERVAL %q", v)
		}
		cfg.Interval = d
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"NAJDENO_REDIS_DB", &cfg.RedisDB},
		{"NAJDENO_MATCH_THRESHOLD", &cfg.MatchThreshold},
		{"NAJDENO_MATCH_MAX", &cfg.MatchMax},
	}
	for _, e := range ints {
		v := strings.TrimSpace(getenv(e.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid %s %q", e.key, v)
		}
		*e.dst = n
	}

	if cfg.MatchThreshold > cfg.MatchMax {
		return cfg, fmt.Errorf("match threshold %d exceeds maximum score %d", cfg.MatchThreshold, cfg.MatchMax)
	}
	return cfg, nil
}
