// Package config provides application configuration management through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Metrics server configuration
	ServerHost string
	ServerPort int

	// Logging
	LogLevel string

	// Locally-loaded root keys, parsed by rootkey.LoadChainFromEnv: a
	// comma-separated list of "id:base64(64 zero-padded bytes)" pairs, the
	// offline path used when no GKDI server is reachable.
	RootKeys string

	// Default Active Directory domain name DCLocator.LocateDC resolves
	// against when a caller doesn't pass WithDomain. Empty asks the locator
	// for the caller's own domain.
	Domain string

	// DCServer overrides DC discovery entirely, pinning every GetKey RPC to
	// a specific domain controller instead of resolving one via DNS SRV.
	DCServer string

	// RPCTimeout bounds a single GetKey RPC round-trip.
	RPCTimeout time.Duration

	// DCCacheTTL bounds how long a resolved domain-controller name is
	// reused before the next GetKey call re-resolves it.
	DCCacheTTL time.Duration

	// RedisAddr, when set, backs the envelope cache's distributed second
	// tier (internal/dpapi/cache.RedisStore) in addition to the in-process
	// cache. Empty disables the Redis tier.
	RedisAddr string
	RedisTTL  time.Duration
}

// Load loads configuration from environment variables.
// It first attempts to load a .env file by searching recursively from the current directory
// up to the root directory. If no .env file is found, it continues with existing environment variables.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Metrics server configuration
		ServerHost: env.GetString("SERVER_HOST", "0.0.0.0"),
		ServerPort: env.GetInt("SERVER_PORT", 8080),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Root keys / domain controller resolution
		RootKeys:   env.GetString("ROOT_KEYS", ""),
		Domain:     env.GetString("DOMAIN", ""),
		DCServer:   env.GetString("DC_SERVER", ""),
		RPCTimeout: env.GetDuration("RPC_TIMEOUT", 10, time.Second),
		DCCacheTTL: env.GetDuration("DC_CACHE_TTL", 5, time.Minute),

		// Distributed envelope cache
		RedisAddr: env.GetString("REDIS_ADDR", ""),
		RedisTTL:  env.GetDuration("REDIS_TTL", 1, time.Hour),
	}
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// Search for .env file recursively up the directory tree
	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			// .env file found, load it
			_ = godotenv.Load(envPath)
			return
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}
}
