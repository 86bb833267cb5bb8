// Package app provides a dependency injection container for assembling the
// collaborators dpaping.Options needs: configuration, logging, the root-key
// chain, the envelope cache (plus its optional Redis tier), metrics, and the
// audit sink. It follows the lazy initialization pattern used throughout this
// codebase - components are created on first access.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/allisson/dpapi-ng/internal/audit"
	"github.com/allisson/dpapi-ng/internal/config"
	"github.com/allisson/dpapi-ng/internal/dpapi/cache"
	"github.com/allisson/dpapi-ng/internal/http"
	"github.com/allisson/dpapi-ng/internal/metrics"
	"github.com/allisson/dpapi-ng/internal/rootkey"
)

const metricsNamespace = "dpapi_ng"

// Container holds all application dependencies and provides methods to
// access them, created on first access.
type Container struct {
	config *config.Config

	logger          *slog.Logger
	cache           *cache.Cache
	redisClient     *redis.Client
	redisStore      *cache.RedisStore
	rootKeys        *rootkey.Chain
	metricsProvider *metrics.Provider
	metrics         metrics.DPAPIMetrics
	auditSink       *audit.Sink
	httpServer      *http.MetricsServer

	mu             sync.Mutex
	loggerInit     sync.Once
	cacheInit      sync.Once
	redisInit      sync.Once
	rootKeysInit   sync.Once
	metricsInit    sync.Once
	auditSinkInit  sync.Once
	httpServerInit sync.Once
	initErrors     map[string]error
}

// NewContainer creates a new dependency injection container with the
// provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger, created on first access from the log
// level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Cache returns the in-process envelope cache shared across Protect/Unprotect
// calls made through this container.
func (c *Container) Cache() *cache.Cache {
	c.cacheInit.Do(func() {
		c.cache = cache.New()
	})
	return c.cache
}

// RedisStore returns the optional distributed envelope cache tier, or nil
// when config.RedisAddr is unset.
func (c *Container) RedisStore() *cache.RedisStore {
	c.redisInit.Do(func() {
		if c.config.RedisAddr == "" {
			return
		}
		c.redisClient = redis.NewClient(&redis.Options{Addr: c.config.RedisAddr})
		c.redisStore = cache.NewRedisStore(c.redisClient, c.config.RedisTTL)
	})
	return c.redisStore
}

// RootKeys returns the chain of locally-loaded root keys parsed from
// config.RootKeys.
func (c *Container) RootKeys() (*rootkey.Chain, error) {
	var err error
	c.rootKeysInit.Do(func() {
		c.rootKeys, err = rootkey.LoadChainFromEnv()
		if err != nil {
			c.initErrors["rootKeys"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rootKeys"]; exists {
		return nil, storedErr
	}
	return c.rootKeys, nil
}

// MetricsProvider returns the Prometheus registry/handler pair DPAPIMetrics
// and the /metrics HTTP server both register against.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsInit.Do(func() {
		c.metricsProvider, err = metrics.NewProvider(metricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
			return
		}
		c.metrics, err = metrics.NewDPAPIMetrics(c.metricsProvider.Registry(), metricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// Metrics returns the Prometheus-backed DPAPIMetrics sink dpaping.Options'
// WithMetrics expects.
func (c *Container) Metrics() (metrics.DPAPIMetrics, error) {
	if _, err := c.MetricsProvider(); err != nil {
		return nil, err
	}
	return c.metrics, nil
}

// AuditSink returns the tamper-evident audit trail sink, writing structured
// events via zerolog to stdout.
func (c *Container) AuditSink() *audit.Sink {
	c.auditSinkInit.Do(func() {
		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		c.auditSink = audit.NewSink(logger)
	})
	return c.auditSink
}

// HTTPServer returns the /metrics HTTP server.
func (c *Container) HTTPServer() (*http.MetricsServer, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// Shutdown performs cleanup of all initialized resources.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("redis client close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

func (c *Container) initHTTPServer() (*http.MetricsServer, error) {
	logger := c.Logger()

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	return http.NewMetricsServer(c.config.ServerHost, c.config.ServerPort, logger, provider), nil
}
