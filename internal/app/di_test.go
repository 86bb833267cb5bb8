package app

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/dpapi-ng/internal/config"
)

func TestNewContainer(t *testing.T) {
	cfg := &config.Config{LogLevel: "info", ServerHost: "localhost", ServerPort: 8080}

	container := NewContainer(cfg)

	require.NotNil(t, container)
	assert.Same(t, cfg, container.Config())
}

func TestContainerLogger(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "debug"})

	logger := container.Logger()
	require.NotNil(t, logger)

	assert.Same(t, logger, container.Logger(), "Logger should be a singleton")
}

func TestContainerLoggerDefaultLevel(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "invalid"})
	assert.NotNil(t, container.Logger())
}

func TestContainerCache(t *testing.T) {
	container := NewContainer(&config.Config{})

	c := container.Cache()
	require.NotNil(t, c)
	assert.Same(t, c, container.Cache(), "Cache should be a singleton")
}

func TestContainerRedisStore_Unconfigured(t *testing.T) {
	container := NewContainer(&config.Config{})
	assert.Nil(t, container.RedisStore())
}

func TestContainerRedisStore_Configured(t *testing.T) {
	container := NewContainer(&config.Config{RedisAddr: "localhost:6379"})

	store := container.RedisStore()
	require.NotNil(t, store)
	assert.Same(t, store, container.RedisStore(), "RedisStore should be a singleton")
}

func TestContainerRootKeys_Unset(t *testing.T) {
	t.Setenv("ROOT_KEYS", "")
	container := NewContainer(&config.Config{})

	_, err := container.RootKeys()
	assert.Error(t, err)

	// A second call should return the same stored error rather than retrying.
	_, err2 := container.RootKeys()
	assert.Error(t, err2)
}

func TestContainerRootKeys_Configured(t *testing.T) {
	t.Setenv("ROOT_KEYS", `[{"id":"4d5a6e00-0000-0000-0000-000000000001","data":"`+
		base64.StdEncoding.EncodeToString(make([]byte, 64))+`","kdf_algorithm":"SHA256"}]`)
	container := NewContainer(&config.Config{})

	chain, err := container.RootKeys()
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.Len(t, chain.All(), 1)
}

func TestContainerMetrics(t *testing.T) {
	container := NewContainer(&config.Config{})

	m, err := container.Metrics()
	require.NoError(t, err)
	assert.NotNil(t, m)

	m2, err := container.Metrics()
	require.NoError(t, err)
	assert.Same(t, m, m2, "Metrics should be a singleton")
}

func TestContainerMetricsProvider(t *testing.T) {
	container := NewContainer(&config.Config{})

	provider, err := container.MetricsProvider()
	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.NotNil(t, provider.Registry())
}

func TestContainerAuditSink(t *testing.T) {
	container := NewContainer(&config.Config{})

	sink := container.AuditSink()
	require.NotNil(t, sink)
	assert.Same(t, sink, container.AuditSink(), "AuditSink should be a singleton")
}

func TestContainerHTTPServer(t *testing.T) {
	container := NewContainer(&config.Config{ServerHost: "127.0.0.1", ServerPort: 0, LogLevel: "info"})

	server, err := container.HTTPServer()
	require.NoError(t, err)
	assert.NotNil(t, server)

	server2, err := container.HTTPServer()
	require.NoError(t, err)
	assert.Same(t, server, server2, "HTTPServer should be a singleton")
}

func TestContainerShutdown_NoInitializedResources(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "info"})
	assert.NoError(t, container.Shutdown(context.Background()))
}

func TestContainerShutdown_WithHTTPServer(t *testing.T) {
	container := NewContainer(&config.Config{ServerHost: "127.0.0.1", ServerPort: 0, LogLevel: "info"})

	_, err := container.HTTPServer()
	require.NoError(t, err)

	assert.NoError(t, container.Shutdown(context.Background()))
}
