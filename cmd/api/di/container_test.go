package di

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"user-api/internal/adapter/repository/cached"
	"user-api/internal/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	return &config.Config{
		DB: config.DatabaseConfig{
			Dialect:      config.DialectSQLite,
			Name:         filepath.Join(t.TempDir(), "users.db"),
			AutoMigrate:  true,
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		App: config.AppConfig{
			HTTPPort:               "5000",
			ShutdownTimeoutSeconds: 5,
		},
		Logger: config.LoggerConfig{Level: "warn", SlowQuerySeconds: 0.2, ServiceName: "user-api"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func TestNewContainer_SQLite(t *testing.T) {
	c, err := NewContainer(context.Background(), sqliteConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.RedisClient)
	assert.Nil(t, c.RateLimiter)
	assert.NotNil(t, c.DB)

	w := httptest.NewRecorder()
	c.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	c.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	require.NoError(t, c.Close())
	assert.Nil(t, c.DB)
	assert.NoError(t, c.Close(), "close is idempotent")
}

func TestNewContainer_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	cfg := sqliteConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: host, Port: port, PoolSize: 2, CacheTTL: 60}
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, BurstCapacity: 1}

	c, err := NewContainer(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.RedisClient)
	require.NotNil(t, c.RateLimiter)
	assert.IsType(t, &cached.UserRepository{}, c.UserRepo)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		c.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.DB.Dialect = "oracle"

	_, err := NewContainer(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestNewContainer_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	mr.Close()

	cfg := sqliteConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: host, Port: port}

	_, err = NewContainer(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize Redis")
}
