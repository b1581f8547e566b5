package cmd

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	tests := []struct {
		url      string
		provider string
		rest     string
	}{
		{url: "file://./data", provider: "file", rest: "./data"},
		{url: "postgres://user@localhost/db", provider: "postgres", rest: "user@localhost/db"},
		{url: "postgresql://localhost/db", provider: "postgresql", rest: "localhost/db"},
		{url: "./data", provider: "file", rest: "./data"},
		{url: "mysql://localhost/db", provider: "file", rest: "mysql://localhost/db"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			provider, rest := parsePersistenceProvider(tt.url)
			assert.Equal(t, tt.provider, provider)
			assert.Equal(t, tt.rest, rest)
		})
	}
}

func TestNewPersistence_File(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "data")

	p, err := NewPersistence(t.Context(), slog.Default(), "file://"+root)
	require.NoError(t, err)
	assert.DirExists(t, root)
	require.NoError(t, p.HealthCheck(t.Context()))
	require.NoError(t, p.Close(t.Context()))
}

func TestNewRealtimeSink(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		url      string
		wantErr  bool
	}{
		{name: "none", provider: "none"},
		{name: "default", provider: ""},
		{name: "http", provider: "http", url: "http://localhost:3002"},
		{name: "http without url", provider: "http", wantErr: true},
		{name: "gochannel", provider: "gochannel"},
		{name: "unknown", provider: "smoke-signals", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, closer, err := NewRealtimeSink(tt.provider, tt.url, slog.Default())
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, sink)
			assert.NoError(t, closer.Close())
		})
	}

	sink, _, err := NewRealtimeSink("none", "", slog.Default())
	require.NoError(t, err)
	assert.IsType(t, realtime.NoopSink{}, sink)
}

func TestNewPermissionCache_Memory(t *testing.T) {
	cache, sweeper, closeCache, err := NewPermissionCache(t.Context(), slog.Default(), CacheConfig{
		Provider:   "memory",
		TTL:        time.Minute,
		MaxEntries: 10,
	})
	require.NoError(t, err)

	assert.IsType(t, &permissions.MemoryCache{}, cache)
	assert.NotNil(t, sweeper)
	assert.NoError(t, closeCache())
}

func TestNewPermissionCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, sweeper, closeCache, err := NewPermissionCache(t.Context(), slog.Default(), CacheConfig{
		Provider: "redis",
		RedisURL: "redis://" + mr.Addr(),
		TTL:      time.Minute,
	})
	require.NoError(t, err)

	assert.IsType(t, &permissions.RedisCache{}, cache)
	assert.Nil(t, sweeper)
	assert.NoError(t, closeCache())
}

func TestNewPermissionCache_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  CacheConfig
	}{
		{name: "bad url", cfg: CacheConfig{Provider: "redis", RedisURL: "not a url"}},
		{name: "unknown provider", cfg: CacheConfig{Provider: "memcached"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := NewPermissionCache(t.Context(), slog.Default(), tt.cfg)
			assert.Error(t, err)
		})
	}
}
