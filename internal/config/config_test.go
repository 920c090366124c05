package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 100, cfg.MaxConcurrent)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 512*1024, cfg.MaxHTMLBytes)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.EnableCycleTLS)
	assert.False(t, cfg.EnableFetch)
	assert.False(t, cfg.FetchAllowPrivate)
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "Development")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MAX_HTML_BYTES", "1024")
	t.Setenv("WORKSPACE_TTL_MINUTES", "5")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("MAX_CONCURRENT", "not-a-number")
	t.Setenv("ENABLE_CYCLETLS", "false")
	t.Setenv("ENABLE_FETCH", "true")

	cfg := DefaultConfig()

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 1024, cfg.MaxHTMLBytes)
	assert.Equal(t, 5*time.Minute, cfg.WorkspaceTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	// 非法数字回退到默认值
	assert.Equal(t, 100, cfg.MaxConcurrent)
	assert.False(t, cfg.EnableCycleTLS)
	assert.True(t, cfg.EnableFetch)
}
