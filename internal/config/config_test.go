package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageBackendFile, cfg.StorageBackend)
	assert.Equal(t, 5*time.Minute, cfg.ScraperTimeout)
	assert.Equal(t, "python3", cfg.ScraperInterpreter)
	assert.Equal(t, LLMProviderREST, cfg.LLMProvider)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:8080"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.RefreshTargets)
	assert.False(t, cfg.QueueEnabled)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_BACKEND", "Mongo")
	t.Setenv("SCRAPER_TIMEOUT_MS", "1500")
	t.Setenv("REFRESH_TARGETS", "trendyol:iphone 15; n11:kulaklık ;")
	t.Setenv("REFRESH_INTERVAL", "30m")
	t.Setenv("QUEUE_ENABLED", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("LLM_RPM", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageBackendMongo, cfg.StorageBackend)
	assert.Equal(t, 1500*time.Millisecond, cfg.ScraperTimeout)
	assert.Equal(t, []string{"trendyol:iphone 15", "n11:kulaklık"}, cfg.RefreshTargets)
	assert.Equal(t, 30*time.Minute, cfg.RefreshInterval)
	assert.True(t, cfg.QueueEnabled)
	assert.Equal(t, 10, cfg.LLMRPM)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StorageBackend:     StorageBackendFile,
			DataDir:            "./data",
			LLMProvider:        LLMProviderREST,
			ScraperTimeout:     time.Minute,
			ScraperInterpreter: "python3",
			RateLimitReqs:      20,
			RateLimitWindow:    60,
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"unknown backend":      func(c *Config) { c.StorageBackend = "sqlite" },
		"missing data dir":     func(c *Config) { c.DataDir = "" },
		"unknown llm provider": func(c *Config) { c.LLMProvider = "openai" },
		"zero timeout":         func(c *Config) { c.ScraperTimeout = 0 },
		"empty interpreter":    func(c *Config) { c.ScraperInterpreter = "" },
		"zero rate window":     func(c *Config) { c.RateLimitWindow = 0 },
		"queue without redis":  func(c *Config) { c.QueueEnabled = true },
		"refresh without interval": func(c *Config) {
			c.RefreshTargets = []string{"n11:x"}
			c.RefreshInterval = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRedisOptions(t *testing.T) {
	opt, err := RedisOptions(&Config{RedisURL: "rediss://user:pw@cache:6380/3"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opt.Addr)
	assert.Equal(t, "user", opt.Username)
	assert.Equal(t, 3, opt.DB)
	assert.NotNil(t, opt.TLSConfig)

	opt, err = RedisOptions(&Config{RedisURL: "localhost:6379", RedisPassword: "pw", RedisDB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)

	_, err = RedisOptions(&Config{RedisURL: "redis://cache:notaport"})
	assert.Error(t, err)
}
