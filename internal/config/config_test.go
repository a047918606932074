package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "audiorecorder", cfg.MongoDB)
	assert.Equal(t, "3000", cfg.Port)
	assert.EqualValues(t, 10<<20, cfg.MaxUploadBytes)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MONGO_DB", "voicebank_test")
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")

	cfg := Load()
	assert.Equal(t, "voicebank_test", cfg.MongoDB)
	assert.Equal(t, "8080", cfg.Port)
	assert.EqualValues(t, 1<<20, cfg.MaxUploadBytes)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX", "not-a-number")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg := Load()
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
}
