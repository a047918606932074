package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server settings, populated from the environment.
type Config struct {
	MongoURI  string
	MongoDB   string
	RedisAddr string
	Port      string

	PublicDir string

	MaxUploadBytes int64

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getEnv("MONGO_DB", "audiorecorder"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		Port:            getEnv("PORT", "3000"),
		PublicDir:       getEnv("PUBLIC_DIR", "public"),
		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
