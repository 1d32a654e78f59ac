package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	AppPort  string
	LogLevel string
	Auth     AuthConfig
	Redis    RedisConfig
	Media    MediaConfig
}

type AuthConfig struct {
	Secret      string
	ExpireHours int
	ClientID    string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type MediaConfig struct {
	// Latency is how long the loopback device takes to hand out a stream.
	Latency time.Duration
	// AcquireTimeout bounds a single acquisition made for a request.
	AcquireTimeout time.Duration
	// Deny lists media kinds ("video", "audio") the device refuses.
	Deny []string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		AppPort:  getEnv("APP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", ""),
		Auth: AuthConfig{
			Secret:      getEnv("JWT_SECRET", "secret"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
			ClientID:    getEnv("CLIENT_ID", "favoro-shell"),
		},
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Media: MediaConfig{
			Latency:        getEnvDuration("MEDIA_LATENCY", 150*time.Millisecond),
			AcquireTimeout: getEnvDuration("MEDIA_ACQUIRE_TIMEOUT", 10*time.Second),
			Deny:           splitList(getEnv("MEDIA_DENY", "")),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
