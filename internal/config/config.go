package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	RedisAddr  string
	JWTSecret  string
	ServerPort string
	LogLevel   string

	PresenceTTL       time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	SendBuffer        int
	MessageMaxLength  int
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "ptime"),
		RedisAddr:  getEnv("REDIS_ADDR", ""),
		JWTSecret:  getEnv("JWT_SECRET", "super-secret-key-change-me"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		PresenceTTL:       getEnvSeconds("PRESENCE_TTL_SECONDS", 120),
		HeartbeatInterval: getEnvSeconds("HEARTBEAT_INTERVAL_SECONDS", 30),
		SweepInterval:     getEnvSeconds("SWEEP_INTERVAL_SECONDS", 30),
		SendBuffer:        getEnvInt("WS_SEND_BUFFER", 64),
		MessageMaxLength:  getEnvInt("MESSAGE_MAX_LENGTH", 500),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
