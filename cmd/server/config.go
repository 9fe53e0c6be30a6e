package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Host              string
	Port              string
	LogLevel          string
	CORSAllowedOrigin string

	ModelProvider     string
	ModelTimeout      time.Duration
	GeminiAPIKey      string
	GeminiAPIEndpoint string
	GeminiModel       string
	OpenAIAPIKey      string
	OpenAIAPIEndpoint string
	OpenAIModel       string

	StoreBackend string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string

	MinIOEndpoint       string
	MinIOPublicEndpoint string
	MinIOAccessKey      string
	MinIOSecretKey      string
	MinIOBucket         string
	MinIOUseSSL         bool

	RabbitMQURL      string
	RabbitMQExchange string
}

// loadConfig loads configuration from environment variables.
// An empty MINIO_ENDPOINT or RABBITMQ_URL disables that integration.
func loadConfig() *Config {
	return &Config{
		Host:              getEnv("HOST", "0.0.0.0"),
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "*"),

		ModelProvider:     strings.ToLower(getEnv("MODEL_PROVIDER", "gemini")),
		ModelTimeout:      getDurationEnv("MODEL_TIMEOUT", 30*time.Second),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint: getEnv("GEMINI_API_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIEndpoint: getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBName:       getEnv("DB_NAME", "tagscan"),
		DBSSLMode:    getEnv("DB_SSL_MODE", "disable"),

		MinIOEndpoint:       getEnv("MINIO_ENDPOINT", ""),
		MinIOPublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", ""),
		MinIOAccessKey:      getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:      getEnv("MINIO_SECRET_KEY", "minioadmin123"),
		MinIOBucket:         getEnv("MINIO_BUCKET_NAME", "clothing-tags"),
		MinIOUseSSL:         getBoolEnv("MINIO_USE_SSL", false),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "tagscan.events"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

// parseLogLevel falls back to info for unknown levels
func parseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
