package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	NatsURL         string
	NatsToken       string
	UseCase         string
	UserID          string
	MaxDocBytes     int
}

func Load() Config {
	return Config{
		Port:            envInt("EXTRACTD_PORT", 8760),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("EXTRACTD_MODEL", "claude-sonnet-4-20250514"),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		UseCase:         envStr("EXTRACTD_USE_CASE", "Document_Extraction"),
		UserID:          envStr("EXTRACTD_USER_ID", "extractd"),
		MaxDocBytes:     envInt("EXTRACTD_MAX_DOC_BYTES", 0),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
