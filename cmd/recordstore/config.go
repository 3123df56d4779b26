package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains application-wide settings sourced from the environment.
type Config struct {
	DatabaseURL    string
	Addr           string
	RedisAddr      string
	RedisDB        int
	CacheTTL       time.Duration
	MusicBrainzURL string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
}

func loadConfig() (Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return Config{}, errors.New("DATABASE_URL env var is required")
	}

	redisDB, err := strconv.Atoi(envOrDefault("REDIS_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	ttlSeconds, err := strconv.Atoi(envOrDefault("CACHE_TTL_SECONDS", "3600"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CACHE_TTL_SECONDS: %w", err)
	}

	return Config{
		DatabaseURL:    dsn,
		Addr:           fmt.Sprintf(":%s", envOrDefault("PORT", "8080")),
		RedisAddr:      envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:        redisDB,
		CacheTTL:       time.Duration(ttlSeconds) * time.Second,
		MusicBrainzURL: envOrDefault("MUSICBRAINZ_URL", "https://musicbrainz.org/ws/2"),
		AllowedOrigins: parseAllowedOrigins(envOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("LOG_FORMAT", "json"),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseAllowedOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	var origins []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
