package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"recordstore/internal/cache"
	"recordstore/internal/store"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}

	logger := newLogger(cfg)

	db, err := openDatabase(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	dataStore := store.New(db)

	searchCache := cache.New(cache.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
		TTL:  cfg.CacheTTL,
	}, logger)
	defer searchCache.Close()

	handler := newHTTPHandler(cfg, logger, dataStore, searchCache)

	logger.Info().Str("addr", cfg.Addr).Msg("API listening")
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
