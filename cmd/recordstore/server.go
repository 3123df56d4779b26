package main

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"recordstore/internal/app/orders"
	"recordstore/internal/app/records"
	"recordstore/internal/cache"
	"recordstore/internal/httpapi"
	"recordstore/internal/musicbrainz"
	"recordstore/internal/store"
)

func newHTTPHandler(cfg Config, logger zerolog.Logger, dataStore *store.Store, searchCache *cache.Cache) http.Handler {
	metadataClient := musicbrainz.NewClient(cfg.MusicBrainzURL)

	recordSvc := records.New(dataStore, metadataClient, searchCache, logger)
	orderSvc := orders.New(dataStore, recordSvc, logger)

	handler := httpapi.New(recordSvc, orderSvc).Routes()
	handler = httpapi.RequestLogging(logger)(handler)
	handler = httpapi.Recovery(logger)(handler)

	return withCORS(cfg.AllowedOrigins, handler)
}

func withCORS(allowedOrigins []string, next http.Handler) http.Handler {
	originAllowed := func(origin string) bool {
		if len(allowedOrigins) == 0 || origin == "" {
			return false
		}
		for _, o := range allowedOrigins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
