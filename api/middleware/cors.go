package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS admits browser callers from origins. An empty list allows any origin;
// credentials are never allowed since callers authenticate with bearer tokens.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			"apikey", "x-client-info",
			idempotencyHeader, requestIDHeader,
		},
		ExposedHeaders: []string{requestIDHeader, replayedHeader, "Retry-After"},
		MaxAge:         300,
	})
}
