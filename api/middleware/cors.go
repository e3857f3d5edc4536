package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// localStorefront is allowed when no origins are configured.
const localStorefront = "http://localhost:3000"

// CORS lets the storefront call checkout from the browser and read the
// headers clients need for retries and support tickets.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{localStorefront}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			IdempotencyHeader, "X-Device-Id", RequestIDHeader,
		},
		ExposedHeaders:   []string{RequestIDHeader, ReplayedHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
