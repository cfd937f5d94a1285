package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS admits browser calls from the configured front-end origins. The
// webhook route is server-to-server and is mounted outside it.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, idempotentReplayHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
