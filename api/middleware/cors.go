package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets creator pages served from the configured origins call the API.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", DeviceIDHeader, "X-Requested-With"},
		ExposedHeaders:   []string{DeviceIDHeader, RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
