package status

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"
)

// ServerConfig configures the read-only status endpoint an operator dashboard
// can poll while a run is in flight.
type ServerConfig struct {
	// TokenHash is the bcrypt hash of the bearer token; empty disables auth
	// (bind to loopback in that case).
	TokenHash      string
	AllowedOrigins []string
}

// NewRouter serves GET /api/status from the shared runner state.
func NewRouter(state *RunnerState, cfg ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Authorization"},
			MaxAge:         300,
		}))
	}
	r.Get("/api/status", func(w http.ResponseWriter, req *http.Request) {
		if cfg.TokenHash != "" {
			token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if token == "" ||
				bcrypt.CompareHashAndPassword([]byte(cfg.TokenHash), []byte(token)) != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state.Snapshot())
	})
	return r
}
