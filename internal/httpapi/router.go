// Package httpapi is the ADDED ambient/domain surface named in
// SPEC_FULL.md §0/§1: a chi-routed HTTP server implementing §6.4's server
// API shape over internal/activation (C8). Transport, auth middleware, and
// rate limiting sit explicitly out of scope for the specified core (§1),
// but a complete repository still needs them — built the way the teacher's
// cmd/server/main.go builds its own router.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/clk-66/licensecore/internal/activation"
	"github.com/clk-66/licensecore/internal/feed"
)

// Config bundles the options NewRouter needs beyond the activation engine
// itself.
type Config struct {
	// APIKey, if non-empty, is required (via the X-Api-Key header) on the
	// administrative endpoints: generate, revoke, renew, and the admin
	// WebSocket feed. Validate/heartbeat/disconnect stay open to any
	// client holding a license key, matching §6.4's shape.
	APIKey string

	// AllowedOrigins configures CORS for the admin console calling this
	// API from a separate origin. The feed's WebSocket origin check does
	// not use it; that check takes the domain given to feed.New.
	AllowedOrigins []string

	// JWTSecret verifies the replay-protection nonce internal/manager signs
	// onto online validate requests (SPEC_FULL.md's domain-stack wiring).
	// Empty disables nonce verification.
	JWTSecret string
}

// NewRouter builds the chi.Mux implementing §6.4's server surface plus the
// ADDED admin WebSocket feed (SPEC_FULL.md §2).
func NewRouter(eng *activation.Engine, f *feed.Feed, cfg Config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Api-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &handlers{engine: eng, jwtSecret: cfg.JWTSecret, nonces: newNonceSet(time.Minute)}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	})

	r.Group(func(r chi.Router) {
		// Activation/validation are the natural abuse target on a
		// licensing server — rate-limit per-IP, matching the teacher
		// pack's httprate wiring.
		r.Use(httprate.LimitByIP(60, time.Minute))

		r.Post("/licenses/validate", h.validate)
		r.Post("/licenses/heartbeat", h.heartbeat)
		r.Post("/licenses/disconnect", h.disconnect)
		r.Post("/licenses/activate", h.activate)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(cfg.APIKey))

		r.Post("/licenses/revoke", h.revoke)
		r.Post("/licenses/renew", h.renew)
		r.Post("/licenses/generate", h.generate)

		if f != nil {
			r.Get("/licenses/stream", func(w http.ResponseWriter, r *http.Request) {
				f.ServeWS(w, r)
			})
		}
	})

	return r
}
