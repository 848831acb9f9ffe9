package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	appAuth "github.com/negotiation-hub/negotiation-hub/internal/application/auth"
	appNegotiation "github.com/negotiation-hub/negotiation-hub/internal/application/negotiation"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	negotiationSvc *appNegotiation.Service
	authSvc        *appAuth.Service
	sseHub         *sse.Hub
	limiter        *RateLimiter
	trustedHeader  bool
	logger         zerolog.Logger
}

// Options configures optional gateway behaviour.
type Options struct {
	// TrustedHeader accepts X-Party-ID from an authenticating gateway instead of a bearer token.
	TrustedHeader bool
	Limiter       *RateLimiter
}

func NewServer(
	negotiationSvc *appNegotiation.Service,
	authSvc *appAuth.Service,
	sseHub *sse.Hub,
	opts Options,
	logger zerolog.Logger,
) *Server {
	return &Server{
		negotiationSvc: negotiationSvc,
		authSvc:        authSvc,
		sseHub:         sseHub,
		limiter:        opts.Limiter,
		trustedHeader:  opts.TrustedHeader,
		logger:         logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/negotiations", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.rateLimit)

		// long-lived; kept out of the request timeout
		r.Get("/stream", s.streamNegotiations)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/", s.listNegotiations)
			r.Post("/", s.createNegotiation)
			r.Get("/active", s.getActiveNegotiation)
			r.Get("/{negotiationId}", s.getNegotiation)
			r.Patch("/{negotiationId}", s.updateNegotiation)
			r.Get("/{negotiationId}/history", s.listHistory)
			r.Post("/{negotiationId}/lock", s.acquireLock)
			r.Post("/{negotiationId}/lock/extend", s.extendLock)
			r.Post("/{negotiationId}/lock/release", s.releaseLock)
			r.Post("/{negotiationId}/order", s.confirmOrder)
		})
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.requireRole(string(appAuth.RoleAdmin)))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/locks/sweep", s.sweepLocks)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func contextFromRequest(r *http.Request) context.Context {
	return r.Context()
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
