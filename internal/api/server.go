// SPDX-License-Identifier: MIT

// Package api exposes the engine over HTTP and WebSocket.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jamcast/jamd/internal/config"
	"github.com/jamcast/jamd/internal/domain/session/manager"
	"github.com/jamcast/jamd/internal/log"
)

// Server wires HTTP routes to the session engine.
type Server struct {
	engine   *manager.Engine
	cfg      config.Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	limiterMu sync.Mutex
	limiters  map[string]*participantLimiter // per-participant enqueue throttles
}

// participantLimiter pairs a rate limiter with its last use so idle entries
// can be evicted.
type participantLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const (
	// limiterEvictThreshold caps how many participant limiters accumulate
	// before a sweep; limiterIdleTTL is how long an unused one survives it.
	limiterEvictThreshold = 4096
	limiterIdleTTL        = 10 * time.Minute
)

// NewServer builds the HTTP server around the engine.
func NewServer(engine *manager.Engine, cfg config.Config) *Server {
	return &Server{
		engine: engine,
		cfg:    cfg,
		logger: log.WithComponent("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin policy is delegated to the deployment proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limiters: make(map[string]*participantLimiter),
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/sessions", func(r chi.Router) {
		if s.cfg.RequestRateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RequestRateLimit, time.Minute))
		}

		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Delete("/", s.handleCloseSession)

			r.Post("/join", s.handleJoin)
			r.Post("/leave", s.handleLeave)
			r.Post("/queue", s.handleEnqueue)
			r.Delete("/queue/{entry}", s.handleRemoveEntry)
			r.Post("/play", s.handlePlay)
			r.Post("/pause", s.handlePause)
			r.Post("/skip", s.handleSkip)
			r.Post("/track-ended", s.handleTrackEnded)

			r.Get("/events", s.handleEvents)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// enqueueAllowed applies the per-participant enqueue throttle.
func (s *Server) enqueueAllowed(participantID string) bool {
	if s.cfg.EnqueuePerMinute <= 0 {
		return true
	}
	now := time.Now()
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	pl, ok := s.limiters[participantID]
	if !ok {
		if len(s.limiters) >= limiterEvictThreshold {
			s.evictIdleLimitersLocked(now)
		}
		pl = &participantLimiter{lim: rate.NewLimiter(rate.Limit(s.cfg.EnqueuePerMinute/60.0), s.cfg.EnqueueBurst)}
		s.limiters[participantID] = pl
	}
	pl.lastSeen = now
	return pl.lim.Allow()
}

// evictIdleLimitersLocked drops limiters unused for limiterIdleTTL. Callers
// hold limiterMu.
func (s *Server) evictIdleLimitersLocked(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for id, pl := range s.limiters {
		if pl.lastSeen.Before(cutoff) {
			delete(s.limiters, id)
		}
	}
}

// requestLogger annotates each request with the chi request ID and logs the
// outcome at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logger := log.WithComponentFromContext(ctx, "api")
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}
