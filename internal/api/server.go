// Package api exposes Dost over HTTP: text chat, screening analysis,
// moderation, credential verification, counselor search, the journal and
// the community rooms. Every response body is JSON; failures are
// {"error": "..."} with a matching status code.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/dost/internal/chat"
	"github.com/MrWong99/dost/internal/community"
	"github.com/MrWong99/dost/internal/health"
	"github.com/MrWong99/dost/internal/journal"
	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/internal/wellness"
)

// Default per-client request budget.
const (
	DefaultRateLimit = 5.0
	DefaultBurst     = 20
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 64 << 10

// Deps are the services the API serves. All fields are required except
// Health, which defaults to a handler without checks.
type Deps struct {
	Chats     *chat.Sessions
	Wellness  *wellness.Service
	Journal   *journal.Journal
	Community *community.Community
	Health    *health.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithRateLimit sets the per-client rate. A non-positive rps disables
// limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.rps, s.burst = rps, burst }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// Server routes HTTP requests to the Dost services.
type Server struct {
	deps           Deps
	metrics        *observe.Metrics
	metricsHandler http.Handler
	rps            float64
	burst          int

	handler http.Handler
}

// New builds the route table.
func New(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:  deps,
		rps:   DefaultRateLimit,
		burst: DefaultBurst,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	if s.deps.Health == nil {
		s.deps.Health = health.New()
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/chat/sessions", s.createChat)
	api.HandleFunc("GET /v1/chat/sessions/{id}", s.getChat)
	api.HandleFunc("DELETE /v1/chat/sessions/{id}", s.deleteChat)
	api.HandleFunc("POST /v1/chat/sessions/{id}/messages", s.sendChat)

	api.HandleFunc("POST /v1/moderate", s.moderate)
	api.HandleFunc("GET /v1/screening/{test}", s.screeningQuestions)
	api.HandleFunc("POST /v1/screening", s.screening)
	api.HandleFunc("POST /v1/credentials/verify", s.verifyCredential)
	api.HandleFunc("POST /v1/counselors/search", s.searchCounselors)

	api.HandleFunc("GET /v1/journal", s.listJournal)
	api.HandleFunc("POST /v1/journal", s.addJournal)
	api.HandleFunc("DELETE /v1/journal/{id}", s.deleteJournal)

	api.HandleFunc("GET /v1/rooms", s.listRooms)
	api.HandleFunc("GET /v1/rooms/{id}/messages", s.roomMessages)
	api.HandleFunc("POST /v1/rooms/{id}/messages", s.postRoom)

	var limited http.Handler = api
	if s.rps > 0 {
		limited = newRateLimiter(s.rps, s.burst, 3*time.Minute).Middleware(api)
	}

	// Ops endpoints are never rate limited.
	mux := http.NewServeMux()
	s.deps.Health.Register(mux)
	mux.Handle("GET /metrics", s.metricsHandler)
	mux.Handle("/v1/", limited)

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
