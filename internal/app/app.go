// Package app wires the Dost services into a running HTTP server.
//
// The App struct owns the full lifecycle: New opens the store and creates
// every service from the config, Run serves the API until the context ends,
// and Shutdown releases what New acquired.
//
// For testing, inject doubles via functional options (WithStore,
// WithGenerate, WithResponder). When an option is not provided, New creates
// the real implementation through the config registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dost/internal/api"
	"github.com/MrWong99/dost/internal/chat"
	"github.com/MrWong99/dost/internal/chat/workflow"
	"github.com/MrWong99/dost/internal/community"
	"github.com/MrWong99/dost/internal/config"
	"github.com/MrWong99/dost/internal/health"
	"github.com/MrWong99/dost/internal/journal"
	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/internal/resilience"
	"github.com/MrWong99/dost/internal/wellness"
	"github.com/MrWong99/dost/pkg/kv"
	"github.com/MrWong99/dost/pkg/provider/generate"
	"github.com/MrWong99/dost/pkg/provider/llm"
)

const (
	// sweepInterval is how often idle chat sessions are expired.
	sweepInterval = time.Minute

	// drainTimeout bounds in-flight requests after the run context ends.
	drainTimeout = 10 * time.Second
)

// ErrGenerateRequired is returned by New when no generation provider is
// configured or injected.
var ErrGenerateRequired = errors.New("app: providers.generate is required to serve the API")

// App owns the service lifetimes of the Dost server.
type App struct {
	cfg     *config.Config
	reg     *config.Registry
	metrics *observe.Metrics

	// Dependencies, injected or created in New.
	store     kv.Store
	gen       generate.Provider
	responder chat.Responder

	chats     *chat.Sessions
	wellness  *wellness.Service
	journal   *journal.Journal
	community *community.Community
	health    *health.Handler
	server    *api.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening the configured backend. The
// caller keeps ownership: Shutdown does not close it.
func WithStore(s kv.Store) Option {
	return func(a *App) { a.store = s }
}

// WithGenerate injects the generation provider behind the wellness
// operations.
func WithGenerate(p generate.Provider) Option {
	return func(a *App) { a.gen = p }
}

// WithResponder injects the chat responder instead of building the
// workflow and LLM chain from config.
func WithResponder(r chat.Responder) Option {
	return func(a *App) { a.responder = r }
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg, building every dependency that was not
// injected through reg.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, reg: reg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Generation provider ───────────────────────────────────────────
	if err := a.initGenerate(); err != nil {
		a.closeAll()
		return nil, err
	}

	// ── 3. Chat responder ────────────────────────────────────────────────
	if err := a.initResponder(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init chat: %w", err)
	}

	// ── 4. Services ──────────────────────────────────────────────────────
	a.wellness = wellness.New(a.gen,
		wellness.WithModels(WellnessModels(cfg.Models)),
		wellness.WithMetrics(a.metrics),
	)
	a.chats = chat.NewSessions(a.responder, cfg.Chat.SessionTTL, a.metrics)
	a.journal = journal.New(a.store)
	a.community = community.New(a.store, a.wellness, community.WithMetrics(a.metrics))

	// ── 5. Health + API ──────────────────────────────────────────────────
	a.health = health.New(health.Checker{Name: "store", Check: a.pingStore})
	rps, burst := rateLimit(cfg.Server.RateLimit)
	a.server = api.New(api.Deps{
		Chats:     a.chats,
		Wellness:  a.wellness,
		Journal:   a.journal,
		Community: a.community,
		Health:    a.health,
	}, api.WithRateLimit(rps, burst), api.WithMetrics(a.metrics))

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	store, err := a.reg.CreateStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	slog.Info("store opened", "backend", a.cfg.Store.Backend)
	return nil
}

func (a *App) initGenerate() error {
	if a.gen != nil {
		return nil
	}
	entry := a.cfg.Providers.Generate
	if entry.Name == "" {
		return ErrGenerateRequired
	}
	p, err := a.reg.CreateGenerate(entry)
	if err != nil {
		return fmt.Errorf("app: create generate provider %q: %w", entry.Name, err)
	}
	a.gen = p
	slog.Info("provider created", "kind", "generate", "name", entry.Name)
	return nil
}

// initResponder builds the chat chain: the workflow endpoint first, then
// the LLM provider and its fallbacks.
func (a *App) initResponder() error {
	if a.responder != nil {
		return nil
	}

	var chain []chat.Responder
	if wf := a.cfg.Workflow; wf.URL != "" {
		var opts []workflow.Option
		if wf.Timeout > 0 {
			opts = append(opts, workflow.WithTimeout(wf.Timeout))
		}
		c, err := workflow.New(wf.URL, wf.APIKey, opts...)
		if err != nil {
			return err
		}
		chain = append(chain, c)
	}

	p, err := a.buildLLM()
	if err != nil {
		return err
	}
	if p != nil {
		chain = append(chain, chat.NewLLMResponder(p, a.cfg.Chat.SystemPrompt))
	}

	switch len(chain) {
	case 0:
		slog.Warn("no chat responder configured, replies will be the apology")
		a.responder = unavailable{}
	case 1:
		a.responder = chain[0]
	default:
		fb := resilience.NewChatFallback(chain[0], resilience.FallbackConfig{}, a.metrics)
		for _, r := range chain[1:] {
			fb.AddFallback(r)
		}
		a.responder = fb
	}
	slog.Info("chat responder ready", "responder", a.responder.Name())
	return nil
}

// buildLLM returns the configured LLM provider behind a fallback group, or
// nil when none is configured.
func (a *App) buildLLM() (llm.Provider, error) {
	entry := a.cfg.Providers.LLM
	if entry.Name == "" {
		return nil, nil
	}
	primary, err := a.reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	if len(a.cfg.Providers.LLMFallbacks) == 0 {
		return primary, nil
	}
	fb := resilience.NewLLMFallback(primary, resilience.FallbackConfig{})
	for _, e := range a.cfg.Providers.LLMFallbacks {
		p, err := a.reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", e.Name, err)
		}
		fb.AddFallback(p)
	}
	return fb, nil
}

// pingStore reports the store healthy when a read succeeds, including a
// read of a missing key.
func (a *App) pingStore(ctx context.Context) error {
	_, err := a.store.Get(ctx, "dost_health")
	if err == nil || errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.server }

// Wellness returns the wellness service so config reloads can swap models.
func (a *App) Wellness() *wellness.Service { return a.wellness }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then marks the server
// draining and waits for in-flight requests. It returns nil after a clean
// shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		a.chats.Run(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.health.SetDraining(true)
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return srv.Shutdown(drainCtx)
	})

	slog.Info("server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases everything New acquired. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// WellnessModels overlays the configured model names on the defaults.
func WellnessModels(m config.ModelsConfig) wellness.Models {
	out := wellness.DefaultModels
	if m.Screening != "" {
		out.Screening = m.Screening
	}
	if m.Moderation != "" {
		out.Moderation = m.Moderation
	}
	if m.Credential != "" {
		out.Credential = m.Credential
	}
	if m.Search != "" {
		out.Search = m.Search
	}
	return out
}

// rateLimit maps the configured limit to API options: zero fields select
// the defaults and a negative rate disables limiting.
func rateLimit(rl config.RateLimitConfig) (float64, int) {
	rps, burst := rl.RPS, rl.Burst
	if rps < 0 {
		return 0, 0
	}
	if rps == 0 {
		rps = api.DefaultRateLimit
	}
	if burst == 0 {
		burst = api.DefaultBurst
	}
	return rps, burst
}

// errNoResponder is the failure of a chat with nothing configured to answer.
var errNoResponder = errors.New("app: no chat responder configured")

// unavailable answers every chat message with an error so the session
// falls back to the apology.
type unavailable struct{}

func (unavailable) Name() string { return "none" }

func (unavailable) Respond(context.Context, string) (string, error) {
	return "", errNoResponder
}
