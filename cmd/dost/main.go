// Command dost is the entry point for the Dost wellness companion. It serves
// the HTTP API ("serve", the default) or runs a realtime voice session on the
// local microphone and speaker ("voice").
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/MrWong99/dost/internal/app"
	"github.com/MrWong99/dost/internal/config"
	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/internal/voice"
	"github.com/MrWong99/dost/pkg/audio/device"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: dost [-config path] [serve|voice]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	mode := "serve"
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}
	if mode != "serve" && mode != "voice" {
		flag.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dost: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dost: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("dost starting",
		"version", version,
		"mode", mode,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "dost",
		ServiceVersion: version,
		Mode:           mode,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)

	printStartupSummary(cfg, mode)

	if mode == "voice" {
		return runVoice(ctx, cfg, reg, *configPath, level)
	}
	return runServe(ctx, cfg, reg, *configPath, level)
}

// ── Serve ─────────────────────────────────────────────────────────────────────

func runServe(ctx context.Context, cfg *config.Config, reg *config.Registry, path string, level *slog.LevelVar) int {
	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(path, func(r config.Reload) {
		applyReload(r.Diff, level)
		if r.Diff.ModelsChanged {
			application.Wellness().SetModels(app.WellnessModels(r.New.Models))
			slog.Info("wellness models updated")
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Voice ─────────────────────────────────────────────────────────────────────

func runVoice(ctx context.Context, cfg *config.Config, reg *config.Registry, path string, level *slog.LevelVar) int {
	if cfg.Providers.Live.Name == "" {
		slog.Error("voice mode needs providers.live")
		return 1
	}
	agent, err := reg.CreateLive(cfg.Providers.Live)
	if err != nil {
		slog.Error("failed to create live provider", "name", cfg.Providers.Live.Name, "err", err)
		return 1
	}

	current := func() config.VoiceConfig { return cfg.Voice }
	watcher, err := config.NewWatcher(path, func(r config.Reload) {
		applyReload(r.Diff, level)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		current = func() config.VoiceConfig { return watcher.Current().Voice }
	}

	console := &console{out: os.Stdout}
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Agent:      agent,
		Microphone: device.Microphone{},
		Speaker:    device.Speaker{},
		Voice:      current,
		Listeners: []voice.Option{
			voice.WithVolumeListener(console.volume),
			voice.WithTranscriptListener(console.transcript),
		},
	})

	if err := sm.Start(ctx); err != nil {
		slog.Error("failed to start voice session", "err", err)
		return 1
	}
	info := sm.Info()
	slog.Info("voice session started", "session", info.SessionID, "voice", info.Voice)
	fmt.Fprintln(os.Stdout, "Listening. Speak to Dost, press Ctrl+C to end the session.")

	select {
	case <-ctx.Done():
		if sm.IsActive() {
			slog.Info("ending voice session", "session", info.SessionID)
			_ = sm.Stop()
		}
	case <-sm.Done():
		console.newline()
		slog.Warn("the voice session was closed by the agent")
		return 1
	}
	console.newline()
	slog.Info("goodbye")
	return 0
}

// console renders the input level and transcripts on a terminal.
type console struct {
	out *os.File

	mu      sync.Mutex
	meterOn bool
}

func (c *console) volume(level float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const width = 30
	n := min(max(int(level*width/100), 0), width)
	fmt.Fprintf(c.out, "\r[%s%s] %3.0f", strings.Repeat("#", n), strings.Repeat(" ", width-n), level)
	c.meterOn = true
}

func (c *console) transcript(t voice.Transcript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearMeter()
	fmt.Fprintf(c.out, "%s: %s\n", t.Speaker, t.Text)
}

func (c *console) newline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearMeter()
}

func (c *console) clearMeter() {
	if c.meterOn {
		fmt.Fprint(c.out, "\r\033[K")
		c.meterOn = false
	}
}

// ── Reload ────────────────────────────────────────────────────────────────────

// applyReload applies the live-reloadable parts of a config change and
// reports the rest.
func applyReload(d config.ConfigDiff, level *slog.LevelVar) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		slog.Info("voice settings changed, applied to the next voice session")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, mode string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Dost, startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Mode", mode)
	printProvider("Live", cfg.Providers.Live)
	printProvider("Generate", cfg.Providers.Generate)
	printProvider("LLM", cfg.Providers.LLM)
	printRow("LLM fallbacks", fmt.Sprint(len(cfg.Providers.LLMFallbacks)))
	if cfg.Workflow.URL != "" {
		printRow("Workflow", "enabled")
	} else {
		printRow("Workflow", "(disabled)")
	}
	printRow("Store", string(cfg.Store.Backend))
	if mode == "serve" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, e config.ProviderEntry) {
	value := e.Name
	if value == "" {
		value = "(not configured)"
	} else if e.Model != "" {
		value = e.Name + " / " + e.Model
	}
	printRow(kind, value)
}

func printRow(key, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", key, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
