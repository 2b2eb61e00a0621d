// Command standin is the main entry point for the standin meeting agent.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/standin-ai/standin/internal/app"
	"github.com/standin-ai/standin/internal/config"
	malgodev "github.com/standin-ai/standin/internal/device"
	"github.com/standin-ai/standin/internal/observe"
	"github.com/standin-ai/standin/pkg/audio/device"
	"github.com/standin-ai/standin/pkg/provider/llm"
	"github.com/standin-ai/standin/pkg/provider/llm/anyllm"
	"github.com/standin-ai/standin/pkg/provider/tts"
	"github.com/standin-ai/standin/pkg/provider/tts/voicebox"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listenOnly := flag.Bool("listen-only", false, "transcribe without ever responding, overrides agent.listen_only")
	listDevices := flag.Bool("list-devices", false, "print audio devices and exit")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "standin: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "standin: %v\n", err)
		}
		return 1
	}
	if *listenOnly {
		cfg.Agent.ListenOnly = true
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("standin starting",
		"config", *configPath,
		"agent", cfg.Agent.Name,
		"listen_only", cfg.Agent.ListenOnly,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "standin"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if closer, ok := providers.Audio.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, *providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, new *config.Config, diff config.ConfigDiff) {
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		application.ApplyConfigChange(new, diff)
		if diff.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Interactive controls ──────────────────────────────────────────────────
	go controlLoop(ctx, stop, application)

	slog.Info("ready — m: mute, f: force respond, s: skip, q: quit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Every supported model backend goes through the any-llm bridge with the
	// same option pattern: optional APIKey + optional BaseURL.
	for _, providerName := range config.ValidLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.LLMConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterTTS("voicebox", func(entry config.TTSConfig) (tts.Provider, error) {
		var opts []voicebox.Option
		if entry.Language != "" {
			opts = append(opts, voicebox.WithDefaultLanguage(entry.Language))
		}
		return voicebox.New(entry.BaseURL, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	audioProvider, err := malgodev.NewProvider()
	if err != nil {
		return nil, fmt.Errorf("initialise audio backend: %w", err)
	}
	ps.Audio = audioProvider

	if cfg.Agent.ListenOnly {
		return ps, nil
	}

	p, err := reg.CreateLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.LLM.Provider, err)
	}
	ps.LLM = p
	slog.Info("provider created", "kind", "llm", "name", cfg.LLM.Provider, "model", cfg.LLM.Model)

	t, err := reg.CreateTTS(cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider: %w", err)
	}
	ps.TTS = t
	slog.Info("provider created", "kind", "tts", "url", cfg.TTS.BaseURL)

	return ps, nil
}

// ── Interactive controls ──────────────────────────────────────────────────────

// controlLoop reads single-letter commands from stdin until ctx is cancelled.
// Reads from stdin block without a deadline, so the goroutine may outlive the
// loop; it only touches the orchestrator, which is safe after shutdown.
func controlLoop(ctx context.Context, quit func(), a *app.App) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch scanner.Text() {
		case "m":
			muted := a.Orchestrator().ToggleMute()
			fmt.Printf("muted: %v\n", muted)
		case "f":
			a.Orchestrator().ForceRespond(ctx)
		case "s":
			a.Orchestrator().SkipResponse()
		case "q":
			quit()
			return
		case "":
		default:
			fmt.Println("commands: m (mute), f (force respond), s (skip), q (quit)")
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║          standin — startup summary     ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printRow("Agent", cfg.Agent.Name)
	mode := "responding"
	if cfg.Agent.ListenOnly {
		mode = "listen-only"
	}
	printRow("Mode", mode)
	printRow("LLM", summaryValue(cfg.LLM.Provider, cfg.LLM.Model))
	printRow("Synthesis", summaryValue("voicebox", cfg.TTS.VoiceProfileID))
	printRow("Recognizer", cfg.Recognizer.BinaryPath)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚════════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 20 {
		value = value[:17] + "…"
	}
	fmt.Printf("║  %-13s : %-20s ║\n", kind, value)
}

func summaryValue(name, detail string) string {
	if name == "" {
		return ""
	}
	if detail == "" {
		return name
	}
	return name + " / " + detail
}

// ── Devices ───────────────────────────────────────────────────────────────────

// printDevices lists capture and playback devices the audio backend sees.
func printDevices() int {
	provider, err := malgodev.NewProvider()
	if err != nil {
		fmt.Fprintf(os.Stderr, "standin: %v\n", err)
		return 1
	}
	defer provider.Close()

	for _, kind := range []device.Kind{device.Input, device.Output} {
		devs, err := provider.List(kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "standin: list %s devices: %v\n", kind, err)
			return 1
		}
		fmt.Printf("%s devices:\n", kind)
		for _, d := range devs {
			fmt.Printf("  [%d] %s (%d Hz)\n", d.Index, d.Name, d.DefaultSampleRate)
		}
	}
	return 0
}

// ── Logger ────────────────────────────────────────────────────────────────────

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
