package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"TutorChat/internal/archive"
	"TutorChat/internal/backend"
	"TutorChat/internal/cache"
	"TutorChat/internal/chatbot"
	"TutorChat/internal/config"
	"TutorChat/internal/session"
	"TutorChat/internal/telemetry"
	"TutorChat/internal/web"
)

func main() {
	flags := pflag.NewFlagSet("tutorchat", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to a YAML config file")
	printTranscript := flags.String("print-transcript", "", "Print the archived transcript of a session ID and exit")

	flags.String("mode", config.ModeWeb, "Presentation layer (web|console)")
	flags.Int("memory_length", config.DefaultMemoryLength, "Number of past turns replayed as model context")
	flags.String("system_prompt", config.DefaultSystemPrompt, "Instruction sent before every conversation")
	flags.String("provider.backend", backend.BackendGroq, "LLM backend (groq|openai|grok|anthropic|ollama)")
	flags.String("provider.model", "", "Model name (backend default when empty)")
	flags.String("provider.base_url", "", "Override the backend API base URL")
	flags.String("web.addr", ":8080", "Listen address for web mode")
	flags.String("cache.type", "", "Reply cache (memory|redis, empty disables)")
	flags.String("archive.path", "", "SQLite transcript archive path (empty disables)")
	flags.String("log.level", "info", "Log level (debug|info|warn|error)")
	flags.Bool("telemetry.enabled", true, "Export OpenTelemetry traces and metrics to log files")

	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *printTranscript != "" {
		if err := dumpTranscript(cfg, *printTranscript); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logFile, err := telemetry.InitLogger(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logFile.Close()

	tracer, meter := telemetry.Noop()
	if cfg.Telemetry.Enabled {
		var cleanup func()
		tracer, meter, cleanup, err = telemetry.InitTelemetry(ctx, cfg.Log.Dir)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer cleanup()
	}

	provider, err := backend.New(cfg.BackendOptions())
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	store, err := cache.New(cache.Options{
		Type:     cfg.Cache.Type,
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		TTL:      cfg.Cache.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	opts := chatbot.Options{
		Provider:     provider,
		Cache:        store,
		Logger:       logger,
		Tracer:       tracer,
		Meter:        meter,
		SystemPrompt: cfg.SystemPrompt,
		MemoryLength: cfg.MemoryLength,
	}
	if cfg.Archive.Path != "" {
		arc, err := archive.Open(cfg.Archive.Path, provider.Name())
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer arc.Close()
		opts.Recorder = arc
	}

	bot, err := chatbot.New(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize chatbot: %w", err)
	}

	logger.Info("starting",
		"mode", cfg.Mode,
		"backend", provider.Name(),
		"model", provider.Model(),
		"memory_length", cfg.MemoryLength,
	)

	if cfg.Mode == config.ModeConsole {
		console := chatbot.NewConsole(bot, cfg.Title, cfg.Greeting, os.Stdin, os.Stdout)
		if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	return serve(ctx, cfg, bot, logger, logFile)
}

func serve(ctx context.Context, cfg *config.Config, bot *chatbot.ChatBot, logger *slog.Logger, logOutput io.Writer) error {
	web.SetFrameworkLogger(logOutput, telemetry.ParseLevel(cfg.Log.Level))

	srv, err := web.New(web.Options{
		Bot:          bot,
		Sessions:     session.NewManager(cfg.Session.IdleTimeout),
		Title:        cfg.Title,
		Greeting:     cfg.Greeting,
		RateLimitRPS: cfg.Web.RateLimitRPS,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize web server: %w", err)
	}

	h := srv.Build(cfg.Web.Addr)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down web server", "error", err)
		}
	}()

	fmt.Printf("Serving %s on %s\n", cfg.Title, cfg.Web.Addr)
	return h.Run()
}

func dumpTranscript(cfg *config.Config, sessionID string) error {
	if cfg.Archive.Path == "" {
		return fmt.Errorf("archive.path is not configured")
	}

	arc, err := archive.Open(cfg.Archive.Path, cfg.Provider.Backend)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer arc.Close()

	entries, err := arc.Transcript(context.Background(), sessionID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no archived messages for session %s", sessionID)
	}

	for _, e := range entries {
		fmt.Printf("[%s] %s: %s\n", e.Timestamp.Format(time.RFC3339), e.Role, e.Content)
	}
	return nil
}
