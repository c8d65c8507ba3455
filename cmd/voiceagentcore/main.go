// Command voiceagentcore is the main entry point for the voice agent
// orchestration core.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voiceagentcore/internal/app"
	"github.com/MrWong99/voiceagentcore/internal/config"
	"github.com/MrWong99/voiceagentcore/internal/dispatch"
	"github.com/MrWong99/voiceagentcore/internal/observe"
	"github.com/MrWong99/voiceagentcore/pkg/transport/stdio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	roomName := flag.String("room", "local-room", "room name to dispatch the stdio demo room into")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voiceagentcore: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voiceagentcore: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voiceagentcore starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"mode", cfg.Mode,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "voiceagentcore",
	})
	if err != nil {
		slog.Error("failed to init observability provider", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownObserve(context.Background()); err != nil {
			slog.Error("observability shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Application wiring ────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg.ToAppConfig(), app.WithLogger(logger), app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Admin/health HTTP surface ─────────────────────────────────────────────
	var adminServer *http.Server
	if cfg.Server.ListenAddr != "" {
		adminServer = newAdminServer(cfg.Server.ListenAddr, application, metrics)
		go func() {
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("admin server error", "err", err)
			}
		}()
		slog.Info("admin/health surface listening", "addr", cfg.Server.ListenAddr)
	}

	// ── Stdio demo room ────────────────────────────────────────────────────────
	room := stdio.NewStdRoom(*roomName)
	outcome := application.Dispatch(ctx, room, dispatch.JobRequest{
		RoomName:  *roomName,
		AgentID:   cfg.PrimaryAgentID,
		AgentName: cfg.PrimaryAgentName,
		SessionID: *roomName + "-session",
	})
	if outcome != dispatch.Accepted {
		slog.Error("dispatch rejected demo room", "outcome", outcome.String())
		return 1
	}

	slog.Info("server ready — type a line and press Enter to talk; Ctrl+C to shut down")

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
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin server shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// ── Admin/health HTTP surface ────────────────────────────────────────────────

func newAdminServer(addr string, application *app.App, metrics *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok, active_sessions=%d\n", application.ActiveSessions())
		metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds())
	})
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
