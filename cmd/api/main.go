package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/adapters/http"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/bootstrap"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/config"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/observability/logging"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.Query, app.Upload, app.Runs).
		WithReadiness(app.Ready).
		WithMetrics(metrics.NewHTTPServerMetrics("api")).
		Handler()
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Generation may retry once per attempt timeout.
		WriteTimeout: cfg.HTTPTimeout()*time.Duration(cfg.RetryMaxAttempts) + 30*time.Second,
		IdleTimeout:  90 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		slog.Error("listen_error", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.HTTPMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.HTTPMaxConnections)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "max_connections", cfg.HTTPMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("api_server_error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_error", "error", err)
	}
	slog.Info("api_stopped")
}
