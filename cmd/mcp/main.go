package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/adapters/mcp"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/bootstrap"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/config"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/observability/logging"
)

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewTextLogger(os.Stderr, cfg.LogLevel).With("service", "mcp"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{WithoutQueue: true})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv, err := mcpadapter.NewServer(app.Query, app.Runs)
	if err != nil {
		slog.Error("mcp_server_error", "error", err)
		os.Exit(1)
	}
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		slog.Error("mcp_serve_error", "error", err)
		os.Exit(1)
	}
}
