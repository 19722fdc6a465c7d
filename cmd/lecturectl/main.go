package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/adapters/cli"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/bootstrap"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/config"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(cli.Deps{
		Open:         open,
		TextPipeline: textPipeline,
	})
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func open(ctx context.Context, withQueue bool) (*cli.Services, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logging.SetDefaultText(os.Stderr, cfg.LogLevel)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{WithoutQueue: !withQueue})
	if err != nil {
		return nil, nil, err
	}
	svc := &cli.Services{
		Query:         app.Query,
		Ingest:        app.Ingest,
		Upload:        app.Upload,
		Runs:          app.Runs,
		DefaultBucket: cfg.DocumentBucket,
	}
	return svc, app.Close, nil
}

func textPipeline() (ports.TextExtractor, ports.Chunker, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	extractor, chunker := bootstrap.NewTextPipeline(cfg)
	return extractor, chunker, nil
}
