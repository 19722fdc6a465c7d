package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/bootstrap"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/config"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/observability/logging"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics, app)

	slog.Info("worker_subscribed",
		"subject", cfg.NATSSubject,
		"queue_group", cfg.NATSQueueGroup,
		"concurrency", cfg.IngestConcurrency,
	)
	err = app.Queue.SubscribeDocumentUploaded(ctx, func(handlerCtx context.Context, ref domain.DocumentRef) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, cfg.IngestTimeout())
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()
		report, err := app.Ingest.Ingest(runCtx, ref)
		finishRun(workerMetrics, report, err, time.Since(start))
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	slog.Info("worker_stopped")
}

func finishRun(m *metrics.WorkerMetrics, report *domain.IngestionReport, err error, elapsed time.Duration) {
	if report == nil {
		state := string(domain.StateFailed)
		if err == nil {
			state = "unknown"
		}
		m.FinishDocument(serviceName, state, "", 0, 0, elapsed)
		return
	}
	m.FinishDocument(serviceName, string(report.State), string(report.FailedStep), report.Upserted, report.Attempts, elapsed)
}

func startMetricsServer(port string, m *metrics.WorkerMetrics, app *bootstrap.App) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_error", "error", err)
		}
	}()
	return server
}
