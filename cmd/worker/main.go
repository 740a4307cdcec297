package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialerops/report-pipeline/internal/bootstrap"
	"github.com/dialerops/report-pipeline/internal/config"
	"github.com/dialerops/report-pipeline/internal/observability/logging"
	"github.com/dialerops/report-pipeline/internal/observability/metrics"
)

// The worker tails the pipeline event stream and logs each event with its
// payload fields. Downstream fan-out (notifier, dashboard push) hangs off the
// same subscription.
func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux(workerMetrics),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker subscribed", "prefix", cfg.NATSSubjectPrefix)
	err = app.Bus.SubscribePipelineEvents(ctx, func(handlerCtx context.Context, subject string, payload []byte) error {
		workerMetrics.StartEvent()
		start := time.Now()

		handleCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()
		handleErr := handleEvent(handleCtx, subject, payload)

		workerMetrics.FinishEvent("worker", subject, time.Since(start), handleErr)
		return handleErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func metricsMux(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func handleEvent(_ context.Context, subject string, payload []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		slog.Warn("undecodable pipeline event", "subject", subject, "error", err)
		return err
	}
	slog.Info("pipeline event", "subject", subject, "fields", fields)
	return nil
}
