// Command workflow-events prints workflow transitions published by workflowd
// as JSON lines on stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/legal-pdf-workflow/internal/config"
	"github.com/kirillkom/legal-pdf-workflow/internal/infrastructure/events/nats"
	"github.com/kirillkom/legal-pdf-workflow/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLoggerTo(os.Stderr, "workflow-events", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger, os.Stdout)
	stop()
	if err != nil {
		logger.Error("workflow_events_failed", "error", err)
		os.Exit(1)
	}
}

// run tails the workflow subject until ctx is done. A tail is only useful
// against a live server, so it does not wait for one to appear.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger, stdout io.Writer) error {
	failFast := false
	subscriber, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		RetryOnFailedConnect: &failFast,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.NATSURL, err)
	}
	defer subscriber.Close()

	out := json.NewEncoder(stdout)
	logger.Info("workflow_events_subscribed", "subject", cfg.NATSSubject)
	err = subscriber.SubscribeWorkflowEvents(ctx, func(_ context.Context, event nats.Event) error {
		return out.Encode(event)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.NATSSubject, err)
	}
	return nil
}
