package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/kirillkom/legal-pdf-workflow/internal/config"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/usecase"
	"github.com/kirillkom/legal-pdf-workflow/internal/infrastructure/events/nats"
	"github.com/kirillkom/legal-pdf-workflow/internal/infrastructure/processing/rest"
	"github.com/kirillkom/legal-pdf-workflow/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-pdf-workflow/internal/observability/metrics"
)

const serviceName = "workflowd"

type App struct {
	Config config.Config
	Logger *slog.Logger

	Workflow    *usecase.Workflow
	Service     *rest.Client
	HTTPMetrics *metrics.HTTPServerMetrics
	Executor    *resilience.Executor

	closeFn func()
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg, logger))

	service, err := rest.NewWithOptions(cfg.ServiceBaseURL, rest.Options{
		Timeout:            cfg.ServiceTimeout,
		ResilienceExecutor: executor,
		RequestsPerSecond:  cfg.ServiceRateLimitRPS,
		Burst:              cfg.ServiceRateLimitBurst,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init processing service client: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	workflowMetrics := metrics.NewWorkflowMetrics(serviceName, httpMetrics.Registerer())

	workflow := usecase.NewWorkflowFromService(service, usecase.WorkflowOptions{
		PollMaxAttempts: cfg.PollMaxAttempts,
		PollInterval:    cfg.PollInterval,
		Metrics:         workflowMetrics,
		Logger:          logger,
	})

	var (
		publisher *nats.Publisher
		forwarder *usecase.EventForwarder
	)
	if cfg.EventsEnabled {
		publisher, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			workflow.Close()
			return nil, fmt.Errorf("init workflow event publisher: %w", err)
		}
		forwarder = usecase.NewEventForwarder(publisher, logger, 0)
		workflow.Subscribe(forwarder.Observe)
		logger.Info("workflow_events_enabled", "nats_url", cfg.NATSURL, "subject", cfg.NATSSubject)
	}

	return &App{
		Config: cfg,
		Logger: logger,

		Workflow:    workflow,
		Service:     service,
		HTTPMetrics: httpMetrics,
		Executor:    executor,

		closeFn: func() {
			workflow.Close()
			if forwarder != nil {
				forwarder.Close()
			}
			if publisher != nil {
				publisher.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config, logger *slog.Logger) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.Retry.MaxAttempts = cfg.RetryMaxAttempts
	rc.BreakerEnabled = cfg.BreakerEnabled
	rc.Operations = rest.OperationPolicies()
	rc.Logger = logger
	return rc
}
