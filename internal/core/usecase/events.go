package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
)

const (
	defaultEventBuffer  = 64
	eventPublishTimeout = 5 * time.Second
)

// EventForwarder publishes phase changes of a workflow from its own goroutine
// so a slow broker never holds up the workflow. Progress-only updates are not
// forwarded. When the buffer is full the event is dropped and logged.
type EventForwarder struct {
	publisher ports.EventPublisher
	logger    *slog.Logger

	mu           sync.Mutex
	lastPhase    domain.Phase
	lastRevision uint64
	closed       bool

	queue chan domain.View
	done  chan struct{}
}

func NewEventForwarder(publisher ports.EventPublisher, logger *slog.Logger, buffer int) *EventForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	f := &EventForwarder{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan domain.View, buffer),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

// Observe is meant to be passed to Workflow.Subscribe.
func (f *EventForwarder) Observe(view domain.View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || view.Revision <= f.lastRevision {
		return
	}
	f.lastRevision = view.Revision
	if view.Phase == f.lastPhase {
		return
	}
	f.lastPhase = view.Phase

	select {
	case f.queue <- view:
	default:
		f.logger.Warn("workflow_event_dropped", "phase", view.Phase, "revision", view.Revision)
	}
}

// Close stops accepting views and waits until queued ones are published.
func (f *EventForwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()

	<-f.done
}

func (f *EventForwarder) run() {
	defer close(f.done)
	for view := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
		if err := f.publisher.PublishWorkflowEvent(ctx, view); err != nil {
			f.logger.Warn("workflow_event_publish_failed",
				"phase", view.Phase,
				"revision", view.Revision,
				"reason", publishFailureReason(err),
				"error", err,
			)
		}
		cancel()
	}
}

func publishFailureReason(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "rejected"
	case domain.IsKind(err, domain.ErrTemporary):
		return "unavailable"
	default:
		return "error"
	}
}
