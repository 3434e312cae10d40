package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
)

const (
	DefaultPollMaxAttempts = 20
	DefaultPollInterval    = 3 * time.Second
)

// SnapshotFunc applies a snapshot. The returned func, when non-nil, runs after
// the delivery lock is released so it may cancel the session.
type SnapshotFunc func(snapshot *domain.ProcessingResult) func()

type CompletionPredicate func(snapshot *domain.ProcessingResult) bool

// ImageAnalysisReady is the default completion predicate.
func ImageAnalysisReady(snapshot *domain.ProcessingResult) bool {
	return snapshot.HasImageAnalysis()
}

type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
	Predicate   CompletionPredicate
	// OnAttempt runs after every fetch, failed or not, before the snapshot is delivered.
	OnAttempt func(attempt int, err error)
}

func (o PollOptions) normalize() PollOptions {
	out := o
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultPollMaxAttempts
	}
	if out.Interval <= 0 {
		out.Interval = DefaultPollInterval
	}
	if out.Predicate == nil {
		out.Predicate = ImageAnalysisReady
	}
	return out
}

type PollReport struct {
	SessionID string
	Outcome   domain.Outcome
	Attempts  int
	Snapshots int
	Err       error
}

// ResultPollingEngine fetches a result URL until the completion predicate
// holds or the attempt budget is spent.
type ResultPollingEngine struct {
	fetcher ports.ResultFetcher
	logger  *slog.Logger
}

func NewResultPollingEngine(fetcher ports.ResultFetcher, logger *slog.Logger) *ResultPollingEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultPollingEngine{
		fetcher: fetcher,
		logger:  logger,
	}
}

// PollHandle controls one polling session.
type PollHandle struct {
	id string

	stop      chan struct{}
	stopOnce  sync.Once
	cancelled atomic.Bool
	attempts  atomic.Int64
	deliverMu sync.Mutex

	done   chan struct{}
	report PollReport
}

func (h *PollHandle) ID() string { return h.id }

// Cancel stops the session before its next fetch. A fetch already in flight
// keeps its context and completes, but its result is discarded. Once Cancel
// returns no further snapshot is delivered. It must not be called from inside
// the snapshot callback; the func that callback returns is safe.
func (h *PollHandle) Cancel() {
	h.cancelled.Store(true)
	h.stopOnce.Do(func() { close(h.stop) })
	// Empty critical section: waits out a delivery already in progress.
	h.deliverMu.Lock()
	h.deliverMu.Unlock()
}

func (h *PollHandle) Attempts() int {
	return int(h.attempts.Load())
}

func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the session ends and returns its report.
func (h *PollHandle) Wait() PollReport {
	<-h.done
	return h.report
}

func (h *PollHandle) stopped(ctx context.Context) bool {
	return h.cancelled.Load() || ctx.Err() != nil
}

func (h *PollHandle) deliver(ctx context.Context, onSnapshot SnapshotFunc, snapshot *domain.ProcessingResult) bool {
	h.deliverMu.Lock()
	if h.stopped(ctx) {
		h.deliverMu.Unlock()
		return false
	}
	var after func()
	if onSnapshot != nil {
		after = onSnapshot(snapshot)
	}
	h.deliverMu.Unlock()

	if after != nil {
		after()
	}
	return true
}

// Start launches a polling session against target. Cancelling ctx ends the
// session and aborts an in-flight fetch.
func (e *ResultPollingEngine) Start(ctx context.Context, target string, onSnapshot SnapshotFunc, opts PollOptions) *PollHandle {
	opts = opts.normalize()
	handle := &PollHandle{
		id:   uuid.NewString(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(handle.done)
		handle.report = e.run(ctx, handle, target, onSnapshot, opts)
		e.logger.Info("poll_session_finished",
			"session_id", handle.id,
			"outcome", handle.report.Outcome,
			"attempts", handle.report.Attempts,
			"snapshots", handle.report.Snapshots,
		)
	}()

	return handle
}

func (e *ResultPollingEngine) run(
	ctx context.Context,
	handle *PollHandle,
	target string,
	onSnapshot SnapshotFunc,
	opts PollOptions,
) PollReport {
	report := PollReport{SessionID: handle.id}

	if err := validateResultURL(target); err != nil {
		report.Outcome = domain.OutcomeFailed
		report.Err = domain.WrapError(domain.ErrInvalidInput, "start polling", err)
		return report
	}

	e.logger.Info("poll_session_started",
		"session_id", handle.id,
		"url", target,
		"max_attempts", opts.MaxAttempts,
		"interval_ms", opts.Interval.Milliseconds(),
	)

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if handle.stopped(ctx) {
			report.Outcome = domain.OutcomeCancelled
			return report
		}

		snapshot, err := e.fetcher.FetchResult(ctx, target)
		if err == nil && snapshot == nil {
			err = errors.New("empty snapshot")
		}
		handle.attempts.Store(int64(attempt))
		report.Attempts = attempt

		if handle.stopped(ctx) {
			report.Outcome = domain.OutcomeCancelled
			return report
		}
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, err)
		}

		if err != nil {
			// The service may still be warming up; the attempt is spent and polling goes on.
			e.logger.Warn("poll_attempt_failed",
				"session_id", handle.id,
				"attempt", attempt,
				"max_attempts", opts.MaxAttempts,
				"error", err,
			)
		} else {
			if !handle.deliver(ctx, onSnapshot, snapshot) {
				report.Outcome = domain.OutcomeCancelled
				return report
			}
			report.Snapshots++
			if opts.Predicate(snapshot) {
				report.Outcome = domain.OutcomeComplete
				return report
			}
		}

		if attempt == opts.MaxAttempts {
			break
		}
		if !sleepContext(ctx, handle.stop, opts.Interval) {
			report.Outcome = domain.OutcomeCancelled
			return report
		}
	}

	report.Outcome = domain.OutcomeExhausted
	return report
}

func validateResultURL(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("result url is empty")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse result url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("result url %q is not absolute http(s)", target)
	}
	if parsed.Host == "" {
		return fmt.Errorf("result url %q has no host", target)
	}
	return nil
}

func sleepContext(ctx context.Context, stop <-chan struct{}, wait time.Duration) bool {
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
