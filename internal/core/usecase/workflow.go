package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
)

type WorkflowOptions struct {
	PollMaxAttempts int
	PollInterval    time.Duration
	PollPredicate   CompletionPredicate
	Metrics         ports.WorkflowMetrics
	Logger          *slog.Logger
}

// Workflow is the single owner of the workflow state. Commands start at most
// one background operation; each operation remembers the generation it was
// started under and its results are dropped once the generation has moved on.
type Workflow struct {
	transfer  *TransferController
	review    *PreprocessingReviewStore
	submitter *AISubmissionController
	poller    *ResultPollingEngine

	pollOpts PollOptions
	metrics  ports.WorkflowMetrics
	logger   *slog.Logger

	mu           sync.Mutex
	state        domain.WorkflowState
	processing   *domain.ProcessingResult
	resultURL    string
	status       string
	errMessage   string
	generation   uint64
	revision     uint64
	cancelActive context.CancelFunc
	activePoll   *PollHandle
	lastTransfer chan struct{}
	observers    []func(domain.View)

	wg sync.WaitGroup
}

func NewWorkflow(
	transfer *TransferController,
	review *PreprocessingReviewStore,
	submitter *AISubmissionController,
	poller *ResultPollingEngine,
	opts WorkflowOptions,
) *Workflow {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopWorkflowMetrics{}
	}
	return &Workflow{
		transfer:  transfer,
		review:    review,
		submitter: submitter,
		poller:    poller,
		pollOpts: PollOptions{
			MaxAttempts: opts.PollMaxAttempts,
			Interval:    opts.PollInterval,
			Predicate:   opts.PollPredicate,
		}.normalize(),
		metrics: metrics,
		logger:  logger,
		state:   domain.Idle{},
	}
}

// NewWorkflowFromService wires the four controllers around one service.
func NewWorkflowFromService(service ports.ProcessingService, opts WorkflowOptions) *Workflow {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return NewWorkflow(
		NewTransferController(service, logger),
		NewPreprocessingReviewStore(),
		NewAISubmissionController(service, logger),
		NewResultPollingEngine(service, logger),
		opts,
	)
}

// Subscribe registers fn to receive a view after every change. Views may
// arrive out of order across goroutines; Revision orders them.
func (w *Workflow) Subscribe(fn func(domain.View)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, fn)
}

func (w *Workflow) View() domain.View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

// SelectFile always wins: whatever is in flight is superseded.
func (w *Workflow) SelectFile(doc domain.Document) error {
	if doc.IsEmpty() {
		return domain.WrapError(domain.ErrInvalidInput, "select file", errors.New("document is empty"))
	}

	w.mu.Lock()
	poll := w.supersedeLocked()
	w.review.Clear()
	w.processing = nil
	w.resultURL = ""
	w.status = ""
	w.errMessage = ""
	w.transitionLocked(domain.SelectingFile{Document: doc})
	view, observers := w.snapshotLocked()
	w.mu.Unlock()

	if poll != nil {
		poll.Cancel()
	}
	w.logger.Info("file_selected", "document", doc.Name, "bytes", doc.Size, "mime_type", doc.MimeType)
	notify(observers, view)
	return nil
}

func (w *Workflow) BeginTransfer(ctx context.Context) error {
	w.mu.Lock()
	var doc domain.Document
	switch s := w.state.(type) {
	case domain.SelectingFile:
		doc = s.Document
	case domain.Idle:
		if s.Retained == nil {
			w.mu.Unlock()
			return domain.WrapError(domain.ErrProtocolViolation, "begin transfer", errors.New("no file selected"))
		}
		doc = *s.Retained
	default:
		phase := w.state.Phase()
		w.mu.Unlock()
		return domain.WrapError(domain.ErrProtocolViolation, "begin transfer", fmt.Errorf("cannot begin a transfer while %s", phase))
	}

	opCtx, gen := w.startOperationLocked(ctx)
	w.review.Clear()
	w.processing = nil
	w.resultURL = ""
	w.errMessage = ""
	w.status = transferStatus(0)
	w.transitionLocked(domain.Transferring{Document: doc})
	view, observers := w.snapshotLocked()
	previous, done := w.lastTransfer, make(chan struct{})
	w.lastTransfer = done
	w.wg.Add(1)
	w.mu.Unlock()

	notify(observers, view)
	go w.runTransfer(opCtx, gen, doc, previous, done)
	return nil
}

// CancelTransfer cancels whatever operation is running. The transition is
// applied immediately; the cancelled operation's late result is dropped.
func (w *Workflow) CancelTransfer() {
	w.mu.Lock()
	var poll *PollHandle
	switch s := w.state.(type) {
	case domain.Transferring:
		poll = w.supersedeLocked()
		w.transfer.Cancel()
		doc := s.Document
		w.status = ""
		w.errMessage = messageCancelledByUser
		w.transitionLocked(domain.Idle{Retained: &doc})
	case domain.Submitting:
		poll = w.supersedeLocked()
		w.status = ""
		w.errMessage = messageCancelledByUser
		w.transitionLocked(domain.AwaitingReview{Document: s.Document, Preprocessing: s.Preprocessing})
	case domain.Polling:
		poll = w.supersedeLocked()
		w.status = ""
		w.errMessage = messageCancelledByUser
		w.transitionLocked(domain.Settled{
			Outcome:   domain.OutcomeCancelled,
			Document:  s.Document,
			ResultURL: s.ResultURL,
			Result:    s.Result,
		})
	default:
		w.mu.Unlock()
		return
	}
	view, observers := w.snapshotLocked()
	w.mu.Unlock()

	if poll != nil {
		poll.Cancel()
	}
	notify(observers, view)
}

func (w *Workflow) ConfirmAndSubmit(ctx context.Context) error {
	w.mu.Lock()
	review, ok := w.state.(domain.AwaitingReview)
	if !ok {
		phase := w.state.Phase()
		w.mu.Unlock()
		return domain.WrapError(domain.ErrProtocolViolation, "confirm and submit", fmt.Errorf("no preprocessing result awaiting review (state %s)", phase))
	}
	pre := w.review.Current()
	if pre == nil {
		w.mu.Unlock()
		return domain.WrapError(domain.ErrProtocolViolation, "confirm and submit", errors.New("no preprocessing result stored"))
	}

	opCtx, gen := w.startOperationLocked(ctx)
	w.errMessage = ""
	w.status = statusSubmitting
	w.transitionLocked(domain.Submitting{Document: review.Document, Preprocessing: pre})
	view, observers := w.snapshotLocked()
	w.wg.Add(1)
	w.mu.Unlock()

	notify(observers, view)
	go w.runSubmit(opCtx, gen, review.Document, pre)
	return nil
}

// Wait blocks until every background operation has returned.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

// Close cancels any running operation and waits for it to return.
func (w *Workflow) Close() {
	w.mu.Lock()
	poll := w.supersedeLocked()
	w.mu.Unlock()
	if poll != nil {
		poll.Cancel()
	}
	w.wg.Wait()
}

// runTransfer waits for a cancelled predecessor to unwind first: the transfer
// controller accepts one upload at a time.
func (w *Workflow) runTransfer(ctx context.Context, gen uint64, doc domain.Document, previous <-chan struct{}, done chan struct{}) {
	defer w.wg.Done()
	defer close(done)

	if previous != nil {
		select {
		case <-previous:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			// Superseded before the upload started.
			return
		}
	}

	result, err := w.transfer.BeginTransfer(ctx, doc, func(percent int) {
		w.applyProgress(gen, percent)
	})
	w.metrics.RecordTransfer(operationStatus(err), doc.Size)

	w.mu.Lock()
	if !w.currentLocked(gen) {
		w.mu.Unlock()
		w.logger.Debug("stale_transfer_dropped", "generation", gen, "document", doc.Name)
		return
	}
	w.cancelActive = nil
	switch {
	case err == nil:
		w.review.Accept(result)
		w.status = statusPreprocessed
		w.transitionLocked(domain.AwaitingReview{Document: doc, Preprocessing: result})
	case domain.IsKind(err, domain.ErrUserCancelled):
		w.status = ""
		w.errMessage = messageCancelledByUser
		w.transitionLocked(domain.Idle{Retained: &doc})
	default:
		w.status = ""
		w.errMessage = failureMessage(messageTransferFailed, err)
		w.transitionLocked(domain.SelectingFile{Document: doc})
	}
	view, observers := w.snapshotLocked()
	w.mu.Unlock()

	notify(observers, view)
}

func (w *Workflow) applyProgress(gen uint64, percent int) {
	w.mu.Lock()
	state, ok := w.state.(domain.Transferring)
	if !ok || !w.currentLocked(gen) {
		w.mu.Unlock()
		return
	}
	state.Progress = percent
	w.state = state
	w.status = transferStatus(percent)
	w.revision++
	view, observers := w.snapshotLocked()
	w.mu.Unlock()

	notify(observers, view)
}

func (w *Workflow) runSubmit(ctx context.Context, gen uint64, doc domain.Document, pre *domain.PreprocessingResult) {
	defer w.wg.Done()

	submission, err := w.submitter.Submit(ctx, pre)
	w.metrics.RecordSubmission(operationStatus(err))

	w.mu.Lock()
	if !w.currentLocked(gen) {
		w.mu.Unlock()
		w.logger.Debug("stale_submission_dropped", "generation", gen)
		return
	}
	switch {
	case err == nil:
		w.processing = submission.Result
		w.resultURL = submission.ResultURL
		if submission.ResultURL == "" {
			w.cancelActive = nil
			w.status = statusComplete
			w.transitionLocked(domain.Settled{
				Outcome:  domain.OutcomeComplete,
				Document: doc,
				Result:   submission.Result,
			})
			break
		}
		handle := w.startPollLocked(ctx, gen, submission.ResultURL)
		w.status = statusAwaitingImage
		w.transitionLocked(domain.Polling{
			Document:  doc,
			SessionID: handle.ID(),
			ResultURL: submission.ResultURL,
			Result:    submission.Result,
		})
	case domain.IsKind(err, domain.ErrUserCancelled):
		w.cancelActive = nil
		w.status = ""
		w.errMessage = messageCancelledByUser
		w.transitionLocked(domain.AwaitingReview{Document: doc, Preprocessing: pre})
	default:
		w.cancelActive = nil
		w.status = ""
		w.errMessage = failureMessage(messageSubmissionFailed, err)
		w.transitionLocked(domain.AwaitingReview{Document: doc, Preprocessing: pre})
	}
	view, observers := w.snapshotLocked()
	w.mu.Unlock()

	notify(observers, view)
}

// startPollLocked runs under w.mu; the snapshot callbacks only take the lock
// from the poll goroutine, so they never re-enter here.
func (w *Workflow) startPollLocked(ctx context.Context, gen uint64, target string) *PollHandle {
	opts := w.pollOpts
	opts.OnAttempt = func(attempt int, err error) {
		w.metrics.RecordPollAttempt(operationStatus(err))
		w.applyPollAttempt(gen, attempt)
	}
	handle := w.poller.Start(ctx, target, func(snapshot *domain.ProcessingResult) func() {
		return w.applySnapshot(gen, snapshot)
	}, opts)
	w.activePoll = handle

	w.wg.Add(1)
	go w.awaitPoll(gen, handle)
	return handle
}

func (w *Workflow) applyPollAttempt(gen uint64, attempt int) {
	w.mu.Lock()
	state, ok := w.state.(domain.Polling)
	if !ok || !w.currentLocked(gen) {
		w.mu.Unlock()
		return
	}
	state.Attempts = attempt
	w.state = state
	w.revision++
	view, observers := w.snapshotLocked()
	w.mu.Unlock()

	notify(observers, view)
}

// applySnapshot stores the snapshot and returns the observer notification.
// The poll engine runs it once its delivery lock is released, so observers may
// cancel or reselect from inside the callback.
func (w *Workflow) applySnapshot(gen uint64, snapshot *domain.ProcessingResult) func() {
	w.mu.Lock()
	state, ok := w.state.(domain.Polling)
	if !ok || !w.currentLocked(gen) {
		w.mu.Unlock()
		w.logger.Debug("stale_snapshot_dropped", "generation", gen)
		return nil
	}
	state.Result = snapshot
	w.state = state
	w.processing = snapshot
	w.revision++
	view, observers := w.snapshotLocked()
	w.mu.Unlock()

	return func() { notify(observers, view) }
}

func (w *Workflow) awaitPoll(gen uint64, handle *PollHandle) {
	defer w.wg.Done()

	report := handle.Wait()
	w.metrics.RecordPollSession(report.Outcome, report.Attempts)

	w.mu.Lock()
	state, ok := w.state.(domain.Polling)
	if !ok || !w.currentLocked(gen) || state.SessionID != report.SessionID {
		w.mu.Unlock()
		return
	}
	w.cancelActive = nil
	w.activePoll = nil
	settled := domain.Settled{
		Outcome:   report.Outcome,
		Document:  state.Document,
		ResultURL: state.ResultURL,
		Result:    state.Result,
	}
	switch report.Outcome {
	case domain.OutcomeComplete:
		w.status = statusImageReady
	case domain.OutcomeExhausted:
		w.status = statusImageTimedOut
	case domain.OutcomeCancelled:
		w.status = ""
		w.errMessage = messageCancelledByUser
	default:
		settled.Outcome = domain.OutcomeFailed
		w.status = ""
		w.errMessage = failureMessage(messagePollSessionFailed, report.Err)
	}
	w.transitionLocked(settled)
	view, observers := w.snapshotLocked()
	w.mu.Unlock()

	notify(observers, view)
}

// startOperationLocked supersedes the previous operation and returns the
// context and generation of a new one. The operation context is detached from
// the caller's cancellation so a finished HTTP request does not abort it.
func (w *Workflow) startOperationLocked(ctx context.Context) (context.Context, uint64) {
	w.supersedeLocked()
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancelActive = cancel
	return opCtx, w.generation
}

// supersedeLocked invalidates the running operation. The returned poll handle,
// if any, must be cancelled after w.mu is released.
func (w *Workflow) supersedeLocked() *PollHandle {
	w.generation++
	if w.cancelActive != nil {
		w.cancelActive()
		w.cancelActive = nil
	}
	poll := w.activePoll
	w.activePoll = nil
	return poll
}

func (w *Workflow) currentLocked(gen uint64) bool {
	return gen == w.generation
}

func (w *Workflow) transitionLocked(next domain.WorkflowState) {
	from := w.state.Phase()
	w.state = next
	w.revision++
	w.metrics.RecordTransition(from, next.Phase())
	w.logger.Info("workflow_transition",
		"from", from,
		"to", next.Phase(),
		"generation", w.generation,
		"revision", w.revision,
	)
}

func (w *Workflow) snapshotLocked() (domain.View, []func(domain.View)) {
	observers := make([]func(domain.View), len(w.observers))
	copy(observers, w.observers)
	return w.viewLocked(), observers
}

func (w *Workflow) viewLocked() domain.View {
	view := domain.View{
		Phase:         w.state.Phase(),
		ResultURL:     w.resultURL,
		Preprocessing: w.review.Current(),
		Processing:    w.processing,
		Active:        domain.ActiveResultOf(w.state),
		Status:        w.status,
		Error:         w.errMessage,
		Generation:    w.generation,
		Revision:      w.revision,
		State:         w.state,
	}
	if doc, ok := domain.DocumentOf(w.state); ok {
		view.Document = &doc
	}
	switch s := w.state.(type) {
	case domain.Transferring:
		view.Progress = s.Progress
	case domain.Polling:
		view.PollAttempts = s.Attempts
	case domain.Settled:
		view.Outcome = s.Outcome
	}
	return view
}

func notify(observers []func(domain.View), view domain.View) {
	for _, fn := range observers {
		fn(view)
	}
}

func operationStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsKind(err, domain.ErrUserCancelled):
		return "cancelled"
	default:
		return "error"
	}
}

type noopWorkflowMetrics struct{}

func (noopWorkflowMetrics) RecordTransition(domain.Phase, domain.Phase) {}
func (noopWorkflowMetrics) RecordTransfer(string, int64)                {}
func (noopWorkflowMetrics) RecordSubmission(string)                     {}
func (noopWorkflowMetrics) RecordPollAttempt(string)                    {}
func (noopWorkflowMetrics) RecordPollSession(domain.Outcome, int)       {}
