package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
)

type metricsFake struct {
	mu          sync.Mutex
	transitions []string
	transfers   []string
	submissions []string
	attempts    []string
	sessions    []domain.Outcome
}

func (m *metricsFake) RecordTransition(from, to domain.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, string(from)+"->"+string(to))
}

func (m *metricsFake) RecordTransfer(status string, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, status)
}

func (m *metricsFake) RecordSubmission(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, status)
}

func (m *metricsFake) RecordPollAttempt(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, result)
}

func (m *metricsFake) RecordPollSession(outcome domain.Outcome, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, outcome)
}

func newTestWorkflow(service *serviceFake, maxAttempts int) (*Workflow, *viewRecorder, *metricsFake) {
	metrics := &metricsFake{}
	w := NewWorkflowFromService(service, WorkflowOptions{
		PollMaxAttempts: maxAttempts,
		PollInterval:    time.Millisecond,
		Metrics:         metrics,
		Logger:          discardLogger(),
	})
	recorder := &viewRecorder{}
	w.Subscribe(recorder.record)
	return w, recorder, metrics
}

func progressingUpload(_ context.Context, _ domain.Document, onProgress ports.ProgressFunc) (*domain.PreprocessingResult, error) {
	for _, p := range []int{25, 50, 75, 100} {
		onProgress(p)
	}
	return samplePreprocessing(), nil
}

func imageReadyOnCall(n int) func(context.Context, string, int) (*domain.ProcessingResult, error) {
	return func(_ context.Context, _ string, call int) (*domain.ProcessingResult, error) {
		result := &domain.ProcessingResult{FactsSummary: "O autor relata..."}
		if call >= n {
			result.ImageAnalysis = "The page carries two signatures."
		}
		return result, nil
	}
}

func transferToReview(t *testing.T, w *Workflow, doc domain.Document) {
	t.Helper()
	if err := w.SelectFile(doc); err != nil {
		t.Fatalf("SelectFile() error = %v", err)
	}
	if err := w.BeginTransfer(context.Background()); err != nil {
		t.Fatalf("BeginTransfer() error = %v", err)
	}
	w.Wait()
	if phase := w.View().Phase; phase != domain.PhaseAwaitingReview {
		t.Fatalf("expected awaiting review, got %s (%s)", phase, w.View().Error)
	}
}

func TestWorkflowHappyPathWithImagePolling(t *testing.T) {
	service := &serviceFake{
		processPDF: progressingUpload,
		processIA: func(context.Context, domain.AIPayload) (*domain.Submission, error) {
			return &domain.Submission{
				Result:    &domain.ProcessingResult{FactsSummary: "O autor relata..."},
				ResultURL: testResultURL,
			}, nil
		},
		fetch: imageReadyOnCall(3),
	}
	w, recorder, metrics := newTestWorkflow(service, 20)

	transferToReview(t, w, mustDocument(t, "contract.pdf", 200*1024))

	progress := recorder.progress()
	if len(progress) == 0 || progress[0] != 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("expected progress from 0 to 100, got %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}

	view := w.View()
	if view.Active != domain.ActivePreprocessing || view.Preprocessing == nil || view.Preprocessing.Sections.IsEmpty() {
		t.Fatalf("expected preprocessing result under review, got %+v", view)
	}
	if view.Page2ImagePath() != "/tmp/page2.jpg" {
		t.Fatalf("unexpected page 2 image path %q", view.Page2ImagePath())
	}

	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}
	w.Wait()

	view = w.View()
	if view.Phase != domain.PhaseSettled || view.Outcome != domain.OutcomeComplete {
		t.Fatalf("expected settled complete, got %s/%s", view.Phase, view.Outcome)
	}
	if service.fetchCount() != 3 {
		t.Fatalf("expected 3 fetches, got %d", service.fetchCount())
	}
	if !view.Processing.HasImageAnalysis() || view.Active != domain.ActiveProcessing {
		t.Fatalf("expected processing result with image analysis, got %+v", view.Processing)
	}
	if view.Status != statusImageReady || view.ResultURL != testResultURL {
		t.Fatalf("unexpected status %q or url %q", view.Status, view.ResultURL)
	}

	wantPhases := []domain.Phase{
		domain.PhaseSelectingFile,
		domain.PhaseTransferring,
		domain.PhaseAwaitingReview,
		domain.PhaseSubmitting,
		domain.PhasePolling,
		domain.PhaseSettled,
	}
	gotPhases := recorder.phases()
	if len(gotPhases) != len(wantPhases) {
		t.Fatalf("expected phases %v, got %v", wantPhases, gotPhases)
	}
	for i := range wantPhases {
		if gotPhases[i] != wantPhases[i] {
			t.Fatalf("expected phases %v, got %v", wantPhases, gotPhases)
		}
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.attempts) != 3 || len(metrics.sessions) != 1 || metrics.sessions[0] != domain.OutcomeComplete {
		t.Fatalf("unexpected poll metrics: attempts=%v sessions=%v", metrics.attempts, metrics.sessions)
	}
}

func TestWorkflowSubmitFailureKeepsReviewForRetry(t *testing.T) {
	var calls int
	service := &serviceFake{
		processPDF: progressingUpload,
		processIA: func(context.Context, domain.AIPayload) (*domain.Submission, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("status 500: model unavailable")
			}
			return &domain.Submission{Result: &domain.ProcessingResult{FactsSummary: "ok"}}, nil
		},
	}
	w, _, _ := newTestWorkflow(service, 3)

	transferToReview(t, w, mustDocument(t, "contract.pdf", 1024))
	pre := w.View().Preprocessing

	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}
	w.Wait()

	view := w.View()
	if view.Phase != domain.PhaseAwaitingReview {
		t.Fatalf("expected awaiting review after failure, got %s", view.Phase)
	}
	if view.Preprocessing != pre {
		t.Fatalf("preprocessing result must be kept after submit failure")
	}
	if !strings.HasPrefix(view.Error, messageSubmissionFailed) {
		t.Fatalf("expected submission error message, got %q", view.Error)
	}

	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("retry ConfirmAndSubmit() error = %v", err)
	}
	w.Wait()

	view = w.View()
	if view.Phase != domain.PhaseSettled || view.Outcome != domain.OutcomeComplete {
		t.Fatalf("expected settled complete after retry, got %s/%s", view.Phase, view.Outcome)
	}
	if view.Error != "" || view.Status != statusComplete {
		t.Fatalf("unexpected error %q / status %q after retry", view.Error, view.Status)
	}
	if service.fetchCount() != 0 {
		t.Fatalf("no polling expected without result url, got %d fetches", service.fetchCount())
	}
}

func TestWorkflowCancelDuringTransfer(t *testing.T) {
	started := make(chan struct{})
	service := &serviceFake{
		processPDF: func(ctx context.Context, _ domain.Document, onProgress ports.ProgressFunc) (*domain.PreprocessingResult, error) {
			onProgress(30)
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	w, _, metrics := newTestWorkflow(service, 3)

	doc := mustDocument(t, "contract.pdf", 1024)
	if err := w.SelectFile(doc); err != nil {
		t.Fatalf("SelectFile() error = %v", err)
	}
	if err := w.BeginTransfer(context.Background()); err != nil {
		t.Fatalf("BeginTransfer() error = %v", err)
	}
	<-started

	w.CancelTransfer()
	view := w.View()
	if view.Phase != domain.PhaseIdle || view.Error != messageCancelledByUser {
		t.Fatalf("expected idle with cancel message, got %s %q", view.Phase, view.Error)
	}
	if view.Document == nil || view.Document.Name != "contract.pdf" {
		t.Fatalf("expected cancelled document to be retained, got %+v", view.Document)
	}

	w.Wait()
	if view := w.View(); view.Phase != domain.PhaseIdle || view.Error != messageCancelledByUser {
		t.Fatalf("late transfer outcome must be dropped, got %s %q", view.Phase, view.Error)
	}

	metrics.mu.Lock()
	if len(metrics.transfers) != 1 || metrics.transfers[0] != "cancelled" {
		t.Fatalf("expected one cancelled transfer, got %v", metrics.transfers)
	}
	metrics.mu.Unlock()

	service.mu.Lock()
	service.processPDF = progressingUpload
	service.mu.Unlock()
	if err := w.BeginTransfer(context.Background()); err != nil {
		t.Fatalf("retry from idle with retained document: %v", err)
	}
	w.Wait()
	if phase := w.View().Phase; phase != domain.PhaseAwaitingReview {
		t.Fatalf("expected awaiting review after retry, got %s", phase)
	}
}

func TestWorkflowTransferFailureReturnsToSelection(t *testing.T) {
	service := &serviceFake{
		processPDF: func(context.Context, domain.Document, ports.ProgressFunc) (*domain.PreprocessingResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	w, _, _ := newTestWorkflow(service, 3)

	if err := w.SelectFile(mustDocument(t, "contract.pdf", 1024)); err != nil {
		t.Fatalf("SelectFile() error = %v", err)
	}
	if err := w.BeginTransfer(context.Background()); err != nil {
		t.Fatalf("BeginTransfer() error = %v", err)
	}
	w.Wait()

	view := w.View()
	if view.Phase != domain.PhaseSelectingFile {
		t.Fatalf("expected selecting file after failure, got %s", view.Phase)
	}
	if !strings.HasPrefix(view.Error, messageTransferFailed) || strings.Contains(view.Error, messageCancelledByUser) {
		t.Fatalf("unexpected error message %q", view.Error)
	}
	if view.Preprocessing != nil {
		t.Fatalf("no preprocessing result expected after failure")
	}
}

func TestWorkflowSelectFileDuringPollingDropsLateSnapshots(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	service := &serviceFake{
		processPDF: progressingUpload,
		processIA: func(context.Context, domain.AIPayload) (*domain.Submission, error) {
			return &domain.Submission{Result: &domain.ProcessingResult{FactsSummary: "first"}, ResultURL: testResultURL}, nil
		},
		fetch: func(_ context.Context, _ string, call int) (*domain.ProcessingResult, error) {
			if call == 2 {
				close(started)
				<-release
				return &domain.ProcessingResult{FactsSummary: "late", ImageAnalysis: "late"}, nil
			}
			return &domain.ProcessingResult{FactsSummary: "first"}, nil
		},
	}
	w, recorder, _ := newTestWorkflow(service, 10)

	transferToReview(t, w, mustDocument(t, "first.pdf", 1024))
	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}
	<-started

	if err := w.SelectFile(mustDocument(t, "second.pdf", 2048)); err != nil {
		t.Fatalf("SelectFile() error = %v", err)
	}
	close(release)
	w.Wait()

	view := w.View()
	if view.Phase != domain.PhaseSelectingFile || view.Document == nil || view.Document.Name != "second.pdf" {
		t.Fatalf("expected selecting second.pdf, got %s %+v", view.Phase, view.Document)
	}
	if view.Processing != nil || view.Preprocessing != nil {
		t.Fatalf("results must be cleared by a new selection")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for _, v := range recorder.views {
		if v.Processing != nil && v.Processing.FactsSummary == "late" {
			t.Fatalf("late snapshot leaked into view revision %d", v.Revision)
		}
	}
}

func TestWorkflowPollingExhaustedKeepsLastSnapshot(t *testing.T) {
	service := &serviceFake{
		processPDF: progressingUpload,
		processIA: func(context.Context, domain.AIPayload) (*domain.Submission, error) {
			return &domain.Submission{Result: &domain.ProcessingResult{FactsSummary: "initial"}, ResultURL: testResultURL}, nil
		},
		fetch: func(context.Context, string, int) (*domain.ProcessingResult, error) {
			return &domain.ProcessingResult{FactsSummary: "snapshot"}, nil
		},
	}
	w, _, _ := newTestWorkflow(service, 2)

	transferToReview(t, w, mustDocument(t, "contract.pdf", 1024))
	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}
	w.Wait()

	view := w.View()
	if view.Phase != domain.PhaseSettled || view.Outcome != domain.OutcomeExhausted {
		t.Fatalf("expected settled exhausted, got %s/%s", view.Phase, view.Outcome)
	}
	if view.Processing == nil || view.Processing.FactsSummary != "snapshot" {
		t.Fatalf("expected last snapshot to be kept, got %+v", view.Processing)
	}
	if view.Status != statusImageTimedOut {
		t.Fatalf("unexpected status %q", view.Status)
	}
	if service.fetchCount() != 2 {
		t.Fatalf("expected 2 fetches, got %d", service.fetchCount())
	}
}

func TestWorkflowCancelDuringPolling(t *testing.T) {
	started := make(chan struct{})
	service := &serviceFake{
		processPDF: progressingUpload,
		processIA: func(context.Context, domain.AIPayload) (*domain.Submission, error) {
			return &domain.Submission{Result: &domain.ProcessingResult{FactsSummary: "initial"}, ResultURL: testResultURL}, nil
		},
		fetch: func(ctx context.Context, _ string, call int) (*domain.ProcessingResult, error) {
			if call == 1 {
				close(started)
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	w, _, _ := newTestWorkflow(service, 10)

	transferToReview(t, w, mustDocument(t, "contract.pdf", 1024))
	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}
	<-started

	w.CancelTransfer()
	w.Wait()

	view := w.View()
	if view.Phase != domain.PhaseSettled || view.Outcome != domain.OutcomeCancelled {
		t.Fatalf("expected settled cancelled, got %s/%s", view.Phase, view.Outcome)
	}
	if view.Processing == nil || view.Processing.FactsSummary != "initial" {
		t.Fatalf("expected submission result to be kept, got %+v", view.Processing)
	}
	if service.fetchCount() != 1 {
		t.Fatalf("expected no fetch after cancel, got %d", service.fetchCount())
	}
}

func TestWorkflowInvalidResultURLSettlesFailed(t *testing.T) {
	service := &serviceFake{
		processPDF: progressingUpload,
		processIA: func(context.Context, domain.AIPayload) (*domain.Submission, error) {
			return &domain.Submission{Result: &domain.ProcessingResult{FactsSummary: "x"}, ResultURL: "download_json/abc.json"}, nil
		},
	}
	w, _, _ := newTestWorkflow(service, 3)

	transferToReview(t, w, mustDocument(t, "contract.pdf", 1024))
	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}
	w.Wait()

	view := w.View()
	if view.Phase != domain.PhaseSettled || view.Outcome != domain.OutcomeFailed {
		t.Fatalf("expected settled failed, got %s/%s", view.Phase, view.Outcome)
	}
	if !strings.HasPrefix(view.Error, messagePollSessionFailed) {
		t.Fatalf("unexpected error %q", view.Error)
	}
}

func TestWorkflowRejectsCommandsOutOfOrder(t *testing.T) {
	w, _, _ := newTestWorkflow(&serviceFake{}, 3)

	if err := w.BeginTransfer(context.Background()); !domain.IsKind(err, domain.ErrProtocolViolation) {
		t.Fatalf("BeginTransfer from idle: expected protocol violation, got %v", err)
	}
	if err := w.ConfirmAndSubmit(context.Background()); !domain.IsKind(err, domain.ErrProtocolViolation) {
		t.Fatalf("ConfirmAndSubmit from idle: expected protocol violation, got %v", err)
	}
	if err := w.SelectFile(domain.Document{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("SelectFile empty: expected invalid input, got %v", err)
	}

	transferToReview(t, w, mustDocument(t, "contract.pdf", 1024))
	if err := w.BeginTransfer(context.Background()); !domain.IsKind(err, domain.ErrProtocolViolation) {
		t.Fatalf("BeginTransfer from review: expected protocol violation, got %v", err)
	}

	w.CancelTransfer()
	if phase := w.View().Phase; phase != domain.PhaseAwaitingReview {
		t.Fatalf("cancel with nothing in flight must be a no-op, got %s", phase)
	}
}

func TestWorkflowRevisionIncreases(t *testing.T) {
	w, recorder, _ := newTestWorkflow(&serviceFake{processPDF: progressingUpload}, 3)
	transferToReview(t, w, mustDocument(t, "contract.pdf", 1024))
	w.Close()

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for i := 1; i < len(recorder.views); i++ {
		if recorder.views[i].Revision <= recorder.views[i-1].Revision {
			t.Fatalf("revision must increase: %d then %d", recorder.views[i-1].Revision, recorder.views[i].Revision)
		}
	}
}

func waitWithTimeout(t *testing.T, w *Workflow) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("workflow did not settle: %s", w.View().Phase)
	}
}

func TestWorkflowObserverCancelsFromSnapshotNotification(t *testing.T) {
	service := &serviceFake{
		processPDF: progressingUpload,
		processIA: func(context.Context, domain.AIPayload) (*domain.Submission, error) {
			return &domain.Submission{Result: &domain.ProcessingResult{FactsSummary: "initial"}, ResultURL: testResultURL}, nil
		},
		fetch: func(context.Context, string, int) (*domain.ProcessingResult, error) {
			return &domain.ProcessingResult{FactsSummary: "snapshot"}, nil
		},
	}
	w, _, _ := newTestWorkflow(service, 10)

	var once sync.Once
	w.Subscribe(func(view domain.View) {
		if view.Phase == domain.PhasePolling && view.Processing != nil && view.Processing.FactsSummary == "snapshot" {
			once.Do(w.CancelTransfer)
		}
	})

	transferToReview(t, w, mustDocument(t, "contract.pdf", 1024))
	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}
	waitWithTimeout(t, w)

	view := w.View()
	if view.Phase != domain.PhaseSettled || view.Outcome != domain.OutcomeCancelled {
		t.Fatalf("expected settled cancelled, got %s/%s", view.Phase, view.Outcome)
	}
	if service.fetchCount() != 1 {
		t.Fatalf("expected polling to stop after the first snapshot, got %d fetches", service.fetchCount())
	}
}

func TestWorkflowSelectFileDuringTransferChainsNextUpload(t *testing.T) {
	startedA := make(chan struct{})
	releaseA := make(chan struct{})
	service := &serviceFake{
		processPDF: func(_ context.Context, doc domain.Document, onProgress ports.ProgressFunc) (*domain.PreprocessingResult, error) {
			result := samplePreprocessing()
			result.Prompt = doc.Name
			if doc.Name == "a.pdf" {
				onProgress(40)
				close(startedA)
				<-releaseA
				return result, nil
			}
			onProgress(100)
			return result, nil
		},
	}
	w, recorder, _ := newTestWorkflow(service, 3)

	if err := w.SelectFile(mustDocument(t, "a.pdf", 1024)); err != nil {
		t.Fatalf("SelectFile(a) error = %v", err)
	}
	if err := w.BeginTransfer(context.Background()); err != nil {
		t.Fatalf("BeginTransfer(a) error = %v", err)
	}
	<-startedA

	if err := w.SelectFile(mustDocument(t, "b.pdf", 2048)); err != nil {
		t.Fatalf("SelectFile(b) error = %v", err)
	}
	if err := w.BeginTransfer(context.Background()); err != nil {
		t.Fatalf("BeginTransfer(b) error = %v", err)
	}
	if view := w.View(); view.Phase != domain.PhaseTransferring || view.Document.Name != "b.pdf" {
		t.Fatalf("expected b.pdf transferring, got %s %+v", view.Phase, view.Document)
	}

	close(releaseA)
	waitWithTimeout(t, w)

	view := w.View()
	if view.Phase != domain.PhaseAwaitingReview || view.Document == nil || view.Document.Name != "b.pdf" {
		t.Fatalf("expected b.pdf awaiting review, got %s %+v (%s)", view.Phase, view.Document, view.Error)
	}
	if view.Preprocessing == nil || view.Preprocessing.Prompt != "b.pdf" {
		t.Fatalf("expected b.pdf preprocessing, got %+v", view.Preprocessing)
	}
	for _, v := range recorder.ordered() {
		if v.Preprocessing != nil && v.Preprocessing.Prompt == "a.pdf" {
			t.Fatalf("stale a.pdf result leaked into view revision %d", v.Revision)
		}
	}
}

func TestWorkflowSupersededQueuedTransferNeverStarts(t *testing.T) {
	startedA := make(chan struct{})
	releaseA := make(chan struct{})
	service := &serviceFake{
		processPDF: func(_ context.Context, doc domain.Document, _ ports.ProgressFunc) (*domain.PreprocessingResult, error) {
			if doc.Name == "a.pdf" {
				close(startedA)
				<-releaseA
			}
			return samplePreprocessing(), nil
		},
	}
	w, _, metrics := newTestWorkflow(service, 3)

	if err := w.SelectFile(mustDocument(t, "a.pdf", 1024)); err != nil {
		t.Fatalf("SelectFile(a) error = %v", err)
	}
	if err := w.BeginTransfer(context.Background()); err != nil {
		t.Fatalf("BeginTransfer(a) error = %v", err)
	}
	<-startedA

	if err := w.SelectFile(mustDocument(t, "b.pdf", 1024)); err != nil {
		t.Fatalf("SelectFile(b) error = %v", err)
	}
	if err := w.BeginTransfer(context.Background()); err != nil {
		t.Fatalf("BeginTransfer(b) error = %v", err)
	}
	// b.pdf is still queued behind a.pdf when it is superseded.
	if err := w.SelectFile(mustDocument(t, "c.pdf", 1024)); err != nil {
		t.Fatalf("SelectFile(c) error = %v", err)
	}
	close(releaseA)
	waitWithTimeout(t, w)

	if view := w.View(); view.Phase != domain.PhaseSelectingFile || view.Document.Name != "c.pdf" {
		t.Fatalf("expected c.pdf selected, got %s %+v", view.Phase, view.Document)
	}
	service.mu.Lock()
	pdfCalls := service.pdfCalls
	service.mu.Unlock()
	if pdfCalls != 1 {
		t.Fatalf("queued transfer must not reach the service, got %d uploads", pdfCalls)
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.transfers) != 1 || metrics.transfers[0] != "cancelled" {
		t.Fatalf("expected only the superseded upload recorded, got %v", metrics.transfers)
	}
}

func TestWorkflowSelectFileDuringSubmitDropsStaleSubmission(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	service := &serviceFake{
		processPDF: progressingUpload,
		processIA: func(context.Context, domain.AIPayload) (*domain.Submission, error) {
			close(started)
			<-release
			return &domain.Submission{Result: &domain.ProcessingResult{FactsSummary: "stale"}, ResultURL: testResultURL}, nil
		},
	}
	w, recorder, _ := newTestWorkflow(service, 3)

	transferToReview(t, w, mustDocument(t, "a.pdf", 1024))
	if err := w.ConfirmAndSubmit(context.Background()); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}
	<-started

	if err := w.SelectFile(mustDocument(t, "b.pdf", 1024)); err != nil {
		t.Fatalf("SelectFile(b) error = %v", err)
	}
	close(release)
	waitWithTimeout(t, w)

	view := w.View()
	if view.Phase != domain.PhaseSelectingFile || view.Document == nil || view.Document.Name != "b.pdf" {
		t.Fatalf("expected b.pdf selected, got %s %+v", view.Phase, view.Document)
	}
	if view.Processing != nil || view.Preprocessing != nil {
		t.Fatalf("results must be cleared by a new selection")
	}
	if service.fetchCount() != 0 {
		t.Fatalf("stale submission must not start polling, got %d fetches", service.fetchCount())
	}
	for _, v := range recorder.ordered() {
		if v.Processing != nil && v.Processing.FactsSummary == "stale" {
			t.Fatalf("stale submission leaked into view revision %d", v.Revision)
		}
	}
}
