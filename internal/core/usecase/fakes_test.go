package usecase

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
)

type serviceFake struct {
	mu sync.Mutex

	processPDF func(ctx context.Context, doc domain.Document, onProgress ports.ProgressFunc) (*domain.PreprocessingResult, error)
	processIA  func(ctx context.Context, payload domain.AIPayload) (*domain.Submission, error)
	fetch      func(ctx context.Context, url string, call int) (*domain.ProcessingResult, error)

	pdfCalls   int
	payloads   []domain.AIPayload
	fetchCalls int
}

func (f *serviceFake) ProcessPDF(ctx context.Context, doc domain.Document, onProgress ports.ProgressFunc) (*domain.PreprocessingResult, error) {
	f.mu.Lock()
	f.pdfCalls++
	fn := f.processPDF
	f.mu.Unlock()
	if fn == nil {
		return samplePreprocessing(), nil
	}
	return fn(ctx, doc, onProgress)
}

func (f *serviceFake) ProcessIA(ctx context.Context, payload domain.AIPayload) (*domain.Submission, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	fn := f.processIA
	f.mu.Unlock()
	if fn == nil {
		return &domain.Submission{Result: &domain.ProcessingResult{FactsSummary: "summary"}}, nil
	}
	return fn(ctx, payload)
}

func (f *serviceFake) FetchResult(ctx context.Context, url string) (*domain.ProcessingResult, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	fn := f.fetch
	f.mu.Unlock()
	if fn == nil {
		return &domain.ProcessingResult{}, nil
	}
	return fn(ctx, url, call)
}

func (f *serviceFake) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func (f *serviceFake) submittedPayloads() []domain.AIPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AIPayload, len(f.payloads))
	copy(out, f.payloads)
	return out
}

type viewRecorder struct {
	mu    sync.Mutex
	views []domain.View
}

func (r *viewRecorder) record(view domain.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, view)
}

// ordered returns the recorded views by revision; observers on different
// goroutines may be notified out of order.
func (r *viewRecorder) ordered() []domain.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.views)
	slices.SortFunc(out, func(a, b domain.View) int {
		switch {
		case a.Revision < b.Revision:
			return -1
		case a.Revision > b.Revision:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (r *viewRecorder) progress() []int {
	var out []int
	for _, v := range r.ordered() {
		if v.Phase == domain.PhaseTransferring {
			out = append(out, v.Progress)
		}
	}
	return out
}

func (r *viewRecorder) phases() []domain.Phase {
	var out []domain.Phase
	for _, v := range r.ordered() {
		if len(out) == 0 || out[len(out)-1] != v.Phase {
			out = append(out, v.Phase)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDocument(t *testing.T, name string, size int) domain.Document {
	t.Helper()
	content := make([]byte, size)
	copy(content, "%PDF-1.7\n")
	doc, err := domain.NewDocument(name, "application/pdf", content)
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}
	return doc
}

func samplePreprocessing() *domain.PreprocessingResult {
	return &domain.PreprocessingResult{
		ExtractedText:    "DOS FATOS O autor relata...",
		ExtractionMethod: "pdfplumber",
		Sections:         domain.Sections(`{"fatos":"O autor relata...","partes":[],"assuntos":[]}`),
		SectionsNLP:      domain.Sections(`{"fatos":"O autor relata...\n","partes":["Maria"],"assuntos":[]}`),
		Subjects:         []domain.SubjectEntry{{Code: "3372", Description: "Furto", Principal: "Sim"}},
		PartyRepresentatives: domain.PartyRepresentatives{
			Plaintiff: []string{"Ministério Público"},
			Defendant: []string{"João da Silva"},
		},
		AdditionalInfo: map[string]string{"Vara": "1ª Vara Criminal"},
		Page2Image:     "/tmp/page2.jpg",
		Prompt:         "Resuma os fatos.",
	}
}
