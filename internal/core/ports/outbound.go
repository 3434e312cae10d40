package ports

import (
	"context"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
)

// ProgressFunc receives upload progress as a percentage in [0,100].
type ProgressFunc func(percent int)

// ResultFetcher loads the current snapshot behind a result URL.
type ResultFetcher interface {
	FetchResult(ctx context.Context, url string) (*domain.ProcessingResult, error)
}

// ProcessingService is the remote extraction/AI service.
type ProcessingService interface {
	ResultFetcher
	ProcessPDF(ctx context.Context, doc domain.Document, onProgress ProgressFunc) (*domain.PreprocessingResult, error)
	ProcessIA(ctx context.Context, payload domain.AIPayload) (*domain.Submission, error)
}

// Page2ImageFetcher loads the page-2 raster referenced by an opaque path token.
type Page2ImageFetcher interface {
	FetchPage2Image(ctx context.Context, path string) ([]byte, string, error)
}

// EventPublisher announces workflow state changes to external observers.
type EventPublisher interface {
	PublishWorkflowEvent(ctx context.Context, view domain.View) error
}

// WorkflowMetrics records workflow activity. Implementations must be safe for
// concurrent use.
type WorkflowMetrics interface {
	RecordTransition(from, to domain.Phase)
	RecordTransfer(status string, bytes int64)
	RecordSubmission(status string)
	RecordPollAttempt(result string)
	RecordPollSession(outcome domain.Outcome, attempts int)
}
