package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
)

var errTransferCancelRequested = errors.New("transfer cancel requested")

// TransferController uploads one document at a time to the extraction stage.
type TransferController struct {
	service ports.ProcessingService
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelCauseFunc
}

func NewTransferController(service ports.ProcessingService, logger *slog.Logger) *TransferController {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferController{
		service: service,
		logger:  logger,
	}
}

// BeginTransfer uploads doc and returns the preprocessing result. The error is
// domain.ErrUserCancelled when the transfer was cancelled and
// domain.ErrTransferFailed for every other failure.
func (c *TransferController) BeginTransfer(
	ctx context.Context,
	doc domain.Document,
	onProgress ports.ProgressFunc,
) (*domain.PreprocessingResult, error) {
	if doc.IsEmpty() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "begin transfer", errors.New("document is empty"))
	}

	transferCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, domain.WrapError(domain.ErrProtocolViolation, "begin transfer", errors.New("a transfer is already in flight"))
	}
	c.inFlight = true
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	c.logger.Info("transfer_started", "document", doc.Name, "bytes", doc.Size, "mime_type", doc.MimeType)

	progress := newProgressTracker(onProgress)
	progress.report(0)

	result, err := c.service.ProcessPDF(transferCtx, doc, progress.report)

	// A cancel that lands while the response is being read still wins.
	if transferCtx.Err() != nil {
		cause := context.Cause(transferCtx)
		c.logger.Info("transfer_cancelled", "document", doc.Name, "cause", cause)
		return nil, domain.WrapError(domain.ErrUserCancelled, "transfer", cause)
	}
	if err != nil {
		c.logger.Warn("transfer_failed", "document", doc.Name, "error", err)
		if domain.IsKind(err, domain.ErrTransferFailed) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrTransferFailed, "transfer", err)
	}
	if result == nil {
		return nil, domain.WrapError(domain.ErrTransferFailed, "transfer", errors.New("service returned no preprocessing result"))
	}

	progress.report(100)
	c.logger.Info("transfer_completed", "document", doc.Name, "extraction_method", result.ExtractionMethod)
	return result, nil
}

// Cancel aborts the transfer in flight. It is a no-op when nothing is in flight.
func (c *TransferController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel(errTransferCancelRequested)
	}
}

// InFlight reports whether a transfer is currently running.
func (c *TransferController) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// progressTracker forwards percentages clamped to [0,100] and drops any value
// that would not move progress forward.
type progressTracker struct {
	mu   sync.Mutex
	last int
	fn   ports.ProgressFunc
}

func newProgressTracker(fn ports.ProgressFunc) *progressTracker {
	return &progressTracker{last: -1, fn: fn}
}

func (p *progressTracker) report(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if percent <= p.last {
		return
	}
	p.last = percent
	if p.fn != nil {
		p.fn(percent)
	}
}
