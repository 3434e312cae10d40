package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
)

type AISubmissionController struct {
	service ports.ProcessingService
	logger  *slog.Logger
}

func NewAISubmissionController(service ports.ProcessingService, logger *slog.Logger) *AISubmissionController {
	if logger == nil {
		logger = slog.Default()
	}
	return &AISubmissionController{
		service: service,
		logger:  logger,
	}
}

// Submit sends the confirmed preprocessing payload to the AI stage. It never
// touches workflow state; the caller decides what a failure means.
func (c *AISubmissionController) Submit(ctx context.Context, pre *domain.PreprocessingResult) (*domain.Submission, error) {
	if pre == nil {
		return nil, domain.WrapError(domain.ErrProtocolViolation, "submit to ai", errors.New("no preprocessing result to submit"))
	}

	payload := pre.AIPayload()
	c.logger.Info("submission_started", "prompt_chars", len(payload.Prompt), "has_page2_image", payload.Page2Image != nil)

	submission, err := c.service.ProcessIA(ctx, payload)
	if ctx.Err() != nil {
		return nil, domain.WrapError(domain.ErrUserCancelled, "submit to ai", context.Cause(ctx))
	}
	if err != nil {
		c.logger.Warn("submission_failed", "error", err)
		if domain.IsKind(err, domain.ErrSubmissionFailed) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrSubmissionFailed, "submit to ai", err)
	}
	if submission == nil || submission.Result == nil {
		return nil, domain.WrapError(domain.ErrSubmissionFailed, "submit to ai", errors.New("service returned no processing result"))
	}

	c.logger.Info("submission_completed", "result_url", submission.ResultURL, "has_image_analysis", submission.Result.HasImageAnalysis())
	return submission, nil
}
