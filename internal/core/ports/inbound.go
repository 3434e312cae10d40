package ports

import (
	"context"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
)

// WorkflowController is the command and read surface used by the rendering layer.
type WorkflowController interface {
	SelectFile(doc domain.Document) error
	BeginTransfer(ctx context.Context) error
	CancelTransfer()
	ConfirmAndSubmit(ctx context.Context) error
	View() domain.View
}
