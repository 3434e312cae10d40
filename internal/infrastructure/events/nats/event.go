package nats

import (
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
)

const EventTypeTransition = "workflow.transition"

// Event is the wire form of a workflow transition. Results are not carried;
// consumers that need them read the view from the API.
type Event struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Phase        domain.Phase   `json:"phase"`
	Outcome      domain.Outcome `json:"outcome,omitempty"`
	Document     string         `json:"document,omitempty"`
	DocumentSize int64          `json:"document_size,omitempty"`
	ResultURL    string         `json:"result_url,omitempty"`
	PollAttempts int            `json:"poll_attempts,omitempty"`
	Status       string         `json:"status,omitempty"`
	Error        string         `json:"error,omitempty"`
	Generation   uint64         `json:"generation"`
	Revision     uint64         `json:"revision"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

func newEvent(view domain.View, now time.Time) Event {
	event := Event{
		ID:           uuid.NewString(),
		Type:         EventTypeTransition,
		Phase:        view.Phase,
		Outcome:      view.Outcome,
		ResultURL:    view.ResultURL,
		PollAttempts: view.PollAttempts,
		Status:       view.Status,
		Error:        view.Error,
		Generation:   view.Generation,
		Revision:     view.Revision,
		OccurredAt:   now.UTC(),
	}
	if view.Document != nil {
		event.Document = view.Document.Name
		event.DocumentSize = view.Document.Size
	}
	return event
}
