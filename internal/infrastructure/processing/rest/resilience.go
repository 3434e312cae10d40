package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/infrastructure/resilience"
)

// Call labels carried by HTTPStatusError.Operation.
const (
	callProcessPDF  = "process pdf"
	callProcessIA   = "process ia"
	callFetchResult = "fetch result"
	callPage2Image  = "page2 image"
)

// HTTPStatusError is a non-2xx answer from the processing service. Body holds
// the FastAPI "detail" text when the service sent one.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "processing service status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("processing %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("processing %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// ResultNotReady reports a download-json 404: the service has not written the
// result file yet, so the next poll may find it.
func (e *HTTPStatusError) ResultNotReady() bool {
	return e != nil && e.Operation == callFetchResult && e.StatusCode == http.StatusNotFound
}

// Rejected reports a request the service refused on its merits: a FastAPI
// validation error, an oversized upload or a malformed body.
func (e *HTTPStatusError) Rejected() bool {
	if e == nil {
		return false
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

func classifyServiceError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	// Undecodable 2xx bodies: the service answered, but not with our contract.
	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func classifyStatus(statusErr *HTTPStatusError) resilience.ErrorClassification {
	switch {
	case statusErr.ResultNotReady():
		// Polling owns the retry cadence; a missing file says nothing about health.
		return resilience.ErrorClassification{}
	case isRetryableHTTPStatus(statusErr.StatusCode):
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	case statusErr.StatusCode == http.StatusNotImplemented:
		// Service deployed without the endpoint; retrying cannot help.
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	default:
		return resilience.ErrorClassification{}
	}
}

// wrapServiceError attaches the domain kind callers branch on.
func wrapServiceError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.ResultNotReady():
			return domain.WrapError(domain.ErrTemporary, operation, err)
		case statusErr.StatusCode == http.StatusNotFound && statusErr.Operation == callPage2Image:
			return domain.WrapError(domain.ErrNotFound, operation, err)
		case statusErr.Rejected():
			return domain.WrapError(domain.ErrInvalidInput, operation, err)
		}
	}

	if classifyServiceError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
