package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
	"github.com/kirillkom/legal-pdf-workflow/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "http://localhost:8000/api"

	pathProcessPDF = "/process-pdf/"
	pathProcessIA  = "/process-ia/"
	pathPage2Image = "/pagina2-img/"

	opProcessPDF  = "processing.process_pdf"
	opProcessIA   = "processing.process_ia"
	opFetchResult = "processing.fetch_result"
	opPage2Image  = "processing.page2_image"
)

// OperationPolicies disables executor retries for calls whose body is a
// one-shot stream or whose caller owns the retry budget.
func OperationPolicies() map[string]resilience.RetryPolicy {
	return map[string]resilience.RetryPolicy{
		opProcessPDF:  resilience.NoRetry(),
		opProcessIA:   resilience.NoRetry(),
		opFetchResult: resilience.NoRetry(),
	}
}

// Client talks to the document processing service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type Options struct {
	Timeout            time.Duration
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
	// RequestsPerSecond limits outbound calls; zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

var (
	_ ports.ProcessingService = (*Client)(nil)
	_ ports.Page2ImageFetcher = (*Client)(nil)
)

func New(baseURL string) (*Client, error) {
	return NewWithOptions(baseURL, Options{})
}

func NewWithOptions(baseURL string, options Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if raw == "" {
		raw = DefaultBaseURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse service base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf("service base url %q must be absolute http(s)", raw)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if options.RequestsPerSecond > 0 {
		burst := options.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), burst)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    parsed,
		httpClient: httpClient,
		executor:   options.ResilienceExecutor,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// ProcessPDF uploads doc to the extraction stage. onProgress receives the
// share of the request body written so far.
func (c *Client) ProcessPDF(ctx context.Context, doc domain.Document, onProgress ports.ProgressFunc) (*domain.PreprocessingResult, error) {
	var response struct {
		PreIA *domain.PreprocessingResult `json:"preIA"`
	}
	err := c.execute(ctx, opProcessPDF, func(ctx context.Context) error {
		return c.postMultipart(ctx, pathProcessPDF, doc, onProgress, &response, callProcessPDF)
	})
	if err != nil {
		return nil, err
	}
	if response.PreIA == nil {
		return nil, errors.New("process pdf response has no preIA")
	}
	return response.PreIA, nil
}

func (c *Client) ProcessIA(ctx context.Context, payload domain.AIPayload) (*domain.Submission, error) {
	var response struct {
		Data        json.RawMessage `json:"data"`
		DownloadURL string          `json:"download_url"`
	}
	err := c.execute(ctx, opProcessIA, func(ctx context.Context) error {
		return c.postJSON(ctx, pathProcessIA, payload, &response, callProcessIA)
	})
	if err != nil {
		return nil, err
	}

	result, err := decodeProcessingResult(response.Data)
	if err != nil {
		return nil, fmt.Errorf("decode process ia data: %w", err)
	}

	submission := &domain.Submission{Result: result}
	if strings.TrimSpace(response.DownloadURL) != "" {
		resolved, err := c.resolve(response.DownloadURL)
		if err != nil {
			return nil, fmt.Errorf("resolve download url: %w", err)
		}
		submission.ResultURL = resolved
	}
	return submission, nil
}

// FetchResult reads one snapshot from a download URL returned by ProcessIA.
func (c *Client) FetchResult(ctx context.Context, target string) (*domain.ProcessingResult, error) {
	var raw json.RawMessage
	err := c.execute(ctx, opFetchResult, func(ctx context.Context) error {
		return c.getJSON(ctx, target, &raw, callFetchResult)
	})
	if err != nil {
		return nil, err
	}
	result, err := decodeProcessingResult(raw)
	if err != nil {
		return nil, fmt.Errorf("decode result snapshot: %w", err)
	}
	return result, nil
}

// FetchPage2Image proxies the page-2 raster identified by the opaque path
// token from the preprocessing result.
func (c *Client) FetchPage2Image(ctx context.Context, path string) ([]byte, string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "fetch page2 image", errors.New("image path is empty"))
	}
	target := c.endpoint(pathPage2Image) + "?" + url.Values{"path": []string{path}}.Encode()

	var (
		body        []byte
		contentType string
	)
	err := c.execute(ctx, opPage2Image, func(ctx context.Context) error {
		var err error
		body, contentType, err = c.getBytes(ctx, target, callPage2Image)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limit: %w", operation, err)
		}
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyServiceError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapServiceError(operation, err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// resolve turns a host-relative download URL into an absolute one.
func (c *Client) resolve(ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	return c.baseURL.ResolveReference(parsed).String(), nil
}

func decodeProcessingResult(raw json.RawMessage) (*domain.ProcessingResult, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, errors.New("empty processing result")
	}
	var result domain.ProcessingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	result.Raw = append(json.RawMessage(nil), raw...)
	return &result, nil
}
