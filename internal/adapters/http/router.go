package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kirillkom/legal-pdf-workflow/internal/config"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
	"github.com/kirillkom/legal-pdf-workflow/internal/observability/metrics"
)

const serviceName = "workflowd"

// multipart parts above this size spill to temporary files.
const multipartMemory = 8 << 20

type Router struct {
	cfg      config.Config
	workflow ports.WorkflowController
	images   ports.Page2ImageFetcher
	metrics  *metrics.HTTPServerMetrics
}

// NewRouter builds the rendering-layer API. metrics may be nil, in which case
// /metrics is not served.
func NewRouter(
	cfg config.Config,
	workflow ports.WorkflowController,
	images ports.Page2ImageFetcher,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		workflow: workflow,
		images:   images,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/workflow", rt.getWorkflow)
	api.HandleFunc("/v1/workflow/file", rt.selectFile)
	api.HandleFunc("/v1/workflow/transfer", rt.beginTransfer)
	api.HandleFunc("/v1/workflow/cancel", rt.cancelTransfer)
	api.HandleFunc("/v1/workflow/submit", rt.confirmAndSubmit)
	api.HandleFunc("/v1/workflow/page2-image", rt.page2Image)
	api.HandleFunc("/v1/workflow/result.json", rt.resultJSON)

	var guarded http.Handler = api
	if rt.cfg.APIMaxInFlight > 0 {
		guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/", guarded)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, rt.workflow.View())
}

func (rt *Router) selectFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if rt.cfg.UploadMaxBytes > 0 {
		if r.ContentLength > rt.cfg.UploadMaxBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file exceeds upload limit"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.UploadMaxBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file exceeds upload limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read uploaded file"})
		return
	}

	doc, err := domain.NewDocument(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), content)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.workflow.SelectFile(doc); err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, doc.Size)
	}

	writeJSON(w, http.StatusOK, rt.workflow.View())
}

func (rt *Router) beginTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := rt.workflow.BeginTransfer(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rt.workflow.View())
}

func (rt *Router) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	rt.workflow.CancelTransfer()
	writeJSON(w, http.StatusOK, rt.workflow.View())
}

func (rt *Router) confirmAndSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := rt.workflow.ConfirmAndSubmit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rt.workflow.View())
}

func (rt *Router) page2Image(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if rt.images == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "page 2 images are not available"})
		return
	}

	path := rt.workflow.View().Page2ImagePath()
	if path == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "active result has no page 2 image"})
		return
	}

	image, contentType, err := rt.images.FetchPage2Image(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

// resultJSON serves the processing result exactly as the service returned it,
// including fields the typed view does not carry.
func (rt *Router) resultJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	result := rt.workflow.View().Processing
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no processing result yet"})
		return
	}
	if len(result.Raw) == 0 {
		writeJSON(w, http.StatusOK, result)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
