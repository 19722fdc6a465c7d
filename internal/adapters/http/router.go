package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/config"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/observability/metrics"
)

const (
	serviceName        = "api"
	defaultListLimit   = 50
	maxListLimit       = 500
	backpressureWait   = 250 * time.Millisecond
	multipartMemoryCap = 8 << 20
)

type Router struct {
	cfg     config.Config
	query   ports.QueryService
	upload  ports.DocumentUploader
	runs    ports.IngestionReader
	ready   func(ctx context.Context) error
	metrics *metrics.HTTPServerMetrics
}

// NewRouter builds the HTTP surface. upload and runs may be nil; their routes then answer 503.
func NewRouter(
	cfg config.Config,
	query ports.QueryService,
	upload ports.DocumentUploader,
	runs ports.IngestionReader,
) *Router {
	return &Router{
		cfg:    cfg,
		query:  query,
		upload: upload,
		runs:   runs,
	}
}

func (rt *Router) WithReadiness(check func(ctx context.Context) error) *Router {
	rt.ready = check
	return rt
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.HandleFunc("POST /api/v1/query", rt.queryRAG)
	mux.HandleFunc("POST /api/v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /api/v1/ingestions", rt.listIngestions)
	mux.HandleFunc("GET /api/v1/ingestions/{document_id...}", rt.getIngestion)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if validator, err := newRequestValidator(); err != nil {
		slog.Error("openapi_validator_disabled", "error", err)
	} else {
		handler = validator.middleware(handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.HTTPMaxInFlight, backpressureWait, rt.onReject("backpressure"))
	handler = rateLimitMiddleware(handler, rt.cfg.HTTPRateLimitRPS, rt.cfg.HTTPRateLimitBurst, rt.onReject("rate_limit"))
	handler = corsMiddleware(handler, rt.cfg.CORSAllowAll)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) onReject(reason string) func() {
	return func() {
		if rt.metrics != nil {
			rt.metrics.RecordRejected(serviceName, reason)
		}
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := rt.ready(ctx); err != nil {
			slog.Warn("readiness_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type queryRequest struct {
	Prompt  string `json:"prompt"`
	History []struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"history"`
}

type queryResponse struct {
	Response string                 `json:"response"`
	Sources  domain.RetrievalResult `json:"sources"`
	Grounded bool                   `json:"grounded"`
	Fallback bool                   `json:"fallback"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	history := make(domain.ConversationHistory, 0, len(req.History))
	for _, turn := range req.History {
		role, err := domain.ParseRole(turn.Role)
		if err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		history = append(history, domain.ConversationTurn{Role: role, Text: turn.Text})
	}

	start := time.Now()
	answer, err := rt.query.Answer(r.Context(), req.Prompt, history)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(serviceName, "query", len(answer.Sources), len([]rune(answer.Text)),
			answer.Grounded, answer.Fallback, time.Since(start))
	}

	sources := answer.Sources
	if sources == nil {
		sources = domain.RetrievalResult{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Response: answer.Text,
		Sources:  sources,
		Grounded: answer.Grounded,
		Fallback: answer.Fallback,
	})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.upload == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not enabled")
		return
	}
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryCap); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ref, err := rt.upload.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, err)
	}
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": ref.DocumentID(),
		"bucket":      ref.Bucket,
		"key":         ref.Key,
		"status":      "queued",
	})
}

func (rt *Router) listIngestions(w http.ResponseWriter, r *http.Request) {
	if rt.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion tracking is not enabled")
		return
	}
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		limit = n
	}

	runs, err := rt.runs.ListRuns(r.Context(), limit)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if runs == nil {
		runs = []domain.IngestionRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (rt *Router) getIngestion(w http.ResponseWriter, r *http.Request) {
	if rt.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion tracking is not enabled")
		return
	}
	id := strings.Trim(r.PathValue("document_id"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	run, err := rt.runs.GetRun(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		message = http.StatusText(status)
	}
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
