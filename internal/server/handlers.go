package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/genjob/internal/classify"
	"github.com/maauso/genjob/internal/job"
	"github.com/maauso/genjob/internal/provider"
)

// Bounds of the wait in GET /jobs/{id}/result.
const (
	DefaultAwaitTimeout = 30 * time.Second
	MaxAwaitTimeout     = 90 * time.Second
)

// JobService is the orchestrator surface used by the handlers.
type JobService interface {
	Submit(ctx context.Context, cfg provider.Config, req job.Request) (*job.Job, error)
	Get(jobID string) (*job.Job, error)
	Await(ctx context.Context, jobID string) (*job.Job, error)
	Cancel(jobID string) error
	Quota(ctx context.Context, cfg provider.Config) (provider.Quota, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service       JobService
	validator     *validator.Validate
	logger        *slog.Logger
	defaultConfig *provider.Config
	awaitTimeout  time.Duration
	jobCount      func() int
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithDefaultConfig sets the provider configuration used when a request
// carries none.
func WithDefaultConfig(cfg provider.Config) HandlerOption {
	return func(h *Handlers) {
		if cfg.Provider != "" {
			h.defaultConfig = &cfg
		}
	}
}

// WithAwaitTimeout sets the default wait of GET /jobs/{id}/result.
func WithAwaitTimeout(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.awaitTimeout = d
		}
	}
}

// WithJobCount reports the registry size on /health.
func WithJobCount(f func() int) HandlerOption {
	return func(h *Handlers) {
		h.jobCount = f
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service JobService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:      service,
		validator:    validator.New(),
		logger:       logger,
		awaitTimeout: DefaultAwaitTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.jobCount != nil {
		resp.Jobs = h.jobCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg, ok := h.resolveConfig(w, req.Config)
	if !ok {
		return
	}

	jobReq := job.Request{
		Kind:   provider.Kind(req.Kind),
		Prompt: req.Prompt,
		Options: provider.Options{
			AspectRatio: req.Options.AspectRatio,
			Size:        req.Options.Size,
			DurationSec: req.Options.DurationSec,
			Quality:     req.Options.Quality,
		},
		Models: req.Models,
	}
	if req.Reference != nil {
		ref, err := toReference(req.Reference)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		jobReq.Reference = ref
	}

	// The job outlives the request.
	created, err := h.service.Submit(context.WithoutCancel(r.Context()), cfg, jobReq)
	if err != nil {
		h.requestLogger(r).Warn("job submission failed", slog.String("error", err.Error()))
		if created != nil {
			writeJSON(w, statusForError(err), toJobResponse(created))
			return
		}
		writeClassified(w, err)
		return
	}

	h.requestLogger(r).Info("job created",
		slog.String("job_id", created.ID),
		slog.String("provider", created.Provider),
		slog.String("model", created.Model),
	)

	writeJSON(w, http.StatusAccepted, toJobResponse(created))
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.Get(jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// GetResult handles GET /jobs/{id}/result requests. It waits for a terminal
// state up to ?timeout= (default 30s, at most 90s) and answers 202 with the
// current snapshot if the job is still running.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	timeout := h.awaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a non-negative duration, e.g. 30s", "INVALID_TIMEOUT")
			return
		}
		timeout = min(d, MaxAwaitTimeout)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	done, err := h.service.Await(ctx, jobID)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		snapshot, getErr := h.service.Get(jobID)
		if getErr != nil {
			h.writeLookupError(w, jobID, getErr)
			return
		}
		writeJSON(w, http.StatusAccepted, toJobResponse(snapshot))
	case done != nil:
		writeJSON(w, statusForError(err), toJobResponse(done))
	default:
		h.writeLookupError(w, jobID, err)
	}
}

// CancelJob handles DELETE /jobs/{id} requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.Cancel(jobID); err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}

	found, err := h.service.Get(jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// Quota handles POST /quota requests.
func (h *Handlers) Quota(w http.ResponseWriter, r *http.Request) {
	var req QuotaRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg, ok := h.resolveConfig(w, req.Config)
	if !ok {
		return
	}

	q, err := h.service.Quota(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, provider.ErrQuotaNotSupported) {
			writeError(w, http.StatusNotImplemented, err.Error(), "QUOTA_NOT_SUPPORTED")
			return
		}
		h.requestLogger(r).Warn("quota lookup failed",
			slog.String("provider", cfg.Provider),
			slog.String("error", err.Error()),
		)
		writeClassified(w, err)
		return
	}

	writeJSON(w, http.StatusOK, QuotaResponse{
		Provider:  cfg.Provider,
		Total:     q.Total,
		Used:      q.Used,
		Remaining: q.Remaining,
	})
}

// requestLogger tags log lines with the request id.
func (h *Handlers) requestLogger(r *http.Request) *slog.Logger {
	if id := RequestIDFromContext(r.Context()); id != "" {
		return h.logger.With(slog.String("request_id", id))
	}
	return h.logger
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.requestLogger(r).Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.requestLogger(r).Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) resolveConfig(w http.ResponseWriter, c *ProviderConfig) (provider.Config, bool) {
	if c != nil {
		return provider.Config{
			Provider:       c.Provider,
			BaseURL:        c.BaseURL,
			APIKey:         c.APIKey,
			PreferredModel: c.PreferredModel,
		}, true
	}
	if h.defaultConfig != nil {
		return *h.defaultConfig, true
	}
	writeError(w, http.StatusBadRequest, "config is required: no default provider is configured", "MISSING_PROVIDER")
	return provider.Config{}, false
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error("failed to get job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
}

func toReference(r *Reference) (*provider.ReferenceAsset, error) {
	ref := &provider.ReferenceAsset{
		URL:         r.URL,
		MIMEType:    r.MIMEType,
		Description: r.Description,
	}
	if r.Base64 != "" {
		data, err := base64.StdEncoding.DecodeString(r.Base64)
		if err != nil {
			return nil, errors.New("reference.base64 is not valid base64")
		}
		ref.Data = data
	}
	return ref, nil
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Kind:      string(j.Kind),
		Provider:  j.Provider,
		Model:     j.Model,
		TaskID:    j.TaskID,
		Progress:  j.Progress,
		Polls:     j.Attempt,
		Degraded:  j.Degraded,
		CreatedAt: j.CreatedAt,
	}
	if !j.FinishedAt.IsZero() {
		finished := j.FinishedAt
		resp.FinishedAt = &finished
	}

	if j.Asset != nil {
		asset := &AssetResponse{
			Materialized: j.Asset.Materialized,
			Strategy:     string(j.Asset.Strategy),
			MIMEType:     j.Asset.MIMEType,
			URL:          j.Asset.URL,
			Ref:          j.Asset.Ref,
		}
		if len(j.Asset.Data) > 0 {
			asset.Base64 = base64.StdEncoding.EncodeToString(j.Asset.Data)
		}
		resp.Asset = asset
	}

	if j.Failure != nil {
		resp.Error = &FailureResponse{
			Code:    j.Failure.Code(),
			Message: j.Failure.Message,
			Raw:     j.Failure.Raw,
		}
	}

	for _, a := range j.Attempts {
		resp.Attempts = append(resp.Attempts, AttemptResponse{
			Provider:  a.Provider,
			Model:     a.Model,
			Mode:      string(a.Mode),
			Succeeded: a.Succeeded,
			Code:      a.Code(),
		})
	}
	return resp
}

// statusForError maps a classified failure to an HTTP status. nil is 200.
func statusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch classify.FromError(err).Kind {
	case classify.KindBadRequest:
		return http.StatusBadRequest
	case classify.KindAuthFailed:
		return http.StatusUnauthorized
	case classify.KindQuotaExhausted:
		return http.StatusPaymentRequired
	case classify.KindRateLimited:
		return http.StatusTooManyRequests
	case classify.KindContentModerationPerson, classify.KindContentModerationPolicy, classify.KindContentModerationCopyright:
		return http.StatusUnprocessableEntity
	case classify.KindTimedOut:
		return http.StatusGatewayTimeout
	case classify.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// writeClassified writes a classified error without a job body.
func writeClassified(w http.ResponseWriter, err error) {
	ce := classify.FromError(err)
	writeError(w, statusForError(ce), ce.Error(), ce.Code())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
