package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/mcq-extractor/internal/document"
	"github.com/spherical/mcq-extractor/internal/domain"
	"github.com/spherical/mcq-extractor/internal/export"
	"github.com/spherical/mcq-extractor/internal/observability"
	"github.com/spherical/mcq-extractor/internal/session"
	"github.com/spherical/mcq-extractor/internal/store"
)

const (
	xlsxContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	multipartMemoryLimit = 32 << 20
)

// JobHandler handles extraction job requests.
type JobHandler struct {
	logger *observability.Logger
	jobs   *session.Manager
	cfg    Config
}

// NewJobHandler creates a new job handler.
func NewJobHandler(logger *observability.Logger, jobs *session.Manager, cfg Config) *JobHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = document.DefaultMaxBytes
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "auto"
	}
	return &JobHandler{
		logger: logger.WithOperation("api"),
		jobs:   jobs,
		cfg:    cfg,
	}
}

// RecordsDTO is the response of the records endpoint.
type RecordsDTO struct {
	JobID   string             `json:"jobId"`
	Count   int                `json:"count"`
	Records []domain.MCQRecord `json:"records"`
}

// Health handles GET /health.
func (h *JobHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "mcq-extractor",
		"version": h.cfg.Version,
	})
}

// Create handles POST /api/v1/jobs with a multipart "file" and optional "language".
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Allow for multipart framing on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "file too large", err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	name := filepath.Base(header.Filename)
	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || strings.HasPrefix(mediaType, "application/octet-stream") {
		mediaType = document.MediaTypeForName(name)
	}

	doc, err := document.NewDocument(name, mediaType, data, h.cfg.MaxUploadBytes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	language := strings.TrimSpace(r.FormValue("language"))
	if language == "" {
		language = h.cfg.DefaultLanguage
	}

	job, err := h.jobs.Start(*doc, language)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("file", name).
		Int("bytes", len(data)).
		Str("language", language).
		Msg("Accepted upload")

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	h.writeJSON(w, http.StatusAccepted, job.View())
}

// List handles GET /api/v1/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	views := make([]session.View, len(jobs))
	for i, j := range jobs {
		views[i] = j.View()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

// Get handles GET /api/v1/jobs/{jobId}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, job.View())
}

// Cancel handles POST /api/v1/jobs/{jobId}/cancel.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Cancel(chi.URLParam(r, "jobId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, job.View())
}

// Records handles GET /api/v1/jobs/{jobId}/records.
func (h *JobHandler) Records(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}
	records := job.Store.List()
	h.writeJSON(w, http.StatusOK, RecordsDTO{JobID: job.ID, Count: len(records), Records: records})
}

// PatchRecord handles PATCH /api/v1/jobs/{jobId}/records/{recordId}.
func (h *JobHandler) PatchRecord(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}

	var patch store.RecordPatch
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	record, err := job.Store.Patch(chi.URLParam(r, "recordId"), patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// Record handles GET /api/v1/jobs/{jobId}/records/{recordId}.
func (h *JobHandler) Record(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}

	record, err := job.Store.Get(chi.URLParam(r, "recordId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// FieldValue is the body of a single-field edit
type FieldValue struct {
	Value *string `json:"value"`
}

// SetRecordField handles PUT /api/v1/jobs/{jobId}/records/{recordId}/{field}.
func (h *JobHandler) SetRecordField(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}

	var body FieldValue
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if body.Value == nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "value is required")
		return
	}

	record, err := job.Store.Update(chi.URLParam(r, "recordId"), chi.URLParam(r, "field"), *body.Value)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// DeleteRecord handles DELETE /api/v1/jobs/{jobId}/records/{recordId}.
func (h *JobHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}
	if err := job.Store.Delete(chi.URLParam(r, "recordId")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportXLSX handles GET /api/v1/jobs/{jobId}/export/xlsx.
func (h *JobHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}

	data, err := export.XLSX(job.Store.List())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment(job.FileName, ".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ExportText handles GET /api/v1/jobs/{jobId}/export/text.
func (h *JobHandler) ExportText(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(job.FileName, ".txt"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, export.Text(job.Store.List()))
}

func (h *JobHandler) job(w http.ResponseWriter, r *http.Request) (*session.Job, bool) {
	job, err := h.jobs.Get(chi.URLParam(r, "jobId"))
	if err != nil {
		h.writeDomainError(w, err)
		return nil, false
	}
	return job, true
}

// writeDomainError maps validation to 400, not found to 404 and the rest to 500.
func (h *JobHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		h.writeError(w, http.StatusBadRequest, "invalid request", err.Error())
	case domain.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, "not found", err.Error())
	default:
		h.logger.Error().Err(err).Msg("Request failed")
		h.writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func (h *JobHandler) writeError(w http.ResponseWriter, status int, message, details string) {
	resp := map[string]string{"error": message}
	if details != "" {
		resp["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func (h *JobHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

// attachment builds a Content-Disposition header named after the upload.
func attachment(fileName, ext string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if base == "" {
		base = "mcqs"
	}
	return fmt.Sprintf("attachment; filename=%q", base+"-mcqs"+ext)
}
