package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/propdoc/analyzer/constants"
	"github.com/propdoc/analyzer/internal/category"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/export"
	"github.com/propdoc/analyzer/internal/pipeline"
	"github.com/propdoc/analyzer/internal/repository"
)

// Handlers bundles the dependencies the HTTP layer needs.
type Handlers struct {
	proc      *pipeline.Processor
	store     repository.Store
	exporter  *export.Service
	schema    *category.Schema
	cfg       *common.Config
	logger    *slog.Logger
}

func NewHandlers(proc *pipeline.Processor, store repository.Store, exporter *export.Service, schema *category.Schema, cfg *common.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{proc: proc, store: store, exporter: exporter, schema: schema, cfg: cfg, logger: logger}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadDocument ingests a PDF from a multipart form field named "file".
func (h *Handlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		h.writeError(w, r, common.NewAppError("UPLOAD_TOO_LARGE", "could not parse multipart form", common.ErrInvalidInput))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, common.NewAppError("MISSING_FILE", "form field 'file' is required", common.ErrInvalidInput))
		return
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			h.logger.Warn("http.upload.close_error", "error", cerr)
		}
	}()

	fileName := filepath.Base(header.Filename)
	if fileName == "" || fileName == "." || !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		h.writeError(w, r, common.NewAppError("UNSUPPORTED_FILE", "only .pdf uploads are accepted", common.ErrInvalidInput))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, common.WrapError(err, "read upload"))
		return
	}

	res, err := h.proc.Ingest(r.Context(), fileName, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type analyzeRequest struct {
	Model           string `json:"model"`
	BatchSize       int    `json:"batch_size"`
	IncludePageText bool   `json:"include_page_text"`
}

type analyzeResponse struct {
	Report   any `json:"report"`
	Findings any `json:"findings"`
}

// AnalyzeDocument runs the active category set against a staged document.
func (h *Handlers) AnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req analyzeRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			h.writeError(w, r, common.NewAppError("BAD_JSON", "could not decode request body", common.ErrInvalidInput))
			return
		}
	}

	modelID := h.cfg.LLM.Model
	if req.Model != "" {
		resolved, ok := constants.ResolveModel(req.Model)
		if !ok {
			h.writeError(w, r, common.NewAppError("UNKNOWN_MODEL", req.Model, common.ErrInvalidInput))
			return
		}
		modelID = resolved
	}
	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = h.cfg.Batch.Size
	}

	findings, report, err := h.proc.Analyze(r.Context(), name, h.schema, pipeline.AnalyzeOptions{
		ModelID:         modelID,
		BatchSize:       batchSize,
		IncludePageText: req.IncludePageText,
	})
	if err != nil && report == nil {
		h.writeError(w, r, err)
		return
	}
	// Partial persistence failure still returns the findings; the report and
	// status tell the caller to retry the writes.
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, analyzeResponse{Report: report, Findings: findings})
}

func (h *Handlers) ListFindings(w http.ResponseWriter, r *http.Request) {
	fileName := r.URL.Query().Get("file")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	findings, err := h.store.ListFindings(r.Context(), fileName, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

func (h *Handlers) ExportFindings(w http.ResponseWriter, r *http.Request) {
	fileName := r.URL.Query().Get("file")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	data, err := h.exporter.ExportFindingsXLSX(r.Context(), fileName, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := "findings.xlsx"
	if fileName != "" {
		out = constants.DocumentStem(fileName) + "_findings.xlsx"
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("http.export.write_error", "error", err)
	}
}

func (h *Handlers) ListCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.schema.List())
}

type addCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handlers) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req addCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, common.NewAppError("BAD_JSON", "could not decode request body", common.ErrInvalidInput))
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Description) == "" {
		h.writeError(w, r, common.NewAppError("MISSING_FIELDS", "name and description are required", common.ErrInvalidInput))
		return
	}

	cat, err := h.schema.Add(req.Name, req.Description)
	if err != nil {
		h.writeError(w, r, common.NewAppError("DUPLICATE_CATEGORY", req.Name, common.ErrInvalidInput))
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (h *Handlers) ResetCategories(w http.ResponseWriter, _ *http.Request) {
	h.schema.Reset()
	writeJSON(w, http.StatusOK, h.schema.List())
}

func (h *Handlers) ListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, constants.AvailableModels)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	h.logger.Error("http.error",
		"req_id", common.RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
