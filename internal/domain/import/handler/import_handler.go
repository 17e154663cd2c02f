// Package handler exposes the import pipeline over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
)

// ImportHandler serves the import endpoints.
type ImportHandler struct {
	importSvc *importservice.ImportService
	sessions  *importservice.SessionStore
	logger    *slog.Logger
	maxUpload int64
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc *importservice.ImportService, sessions *importservice.SessionStore, maxUpload int64, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		sessions:  sessions,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// Register mounts the routes on mux.
func (h *ImportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/presets", h.ListPresets)
	mux.HandleFunc("POST /v1/mappings", h.SaveMapping)
	mux.HandleFunc("POST /v1/imports/analyze", h.Analyze)
	mux.HandleFunc("POST /v1/imports", h.Preview)
	mux.HandleFunc("GET /v1/imports/{id}", h.GetImport)
	mux.HandleFunc("PATCH /v1/imports/{id}/transactions/{txID}", h.UpdateTransaction)
	mux.HandleFunc("POST /v1/imports/{id}/commit", h.Commit)
	mux.HandleFunc("GET /v1/imports/{id}/errors.csv", h.ErrorReport)
}

type sessionResponse struct {
	ID          uuid.UUID           `json:"id"`
	AccountID   uuid.UUID           `json:"account_id"`
	FileName    string              `json:"file_name"`
	Stage       string              `json:"stage"`
	Currency    string              `json:"currency"`
	Fingerprint string              `json:"fingerprint,omitempty"`
	Mapping     model.ColumnMapping `json:"mapping"`
	Preview     model.ImportPreview `json:"preview"`
	Result      any                 `json:"result,omitempty"`
}

func toSessionResponse(s *importservice.Session) sessionResponse {
	resp := sessionResponse{
		ID:          s.ID,
		AccountID:   s.AccountID,
		FileName:    s.FileName,
		Stage:       s.Stage().String(),
		Currency:    s.Currency,
		Fingerprint: s.Fingerprint,
		Mapping:     s.Mapping,
		Preview:     s.Preview(),
	}
	if r := s.Result(); r != nil {
		resp.Result = r
	}
	return resp
}

// ListPresets returns the built-in bank presets.
func (h *ImportHandler) ListPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": sniffer.Presets()})
}

// Analyze detects a file's layout without extracting it.
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var accountID *uuid.UUID
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account_id")
			return
		}
		accountID = &id
	}

	result, err := h.importSvc.Analyze(r.Context(), accountID, upload.data, upload.format)
	if err != nil {
		h.logger.Warn("failed to analyze file", slog.String("file", upload.name), slog.Any("error", err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Preview extracts an uploaded statement and opens a review session.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID, err := uuid.Parse(q.Get("account_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	upload, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := importservice.ImportRequest{
		AccountID: accountID,
		FileName:  upload.name,
		Data:      upload.data,
		Format:    upload.format,
		Currency:  q.Get("currency"),
		Preset:    q.Get("preset"),
		Mapping:   upload.mapping,
	}
	if q.Get("silent") == "true" {
		req.Mode = parser.ModeSilent
	}

	session, err := h.importSvc.Preview(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.sessions.Put(session)
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// GetImport returns a session and its preview.
func (h *ImportHandler) GetImport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

type updateTransactionRequest struct {
	Selected      *bool      `json:"selected"`
	CategoryID    *uuid.UUID `json:"category_id"`
	ClearCategory bool       `json:"clear_category"`
}

// UpdateTransaction toggles selection or sets the category of one previewed transaction.
func (h *ImportHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	txID, err := uuid.Parse(r.PathValue("txID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var body updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Selected != nil {
		if err := session.SetSelected(txID, *body.Selected); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
	}
	if body.CategoryID != nil || body.ClearCategory {
		if err := session.SetCategory(txID, body.CategoryID); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Commit persists the selected transactions of a session.
func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := h.importSvc.Commit(r.Context(), session)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ErrorReport downloads the failed rows of a session as CSV.
func (h *ImportHandler) ErrorReport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "errors-"+session.ID.String()+".csv"))
	if err := parser.WriteErrorReport(w, session.Preview().Errors); err != nil {
		h.logger.Error("failed to write error report", slog.Any("error", err))
	}
}

type saveMappingRequest struct {
	AccountID   *uuid.UUID          `json:"account_id"`
	Fingerprint string              `json:"fingerprint"`
	BankName    string              `json:"bank_name"`
	Mapping     model.ColumnMapping `json:"mapping"`
}

// SaveMapping remembers a mapping for a header fingerprint.
func (h *ImportHandler) SaveMapping(w http.ResponseWriter, r *http.Request) {
	var body saveMappingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := h.importSvc.SaveMapping(r.Context(), body.AccountID, body.Fingerprint, body.BankName, body.Mapping)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *ImportHandler) session(w http.ResponseWriter, r *http.Request) (*importservice.Session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid import id")
		return nil, false
	}
	session, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return session, true
}

type upload struct {
	name    string
	data    []byte
	format  importservice.Format
	mapping *model.ColumnMapping
}

// readUpload accepts a multipart "file" field (with an optional JSON "mapping"
// field) or the raw request body.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	u := &upload{name: "upload"}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return nil, fmt.Errorf("failed to parse form or request too large (max %d bytes)", h.maxUpload)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("failed to retrieve file from request, use the 'file' field")
		}
		defer file.Close()
		if u.data, err = io.ReadAll(file); err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		u.name = header.Filename
		if raw := r.FormValue("mapping"); raw != "" {
			var m model.ColumnMapping
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				return nil, fmt.Errorf("invalid mapping: %w", err)
			}
			u.mapping = &m
		}
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body (max %d bytes)", h.maxUpload)
		}
		u.data = data
	}
	if len(u.data) == 0 {
		return nil, errors.New("empty upload")
	}

	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = filepath.Ext(u.name)
	}
	format, err := importservice.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	u.format = format
	return u, nil
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, importservice.ErrSessionNotFound),
		errors.Is(err, importservice.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, importservice.ErrNotPreviewing),
		errors.Is(err, importservice.ErrCommitInProgress):
		return http.StatusConflict
	case errors.Is(err, sniffer.ErrEmptyFile),
		errors.Is(err, sniffer.ErrNoHeadersFound),
		errors.Is(err, sniffer.ErrNoDateColumn),
		errors.Is(err, sniffer.ErrNoDescriptionColumn),
		errors.Is(err, sniffer.ErrNoAmountColumn),
		errors.Is(err, model.ErrInvalidMapping),
		errors.Is(err, parser.ErrHeaderNotFound),
		errors.Is(err, parser.ErrUnknownCurrency),
		errors.Is(err, parser.ErrNoSheet),
		errors.Is(err, importservice.ErrUnknownPreset),
		errors.Is(err, importservice.ErrUnknownFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, importservice.ErrNoMappingStore):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
