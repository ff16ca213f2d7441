// Package admin exposes the exam hierarchy over HTTP.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-admin/internal/export"
	"github.com/p-n-ai/pai-admin/internal/hierarchy"
	"github.com/p-n-ai/pai-admin/internal/platform/cache"
)

const maxBodyBytes = 1 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves the hierarchy API.
type Handler struct {
	svc     *hierarchy.Service
	lists   cache.ListCache
	schemas map[string]*gojsonschema.Schema
}

// NewHandler creates a Handler. A nil lists cache disables list caching.
func NewHandler(svc *hierarchy.Service, lists cache.ListCache) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is nil")
	}
	if lists == nil {
		lists = cache.NopListCache{}
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Handler{svc: svc, lists: lists, schemas: schemas}, nil
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/exams/{id}/details", h.handleGetDetails)
	mux.HandleFunc("PUT /api/v1/exams/{id}/details", h.handlePutDetails)
	mux.HandleFunc("GET /api/v1/exams/{id}/export", h.handleExport)

	mux.HandleFunc("GET /api/v1/{kind}", h.handleList)
	mux.HandleFunc("POST /api/v1/{kind}", h.handleCreate)
	mux.HandleFunc("POST /api/v1/{kind}/reorder", h.handleReorder)
	mux.HandleFunc("GET /api/v1/{kind}/{id}", h.handleGet)
	mux.HandleFunc("PATCH /api/v1/{kind}/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/{kind}/{id}", h.handleDelete)
	mux.HandleFunc("PATCH /api/v1/{kind}/{id}/status", h.handleStatus)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	kind, err := hierarchy.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	parentID := r.URL.Query().Get("parent_id")
	if kind == hierarchy.KindExam {
		parentID = ""
	}

	key := kind.String() + ":" + parentID
	if body, ok := h.lists.Get(r.Context(), key); ok {
		w.Header().Set("X-Cache", "hit")
		writeRaw(w, http.StatusOK, body)
		return
	}

	nodes, err := h.svc.List(r.Context(), kind, parentID)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := json.Marshal(nodes)
	if err != nil {
		writeError(w, err)
		return
	}
	h.lists.Set(r.Context(), key, body)
	w.Header().Set("X-Cache", "miss")
	writeRaw(w, http.StatusOK, body)
}

type createRequest struct {
	Name     string           `json:"name"`
	Path     hierarchy.Path   `json:"path"`
	Position int              `json:"position"`
	Status   hierarchy.Status `json:"status"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, err := hierarchy.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req createRequest
	if err := h.decode(r, "create", &req); err != nil {
		writeError(w, err)
		return
	}

	n, err := h.svc.Create(r.Context(), hierarchy.CreateInput{
		Kind:     kind,
		Name:     req.Name,
		Path:     req.Path,
		Position: req.Position,
		Status:   req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.purge(r)
	writeJSON(w, http.StatusCreated, n)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, err := hierarchy.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := h.svc.Get(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

type updateRequest struct {
	Name     *string `json:"name"`
	Position *int    `json:"position"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := hierarchy.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateRequest
	if err := h.decode(r, "update", &req); err != nil {
		writeError(w, err)
		return
	}
	n, err := h.svc.Update(r.Context(), kind, r.PathValue("id"), hierarchy.UpdateInput{
		Name:     req.Name,
		Position: req.Position,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.purge(r)
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := hierarchy.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.DeleteNode(r.Context(), kind, r.PathValue("id"))
	if res.Kind.Valid() {
		h.purge(r)
	}
	if err != nil {
		if res.Kind.Valid() {
			writeErrorResult(w, err, res)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type statusRequest struct {
	Status hierarchy.Status `json:"status"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	kind, err := hierarchy.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req statusRequest
	if err := h.decode(r, "status", &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.SetStatus(r.Context(), kind, r.PathValue("id"), req.Status)
	if res.Kind.Valid() {
		h.purge(r)
	}
	if err != nil {
		if res.Kind.Valid() {
			writeErrorResult(w, err, res)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reorderRequest struct {
	Updates []hierarchy.SiblingUpdate `json:"updates"`
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	kind, err := hierarchy.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req reorderRequest
	if err := h.decode(r, "reorder", &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.Reorder(r.Context(), kind, req.Updates)
	if err != nil {
		// A failed commit phase may have moved nodes into the band.
		h.purge(r)
		writeError(w, err)
		return
	}
	h.purge(r)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetDetails(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.ExamDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type detailsRequest struct {
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	TotalMarks      int    `json:"total_marks"`
}

func (h *Handler) handlePutDetails(w http.ResponseWriter, r *http.Request) {
	var req detailsRequest
	if err := h.decode(r, "details", &req); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	err := h.svc.PutExamDetail(r.Context(), hierarchy.ExamDetail{
		ExamID:          id,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		TotalMarks:      req.TotalMarks,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.svc.ExamDetail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, err := export.ExamWorkbook(r.Context(), h.svc.Store(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="exam-%s.xlsx"`, id))
	if err := f.Write(w); err != nil {
		slog.Error("export write failed", "exam_id", id, "error", err)
	}
}

// decode reads the body, validates it against the named schema and decodes it into dst.
func (h *Handler) decode(r *http.Request, schema string, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", hierarchy.ErrInvalidArgument, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body exceeds %d bytes", hierarchy.ErrInvalidArgument, maxBodyBytes)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: request body is required", hierarchy.ErrInvalidArgument)
	}
	if err := validateBody(h.schemas[schema], body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", hierarchy.ErrInvalidArgument, err)
	}
	return nil
}

// purge drops every cached listing after a write.
func (h *Handler) purge(r *http.Request) {
	h.lists.Purge(r.Context())
}

type errorResponse struct {
	Error  string `json:"error"`
	Result any    `json:"result,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErrorResult reports err along with the partial cascade report.
func writeErrorResult(w http.ResponseWriter, err error, res any) {
	status, msg := errorStatus(err)
	writeJSON(w, status, errorResponse{Error: msg, Result: res})
}

func errorStatus(err error) (int, string) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, hierarchy.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, hierarchy.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, hierarchy.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	default:
		slog.Error("request failed", "error", err)
	}
	return status, msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
