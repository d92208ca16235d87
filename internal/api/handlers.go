package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/queryir"
	"github.com/roach88/cnyre/internal/store"
)

// Reader is the store surface the facade reads from.
type Reader interface {
	QueryProperties(ctx context.Context, filters queryir.Filters, page queryir.Page) ([]model.PropertyRow, error)
	GetProperty(ctx context.Context, id string) (model.PropertyDetail, error)
	LatestRun(ctx context.Context) (store.RunRecord, error)
	Ping(ctx context.Context) error
}

// Handler holds the facade's dependencies.
type Handler struct {
	Store Reader
}

// NewHandler creates a handler over the given store.
func NewHandler(r Reader) *Handler {
	return &Handler{Store: r}
}

// PropertyList is the response of GET /api/properties.
type PropertyList struct {
	Items  []model.PropertyRow `json:"items"`
	Count  int                 `json:"count"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// HealthResponse is the response of GET /api/health.
type HealthResponse struct {
	Status    string `json:"status"`
	LastRunID string `json:"last_run_id,omitempty"`
	LastRun   string `json:"last_run_status,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ListProperties serves filtered, paginated rows. Filters are
// class, zip and district; each may repeat or hold a comma-separated list.
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePage(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pagination", err)
		return
	}
	filters := queryir.Filters{
		PropertyClasses: listParam(q, "class"),
		Zips:            listParam(q, "zip"),
		SchoolDistricts: listParam(q, "district"),
	}

	rows, err := h.Store.QueryProperties(r.Context(), filters, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query properties", err)
		return
	}
	writeJSON(w, http.StatusOK, PropertyList{
		Items:  rows,
		Count:  len(rows),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// GetProperty serves one property with its assessments and trends. IDs
// contain '|' and may contain '/', so clients escape them.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, "Invalid property ID", err)
		return
	}

	detail, err := h.Store.GetProperty(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Property not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get property", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Health reports whether the store answers and how the last run ended.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	resp := HealthResponse{Status: "ok"}
	run, err := h.Store.LatestRun(r.Context())
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to read last run", err)
		return
	default:
		resp.LastRunID = run.RunID
		resp.LastRun = run.Status
	}
	writeJSON(w, http.StatusOK, resp)
}

func parsePage(q url.Values) (queryir.Page, error) {
	page := queryir.Page{Limit: queryir.DefaultLimit}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > queryir.MaxLimit {
			return page, fmt.Errorf("limit must be an integer in [1, %d]", queryir.MaxLimit)
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, errors.New("offset must be a non-negative integer")
		}
		page.Offset = n
	}
	return page, nil
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
