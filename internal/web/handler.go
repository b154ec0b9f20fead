package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/abdul-hamid-achik/vecstash/internal/db"
	"github.com/abdul-hamid-achik/vecstash/internal/embed"
	"github.com/abdul-hamid-achik/vecstash/internal/items"
	"github.com/abdul-hamid-achik/vecstash/internal/search"
	"github.com/abdul-hamid-achik/vecstash/internal/version"
	"github.com/abdul-hamid-achik/vecstash/internal/web/templates"
)

const (
	requestTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Handler handles HTTP requests for the web UI.
type Handler struct {
	service  *items.Service
	searcher *search.Searcher
	logger   *log.Logger
}

// NewHandler creates a new Handler.
func NewHandler(service *items.Service, searcher *search.Searcher, logger *log.Logger) *Handler {
	return &Handler{
		service:  service,
		searcher: searcher,
		logger:   logger,
	}
}

// addItemRequest is the body of POST /api/items.
type addItemRequest struct {
	Text  string   `json:"text"`
	Links []string `json:"links"`
}

// Index renders the search page, with results when q is set.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	data := templates.IndexData{
		Query: query,
		Limit: h.searcher.DefaultLimitValue(),
	}

	status := http.StatusOK
	if query != "" {
		data.Searched = true
		limit, err := parseLimit(r)
		if err != nil {
			status = http.StatusBadRequest
			data.Error = err.Error()
		} else {
			if limit > 0 {
				data.Limit = limit
			}

			ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
			defer cancel()

			results, err := h.searcher.Search(ctx, query, search.SearchOptions{Limit: limit})
			if err != nil {
				status = statusFor(err)
				data.Error = h.publicMessage(err, status)
			}
			for _, res := range results {
				data.Results = append(data.Results, templates.SearchResult{
					ID:    res.ID,
					Text:  res.Text,
					Links: res.Links,
					Score: res.Score,
				})
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	templates.Index(data).Render(r.Context(), w)
}

// APISearch handles GET /api/search?q=&limit=.
func (h *Handler) APISearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.jsonError(w, "query parameter 'q' is required", http.StatusBadRequest)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := h.searcher.Search(ctx, query, search.SearchOptions{Limit: limit})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// APIAddItem handles POST /api/items.
func (h *Handler) APIAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	item, err := h.service.Add(ctx, req.Text, req.Links)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusCreated, item)
}

// APIDeleteItem handles DELETE /api/items/{id}. Deleting a missing id succeeds.
func (h *Handler) APIDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := items.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	deleted, err := h.service.Delete(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"id":      id,
		"deleted": deleted,
	})
}

// APIStatus handles GET /api/status.
func (h *Handler) APIStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, err := h.service.Status(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, status)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
	})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > search.MaxLimit {
		return 0, errors.New("limit must be an integer between 1 and " + strconv.Itoa(search.MaxLimit))
	}
	return limit, nil
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var providerErr *embed.ProviderError
	switch {
	case errors.Is(err, items.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// publicMessage hides internal details of server errors from clients.
func (h *Handler) publicMessage(err error, status int) string {
	if status == http.StatusBadRequest || status == http.StatusServiceUnavailable {
		return err.Error()
	}
	h.logger.Error("Request failed", "status", status, "err", err)
	switch status {
	case http.StatusBadGateway:
		return "embedding provider error"
	case http.StatusGatewayTimeout:
		return "request timed out"
	}
	return "internal error"
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	h.jsonError(w, h.publicMessage(err, status), status)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
