package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/K9kd22r8/logseq/internal/importer"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *importer.Service
	notify importer.EventCallback
}

// NewHandler creates a new Handler.
func NewHandler(svc *importer.Service, notify importer.EventCallback) *Handler {
	return &Handler{svc: svc, notify: notify}
}

// pageName extracts the page name from the URL (everything after
// /api/pages/). Namespaced names keep their slashes; encoded slashes are
// accepted too.
func pageName(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListSchemas handles GET /api/schemas.
//
//	@Summary		List the property schemas registered in the session
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SchemaListResponse
//	@Security		BearerAuth
//	@Router			/schemas [get]
func (h *Handler) ListSchemas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SchemaListResponse{Schemas: nonNil(h.svc.Schemas())})
}

// ListIgnored handles GET /api/ignored.
//
//	@Summary		List values and changes the session did not apply
//	@Tags			session
//	@Produce		json
//	@Param			reason	query		string	false	"Filter by reason text"
//	@Param			file	query		string	false	"Filter by file"
//	@Success		200		{object}	IgnoredListResponse
//	@Security		BearerAuth
//	@Router			/ignored [get]
func (h *Handler) ListIgnored(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reason, file := q.Get("reason"), q.Get("file")

	items := []IgnoredItem{}
	for _, p := range h.svc.Ignored() {
		if reason != "" && p.ReasonText() != reason {
			continue
		}
		if file != "" && p.File != file {
			continue
		}
		items = append(items, IgnoredItem{Reason: p.ReasonText(), IgnoredProperty: p})
	}
	writeJSON(w, http.StatusOK, IgnoredListResponse{Ignored: items})
}

// ListPages handles GET /api/pages.
//
//	@Summary		List pages with pagination
//	@Tags			pages
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	PageListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	pages, total, err := h.svc.ListPages(r.Context(), limit, offset)
	if err != nil {
		slog.Error("list pages failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: pages, Total: total})
}

// GetPage handles GET /api/pages/*.
//
//	@Summary		Get a page with its blocks and backlinks
//	@Tags			pages
//	@Produce		json
//	@Param			name	path		string	true	"Page name"
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{name} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	name := pageName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	page, err := h.svc.Page(r.Context(), name)
	if err != nil {
		writeError(w, "get page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ImportFile handles POST /api/import.
//
//	@Summary		Import one file into the graph database
//	@Tags			import
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"File to import"
//	@Success		200		{object}	ImportResult
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) ImportFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.ImportFile(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, "import "+req.Path, err)
		return
	}
	if h.notify != nil {
		kind := "imported"
		if res.Skipped {
			kind = "skipped"
		}
		h.notify(kind, res)
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across page names and block content
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
