package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/K9kd22r8/logseq/internal/importer"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// notify, if non-nil, is called after every import made through the API.
func NewRouter(svc *importer.Service, authEnabled bool, token string, sseHandler http.Handler, notify importer.EventCallback) chi.Router {
	h := NewHandler(svc, notify)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Session audit.
	r.Get("/schemas", h.ListSchemas)
	r.Get("/ignored", h.ListIgnored)

	// Graph reads.
	r.Get("/pages", h.ListPages)
	r.Get("/pages/*", h.GetPage)
	r.Get("/search", h.Search)

	// Single file import.
	r.Post("/import", h.ImportFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
