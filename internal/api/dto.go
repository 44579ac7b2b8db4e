package api

import (
	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/graphdb"
	"github.com/K9kd22r8/logseq/internal/importer"
)

// ImportRequest is the request body for importing one file.
type ImportRequest struct {
	Path    string `json:"path" example:"pages/hello.md" validate:"required"`
	Content string `json:"content" example:"- Hello [[World]]" validate:"required"`
}

// ImportResult is the response to an import (aliased from the domain layer).
type ImportResult = exporter.Result

// SchemaEntry is one registered property schema.
type SchemaEntry = exporter.SchemaEntry

// SchemaListResponse wraps the session's property schemas.
type SchemaListResponse struct {
	Schemas []SchemaEntry `json:"schemas" validate:"required"`
}

// IgnoredItem is one entry of the ignored log with its reason spelled out.
type IgnoredItem struct {
	Reason string `json:"reason" example:"discarded property value" validate:"required"`
	exporter.IgnoredProperty
}

// IgnoredListResponse wraps the session's ignored log.
type IgnoredListResponse struct {
	Ignored []IgnoredItem `json:"ignored" validate:"required"`
}

// PageDetail is a page with its blocks and backlinks.
type PageDetail = importer.PageDetail

// PageListResponse wraps paginated page listings.
type PageListResponse struct {
	Pages []exporter.Entity `json:"pages" validate:"required"`
	Total int               `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = graphdb.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
