// Package models defines the raw page and block records produced by the
// extractor. They are read-only input to the exporter and live for one file.
package models

import "github.com/google/uuid"

// Format names the markup dialect of a page or block.
type Format string

const (
	FormatMarkdown   Format = "markdown"
	FormatWhiteboard Format = "whiteboard"
)

// PageRef is a reference to a page by name, as seen by the extractor.
type PageRef struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name,omitempty"`
	Journal      bool   `json:"journal,omitempty"`
}

// Pointer is a structural link to either a block (by uuid) or a page (by
// normalized name). Exactly one of the two is set.
type Pointer struct {
	Block uuid.UUID `json:"block,omitempty"`
	Page  string    `json:"page,omitempty"`
}

// IsZero reports whether the pointer is unset.
func (p Pointer) IsZero() bool {
	return p.Block == uuid.Nil && p.Page == ""
}

// BlockPointer returns a pointer to the block id.
func BlockPointer(id uuid.UUID) Pointer { return Pointer{Block: id} }

// PagePointer returns a pointer to the named page.
func PagePointer(name string) Pointer { return Pointer{Page: name} }

// Macro is an inline macro call found in block content.
type Macro struct {
	Name      string   `json:"name"`
	Arguments []string `json:"arguments,omitempty"`
}

// RawPage is one page as extracted from a file, either the file's own page
// or a page implied by a reference.
type RawPage struct {
	UUID                 uuid.UUID         `json:"uuid,omitempty"`
	Name                 string            `json:"name"`
	OriginalName         string            `json:"original_name,omitempty"`
	Journal              bool              `json:"journal,omitempty"`
	JournalDay           int               `json:"journal_day,omitempty"`
	Format               Format            `json:"format,omitempty"`
	Properties           map[string]any    `json:"properties,omitempty"`
	PropertiesTextValues map[string]string `json:"properties_text_values,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
	Alias                []string          `json:"alias,omitempty"`
	Namespace            string            `json:"namespace,omitempty"`
	Whiteboard           bool              `json:"whiteboard,omitempty"`
	File                 string            `json:"file,omitempty"`
	CreatedAt            int64             `json:"created_at,omitempty"`
	UpdatedAt            int64             `json:"updated_at,omitempty"`
}

// RawBlock is one outline block. Parent and Left point either at another
// block of the same file or at the page itself.
type RawBlock struct {
	UUID                 uuid.UUID         `json:"uuid"`
	Content              string            `json:"content"`
	Properties           map[string]any    `json:"properties,omitempty"`
	PropertiesTextValues map[string]string `json:"properties_text_values,omitempty"`
	Refs                 []PageRef         `json:"refs,omitempty"`
	BlockRefs            []uuid.UUID       `json:"block_refs,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
	Macros               []Macro           `json:"macros,omitempty"`
	Page                 string            `json:"page"`
	Parent               Pointer           `json:"parent"`
	Left                 Pointer           `json:"left"`
	PreBlock             bool              `json:"pre_block,omitempty"`
	Format               Format            `json:"format,omitempty"`
	CreatedAt            int64             `json:"created_at,omitempty"`
	UpdatedAt            int64             `json:"updated_at,omitempty"`
}

// Extraction is the extractor's output for one file.
type Extraction struct {
	Pages  []RawPage  `json:"pages"`
	Blocks []RawBlock `json:"blocks"`
}
