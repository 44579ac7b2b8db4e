package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/models"
)

// whiteboardFile is the on-disk whiteboard document: the board page and its
// shapes, each shape stored as a block.
type whiteboardFile struct {
	Page struct {
		UUID       string         `json:"uuid"`
		Title      string         `json:"title"`
		Properties map[string]any `json:"properties"`
	} `json:"page"`
	Blocks []struct {
		UUID       string         `json:"uuid"`
		Content    string         `json:"content"`
		Properties map[string]any `json:"properties"`
		CreatedAt  int64          `json:"created_at"`
		UpdatedAt  int64          `json:"updated_at"`
	} `json:"blocks"`
}

// ExtractWhiteboard parses a whiteboard file. Only the board page is
// returned as a page: references from shapes must name pages that already
// exist.
func (Extractor) ExtractWhiteboard(p string, content []byte, opts exporter.ExtractOptions) (*models.Extraction, error) {
	var wf whiteboardFile
	if err := json.Unmarshal(bytes.TrimPrefix(content, utf8BOM), &wf); err != nil {
		return nil, fmt.Errorf("decode whiteboard %s: %w", p, err)
	}
	df, err := NewDateFormat(opts.DateFormat)
	if err != nil {
		return nil, err
	}
	slash := filepath.ToSlash(p)
	x := &extraction{path: slash, dates: df, pages: make(map[string]int)}

	title := strings.TrimSpace(wf.Page.Title)
	if title == "" {
		title = titleFromFileName(strings.TrimSuffix(path.Base(slash), path.Ext(slash)))
	}
	page := models.RawPage{
		Name:         strings.ToLower(title),
		OriginalName: title,
		Format:       models.FormatWhiteboard,
		Whiteboard:   true,
		File:         slash,
		Properties:   wf.Page.Properties,
	}
	if id, err := uuid.Parse(wf.Page.UUID); err == nil {
		page.UUID = id
	}

	ext := &models.Extraction{Pages: []models.RawPage{page}}
	prev := models.PagePointer(page.Name)
	for i, wb := range wf.Blocks {
		id, err := uuid.Parse(wb.UUID)
		if err != nil {
			id = uuid.NewSHA1(blockNamespace, []byte(fmt.Sprintf("%s#%d", slash, i)))
		}
		refs, tags, blockRefs, macros := x.contentRefs(wb.Content)
		ext.Blocks = append(ext.Blocks, models.RawBlock{
			UUID:       id,
			Content:    wb.Content,
			Properties: wb.Properties,
			Refs:       refs,
			BlockRefs:  blockRefs,
			Tags:       tags,
			Macros:     macros,
			Page:       page.Name,
			Parent:     models.PagePointer(page.Name),
			Left:       prev,
			Format:     models.FormatWhiteboard,
			CreatedAt:  wb.CreatedAt,
			UpdatedAt:  wb.UpdatedAt,
		})
		prev = models.BlockPointer(id)
	}
	return ext, nil
}
