// Package parser extracts pages and blocks from outline Markdown files and
// whiteboard JSON files.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/models"
)

var (
	pageRefRe  = regexp.MustCompile(`\[\[([^\[\]]+?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#(?:\[\[([^\[\]]+)\]\]|([^\s#\[\],.!?;:"'()]+))`)
	blockRefRe = regexp.MustCompile(`\(\(([0-9a-fA-F-]{36})\)\)`)
	macroRe    = regexp.MustCompile(`\{\{\s*([^\s{}]+)\s*([^{}]*)\}\}`)
	propertyRe = regexp.MustCompile(`^([A-Za-z0-9_][A-Za-z0-9_.\-]*)::\s*(.*)$`)
)

var utf8BOM = []byte("\xef\xbb\xbf")

// blockNamespace derives block ids from a file path and block position.
var blockNamespace = uuid.MustParse("3f1c2b7e-9d4a-4c8e-b6f0-1a2d3e4f5a6b")

// Extractor implements exporter.Extractor for the outline Markdown dialect.
type Extractor struct{}

var _ exporter.Extractor = Extractor{}

// Extract parses an outline Markdown file. The page's own properties come
// from YAML frontmatter or from a leading properties-only block.
func (Extractor) Extract(p string, content []byte, opts exporter.ExtractOptions) (*models.Extraction, error) {
	df, err := NewDateFormat(opts.DateFormat)
	if err != nil {
		return nil, err
	}
	x := &extraction{path: filepath.ToSlash(p), dates: df, pages: make(map[string]int)}

	fm, body := splitFrontmatter(bytes.TrimPrefix(content, utf8BOM))
	page := x.filePage()
	blocks := parseOutline(body, opts.BlockPattern)

	pageProps := map[string]any{}
	pageText := map[string]string{}
	for k, v := range fm {
		pageProps[strings.ToLower(k)] = frontmatterValue(v)
	}
	if len(blocks) > 0 && blocks[0].propertiesOnly() {
		for _, kv := range blocks[0].props {
			v, text := x.propertyValue(kv.key, kv.value)
			pageProps[kv.key] = v
			pageText[kv.key] = text
		}
		blocks[0].preBlock = true
	}
	x.applyPageProperties(&page, pageProps, pageText)
	x.addPage(page)

	ext := &models.Extraction{}
	ext.Blocks = x.blocks(page.Name, blocks)
	ext.Pages = x.out
	return ext, nil
}

// extraction accumulates the pages of one file.
type extraction struct {
	path  string
	dates *DateFormat
	out   []models.RawPage
	pages map[string]int
}

func (x *extraction) filePage() models.RawPage {
	base := strings.TrimSuffix(path.Base(x.path), path.Ext(x.path))
	if isJournalPath(x.path) {
		if t, ok := journalDate(base); ok {
			title := x.dates.Format(t)
			return models.RawPage{
				Name:         strings.ToLower(title),
				OriginalName: title,
				Journal:      true,
				JournalDay:   JournalDay(t),
				Format:       models.FormatMarkdown,
				File:         x.path,
			}
		}
	}
	title := titleFromFileName(base)
	return models.RawPage{
		Name:         strings.ToLower(title),
		OriginalName: title,
		Format:       models.FormatMarkdown,
		File:         x.path,
	}
}

func isJournalPath(p string) bool {
	for _, part := range strings.Split(path.Dir(p), "/") {
		if part == "journals" {
			return true
		}
	}
	return false
}

// titleFromFileName reverses the file name escaping of page titles.
func titleFromFileName(base string) string {
	s := strings.ReplaceAll(base, "___", "/")
	if u, err := url.PathUnescape(s); err == nil {
		s = u
	}
	return strings.TrimSpace(s)
}

func (x *extraction) applyPageProperties(page *models.RawPage, props map[string]any, text map[string]string) {
	if t, ok := props["title"].(string); ok && strings.TrimSpace(t) != "" {
		page.OriginalName = strings.TrimSpace(t)
		page.Name = strings.ToLower(page.OriginalName)
	}
	if id, ok := props["id"].(string); ok {
		if u, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
			page.UUID = u
		}
	}
	page.Tags = namesOf(props["tags"])
	page.Alias = namesOf(props["alias"])
	for _, n := range append(append([]string(nil), page.Tags...), page.Alias...) {
		x.refPage(n)
	}
	if i := strings.LastIndex(page.OriginalName, "/"); i > 0 && !page.Journal {
		page.Namespace = strings.TrimSpace(page.OriginalName[:i])
		x.refPage(page.Namespace)
	}
	if len(props) > 0 {
		page.Properties = props
	}
	if len(text) > 0 {
		page.PropertiesTextValues = text
	}
}

// addPage records a page, merging it with an earlier record of the same name.
func (x *extraction) addPage(p models.RawPage) {
	if i, ok := x.pages[p.Name]; ok {
		cur := &x.out[i]
		if p.File != "" {
			p.Journal = p.Journal || cur.Journal
			*cur = p
		}
		return
	}
	x.pages[p.Name] = len(x.out)
	x.out = append(x.out, p)
}

// refPage records a page implied by a reference and returns it as a PageRef.
func (x *extraction) refPage(name string) models.PageRef {
	name = strings.TrimSpace(name)
	ref := models.PageRef{Name: strings.ToLower(name), OriginalName: name}
	p := models.RawPage{Name: ref.Name, OriginalName: name, Format: models.FormatMarkdown}
	if t, ok := x.dates.Parse(name); ok {
		ref.Journal = true
		p.Journal, p.JournalDay = true, JournalDay(t)
		p.OriginalName = x.dates.Format(t)
	}
	if _, ok := x.pages[ref.Name]; !ok {
		x.pages[ref.Name] = len(x.out)
		x.out = append(x.out, p)
	}
	return ref
}

// propertyValue converts a property written as key:: value. Values made only
// of page references or tags, and comma lists of tags and aliases, become
// name lists; anything else stays text.
func (x *extraction) propertyValue(key, raw string) (any, string) {
	raw = strings.TrimSpace(raw)
	if key == "tags" || key == "alias" {
		var out []any
		for _, part := range splitList(raw) {
			out = append(out, part)
			x.refPage(part)
		}
		return out, raw
	}
	if names, ok := onlyRefs(raw); ok {
		out := make([]any, 0, len(names))
		for _, n := range names {
			x.refPage(n)
			out = append(out, n)
		}
		return out, raw
	}
	return raw, raw
}

// onlyRefs reports whether s consists of page references and tags separated
// by commas or spaces, returning their names.
func onlyRefs(s string) ([]string, bool) {
	if s == "" {
		return nil, false
	}
	var names []string
	rest := tagRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := tagRe.FindStringSubmatch(m)
		n := sub[2]
		if sub[1] != "" {
			n = sub[1]
		}
		names = append(names, n)
		return " "
	})
	rest = pageRefRe.ReplaceAllStringFunc(rest, func(m string) string {
		names = append(names, strings.TrimSpace(pageRefRe.FindStringSubmatch(m)[1]))
		return " "
	})
	if strings.Trim(rest, " ,\t") != "" || len(names) == 0 {
		return nil, false
	}
	return names, true
}

func splitList(s string) []string {
	if names, ok := onlyRefs(s); ok {
		return names
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if names, ok := onlyRefs(part); ok {
			out = append(out, names...)
			continue
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func namesOf(v any) []string {
	switch x := v.(type) {
	case string:
		return splitList(x)
	case []any:
		var out []string
		for _, item := range x {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

// frontmatterValue normalizes a YAML value into the shapes the exporter
// accepts: strings, booleans, numbers and lists of strings.
func frontmatterValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case map[string]any:
		// kept as a flow literal for structured built-ins
		b, err := yaml.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return strings.TrimSpace(string(b))
	case int:
		return float64(x)
	}
	return v
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. If no valid frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// contentRefs collects the page references, tags, block references and
// macros of a block's text.
func (x *extraction) contentRefs(content string) (refs []models.PageRef, tags []string, blockRefs []uuid.UUID, macros []models.Macro) {
	seen := make(map[string]struct{})
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		refs = append(refs, x.refPage(name))
	}
	for _, m := range pageRefRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range tagRe.FindAllStringSubmatch(content, -1) {
		name := m[2]
		if m[1] != "" {
			name = m[1]
		}
		tags = append(tags, name)
		add(name)
	}
	for _, m := range blockRefRe.FindAllStringSubmatch(content, -1) {
		if id, err := uuid.Parse(m[1]); err == nil {
			blockRefs = append(blockRefs, id)
		}
	}
	for _, m := range macroRe.FindAllStringSubmatch(content, -1) {
		mac := models.Macro{Name: m[1]}
		for _, arg := range strings.Split(m[2], ",") {
			if arg = strings.TrimSpace(arg); arg != "" {
				mac.Arguments = append(mac.Arguments, arg)
			}
		}
		macros = append(macros, mac)
	}
	return refs, tags, blockRefs, macros
}
