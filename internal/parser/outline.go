package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/models"
)

// DefaultBlockPattern starts an outline block.
const DefaultBlockPattern = "-"

type property struct {
	key   string
	value string
}

// outlineBlock is one bullet of the outline with its continuation lines.
type outlineBlock struct {
	level    int
	content  []string
	props    []property
	preBlock bool
}

func (b *outlineBlock) addLine(line string) {
	if m := propertyRe.FindStringSubmatch(line); m != nil {
		b.props = append(b.props, property{key: strings.ToLower(m[1]), value: m[2]})
		return
	}
	b.content = append(b.content, line)
}

// propertiesOnly reports whether the block holds nothing but properties.
func (b *outlineBlock) propertiesOnly() bool {
	if len(b.props) == 0 {
		return false
	}
	for _, l := range b.content {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// parseOutline splits body into blocks. Text before the first bullet forms
// a top-level block of its own.
func parseOutline(body, pattern string) []*outlineBlock {
	if pattern == "" {
		pattern = DefaultBlockPattern
	}
	var blocks []*outlineBlock
	var cur *outlineBlock
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		level, text := splitIndent(line)
		if text == pattern || strings.HasPrefix(text, pattern+" ") {
			cur = &outlineBlock{level: level}
			blocks = append(blocks, cur)
			cur.addLine(strings.TrimSpace(strings.TrimPrefix(text, pattern)))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if cur == nil {
			cur = &outlineBlock{}
			blocks = append(blocks, cur)
		}
		cur.addLine(text)
	}
	return blocks
}

// splitIndent returns the nesting level of line and the line without its
// indentation. A tab or two spaces make one level.
func splitIndent(line string) (int, string) {
	tabs, spaces := 0, 0
	i := 0
	for ; i < len(line); i++ {
		switch line[i] {
		case '\t':
			tabs++
		case ' ':
			spaces++
		default:
			return tabs + spaces/2, line[i:]
		}
	}
	return tabs + spaces/2, ""
}

// blocks converts the outline into raw blocks. Parent and left pointers
// follow indentation: the first child's left is its parent.
func (x *extraction) blocks(page string, outline []*outlineBlock) []models.RawBlock {
	type frame struct {
		level int
		id    uuid.UUID
	}
	var stack []frame
	lastChild := make(map[uuid.UUID]uuid.UUID)
	out := make([]models.RawBlock, 0, len(outline))

	for i, ob := range outline {
		id := uuid.NewSHA1(blockNamespace, []byte(fmt.Sprintf("%s#%d", x.path, i)))
		var props map[string]any
		var text map[string]string
		var valueRefs []string
		var propTags []string
		for _, kv := range ob.props {
			if kv.key == "id" {
				if u, err := uuid.Parse(strings.TrimSpace(kv.value)); err == nil {
					id = u
				}
			}
			v, t := x.propertyValue(kv.key, kv.value)
			if props == nil {
				props, text = make(map[string]any), make(map[string]string)
			}
			props[kv.key], text[kv.key] = v, t
			if list, ok := v.([]any); ok {
				for _, item := range list {
					name := item.(string)
					valueRefs = append(valueRefs, name)
					if kv.key == "tags" {
						propTags = append(propTags, name)
					}
				}
			}
		}

		for len(stack) > 0 && stack[len(stack)-1].level >= ob.level {
			stack = stack[:len(stack)-1]
		}
		parent := models.PagePointer(page)
		parentKey := uuid.Nil
		if len(stack) > 0 {
			parentKey = stack[len(stack)-1].id
			parent = models.BlockPointer(parentKey)
		}
		left := parent
		if prev, ok := lastChild[parentKey]; ok {
			left = models.BlockPointer(prev)
		}
		lastChild[parentKey] = id
		stack = append(stack, frame{level: ob.level, id: id})

		content := strings.TrimSpace(strings.Join(ob.content, "\n"))
		refs, tags, blockRefs, macros := x.contentRefs(content)
		refs = x.mergeRefs(refs, valueRefs)
		tags = append(tags, propTags...)

		out = append(out, models.RawBlock{
			UUID:                 id,
			Content:              content,
			Properties:           props,
			PropertiesTextValues: text,
			Refs:                 refs,
			BlockRefs:            blockRefs,
			Tags:                 dedupeNames(tags),
			Macros:               macros,
			Page:                 page,
			Parent:               parent,
			Left:                 left,
			PreBlock:             ob.preBlock,
			Format:               models.FormatMarkdown,
		})
	}
	return out
}

func (x *extraction) mergeRefs(refs []models.PageRef, names []string) []models.PageRef {
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		seen[r.Name] = struct{}{}
	}
	for _, n := range names {
		ref := x.refPage(n)
		if _, ok := seen[ref.Name]; ok {
			continue
		}
		seen[ref.Name] = struct{}{}
		refs = append(refs, ref)
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}

func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}
