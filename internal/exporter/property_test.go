package exporter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/models"
)

func importExtraction(t *testing.T, db *memDB, state *ImportState, path string, ext *models.Extraction) *Result {
	t.Helper()
	res, err := AddFileToDBGraph(context.Background(), db, path, nil, testOptions(stubExtractor{path: ext}), state)
	require.NoError(t, err)
	return res
}

func blockProps(t *testing.T, res *Result, n int) map[string]any {
	t.Helper()
	e := findEntity(res.Tx, blockID(n))
	require.NotNil(t, e, "block %d in transaction", n)
	props, _ := e[AttrProperties].(map[string]any)
	return props
}

func propertyFile(page string, n int, props map[string]any, pages ...models.RawPage) *models.Extraction {
	blk := textBlock(n, page, "content")
	blk.Properties = props
	for _, p := range pages {
		blk.Refs = append(blk.Refs, models.PageRef{Name: p.Name, Journal: p.Journal})
	}
	return &models.Extraction{
		Pages:  append([]models.RawPage{{Name: page, File: "pages/" + page + ".md"}}, pages...),
		Blocks: []models.RawBlock{blk},
	}
}

func TestMigrationDefaultKeepsText(t *testing.T) {
	db, state := newMemDB(), NewImportState()
	importExtraction(t, db, state, "pages/a.md", propertyFile("a", 1, map[string]any{"status": "open"}))
	_, statusID := db.mustPage("status")

	res := importExtraction(t, db, state, "pages/b.md", propertyFile("b", 2, map[string]any{"status": "3"}))

	assert.Equal(t, "3", blockProps(t, res, 2)[statusID.String()])
	s, _ := state.Schemas.Get(UserKey("status"))
	assert.Equal(t, TypeDefault, s.Type)
	assert.Empty(t, state.Ignored())
}

func TestMigrationPageReferenceToDate(t *testing.T) {
	db, state := newMemDB(), NewImportState()
	importExtraction(t, db, state, "pages/a.md",
		propertyFile("a", 1, map[string]any{"related": []any{"project"}}, models.RawPage{Name: "project"}))
	_, relatedID := db.mustPage("related")

	journal := models.RawPage{Name: "jun 29th, 2023", OriginalName: "Jun 29th, 2023", Journal: true, JournalDay: 20230629}
	res := importExtraction(t, db, state, "pages/b.md",
		propertyFile("b", 2, map[string]any{"related": []any{"Jun 29th, 2023"}}, journal))

	_, journalID := db.mustPage("jun 29th, 2023")
	assert.Equal(t, []Ref{RefTo(journalID)}, blockProps(t, res, 2)[relatedID.String()])
	s, _ := state.Schemas.Get(UserKey("related"))
	assert.Equal(t, PropertySchema{Type: TypePageReference, Cardinality: CardinalityMany}, s)
}

func TestMigrationUnlistedChangeDropsValue(t *testing.T) {
	db, state := newMemDB(), NewImportState()
	importExtraction(t, db, state, "pages/a.md", propertyFile("a", 1, map[string]any{"count": "5"}))
	_, countID := db.mustPage("count")
	assert.Equal(t, 5.0, blockProps(t, &Result{Tx: db.txs[0]}, 1)[countID.String()])

	res := importExtraction(t, db, state, "pages/b.md", propertyFile("b", 2, map[string]any{"count": "many"}))

	assert.NotContains(t, blockProps(t, res, 2), countID.String())
	ignored := state.Ignored()
	require.Len(t, ignored, 1)
	assert.True(t, ignored[0].Is(apperr.ErrDiscardedPropertyValue))
	assert.Equal(t, "pages/b.md", ignored[0].File)
	assert.Equal(t, "count", ignored[0].Property)
	assert.Equal(t, &TypeChange{From: TypeNumber, To: TypeDefault}, ignored[0].Change)
}

func TestLookupMigration(t *testing.T) {
	_, ok := lookupMigration(TypeChange{From: TypeDefault, To: TypeURL})
	assert.True(t, ok)
	_, ok = lookupMigration(TypeChange{From: TypePageReference, To: TypeDate})
	assert.True(t, ok)
	_, ok = lookupMigration(TypeChange{From: TypeDate, To: TypePageReference})
	assert.False(t, ok)
	_, ok = lookupMigration(TypeChange{From: TypeNumber, To: TypePageReference})
	assert.False(t, ok)
}

func TestBuiltinProperties(t *testing.T) {
	db, state := newMemDB(), NewImportState()
	ext := propertyFile("a", 1, map[string]any{
		"background-color": "Red",
		"collapsed":        "true",
		"hl-page":          "x",
		"heading":          "2",
		"filters":          "{todo: true}",
		"query-properties": "[unclosed",
		"icon":             "rocket",
		"id":               blockID(1).String(),
	})

	res := importExtraction(t, db, state, "pages/a.md", ext)
	props := blockProps(t, res, 1)

	assert.Equal(t, RefTo(ClosedValueID("background-color", "red")), props["logseq.property/background-color"])
	assert.Equal(t, true, props["logseq.property/collapsed"])
	assert.Equal(t, 2.0, props["logseq.property/heading"])
	assert.Equal(t, map[string]any{"todo": true}, props["logseq.property/filters"])
	assert.Equal(t, map[string]any{}, props["logseq.property/query-properties"])
	assert.Equal(t, "rocket", props["logseq.property/icon"])
	assert.NotContains(t, props, "logseq.property/hl-page")
	assert.NotContains(t, props, "logseq.property/id")
	assert.NotContains(t, props, "id")

	var malformed []string
	for _, p := range state.Ignored() {
		if p.Is(apperr.ErrMalformedBuiltinValue) {
			malformed = append(malformed, p.Property)
		}
	}
	assert.ElementsMatch(t, []string{"hl-page", "query-properties"}, malformed)
	assert.Equal(t, 0, state.Schemas.Len(), "built-ins are never inferred")
}

func TestBuiltinUnknownClosedValueDropped(t *testing.T) {
	db, state := newMemDB(), NewImportState()
	res := importExtraction(t, db, state, "pages/a.md",
		propertyFile("a", 1, map[string]any{"background-color": "mauve"}))

	assert.NotContains(t, blockProps(t, res, 1), "logseq.property/background-color")
	require.Len(t, state.Ignored(), 1)
	assert.True(t, state.Ignored()[0].Is(apperr.ErrMalformedBuiltinValue))
}

func TestUnsupportedValueShapeAbortsFile(t *testing.T) {
	db, state := newMemDB(), NewImportState()
	ext := propertyFile("a", 1, map[string]any{"nested": map[string]any{"k": "v"}})

	_, err := AddFileToDBGraph(context.Background(), db, "pages/a.md", nil, testOptions(stubExtractor{"pages/a.md": ext}), state)
	require.ErrorIs(t, err, apperr.ErrUnsupportedValueShape)
	assert.Empty(t, db.txs)
}
