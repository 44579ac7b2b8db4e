package exporter

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/K9kd22r8/logseq/internal/apperr"
)

func seedPage(t *testing.T, db *memDB, name string, extra Entity) uuid.UUID {
	t.Helper()
	id := uuid.Must(uuid.NewV7())
	e := Entity{
		AttrUUID:         id,
		AttrName:         NormalizeName(name),
		AttrOriginalName: name,
		AttrJournal:      false,
		AttrFormat:       "markdown",
		AttrCreatedAt:    int64(1),
		AttrUpdatedAt:    int64(1),
	}
	for k, v := range extra {
		e[k] = v
	}
	require.NoError(t, db.Transact(Transaction{e}))
	return id
}

func TestResolverPageIDModes(t *testing.T) {
	db := newMemDB()
	stored := seedPage(t, db, "Foo", nil)
	fresh := uuid.Must(uuid.NewV7())

	normal := newResolver(db, modeNormal, nil, 0)
	normal.assign("foo", fresh)
	got, err := normal.PageID("FOO")
	require.NoError(t, err)
	assert.Equal(t, fresh, got, "file id map wins in normal mode")

	wb := newResolver(db, modeWhiteboard, nil, 0)
	wb.assign("foo", fresh)
	got, err = wb.PageID("foo")
	require.NoError(t, err)
	assert.Equal(t, stored, got, "database wins in whiteboard mode")

	_, err = normal.PageID("missing")
	require.ErrorIs(t, err, apperr.ErrUnresolvedReference)
}

func TestResolverRewriteContent(t *testing.T) {
	db := newMemDB()
	fooID := seedPage(t, db, "Foo", nil)
	r := newResolver(db, modeNormal, []string{"Book"}, 0)
	multi := uuid.Must(uuid.NewV7())
	bar := uuid.Must(uuid.NewV7())
	r.assign("multi word", multi)
	r.assign("bar", bar)

	got, err := r.RewriteContent("see [[Foo]] and #bar #[[Multi Word]]")
	require.NoError(t, err)
	assert.Equal(t,
		"see [[~^"+fooID.String()+"]] and #[["+RefPrefix+bar.String()+"]] #[[~^"+multi.String()+"]]",
		got)
	assert.ElementsMatch(t, []uuid.UUID{fooID, bar, multi}, ContentRefIDs(got))

	got, err = r.RewriteContent("reading #book now")
	require.NoError(t, err)
	assert.Equal(t, "reading now", got)

	got, err = r.RewriteContent("already [[~^" + fooID.String() + "]]")
	require.NoError(t, err)
	assert.Equal(t, "already [[~^"+fooID.String()+"]]", got)

	_, err = r.RewriteContent("[[nowhere]]")
	require.ErrorIs(t, err, apperr.ErrUnresolvedReference)
}

func TestResolverStripClassTagKeepsLayout(t *testing.T) {
	r := newResolver(newMemDB(), modeNormal, []string{"Book"}, 0)

	got, err := r.RewriteContent("#Book code:\n```\nif x {\n    y()\n}\n```")
	require.NoError(t, err)
	assert.Equal(t, "code:\n```\nif x {\n    y()\n}\n```", got)

	got, err = r.RewriteContent("a  b\t\tc #Book")
	require.NoError(t, err)
	assert.Equal(t, "a  b\t\tc", got, "spacing away from the tag is kept")

	got, err = r.RewriteContent("first line\n#Book second")
	require.NoError(t, err)
	assert.Equal(t, "first line\n second", got, "line breaks are kept")
}

func TestResolverPromoteTag(t *testing.T) {
	db := newMemDB()
	classID := seedPage(t, db, "Person", Entity{AttrType: EntityTypeClass})
	plainID := seedPage(t, db, "Place", nil)
	r := newResolver(db, modeNormal, []string{"person", "place", "book"}, 5)

	id, e, err := r.PromoteTag("Person")
	require.NoError(t, err)
	assert.Equal(t, classID, id)
	assert.Nil(t, e, "existing class is reused as is")

	id, e, err = r.PromoteTag("place")
	require.NoError(t, err)
	assert.Equal(t, plainID, id)
	assert.Equal(t, Entity{AttrID: RefTo(plainID), AttrType: EntityTypeClass}, e)

	id, e, err = r.PromoteTag("Book")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, EntityTypeClass, e[AttrType])
	assert.Equal(t, "book", e[AttrName])
	assert.Equal(t, false, e[AttrJournal])
	assert.Equal(t, int64(5), e[AttrCreatedAt])
	assert.Equal(t, uuid.Version(7), id.Version(), "fresh class ids are v7")

	again, e, err := r.PromoteTag("BOOK")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Nil(t, e, "a class is written once per file")
}
