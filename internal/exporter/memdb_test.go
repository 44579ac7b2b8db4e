package exporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/models"
)

// memDB is an in-memory Conn. Entities are stored as they would be after a
// JSON round trip through the real store.
type memDB struct {
	entities map[uuid.UUID]Entity
	txs      []Transaction
	failNext error
}

func newMemDB() *memDB {
	db := &memDB{entities: make(map[uuid.UUID]Entity)}
	var seed Transaction
	for _, cv := range BuiltInClosedValues() {
		seed = append(seed, ClosedValueEntity(cv))
	}
	if err := db.Transact(seed); err != nil {
		panic(err)
	}
	db.txs = nil
	return db
}

func roundTrip(e Entity) Entity {
	b, err := json.Marshal(e)
	if err != nil {
		panic(err)
	}
	out, err := DecodeEntity(b)
	if err != nil {
		panic(err)
	}
	return out
}

func (m *memDB) PageByName(name string) (Entity, bool, error) {
	for _, e := range m.entities {
		if n, _ := e[AttrName].(string); n == name {
			return roundTrip(e), true, nil
		}
	}
	return nil, false, nil
}

func (m *memDB) EntityByUUID(id uuid.UUID) (Entity, bool, error) {
	e, ok := m.entities[id]
	if !ok {
		return nil, false, nil
	}
	return roundTrip(e), true, nil
}

func (m *memDB) Transact(tx Transaction) error {
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	staged := make(map[uuid.UUID]Entity, len(m.entities))
	for id, e := range m.entities {
		staged[id] = e
	}
	for _, frag := range tx {
		id, ok := frag.UUID()
		if !ok {
			return fmt.Errorf("%w: fragment without id", apperr.ErrConstraintViolation)
		}
		_, addressed := frag[AttrID]
		cur, exists := staged[id]
		if addressed && !exists {
			return fmt.Errorf("%w: db/id %s does not exist", apperr.ErrConstraintViolation, id)
		}
		merged := Entity{}
		for k, v := range cur {
			merged[k] = v
		}
		for k, v := range roundTrip(frag) {
			if k == AttrID {
				continue
			}
			merged[k] = v
		}
		merged[AttrUUID] = id
		staged[id] = merged
	}
	names := make(map[string]uuid.UUID)
	for id, e := range staged {
		if n, _ := e[AttrName].(string); n != "" {
			if other, dup := names[n]; dup && other != id {
				return fmt.Errorf("%w: duplicate name %q", apperr.ErrConstraintViolation, n)
			}
			names[n] = id
		}
		for _, r := range e.Refs() {
			if _, ok := staged[r.UUID]; !ok {
				return fmt.Errorf("%w: dangling ref %s", apperr.ErrConstraintViolation, r.UUID)
			}
		}
	}
	m.entities = staged
	m.txs = append(m.txs, tx)
	return nil
}

// snapshot renders the store without the timestamps an import may refresh.
func (m *memDB) snapshot() []string {
	var out []string
	for _, e := range m.entities {
		c := Entity{}
		for k, v := range e {
			if k == AttrCreatedAt || k == AttrUpdatedAt {
				continue
			}
			c[k] = v
		}
		out = append(out, canonicalJSON(c))
	}
	sort.Strings(out)
	return out
}

func (m *memDB) mustPage(name string) (Entity, uuid.UUID) {
	e, ok, _ := m.PageByName(name)
	if !ok {
		panic("no page " + name)
	}
	id, _ := e.UUID()
	return e, id
}

// stubExtractor returns canned extractions keyed by path.
type stubExtractor map[string]*models.Extraction

func (s stubExtractor) Extract(path string, _ []byte, _ ExtractOptions) (*models.Extraction, error) {
	ext, ok := s[path]
	if !ok {
		return nil, fmt.Errorf("no extraction for %s", path)
	}
	return ext, nil
}

func (s stubExtractor) ExtractWhiteboard(path string, content []byte, opts ExtractOptions) (*models.Extraction, error) {
	return s.Extract(path, content, opts)
}

var testNow = time.UnixMilli(1_700_000_000_000)

func testOptions(ext stubExtractor) Options {
	return Options{
		Extractor: ext,
		Now:       func() time.Time { return testNow },
	}
}

func findByName(tx Transaction, name string) Entity {
	for _, e := range tx {
		if n, _ := e[AttrName].(string); n == name {
			return e
		}
	}
	return nil
}

func blockID(n int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("block-%d", n)))
}

func textBlock(n int, page, content string) models.RawBlock {
	return models.RawBlock{
		UUID:    blockID(n),
		Content: content,
		Page:    page,
		Parent:  models.PagePointer(page),
		Left:    models.PagePointer(page),
	}
}
