package source

import (
	"strings"

	"github.com/starlift/starlift/pkg/enums"
)

// Record is one raw row handed over by an ingestion adapter: an entity type,
// the natural key from the source system, and a flat attribute map. Records
// are immutable once extracted for a run.
type Record struct {
	Entity     enums.EntityType  `json:"entity"`
	NaturalKey string            `json:"natural_key"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute with surrounding whitespace removed.
func (r Record) Attr(name string) string {
	return strings.TrimSpace(r.Attributes[name])
}

// HasAttr reports whether the attribute is present and non-blank.
func (r Record) HasAttr(name string) bool {
	return r.Attr(name) != ""
}

// Batch groups the records of one extraction by entity type.
type Batch struct {
	ID      string                        `json:"id"`
	Records map[enums.EntityType][]Record `json:"records"`
}

// NewBatch builds an empty batch with the given identifier.
func NewBatch(id string) *Batch {
	return &Batch{
		ID:      id,
		Records: make(map[enums.EntityType][]Record),
	}
}

// Add appends a record under its entity type.
func (b *Batch) Add(record Record) {
	if b.Records == nil {
		b.Records = make(map[enums.EntityType][]Record)
	}
	b.Records[record.Entity] = append(b.Records[record.Entity], record)
}

// Extracted returns the number of records extracted for the entity type.
func (b *Batch) Extracted(entity enums.EntityType) int {
	if b == nil {
		return 0
	}
	return len(b.Records[entity])
}
