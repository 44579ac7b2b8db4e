package exporter

import (
	"errors"
	"fmt"
)

// IgnoredProperty records a value or change the import did not apply.
// Reason is one of the recoverable apperr sentinels.
type IgnoredProperty struct {
	Reason   error       `json:"-"`
	File     string      `json:"file"`
	Location string      `json:"location"`
	Property string      `json:"property,omitempty"`
	Value    any         `json:"value,omitempty"`
	Change   *TypeChange `json:"change,omitempty"`
	Detail   string      `json:"detail,omitempty"`
}

// ReasonText returns the reason as a string, for reports.
func (p IgnoredProperty) ReasonText() string {
	if p.Reason == nil {
		return ""
	}
	return p.Reason.Error()
}

// Is reports whether the entry was recorded for target.
func (p IgnoredProperty) Is(target error) bool {
	return errors.Is(p.Reason, target)
}

func (p IgnoredProperty) String() string {
	s := fmt.Sprintf("%s: %s %s", p.ReasonText(), p.File, p.Location)
	if p.Property != "" {
		s += " property=" + p.Property
	}
	if p.Change != nil {
		s += " change=" + p.Change.String()
	}
	return s
}

// ImportState is the session context shared by every file of one import.
// It is created once with NewImportState and never reset mid-session.
type ImportState struct {
	Schemas *SchemaRegistry
	ignored []IgnoredProperty
}

// NewImportState returns the state for a new import session.
func NewImportState() *ImportState {
	return &ImportState{Schemas: NewSchemaRegistry()}
}

// Ignore appends an entry to the ignored log.
func (s *ImportState) Ignore(p IgnoredProperty) {
	s.ignored = append(s.ignored, p)
}

// Ignored returns a copy of the ignored log in the order entries were added.
func (s *ImportState) Ignored() []IgnoredProperty {
	out := make([]IgnoredProperty, len(s.ignored))
	copy(out, s.ignored)
	return out
}
