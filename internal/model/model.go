// Package model defines core data structures for srcindex.
package model

import "strings"

// ScopeSep separates the segments of a qualified name.
const ScopeSep = "::"

// SourceLocation identifies where a marker or call was found. Line and
// Column are 1-based; 0 means unknown. Two calls on one line differ by
// Column.
type SourceLocation struct {
	File   string `json:"file" yaml:"file" toml:"file"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty" toml:"line,omitempty"`
	Column int    `json:"column,omitempty" yaml:"column,omitempty" toml:"column,omitempty"`
}

// Less orders locations by file, line, then column.
func (l SourceLocation) Less(o SourceLocation) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

// QualifiedName is a scope path plus a leaf identifier, e.g. ns1::ns2::A.
type QualifiedName []string

// ParseQualifiedName splits "a::b::C" into segments. A leading "::"
// (global qualifier) and surrounding whitespace are dropped.
func ParseQualifiedName(s string) QualifiedName {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ScopeSep)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ScopeSep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return QualifiedName(parts)
}

func (q QualifiedName) String() string {
	return strings.Join(q, ScopeSep)
}

// Leaf returns the last segment.
func (q QualifiedName) Leaf() string {
	if len(q) == 0 {
		return ""
	}
	return q[len(q)-1]
}

// Parent returns all segments but the last.
func (q QualifiedName) Parent() QualifiedName {
	if len(q) == 0 {
		return nil
	}
	return q[:len(q)-1]
}

// FieldDescriptor describes one serialized member of a type.
type FieldDescriptor struct {
	Owner  string         `json:"owner"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Access Access         `json:"access,omitempty"`
	Origin SourceLocation `json:"origin"`
}

// TypeDescriptor describes a type annotated as serializable. Scope holds
// only namespace segments; Name may itself be nested (Outer::Inner) when
// the type is declared inside another type.
type TypeDescriptor struct {
	Scope  []string          `json:"scope"`
	Name   string            `json:"name"`
	Fields []FieldDescriptor `json:"fields"`
	Origin SourceLocation    `json:"origin"`
}

// QualifiedName returns the full scope + name path.
func (t *TypeDescriptor) QualifiedName() string {
	if len(t.Scope) == 0 {
		return t.Name
	}
	return strings.Join(t.Scope, ScopeSep) + ScopeSep + t.Name
}

// RecordKey identifies a translation record. An empty Disambiguation is a
// distinct value, not an absent one.
type RecordKey struct {
	Message        string
	Disambiguation string
}

// Less orders keys lexically by message, then disambiguation.
func (k RecordKey) Less(o RecordKey) bool {
	if k.Message != o.Message {
		return k.Message < o.Message
	}
	return k.Disambiguation < o.Disambiguation
}

// TranslationRecord groups every call site producing the same key.
type TranslationRecord struct {
	Message        string           `json:"message"`
	Disambiguation string           `json:"disambiguation"`
	Locations      []SourceLocation `json:"locations"`
}

// Key returns the record's identity.
func (r *TranslationRecord) Key() RecordKey {
	return RecordKey{Message: r.Message, Disambiguation: r.Disambiguation}
}
