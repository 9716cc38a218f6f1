// Package diag defines the diagnostics collected during a run.
//
// Every diagnostic is file- or call-scoped: it is recorded in a Report and
// processing continues. Only I/O failures on the whole corpus are fatal,
// and those are plain errors returned by the caller, not diagnostics.
package diag

import (
	"fmt"
	"strings"
)

// Kind names a diagnostic category.
type Kind string

const (
	KindSyntax           Kind = "syntax"
	KindDuplicateType    Kind = "duplicate-type"
	KindOrphanField      Kind = "orphan-field"
	KindMalformedCall    Kind = "malformed-translation-call"
	KindUnsupportedField Kind = "unsupported-field-type"
	KindMalformedMarker  Kind = "malformed-marker"
	KindDuplicateField   Kind = "duplicate-field"
	KindForwardReference Kind = "forward-reference"
)

// Position locates a diagnostic. Line is 1-based, Offset is a byte offset;
// either may be zero when unknown.
type Position struct {
	File   string
	Line   int
	Offset int
}

func (p Position) String() string {
	switch {
	case p.Line > 0:
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	case p.Offset > 0:
		return fmt.Sprintf("%s@%d", p.File, p.Offset)
	default:
		return p.File
	}
}

// Located is implemented by every diagnostic type in this package.
type Located interface {
	error
	Pos() Position
	Kind() Kind
}

// LocatedSyntaxError aborts processing of a single file.
type LocatedSyntaxError struct {
	Position
	Msg string
}

func (e *LocatedSyntaxError) Error() string {
	return fmt.Sprintf("%s: syntax error at offset %d: %s", e.Position, e.Offset, e.Msg)
}
func (e *LocatedSyntaxError) Pos() Position { return e.Position }
func (e *LocatedSyntaxError) Kind() Kind    { return KindSyntax }

// DuplicateTypeError reports a second SERIALIZABLE for a qualified name.
// The first definition wins.
type DuplicateTypeError struct {
	Position
	Type  string
	First Position
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("%s: type %s already declared serializable at %s", e.Position, e.Type, e.First)
}
func (e *DuplicateTypeError) Pos() Position { return e.Position }
func (e *DuplicateTypeError) Kind() Kind    { return KindDuplicateType }

// OrphanFieldError reports a FIELD whose type never appeared in its file.
type OrphanFieldError struct {
	Position
	Type   string
	Member string
}

func (e *OrphanFieldError) Error() string {
	return fmt.Sprintf("%s: field %s::%s has no serializable type %s in this file", e.Position, e.Type, e.Member, e.Type)
}
func (e *OrphanFieldError) Pos() Position { return e.Position }
func (e *OrphanFieldError) Kind() Kind    { return KindOrphanField }

// MalformedTranslationCallError reports a translatable-string call that
// does not take one or two string literals.
type MalformedTranslationCallError struct {
	Position
	Marker string
	Reason string
}

func (e *MalformedTranslationCallError) Error() string {
	return fmt.Sprintf("%s: malformed %s call: %s", e.Position, e.Marker, e.Reason)
}
func (e *MalformedTranslationCallError) Pos() Position { return e.Position }
func (e *MalformedTranslationCallError) Kind() Kind    { return KindMalformedCall }

// UnsupportedFieldTypeError reports a field the generator cannot encode.
// The field is skipped in output with a comment marker.
type UnsupportedFieldTypeError struct {
	Position
	Type      string
	Member    string
	FieldType string
	Reason    string
}

func (e *UnsupportedFieldTypeError) Error() string {
	ft := e.FieldType
	if ft == "" {
		ft = "<unknown>"
	}
	return fmt.Sprintf("%s: field %s::%s of type %s skipped: %s", e.Position, e.Type, e.Member, ft, e.Reason)
}
func (e *UnsupportedFieldTypeError) Pos() Position { return e.Position }
func (e *UnsupportedFieldTypeError) Kind() Kind    { return KindUnsupportedField }

// MalformedMarkerError reports a SERIALIZABLE or FIELD marker whose
// argument is not a usable qualified name.
type MalformedMarkerError struct {
	Position
	Marker string
	Reason string
}

func (e *MalformedMarkerError) Error() string {
	return fmt.Sprintf("%s: malformed %s marker: %s", e.Position, e.Marker, e.Reason)
}
func (e *MalformedMarkerError) Pos() Position { return e.Position }
func (e *MalformedMarkerError) Kind() Kind    { return KindMalformedMarker }

// DuplicateFieldError reports a member annotated twice for the same type.
type DuplicateFieldError struct {
	Position
	Type   string
	Member string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s: field %s::%s already annotated", e.Position, e.Type, e.Member)
}
func (e *DuplicateFieldError) Pos() Position { return e.Position }
func (e *DuplicateFieldError) Kind() Kind    { return KindDuplicateField }

// ForwardReferenceError notes a FIELD seen before its SERIALIZABLE. It is
// informational: the field is deferred and resolved at end of file.
type ForwardReferenceError struct {
	Position
	Type   string
	Member string
}

func (e *ForwardReferenceError) Error() string {
	return fmt.Sprintf("%s: field %s::%s precedes SERIALIZABLE(%s); deferred", e.Position, e.Type, e.Member, e.Type)
}
func (e *ForwardReferenceError) Pos() Position { return e.Position }
func (e *ForwardReferenceError) Kind() Kind    { return KindForwardReference }

// IsWarning reports whether a diagnostic counts toward the run's warnings.
func IsWarning(d Located) bool {
	return d.Kind() != KindForwardReference
}

// Summary formats a one-line description, without the position prefix
// duplicated by Error.
func Summary(d Located) string {
	return strings.TrimPrefix(d.Error(), d.Pos().String()+": ")
}
