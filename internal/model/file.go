package model

// Access is the member access of a declared field.
type Access string

const (
	Public    Access = "public"
	Protected Access = "protected"
	Private   Access = "private"
)

// ScopeKind tells whether a scope segment is a namespace or a type.
type ScopeKind string

const (
	NamespaceScope ScopeKind = "namespace"
	TypeScope      ScopeKind = "type"
)

// ScopeSegment is one named level of nesting.
type ScopeSegment struct {
	Name string    `json:"name"`
	Kind ScopeKind `json:"kind"`
}

// TypeMarker is a SERIALIZABLE(...) occurrence.
type TypeMarker struct {
	Name     QualifiedName
	Location SourceLocation
	Offset   int
}

// FieldMarker is a FIELD(...) occurrence resolved to a type of the same file.
type FieldMarker struct {
	Type     QualifiedName
	Member   string
	Location SourceLocation
	Offset   int
}

// TranslationCall is one translatable-string call site.
type TranslationCall struct {
	Message        string
	Disambiguation string
	Scope          []string
	Location       SourceLocation
}

// DeclField is a data member found in a struct or class body.
type DeclField struct {
	Name   string
	Type   string
	Access Access
	Line   int
}

// StructDecl is a struct or class declaration found in source.
type StructDecl struct {
	Scope  []ScopeSegment
	Name   string
	Fields []DeclField
	File   string
	Line   int
}

// QualifiedName returns the declaration's full path.
func (d *StructDecl) QualifiedName() QualifiedName {
	q := make(QualifiedName, 0, len(d.Scope)+1)
	for _, s := range d.Scope {
		q = append(q, s.Name)
	}
	return append(q, d.Name)
}

// Field looks up a member by name.
func (d *StructDecl) Field(name string) (DeclField, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return DeclField{}, false
}

// FileModel is everything extracted from one source file. Types keep the
// source order of their markers; Fields are already sorted by offset.
type FileModel struct {
	Path         string
	Types        []TypeMarker
	Fields       []FieldMarker
	Translations []TranslationCall
	Decls        []StructDecl
}
