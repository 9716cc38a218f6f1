// Package catalog merges per-file marker models into the run's descriptor
// catalog: serializable types with their ordered fields, and translation
// records deduplicated by (message, disambiguation).
package catalog

import (
	"sort"
	"sync"

	"github.com/phobologic/srcindex/internal/diag"
	"github.com/phobologic/srcindex/internal/model"
)

type typeEntry struct {
	marker model.TypeMarker
	fields []model.FieldMarker
	// members guards against the same member attached from two files.
	members map[string]struct{}
}

// Catalog is populated during the build phase and read by the emitters.
// It is safe for concurrent use, but files should be added in corpus order
// so that "first definition wins" is deterministic.
type Catalog struct {
	mu      sync.Mutex
	types   map[string]*typeEntry
	order   []string
	records map[model.RecordKey]*model.TranslationRecord
	decls   map[string]model.StructDecl
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		types:   make(map[string]*typeEntry),
		records: make(map[model.RecordKey]*model.TranslationRecord),
		decls:   make(map[string]model.StructDecl),
	}
}

// Add merges one file's model and returns the cross-file diagnostics it
// produced. A type already owned by an earlier file is reported as a
// DuplicateTypeError and this file's fields for it attach to the owner.
func (c *Catalog) Add(fm *model.FileModel) []diag.Located {
	if fm == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var diags []diag.Located
	for _, d := range fm.Decls {
		key := d.QualifiedName().String()
		if _, ok := c.decls[key]; !ok {
			c.decls[key] = d
		}
	}

	for _, tm := range fm.Types {
		key := tm.Name.String()
		if first, ok := c.types[key]; ok {
			diags = append(diags, &diag.DuplicateTypeError{
				Position: diag.Position{File: tm.Location.File, Line: tm.Location.Line, Offset: tm.Offset},
				Type:     key,
				First: diag.Position{
					File:   first.marker.Location.File,
					Line:   first.marker.Location.Line,
					Offset: first.marker.Offset,
				},
			})
			continue
		}
		c.types[key] = &typeEntry{marker: tm, members: make(map[string]struct{})}
		c.order = append(c.order, key)
	}

	for _, f := range fm.Fields {
		e, ok := c.types[f.Type.String()]
		if !ok {
			// extract only emits fields whose type is marked in the same file
			continue
		}
		if _, dup := e.members[f.Member]; dup {
			diags = append(diags, &diag.DuplicateFieldError{
				Position: diag.Position{File: f.Location.File, Line: f.Location.Line, Offset: f.Offset},
				Type:     f.Type.String(),
				Member:   f.Member,
			})
			continue
		}
		e.members[f.Member] = struct{}{}
		e.fields = append(e.fields, f)
	}

	for _, tc := range fm.Translations {
		key := model.RecordKey{Message: tc.Message, Disambiguation: tc.Disambiguation}
		rec, ok := c.records[key]
		if !ok {
			rec = &model.TranslationRecord{Message: tc.Message, Disambiguation: tc.Disambiguation}
			c.records[key] = rec
		}
		rec.Locations = append(rec.Locations, tc.Location)
	}
	return diags
}

// Types returns the type descriptors in corpus order, each resolved
// against the declaration index: the scope is split into namespaces and
// enclosing types, and every field carries its declared type and access.
// A field whose member is not found in the declaration has an empty Type.
func (c *Catalog) Types() []model.TypeDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.TypeDescriptor, 0, len(c.order))
	for _, key := range c.order {
		e := c.types[key]
		decl, hasDecl := c.decls[key]

		td := model.TypeDescriptor{Origin: e.marker.Location}
		td.Scope, td.Name = splitScope(e.marker.Name, decl, hasDecl)
		for _, f := range e.fields {
			fd := model.FieldDescriptor{
				Owner:  key,
				Name:   f.Member,
				Origin: f.Location,
			}
			if df, ok := decl.Field(f.Member); hasDecl && ok {
				fd.Type = df.Type
				fd.Access = df.Access
			}
			td.Fields = append(td.Fields, fd)
		}
		out = append(out, td)
	}
	return out
}

// splitScope separates the leading namespaces of a qualified name from
// the (possibly nested) type name. Without a declaration every enclosing
// segment is taken to be a namespace.
func splitScope(name model.QualifiedName, decl model.StructDecl, hasDecl bool) ([]string, string) {
	if !hasDecl {
		return append([]string(nil), name.Parent()...), name.Leaf()
	}
	var scope []string
	i := 0
	for ; i < len(decl.Scope) && decl.Scope[i].Kind == model.NamespaceScope; i++ {
		scope = append(scope, decl.Scope[i].Name)
	}
	nested := model.QualifiedName{}
	for _, s := range decl.Scope[i:] {
		nested = append(nested, s.Name)
	}
	nested = append(nested, decl.Name)
	return scope, nested.String()
}

// Records returns the translation records sorted by (message,
// disambiguation), each with its locations sorted by file then line.
func (c *Catalog) Records() []model.TranslationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.TranslationRecord, 0, len(c.records))
	for _, r := range c.records {
		locs := append([]model.SourceLocation(nil), r.Locations...)
		sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
		out = append(out, model.TranslationRecord{
			Message:        r.Message,
			Disambiguation: r.Disambiguation,
			Locations:      locs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}
