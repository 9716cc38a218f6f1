// Package codegen generates nlohmann::json serialization units from the
// type descriptors of a run: one C++ source per scanned file, holding a
// from_json/to_json pair for every serializable type marked in that file.
package codegen

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phobologic/srcindex/internal/diag"
	"github.com/phobologic/srcindex/internal/graph"
	"github.com/phobologic/srcindex/internal/model"
)

// Options control unit planning.
type Options struct {
	// Prefix and Suffix wrap the scanned file's stem to name the unit,
	// e.g. serialize_ + example + .cpp.
	Prefix string
	Suffix string
	// IncludeRoots relativize the #include of the scanned file.
	IncludeRoots []string
	// PublicOnly reports protected and private members as unsupported.
	PublicOnly bool
}

// DefaultOptions returns the options used by the CLI when none are given.
func DefaultOptions() Options {
	return Options{Prefix: "serialize_", Suffix: ".cpp", PublicOnly: true}
}

// Unit is one generated source file.
type Unit struct {
	Source       string             `json:"source"`
	Include      string             `json:"include"`
	Output       string             `json:"output"`
	Types        []*Type            `json:"types"`
	Forward      []Forward          `json:"forward,omitempty"`
	Dependencies []graph.Dependency `json:"dependencies,omitempty"`

	// ModelOutput is where --json writes the unit's model.
	ModelOutput string `json:"-"`
}

// Type is a serializable type planned for generation.
type Type struct {
	Scope     []string             `json:"scope"`
	Name      string               `json:"name"`
	Qualified string               `json:"qualified"`
	Origin    model.SourceLocation `json:"origin"`
	Fields    []Field              `json:"fields"`
}

// Field is a serialized member. Exactly one of Encoding and Skipped is set.
type Field struct {
	Name     string               `json:"name"`
	Declared string               `json:"declared_type"`
	Access   model.Access         `json:"access,omitempty"`
	Encoding *FieldType           `json:"encoding,omitempty"`
	Skipped  string               `json:"skipped,omitempty"`
	Origin   model.SourceLocation `json:"origin"`
}

// Forward names a type owned by another unit, or defined later in the
// same one, whose functions must be declared before use.
type Forward struct {
	Scope []string `json:"scope"`
	Name  string   `json:"name"`
}

func (f Forward) qualified() string {
	return strings.Join(append(append([]string{}, f.Scope...), f.Name), model.ScopeSep)
}

// Plan groups the descriptors into units by originating file and
// classifies every field. Fields that cannot be encoded are kept with a
// reason and reported as UnsupportedFieldTypeError. Units are sorted by
// source path.
func Plan(types []model.TypeDescriptor, opts Options) ([]*Unit, []diag.Located) {
	known := make(map[string]struct{}, len(types))
	byName := make(map[string]*model.TypeDescriptor, len(types))
	for i := range types {
		q := types[i].QualifiedName()
		known[q] = struct{}{}
		byName[q] = &types[i]
	}

	var diags []diag.Located
	bySource := make(map[string]*Unit)
	var units []*Unit

	for i := range types {
		td := &types[i]
		u, ok := bySource[td.Origin.File]
		if !ok {
			u = &Unit{Source: td.Origin.File}
			bySource[td.Origin.File] = u
			units = append(units, u)
		}

		q := td.QualifiedName()
		t := &Type{
			Scope:     td.Scope,
			Name:      td.Name,
			Qualified: q,
			Origin:    td.Origin,
		}
		owner := model.ParseQualifiedName(q)
		for _, fd := range td.Fields {
			f := Field{Name: fd.Name, Declared: fd.Type, Access: fd.Access, Origin: fd.Origin}
			ft, err := classifyField(fd, owner, known, opts)
			if err != nil {
				f.Skipped = err.Error()
				diags = append(diags, &diag.UnsupportedFieldTypeError{
					Position:  diag.Position{File: fd.Origin.File, Line: fd.Origin.Line},
					Type:      q,
					Member:    fd.Name,
					FieldType: fd.Type,
					Reason:    f.Skipped,
				})
			} else {
				f.Encoding = &ft
			}
			t.Fields = append(t.Fields, f)
		}
		u.Types = append(u.Types, t)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Source < units[j].Source })

	used := make(map[string]bool)
	for _, u := range units {
		u.Include = includePath(u.Source, opts.IncludeRoots)
		base := outputBase(u, opts, used)
		u.Output = base + opts.Suffix
		u.ModelOutput = base + ".json"
		u.Forward = forwards(u, byName)
	}

	deps := graph.BuildGraph(graphUnits(units))
	for _, u := range units {
		u.Dependencies = graph.From(deps, u.Source)
	}
	return units, diags
}

func classifyField(fd model.FieldDescriptor, owner model.QualifiedName, known map[string]struct{}, opts Options) (FieldType, error) {
	if opts.PublicOnly && fd.Access != "" && fd.Access != model.Public {
		return FieldType{}, fmt.Errorf("%s members are not accessible to the generated functions", fd.Access)
	}
	return Classify(fd.Type, owner, known)
}

// Cycles returns the groups of units that reference each other's types.
func Cycles(units []*Unit) [][]string {
	var deps []graph.Dependency
	for _, u := range units {
		deps = append(deps, u.Dependencies...)
	}
	return graph.Cycles(deps)
}

func graphUnits(units []*Unit) []graph.Unit {
	out := make([]graph.Unit, 0, len(units))
	for _, u := range units {
		gu := graph.Unit{Path: u.Source}
		for _, t := range u.Types {
			gu.Defines = append(gu.Defines, t.Qualified)
			for _, f := range t.Fields {
				if f.Encoding != nil {
					gu.Uses = append(gu.Uses, f.Encoding.Refs()...)
				}
			}
		}
		out = append(out, gu)
	}
	return out
}

// forwards lists the referenced types not defined before their first use
// in the unit, sorted by qualified name. A type's own functions are
// declared by its definition, so self references need nothing.
func forwards(u *Unit, byName map[string]*model.TypeDescriptor) []Forward {
	defined := make(map[string]bool)
	need := make(map[string]bool)
	for _, t := range u.Types {
		defined[t.Qualified] = true
		for _, f := range t.Fields {
			if f.Encoding == nil {
				continue
			}
			for _, ref := range f.Encoding.Refs() {
				if !defined[ref] {
					need[ref] = true
				}
			}
		}
	}

	out := make([]Forward, 0, len(need))
	for ref := range need {
		td, ok := byName[ref]
		if !ok {
			continue
		}
		out = append(out, Forward{Scope: td.Scope, Name: td.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].qualified() < out[j].qualified() })
	if len(out) == 0 {
		return nil
	}
	return out
}

// includePath returns the scanned file's path relative to the deepest
// include root containing it, else the path as scanned. Separators are
// always forward slashes.
func includePath(source string, roots []string) string {
	best, bestLen := filepath.ToSlash(source), -1
	absSource, err := filepath.Abs(source)
	if err != nil {
		return best
	}
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, absSource)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(absRoot) > bestLen {
			best, bestLen = filepath.ToSlash(rel), len(absRoot)
		}
	}
	return best
}

// outputBase names the unit without its suffix. The unit mirrors the
// directory of its include path, so headers that share a name in
// different directories get different units; two sources with the same
// stem in one directory are told apart by their extension.
func outputBase(u *Unit, opts Options, used map[string]bool) string {
	dir := path.Dir(u.Include)
	if path.IsAbs(dir) || dir == ".." || strings.HasPrefix(dir, "../") {
		dir = "."
	}
	file := path.Base(u.Include)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)

	name := path.Join(dir, opts.Prefix+stem)
	if used[name] {
		name = path.Join(dir, opts.Prefix+stem+"_"+strings.TrimPrefix(ext, "."))
	}
	for i := 2; used[name]; i++ {
		name = path.Join(dir, fmt.Sprintf("%s%s_%d", opts.Prefix, stem, i))
	}
	used[name] = true
	return name
}
