// Package extract builds a file's marker model from scanner tokens:
// serializable types, their fields, and translatable-string calls.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phobologic/srcindex/internal/diag"
	"github.com/phobologic/srcindex/internal/model"
	"github.com/phobologic/srcindex/internal/scan"
)

// Markers names the three recognized call shapes.
type Markers struct {
	Serializable string
	Field        string
	Translate    string
}

// DefaultMarkers returns SERIALIZABLE, FIELD and _TR.
func DefaultMarkers() Markers {
	return Markers{Serializable: "SERIALIZABLE", Field: "FIELD", Translate: "_TR"}
}

type call struct {
	name string
	tok  scan.Token
	args [][]scan.Token
}

type builder struct {
	path    string
	markers Markers
	fm      *model.FileModel
	diags   []diag.Located

	scopes [][]string
	types  map[string]model.TypeMarker
	fields []model.FieldMarker
}

// File extracts the marker model of one file. A syntax error aborts the
// file: the returned model is nil and the error is the only diagnostic.
// Every other problem is reported per marker and the marker is skipped.
func File(path string, src []byte, markers Markers) (*model.FileModel, []diag.Located) {
	b := &builder{
		path:    path,
		markers: markers,
		fm:      &model.FileModel{Path: path},
		types:   make(map[string]model.TypeMarker),
	}

	s := scan.New(path, src, markers.Serializable, markers.Field, markers.Translate)
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, syntaxError(path, err)
		}
		switch tok.Kind {
		case scan.ScopeOpen:
			b.scopes = append(b.scopes, tok.Scope)
		case scan.ScopeClose:
			if len(b.scopes) == 0 {
				return nil, []diag.Located{&diag.LocatedSyntaxError{
					Position: b.pos(tok),
					Msg:      "unbalanced braces: '}' closes no scope",
				}}
			}
			b.scopes = b.scopes[:len(b.scopes)-1]
		case scan.MarkerStart:
			c, err := readCall(s, tok)
			if err != nil {
				return nil, syntaxError(path, err)
			}
			b.handle(c)
		}
		if tok.Kind == scan.EOF {
			break
		}
	}

	b.resolveFields()
	return b.fm, b.diags
}

func syntaxError(path string, err error) []diag.Located {
	var located diag.Located
	if errors.As(err, &located) {
		return []diag.Located{located}
	}
	return []diag.Located{&diag.LocatedSyntaxError{Position: diag.Position{File: path}, Msg: err.Error()}}
}

// readCall collects the argument tokens of a marker call, split on
// top-level separators. A call with no tokens has no arguments.
func readCall(s *scan.Scanner, start scan.Token) (call, error) {
	c := call{name: start.Text, tok: start}
	var cur []scan.Token
	for {
		tok, err := s.Next()
		if err != nil {
			return c, err
		}
		switch tok.Kind {
		case scan.Separator:
			c.args = append(c.args, cur)
			cur = nil
		case scan.CallEnd:
			if len(cur) > 0 || len(c.args) > 0 {
				c.args = append(c.args, cur)
			}
			return c, nil
		default:
			cur = append(cur, tok)
		}
	}
}

func (b *builder) handle(c call) {
	switch c.name {
	case b.markers.Serializable:
		b.serializable(c)
	case b.markers.Field:
		b.field(c)
	case b.markers.Translate:
		b.translate(c)
	}
}

func (b *builder) pos(tok scan.Token) diag.Position {
	return diag.Position{File: b.path, Line: tok.Line, Offset: tok.Offset}
}

func (b *builder) loc(tok scan.Token) model.SourceLocation {
	return model.SourceLocation{File: b.path, Line: tok.Line, Column: tok.Column}
}

// qualifiedArg returns the single identifier-path argument of a marker.
func (b *builder) qualifiedArg(c call) (model.QualifiedName, bool) {
	if len(c.args) != 1 || len(c.args[0]) != 1 || c.args[0][0].Kind != scan.Ident {
		b.diags = append(b.diags, &diag.MalformedMarkerError{
			Position: b.pos(c.tok),
			Marker:   c.name,
			Reason:   "expected a single qualified name argument",
		})
		return nil, false
	}
	return model.ParseQualifiedName(c.args[0][0].Text), true
}

func (b *builder) serializable(c call) {
	name, ok := b.qualifiedArg(c)
	if !ok {
		return
	}
	key := name.String()
	if first, dup := b.types[key]; dup {
		b.diags = append(b.diags, &diag.DuplicateTypeError{
			Position: b.pos(c.tok),
			Type:     key,
			First:    diag.Position{File: first.Location.File, Line: first.Location.Line, Offset: first.Offset},
		})
		return
	}
	tm := model.TypeMarker{Name: name, Location: b.loc(c.tok), Offset: c.tok.Offset}
	b.types[key] = tm
	b.fm.Types = append(b.fm.Types, tm)
}

func (b *builder) field(c call) {
	path, ok := b.qualifiedArg(c)
	if !ok {
		return
	}
	if len(path) < 2 {
		b.diags = append(b.diags, &diag.MalformedMarkerError{
			Position: b.pos(c.tok),
			Marker:   c.name,
			Reason:   fmt.Sprintf("%q is not of the form Type::member", path.String()),
		})
		return
	}
	fm := model.FieldMarker{
		Type:     path.Parent(),
		Member:   path.Leaf(),
		Location: b.loc(c.tok),
		Offset:   c.tok.Offset,
	}
	if _, seen := b.types[fm.Type.String()]; !seen {
		b.diags = append(b.diags, &diag.ForwardReferenceError{
			Position: b.pos(c.tok),
			Type:     fm.Type.String(),
			Member:   fm.Member,
		})
	}
	b.fields = append(b.fields, fm)
}

// resolveFields attaches deferred fields once the whole file is known.
// Fields keep source order.
func (b *builder) resolveFields() {
	seen := make(map[string]struct{})
	for _, f := range b.fields {
		owner := f.Type.String()
		pos := diag.Position{File: b.path, Line: f.Location.Line, Offset: f.Offset}
		if _, ok := b.types[owner]; !ok {
			b.diags = append(b.diags, &diag.OrphanFieldError{Position: pos, Type: owner, Member: f.Member})
			continue
		}
		key := owner + model.ScopeSep + f.Member
		if _, dup := seen[key]; dup {
			b.diags = append(b.diags, &diag.DuplicateFieldError{Position: pos, Type: owner, Member: f.Member})
			continue
		}
		seen[key] = struct{}{}
		b.fm.Fields = append(b.fm.Fields, f)
	}
}

func (b *builder) translate(c call) {
	if len(c.args) < 1 || len(c.args) > 2 {
		b.diags = append(b.diags, &diag.MalformedTranslationCallError{
			Position: b.pos(c.tok),
			Marker:   c.name,
			Reason:   fmt.Sprintf("expected 1 or 2 string literal arguments, got %d", len(c.args)),
		})
		return
	}

	texts := make([]string, len(c.args))
	for i, arg := range c.args {
		text, ok := literal(arg)
		if !ok {
			b.diags = append(b.diags, &diag.MalformedTranslationCallError{
				Position: b.pos(c.tok),
				Marker:   c.name,
				Reason:   fmt.Sprintf("argument %d is not a string literal", i+1),
			})
			return
		}
		texts[i] = text
	}

	tc := model.TranslationCall{
		Message:  texts[0],
		Scope:    b.scopePath(),
		Location: b.loc(c.tok),
	}
	if len(texts) == 2 {
		tc.Disambiguation = texts[1]
	}
	b.fm.Translations = append(b.fm.Translations, tc)
}

// literal joins adjacent string literals the way the compiler would.
func literal(arg []scan.Token) (string, bool) {
	if len(arg) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, tok := range arg {
		if tok.Kind != scan.String {
			return "", false
		}
		sb.WriteString(tok.Text)
	}
	return sb.String(), true
}

func (b *builder) scopePath() []string {
	var path []string
	for _, names := range b.scopes {
		path = append(path, names...)
	}
	return path
}
