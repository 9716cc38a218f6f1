// Package decl extracts struct and class declarations from source files
// using tree-sitter, so serialized fields can be given their declared type
// and access.
package decl

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/srcindex/internal/lang"
	"github.com/phobologic/srcindex/internal/model"
)

var captureAccess = map[string]model.Access{
	"definition.struct": model.Public,
	"definition.class":  model.Private,
}

// Extract parses a source file and returns its struct, class and union
// declarations with their data members in declaration order.
// The parser must be created for l. Types declared inside function bodies
// and anonymous types are skipped: they cannot be named by a marker.
func Extract(l *lang.Language, parser *sitter.Parser, query *sitter.Query, source []byte, filePath string) []model.StructDecl {
	if len(source) == 0 {
		return nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var decls []model.StructDecl

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var nameNode, defNode *sitter.Node
		var access model.Access
		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			if cname == "name" {
				nameNode = c.Node
			} else if a, ok := captureAccess[cname]; ok {
				defNode = c.Node
				access = a
			}
		}
		if nameNode == nil || defNode == nil {
			continue
		}
		if !l.Classes {
			access = model.Public
		}

		name := lang.NodeText(nameNode, source)
		if strings.ContainsAny(name, "<>") {
			// explicit template specializations
			continue
		}
		scope, ok := enclosingScope(defNode, source)
		if !ok {
			continue
		}
		qn := model.ParseQualifiedName(name)
		for _, seg := range qn.Parent() {
			scope = append(scope, model.ScopeSegment{Name: seg, Kind: model.NamespaceScope})
		}

		decls = append(decls, model.StructDecl{
			Scope:  scope,
			Name:   qn.Leaf(),
			Fields: members(defNode.ChildByFieldName("body"), source, access),
			File:   filePath,
			Line:   int(nameNode.StartPoint().Row) + 1,
		})
	}

	return decls
}

// enclosingScope walks up from a type definition collecting the named
// namespaces and types around it, outermost first. It reports false for
// types that are local to a function or nested in an anonymous type.
func enclosingScope(node *sitter.Node, source []byte) ([]model.ScopeSegment, bool) {
	var rev []model.ScopeSegment
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "namespace_definition":
			n := p.ChildByFieldName("name")
			if n == nil {
				// anonymous namespace: its members are named as if it were absent
				continue
			}
			segs := model.ParseQualifiedName(strings.ReplaceAll(lang.NodeText(n, source), "inline ", ""))
			for i := len(segs) - 1; i >= 0; i-- {
				rev = append(rev, model.ScopeSegment{Name: segs[i], Kind: model.NamespaceScope})
			}
		case "struct_specifier", "class_specifier", "union_specifier":
			n := p.ChildByFieldName("name")
			if n == nil {
				return nil, false
			}
			rev = append(rev, model.ScopeSegment{Name: lang.NodeText(n, source), Kind: model.TypeScope})
		case "function_definition", "lambda_expression", "compound_statement":
			return nil, false
		}
	}

	scope := make([]model.ScopeSegment, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		scope = append(scope, rev[i])
	}
	return scope, true
}

// members lists the data members of a field_declaration_list. Access
// specifiers switch the current access; member functions, static members
// and friend declarations are not data members.
func members(body *sitter.Node, source []byte, access model.Access) []model.DeclField {
	if body == nil {
		return nil
	}
	var fields []model.DeclField
	var walk func(list *sitter.Node)
	walk = func(list *sitter.Node) {
		for i := 0; i < int(list.NamedChildCount()); i++ {
			child := list.NamedChild(i)
			switch child.Type() {
			case "access_specifier":
				switch strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(lang.NodeText(child, source)), ":")) {
				case "public":
					access = model.Public
				case "protected":
					access = model.Protected
				case "private":
					access = model.Private
				}
			case "field_declaration":
				fields = append(fields, fieldDeclaration(child, source, access)...)
			case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif":
				// members under conditional compilation are indexed as written
				walk(child)
			}
		}
	}
	walk(body)
	return fields
}

var declaratorTypes = map[string]bool{
	"field_identifier":         true,
	"pointer_declarator":       true,
	"reference_declarator":     true,
	"array_declarator":         true,
	"function_declarator":      true,
	"parenthesized_declarator": true,
	"attributed_declarator":    true,
}

func fieldDeclaration(n *sitter.Node, source []byte, access model.Access) []model.DeclField {
	typeNode := n.ChildByFieldName("type")
	if typeNode == nil {
		return nil
	}

	var quals []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "storage_class_specifier":
			if lang.NodeText(child, source) == "static" {
				return nil
			}
		case "type_qualifier":
			quals = append(quals, lang.NodeText(child, source))
		}
	}

	base, ok := typeText(typeNode, source)
	if !ok {
		return nil
	}
	if len(quals) > 0 {
		base = strings.Join(quals, " ") + " " + base
	}

	var fields []model.DeclField
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if !declaratorTypes[child.Type()] {
			continue
		}
		name, typ, ok := fold(child, base, source)
		if !ok {
			continue
		}
		fields = append(fields, model.DeclField{
			Name:   name,
			Type:   typ,
			Access: access,
			Line:   int(child.StartPoint().Row) + 1,
		})
	}
	return fields
}

// typeText returns the type specifier as written. A type defined inline
// (struct Inner { ... } member;) is named by its tag.
func typeText(n *sitter.Node, source []byte) (string, bool) {
	switch n.Type() {
	case "struct_specifier", "class_specifier", "union_specifier", "enum_specifier":
		if n.ChildByFieldName("body") != nil {
			name := n.ChildByFieldName("name")
			if name == nil {
				return "", false
			}
			return lang.NodeText(name, source), true
		}
	}
	return lang.CollapseWhitespace(lang.NodeText(n, source)), true
}

// fold unwraps a declarator into the member name and its full type.
// Pointer and reference declarators bind to the base type; array
// dimensions are appended in source order.
func fold(n *sitter.Node, typ string, source []byte) (string, string, bool) {
	switch n.Type() {
	case "field_identifier":
		return lang.NodeText(n, source), typ, true
	case "pointer_declarator":
		inner := n.ChildByFieldName("declarator")
		if inner == nil {
			return "", "", false
		}
		return fold(inner, typ+"*", source)
	case "reference_declarator":
		cnt := int(n.NamedChildCount())
		if cnt == 0 {
			return "", "", false
		}
		ref := "&"
		if strings.HasPrefix(strings.TrimSpace(lang.NodeText(n, source)), "&&") {
			ref = "&&"
		}
		return fold(n.NamedChild(cnt-1), typ+ref, source)
	case "array_declarator":
		inner := n.ChildByFieldName("declarator")
		if inner == nil {
			return "", "", false
		}
		name, t, ok := fold(inner, typ, source)
		if !ok {
			return "", "", false
		}
		size := ""
		if s := n.ChildByFieldName("size"); s != nil {
			size = lang.CollapseWhitespace(lang.NodeText(s, source))
		}
		return name, t + "[" + size + "]", true
	case "parenthesized_declarator", "attributed_declarator":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); declaratorTypes[child.Type()] {
				return fold(child, typ, source)
			}
		}
	}
	// function_declarator: a member function, not data
	return "", "", false
}
