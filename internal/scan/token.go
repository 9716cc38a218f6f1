// Package scan tokenizes C and C++ source text into the few token classes
// the marker extractor needs, without parsing the language.
package scan

import "fmt"

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	// ScopeOpen is a '{' outside a marker call. Token.Scope names it.
	ScopeOpen
	// ScopeClose is a '}' outside a marker call.
	ScopeClose
	// Ident is an identifier or a qualified path such as ns::Type::member.
	Ident
	// String is a string literal; Text holds the decoded value.
	String
	// MarkerStart is a marker name immediately followed by '('.
	MarkerStart
	// Separator is a ',' at the top level of a marker call.
	Separator
	// CallEnd is the ')' closing a marker call.
	CallEnd
	// Other is any other lexeme inside a marker call.
	Other
)

var kindNames = [...]string{
	EOF:         "EOF",
	ScopeOpen:   "ScopeOpen",
	ScopeClose:  "ScopeClose",
	Ident:       "Ident",
	String:      "String",
	MarkerStart: "MarkerStart",
	Separator:   "Separator",
	CallEnd:     "CallEnd",
	Other:       "Other",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is one classified lexeme.
type Token struct {
	Kind Kind
	// Text is the identifier path, the decoded literal, the marker name or
	// the raw lexeme, depending on Kind.
	Text string
	// Scope is the list of names a ScopeOpen introduces. Nested namespace
	// definitions (namespace a::b {) introduce several; blocks none.
	Scope  []string
	Offset int
	// Line and Column are 1-based; Column counts bytes.
	Line   int
	Column int
}
