package scan

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/phobologic/srcindex/internal/diag"
)

// Scanner produces tokens lazily from one file. It keeps no state across
// files.
//
// Comments, preprocessor directives, character and numeric literals are
// skipped. Identifiers and string literals are always reported; '(' ')'
// ',' are only reported inside a marker call, where they delimit arguments.
type Scanner struct {
	file    string
	src     []byte
	markers map[string]struct{}
	lines   []int

	pos       int
	lineStart bool
	err       error

	inCall     bool
	callName   string
	callOff    int
	parenDepth int
	braceDepth int

	// identifiers seen since the last ';', '{' or '}', used to name scopes
	header      []string
	headerBlock bool
}

// New returns a scanner over src recognizing the given marker names.
func New(file string, src []byte, markers ...string) *Scanner {
	s := &Scanner{
		file:    file,
		src:     src,
		markers: make(map[string]struct{}, len(markers)),
		lines:   []int{0},
	}
	for _, m := range markers {
		s.markers[m] = struct{}{}
	}
	for i, c := range src {
		if c == '\n' {
			s.lines = append(s.lines, i+1)
		}
	}
	s.reset()
	return s
}

func (s *Scanner) reset() {
	s.pos = 0
	s.lineStart = true
	s.err = nil
	s.inCall = false
	s.callName = ""
	s.callOff = 0
	s.parenDepth = 0
	s.braceDepth = 0
	s.resetHeader()
}

// Next returns the next token. After EOF it keeps returning EOF. A syntax
// error is sticky and is a *diag.LocatedSyntaxError.
func (s *Scanner) Next() (Token, error) {
	if s.err != nil {
		return Token{}, s.err
	}
	for {
		s.skipSpace()
		if s.err != nil {
			return Token{}, s.err
		}
		if s.pos >= len(s.src) {
			if s.inCall {
				return s.fail(s.callOff, fmt.Sprintf("unbalanced parentheses: %s( is never closed", s.callName))
			}
			return s.token(EOF, "", s.pos), nil
		}
		s.lineStart = false

		start := s.pos
		c := s.src[start]
		switch {
		case isIdentStart(c):
			tok, emit, err := s.scanWord(start, "")
			if err != nil || emit {
				return tok, err
			}

		case c == ':' && s.peek(1) == ':':
			s.pos += 2
			save := s.pos
			s.skipBlank()
			if s.pos < len(s.src) && isIdentStart(s.src[s.pos]) {
				tok, emit, err := s.scanWord(start, ScopeSep)
				if err != nil || emit {
					return tok, err
				}
				continue
			}
			s.pos = save
			if s.inCall {
				return s.token(Other, "::", start), nil
			}

		case c == '"':
			text, err := s.scanString(start)
			if err != nil {
				return Token{}, err
			}
			return s.token(String, text, start), nil

		case c == '\'':
			s.skipCharLiteral()
			if s.inCall {
				return s.token(Other, string(s.src[start:s.pos]), start), nil
			}

		case isDigit(c) || (c == '.' && isDigit(s.peek(1))):
			s.skipNumber()
			if s.inCall {
				return s.token(Other, string(s.src[start:s.pos]), start), nil
			}

		default:
			s.pos++
			if s.inCall {
				return s.callPunct(c, start)
			}
			if tok, ok := s.punct(c, start); ok {
				return tok, nil
			}
		}
	}
}

// ScopeSep separates qualified name segments.
const ScopeSep = "::"

func (s *Scanner) scanWord(start int, prefix string) (Token, bool, error) {
	word := s.readIdent()

	if s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '"':
			switch word {
			case "L", "u", "U", "u8":
				text, err := s.scanString(s.pos)
				if err != nil {
					return Token{}, false, err
				}
				return s.token(String, text, start), true, nil
			case "R", "LR", "uR", "UR", "u8R":
				text, err := s.scanRawString(start)
				if err != nil {
					return Token{}, false, err
				}
				return s.token(String, text, start), true, nil
			}
		case '\'':
			switch word {
			case "L", "u", "U", "u8":
				s.skipCharLiteral()
				if s.inCall {
					return s.token(Other, string(s.src[start:s.pos]), start), true, nil
				}
				return Token{}, false, nil
			}
		}
	}

	path := prefix + word
	for {
		save := s.pos
		s.skipBlank()
		if strings.HasPrefix(string(s.src[s.pos:min(s.pos+2, len(s.src))]), ScopeSep) {
			s.pos += 2
			s.skipBlank()
			if s.pos < len(s.src) && isIdentStart(s.src[s.pos]) {
				path += ScopeSep + s.readIdent()
				continue
			}
		}
		s.pos = save
		break
	}

	if !s.inCall && prefix == "" && !strings.Contains(path, ScopeSep) {
		if _, ok := s.markers[path]; ok {
			save := s.pos
			s.skipBlank()
			if s.pos < len(s.src) && s.src[s.pos] == '(' {
				s.pos++
				s.inCall = true
				s.callName = path
				s.callOff = start
				s.parenDepth = 1
				s.braceDepth = 0
				return s.token(MarkerStart, path, start), true, nil
			}
			s.pos = save
		}
	}

	if !s.inCall {
		s.header = append(s.header, path)
	}
	return s.token(Ident, path, start), true, nil
}

// callPunct classifies punctuation inside a marker call.
func (s *Scanner) callPunct(c byte, start int) (Token, error) {
	switch c {
	case '(':
		s.parenDepth++
	case ')':
		s.parenDepth--
		if s.parenDepth == 0 {
			s.inCall = false
			s.resetHeader()
			return s.token(CallEnd, ")", start), nil
		}
	case ',':
		if s.parenDepth == 1 && s.braceDepth == 0 {
			return s.token(Separator, ",", start), nil
		}
	case '{':
		s.braceDepth++
	case '}':
		if s.braceDepth == 0 {
			return s.fail(s.callOff, fmt.Sprintf("unbalanced parentheses: %s( is closed by '}'", s.callName))
		}
		s.braceDepth--
	case ';':
		if s.braceDepth == 0 {
			return s.fail(s.callOff, fmt.Sprintf("unbalanced parentheses: %s( is closed by ';'", s.callName))
		}
	}
	return s.token(Other, string(c), start), nil
}

// punct tracks declaration headers and braces outside marker calls.
func (s *Scanner) punct(c byte, start int) (Token, bool) {
	switch c {
	case '{':
		names := s.scopeFromHeader()
		s.resetHeader()
		tok := s.token(ScopeOpen, "{", start)
		tok.Scope = names
		return tok, true
	case '}':
		s.resetHeader()
		return s.token(ScopeClose, "}", start), true
	case ';':
		s.resetHeader()
	case '(', '=':
		s.headerBlock = true
	}
	return Token{}, false
}

var typeKeywords = map[string]struct{}{
	"struct": {}, "class": {}, "union": {}, "enum": {},
}

var declSpecifiers = map[string]struct{}{
	"struct": {}, "class": {}, "union": {}, "enum": {},
	"final": {}, "public": {}, "private": {}, "protected": {}, "virtual": {},
}

// scopeFromHeader names the scope a '{' opens from the identifiers before
// it. Blocks and unnamed namespaces or types have no names.
func (s *Scanner) scopeFromHeader() []string {
	for i, w := range s.header {
		if w != "namespace" {
			continue
		}
		for _, n := range s.header[i+1:] {
			if n == "inline" {
				continue
			}
			return splitPath(n)
		}
		return nil
	}
	if s.headerBlock {
		return nil
	}
	for i := len(s.header) - 1; i >= 0; i-- {
		if _, ok := typeKeywords[s.header[i]]; !ok {
			continue
		}
		if i+1 < len(s.header) {
			if _, ok := declSpecifiers[s.header[i+1]]; !ok {
				return splitPath(s.header[i+1])
			}
		}
		return nil
	}
	return nil
}

func (s *Scanner) resetHeader() {
	s.header = s.header[:0]
	s.headerBlock = false
}

func splitPath(p string) []string {
	p = strings.TrimPrefix(p, ScopeSep)
	if p == "" {
		return nil
	}
	return strings.Split(p, ScopeSep)
}

// skipSpace skips whitespace, comments, line splices and preprocessor lines.
func (s *Scanner) skipSpace() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n':
			s.pos++
			s.lineStart = true
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			s.pos++
		case c == '\\' && s.peek(1) == '\n':
			s.pos += 2
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		case c == '#' && s.lineStart:
			s.skipDirective()
		default:
			return
		}
	}
}

// skipBlank skips whitespace and comments without touching line state.
func (s *Scanner) skipBlank() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v':
			s.pos++
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		default:
			return
		}
	}
}

func (s *Scanner) skipLineComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		if s.src[s.pos] == '\\' && s.peek(1) == '\n' {
			s.pos++
		}
		s.pos++
	}
}

func (s *Scanner) skipBlockComment() {
	end := strings.Index(string(s.src[s.pos+2:]), "*/")
	if end < 0 {
		s.fail(s.pos, "unterminated comment")
		s.pos = len(s.src)
		return
	}
	s.pos += 2 + end + 2
}

func (s *Scanner) skipDirective() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n':
			return
		case c == '\\' && s.peek(1) == '\n':
			s.pos += 2
		case c == '\\' && s.peek(1) == '\r' && s.peek(2) == '\n':
			s.pos += 3
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '"':
			s.pos++
			for s.pos < len(s.src) && s.src[s.pos] != '"' && s.src[s.pos] != '\n' {
				if s.src[s.pos] == '\\' {
					s.pos++
				}
				s.pos++
			}
			if s.pos < len(s.src) && s.src[s.pos] == '"' {
				s.pos++
			}
		default:
			s.pos++
		}
	}
}

// scanString decodes a quoted literal whose opening quote is at s.pos.
// start anchors errors at the beginning of the literal, prefix included.
func (s *Scanner) scanString(start int) (string, error) {
	var b strings.Builder
	i := s.pos + 1
	for {
		if i >= len(s.src) {
			_, err := s.fail(start, "unterminated string literal")
			return "", err
		}
		c := s.src[i]
		switch c {
		case '"':
			s.pos = i + 1
			return b.String(), nil
		case '\n':
			_, err := s.fail(start, "unterminated string literal")
			return "", err
		case '\\':
			if i+1 >= len(s.src) {
				_, err := s.fail(start, "unterminated string literal")
				return "", err
			}
			switch {
			case s.src[i+1] == '\n':
				i += 2
				continue
			case s.src[i+1] == '\r' && i+2 < len(s.src) && s.src[i+2] == '\n':
				i += 3
				continue
			}
			text, n, err := decodeEscape(s.src[i:])
			if err != nil {
				_, err := s.fail(i, err.Error())
				return "", err
			}
			b.WriteString(text)
			i += n
		default:
			b.WriteByte(c)
			i++
		}
	}
}

// scanRawString reads R"delim(...)delim" with the opening quote at s.pos.
func (s *Scanner) scanRawString(start int) (string, error) {
	open := s.pos + 1
	paren := -1
	for i := open; i < len(s.src) && i <= open+16; i++ {
		c := s.src[i]
		if c == '(' {
			paren = i
			break
		}
		if c == ')' || c == '\\' || c == ' ' || c == '\t' || c == '\n' || c == '"' {
			break
		}
	}
	if paren < 0 {
		_, err := s.fail(start, "invalid raw string delimiter")
		return "", err
	}
	closing := ")" + string(s.src[open:paren]) + `"`
	end := strings.Index(string(s.src[paren+1:]), closing)
	if end < 0 {
		_, err := s.fail(start, "unterminated raw string literal")
		return "", err
	}
	text := string(s.src[paren+1 : paren+1+end])
	s.pos = paren + 1 + end + len(closing)
	return text, nil
}

// skipCharLiteral skips a character literal. An unterminated one ends at
// the line end; apostrophes are too common in disabled code to fail on.
func (s *Scanner) skipCharLiteral() {
	for s.pos < len(s.src) && s.src[s.pos] != '\'' {
		s.pos++
	}
	s.pos++
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '\'':
			s.pos++
			return
		case '\n':
			return
		}
		s.pos++
	}
	s.pos = min(s.pos, len(s.src))
}

func (s *Scanner) skipNumber() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case isIdentChar(c) || c == '.':
			s.pos++
		case c == '\'' && isIdentChar(s.peek(1)):
			s.pos++
		case (c == '+' || c == '-') && s.pos > 0 && strings.IndexByte("eEpP", s.src[s.pos-1]) >= 0:
			s.pos++
		default:
			return
		}
	}
}

func (s *Scanner) readIdent() string {
	start := s.pos
	for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func (s *Scanner) peek(n int) byte {
	if s.pos+n < len(s.src) {
		return s.src[s.pos+n]
	}
	return 0
}

func (s *Scanner) token(kind Kind, text string, off int) Token {
	line := s.lineAt(off)
	return Token{Kind: kind, Text: text, Offset: off, Line: line, Column: off - s.lines[line-1] + 1}
}

// fail records a syntax error. The first error wins.
func (s *Scanner) fail(off int, msg string) (Token, error) {
	if s.err != nil {
		return Token{}, s.err
	}
	s.err = &diag.LocatedSyntaxError{
		Position: diag.Position{File: s.file, Line: s.lineAt(off), Offset: off},
		Msg:      msg,
	}
	return Token{}, s.err
}

func (s *Scanner) lineAt(off int) int {
	return sort.SearchInts(s.lines, off+1)
}

// decodeEscape decodes the escape sequence at the start of b (b[0] is the
// backslash) and returns its text and length in bytes. Octal and hex
// escapes must fit in one byte.
func decodeEscape(b []byte) (string, int, error) {
	if len(b) < 2 {
		return string(b), len(b), nil
	}
	switch c := b[1]; c {
	case 'n':
		return "\n", 2, nil
	case 't':
		return "\t", 2, nil
	case 'r':
		return "\r", 2, nil
	case 'a':
		return "\a", 2, nil
	case 'b':
		return "\b", 2, nil
	case 'f':
		return "\f", 2, nil
	case 'v':
		return "\v", 2, nil
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n := 1
		for n < 3 && 1+n < len(b) && b[1+n] >= '0' && b[1+n] <= '7' {
			n++
		}
		v, _ := strconv.ParseUint(string(b[1:1+n]), 8, 16)
		if v > 0xff {
			return "", 0, errors.New("octal escape sequence out of range")
		}
		return string([]byte{byte(v)}), 1 + n, nil
	case 'x':
		// a hex escape takes every hex digit that follows
		n := 0
		for 2+n < len(b) && isHex(b[2+n]) {
			n++
		}
		if n == 0 {
			return "x", 2, nil
		}
		v, err := strconv.ParseUint(string(b[2:2+n]), 16, 8)
		if err != nil {
			return "", 0, errors.New("hex escape sequence out of range")
		}
		return string([]byte{byte(v)}), 2 + n, nil
	case 'u', 'U':
		want := 4
		if c == 'U' {
			want = 8
		}
		if len(b) < 2+want {
			return string(c), 2, nil
		}
		v, err := strconv.ParseUint(string(b[2:2+want]), 16, 32)
		if err != nil || !utf8.ValidRune(rune(v)) {
			return string(c), 2, nil
		}
		return string(rune(v)), 2 + want, nil
	default:
		// \\ \" \' \? and unknown escapes yield the character itself
		return string(c), 2, nil
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
