// Package tr formats translatable messages at run time.
//
// Messages carry {name} placeholders. Format replaces each placeholder
// with the value supplied for its name in a single left-to-right pass:
// replacement text is never scanned again, so a value that itself looks
// like a placeholder is inserted verbatim. Placeholders without a value
// are left as written.
package tr

import (
	"fmt"
	"io"
	"strings"
)

// Record is a translatable message together with its disambiguation and
// the file that declared it.
type Record struct {
	Message        string
	Disambiguation string
	File           string
}

// Format substitutes the {name} placeholders of message found in params.
func Format(message string, params map[string]string) string {
	if len(params) == 0 || !strings.Contains(message, "{") {
		return message
	}

	var b strings.Builder
	b.Grow(len(message))
	for i := 0; i < len(message); {
		name, end, ok := placeholderAt(message, i)
		if ok {
			if v, found := params[name]; found {
				b.WriteString(v)
				i = end
				continue
			}
		}
		b.WriteByte(message[i])
		i++
	}
	return b.String()
}

// Placeholders returns the distinct placeholder names of message in order
// of first appearance.
func Placeholders(message string) []string {
	var names []string
	seen := make(map[string]bool)
	for i := 0; i < len(message); i++ {
		name, end, ok := placeholderAt(message, i)
		if !ok {
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i = end - 1
	}
	return names
}

// placeholderAt reports whether a placeholder starts at s[i], returning
// its name and the offset just past its closing brace. Names are
// non-empty and contain neither braces nor whitespace.
func placeholderAt(s string, i int) (string, int, bool) {
	if s[i] != '{' {
		return "", 0, false
	}
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '}':
			if j == i+1 {
				return "", 0, false
			}
			return s[i+1 : j], j + 1, true
		case '{', ' ', '\t', '\n', '\r':
			return "", 0, false
		}
	}
	return "", 0, false
}

// Sprint renders a record as "<file> <message> (<disambiguation>)" with
// its placeholders substituted.
func Sprint(r Record, params map[string]string) string {
	return fmt.Sprintf("%s %s (%s)", r.File, Format(r.Message, params), r.Disambiguation)
}

// Print writes Sprint's line to w.
func Print(w io.Writer, r Record, params map[string]string) error {
	_, err := fmt.Fprintln(w, Sprint(r, params))
	return err
}
