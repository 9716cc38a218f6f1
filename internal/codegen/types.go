package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phobologic/srcindex/internal/model"
)

// Kind is how a field's declared type maps onto a JSON value.
type Kind string

const (
	Scalar   Kind = "scalar"
	String   Kind = "string"
	Sequence Kind = "sequence"
	Mapping  Kind = "mapping"
	Optional Kind = "optional"
	Record   Kind = "record"
)

// Family is the JSON representation of a scalar.
type Family string

const (
	Bool     Family = "bool"
	Signed   Family = "int"
	Unsigned Family = "uint"
	Float    Family = "float"
)

// FieldType is the encoding plan for a declared C++ type. Sequences,
// mappings and optionals carry their element plan in Elem; records name
// the serializable type they refer to in Ref.
type FieldType struct {
	Kind     Kind       `json:"kind"`
	Spelling string     `json:"type"`
	Family   Family     `json:"family,omitempty"`
	Ref      string     `json:"ref,omitempty"`
	Elem     *FieldType `json:"elem,omitempty"`
}

// Refs returns the serializable types this plan refers to, in depth-first
// order, possibly with repeats.
func (t FieldType) Refs() []string {
	var out []string
	for cur := &t; cur != nil; cur = cur.Elem {
		if cur.Ref != "" {
			out = append(out, cur.Ref)
		}
	}
	return out
}

var scalars = map[string]Family{
	"bool": Bool,

	"char":                   Signed,
	"signed char":            Signed,
	"short":                  Signed,
	"short int":              Signed,
	"signed short":           Signed,
	"signed short int":       Signed,
	"int":                    Signed,
	"signed":                 Signed,
	"signed int":             Signed,
	"long":                   Signed,
	"long int":               Signed,
	"signed long":            Signed,
	"signed long int":        Signed,
	"long long":              Signed,
	"long long int":          Signed,
	"signed long long":       Signed,
	"signed long long int":   Signed,
	"int8_t":                 Signed,
	"int16_t":                Signed,
	"int32_t":                Signed,
	"int64_t":                Signed,
	"intmax_t":               Signed,
	"ptrdiff_t":              Signed,
	"unsigned char":          Unsigned,
	"unsigned short":         Unsigned,
	"unsigned short int":     Unsigned,
	"unsigned":               Unsigned,
	"unsigned int":           Unsigned,
	"unsigned long":          Unsigned,
	"unsigned long int":      Unsigned,
	"unsigned long long":     Unsigned,
	"unsigned long long int": Unsigned,
	"uint8_t":                Unsigned,
	"uint16_t":               Unsigned,
	"uint32_t":               Unsigned,
	"uint64_t":               Unsigned,
	"uintmax_t":              Unsigned,
	"size_t":                 Unsigned,

	"float":       Float,
	"double":      Float,
	"long double": Float,
}

var sequences = map[string]bool{
	"std::vector":        true,
	"std::list":          true,
	"std::deque":         true,
	"std::set":           true,
	"std::multiset":      true,
	"std::unordered_set": true,
}

var mappings = map[string]bool{
	"std::map":           true,
	"std::unordered_map": true,
}

// classifier resolves declared types for the fields of one owner type.
type classifier struct {
	owner model.QualifiedName
	known map[string]struct{}
}

// Classify builds the encoding plan of a declared type. owner is the
// qualified name of the type declaring the field; known holds the
// qualified names of every serializable type of the run. The error
// explains why the type cannot be encoded.
func Classify(declared string, owner model.QualifiedName, known map[string]struct{}) (FieldType, error) {
	c := classifier{owner: owner, known: known}
	return c.classify(declared)
}

func (c *classifier) classify(declared string) (FieldType, error) {
	t := normalize(declared)
	switch {
	case t == "":
		return FieldType{}, errors.New("member declaration not found")
	case strings.HasPrefix(t, "const ") || strings.HasPrefix(t, "volatile ") || strings.HasSuffix(t, " const"):
		return FieldType{}, errors.New("qualified members cannot be decoded")
	case strings.HasSuffix(t, "*"):
		return FieldType{}, errors.New("pointers are not serialized")
	case strings.HasSuffix(t, "&"):
		return FieldType{}, errors.New("references are not serialized")
	case strings.HasSuffix(t, "]"):
		return c.array(t)
	}

	if f, ok := scalars[strings.TrimPrefix(t, "std::")]; ok {
		return FieldType{Kind: Scalar, Spelling: t, Family: f}, nil
	}
	if t == "std::string" {
		return FieldType{Kind: String, Spelling: t}, nil
	}

	if name, args, ok := splitTemplate(t); ok {
		return c.template(t, name, args)
	}

	if ref, ok := c.resolve(t); ok {
		return FieldType{Kind: Record, Spelling: t, Ref: ref}, nil
	}
	return FieldType{}, fmt.Errorf("%s is not a serializable type", t)
}

// array handles built-in arrays. The first dimension is the outer one:
// double[2][3] is a sequence of two sequences of three.
func (c *classifier) array(t string) (FieldType, error) {
	open := strings.Index(t, "[")
	if open <= 0 {
		return FieldType{}, fmt.Errorf("%s is not a serializable type", t)
	}
	end := open + strings.Index(t[open:], "]")
	if end == open+1 {
		return FieldType{}, errors.New("arrays of unknown bound are not serialized")
	}
	elem, err := c.classify(t[:open] + t[end+1:])
	if err != nil {
		return FieldType{}, fmt.Errorf("array element: %w", err)
	}
	return FieldType{Kind: Sequence, Spelling: t, Elem: &elem}, nil
}

func (c *classifier) template(t, name string, args []string) (FieldType, error) {
	var kind Kind
	elemArg := ""
	switch {
	case sequences[name]:
		kind, elemArg = Sequence, args[0]
	case name == "std::array":
		if len(args) != 2 {
			return FieldType{}, fmt.Errorf("%s needs an element type and a size", t)
		}
		kind, elemArg = Sequence, args[0]
	case mappings[name]:
		if len(args) < 2 {
			return FieldType{}, fmt.Errorf("%s needs a key and a value type", t)
		}
		if normalize(args[0]) != "std::string" {
			return FieldType{}, errors.New("only std::string map keys are serialized as objects")
		}
		kind, elemArg = Mapping, args[1]
	case name == "std::optional":
		kind, elemArg = Optional, args[0]
	default:
		return FieldType{}, fmt.Errorf("template %s is not supported", name)
	}

	elem, err := c.classify(elemArg)
	if err != nil {
		return FieldType{}, fmt.Errorf("%s element: %w", name, err)
	}
	if kind == Optional && elem.Kind == Optional {
		return FieldType{}, errors.New("nested optionals are ambiguous when empty")
	}
	return FieldType{Kind: kind, Spelling: t, Elem: &elem}, nil
}

// resolve finds a serializable type named t as seen from inside the owner
// type: the owner itself first, then each enclosing scope outwards, then
// the global scope. A leading :: only looks up the global scope.
func (c *classifier) resolve(t string) (string, bool) {
	if strings.HasPrefix(t, model.ScopeSep) {
		name := strings.TrimPrefix(t, model.ScopeSep)
		_, ok := c.known[name]
		return name, ok
	}
	for i := len(c.owner); i >= 0; i-- {
		cand := append(append(model.QualifiedName{}, c.owner[:i]...), t)
		if _, ok := c.known[cand.String()]; ok {
			return cand.String(), true
		}
	}
	return "", false
}

// normalize collapses whitespace and drops the spaces around template
// punctuation, so "std::map< std::string , int >" becomes
// "std::map<std::string,int>".
func normalize(t string) string {
	t = strings.Join(strings.Fields(t), " ")
	for _, p := range []string{"<", ">", ",", "::", "*", "&", "[", "]"} {
		t = strings.ReplaceAll(t, " "+p, p)
		t = strings.ReplaceAll(t, p+" ", p)
	}
	return t
}

// splitTemplate splits "name<a,b<c,d>>" into name and its top-level
// arguments.
func splitTemplate(t string) (string, []string, bool) {
	open := strings.Index(t, "<")
	if open <= 0 || !strings.HasSuffix(t, ">") {
		return "", nil, false
	}
	inner := t[open+1 : len(t)-1]

	var args []string
	depth, start := 0, 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, inner[start:i])
				start = i + 1
			}
		}
	}
	args = append(args, inner[start:])
	if depth != 0 || args[0] == "" {
		return "", nil, false
	}
	return t[:open], args, true
}
