package codegen

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/phobologic/srcindex/internal/model"
)

// banner opens every rendered unit.
const banner = "/*\n * WARNING: This is an automatically generated source file.\n"

const unitTemplate = banner + ` * Do NOT modify it manually.
*/

#include <nlohmann/json.hpp>

#include "{{.Include}}"

using json = nlohmann::json;
{{range .Forward}}
{{with .Open}}{{.}}
{{end}}{{.Indent}}void from_json(const json & j, {{.Name}} & o);
{{.Indent}}void to_json(json & j, const {{.Name}} & o);
{{with .Close}}{{.}}
{{end}}{{end}}{{range .Types}}{{$in := .Indent}}
{{with .Open}}{{.}}
{{end}}{{$in}}void from_json(const json & j, {{.Name}} & o)
{{$in}}{
{{range .Decode}}{{$in}}	{{.}}
{{end}}{{$in}}}

{{$in}}void to_json(json & j, const {{.Name}} & o)
{{$in}}{
{{range .Encode}}{{$in}}	{{.}}
{{end}}{{$in}}}
{{with .Close}}{{.}}
{{end}}{{end}}`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

type unitView struct {
	Include string
	Forward []blockView
	Types   []blockView
}

// blockView is a namespace block holding the functions of one type.
// Types of the global scope have no block and no indentation.
type blockView struct {
	Open   string
	Close  string
	Indent string
	Name   string
	Decode []string
	Encode []string
}

func newBlock(scope []string, name string) blockView {
	if len(scope) == 0 {
		return blockView{Name: name}
	}
	ns := strings.Join(scope, model.ScopeSep)
	return blockView{
		Open:   "namespace " + ns + "\n{",
		Close:  "} // namespace " + ns,
		Indent: "\t",
		Name:   name,
	}
}

// Render produces the source of a unit. The output depends only on the
// unit, so rendering an unchanged plan reproduces it byte for byte.
func Render(u *Unit) ([]byte, error) {
	view := unitView{Include: u.Include}
	for _, f := range u.Forward {
		view.Forward = append(view.Forward, newBlock(f.Scope, f.Name))
	}
	for _, t := range u.Types {
		b := newBlock(t.Scope, t.Name)
		encoded := 0
		for _, f := range t.Fields {
			b.Decode = append(b.Decode, decodeLines(f)...)
			b.Encode = append(b.Encode, encodeLines(f)...)
			if f.Encoding != nil {
				encoded++
			}
		}
		if encoded == 0 {
			b.Encode = append([]string{"j = json::object();"}, b.Encode...)
		}
		view.Types = append(view.Types, b)
	}

	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render %s: %w", u.Output, err)
	}
	return buf.Bytes(), nil
}

func decodeLines(f Field) []string {
	switch {
	case f.Encoding == nil:
		return []string{skipComment(f)}
	case f.Encoding.Kind == Optional:
		return []string{
			fmt.Sprintf(`if (j.contains("%s") && !j.at("%s").is_null())`, f.Name, f.Name),
			fmt.Sprintf(`	o.%s = j.at("%s").get<decltype(o.%s)::value_type>();`, f.Name, f.Name, f.Name),
			"else",
			fmt.Sprintf("	o.%s.reset();", f.Name),
		}
	}
	return []string{fmt.Sprintf(`j.at("%s").get_to(o.%s);`, f.Name, f.Name)}
}

func encodeLines(f Field) []string {
	switch {
	case f.Encoding == nil:
		return []string{skipComment(f)}
	case f.Encoding.Kind == Optional:
		return []string{
			fmt.Sprintf("if (o.%s.has_value())", f.Name),
			fmt.Sprintf(`	j["%s"] = *o.%s;`, f.Name, f.Name),
		}
	}
	return []string{fmt.Sprintf(`j["%s"] = o.%s;`, f.Name, f.Name)}
}

func skipComment(f Field) string {
	return fmt.Sprintf("// field %q skipped: %s", f.Name, f.Skipped)
}
