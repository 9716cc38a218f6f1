package codegen

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/srcindex/internal/diag"
	"github.com/phobologic/srcindex/internal/model"
)

func typeDesc(file string, line int, scope []string, name string, fields ...[2]string) model.TypeDescriptor {
	td := model.TypeDescriptor{
		Scope:  scope,
		Name:   name,
		Origin: model.SourceLocation{File: file, Line: line},
	}
	owner := td.QualifiedName()
	for i, f := range fields {
		td.Fields = append(td.Fields, model.FieldDescriptor{
			Owner:  owner,
			Name:   f[0],
			Type:   f[1],
			Access: model.Public,
			Origin: model.SourceLocation{File: file, Line: line + i + 1},
		})
	}
	return td
}

func exampleTypes() []model.TypeDescriptor {
	ns := []string{"ns1", "ns2"}
	return []model.TypeDescriptor{
		typeDesc("example/example.hpp", 28, ns, "A", [2]string{"a", "int"}, [2]string{"b", "float"}),
		typeDesc("example/example.hpp", 32, ns, "B", [2]string{"a", "int"}, [2]string{"b", "float"}),
	}
}

func TestRenderExample(t *testing.T) {
	t.Parallel()

	units, diags := Plan(exampleTypes(), DefaultOptions())
	require.Empty(t, diags)
	require.Len(t, units, 1)

	u := units[0]
	assert.Equal(t, "example/example.hpp", u.Include)
	assert.Equal(t, "example/serialize_example.cpp", u.Output)
	assert.Equal(t, "example/serialize_example.json", u.ModelOutput)

	got, err := Render(u)
	require.NoError(t, err)

	want, err := os.ReadFile(filepath.Join("testdata", "serialize_example.cpp.golden"))
	require.NoError(t, err)
	if diff := cmp.Diff(string(want), string(got)); diff != "" {
		t.Errorf("generated unit mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderDeterministic(t *testing.T) {
	t.Parallel()

	types := append(exampleTypes(),
		typeDesc("b.hpp", 3, []string{"app"}, "Shape",
			[2]string{"pts", "std::vector<ns1::ns2::A>"},
			[2]string{"tag", "std::optional<std::string>"},
			[2]string{"raw", "char*"},
		),
	)

	render := func() [][]byte {
		units, _ := Plan(types, DefaultOptions())
		var out [][]byte
		for _, u := range units {
			src, err := Render(u)
			require.NoError(t, err)
			out = append(out, src)
		}
		return out
	}

	first, second := render(), render()
	require.Len(t, first, 2)
	for i := range first {
		assert.True(t, bytes.Equal(first[i], second[i]), "unit %d differs between runs", i)
	}
}

func TestRenderGlobalScope(t *testing.T) {
	t.Parallel()

	units, diags := Plan([]model.TypeDescriptor{
		typeDesc("g.h", 1, nil, "G", [2]string{"v", "int"}),
		typeDesc("g.h", 5, nil, "Empty"),
	}, DefaultOptions())
	require.Empty(t, diags)
	require.Len(t, units, 1)

	src, err := Render(units[0])
	require.NoError(t, err)
	out := string(src)

	assert.Contains(t, out, "\nvoid from_json(const json & j, G & o)\n{\n\tj.at(\"v\").get_to(o.v);\n}\n")
	assert.Contains(t, out, "\nvoid to_json(json & j, const G & o)\n{\n\tj[\"v\"] = o.v;\n}\n")
	assert.Contains(t, out, "void to_json(json & j, const Empty & o)\n{\n\tj = json::object();\n}\n")
	assert.NotContains(t, out, "namespace")
	assert.Equal(t, "serialize_g.cpp", units[0].Output)
}

func TestRenderOptional(t *testing.T) {
	t.Parallel()

	units, diags := Plan([]model.TypeDescriptor{
		typeDesc("o.hpp", 1, []string{"app"}, "O", [2]string{"note", "std::optional<std::string>"}),
	}, DefaultOptions())
	require.Empty(t, diags)

	src, err := Render(units[0])
	require.NoError(t, err)
	out := string(src)

	assert.Contains(t, out, "\t\tif (j.contains(\"note\") && !j.at(\"note\").is_null())\n"+
		"\t\t\to.note = j.at(\"note\").get<decltype(o.note)::value_type>();\n"+
		"\t\telse\n"+
		"\t\t\to.note.reset();\n")
	assert.Contains(t, out, "\t\tif (o.note.has_value())\n\t\t\tj[\"note\"] = *o.note;\n")
}

func TestPlanUnsupportedFields(t *testing.T) {
	t.Parallel()

	td := typeDesc("u.hpp", 1, []string{"app"}, "U",
		[2]string{"ok", "int"},
		[2]string{"ptr", "int*"},
		[2]string{"ref", "int&"},
		[2]string{"fixed", "const int"},
		[2]string{"view", "std::string_view"},
		[2]string{"other", "Unknown"},
		[2]string{"gone", ""},
		[2]string{"hidden", "int"},
	)
	td.Fields[7].Access = model.Private

	units, diags := Plan([]model.TypeDescriptor{td}, DefaultOptions())
	require.Len(t, diags, 7)
	for _, d := range diags {
		var ufe *diag.UnsupportedFieldTypeError
		require.ErrorAs(t, d, &ufe)
		assert.Equal(t, "app::U", ufe.Type)
		assert.Equal(t, "u.hpp", ufe.File)
		assert.NotEmpty(t, ufe.Reason)
	}

	fields := units[0].Types[0].Fields
	require.Len(t, fields, 8)
	assert.NotNil(t, fields[0].Encoding)
	assert.Empty(t, fields[0].Skipped)
	for _, f := range fields[1:] {
		assert.Nil(t, f.Encoding, f.Name)
		assert.NotEmpty(t, f.Skipped, f.Name)
	}

	src, err := Render(units[0])
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(src), `// field "ptr" skipped: pointers are not serialized`))
	assert.NotContains(t, string(src), "o.ptr")

	// private members are encodable once access is not enforced
	opts := DefaultOptions()
	opts.PublicOnly = false
	_, diags = Plan([]model.TypeDescriptor{td}, opts)
	assert.Len(t, diags, 6)
}

func TestPlanForwardDeclarations(t *testing.T) {
	t.Parallel()

	types := []model.TypeDescriptor{
		typeDesc("a.hpp", 1, []string{"app"}, "A",
			[2]string{"b", "B"},
			[2]string{"cs", "std::vector<C>"},
			[2]string{"self", "std::vector<A>"},
		),
		typeDesc("a.hpp", 9, []string{"app"}, "C", [2]string{"v", "int"}),
		typeDesc("b.hpp", 1, []string{"app"}, "B", [2]string{"a", "std::optional<app::A>"}),
	}
	units, diags := Plan(types, DefaultOptions())
	require.Empty(t, diags)
	require.Len(t, units, 2)

	a, b := units[0], units[1]
	assert.Equal(t, []Forward{
		{Scope: []string{"app"}, Name: "B"},
		{Scope: []string{"app"}, Name: "C"},
	}, a.Forward)
	require.Len(t, a.Dependencies, 1)
	assert.Equal(t, "b.hpp", a.Dependencies[0].Target)
	assert.Equal(t, []string{"app::B"}, a.Dependencies[0].Types)

	assert.Equal(t, []Forward{{Scope: []string{"app"}, Name: "A"}}, b.Forward)
	assert.Equal(t, [][]string{{"a.hpp", "b.hpp"}}, Cycles(units))

	src, err := Render(a)
	require.NoError(t, err)
	assert.Contains(t, string(src), "using json = nlohmann::json;\n\n"+
		"namespace app\n{\n"+
		"\tvoid from_json(const json & j, B & o);\n"+
		"\tvoid to_json(json & j, const B & o);\n"+
		"} // namespace app\n\n"+
		"namespace app\n{\n"+
		"\tvoid from_json(const json & j, C & o);\n")
}

func TestIncludeAndOutputNames(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.IncludeRoots = []string{"include", filepath.Join("include", "example")}

	units, _ := Plan([]model.TypeDescriptor{
		typeDesc(filepath.Join("include", "example", "x.hpp"), 1, nil, "X"),
		typeDesc(filepath.Join("include", "example", "x.cpp"), 1, nil, "Y"),
		typeDesc(filepath.Join("src", "z.h"), 1, nil, "Z"),
	}, opts)
	require.Len(t, units, 3)

	assert.Equal(t, "x.cpp", units[0].Include)
	assert.Equal(t, "serialize_x.cpp", units[0].Output)
	assert.Equal(t, "x.hpp", units[1].Include)
	assert.Equal(t, "serialize_x_hpp.cpp", units[1].Output)
	assert.Equal(t, "src/z.h", units[2].Include)
	assert.Equal(t, "src/serialize_z.cpp", units[2].Output)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	known := map[string]struct{}{
		"app::Point":        {},
		"app::Outer::Inner": {},
		"Global":            {},
	}
	owner := model.QualifiedName{"app", "Outer"}

	cases := []struct {
		declared string
		kind     Kind
		family   Family
		ref      string
		err      string
	}{
		{declared: "int", kind: Scalar, family: Signed},
		{declared: "unsigned  long long", kind: Scalar, family: Unsigned},
		{declared: "std::uint8_t", kind: Scalar, family: Unsigned},
		{declared: "size_t", kind: Scalar, family: Unsigned},
		{declared: "long double", kind: Scalar, family: Float},
		{declared: "bool", kind: Scalar, family: Bool},
		{declared: "std::string", kind: String},
		{declared: "std::vector< int >", kind: Sequence},
		{declared: "std::array<double, 3>", kind: Sequence},
		{declared: "float[4]", kind: Sequence},
		{declared: "std::map<std::string, std::vector<Point>>", kind: Mapping},
		{declared: "std::optional<Inner>", kind: Optional},
		{declared: "Point", kind: Record, ref: "app::Point"},
		{declared: "Inner", kind: Record, ref: "app::Outer::Inner"},
		{declared: "::Global", kind: Record, ref: "Global"},
		{declared: "Global", kind: Record, ref: "Global"},
		{declared: "::Point", err: "not a serializable type"},
		{declared: "std::map<int, int>", err: "std::string map keys"},
		{declared: "std::shared_ptr<Point>", err: "template std::shared_ptr"},
		{declared: "std::optional<std::optional<int>>", err: "nested optionals"},
		{declared: "std::vector<int*>", err: "pointers"},
		{declared: "int[]", err: "unknown bound"},
		{declared: "const char*", err: "qualified"},
		{declared: "", err: "declaration not found"},
	}

	for _, tc := range cases {
		t.Run(tc.declared, func(t *testing.T) {
			ft, err := Classify(tc.declared, owner, known)
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, ft.Kind)
			assert.Equal(t, tc.family, ft.Family)
			assert.Equal(t, tc.ref, ft.Ref)
		})
	}
}

func TestClassifyNested(t *testing.T) {
	t.Parallel()

	ft, err := Classify("double[2][3]", nil, nil)
	require.NoError(t, err)
	require.Equal(t, Sequence, ft.Kind)
	require.NotNil(t, ft.Elem)
	assert.Equal(t, "double[3]", ft.Elem.Spelling)
	assert.Equal(t, Sequence, ft.Elem.Kind)
	assert.Equal(t, Float, ft.Elem.Elem.Family)

	ft, err = Classify("std::map<std::string,std::vector<app::Point>>", nil, map[string]struct{}{"app::Point": {}})
	require.NoError(t, err)
	assert.Equal(t, []string{"app::Point"}, ft.Refs())
}

func TestBindingRoundTrip(t *testing.T) {
	t.Parallel()

	types := []model.TypeDescriptor{
		typeDesc("shape.hpp", 1, []string{"app"}, "Point",
			[2]string{"x", "int32_t"},
			[2]string{"y", "int32_t"},
		),
		typeDesc("shape.hpp", 5, []string{"app"}, "Shape",
			[2]string{"name", "std::string"},
			[2]string{"points", "std::vector<Point>"},
			[2]string{"weights", "std::map<std::string, double>"},
			[2]string{"label", "std::optional<std::string>"},
			[2]string{"missing", "std::optional<int>"},
			[2]string{"closed", "bool"},
			[2]string{"id", "uint64_t"},
			[2]string{"grid", "int[2][2]"},
			[2]string{"origin", "std::optional<Point>"},
			[2]string{"raw", "void*"},
		),
	}
	units, diags := Plan(types, DefaultOptions())
	require.Len(t, diags, 1, "only the pointer is unsupported")
	bindings := NewBindings(units)

	in := map[string]any{
		"name": "tri: angle",
		"points": []any{
			map[string]any{"x": int64(1), "y": int64(-2)},
			map[string]any{"x": int64(math.MaxInt32), "y": int64(0)},
		},
		"weights": map[string]any{"a": 0.5, "true": 1.25, "": -3.5},
		"label":   "123",
		"missing": nil,
		"closed":  true,
		"id":      uint64(math.MaxUint64),
		"grid":    []any{[]any{int64(1), int64(2)}, []any{int64(3), int64(4)}},
		"origin":  map[string]any{"x": int64(7), "y": int64(8)},
	}

	shape := bindings["app::Shape"]
	require.NotNil(t, shape)

	node, err := shape.Encode(in)
	require.NoError(t, err)

	var keys []string
	for i := 0; i < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	assert.Equal(t, []string{"name", "points", "weights", "label", "closed", "id", "grid", "origin"}, keys,
		"keys follow declared order and the empty optional is omitted")

	text, err := yaml.Marshal(node)
	require.NoError(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(text, &doc))

	out, err := shape.Decode(&doc)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-in +out):\n%s\nencoded:\n%s", diff, text)
	}
}

func TestBindingErrors(t *testing.T) {
	t.Parallel()

	units, _ := Plan([]model.TypeDescriptor{
		typeDesc("p.hpp", 1, nil, "P", [2]string{"n", "unsigned int"}, [2]string{"s", "std::string"}),
	}, DefaultOptions())
	p := NewBindings(units)["P"]
	require.NotNil(t, p)

	_, err := p.Encode(map[string]any{"s": "x"})
	assert.ErrorContains(t, err, `missing field "n"`)

	_, err = p.Encode(map[string]any{"n": int64(-1), "s": "x"})
	assert.ErrorContains(t, err, "expected unsigned integer")

	_, err = p.Decode(&yaml.Node{Kind: yaml.SequenceNode})
	assert.ErrorContains(t, err, "expected an object")

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("n: 1\nextra: true\n"), &doc))
	_, err = p.Decode(&doc)
	assert.ErrorContains(t, err, `missing key "s"`)
}

func TestExport(t *testing.T) {
	t.Parallel()

	units, _ := Plan(exampleTypes(), DefaultOptions())
	data, err := Export(units[0])
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `"source": "example/example.hpp"`)
	assert.Contains(t, out, `"qualified": "ns1::ns2::A"`)
	assert.Contains(t, out, `"declared_type": "float"`)
	assert.Contains(t, out, `"family": "float"`)
	assert.NotContains(t, out, "ModelOutput")
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestIsGenerated(t *testing.T) {
	t.Parallel()

	units, _ := Plan(exampleTypes(), DefaultOptions())
	rendered, err := Render(units[0])
	require.NoError(t, err)
	exported, err := Export(units[0])
	require.NoError(t, err)

	assert.True(t, IsGenerated(rendered))
	assert.True(t, IsGenerated(exported))
	assert.False(t, IsGenerated([]byte("int extra;\n")))
	assert.False(t, IsGenerated([]byte(`{"source": "a.hpp"}`)))
	assert.False(t, IsGenerated(nil))
}
