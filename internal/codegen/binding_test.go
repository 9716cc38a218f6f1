package codegen

import (
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

// Binding evaluates the encoding a generated unit performs for one type,
// on generic values: records are map[string]any, sequences []any,
// integers int64 or uint64, floats float64. Encode yields the keyed
// record as a YAML node (a JSON superset), Decode reads it back. Skipped
// fields take no part in either direction, as in the generated code.
type Binding struct {
	Type   string
	Fields []BoundField
	set    Bindings
}

// BoundField is one encodable field of a Binding.
type BoundField struct {
	Name string
	Type FieldType
}

// Bindings indexes the bindings of a run by qualified type name, so that
// record fields can be followed into the type they refer to.
type Bindings map[string]*Binding

// NewBindings collects the bindings of every type of the planned units.
func NewBindings(units []*Unit) Bindings {
	set := make(Bindings)
	for _, u := range units {
		for _, t := range u.Types {
			b := &Binding{Type: t.Qualified, set: set}
			for _, f := range t.Fields {
				if f.Skipped != "" {
					continue
				}
				b.Fields = append(b.Fields, BoundField{Name: f.Name, Type: *f.Encoding})
			}
			set[t.Qualified] = b
		}
	}
	return set
}

// Encode produces the keyed record for v, with keys in declared field
// order. An optional field whose value is nil or absent is omitted.
func (b *Binding) Encode(v map[string]any) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range b.Fields {
		val, ok := v[f.Name]
		if f.Type.Kind == Optional && (!ok || val == nil) {
			continue
		}
		if !ok {
			return nil, fmt.Errorf("%s: missing field %q", b.Type, f.Name)
		}
		elem, err := b.encode(f.Type, val)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", b.Type, f.Name, err)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name}
		node.Content = append(node.Content, key, elem)
	}
	return node, nil
}

func (b *Binding) encode(t FieldType, val any) (*yaml.Node, error) {
	switch t.Kind {
	case Scalar:
		return encodeScalar(t.Family, val)
	case String:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", val)
		}
		return scalarNode(s)
	case Sequence:
		items, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("expected []any, got %T", val)
		}
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for i, item := range items {
			elem, err := b.encode(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			node.Content = append(node.Content, elem)
		}
		return node, nil
	case Mapping:
		m, ok := val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected map[string]any, got %T", val)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range keys {
			elem, err := b.encode(*t.Elem, m[k])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, elem)
		}
		return node, nil
	case Optional:
		if val == nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
		}
		return b.encode(*t.Elem, val)
	case Record:
		m, ok := val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected map[string]any, got %T", val)
		}
		ref, err := b.lookup(t.Ref)
		if err != nil {
			return nil, err
		}
		return ref.Encode(m)
	}
	return nil, fmt.Errorf("unknown kind %q", t.Kind)
}

// Decode reads a keyed record back. Keys not bound to a field are
// ignored; a missing optional field decodes as nil.
func (b *Binding) Decode(node *yaml.Node) (map[string]any, error) {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: expected an object at line %d", b.Type, node.Line)
	}
	values := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		values[node.Content[i].Value] = node.Content[i+1]
	}

	out := make(map[string]any, len(b.Fields))
	for _, f := range b.Fields {
		n, ok := values[f.Name]
		if !ok {
			if f.Type.Kind == Optional {
				out[f.Name] = nil
				continue
			}
			return nil, fmt.Errorf("%s: missing key %q", b.Type, f.Name)
		}
		v, err := b.decode(f.Type, n)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", b.Type, f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func (b *Binding) decode(t FieldType, n *yaml.Node) (any, error) {
	switch t.Kind {
	case Scalar:
		return decodeScalar(t.Family, n)
	case String:
		var s string
		if err := n.Decode(&s); err != nil {
			return nil, err
		}
		return s, nil
	case Sequence:
		if n.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("expected an array at line %d", n.Line)
		}
		items := make([]any, 0, len(n.Content))
		for i, c := range n.Content {
			v, err := b.decode(*t.Elem, c)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, v)
		}
		return items, nil
	case Mapping:
		if n.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("expected an object at line %d", n.Line)
		}
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := b.decode(*t.Elem, n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", n.Content[i].Value, err)
			}
			m[n.Content[i].Value] = v
		}
		return m, nil
	case Optional:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return b.decode(*t.Elem, n)
	case Record:
		ref, err := b.lookup(t.Ref)
		if err != nil {
			return nil, err
		}
		return ref.Decode(n)
	}
	return nil, fmt.Errorf("unknown kind %q", t.Kind)
}

func (b *Binding) lookup(name string) (*Binding, error) {
	ref, ok := b.set[name]
	if !ok {
		return nil, fmt.Errorf("no binding for %s", name)
	}
	return ref, nil
}

func scalarNode(v any) (*yaml.Node, error) {
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

func encodeScalar(f Family, val any) (*yaml.Node, error) {
	switch f {
	case Bool:
		v, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", val)
		}
		return scalarNode(v)
	case Signed:
		v, ok := toInt64(val)
		if !ok {
			return nil, fmt.Errorf("expected signed integer, got %T", val)
		}
		return scalarNode(v)
	case Unsigned:
		v, ok := toUint64(val)
		if !ok {
			return nil, fmt.Errorf("expected unsigned integer, got %T", val)
		}
		return scalarNode(v)
	case Float:
		v, ok := val.(float64)
		if !ok {
			if f32, is32 := val.(float32); is32 {
				v, ok = float64(f32), true
			}
		}
		if !ok {
			return nil, fmt.Errorf("expected float, got %T", val)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			// nlohmann::json writes non-finite numbers as null
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
		}
		return scalarNode(v)
	}
	return nil, fmt.Errorf("unknown scalar family %q", f)
}

func decodeScalar(f Family, n *yaml.Node) (any, error) {
	switch f {
	case Bool:
		var v bool
		err := n.Decode(&v)
		return v, err
	case Signed:
		var v int64
		err := n.Decode(&v)
		return v, err
	case Unsigned:
		var v uint64
		err := n.Decode(&v)
		return v, err
	case Float:
		var v float64
		err := n.Decode(&v)
		return v, err
	}
	return nil, fmt.Errorf("unknown scalar family %q", f)
}

func toInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func toUint64(val any) (uint64, bool) {
	switch v := val.(type) {
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case int:
		if v >= 0 {
			return uint64(v), true
		}
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}
