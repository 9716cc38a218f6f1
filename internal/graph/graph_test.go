package graph

import (
	"testing"
)

func TestBuildGraph(t *testing.T) {
	t.Parallel()

	units := []Unit{
		{Path: "a.hpp", Defines: []string{"app::A"}, Uses: []string{"app::B", "app::C", "app::A"}},
		{Path: "b.hpp", Defines: []string{"app::B"}},
		{Path: "c.hpp", Defines: []string{"app::C"}, Uses: []string{"app::B", "app::B"}},
	}

	deps := BuildGraph(units)
	if len(deps) != 3 {
		t.Fatalf("expected 3 edges, got %d: %+v", len(deps), deps)
	}

	want := []Dependency{
		{Source: "a.hpp", Target: "b.hpp", Types: []string{"app::B"}},
		{Source: "a.hpp", Target: "c.hpp", Types: []string{"app::C"}},
		{Source: "c.hpp", Target: "b.hpp", Types: []string{"app::B"}},
	}
	for i, w := range want {
		d := deps[i]
		if d.Source != w.Source || d.Target != w.Target {
			t.Errorf("edge %d = %s -> %s, want %s -> %s", i, d.Source, d.Target, w.Source, w.Target)
		}
		if len(d.Types) != 1 || d.Types[0] != w.Types[0] {
			t.Errorf("edge %d types = %v, want %v", i, d.Types, w.Types)
		}
	}
}

func TestBuildGraphSkipsUnknown(t *testing.T) {
	t.Parallel()

	units := []Unit{
		{Path: "a.hpp", Defines: []string{"A"}, Uses: []string{"Missing"}},
	}
	if deps := BuildGraph(units); deps != nil {
		t.Errorf("expected nil, got %+v", deps)
	}
}

func TestBuildGraphTypesSorted(t *testing.T) {
	t.Parallel()

	units := []Unit{
		{Path: "a.hpp", Uses: []string{"Z", "M"}},
		{Path: "b.hpp", Defines: []string{"M", "Z"}},
	}
	deps := BuildGraph(units)
	if len(deps) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(deps))
	}
	if got := deps[0].Types; len(got) != 2 || got[0] != "M" || got[1] != "Z" {
		t.Errorf("types = %v, want [M Z]", got)
	}
}

func TestFrom(t *testing.T) {
	t.Parallel()

	deps := []Dependency{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "a", Target: "c"},
	}
	out := From(deps, "a")
	if len(out) != 2 || out[0].Target != "b" || out[1].Target != "c" {
		t.Errorf("From(a) = %+v", out)
	}
	if out := From(deps, "c"); out != nil {
		t.Errorf("From(c) = %+v, want nil", out)
	}
}

func TestCycles(t *testing.T) {
	t.Parallel()

	deps := []Dependency{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "a"},
		{Source: "b", Target: "c"},
		{Source: "d", Target: "e"},
		{Source: "e", Target: "f"},
		{Source: "f", Target: "d"},
	}

	cycles := Cycles(deps)
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %v", cycles)
	}
	if got := cycles[0]; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("cycle 0 = %v", got)
	}
	if got := cycles[1]; len(got) != 3 || got[0] != "d" || got[2] != "f" {
		t.Errorf("cycle 1 = %v", got)
	}
}

func TestCyclesAcyclic(t *testing.T) {
	t.Parallel()

	if cycles := Cycles([]Dependency{{Source: "a", Target: "b"}}); cycles != nil {
		t.Errorf("expected nil, got %v", cycles)
	}
	if cycles := Cycles(nil); cycles != nil {
		t.Errorf("expected nil, got %v", cycles)
	}
}
