package sequencer

import (
	"errors"
	"testing"

	"github.com/icpac-igad/arco-ibf/internal/service"
)

func defsNamed(pairs ...[2]string) []service.Definition {
	out := make([]service.Definition, 0, len(pairs))
	for _, p := range pairs {
		d := service.Definition{Name: p[0], Command: "true"}
		if p[1] != "" {
			d.DependsOn = []string{p[1]}
		}
		out = append(out, d)
	}
	return out
}

func names(defs []service.Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func assertOrder(t *testing.T, got []service.Definition, want ...string) {
	t.Helper()
	gn := names(got)
	if len(gn) != len(want) {
		t.Fatalf("order = %v, want %v", gn, want)
	}
	for i := range want {
		if gn[i] != want[i] {
			t.Fatalf("order = %v, want %v", gn, want)
		}
	}
}

func TestOrderLinearChain(t *testing.T) {
	got, err := Order(defsNamed(
		[2]string{"proxy", "api"},
		[2]string{"api", "db"},
		[2]string{"db", ""},
	))
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	assertOrder(t, got, "db", "api", "proxy")
}

func TestOrderPreservesDeclarationOrderForIndependents(t *testing.T) {
	got, err := Order(defsNamed(
		[2]string{"c", ""},
		[2]string{"a", ""},
		[2]string{"b", ""},
	))
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	assertOrder(t, got, "c", "a", "b")
}

func TestOrderDiamond(t *testing.T) {
	defs := []service.Definition{
		{Name: "web", Command: "true", DependsOn: []string{"api", "worker"}},
		{Name: "api", Command: "true", DependsOn: []string{"db"}},
		{Name: "worker", Command: "true", DependsOn: []string{"db"}},
		{Name: "db", Command: "true"},
	}
	got, err := Order(defs)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	assertOrder(t, got, "db", "api", "worker", "web")
}

func TestOrderCycle(t *testing.T) {
	_, err := Order(defsNamed(
		[2]string{"a", "b"},
		[2]string{"b", "a"},
	))
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("want CycleError, got %v", err)
	}
	if len(ce.Services) != 2 {
		t.Fatalf("cycle members = %v", ce.Services)
	}
}

func TestOrderSelfCycleViaChain(t *testing.T) {
	_, err := Order(defsNamed(
		[2]string{"a", "b"},
		[2]string{"b", "c"},
		[2]string{"c", "a"},
		[2]string{"lone", ""},
	))
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("want CycleError, got %v", err)
	}
}

func TestOrderUnknownDependency(t *testing.T) {
	_, err := Order(defsNamed([2]string{"web", "missing"}))
	var ue *UnknownDependencyError
	if !errors.As(err, &ue) {
		t.Fatalf("want UnknownDependencyError, got %v", err)
	}
	if ue.Service != "web" || ue.Dependency != "missing" {
		t.Fatalf("error fields: %+v", ue)
	}
}

func TestOrderDuplicateName(t *testing.T) {
	_, err := Order(defsNamed(
		[2]string{"x", ""},
		[2]string{"x", ""},
	))
	if err == nil {
		t.Fatal("want error for duplicate name")
	}
}

func TestOrderEmpty(t *testing.T) {
	got, err := Order(nil)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}
