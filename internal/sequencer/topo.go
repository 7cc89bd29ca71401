package sequencer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/icpac-igad/arco-ibf/internal/service"
)

// CycleError means the dependency relation is not a DAG. Detected before
// any process is spawned; a partial spawn followed by a deadlock would be
// strictly worse.
type CycleError struct {
	Services []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving services: %s", strings.Join(e.Services, ", "))
}

// UnknownDependencyError means a dependsOn entry references no declared
// service.
type UnknownDependencyError struct {
	Service    string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("service %q depends on unknown service %q", e.Service, e.Dependency)
}

// Order returns defs in an order consistent with dependsOn, with
// declaration order breaking ties (Kahn's algorithm, stable). Duplicate
// names, unknown references, and cycles are reported as errors.
func Order(defs []service.Definition) ([]service.Definition, error) {
	byName := make(map[string]int, len(defs))
	for i, d := range defs {
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", d.Name)
		}
		byName[d.Name] = i
	}

	indeg := make([]int, len(defs))
	dependents := make(map[int][]int, len(defs))
	for i, d := range defs {
		for _, dep := range d.DependsOn {
			j, ok := byName[dep]
			if !ok {
				return nil, &UnknownDependencyError{Service: d.Name, Dependency: dep}
			}
			indeg[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// ready set kept sorted by declaration index for stable output
	ready := make([]int, 0, len(defs))
	for i := range defs {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]service.Definition, 0, len(defs))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		out = append(out, defs[i])
		for _, dep := range dependents[i] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(out) != len(defs) {
		var cyc []string
		for i, d := range defs {
			if indeg[i] > 0 {
				cyc = append(cyc, d.Name)
			}
		}
		return nil, &CycleError{Services: cyc}
	}
	return out, nil
}
