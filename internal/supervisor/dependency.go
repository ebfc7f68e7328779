package supervisor

import (
	"fmt"
	"sort"
)

// checkAcyclic verifies that dependsOn — edges from a plugin name to the
// plugins it requires — contains no cycle, using Kahn's algorithm:
// repeatedly remove nodes with in-degree zero; if nodes remain once no
// more can be removed, they form at least one cycle.
//
// spec.md §9 flags the original implementation's cycle detection as an
// iteration-count fallback and asks for a proper DAG check instead; this
// replaces it and runs once at discovery time, not per start batch.
func checkAcyclic(dependsOn map[string][]string) error {
	inDegree := make(map[string]int, len(dependsOn))
	dependents := make(map[string][]string, len(dependsOn))

	for name := range dependsOn {
		if _, ok := inDegree[name]; !ok {
			inDegree[name] = 0
		}
	}
	for name, deps := range dependsOn {
		for _, dep := range deps {
			if _, known := dependsOn[dep]; !known {
				// Dependency outside the checked set: resolved elsewhere,
				// not part of this graph's cycle analysis.
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	queue := make([]string, 0, len(inDegree))
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if visited == len(inDegree) {
		return nil
	}

	var remaining []string
	for name, degree := range inDegree {
		if degree > 0 {
			remaining = append(remaining, name)
		}
	}
	return fmt.Errorf("dependency cycle among plugins: %v", remaining)
}

// orderByPriority sorts names by ascending start_priority, the tie-break
// spec.md §4.4 specifies for dependency-ordered startup.
func orderByPriority(names []string, manifests map[string]Manifest) []string {
	out := make([]string, len(names))
	copy(out, names)
	priority := func(name string) int32 {
		if m, ok := manifests[name]; ok {
			return m.StartPriority
		}
		return 999
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priority(out[i]) < priority(out[j])
	})
	return out
}
