package supervisor

import "testing"

func TestCheckAcyclicAcceptsValidGraph(t *testing.T) {
	graph := map[string][]string{
		"a": {},
		"b": {"a"},
		"c": {"a", "b"},
	}
	if err := checkAcyclic(graph); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCheckAcyclicDetectsCycle(t *testing.T) {
	graph := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	if err := checkAcyclic(graph); err == nil {
		t.Fatal("expected cycle error, got nil")
	}
}

func TestCheckAcyclicIgnoresDependencyOutsideSet(t *testing.T) {
	graph := map[string][]string{
		"a": {"external-plugin-not-in-batch"},
	}
	if err := checkAcyclic(graph); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestOrderByPriority(t *testing.T) {
	manifests := map[string]Manifest{
		"low":  {StartPriority: 10},
		"high": {StartPriority: 100},
		"mid":  {StartPriority: 50},
	}
	ordered := orderByPriority([]string{"high", "low", "mid"}, manifests)
	want := []string{"low", "mid", "high"}
	for i, name := range want {
		if ordered[i] != name {
			t.Fatalf("ordered = %v, want %v", ordered, want)
		}
	}
}
