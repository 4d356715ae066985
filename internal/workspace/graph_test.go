package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func writeManifestFile(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0644))
}

func TestScan_BuildsGraphAndTopoOrder(t *testing.T) {
	root := t.TempDir()
	writeManifestFile(t, filepath.Join(root, "packages", "a"), `{"name":"a","version":"1.0.0","dependencies":{"b":"workspace:*"}}`)
	writeManifestFile(t, filepath.Join(root, "packages", "b"), `{"name":"b","version":"1.0.0","dependencies":{"left-pad":"^1.0.0"}}`)

	g, err := Scan(root, []string{"packages/*"})
	require.NoError(t, err)
	require.Len(t, g.Packages, 2)
	require.Equal(t, []string{"b", "a"}, g.TopoOrder(), "deps must come before dependents")
	require.Equal(t, []string{"b"}, g.Packages["a"].Deps)
	require.Empty(t, g.Packages["b"].Deps, "left-pad is external, not a workspace member")
}

func TestScan_DetectsCycle(t *testing.T) {
	root := t.TempDir()
	writeManifestFile(t, filepath.Join(root, "packages", "a"), `{"name":"a","version":"1.0.0","dependencies":{"b":"workspace:*"}}`)
	writeManifestFile(t, filepath.Join(root, "packages", "b"), `{"name":"b","version":"1.0.0","dependencies":{"a":"workspace:*"}}`)

	_, err := Scan(root, []string{"packages/*"})
	require.Error(t, err)
}

func TestScan_DuplicateNameRejected(t *testing.T) {
	root := t.TempDir()
	writeManifestFile(t, filepath.Join(root, "packages", "a1"), `{"name":"a","version":"1.0.0"}`)
	writeManifestFile(t, filepath.Join(root, "packages", "a2"), `{"name":"a","version":"2.0.0"}`)

	_, err := Scan(root, []string{"packages/*"})
	require.Error(t, err)
}

func TestClosure_UnknownPackage(t *testing.T) {
	g := &Graph{Packages: map[string]*Package{}, forward: map[string][]string{}, reverse: map[string][]string{}}
	_, err := g.Closure("nope")
	require.Error(t, err)
}

// buildGraph builds a Graph over n nodes named pkg0..pkg<n-1> from the given
// (from, to) index edges. The property tests below only draw edges pointing
// from a higher index to a lower one, so the graph can never cycle.
func buildGraph(n int, edges [][2]int) *Graph {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("pkg%d", i)
	}
	nameSet := make(map[string]bool, n)
	for _, name := range names {
		nameSet[name] = true
	}
	forward := make(map[string][]string)
	reverse := make(map[string][]string)
	for _, e := range edges {
		from, to := names[e[0]], names[e[1]]
		forward[from] = append(forward[from], to)
		reverse[to] = append(reverse[to], from)
	}
	for _, name := range names {
		sort.Strings(forward[name])
		sort.Strings(reverse[name])
	}
	order, err := topoSort(nameSet, forward)
	if err != nil {
		panic(err) // construction guarantees acyclicity
	}
	packages := make(map[string]*Package, n)
	for _, name := range names {
		packages[name] = &Package{Name: name}
	}
	return &Graph{Packages: packages, order: order, forward: forward, reverse: reverse}
}

// TestTopoOrder_RespectsEdges_Property checks, over many random acyclic
// graphs, that every forward edge u->v places v strictly before u in the
// computed topological order — the one invariant the whole publish
// pipeline's ordering guarantee (§5) rests on.
func TestTopoOrder_RespectsEdges_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		var edges [][2]int
		for from := 1; from < n; from++ {
			for to := 0; to < from; to++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", from, to)) {
					edges = append(edges, [2]int{from, to})
				}
			}
		}
		g := buildGraph(n, edges)
		order := g.TopoOrder()
		require.Len(t, order, n)

		pos := make(map[string]int, len(order))
		for i, name := range order {
			pos[name] = i
		}
		for _, e := range edges {
			from := fmt.Sprintf("pkg%d", e[0])
			to := fmt.Sprintf("pkg%d", e[1])
			require.Less(t, pos[to], pos[from], "dependency %s must precede dependent %s", to, from)
		}
	})
}

// TestClosure_ClosedUnderAdjacency_Property checks, for any random acyclic
// graph and any start node, that Closure(start) is ancestors ∪ {start} ∪
// descendants: every forward neighbor of start or of a descendant, and every
// reverse neighbor of start or of an ancestor, is itself a closure member.
// (A sibling that merely shares a dependency with start is not included.)
func TestClosure_ClosedUnderAdjacency_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		var edges [][2]int
		for from := 1; from < n; from++ {
			for to := 0; to < from; to++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", from, to)) {
					edges = append(edges, [2]int{from, to})
				}
			}
		}
		g := buildGraph(n, edges)
		start := fmt.Sprintf("pkg%d", rapid.IntRange(0, n-1).Draw(t, "start"))

		closure, err := g.Closure(start)
		require.NoError(t, err)
		members := make(map[string]bool, len(closure))
		for _, m := range closure {
			members[m] = true
		}
		require.True(t, members[start])

		descendants := make(map[string]bool)
		for _, d := range g.Descendants(start) {
			descendants[d] = true
		}
		ancestors := make(map[string]bool)
		for _, a := range g.Ancestors(start) {
			ancestors[a] = true
		}

		for _, m := range closure {
			require.True(t, m == start || descendants[m] || ancestors[m], "closure member %s is neither %s nor one of its ancestors/descendants", m, start)
			if m == start || descendants[m] {
				for _, neighbor := range g.forward[m] {
					require.True(t, members[neighbor], "descendant %s of closure member %s must be in the closure", neighbor, m)
				}
			}
			if m == start || ancestors[m] {
				for _, neighbor := range g.reverse[m] {
					require.True(t, members[neighbor], "ancestor %s of closure member %s must be in the closure", neighbor, m)
				}
			}
		}
	})
}
