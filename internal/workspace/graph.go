// Package workspace implements the Workspace Scanner: it
// discovers packages in a producer repository, parses their manifests, and
// builds the intra-producer dependency graph.
package workspace

import (
	"path/filepath"
	"sort"

	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pkgerrors"
)

// Package is a producer-side workspace member.
type Package struct {
	Name    string
	Dir     string // absolute path
	Version string
	// Deps are in-workspace dependency names only (declared deps pointing
	// outside the workspace are external and not part of the graph).
	Deps []string
	// DevDeps mirrors Deps but for devDependencies.
	DevDeps []string
	// Section records, for each in-workspace dependency name, whether it
	// was declared under "dependencies" or "devDependencies" — the
	// Package-Manager Adapter needs this to rewrite the right section.
	Section map[string]string // depName -> "dependencies" | "devDependencies"

	rawDeps    map[string]string
	rawDevDeps map[string]string
}

// Graph is the producer's dependency graph, indexed by package name.
// Adjacency maps keyed by name are used instead of pointer-chasing so
// topological traversal and closure computation don't need to reason about
// ownership.
type Graph struct {
	Packages map[string]*Package
	order    []string // topological order, dependency-first; see topoSort for how it is chosen
	// forward[p] = packages p depends on; reverse[p] = packages that depend on p.
	forward map[string][]string
	reverse map[string][]string
}

// TopoOrder returns packages in dependency-first topological order.
func (g *Graph) TopoOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Ancestors returns every package that (transitively) depends on name.
func (g *Graph) Ancestors(name string) []string {
	return g.reachable(name, g.reverse)
}

// Descendants returns every package name (transitively) depends on.
func (g *Graph) Descendants(name string) []string {
	return g.reachable(name, g.forward)
}

// Closure returns ancestors(name) ∪ {name} ∪ descendants(name).
func (g *Graph) Closure(name string) ([]string, error) {
	if _, ok := g.Packages[name]; !ok {
		return nil, pkgerrors.New(pkgerrors.UnknownPackage, name, nil)
	}
	set := map[string]bool{name: true}
	for _, a := range g.Ancestors(name) {
		set[a] = true
	}
	for _, d := range g.Descendants(name) {
		set[d] = true
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (g *Graph) reachable(start string, adj map[string][]string) []string {
	seen := map[string]bool{}
	var stack []string
	stack = append(stack, adj[start]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, adj[n]...)
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Scan discovers packages under root using discoveryGlobs (e.g.
// "packages/*") and builds the dependency graph.
func Scan(root string, discoveryGlobs []string) (*Graph, error) {
	var dirs []string
	for _, pattern := range discoveryGlobs {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.InvalidWorkspace, pattern, err)
		}
		dirs = append(dirs, matches...)
	}
	sort.Strings(dirs)

	packages := make(map[string]*Package)
	for _, dir := range dirs {
		manifestPath := filepath.Join(dir, "package.json")
		mf, err := readManifest(manifestPath)
		if err != nil {
			log.Debug(log.CatWorkspace, "skipping directory without manifest", "dir", dir, "error", err)
			continue
		}
		if _, dup := packages[mf.Name]; dup {
			return nil, pkgerrors.Newf(pkgerrors.InvalidWorkspace, mf.Name, "duplicate package name declared in %s", dir)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.InvalidWorkspace, dir, err)
		}
		packages[mf.Name] = &Package{
			Name:    mf.Name,
			Dir:     abs,
			Version: mf.Version,
			Section: make(map[string]string),
		}
		// Deps/Section are resolved in a second pass once every package
		// name in the workspace is known, so external deps can be told
		// apart from in-workspace ones.
		packages[mf.Name].rawDeps = mf.Dependencies
		packages[mf.Name].rawDevDeps = mf.DevDependencies
	}

	names := make(map[string]bool, len(packages))
	for n := range packages {
		names[n] = true
	}

	forward := make(map[string][]string)
	reverse := make(map[string][]string)
	for name, pkg := range packages {
		for dep := range pkg.rawDeps {
			if names[dep] {
				pkg.Deps = append(pkg.Deps, dep)
				pkg.Section[dep] = "dependencies"
				forward[name] = append(forward[name], dep)
				reverse[dep] = append(reverse[dep], name)
			}
		}
		for dep := range pkg.rawDevDeps {
			if names[dep] {
				pkg.DevDeps = append(pkg.DevDeps, dep)
				pkg.Section[dep] = "devDependencies"
				forward[name] = append(forward[name], dep)
				reverse[dep] = append(reverse[dep], name)
			}
		}
		sort.Strings(pkg.Deps)
		sort.Strings(pkg.DevDeps)
		sort.Strings(forward[name])
		sort.Strings(reverse[name])
	}

	order, err := topoSort(names, forward)
	if err != nil {
		return nil, err
	}

	g := &Graph{Packages: packages, order: order, forward: forward, reverse: reverse}
	log.Info(log.CatWorkspace, "scan complete", "root", root, "packages", len(packages))
	return g, nil
}

// topoSort returns a dependency-first order (deps before dependents) as the
// post-order of a depth-first walk that starts from each package in name
// order and visits each package's deps in name order. The result is
// deterministic, but ties among simultaneously-ready packages are not broken
// by name: with "a" depending on "c" and "b" standing alone, the order is
// c, a, b rather than b, c, a.
func topoSort(names map[string]bool, forward map[string][]string) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(names))
	var order []string
	var path []string

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var visit func(string) error
	visit = func(n string) error {
		switch color[n] {
		case black:
			return nil
		case gray:
			return pkgerrors.Newf(pkgerrors.InvalidWorkspace, n, "dependency cycle: %v", append(append([]string{}, path...), n))
		}
		color[n] = gray
		path = append(path, n)

		deps := append([]string(nil), forward[n]...)
		sort.Strings(deps)
		for _, d := range deps {
			if err := visit(d); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		color[n] = black
		order = append(order, n)
		return nil
	}

	for _, n := range sorted {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}
