// Package conceptgraph models the market theme hierarchy: a directed graph of
// concept names where edges point from a concept to its broader parent themes.
package conceptgraph

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Graph is the immutable concept hierarchy. It is built once at startup and
// rebuilt only on restart.
type Graph struct {
	parents     map[string][]string
	children    map[string][]string
	chains      map[string][]string
	descendants map[string]map[string]struct{}
}

// Load reads a {"concept": ["parent", ...]} JSON file and builds the graph.
func Load(path string) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "conceptgraph: read hierarchy file")
	}
	var parents map[string][]string
	if err := json.Unmarshal(raw, &parents); err != nil {
		return nil, eris.Wrap(err, "conceptgraph: unmarshal hierarchy")
	}
	return New(parents), nil
}

// New builds a graph from a concept→direct-parents map. Malformed input with
// cycles is tolerated: chain construction is visited-set safe and any cycle
// found is reported at warn level.
func New(parents map[string][]string) *Graph {
	g := &Graph{
		parents:     make(map[string][]string, len(parents)),
		children:    make(map[string][]string),
		chains:      make(map[string][]string, len(parents)),
		descendants: make(map[string]map[string]struct{}),
	}
	for name, ps := range parents {
		g.parents[name] = append([]string(nil), ps...)
	}

	// Reverse adjacency. Self-edges are dropped outright.
	for _, child := range sortedKeys(g.parents) {
		for _, parent := range g.parents[child] {
			if parent != child {
				g.children[parent] = append(g.children[parent], child)
			}
		}
	}

	for name := range g.parents {
		g.chains[name] = g.buildChain(name, map[string]bool{})
	}

	for _, name := range g.allConcepts() {
		g.collectDescendants(name, map[string]bool{})
	}

	if cycles := g.Cycles(); len(cycles) > 0 {
		for _, cycle := range cycles {
			zap.L().Warn("conceptgraph: hierarchy contains a cycle, traversal truncated",
				zap.Strings("cycle", cycle),
			)
		}
	}
	return g
}

// buildChain computes the ancestor chain depth-first: each direct parent is
// appended before that parent's own chain, so nearer ancestors always come
// first. Duplicates keep their first position; visited guards against cycles.
func (g *Graph) buildChain(name string, visited map[string]bool) []string {
	if visited[name] {
		return nil
	}
	visited[name] = true

	var chain, delayed []string
	for _, parent := range g.parents[name] {
		chain = append(chain, parent)
		delayed = append(delayed, g.buildChain(parent, visited)...)
	}
	chain = append(chain, delayed...)
	return dedup(chain)
}

func (g *Graph) collectDescendants(name string, visited map[string]bool) map[string]struct{} {
	if visited[name] {
		return g.descendants[name]
	}
	visited[name] = true

	if got, ok := g.descendants[name]; ok {
		return got
	}
	set := make(map[string]struct{})
	g.descendants[name] = set
	for _, child := range g.children[name] {
		set[child] = struct{}{}
		for grand := range g.collectDescendants(child, visited) {
			set[grand] = struct{}{}
		}
	}
	return set
}

func (g *Graph) allConcepts() []string {
	seen := make(map[string]bool, len(g.parents))
	var all []string
	for name := range g.parents {
		if !seen[name] {
			seen[name] = true
			all = append(all, name)
		}
	}
	for name := range g.children {
		if !seen[name] {
			seen[name] = true
			all = append(all, name)
		}
	}
	sort.Strings(all)
	return all
}

// AncestorChain returns the concept's ancestors ordered nearest-parent first,
// excluding the concept itself. The returned slice must not be mutated.
func (g *Graph) AncestorChain(name string) []string {
	return g.chains[name]
}

// DirectParents returns the concept's direct parents in load order.
func (g *Graph) DirectParents(name string) []string {
	return g.parents[name]
}

// Descendants returns the full transitive closure of the concept's children,
// sorted for deterministic iteration.
func (g *Graph) Descendants(name string) []string {
	set, ok := g.descendants[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// HasDescendant reports whether candidate is a (transitive) child of name.
func (g *Graph) HasDescendant(name, candidate string) bool {
	_, ok := g.descendants[name][candidate]
	return ok
}

// Related returns the union of a concept's ancestor chain and descendants,
// excluding the concept itself.
func (g *Graph) Related(name string) []string {
	_, inChains := g.chains[name]
	_, inDesc := g.descendants[name]
	if !inChains && !inDesc {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, a := range g.chains[name] {
		if a != name && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, d := range g.Descendants(name) {
		if d != name && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// IsAncestor reports whether parent appears anywhere in child's ancestor chain.
func (g *Graph) IsAncestor(parent, child string) bool {
	for _, a := range g.chains[child] {
		if a == parent {
			return true
		}
	}
	return false
}

// LowestCommonAncestor returns the nearest ancestor shared by every given
// concept (a concept counts as its own ancestor here). Among shared ancestors
// the one with the smallest maximum chain index wins; ok is false when the
// concepts share no ancestor at all.
func (g *Graph) LowestCommonAncestor(names []string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	lists := make([][]string, len(names))
	for i, name := range names {
		lists[i] = append([]string{name}, g.chains[name]...)
	}

	common := make(map[string]bool)
	for _, c := range lists[0] {
		common[c] = true
	}
	for _, list := range lists[1:] {
		next := make(map[string]bool)
		for _, c := range list {
			if common[c] {
				next[c] = true
			}
		}
		common = next
	}
	if len(common) == 0 {
		return "", false
	}

	// Scan candidates in first-list order so ties resolve deterministically.
	best := ""
	bestDepth := -1
	for _, candidate := range lists[0] {
		if !common[candidate] {
			continue
		}
		depth := 0
		for _, list := range lists {
			for i, c := range list {
				if c == candidate {
					if i > depth {
						depth = i
					}
					break
				}
			}
		}
		if bestDepth == -1 || depth < bestDepth {
			best = candidate
			bestDepth = depth
		}
	}
	return best, true
}

// Cycles returns every parent-edge cycle in the hierarchy, each as the list
// of concepts along the cycle. An empty result means the input is a DAG.
func (g *Graph) Cycles() [][]string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int)
	var cycles [][]string
	var stack []string

	var visit func(name string)
	visit = func(name string) {
		color[name] = grey
		stack = append(stack, name)
		for _, parent := range g.parents[name] {
			switch color[parent] {
			case white:
				visit(parent)
			case grey:
				// Back edge: slice the stack from the first occurrence.
				for i, n := range stack {
					if n == parent {
						cycle := append([]string(nil), stack[i:]...)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
	}

	for _, name := range g.allConcepts() {
		if color[name] == white {
			visit(name)
		}
	}
	return cycles
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
