package jobgraph

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects nodes for display.
//
// Types switches whole job types off; a type missing from the map stays
// visible. Patterns are doublestar globs matched against job ids; when set,
// a node must match at least one. Query is a case-insensitive substring
// match over label and id and is used for highlighting rather than hiding.
type Filter struct {
	Query    string
	Types    map[JobType]bool
	Patterns []string
}

// Validate checks that every pattern is a well-formed glob.
func (f Filter) Validate() error {
	for _, p := range f.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}

// Visible reports whether n passes the type and pattern filters.
func (f Filter) Visible(n Node) bool {
	typ := n.Type
	if typ == "" {
		typ = TypeBox
	}
	if on, ok := f.Types[typ]; ok && !on {
		return false
	}
	if len(f.Patterns) == 0 {
		return true
	}
	for _, p := range f.Patterns {
		if ok, _ := doublestar.Match(p, n.ID); ok {
			return true
		}
	}
	return false
}

// Matches reports whether n matches the search query. An empty query
// matches nothing.
func (f Filter) Matches(n Node) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(n.Label), q) || strings.Contains(strings.ToLower(n.ID), q)
}

// Visible returns a new graph holding only nodes that pass f, with the
// edges between them.
func (g *Graph) Visible(f Filter) *Graph {
	out := New()
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		if !f.Visible(*n) {
			continue
		}
		cp := *n
		if cp.Job != nil {
			j := cp.Job.Clone()
			cp.Job = &j
		}
		out.insertNode(&cp)
	}
	for _, id := range g.edgeOrder {
		e := g.edges[id]
		if out.HasNode(e.Source) && out.HasNode(e.Target) {
			cp := *e
			out.edges[id] = &cp
			out.edgeOrder = append(out.edgeOrder, id)
		}
	}
	return out
}

// SearchMatches returns ids of nodes matching the query, in insertion order.
func (g *Graph) SearchMatches(f Filter) []string {
	var out []string
	for _, id := range g.nodeOrder {
		if f.Matches(*g.nodes[id]) {
			out = append(out, id)
		}
	}
	return out
}

// TypeCounts returns the number of real nodes of each type.
func (g *Graph) TypeCounts() map[JobType]int {
	counts := make(map[JobType]int, len(AllTypes))
	for _, n := range g.nodes {
		if n.Ghost {
			continue
		}
		counts[n.Type]++
	}
	return counts
}
