package jobgraph

// Traversal helpers operate on the displayed graph only, ghosts included.
// Unknown ids yield empty results.

type adjacency struct {
	in  map[string][]*Edge
	out map[string][]*Edge
}

func (g *Graph) adjacency() adjacency {
	adj := adjacency{
		in:  make(map[string][]*Edge, len(g.nodes)),
		out: make(map[string][]*Edge, len(g.nodes)),
	}
	for _, id := range g.edgeOrder {
		e := g.edges[id]
		adj.out[e.Source] = append(adj.out[e.Source], e)
		adj.in[e.Target] = append(adj.in[e.Target], e)
	}
	return adj
}

// Upstream returns every transitive ancestor of id in BFS order.
func (g *Graph) Upstream(id string) []string {
	nodes, _ := g.walk(id, Upstream)
	return nodes
}

// Downstream returns every transitive descendant of id in BFS order.
func (g *Graph) Downstream(id string) []string {
	nodes, _ := g.walk(id, Downstream)
	return nodes
}

// ConnectedEdges returns the ids of edges directly touching id: incoming
// edges first, then outgoing.
func (g *Graph) ConnectedEdges(id string) []string {
	out := []string{}
	if !g.HasNode(id) {
		return out
	}
	adj := g.adjacency()
	for _, e := range adj.in[id] {
		out = append(out, e.ID)
	}
	for _, e := range adj.out[id] {
		out = append(out, e.ID)
	}
	return out
}

// LineageEdges returns the ids of every edge on a path into or out of id:
// the edges among its ancestors followed by the edges among its descendants.
func (g *Graph) LineageEdges(id string) []string {
	_, up := g.walk(id, Upstream)
	_, down := g.walk(id, Downstream)
	return append(up, down...)
}

func (g *Graph) walk(id string, dir Direction) (nodes []string, edges []string) {
	nodes, edges = []string{}, []string{}
	if !g.HasNode(id) {
		return nodes, edges
	}
	adj := g.adjacency()
	next := adj.out
	if dir == Upstream {
		next = adj.in
	}

	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range next[cur] {
			edges = append(edges, e.ID)
			other := e.Target
			if dir == Upstream {
				other = e.Source
			}
			if seen[other] {
				continue
			}
			seen[other] = true
			nodes = append(nodes, other)
			queue = append(queue, other)
		}
	}
	return nodes, edges
}

// Lineage is a depth-bounded tree of neighbors in one direction.
type Lineage struct {
	ID       string     `json:"id"`
	Label    string     `json:"label"`
	Children []*Lineage `json:"children,omitempty"`
	// Repeat marks a node already printed elsewhere in the tree.
	Repeat bool `json:"repeat,omitempty"`
}

// LineageTree builds a tree rooted at id following dir for up to depth
// levels. A depth of zero or less means unbounded. Nodes reached twice are
// marked Repeat and not expanded again.
func (g *Graph) LineageTree(id string, dir Direction, depth int) *Lineage {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	adj := g.adjacency()
	seen := map[string]bool{}
	var build func(n *Node, level int) *Lineage
	build = func(n *Node, level int) *Lineage {
		t := &Lineage{ID: n.ID, Label: n.Label}
		if seen[n.ID] {
			t.Repeat = true
			return t
		}
		seen[n.ID] = true
		if depth > 0 && level >= depth {
			return t
		}
		edges := adj.out[n.ID]
		if dir == Upstream {
			edges = adj.in[n.ID]
		}
		for _, e := range edges {
			other := e.Target
			if dir == Upstream {
				other = e.Source
			}
			t.Children = append(t.Children, build(g.nodes[other], level+1))
		}
		return t
	}
	return build(n, 0)
}
