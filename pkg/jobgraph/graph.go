package jobgraph

import "slices"

// Direction is the side of a materialized job on which a neighbor sits.
type Direction string

const (
	Upstream   Direction = "upstream"
	Downstream Direction = "downstream"
)

// GhostNode is an unmaterialized neighbor of a materialized job, reported
// once per connecting edge.
type GhostNode struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        JobType   `json:"type,omitempty"`
	Direction   Direction `json:"direction"`
	ConnectedTo string    `json:"connectedTo"`
}

// Node is a vertex in the display graph. Ghost nodes carry no Job.
type Node struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	Type           JobType   `json:"type"`
	Ghost          bool      `json:"ghost,omitempty"`
	GhostDirection Direction `json:"ghostDirection,omitempty"`
	Job            *Job      `json:"job,omitempty"`
}

// Edge is a directed dependency edge from Source (dependency) to Target.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Ghost  bool   `json:"ghost,omitempty"`
}

// EdgeID returns the identifier of the dependency edge dep->job.
func EdgeID(dep, job string) string {
	return dep + "->" + job
}

// GhostEdgeID returns the identifier of a ghost edge from -> to.
func GhostEdgeID(from, to string) string {
	return "ghost:" + from + "->" + to
}

// Graph is an insertion-ordered directed graph of jobs and ghost nodes.
//
// Graph is not safe for concurrent use; owners serialize access.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
	}
}

// FromJobs builds a graph containing every job and every dependency edge
// whose endpoints are both present. Dangling dependencies are dropped.
func FromJobs(jobs []Job) *Graph {
	g := New()
	for _, j := range jobs {
		g.AddJob(j)
	}
	for _, j := range jobs {
		for _, dep := range j.Dependencies {
			g.AddEdge(dep, j.ID)
		}
	}
	return g
}

// AddJob adds a real node for job. It returns false if a node with the same
// id already exists.
func (g *Graph) AddJob(job Job) bool {
	if _, ok := g.nodes[job.ID]; ok {
		return false
	}
	j := job.Clone()
	g.insertNode(&Node{
		ID:    job.ID,
		Label: job.Name,
		Type:  job.EffectiveType(),
		Job:   &j,
	})
	return true
}

// AddGhost adds a ghost node. It returns false if the id is already present.
func (g *Graph) AddGhost(id, name string, typ JobType, dir Direction) bool {
	if _, ok := g.nodes[id]; ok {
		return false
	}
	if typ == "" {
		typ = TypeBox
	}
	g.insertNode(&Node{
		ID:             id,
		Label:          name,
		Type:           typ,
		Ghost:          true,
		GhostDirection: dir,
	})
	return true
}

func (g *Graph) insertNode(n *Node) {
	g.nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
}

// HasNode reports whether id is present.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// IsGhost reports whether id is present as a ghost node.
func (g *Graph) IsGhost(id string) bool {
	n, ok := g.nodes[id]
	return ok && n.Ghost
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, *g.nodes[id])
	}
	return out
}

// NodeIDs returns node ids in insertion order.
func (g *Graph) NodeIDs() []string {
	return slices.Clone(g.nodeOrder)
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, *g.edges[id])
	}
	return out
}

// NodeCount returns the number of nodes, ghosts included.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges, ghost edges included.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// HasEdge reports whether an edge with the given id exists.
func (g *Graph) HasEdge(id string) bool {
	_, ok := g.edges[id]
	return ok
}

// AddEdge adds the dependency edge dep->job. Adding an existing edge is a
// no-op. Both endpoints must already be present.
func (g *Graph) AddEdge(dep, job string) bool {
	return g.addEdge(EdgeID(dep, job), dep, job, false)
}

// AddGhostEdge adds an edge that touches a ghost node.
func (g *Graph) AddGhostEdge(source, target string) bool {
	return g.addEdge(GhostEdgeID(source, target), source, target, true)
}

func (g *Graph) addEdge(id, source, target string, ghost bool) bool {
	if _, ok := g.edges[id]; ok {
		return false
	}
	if !g.HasNode(source) || !g.HasNode(target) {
		return false
	}
	g.edges[id] = &Edge{ID: id, Source: source, Target: target, Ghost: ghost}
	g.edgeOrder = append(g.edgeOrder, id)
	return true
}

// RemoveEdge deletes the edge with the given id.
func (g *Graph) RemoveEdge(id string) bool {
	if _, ok := g.edges[id]; !ok {
		return false
	}
	delete(g.edges, id)
	g.edgeOrder = slices.DeleteFunc(g.edgeOrder, func(e string) bool { return e == id })
	return true
}

// RemoveNode deletes the node and every edge connected to it.
func (g *Graph) RemoveNode(id string) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)
	g.nodeOrder = slices.DeleteFunc(g.nodeOrder, func(n string) bool { return n == id })
	g.removeEdgesWhere(func(e *Edge) bool { return e.Source == id || e.Target == id })
	return true
}

// RemoveGhosts deletes every ghost node and ghost edge.
func (g *Graph) RemoveGhosts() {
	g.removeEdgesWhere(func(e *Edge) bool {
		return e.Ghost || g.IsGhost(e.Source) || g.IsGhost(e.Target)
	})
	g.nodeOrder = slices.DeleteFunc(g.nodeOrder, func(id string) bool {
		if g.nodes[id].Ghost {
			delete(g.nodes, id)
			return true
		}
		return false
	})
}

func (g *Graph) removeEdgesWhere(pred func(*Edge) bool) {
	g.edgeOrder = slices.DeleteFunc(g.edgeOrder, func(id string) bool {
		if pred(g.edges[id]) {
			delete(g.edges, id)
			return true
		}
		return false
	})
}

// Reset removes all nodes and edges.
func (g *Graph) Reset() {
	g.nodes = make(map[string]*Node)
	g.edges = make(map[string]*Edge)
	g.nodeOrder = nil
	g.edgeOrder = nil
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := New()
	for _, id := range g.nodeOrder {
		n := *g.nodes[id]
		if n.Job != nil {
			j := n.Job.Clone()
			n.Job = &j
		}
		out.insertNode(&n)
	}
	for _, id := range g.edgeOrder {
		e := *g.edges[id]
		out.edges[id] = &e
		out.edgeOrder = append(out.edgeOrder, id)
	}
	return out
}

// Jobs returns the jobs of all real nodes in insertion order.
func (g *Graph) Jobs() []Job {
	var out []Job
	for _, id := range g.nodeOrder {
		if n := g.nodes[id]; n.Job != nil {
			out = append(out, n.Job.Clone())
		}
	}
	return out
}
