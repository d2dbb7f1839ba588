package explorer

import "github.com/3leaps/gojobgraph/pkg/jobgraph"

// AddMaterializedJobs adds newJobs to g and wires their edges.
//
// Jobs already present as real nodes are skipped. A ghost with the same id
// is replaced, dropping its ghost edges. Each new job gets dep->job edges for
// dependencies in materialized, and existing nodes get edges from newly
// added ids they depend on. It returns the ids that were added.
func AddMaterializedJobs(g *jobgraph.Graph, newJobs []jobgraph.Job, materialized map[string]bool) []string {
	added := []string{}
	for _, j := range newJobs {
		if n, ok := g.Node(j.ID); ok {
			if !n.Ghost {
				continue
			}
			g.RemoveNode(j.ID)
		}
		g.AddJob(j)
		added = append(added, j.ID)
	}

	for _, j := range newJobs {
		for _, dep := range j.Dependencies {
			if materialized[dep] {
				g.AddEdge(dep, j.ID)
			}
		}
	}

	fresh := make(map[string]bool, len(added))
	for _, id := range added {
		fresh[id] = true
	}
	for _, n := range g.Nodes() {
		if n.Job == nil {
			continue
		}
		for _, dep := range n.Job.Dependencies {
			if fresh[dep] {
				g.AddEdge(dep, n.ID)
			}
		}
	}
	return added
}

// SyncGhostNodes replaces every ghost on g with the given frontier.
//
// Ghosts are deduplicated by id and materialized ids are skipped. An edge is
// drawn only when the connected node is on the canvas; upstream ghosts point
// into it and downstream ghosts point out of it.
func SyncGhostNodes(g *jobgraph.Graph, ghosts []GhostNode, materialized map[string]bool) {
	g.RemoveGhosts()

	type link struct{ from, to string }
	var links []link
	for _, gh := range ghosts {
		if materialized[gh.ID] {
			continue
		}
		if !g.HasNode(gh.ID) {
			g.AddGhost(gh.ID, gh.Name, gh.Type, gh.Direction)
		}
		if !g.HasNode(gh.ConnectedTo) || g.IsGhost(gh.ConnectedTo) {
			continue
		}
		if gh.Direction == jobgraph.Upstream {
			links = append(links, link{gh.ID, gh.ConnectedTo})
		} else {
			links = append(links, link{gh.ConnectedTo, gh.ID})
		}
	}
	for _, l := range links {
		g.AddGhostEdge(l.from, l.to)
	}
}

// DedupeGhosts keeps the first entry per id, skipping materialized ids.
func DedupeGhosts(ghosts []GhostNode, materialized map[string]bool) []GhostNode {
	seen := make(map[string]bool, len(ghosts))
	out := make([]GhostNode, 0, len(ghosts))
	for _, gh := range ghosts {
		if materialized[gh.ID] || seen[gh.ID] {
			continue
		}
		seen[gh.ID] = true
		out = append(out, gh)
	}
	return out
}
