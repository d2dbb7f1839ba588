package explorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

func TestAddMaterializedJobsReplacesGhost(t *testing.T) {
	g := jobgraph.New()
	g.AddJob(mk("X"))
	g.AddGhost("W", "job W", "", jobgraph.Downstream)
	g.AddGhostEdge("X", "W")

	added := AddMaterializedJobs(g, []jobgraph.Job{mk("W", "X"), mk("X")}, map[string]bool{"X": true, "W": true})

	assert.Equal(t, []string{"W"}, added)
	assert.False(t, g.IsGhost("W"))
	assert.Equal(t, []string{"X->W"}, edgeIDs(g))
}

func TestAddMaterializedJobsAddsReverseEdges(t *testing.T) {
	g := jobgraph.New()
	g.AddJob(mk("X", "Y"))
	g.AddJob(mk("W", "X", "Y"))

	added := AddMaterializedJobs(g, []jobgraph.Job{mk("Y", "missing")}, map[string]bool{"X": true, "W": true, "Y": true})

	assert.Equal(t, []string{"Y"}, added)
	assert.Equal(t, []string{"Y->X", "Y->W"}, edgeIDs(g))
}

func TestSyncGhostNodes(t *testing.T) {
	g := jobgraph.New()
	g.AddJob(mk("X"))
	g.AddGhost("stale", "old", "", jobgraph.Upstream)
	g.AddGhostEdge("stale", "X")
	mat := map[string]bool{"X": true}

	SyncGhostNodes(g, []GhostNode{
		{ID: "U", Name: "up", Type: jobgraph.TypeCommand, Direction: jobgraph.Upstream, ConnectedTo: "X"},
		{ID: "D", Name: "down", Direction: jobgraph.Downstream, ConnectedTo: "X"},
		{ID: "D", Name: "down", Direction: jobgraph.Downstream, ConnectedTo: "offcanvas"},
		{ID: "X", Name: "self", Direction: jobgraph.Upstream, ConnectedTo: "X"},
	}, mat)

	assert.Equal(t, []string{"X", "U", "D"}, g.NodeIDs())
	assert.Equal(t, []string{"ghost:U->X", "ghost:X->D"}, edgeIDs(g))

	u, _ := g.Node("U")
	assert.Equal(t, jobgraph.TypeCommand, u.Type)
	assert.Equal(t, jobgraph.Upstream, u.GhostDirection)
	d, _ := g.Node("D")
	assert.Equal(t, jobgraph.TypeBox, d.Type)
}

func TestDedupeGhosts(t *testing.T) {
	got := DedupeGhosts([]GhostNode{
		{ID: "a", ConnectedTo: "x"},
		{ID: "b", ConnectedTo: "x"},
		{ID: "a", ConnectedTo: "y"},
		{ID: "m", ConnectedTo: "x"},
	}, map[string]bool{"m": true})

	assert.Equal(t, []string{"a", "b"}, ghostIDs(got))
	assert.Equal(t, "x", got[0].ConnectedTo)
}
