package jobgraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain() []Job {
	return []Job{
		{ID: "A", Name: "extract", Type: TypeCommand},
		{ID: "B", Name: "transform", Dependencies: []string{"A"}},
		{ID: "C", Name: "load", Type: TypeFileWatcher, Dependencies: []string{"B"}},
	}
}

func TestFromJobsDropsDanglingEdges(t *testing.T) {
	jobs := []Job{
		{ID: "A", Name: "a"},
		{ID: "B", Name: "b", Dependencies: []string{"A", "MISSING"}},
	}

	g := FromJobs(jobs)

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
	assert.True(t, g.HasEdge("A->B"))
	assert.False(t, g.HasNode("MISSING"))
}

func TestAddEdgeIsIdempotent(t *testing.T) {
	g := FromJobs(chain())

	assert.False(t, g.AddEdge("A", "B"))
	assert.Equal(t, 2, g.EdgeCount())

	jobs := []Job{{ID: "X", Name: "x"}, {ID: "Y", Name: "y", Dependencies: []string{"X", "X"}}}
	g = FromJobs(jobs)
	assert.Equal(t, 1, g.EdgeCount())
}

func TestAddEdgeRequiresEndpoints(t *testing.T) {
	g := New()
	g.AddJob(Job{ID: "A", Name: "a"})
	assert.False(t, g.AddEdge("A", "B"))
	assert.Equal(t, 0, g.EdgeCount())
}

func TestNodeDefaults(t *testing.T) {
	g := FromJobs(chain())

	n, ok := g.Node("B")
	require.True(t, ok)
	assert.Equal(t, TypeBox, n.Type)
	assert.Equal(t, "transform", n.Label)
	require.NotNil(t, n.Job)
	assert.Equal(t, []string{"A"}, n.Job.Dependencies)

	_, ok = g.Node("nope")
	assert.False(t, ok)
}

func TestRemoveNodeDropsConnectedEdges(t *testing.T) {
	g := FromJobs(chain())

	require.True(t, g.RemoveNode("B"))
	assert.Equal(t, []string{"A", "C"}, g.NodeIDs())
	assert.Equal(t, 0, g.EdgeCount())
	assert.False(t, g.RemoveNode("B"))
}

func TestRemoveGhosts(t *testing.T) {
	g := FromJobs(chain())
	require.True(t, g.AddGhost("Z", "upstream thing", "", Upstream))
	require.True(t, g.AddGhostEdge("Z", "A"))
	require.True(t, g.AddGhost("W", "downstream thing", TypeCondition, Downstream))
	require.True(t, g.AddGhostEdge("C", "W"))

	assert.True(t, g.IsGhost("Z"))
	assert.Equal(t, 5, g.NodeCount())
	assert.Equal(t, 4, g.EdgeCount())

	g.RemoveGhosts()

	assert.Equal(t, []string{"A", "B", "C"}, g.NodeIDs())
	assert.Equal(t, 2, g.EdgeCount())
	assert.False(t, g.HasEdge("ghost:Z->A"))
}

func TestCloneIsIndependent(t *testing.T) {
	g := FromJobs(chain())
	c := g.Clone()

	c.RemoveNode("A")
	n, _ := c.Node("B")
	n.Job.Dependencies[0] = "changed"

	assert.True(t, g.HasNode("A"))
	orig, _ := g.Node("B")
	assert.Equal(t, []string{"A"}, orig.Job.Dependencies)
}

func TestJobsReturnsRealNodesOnly(t *testing.T) {
	g := FromJobs(chain())
	g.AddGhost("Z", "z", TypeBox, Upstream)

	assert.Equal(t, []string{"A", "B", "C"}, JobIDs(g.Jobs()))
}

func TestUpstreamDownstream(t *testing.T) {
	jobs := []Job{
		{ID: "A", Name: "a"},
		{ID: "B", Name: "b", Dependencies: []string{"A"}},
		{ID: "C", Name: "c", Dependencies: []string{"A"}},
		{ID: "D", Name: "d", Dependencies: []string{"B", "C"}},
		{ID: "E", Name: "e", Dependencies: []string{"D"}},
	}
	g := FromJobs(jobs)

	tests := []struct {
		name string
		fn   func(string) []string
		id   string
		want []string
	}{
		{"upstream of leaf", g.Upstream, "E", []string{"D", "B", "C", "A"}},
		{"upstream of root", g.Upstream, "A", []string{}},
		{"downstream of root", g.Downstream, "A", []string{"B", "C", "D", "E"}},
		{"downstream of middle", g.Downstream, "B", []string{"D", "E"}},
		{"unknown id", g.Downstream, "Q", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.id))
		})
	}
}

func TestConnectedAndLineageEdges(t *testing.T) {
	jobs := []Job{
		{ID: "A", Name: "a"},
		{ID: "B", Name: "b", Dependencies: []string{"A"}},
		{ID: "C", Name: "c", Dependencies: []string{"B"}},
		{ID: "D", Name: "d", Dependencies: []string{"C"}},
	}
	g := FromJobs(jobs)

	assert.Equal(t, []string{"A->B", "B->C"}, g.ConnectedEdges("B"))
	assert.Equal(t, []string{"A->B", "B->C", "C->D"}, g.LineageEdges("B"))
	assert.Empty(t, g.ConnectedEdges("missing"))
	assert.Empty(t, g.LineageEdges("missing"))
}

func TestFilterVisible(t *testing.T) {
	jobs := []Job{
		{ID: "etl_extract", Name: "Extract", Type: TypeCommand},
		{ID: "etl_box", Name: "ETL box", Type: TypeBox},
		{ID: "rpt_daily", Name: "Daily report", Type: TypeCommand, Dependencies: []string{"etl_extract"}},
		{ID: "etl_wait", Name: "Wait for file", Type: TypeFileWatcher, Dependencies: []string{"etl_box"}},
	}
	g := FromJobs(jobs)

	byType := g.Visible(Filter{Types: map[JobType]bool{TypeCommand: false}})
	assert.Equal(t, []string{"etl_box", "etl_wait"}, byType.NodeIDs())
	assert.Equal(t, []string{"etl_box->etl_wait"}, edgeIDs(byType))

	byPattern := g.Visible(Filter{Patterns: []string{"etl_*"}})
	assert.Equal(t, []string{"etl_extract", "etl_box", "etl_wait"}, byPattern.NodeIDs())

	assert.NoError(t, Filter{Patterns: []string{"etl_*"}}.Validate())
	assert.Error(t, Filter{Patterns: []string{"etl_["}}.Validate())
}

func TestSearchMatches(t *testing.T) {
	g := FromJobs(chain())

	assert.Equal(t, []string{"B"}, g.SearchMatches(Filter{Query: "TRANS"}))
	assert.Equal(t, []string{"A", "C"}, g.SearchMatches(Filter{Query: "c"}))
	assert.Empty(t, g.SearchMatches(Filter{Query: "  "}))
}

func TestTypeCounts(t *testing.T) {
	g := FromJobs(chain())
	g.AddGhost("Z", "z", TypeCommand, Upstream)

	counts := g.TypeCounts()
	assert.Equal(t, 1, counts[TypeCommand])
	assert.Equal(t, 1, counts[TypeBox])
	assert.Equal(t, 1, counts[TypeFileWatcher])
}

func TestLineageTreeAndRender(t *testing.T) {
	jobs := []Job{
		{ID: "A", Name: "a"},
		{ID: "B", Name: "b", Dependencies: []string{"A"}},
		{ID: "C", Name: "c", Dependencies: []string{"A"}},
		{ID: "D", Name: "d", Dependencies: []string{"B", "C"}},
	}
	g := FromJobs(jobs)

	tree := g.LineageTree("A", Downstream, 0)
	require.NotNil(t, tree)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "D", tree.Children[1].Children[0].ID)
	assert.True(t, tree.Children[1].Children[0].Repeat)

	var buf bytes.Buffer
	require.NoError(t, RenderTree(&buf, tree))
	want := "A (a)\n" +
		"├── B (b)\n" +
		"│   └── D (d)\n" +
		"└── C (c)\n" +
		"    └── D (d) ↑\n"
	assert.Equal(t, want, buf.String())

	shallow := g.LineageTree("D", Upstream, 1)
	require.Len(t, shallow.Children, 2)
	assert.Empty(t, shallow.Children[0].Children)

	assert.Nil(t, g.LineageTree("missing", Upstream, 0))
}

func TestRenderDOT(t *testing.T) {
	g := FromJobs(chain())
	g.AddGhost("Z", "ghost \"z\"", TypeBox, Upstream)
	g.AddGhostEdge("Z", "A")

	var buf bytes.Buffer
	err := RenderDOT(&buf, g, DOTOptions{
		Critical:      map[string]bool{"A": true},
		CriticalEdges: map[string]bool{"A->B": true},
		Annotate:      map[string]string{"A": "10m"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `digraph "jobs" {`)
	assert.Contains(t, out, `"A" [label="extract\n10m", shape=box, style="bold"];`)
	assert.Contains(t, out, `"Z" [label="ghost \"z\"", shape=box3d, style="dashed"];`)
	assert.Contains(t, out, `"A" -> "B" [style=bold, color=red];`)
	assert.Contains(t, out, `"B" -> "C";`)
	assert.Contains(t, out, `"Z" -> "A" [style=dashed];`)
}

func TestJobTypeParsing(t *testing.T) {
	typ, err := ParseJobType("file_watcher")
	require.NoError(t, err)
	assert.Equal(t, TypeFileWatcher, typ)

	_, err = ParseJobType("cron")
	assert.Error(t, err)

	assert.Equal(t, TypeBox, Job{}.EffectiveType())
	assert.Equal(t, 0, Job{}.NaturalDuration())
	assert.Equal(t, 7, Job{AvgDurationMinutes: Minutes(7)}.NaturalDuration())
}

func edgeIDs(g *Graph) []string {
	var out []string
	for _, e := range g.Edges() {
		out = append(out, e.ID)
	}
	return out
}
