package explorer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gojobgraph/pkg/explorer"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/jobstore"
)

func TestEngineOverJobStore(t *testing.T) {
	ctx := context.Background()
	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(ctx))

	_, err = store.ImportDocument(ctx, &jobgraph.Document{Jobs: []jobgraph.Job{
		{ID: "Z", Name: "Z", Dependencies: []string{}},
		{ID: "Y", Name: "Y", Dependencies: []string{"Z"}},
		{ID: "X", Name: "X", Dependencies: []string{"Y"}},
	}})
	require.NoError(t, err)

	e := explorer.NewEngine(store)
	require.NoError(t, e.SetStartingNode(ctx, "X", 1, 0))

	assert.Equal(t, []string{"X", "Y"}, e.Materialized())
	ghosts := e.Ghosts()
	require.Len(t, ghosts, 1)
	assert.Equal(t, explorer.GhostNode{ID: "Z", Name: "Z", Direction: jobgraph.Upstream, ConnectedTo: "Y"}, ghosts[0])

	require.NoError(t, e.MaterializeGhost(ctx, "Z"))
	assert.Empty(t, e.Ghosts())
	assert.Equal(t, 2, e.Canvas().EdgeCount())
}
