package workbench

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gojobgraph/pkg/annotations"
	"github.com/3leaps/gojobgraph/pkg/explorer"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/jobstore"
	"github.com/3leaps/gojobgraph/pkg/timing"
	"github.com/3leaps/gojobgraph/pkg/workspace"
)

type fakeStore struct {
	jobs     map[string]jobgraph.Job
	countErr error
	closeErr error
	closed   int
}

func newFakeStore(jobs ...jobgraph.Job) *fakeStore {
	f := &fakeStore{jobs: make(map[string]jobgraph.Job)}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeStore) ExpandLevels(_ context.Context, id string, _, _ int) ([]jobgraph.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return []jobgraph.Job{j}, nil
	}
	return []jobgraph.Job{}, nil
}

func (f *fakeStore) DiscoverGhosts(context.Context, []string) ([]explorer.GhostNode, error) {
	return nil, nil
}

func (f *fakeStore) CountJobs(context.Context) (int, error) {
	return len(f.jobs), f.countErr
}

func (f *fakeStore) SearchJobs(_ context.Context, q string, _ int) ([]jobstore.SearchHit, error) {
	var hits []jobstore.SearchHit
	for id, j := range f.jobs {
		if strings.Contains(id, q) {
			hits = append(hits, jobstore.SearchHit{ID: id, Name: j.Name})
		}
	}
	return hits, nil
}

func (f *fakeStore) GetJob(_ context.Context, id string) (*jobgraph.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return &j, nil
	}
	return nil, nil
}

func (f *fakeStore) Close() error {
	f.closed++
	return f.closeErr
}

func doc(ids ...string) *jobgraph.Document {
	d := &jobgraph.Document{}
	prev := ""
	for _, id := range ids {
		j := jobgraph.Job{ID: id, Name: "job " + id, Dependencies: []string{}, AvgDurationMinutes: jobgraph.Minutes(10)}
		if prev != "" {
			j.Dependencies = []string{prev}
		}
		d.Jobs = append(d.Jobs, j)
		prev = id
	}
	return d
}

func TestEmptyMode(t *testing.T) {
	wb := New()
	ctx := context.Background()

	assert.Equal(t, ModeEmpty, wb.Mode().Name())
	assert.Empty(t, wb.Jobs())
	assert.Equal(t, 0, wb.Graph().NodeCount())
	assert.Empty(t, wb.DatasetKey())

	_, err := wb.Explorer()
	assert.ErrorIs(t, err, ErrWrongMode)
	_, err = wb.Search(ctx, "x", 5)
	assert.ErrorIs(t, err, ErrWrongMode)
	_, err = wb.Job(ctx, "x")
	assert.ErrorIs(t, err, ErrWrongMode)
	assert.ErrorIs(t, wb.CloseStore(), ErrWrongMode)
	assert.NoError(t, wb.Close())
}

func TestLoadDocument(t *testing.T) {
	wb := New()
	require.NoError(t, wb.LoadDocument(doc("a", "b", "c"), "jobs.json"))

	m, ok := wb.Mode().(DocumentMode)
	require.True(t, ok)
	assert.Equal(t, "jobs.json", m.Source)
	assert.Equal(t, ModeDocument, m.Name())

	assert.Equal(t, []string{"a", "b", "c"}, jobgraph.JobIDs(wb.Jobs()))
	assert.Equal(t, 2, wb.Graph().EdgeCount())
	assert.Len(t, wb.Session().Jobs(), 3)
	assert.Equal(t, workspace.AnnotationsKey([]string{"a", "b", "c"}), wb.DatasetKey())

	j, err := wb.Job(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, j.Dependencies)
	j, err = wb.Job(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Nil(t, j)

	assert.Error(t, wb.LoadDocument(nil, "x"))
}

func TestLoadDocumentWithoutJobsIsEmptyMode(t *testing.T) {
	wb := New()
	require.NoError(t, wb.LoadDocument(doc("a", "b"), "jobs.json"))

	require.NoError(t, wb.LoadDocument(&jobgraph.Document{Jobs: []jobgraph.Job{}}, "empty.json"))

	assert.Equal(t, ModeEmpty, wb.Mode().Name())
	assert.Empty(t, wb.Jobs())
	assert.Empty(t, wb.Session().Jobs())
	assert.Empty(t, wb.DatasetKey())

	store := newFakeStore()
	require.NoError(t, wb.OpenStore(context.Background(), store))
	require.NoError(t, wb.LoadDocument(&jobgraph.Document{}, "empty.json"))

	assert.Equal(t, ModeEmpty, wb.Mode().Name())
	assert.Equal(t, 1, store.closed)
}

func TestLoadDocumentResetsDurationOverrides(t *testing.T) {
	wb := New()
	require.NoError(t, wb.LoadDocument(doc("a", "b"), "one.json"))
	require.NoError(t, wb.Session().SetDurationOverride("a", 1))

	require.NoError(t, wb.LoadDocument(doc("a", "b"), "two.json"))

	assert.Equal(t, 0, wb.Session().OverrideCount())
}

func TestOpenStoreDiscardsDocument(t *testing.T) {
	wb := New()
	require.NoError(t, wb.LoadDocument(doc("a", "b"), "jobs.json"))
	store := newFakeStore(jobgraph.Job{ID: "s1", Name: "one"}, jobgraph.Job{ID: "s2", Name: "two"})

	require.NoError(t, wb.OpenStore(context.Background(), store))

	m, ok := wb.Mode().(ExplorerMode)
	require.True(t, ok)
	assert.Equal(t, 2, m.Total)
	assert.Empty(t, wb.Jobs())
	assert.Empty(t, wb.Session().Jobs())
	assert.Empty(t, wb.DatasetKey())

	hits, err := wb.Search(context.Background(), "s1", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	j, err := wb.Job(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, "two", j.Name)
}

func TestOpenStoreFailureKeepsMode(t *testing.T) {
	wb := New()
	require.NoError(t, wb.LoadDocument(doc("a"), "jobs.json"))
	store := newFakeStore()
	store.countErr = errors.New("no such table: jobs")

	err := wb.OpenStore(context.Background(), store)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open store")
	assert.Equal(t, ModeDocument, wb.Mode().Name())
	assert.Equal(t, 0, store.closed)
}

func TestLoadDocumentClosesStore(t *testing.T) {
	wb := New()
	store := newFakeStore(jobgraph.Job{ID: "s1", Name: "one"})
	require.NoError(t, wb.OpenStore(context.Background(), store))

	require.NoError(t, wb.LoadDocument(doc("a"), "jobs.json"))

	assert.Equal(t, 1, store.closed)
	assert.Equal(t, ModeDocument, wb.Mode().Name())
	_, err := wb.Explorer()
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestOpenStoreReplacesStore(t *testing.T) {
	wb := New()
	first := newFakeStore()
	second := newFakeStore()
	require.NoError(t, wb.OpenStore(context.Background(), first))
	require.NoError(t, wb.OpenStore(context.Background(), second))

	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 0, second.closed)
}

func TestCloseStore(t *testing.T) {
	wb := New()
	store := newFakeStore()
	store.closeErr = errors.New("busy")
	require.NoError(t, wb.OpenStore(context.Background(), store))

	err := wb.CloseStore()

	assert.ErrorContains(t, err, "busy")
	assert.Equal(t, ModeEmpty, wb.Mode().Name())
	assert.Equal(t, 1, store.closed)
}

func TestSyncFollowsMaterializedSet(t *testing.T) {
	wb := New()
	store := newFakeStore(jobgraph.Job{ID: "s1", Name: "one", AvgDurationMinutes: jobgraph.Minutes(7)})
	ctx := context.Background()
	require.NoError(t, wb.OpenStore(ctx, store))

	eng, err := wb.Explorer()
	require.NoError(t, err)
	require.NoError(t, eng.SetStartingNode(ctx, "s1", 0, 0))
	wb.Sync()

	assert.Equal(t, []string{"s1"}, jobgraph.JobIDs(wb.Jobs()))
	assert.Equal(t, workspace.AnnotationsKey([]string{"s1"}), wb.DatasetKey())
	wb.Session().Enable()
	sum, ok := wb.Session().Summary()
	require.True(t, ok)
	assert.Equal(t, 7, sum.TotalDuration)
	require.NoError(t, wb.SetAnnotation("s1", "materialized", annotations.Lime))
}

func TestAnnotationsPersistPerDataset(t *testing.T) {
	ws := workspace.NewStore(t.TempDir(), nil)
	wb := New(WithWorkspace(ws))
	require.NoError(t, wb.LoadDocument(doc("a", "b"), "one.json"))

	require.NoError(t, wb.SetAnnotation("a", "check owner", annotations.Yellow))
	err := wb.SetAnnotation("nope", "x", annotations.Yellow)
	assert.ErrorIs(t, err, timing.ErrUnknownJob)
	assert.ErrorIs(t, wb.SetAnnotation("b", "x", "beige"), annotations.ErrInvalidColor)

	other := New(WithWorkspace(ws))
	require.NoError(t, other.LoadDocument(doc("a", "b"), "copy.json"))
	note, ok := other.Annotation("a")
	require.True(t, ok)
	assert.Equal(t, "check owner", note.Text)

	require.NoError(t, other.LoadDocument(doc("x", "y"), "different.json"))
	assert.Empty(t, other.Annotations())

	require.NoError(t, other.LoadDocument(doc("a", "b"), "again.json"))
	assert.Len(t, other.Annotations(), 1)

	removed, err := other.RemoveAnnotation("a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, ws.Path(workspace.AnnotationsKey([]string{"a", "b"})))
}

func TestImportExportAnnotations(t *testing.T) {
	wb := New(WithWorkspace(workspace.NewStore(t.TempDir(), nil)))
	require.NoError(t, wb.LoadDocument(doc("a", "b"), "jobs.json"))
	require.NoError(t, wb.SetAnnotation("b", "late", annotations.Orange))

	data, err := wb.ExportAnnotations()
	require.NoError(t, err)

	ok, err := wb.ImportAnnotations([]byte("garbage"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, wb.Annotations(), 1)

	require.NoError(t, wb.ClearAnnotations())
	assert.Empty(t, wb.Annotations())

	ok, err = wb.ImportAnnotations(data)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "late", wb.Annotations()[0].Text)
}

func TestFixedOverridesPersist(t *testing.T) {
	ws := workspace.NewStore(t.TempDir(), nil)
	d := doc("a", "b")
	d.Jobs[1].LastRunStart = "09:00"
	d.Jobs[0].LastRunStart = "08:00"

	wb := New(WithWorkspace(ws))
	require.NoError(t, wb.LoadDocument(d, "jobs.json"))
	require.NoError(t, wb.SetFixedOverride("b", true))
	assert.ErrorIs(t, wb.SetFixedOverride("zzz", true), timing.ErrUnknownJob)

	other := New(WithWorkspace(ws))
	require.NoError(t, other.LoadDocument(d, "jobs.json"))
	assert.Equal(t, map[string]bool{"b": true}, other.Session().FixedOverrides())
	assert.True(t, other.Session().IsJobFixed("b"))

	require.NoError(t, other.ClearFixedOverrides())
	assert.NoFileExists(t, ws.Path(workspace.FixedTimesKey([]string{"a", "b"})))
}

func TestExplorerOverJobStore(t *testing.T) {
	ctx := context.Background()
	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	_, err = store.ImportDocument(ctx, doc("z", "y", "x"))
	require.NoError(t, err)

	wb := New()
	require.NoError(t, wb.OpenStore(ctx, store))
	defer func() { _ = wb.Close() }()

	m := wb.Mode().(ExplorerMode)
	assert.Equal(t, 3, m.Total)

	eng, err := wb.Explorer()
	require.NoError(t, err)
	require.NoError(t, eng.SetStartingNode(ctx, "x", 1, 0))
	wb.Sync()

	g := wb.Graph()
	assert.Equal(t, []string{"x", "y"}, jobgraph.JobIDs(wb.Jobs()))
	assert.True(t, g.IsGhost("z"))
	assert.Len(t, wb.Session().Jobs(), 2)
}
