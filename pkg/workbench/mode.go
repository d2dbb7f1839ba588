package workbench

import (
	"context"

	"github.com/3leaps/gojobgraph/pkg/explorer"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/jobstore"
)

// Mode is the active data source. It is one of EmptyMode, DocumentMode or
// ExplorerMode.
type Mode interface {
	Name() string
	isMode()
}

// Mode names.
const (
	ModeEmpty    = "empty"
	ModeDocument = "json"
	ModeExplorer = "explorer"
)

// EmptyMode has no jobs.
type EmptyMode struct{}

// DocumentMode holds a fully loaded job document.
type DocumentMode struct {
	Doc *jobgraph.Document
	// Source is the path or URI the document was read from.
	Source string
}

// ExplorerMode materializes jobs incrementally from a store.
type ExplorerMode struct {
	Store  Store
	Engine *explorer.Engine
	// Total is the number of jobs in the store when it was opened.
	Total int
}

func (EmptyMode) Name() string    { return ModeEmpty }
func (DocumentMode) Name() string { return ModeDocument }
func (ExplorerMode) Name() string { return ModeExplorer }

func (EmptyMode) isMode()    {}
func (DocumentMode) isMode() {}
func (ExplorerMode) isMode() {}

// Store is the relational backend of explorer mode. *jobstore.Store
// implements it.
type Store interface {
	explorer.Source
	CountJobs(ctx context.Context) (int, error)
	SearchJobs(ctx context.Context, query string, limit int) ([]jobstore.SearchHit, error)
	GetJob(ctx context.Context, id string) (*jobgraph.Job, error)
	Close() error
}

var _ Store = (*jobstore.Store)(nil)
