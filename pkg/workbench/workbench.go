// Package workbench binds a job source to the timing session and the
// annotations that follow it.
//
// A workbench is in exactly one mode at a time. Loading a document closes
// any open store, and opening a store discards the loaded document.
package workbench

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/pkg/annotations"
	"github.com/3leaps/gojobgraph/pkg/explorer"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/jobstore"
	"github.com/3leaps/gojobgraph/pkg/timing"
	"github.com/3leaps/gojobgraph/pkg/workspace"
)

// ErrWrongMode is returned when an operation needs a different mode.
var ErrWrongMode = errors.New("operation not available in current mode")

// Workbench is safe for concurrent use.
type Workbench struct {
	mu         sync.Mutex
	logger     *zap.Logger
	mode       Mode
	session    *timing.Session
	notes      *annotations.Collection
	workspace  *workspace.Store
	engineOpts []explorer.Option

	// ids is the active job set in order; it names the dataset.
	ids []string
}

type Option func(*Workbench)

func WithLogger(l *zap.Logger) Option {
	return func(w *Workbench) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithSession replaces the default timing session.
func WithSession(s *timing.Session) Option {
	return func(w *Workbench) {
		if s != nil {
			w.session = s
		}
	}
}

// WithWorkspace enables persistence of annotations and fixed-time
// overrides.
func WithWorkspace(ws *workspace.Store) Option {
	return func(w *Workbench) { w.workspace = ws }
}

// WithEngineOptions configures engines created by OpenStore.
func WithEngineOptions(opts ...explorer.Option) Option {
	return func(w *Workbench) { w.engineOpts = append(w.engineOpts, opts...) }
}

// New returns a workbench in empty mode.
func New(opts ...Option) *Workbench {
	w := &Workbench{
		logger:  zap.NewNop(),
		mode:    EmptyMode{},
		session: timing.NewSession(),
		notes:   annotations.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workbench) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// Session returns the timing session bound to the active job set.
func (w *Workbench) Session() *timing.Session {
	return w.session
}

// LoadDocument switches to document mode. An open store is closed first.
// Duration overrides are reset; annotations and fixed-time overrides are
// loaded for the new dataset. A document without jobs leaves the workbench
// in empty mode.
func (w *Workbench) LoadDocument(doc *jobgraph.Document, source string) error {
	if doc == nil {
		return errors.New("job document is nil")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.mode.(ExplorerMode); ok {
		_ = w.closeStoreLocked()
	}
	if len(doc.Jobs) == 0 {
		w.mode = EmptyMode{}
	} else {
		w.mode = DocumentMode{Doc: doc, Source: source}
	}
	w.session.ResetDurationOverrides()
	w.session.SetJobs(doc.Jobs)
	w.bindLocked(doc.IDs())

	w.logger.Info("Loaded job document",
		zap.String("source", source),
		zap.Int("jobs", len(doc.Jobs)))
	return nil
}

// OpenStore switches to explorer mode over store. The document, if any, is
// discarded. On error the current mode is kept.
func (w *Workbench) OpenStore(ctx context.Context, store Store) error {
	total, err := store.CountJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.mode.(ExplorerMode); ok {
		_ = w.closeStoreLocked()
	}
	w.mode = ExplorerMode{
		Store:  store,
		Engine: explorer.NewEngine(store, w.engineOpts...),
		Total:  total,
	}
	w.session.ResetDurationOverrides()
	w.session.SetJobs(nil)
	w.bindLocked(nil)

	w.logger.Info("Opened job store", zap.Int("jobs", total))
	return nil
}

// CloseStore leaves explorer mode for empty mode.
func (w *Workbench) CloseStore() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.mode.(ExplorerMode); !ok {
		return fmt.Errorf("%w: no store is open", ErrWrongMode)
	}
	err := w.closeStoreLocked()
	w.mode = EmptyMode{}
	w.session.ResetDurationOverrides()
	w.session.SetJobs(nil)
	w.bindLocked(nil)
	return err
}

// Close releases the store, if one is open.
func (w *Workbench) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.mode.(ExplorerMode); !ok {
		return nil
	}
	err := w.closeStoreLocked()
	w.mode = EmptyMode{}
	return err
}

func (w *Workbench) closeStoreLocked() error {
	m := w.mode.(ExplorerMode)
	m.Engine.ClearGraph()
	if err := m.Store.Close(); err != nil {
		w.logger.Warn("Failed to close job store", zap.Error(err))
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Sync rebinds the timing session and annotations to the materialized set
// after explorer operations. It is a no-op outside explorer mode.
func (w *Workbench) Sync() {
	w.mu.Lock()
	defer w.mu.Unlock()

	m, ok := w.mode.(ExplorerMode)
	if !ok {
		return
	}
	jobs := m.Engine.Jobs()
	w.session.SetJobs(jobs)
	w.bindLocked(jobgraph.JobIDs(jobs))
}

// bindLocked points annotations and fixed-time overrides at the dataset
// named by ids, reloading them when the dataset changed.
func (w *Workbench) bindLocked(ids []string) {
	prev := workspace.AnnotationsKey(w.ids)
	w.ids = slices.Clone(ids)
	key := workspace.AnnotationsKey(w.ids)
	if key == prev && key != "" {
		return
	}
	if w.workspace == nil || key == "" {
		w.notes.Clear()
		w.session.LoadFixedOverrides(nil)
		return
	}
	w.notes.Replace(w.workspace.LoadAnnotations(key))
	w.session.LoadFixedOverrides(w.workspace.LoadFixedTimes(workspace.FixedTimesKey(w.ids)))
}

// DatasetKey returns the annotations key of the active job set.
func (w *Workbench) DatasetKey() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return workspace.AnnotationsKey(w.ids)
}

// Jobs returns the active job set: the document's jobs, or the
// materialized jobs in explorer mode.
func (w *Workbench) Jobs() []jobgraph.Job {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch m := w.mode.(type) {
	case DocumentMode:
		out := make([]jobgraph.Job, len(m.Doc.Jobs))
		for i, j := range m.Doc.Jobs {
			out[i] = j.Clone()
		}
		return out
	case ExplorerMode:
		return m.Engine.Jobs()
	}
	return []jobgraph.Job{}
}

// Graph returns the display graph for the active mode.
func (w *Workbench) Graph() *jobgraph.Graph {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch m := w.mode.(type) {
	case DocumentMode:
		return jobgraph.FromJobs(m.Doc.Jobs)
	case ExplorerMode:
		return m.Engine.Canvas()
	}
	return jobgraph.New()
}

// Job looks up a job in the active source. In explorer mode the store is
// consulted, so unmaterialized jobs are found too. A missing job is nil.
func (w *Workbench) Job(ctx context.Context, id string) (*jobgraph.Job, error) {
	w.mu.Lock()
	mode := w.mode
	w.mu.Unlock()

	switch m := mode.(type) {
	case DocumentMode:
		for _, j := range m.Doc.Jobs {
			if j.ID == id {
				c := j.Clone()
				return &c, nil
			}
		}
		return nil, nil
	case ExplorerMode:
		return m.Store.GetJob(ctx, id)
	}
	return nil, fmt.Errorf("%w: no job set is loaded", ErrWrongMode)
}

// Explorer returns the engine, or ErrWrongMode outside explorer mode.
func (w *Workbench) Explorer() (*explorer.Engine, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.mode.(ExplorerMode)
	if !ok {
		return nil, fmt.Errorf("%w: requires explorer mode", ErrWrongMode)
	}
	return m.Engine, nil
}

// Search runs a ranked name search against the store.
func (w *Workbench) Search(ctx context.Context, query string, limit int) ([]jobstore.SearchHit, error) {
	w.mu.Lock()
	m, ok := w.mode.(ExplorerMode)
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: search requires explorer mode", ErrWrongMode)
	}
	return m.Store.SearchJobs(ctx, query, limit)
}

// SetFixedOverride records an explicit fixed-time choice for a job in the
// active set and persists it.
func (w *Workbench) SetFixedOverride(id string, fixed bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !slices.Contains(w.ids, id) {
		return fmt.Errorf("%w: %s", timing.ErrUnknownJob, id)
	}
	w.session.SetFixedOverride(id, fixed)
	return w.saveFixedLocked()
}

// ClearFixedOverrides drops every explicit fixed-time choice.
func (w *Workbench) ClearFixedOverrides() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session.ClearFixedOverrides()
	return w.saveFixedLocked()
}

func (w *Workbench) saveFixedLocked() error {
	if w.workspace == nil {
		return nil
	}
	return w.workspace.SaveFixedTimes(workspace.FixedTimesKey(w.ids), w.session.FixedOverrides())
}

// Annotations returns the notes of the active dataset, sorted by job id.
func (w *Workbench) Annotations() []annotations.Annotation {
	return w.notes.List()
}

// Annotation returns the note for jobID, if any.
func (w *Workbench) Annotation(jobID string) (annotations.Annotation, bool) {
	return w.notes.Get(jobID)
}

// SetAnnotation attaches a note to a job in the active set and persists the
// collection.
func (w *Workbench) SetAnnotation(jobID, text string, color annotations.Color) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !slices.Contains(w.ids, jobID) {
		return fmt.Errorf("%w: %s", timing.ErrUnknownJob, jobID)
	}
	if err := w.notes.Set(jobID, text, color); err != nil {
		return err
	}
	return w.saveNotesLocked()
}

// RemoveAnnotation deletes the note for jobID and reports whether one
// existed.
func (w *Workbench) RemoveAnnotation(jobID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.notes.Remove(jobID) {
		return false, nil
	}
	return true, w.saveNotesLocked()
}

func (w *Workbench) ClearAnnotations() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notes.Clear()
	return w.saveNotesLocked()
}

// ExportAnnotations renders the notes as a JSON array.
func (w *Workbench) ExportAnnotations() ([]byte, error) {
	return w.notes.Export()
}

// ImportAnnotations replaces the notes from a JSON array. It reports false,
// changing nothing, when data is not an array.
func (w *Workbench) ImportAnnotations(data []byte) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.notes.Import(data) {
		return false, nil
	}
	return true, w.saveNotesLocked()
}

func (w *Workbench) saveNotesLocked() error {
	if w.workspace == nil {
		return nil
	}
	return w.workspace.SaveAnnotations(workspace.AnnotationsKey(w.ids), w.notes.List())
}
