// Package explorer materializes a window of a large job graph from a
// relational source, one expansion at a time, and keeps the unmaterialized
// frontier visible as ghost nodes.
package explorer

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

// GhostNode is a frontier neighbor, one entry per connecting edge.
type GhostNode = jobgraph.GhostNode

// Source answers the two queries the engine needs. *jobstore.Store
// implements it.
type Source interface {
	ExpandLevels(ctx context.Context, id string, up, down int) ([]jobgraph.Job, error)
	DiscoverGhosts(ctx context.Context, materialized []string) ([]GhostNode, error)
}

// State is a point-in-time copy of the engine.
type State struct {
	Seed            string         `json:"seed,omitempty"`
	Jobs            []jobgraph.Job `json:"jobs"`
	MaterializedIDs []string       `json:"materializedIds"`
	Ghosts          []GhostNode    `json:"ghosts"`
	LastError       string         `json:"lastError,omitempty"`
}

// Engine owns the materialized set, the ghost frontier and the canvas.
// All methods are safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	source  Source
	logger  *zap.Logger
	observe func(op string, err error)

	seed       string
	jobs       []jobgraph.Job
	ids        map[string]bool
	ghostEdges []GhostNode
	canvas     *jobgraph.Graph
	lastErr    string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. A nil logger keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers a callback invoked after each operation.
func WithObserver(fn func(op string, err error)) Option {
	return func(e *Engine) { e.observe = fn }
}

// NewEngine returns an engine with nothing materialized, reading from src.
func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{
		source: src,
		logger: zap.NewNop(),
		ids:    make(map[string]bool),
		canvas: jobgraph.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetStartingNode replaces the materialized set with seed and its
// neighborhood, then rebuilds the canvas.
func (e *Engine) SetStartingNode(ctx context.Context, seed string, up, down int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	jobs, err := e.source.ExpandLevels(ctx, seed, up, down)
	if err != nil {
		return e.fail("seed", "failed to expand", err)
	}
	ids := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		ids[j.ID] = true
	}
	ghosts, err := e.source.DiscoverGhosts(ctx, sortedIDs(ids))
	if err != nil {
		return e.fail("seed", "failed to expand", err)
	}

	e.seed = seed
	e.jobs = jobs
	e.ids = ids
	e.ghostEdges = ghosts
	e.canvas.Reset()
	AddMaterializedJobs(e.canvas, jobs, ids)
	SyncGhostNodes(e.canvas, ghosts, ids)

	e.logger.Debug("Explorer seeded",
		zap.String("seed", seed),
		zap.Int("materialized", len(ids)),
		zap.Int("ghost_edges", len(ghosts)))
	return e.succeed("seed")
}

// ExpandFromNode merges the neighborhood of id into the materialized set.
// Nothing is ever removed.
func (e *Engine) ExpandFromNode(ctx context.Context, id string, up, down int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.merge(ctx, "expand", "failed to expand", id, up, down)
}

// MaterializeGhost materializes a single frontier job. Its own neighbors
// become new ghosts.
func (e *Engine) MaterializeGhost(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.merge(ctx, "materialize", "failed to materialize", id, 0, 0)
}

func (e *Engine) merge(ctx context.Context, op, prefix, id string, up, down int) error {
	found, err := e.source.ExpandLevels(ctx, id, up, down)
	if err != nil {
		return e.fail(op, prefix, err)
	}

	var toAdd []jobgraph.Job
	ids := make(map[string]bool, len(e.ids)+len(found))
	for k := range e.ids {
		ids[k] = true
	}
	for _, j := range found {
		if !ids[j.ID] {
			ids[j.ID] = true
			toAdd = append(toAdd, j)
		}
	}

	ghosts, err := e.source.DiscoverGhosts(ctx, sortedIDs(ids))
	if err != nil {
		return e.fail(op, prefix, err)
	}

	e.jobs = append(e.jobs, toAdd...)
	e.ids = ids
	e.ghostEdges = ghosts
	AddMaterializedJobs(e.canvas, toAdd, ids)
	SyncGhostNodes(e.canvas, ghosts, ids)

	e.logger.Debug("Explorer merged jobs",
		zap.String("op", op),
		zap.String("id", id),
		zap.Int("added", len(toAdd)),
		zap.Int("materialized", len(ids)))
	return e.succeed(op)
}

// ClearGraph empties the materialized set, the frontier and the canvas.
// The source stays attached.
func (e *Engine) ClearGraph() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seed = ""
	e.jobs = nil
	e.ids = make(map[string]bool)
	e.ghostEdges = nil
	e.canvas.Reset()
	e.lastErr = ""
}

func (e *Engine) fail(op, prefix string, err error) error {
	wrapped := fmt.Errorf("%s: %w", prefix, err)
	e.lastErr = wrapped.Error()
	e.logger.Warn("Explorer operation failed", zap.String("op", op), zap.Error(err))
	if e.observe != nil {
		e.observe(op, wrapped)
	}
	return wrapped
}

func (e *Engine) succeed(op string) error {
	e.lastErr = ""
	if e.observe != nil {
		e.observe(op, nil)
	}
	return nil
}

// Seed returns the id of the last starting node.
func (e *Engine) Seed() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seed
}

// LastError returns the message of the last failed operation, cleared by
// the next success.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Jobs returns the materialized jobs in materialization order.
func (e *Engine) Jobs() []jobgraph.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneJobs(e.jobs)
}

// Materialized returns the materialized ids, sorted.
func (e *Engine) Materialized() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedIDs(e.ids)
}

// IsMaterialized reports whether id is part of the materialized set.
func (e *Engine) IsMaterialized(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ids[id]
}

// Ghosts returns the frontier deduplicated by id, in discovery order.
func (e *Engine) Ghosts() []GhostNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return DedupeGhosts(e.ghostEdges, e.ids)
}

// GhostEdges returns the raw per-edge frontier.
func (e *Engine) GhostEdges() []GhostNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.ghostEdges)
}

// Canvas returns a copy of the display graph.
func (e *Engine) Canvas() *jobgraph.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvas.Clone()
}

// Snapshot returns a copy of the session state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// View returns the session state and a copy of the display graph taken
// under one lock, so both describe the same materialization.
func (e *Engine) View() (State, *jobgraph.Graph) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(), e.canvas.Clone()
}

func (e *Engine) stateLocked() State {
	return State{
		Seed:            e.seed,
		Jobs:            cloneJobs(e.jobs),
		MaterializedIDs: sortedIDs(e.ids),
		Ghosts:          DedupeGhosts(e.ghostEdges, e.ids),
		LastError:       e.lastErr,
	}
}

func sortedIDs(ids map[string]bool) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func cloneJobs(jobs []jobgraph.Job) []jobgraph.Job {
	out := make([]jobgraph.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}
