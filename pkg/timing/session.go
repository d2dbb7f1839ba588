package timing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

var (
	// ErrNegativeDuration is returned for duration overrides below zero.
	ErrNegativeDuration = errors.New("duration must not be negative")

	// ErrUnknownJob is returned when an override names a job not in the set.
	ErrUnknownJob = errors.New("unknown job")
)

// Summary condenses an analysis for display.
type Summary struct {
	TotalDuration      int    `json:"totalDuration"`
	Baseline           int    `json:"baseline"`
	Delta              *int   `json:"delta,omitempty"`
	CriticalPathLength int    `json:"criticalPathLength"`
	TotalWaitTime      int    `json:"totalWaitTime"`
	OverrideCount      int    `json:"overrideCount"`
	FixedCount         int    `json:"fixedCount"`
	ReferenceTime      string `json:"referenceTime"`
	Excluded           int    `json:"excluded"`
}

// Session owns the timing state for one job set: the enabled toggle,
// duration overrides, fixed-time overrides and the cached baseline.
//
// Session is safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	logger      *zap.Logger
	observe     func(time.Duration)
	importFixed bool

	enabled   bool
	jobs      []jobgraph.Job
	byID      map[string]jobgraph.Job
	durations DurationOverrides
	fixed     *FixedOverrides
	baseline  *int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for non-fatal diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithImportFixed controls whether fixedStartTime flags from the source
// document count as defaults. Defaults to true.
func WithImportFixed(on bool) Option {
	return func(s *Session) { s.importFixed = on }
}

// WithObserver registers a callback invoked with the wall time of every
// timing computation.
func WithObserver(fn func(time.Duration)) Option {
	return func(s *Session) { s.observe = fn }
}

// NewSession returns a disabled session with no jobs.
func NewSession(opts ...Option) *Session {
	s := &Session{
		logger:      zap.NewNop(),
		importFixed: true,
		byID:        map[string]jobgraph.Job{},
		durations:   DurationOverrides{},
		fixed:       NewFixedOverrides(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetJobs replaces the job set. Duration overrides for ids no longer present
// are dropped and the baseline is recomputed on next use.
func (s *Session) SetJobs(jobs []jobgraph.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make([]jobgraph.Job, len(jobs))
	for i, j := range jobs {
		s.jobs[i] = j.Clone()
	}
	s.byID = jobgraph.Index(s.jobs)
	for id := range s.durations {
		if _, ok := s.byID[id]; !ok {
			delete(s.durations, id)
		}
	}
	s.baseline = nil
}

// Jobs returns a copy of the current job set.
func (s *Session) Jobs() []jobgraph.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jobgraph.Job, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.Clone()
	}
	return out
}

// Enabled reports whether timing analysis is on.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Enable turns timing analysis on.
func (s *Session) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
}

// Disable turns timing analysis off, discarding duration overrides and the
// cached baseline.
func (s *Session) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disableLocked()
}

func (s *Session) disableLocked() {
	s.enabled = false
	s.durations = DurationOverrides{}
	s.baseline = nil
}

// Toggle flips the enabled state and returns the new value.
func (s *Session) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.disableLocked()
	} else {
		s.enabled = true
	}
	return s.enabled
}

// SetDurationOverride sets the duration of id to minutes. An override equal
// to the job's own average is removed instead of stored.
func (s *Session) SetDurationOverride(id string, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("override %s: %w", id, ErrNegativeDuration)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("override %s: %w", id, ErrUnknownJob)
	}
	if minutes == job.NaturalDuration() {
		delete(s.durations, id)
		return nil
	}
	s.durations[id] = minutes
	return nil
}

// ClearDurationOverride removes the override for id.
func (s *Session) ClearDurationOverride(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.durations, id)
}

// ResetDurationOverrides removes every duration override.
func (s *Session) ResetDurationOverrides() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = DurationOverrides{}
}

// DurationOverrides returns a copy of the active duration overrides.
func (s *Session) DurationOverrides() DurationOverrides {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(DurationOverrides, len(s.durations))
	for k, v := range s.durations {
		out[k] = v
	}
	return out
}

// OverrideCount returns the number of active duration overrides.
func (s *Session) OverrideCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.durations)
}

// SetFixedOverride records an explicit fixed-time choice for id.
func (s *Session) SetFixedOverride(id string, fixed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed.Set(id, fixed)
	s.baseline = nil
}

// ClearFixedOverrides drops every explicit fixed-time choice.
func (s *Session) ClearFixedOverrides() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed.Clear()
	s.baseline = nil
}

// LoadFixedOverrides replaces the explicit fixed-time choices, typically
// from persisted workspace state.
func (s *Session) LoadFixedOverrides(m map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed.Load(m)
	s.baseline = nil
}

// FixedOverrides returns a copy of the explicit fixed-time choices.
func (s *Session) FixedOverrides() map[string]bool {
	return s.fixed.Snapshot()
}

// IsJobFixed reports the resolved fixed flag for id.
func (s *Session) IsJobFixed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[id]
	if !ok {
		return false
	}
	return s.resolveLocked([]jobgraph.Job{job})[id]
}

// FixedFlags returns the resolved fixed flag for every job.
func (s *Session) FixedFlags() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(s.jobs)
}

func (s *Session) resolveLocked(jobs []jobgraph.Job) map[string]bool {
	if s.importFixed {
		return s.fixed.Resolve(jobs)
	}
	out := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		out[j.ID] = s.fixed.IsJobFixed(j.ID, false) && j.LastRunStart != ""
	}
	return out
}

// Analyze computes timing with the current overrides. It returns false when
// timing is disabled or there are no jobs.
func (s *Session) Analyze() (*Analysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || len(s.jobs) == 0 {
		return nil, false
	}
	a := s.computeLocked(s.durations)
	return &a, true
}

// Baseline returns the total duration without duration overrides. The value
// is cached until timing is disabled or its inputs change.
func (s *Session) Baseline() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || len(s.jobs) == 0 {
		return 0, false
	}
	return s.baselineLocked(), true
}

func (s *Session) baselineLocked() int {
	if s.baseline == nil {
		a := s.computeLocked(nil)
		s.baseline = &a.TotalDuration
	}
	return *s.baseline
}

// Summary returns the condensed analysis. Delta is set only when at least
// one duration override is active.
func (s *Session) Summary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || len(s.jobs) == 0 {
		return Summary{}, false
	}
	return s.summarizeLocked(s.computeLocked(s.durations)), true
}

// Evaluate returns the analysis and its summary from a single computation.
// It returns false when timing is disabled or there are no jobs.
func (s *Session) Evaluate() (*Analysis, Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || len(s.jobs) == 0 {
		return nil, Summary{}, false
	}
	a := s.computeLocked(s.durations)
	return &a, s.summarizeLocked(a), true
}

func (s *Session) summarizeLocked(a Analysis) Summary {
	sum := Summary{
		TotalDuration:      a.TotalDuration,
		Baseline:           s.baselineLocked(),
		CriticalPathLength: len(a.CriticalPath),
		TotalWaitTime:      a.TotalWaitTime,
		OverrideCount:      len(s.durations),
		ReferenceTime:      a.ReferenceTime,
		Excluded:           len(a.Excluded),
	}
	for _, r := range a.Nodes {
		if r.IsFixed {
			sum.FixedCount++
		}
	}
	if len(s.durations) > 0 {
		d := sum.TotalDuration - sum.Baseline
		sum.Delta = &d
	}
	return sum
}

func (s *Session) computeLocked(overrides DurationOverrides) Analysis {
	started := time.Now()

	offsets := ComputeFixedStartOffsets(s.jobs, s.resolveLocked(s.jobs))
	if offsets.SpreadExceeded {
		s.logger.Warn("Observed run times span more than 18 hours; fixed offsets may be wrong across midnight",
			zap.String("reference", offsets.ReferenceTime),
			zap.Int("spread_minutes", offsets.Spread))
	}

	a := ComputeTiming(s.jobs, overrides, offsets.Offsets)
	a.ReferenceTime = offsets.ReferenceTime
	if len(a.Excluded) > 0 {
		s.logger.Warn("Dependency cycle detected; jobs excluded from timing",
			zap.Int("count", len(a.Excluded)),
			zap.Strings("jobs", a.Excluded))
	}

	if s.observe != nil {
		s.observe(time.Since(started))
	}
	return a
}
