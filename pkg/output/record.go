// Package output provides JSONL output for job graph analysis.
//
// Output is structured as typed record envelopes containing timing
// results, jobs, ghost frontier entries, validation problems and errors.
// Each line is a self-contained JSON object that can be parsed
// independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/gojobgraph/pkg/annotations"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/timing"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: gojobgraph.<type>.v<version>
const (
	// TypeTiming identifies per-job timing records.
	TypeTiming = "gojobgraph.timing.v1"

	// TypeTimingSummary identifies the aggregate timing record.
	TypeTimingSummary = "gojobgraph.timing_summary.v1"

	// TypeJob identifies job records.
	TypeJob = "gojobgraph.job.v1"

	// TypeGhost identifies unmaterialized frontier records.
	TypeGhost = "gojobgraph.ghost.v1"

	// TypeValidation identifies document validation problems.
	TypeValidation = "gojobgraph.validation.v1"

	// TypeError identifies error records.
	TypeError = "gojobgraph.error.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "gojobgraph.timing.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// Dataset is the workspace key of the job set, when known.
	Dataset string `json:"dataset,omitempty"`

	// Source names where the jobs came from (a document path or store).
	Source string `json:"source"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// TimingRecord is the data payload for one job's timing result.
type TimingRecord struct {
	JobID            string `json:"job_id"`
	Name             string `json:"name"`
	Duration         int    `json:"duration_minutes"`
	EarliestStart    int    `json:"earliest_start"`
	EarliestFinish   int    `json:"earliest_finish"`
	WaitTime         int    `json:"wait_time"`
	Critical         bool   `json:"critical"`
	Fixed            bool   `json:"fixed"`
	FixedStartOffset int    `json:"fixed_start_offset,omitempty"`
	UpstreamCanHelp  bool   `json:"upstream_can_help"`
	Overridden       bool   `json:"overridden,omitempty"`
}

// TimingSummaryRecord is the data payload for the aggregate analysis.
type TimingSummaryRecord struct {
	TotalDuration int      `json:"total_duration"`
	Duration      string   `json:"duration"`
	Baseline      int      `json:"baseline"`
	Delta         *int     `json:"delta,omitempty"`
	CriticalPath  []string `json:"critical_path"`
	TotalWaitTime int      `json:"total_wait_time"`
	OverrideCount int      `json:"override_count"`
	FixedCount    int      `json:"fixed_count"`
	ReferenceTime string   `json:"reference_time,omitempty"`
	Excluded      []string `json:"excluded,omitempty"`
}

// JobRecord is the data payload for a job listing.
type JobRecord struct {
	jobgraph.Job
	Annotation *annotations.Annotation `json:"annotation,omitempty"`
}

// GhostRecord is the data payload for one frontier edge.
type GhostRecord = jobgraph.GhostNode

// ValidationRecord is the data payload for a document problem.
type ValidationRecord struct {
	// Level is "error" for dropped jobs and "warning" for ignored fields.
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Validation levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// JobID is the job related to this error, if applicable.
	JobID string `json:"job_id,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeInvalidDocument = "INVALID_DOCUMENT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeStore           = "STORE"
	ErrCodeInternal        = "INTERNAL"
)

// TimingRecords converts an analysis into per-job records in evaluation
// order. With criticalOnly, only critical-path jobs are returned.
func TimingRecords(jobs []jobgraph.Job, a timing.Analysis, overrides timing.DurationOverrides, criticalOnly bool) []TimingRecord {
	names := make(map[string]string, len(jobs))
	for _, j := range jobs {
		names[j.ID] = j.Name
	}
	out := make([]TimingRecord, 0, len(a.Order))
	for _, id := range a.Order {
		r := a.Nodes[id]
		if criticalOnly && !r.IsCritical {
			continue
		}
		_, overridden := overrides[id]
		out = append(out, TimingRecord{
			JobID:            id,
			Name:             names[id],
			Duration:         r.EffectiveDuration,
			EarliestStart:    r.EarliestStart,
			EarliestFinish:   r.EarliestFinish,
			WaitTime:         r.WaitTime,
			Critical:         r.IsCritical,
			Fixed:            r.IsFixed,
			FixedStartOffset: r.FixedStartOffset,
			UpstreamCanHelp:  r.UpstreamCanHelp,
			Overridden:       overridden,
		})
	}
	return out
}

// NewTimingSummary combines an analysis with its session summary.
func NewTimingSummary(a timing.Analysis, s timing.Summary) *TimingSummaryRecord {
	return &TimingSummaryRecord{
		TotalDuration: a.TotalDuration,
		Duration:      timing.FormatDuration(a.TotalDuration),
		Baseline:      s.Baseline,
		Delta:         s.Delta,
		CriticalPath:  a.CriticalPath,
		TotalWaitTime: a.TotalWaitTime,
		OverrideCount: s.OverrideCount,
		FixedCount:    s.FixedCount,
		ReferenceTime: a.ReferenceTime,
		Excluded:      a.Excluded,
	}
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
