// Package jobgraph defines the job entity and the display graph built from it.
//
// A job graph is directed from dependency to dependent: an edge "A->B" means
// B waits on A. Dependencies that reference ids outside the loaded set are
// tolerated and simply produce no edge.
package jobgraph

import "fmt"

// JobType classifies a scheduler job.
type JobType string

const (
	TypeBox         JobType = "box"
	TypeCommand     JobType = "command"
	TypeFileWatcher JobType = "file_watcher"
	TypeCondition   JobType = "condition"
)

// AllTypes lists the known job types in display order.
var AllTypes = []JobType{TypeBox, TypeCommand, TypeFileWatcher, TypeCondition}

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	switch t {
	case TypeBox, TypeCommand, TypeFileWatcher, TypeCondition:
		return true
	}
	return false
}

// ParseJobType converts s into a JobType.
func ParseJobType(s string) (JobType, error) {
	t := JobType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown job type %q", s)
	}
	return t, nil
}

// Job is a single scheduler job.
type Job struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	Type               JobType           `json:"type,omitempty"`
	Machine            string            `json:"machine,omitempty"`
	Owner              string            `json:"owner,omitempty"`
	Command            string            `json:"command,omitempty"`
	Dependencies       []string          `json:"dependencies"`
	Condition          string            `json:"condition,omitempty"`
	Schedule           string            `json:"schedule,omitempty"`
	AvgDurationMinutes *int              `json:"avgDurationMinutes,omitempty"`
	LastRunStart       string            `json:"lastRunStart,omitempty"`
	LastRunEnd         string            `json:"lastRunEnd,omitempty"`
	FixedStartTime     bool              `json:"fixedStartTime,omitempty"`
	TablesRead         []string          `json:"tablesRead,omitempty"`
	TablesWritten      []string          `json:"tablesWritten,omitempty"`
	Tags               []string          `json:"tags,omitempty"`
	CustomAttributes   map[string]string `json:"customAttributes,omitempty"`
}

// EffectiveType returns the job type, defaulting to box.
func (j Job) EffectiveType() JobType {
	if j.Type == "" {
		return TypeBox
	}
	return j.Type
}

// NaturalDuration returns the job's average duration in minutes, or 0.
func (j Job) NaturalDuration() int {
	if j.AvgDurationMinutes == nil {
		return 0
	}
	return *j.AvgDurationMinutes
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	out := j
	out.Dependencies = cloneStrings(j.Dependencies)
	out.TablesRead = cloneStrings(j.TablesRead)
	out.TablesWritten = cloneStrings(j.TablesWritten)
	out.Tags = cloneStrings(j.Tags)
	if j.AvgDurationMinutes != nil {
		d := *j.AvgDurationMinutes
		out.AvgDurationMinutes = &d
	}
	if j.CustomAttributes != nil {
		out.CustomAttributes = make(map[string]string, len(j.CustomAttributes))
		for k, v := range j.CustomAttributes {
			out.CustomAttributes[k] = v
		}
	}
	return out
}

// Minutes is a convenience for building AvgDurationMinutes values.
func Minutes(m int) *int {
	return &m
}

// Metadata describes where a job document came from.
type Metadata struct {
	ExportDate string `json:"exportDate,omitempty"`
	Source     string `json:"source,omitempty"`
	Version    string `json:"version,omitempty"`
}

// Document is a loaded job set.
type Document struct {
	Metadata *Metadata `json:"metadata,omitempty"`
	Jobs     []Job     `json:"jobs"`
}

// IDs returns the job ids in document order.
func (d *Document) IDs() []string {
	return JobIDs(d.Jobs)
}

// JobIDs returns the ids of jobs in order.
func JobIDs(jobs []Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

// Index maps job ids to jobs. The first occurrence of a duplicate id wins.
func Index(jobs []Job) map[string]Job {
	idx := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		if _, ok := idx[j.ID]; ok {
			continue
		}
		idx[j.ID] = j
	}
	return idx
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
