package timing

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

// MaxWallClockSpread is the widest span, in minutes, between observed run
// times before fixed offsets are considered unreliable. Offsets do not wrap
// around midnight.
const MaxWallClockSpread = 18 * 60

var wallClockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseWallClock parses "H:MM" or "HH:MM" (24h) into minutes since midnight.
func ParseWallClock(s string) (int, bool) {
	m := wallClockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	if h > 23 || mins > 59 {
		return 0, false
	}
	return h*60 + mins, true
}

// FixedStartOffsets anchors fixed jobs to a common T=0.
type FixedStartOffsets struct {
	// Offsets holds minutes from ReferenceTime for each fixed job.
	Offsets map[string]int
	// ReferenceTime is the earliest parsable lastRunStart across all jobs.
	ReferenceTime string
	// Spread is the distance in minutes between the earliest and latest
	// parsable lastRunStart.
	Spread int
	// SpreadExceeded reports Spread > MaxWallClockSpread.
	SpreadExceeded bool
}

// ComputeFixedStartOffsets converts the lastRunStart of every job flagged in
// fixed into an offset from the earliest lastRunStart seen in jobs. Jobs with
// no parsable time take no part, neither as reference nor as fixed job.
func ComputeFixedStartOffsets(jobs []jobgraph.Job, fixed map[string]bool) FixedStartOffsets {
	out := FixedStartOffsets{Offsets: map[string]int{}}

	parsed := make(map[string]int, len(jobs))
	minT, maxT := 0, 0
	first := true
	for _, j := range jobs {
		t, ok := ParseWallClock(j.LastRunStart)
		if !ok {
			continue
		}
		parsed[j.ID] = t
		if first || t < minT {
			minT = t
			out.ReferenceTime = j.LastRunStart
		}
		if first || t > maxT {
			maxT = t
		}
		first = false
	}
	if first {
		return out
	}

	out.Spread = maxT - minT
	out.SpreadExceeded = out.Spread > MaxWallClockSpread

	for _, j := range jobs {
		if !fixed[j.ID] {
			continue
		}
		if t, ok := parsed[j.ID]; ok {
			out.Offsets[j.ID] = t - minT
		}
	}
	return out
}

// ImportDefault is the fixed flag a job carries from its source document.
func ImportDefault(j jobgraph.Job) bool {
	return j.FixedStartTime && j.LastRunStart != ""
}

// FixedOverrides layers per-job user choices over the imported fixed flags.
//
// FixedOverrides is safe for concurrent use.
type FixedOverrides struct {
	mu        sync.Mutex
	overrides map[string]bool
}

// NewFixedOverrides returns an empty override set.
func NewFixedOverrides() *FixedOverrides {
	return &FixedOverrides{overrides: make(map[string]bool)}
}

// Set records an explicit choice for id.
func (f *FixedOverrides) Set(id string, fixed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[id] = fixed
}

// Unset removes the explicit choice for id.
func (f *FixedOverrides) Unset(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overrides, id)
}

// Clear removes all explicit choices.
func (f *FixedOverrides) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = make(map[string]bool)
}

// Load replaces all choices with m.
func (f *FixedOverrides) Load(m map[string]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = make(map[string]bool, len(m))
	for k, v := range m {
		f.overrides[k] = v
	}
}

// Len returns the number of explicit choices.
func (f *FixedOverrides) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.overrides)
}

// Snapshot returns a copy of the explicit choices.
func (f *FixedOverrides) Snapshot() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.overrides))
	for k, v := range f.overrides {
		out[k] = v
	}
	return out
}

// IsJobFixed returns the explicit choice for id if one exists, otherwise
// importDefault.
func (f *FixedOverrides) IsJobFixed(id string, importDefault bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.overrides[id]; ok {
		return v
	}
	return importDefault
}

// Resolve returns the final fixed flag for every job. A job without a
// lastRunStart is never fixed, whatever its override says.
func (f *FixedOverrides) Resolve(jobs []jobgraph.Job) map[string]bool {
	out := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		out[j.ID] = f.IsJobFixed(j.ID, ImportDefault(j)) && j.LastRunStart != ""
	}
	return out
}
