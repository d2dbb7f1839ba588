// Package timing computes earliest start and finish times over a job DAG.
//
// All durations and offsets are whole minutes relative to a T=0 reference.
// The forward pass honors per-job duration overrides and fixed wall-clock
// floors; the critical path is traced back from the job that finishes last.
package timing

import (
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

// DurationOverrides maps a job id to a replacement duration in minutes.
type DurationOverrides map[string]int

// Result is the computed schedule of a single job.
type Result struct {
	EarliestStart     int  `json:"earliestStart"`
	EarliestFinish    int  `json:"earliestFinish"`
	EffectiveDuration int  `json:"effectiveDuration"`
	IsCritical        bool `json:"isCritical"`
	IsFixed           bool `json:"isFixed"`
	FixedStartOffset  int  `json:"fixedStartOffset"`
	WaitTime          int  `json:"waitTime"`
	UpstreamCanHelp   bool `json:"upstreamCanHelp"`
}

// Analysis is the whole-graph timing outcome.
type Analysis struct {
	Nodes         map[string]Result `json:"nodes"`
	Order         []string          `json:"order"`
	CriticalPath  []string          `json:"criticalPath"`
	TotalDuration int               `json:"totalDuration"`
	TotalWaitTime int               `json:"totalWaitTime"`
	ReferenceTime string            `json:"referenceTime"`
	// Excluded lists jobs that never reached in-degree zero because they sit
	// on or below a dependency cycle. They have no entry in Nodes.
	Excluded []string `json:"excluded"`
}

// CriticalEdges returns the edge ids joining consecutive critical-path jobs.
func (a *Analysis) CriticalEdges() []string {
	out := []string{}
	for i := 0; i+1 < len(a.CriticalPath); i++ {
		out = append(out, jobgraph.EdgeID(a.CriticalPath[i], a.CriticalPath[i+1]))
	}
	return out
}

// CriticalSet returns the critical-path ids as a set.
func (a *Analysis) CriticalSet() map[string]bool {
	set := make(map[string]bool, len(a.CriticalPath))
	for _, id := range a.CriticalPath {
		set[id] = true
	}
	return set
}

// ComputeTiming runs the forward pass over jobs.
//
// Dependencies on ids outside jobs are ignored. Jobs on or downstream of a
// cycle are left out of the order and every result, and reported in
// Excluded. The function is pure: identical inputs give identical output.
func ComputeTiming(jobs []jobgraph.Job, overrides DurationOverrides, offsets map[string]int) Analysis {
	// Index jobs; the first occurrence of an id wins and dependency lists
	// are deduplicated so in-degree counts stay consistent.
	byID := make(map[string]*jobgraph.Job, len(jobs))
	ids := make([]string, 0, len(jobs))
	for i := range jobs {
		if _, dup := byID[jobs[i].ID]; dup {
			continue
		}
		byID[jobs[i].ID] = &jobs[i]
		ids = append(ids, jobs[i].ID)
	}
	deps := make(map[string][]string, len(ids))
	children := make(map[string][]string, len(ids))
	inDegree := make(map[string]int, len(ids))
	for _, id := range ids {
		seen := make(map[string]bool)
		for _, dep := range byID[id].Dependencies {
			if _, ok := byID[dep]; !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			deps[id] = append(deps[id], dep)
			children[dep] = append(children[dep], id)
			inDegree[id]++
		}
	}

	// Kahn's algorithm, FIFO, seeded in input order.
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	order := make([]string, 0, len(ids))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, child := range children[cur] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	// Forward pass.
	type pass struct {
		start, finish, duration, maxParent int
	}
	passes := make(map[string]*pass, len(order))
	for _, id := range order {
		dur := byID[id].NaturalDuration()
		if o, ok := overrides[id]; ok {
			dur = o
		}
		maxParent := 0
		for _, dep := range deps[id] {
			if f := passes[dep].finish; f > maxParent {
				maxParent = f
			}
		}
		start := maxParent
		if off, ok := offsets[id]; ok && off > maxParent {
			start = off
		}
		passes[id] = &pass{start: start, finish: start + dur, duration: dur, maxParent: maxParent}
	}

	total := 0
	terminal := ""
	if len(order) > 0 {
		terminal = order[0]
	}
	for _, id := range order {
		if f := passes[id].finish; f > total {
			total = f
			terminal = id
		}
	}

	// Back-trace: a parent is critical only when it finishes exactly when
	// the child starts, so a dominating fixed floor breaks the chain.
	critical := make(map[string]bool)
	path := []string{}
	if terminal != "" {
		critical[terminal] = true
		stack := []string{terminal}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			path = append(path, cur)
			for _, dep := range deps[cur] {
				if critical[dep] {
					continue
				}
				if passes[dep].finish == passes[cur].start {
					critical[dep] = true
					stack = append(stack, dep)
				}
			}
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	waitTotal := 0
	nodes := make(map[string]Result, len(order))
	for _, id := range order {
		p := passes[id]
		off, fixed := offsets[id]
		r := Result{
			EarliestStart:     p.start,
			EarliestFinish:    p.finish,
			EffectiveDuration: p.duration,
			IsCritical:        critical[id],
			IsFixed:           fixed,
			WaitTime:          p.start - p.maxParent,
			UpstreamCanHelp:   true,
		}
		if fixed {
			r.FixedStartOffset = off
			r.UpstreamCanHelp = p.maxParent >= off
		}
		nodes[id] = r
	}
	for _, id := range path {
		waitTotal += nodes[id].WaitTime
	}

	excluded := []string{}
	if len(order) < len(ids) {
		placed := make(map[string]bool, len(order))
		for _, id := range order {
			placed[id] = true
		}
		for _, id := range ids {
			if !placed[id] {
				excluded = append(excluded, id)
			}
		}
	}

	return Analysis{
		Nodes:         nodes,
		Order:         order,
		CriticalPath:  path,
		TotalDuration: total,
		TotalWaitTime: waitTotal,
		Excluded:      excluded,
	}
}
