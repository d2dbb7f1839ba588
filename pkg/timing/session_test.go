package timing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

func TestSessionDisabledByDefault(t *testing.T) {
	s := NewSession()
	s.SetJobs(abc())

	_, ok := s.Analyze()
	assert.False(t, ok)
	_, ok = s.Baseline()
	assert.False(t, ok)
	_, ok = s.Summary()
	assert.False(t, ok)
}

func TestSessionAnalyzeNeedsJobs(t *testing.T) {
	s := NewSession()
	s.Enable()

	_, ok := s.Analyze()
	assert.False(t, ok)
}

func TestSessionOverridesAndSummary(t *testing.T) {
	s := NewSession()
	s.SetJobs(abc())
	s.Enable()

	sum, ok := s.Summary()
	require.True(t, ok)
	assert.Equal(t, 60, sum.TotalDuration)
	assert.Equal(t, 60, sum.Baseline)
	assert.Nil(t, sum.Delta)
	assert.Equal(t, 3, sum.CriticalPathLength)

	require.NoError(t, s.SetDurationOverride("B", 5))
	sum, _ = s.Summary()
	assert.Equal(t, 45, sum.TotalDuration)
	assert.Equal(t, 60, sum.Baseline)
	require.NotNil(t, sum.Delta)
	assert.Equal(t, -15, *sum.Delta)
	assert.Equal(t, 1, sum.OverrideCount)

	a, ok := s.Analyze()
	require.True(t, ok)
	assert.Equal(t, 5, a.Nodes["B"].EffectiveDuration)

	s.ClearDurationOverride("B")
	assert.Equal(t, 0, s.OverrideCount())
}

func TestSessionOverrideEqualToNaturalIsNormalized(t *testing.T) {
	s := NewSession()
	s.SetJobs(abc())
	s.Enable()

	require.NoError(t, s.SetDurationOverride("B", 5))
	require.NoError(t, s.SetDurationOverride("B", 20))

	assert.Equal(t, 0, s.OverrideCount())
	assert.Empty(t, s.DurationOverrides())
	sum, _ := s.Summary()
	assert.Nil(t, sum.Delta)
}

func TestSessionOverrideErrors(t *testing.T) {
	s := NewSession()
	s.SetJobs(abc())

	err := s.SetDurationOverride("B", -1)
	assert.True(t, errors.Is(err, ErrNegativeDuration))

	err = s.SetDurationOverride("nope", 10)
	assert.True(t, errors.Is(err, ErrUnknownJob))
}

func TestSessionDisableResetsOverrides(t *testing.T) {
	s := NewSession()
	s.SetJobs(abc())
	s.Enable()
	require.NoError(t, s.SetDurationOverride("A", 1))
	require.NoError(t, s.SetDurationOverride("C", 1))

	assert.False(t, s.Toggle())
	assert.Equal(t, 0, s.OverrideCount())

	assert.True(t, s.Toggle())
	a, ok := s.Analyze()
	require.True(t, ok)
	assert.Equal(t, 60, a.TotalDuration)
}

func TestSessionResetDurationOverrides(t *testing.T) {
	s := NewSession()
	s.SetJobs(abc())
	require.NoError(t, s.SetDurationOverride("A", 1))
	require.NoError(t, s.SetDurationOverride("B", 1))

	s.ResetDurationOverrides()

	assert.Equal(t, 0, s.OverrideCount())
}

func TestSessionSetJobsPrunesOverrides(t *testing.T) {
	s := NewSession()
	s.SetJobs(abc())
	require.NoError(t, s.SetDurationOverride("A", 1))
	require.NoError(t, s.SetDurationOverride("C", 1))

	s.SetJobs([]jobgraph.Job{job("A", 10)})

	assert.Equal(t, DurationOverrides{"A": 1}, s.DurationOverrides())
}

func TestSessionBaselineCachedUntilFixedChange(t *testing.T) {
	jobs := []jobgraph.Job{
		{ID: "anchor", Name: "anchor", LastRunStart: "08:00", AvgDurationMinutes: jobgraph.Minutes(10)},
		{ID: "pinned", Name: "pinned", LastRunStart: "09:00", AvgDurationMinutes: jobgraph.Minutes(10), Dependencies: []string{"anchor"}},
	}
	calls := 0
	s := NewSession(WithObserver(func(time.Duration) { calls++ }))
	s.SetJobs(jobs)
	s.Enable()

	base, ok := s.Baseline()
	require.True(t, ok)
	assert.Equal(t, 20, base)
	_, _ = s.Baseline()
	assert.Equal(t, 1, calls)

	s.SetFixedOverride("pinned", true)
	assert.True(t, s.IsJobFixed("pinned"))
	base, _ = s.Baseline()
	assert.Equal(t, 70, base)

	a, _ := s.Analyze()
	assert.Equal(t, "08:00", a.ReferenceTime)
	assert.Equal(t, 50, a.Nodes["pinned"].WaitTime)

	s.ClearFixedOverrides()
	base, _ = s.Baseline()
	assert.Equal(t, 20, base)
}

func TestSessionImportFixedDisabled(t *testing.T) {
	jobs := []jobgraph.Job{
		{ID: "a", Name: "a", LastRunStart: "01:00"},
		{ID: "b", Name: "b", LastRunStart: "02:00", FixedStartTime: true},
	}

	on := NewSession()
	on.SetJobs(jobs)
	assert.True(t, on.FixedFlags()["b"])

	off := NewSession(WithImportFixed(false))
	off.SetJobs(jobs)
	assert.False(t, off.FixedFlags()["b"])

	off.LoadFixedOverrides(map[string]bool{"b": true})
	assert.True(t, off.FixedFlags()["b"])
	assert.Equal(t, map[string]bool{"b": true}, off.FixedOverrides())
}

func TestSessionLogsCycleAndSpread(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewSession(WithLogger(zap.New(core)))
	s.SetJobs([]jobgraph.Job{
		{ID: "early", Name: "early", LastRunStart: "00:10"},
		{ID: "late", Name: "late", LastRunStart: "23:50", FixedStartTime: true},
		job("x", 1, "y"),
		job("y", 1, "x"),
	})
	s.Enable()

	a, ok := s.Analyze()
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, a.Excluded)

	assert.Equal(t, 1, logs.FilterMessageSnippet("18 hours").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("cycle").Len())

	sum, _ := s.Summary()
	assert.Equal(t, 2, sum.Excluded)
	assert.Equal(t, 1, sum.FixedCount)
}

func TestSessionJobsReturnsCopy(t *testing.T) {
	s := NewSession()
	s.SetJobs(abc())

	jobs := s.Jobs()
	jobs[1].Dependencies[0] = "mutated"

	assert.Equal(t, []string{"A"}, s.Jobs()[1].Dependencies)
}

func TestSessionEvaluateComputesOnce(t *testing.T) {
	calls := 0
	s := NewSession(WithObserver(func(time.Duration) { calls++ }))
	s.SetJobs(abc())

	_, _, ok := s.Evaluate()
	assert.False(t, ok)

	s.Enable()
	require.NoError(t, s.SetDurationOverride("B", 5))
	_, _ = s.Baseline()
	calls = 0

	a, sum, ok := s.Evaluate()
	require.True(t, ok)
	assert.Equal(t, 1, calls)

	assert.Equal(t, 45, a.TotalDuration)
	assert.Equal(t, a.TotalDuration, sum.TotalDuration)
	assert.Equal(t, len(a.CriticalPath), sum.CriticalPathLength)
	require.NotNil(t, sum.Delta)
	assert.Equal(t, -15, *sum.Delta)

	want, _ := s.Summary()
	assert.Equal(t, want, sum)
}
