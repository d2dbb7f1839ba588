package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gojobgraph/pkg/annotations"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/timing"
)

func decodeLine(t *testing.T, line []byte, data any) Record {
	t.Helper()
	var record Record
	require.NoError(t, json.Unmarshal(line, &record))
	if data != nil {
		require.NoError(t, json.Unmarshal(record.Data, data))
	}
	return record
}

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "annotations_97", "jobs.json")

	assert.NotNil(t, w)
	assert.Equal(t, "annotations_97", w.dataset)
	assert.Equal(t, "jobs.json", w.source)
}

func TestJSONLWriter_WriteTiming(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "fixedtimes_97", "jobs.json")
	fixedTS := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixedTS }

	err := w.WriteTiming(context.Background(), &TimingRecord{
		JobID:          "load",
		Name:           "Load warehouse",
		Duration:       30,
		EarliestStart:  10,
		EarliestFinish: 40,
		Critical:       true,
	})
	require.NoError(t, err)

	var rec TimingRecord
	record := decodeLine(t, buf.Bytes(), &rec)
	assert.Equal(t, TypeTiming, record.Type)
	assert.Equal(t, "fixedtimes_97", record.Dataset)
	assert.Equal(t, "jobs.json", record.Source)
	assert.Equal(t, fixedTS, record.TS)
	assert.Equal(t, "load", rec.JobID)
	assert.Equal(t, 40, rec.EarliestFinish)
	assert.True(t, rec.Critical)
}

func TestJSONLWriter_WriteJobFlattensFields(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "", "store")

	err := w.WriteJob(context.Background(), &JobRecord{
		Job:        jobgraph.Job{ID: "x", Name: "X", Dependencies: []string{"y"}},
		Annotation: &annotations.Annotation{JobID: "x", Text: "hot", Color: annotations.Pink},
	})
	require.NoError(t, err)

	var payload map[string]any
	record := decodeLine(t, buf.Bytes(), &payload)
	assert.Equal(t, TypeJob, record.Type)
	assert.Empty(t, record.Dataset)
	assert.Equal(t, "x", payload["id"])
	assert.Equal(t, []any{"y"}, payload["dependencies"])
	assert.Equal(t, "pink", payload["annotation"].(map[string]any)["color"])
}

func TestJSONLWriter_OtherRecordTypes(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "", "jobs.json")
	ctx := context.Background()

	require.NoError(t, w.WriteGhost(ctx, &GhostRecord{ID: "z", Name: "Z", Direction: jobgraph.Upstream, ConnectedTo: "y"}))
	require.NoError(t, w.WriteValidation(ctx, &ValidationRecord{Level: LevelWarning, Message: `Job "a": "owner" must be a string`}))
	require.NoError(t, w.WriteError(ctx, &ErrorRecord{Code: ErrCodeNotFound, Message: "no such job", JobID: "q"}))
	require.NoError(t, w.WriteTimingSummary(ctx, &TimingSummaryRecord{TotalDuration: 60, Duration: "1h"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var ghost GhostRecord
	assert.Equal(t, TypeGhost, decodeLine(t, []byte(lines[0]), &ghost).Type)
	assert.Equal(t, "y", ghost.ConnectedTo)

	var v ValidationRecord
	assert.Equal(t, TypeValidation, decodeLine(t, []byte(lines[1]), &v).Type)
	assert.Equal(t, LevelWarning, v.Level)

	var e ErrorRecord
	assert.Equal(t, TypeError, decodeLine(t, []byte(lines[2]), &e).Type)
	assert.Equal(t, "q", e.JobID)

	var sum TimingSummaryRecord
	assert.Equal(t, TypeTimingSummary, decodeLine(t, []byte(lines[3]), &sum).Type)
	assert.Equal(t, "1h", sum.Duration)
}

func TestTimingRecords(t *testing.T) {
	jobs := []jobgraph.Job{
		{ID: "a", Name: "A", AvgDurationMinutes: jobgraph.Minutes(10)},
		{ID: "b", Name: "B", AvgDurationMinutes: jobgraph.Minutes(5)},
		{ID: "c", Name: "C", AvgDurationMinutes: jobgraph.Minutes(20), Dependencies: []string{"a"}},
	}
	overrides := timing.DurationOverrides{"c": 30}
	a := timing.ComputeTiming(jobs, overrides, nil)

	all := TimingRecords(jobs, a, overrides, false)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].JobID, all[1].JobID, all[2].JobID})
	assert.Equal(t, "C", all[2].Name)
	assert.Equal(t, 30, all[2].Duration)
	assert.True(t, all[2].Overridden)
	assert.False(t, all[0].Overridden)

	critical := TimingRecords(jobs, a, overrides, true)
	assert.Len(t, critical, 2)
	for _, r := range critical {
		assert.True(t, r.Critical, r.JobID)
	}

	delta := 15
	sum := NewTimingSummary(a, timing.Summary{Baseline: 25, Delta: &delta, OverrideCount: 1})
	assert.Equal(t, 40, sum.TotalDuration)
	assert.Equal(t, "40m", sum.Duration)
	assert.Equal(t, []string{"a", "c"}, sum.CriticalPath)
	assert.Equal(t, 15, *sum.Delta)
}

func TestJSONLWriter_NewlineTerminated(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "", "jobs.json")

	require.NoError(t, w.WriteJob(context.Background(), &JobRecord{Job: jobgraph.Job{ID: "1"}}))
	require.NoError(t, w.WriteJob(context.Background(), &JobRecord{Job: jobgraph.Job{ID: "2"}}))

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "", "jobs.json")

	require.NoError(t, w.Close())

	err := w.WriteJob(context.Background(), &JobRecord{Job: jobgraph.Job{ID: "1"}})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "", "jobs.json")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)
	for i := 0; i < numWriters; i++ {
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteTiming(context.Background(), &TimingRecord{JobID: "j", EarliestStart: writerID*writesPerWriter + j})
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)
	for i, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record), "line %d should be valid JSON: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "", "jobs.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteError(ctx, &ErrorRecord{Code: ErrCodeInternal})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "", "jobs.json")

	err := w.WriteJob(context.Background(), &JobRecord{Job: jobgraph.Job{ID: "1"}})
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	shortWriter := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(shortWriter, "", "jobs.json")

	require.NoError(t, w.WriteTiming(context.Background(), &TimingRecord{JobID: "a-long-job-identifier", Name: "padding"}))

	lines := strings.Split(strings.TrimSpace(shortWriter.buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, TypeTiming, decodeLine(t, []byte(lines[0]), nil).Type)
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	w := NewJSONLWriter(&zeroWriteWriter{}, "", "jobs.json")

	err := w.WriteJob(context.Background(), &JobRecord{Job: jobgraph.Job{ID: "1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestErrorRecord_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(&ErrorRecord{Code: ErrCodeStore, Message: "locked"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"STORE","message":"locked"}`, string(data))
}

type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (n int, err error) {
	return 0, f.err
}

// shortWriteWriter writes at most bytesPerWrite bytes per call.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (n int, err error) {
	toWrite := min(len(p), sw.bytesPerWrite)
	return sw.buf.Write(p[:toWrite])
}

type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}
