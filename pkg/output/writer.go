package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a
// single line of JSON followed by a newline.
type Writer interface {
	WriteTiming(ctx context.Context, rec *TimingRecord) error
	WriteTimingSummary(ctx context.Context, sum *TimingSummaryRecord) error
	WriteJob(ctx context.Context, job *JobRecord) error
	WriteGhost(ctx context.Context, ghost *GhostRecord) error
	WriteValidation(ctx context.Context, v *ValidationRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error

	// Close marks the writer as closed.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized using a mutex so lines never interleave.
type JSONLWriter struct {
	w       io.Writer
	dataset string
	source  string
	now     func() time.Time
	mu      sync.Mutex

	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - dataset: Workspace key of the job set (may be empty)
//   - source: Document path or store description
func NewJSONLWriter(w io.Writer, dataset, source string) *JSONLWriter {
	return &JSONLWriter{
		w:       w,
		dataset: dataset,
		source:  source,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (jw *JSONLWriter) WriteTiming(ctx context.Context, rec *TimingRecord) error {
	return jw.writeRecord(ctx, TypeTiming, rec)
}

func (jw *JSONLWriter) WriteTimingSummary(ctx context.Context, sum *TimingSummaryRecord) error {
	return jw.writeRecord(ctx, TypeTimingSummary, sum)
}

func (jw *JSONLWriter) WriteJob(ctx context.Context, job *JobRecord) error {
	return jw.writeRecord(ctx, TypeJob, job)
}

func (jw *JSONLWriter) WriteGhost(ctx context.Context, ghost *GhostRecord) error {
	return jw.writeRecord(ctx, TypeGhost, ghost)
}

func (jw *JSONLWriter) WriteValidation(ctx context.Context, v *ValidationRecord) error {
	return jw.writeRecord(ctx, TypeValidation, v)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// Close marks the writer as closed.
//
// The underlying writer is NOT closed; that is the caller's job.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line while holding
// the mutex.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:    recordType,
		TS:      jw.now(),
		Dataset: jw.dataset,
		Source:  jw.source,
		Data:    dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with a nil error; a partial line would
	// corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, looping over short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
