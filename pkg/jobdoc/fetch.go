package jobdoc

import (
	"context"
	"fmt"
	"io"

	"github.com/3leaps/gojobgraph/pkg/provider"
)

// MaxDocumentBytes caps documents read through a provider.
const MaxDocumentBytes = 64 << 20

// Fetch reads and validates a document stored under key.
//
// The format is taken from the key's extension.
func Fetch(ctx context.Context, getter provider.ObjectGetter, key string) (*Result, error) {
	body, size, err := getter.GetObject(ctx, key)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, fmt.Errorf("job document not found: %s: %w", key, err)
		}
		return nil, fmt.Errorf("failed to fetch job document: %w", err)
	}
	defer func() { _ = body.Close() }()

	if size > MaxDocumentBytes {
		return nil, fmt.Errorf("job document too large: %d bytes (max %d)", size, MaxDocumentBytes)
	}
	return LoadFromReader(&limitedReader{r: body, n: MaxDocumentBytes + 1}, FormatFromPath(key))
}

type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, fmt.Errorf("job document exceeds %d bytes", MaxDocumentBytes)
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}
