package provider

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Location is a parsed document location.
//
// Supported forms:
//   - s3://bucket/key/jobs.json
//   - file:///abs/path/jobs.yaml
//   - path/to/jobs.json (relative or absolute filesystem path)
type Location struct {
	Provider ProviderType

	// Bucket is set for object storage locations.
	Bucket string

	// Key is the object key. For file locations it is the base name and
	// Dir holds the containing directory.
	Key string
	Dir string
}

// String returns the location in canonical form.
func (l Location) String() string {
	if l.Provider == ProviderS3 {
		return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
	}
	return filepath.Join(l.Dir, l.Key)
}

// ParseLocation parses an s3:// URI, a file:// URI or a plain path.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty location", ErrInvalidURI)
	}

	schemeEnd := strings.Index(raw, "://")
	if schemeEnd == -1 {
		return fileLocation(raw), nil
	}

	scheme := strings.ToLower(raw[:schemeEnd])
	rest := raw[schemeEnd+3:]
	switch scheme {
	case "file":
		if rest == "" {
			return Location{}, fmt.Errorf("%w: empty path in %s", ErrInvalidURI, raw)
		}
		return fileLocation(rest), nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("%w: missing bucket in %s", ErrInvalidURI, raw)
		}
		if key == "" || strings.HasSuffix(key, "/") {
			return Location{}, fmt.Errorf("%w: missing object key in %s", ErrInvalidURI, raw)
		}
		if _, err := url.Parse("s3://" + bucket + "/"); err != nil {
			return Location{}, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
		}
		return Location{Provider: ProviderS3, Bucket: bucket, Key: key}, nil
	}
	return Location{}, fmt.Errorf("%w: %s (supported: s3, file)", ErrUnsupportedProvider, scheme)
}

func fileLocation(path string) Location {
	clean := filepath.Clean(path)
	return Location{Provider: ProviderFile, Dir: filepath.Dir(clean), Key: filepath.Base(clean)}
}
