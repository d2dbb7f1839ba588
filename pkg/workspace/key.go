// Package workspace persists per-dataset user state (annotations and
// fixed-time overrides) as JSON sidecar files.
package workspace

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// sampleSize is how many leading job ids identify a dataset.
const sampleSize = 10

// DatasetHash hashes the first ten ids joined by "|" with the 31-multiplier
// string hash over UTF-16 code units, wrapping at 32 bits.
func DatasetHash(ids []string) int32 {
	if len(ids) > sampleSize {
		ids = ids[:sampleSize]
	}
	var h int32
	for _, u := range utf16.Encode([]rune(strings.Join(ids, "|"))) {
		h = h*31 + int32(u)
	}
	return h
}

// AnnotationsKey names the annotation sidecar for a dataset, or "" when
// there are no jobs.
func AnnotationsKey(ids []string) string {
	return datasetKey("annotations", ids)
}

// FixedTimesKey names the fixed-time override sidecar for a dataset, or ""
// when there are no jobs.
func FixedTimesKey(ids []string) string {
	return datasetKey("fixedtimes", ids)
}

func datasetKey(kind string, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return fmt.Sprintf("%s_%d", kind, DatasetHash(ids))
}
