// Package annotations holds per-job sticky notes.
package annotations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"unicode/utf8"
)

// MaxTextLength is the longest note text kept, in characters.
const MaxTextLength = 80

// Color is a note highlight color.
type Color string

const (
	Yellow Color = "yellow"
	Cyan   Color = "cyan"
	Pink   Color = "pink"
	Lime   Color = "lime"
	Orange Color = "orange"
	Violet Color = "violet"
)

// Colors lists the accepted colors in display order.
var Colors = []Color{Yellow, Cyan, Pink, Lime, Orange, Violet}

// ErrInvalidColor is returned for a color outside Colors.
var ErrInvalidColor = errors.New("invalid annotation color")

func (c Color) Valid() bool {
	return slices.Contains(Colors, c)
}

// ParseColor validates s as a Color.
func ParseColor(s string) (Color, error) {
	c := Color(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return c, nil
}

// Annotation is a note attached to one job.
type Annotation struct {
	JobID string `json:"jobId"`
	Text  string `json:"text"`
	Color Color  `json:"color"`
}

// SizeClass buckets note text for display: short, medium or long.
func SizeClass(text string) string {
	switch n := utf8.RuneCountInString(text); {
	case n <= 20:
		return "short"
	case n <= 45:
		return "medium"
	}
	return "long"
}

// Collection is a set of annotations keyed by job id. It is safe for
// concurrent use.
type Collection struct {
	mu    sync.Mutex
	notes map[string]Annotation
}

func New() *Collection {
	return &Collection{notes: make(map[string]Annotation)}
}

// Set creates or replaces the note for jobID. Text beyond MaxTextLength
// characters is cut.
func (c *Collection) Set(jobID, text string, color Color) error {
	if jobID == "" {
		return errors.New("annotation job id is required")
	}
	if !color.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes[jobID] = Annotation{JobID: jobID, Text: truncate(text), Color: color}
	return nil
}

// Remove deletes the note for jobID and reports whether one existed.
func (c *Collection) Remove(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.notes[jobID]
	delete(c.notes, jobID)
	return ok
}

func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = make(map[string]Annotation)
}

func (c *Collection) Get(jobID string) (Annotation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.notes[jobID]
	return a, ok
}

func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}

// List returns every note sorted by job id.
func (c *Collection) List() []Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Annotation, 0, len(c.notes))
	for _, a := range c.notes {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Annotation) int {
		switch {
		case a.JobID < b.JobID:
			return -1
		case a.JobID > b.JobID:
			return 1
		}
		return 0
	})
	return out
}

// Replace swaps the whole set for list, applying the same filtering as
// Import.
func (c *Collection) Replace(list []Annotation) {
	next := make(map[string]Annotation, len(list))
	for _, a := range list {
		if a.JobID == "" || !a.Color.Valid() {
			continue
		}
		a.Text = truncate(a.Text)
		next[a.JobID] = a
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = next
}

// Export renders the set as an indented JSON array.
func (c *Collection) Export() ([]byte, error) {
	data, err := json.MarshalIndent(c.List(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export annotations: %w", err)
	}
	return data, nil
}

// Import replaces the set with the notes in data and reports whether it did.
//
// Anything other than a JSON array leaves the set untouched. Entries that
// do not decode as a note, lack a job id or carry an unknown color are
// skipped.
func (c *Collection) Import(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return false
	}
	list := make([]Annotation, 0, len(raw))
	for _, entry := range raw {
		var a Annotation
		if err := json.Unmarshal(entry, &a); err != nil {
			continue
		}
		list = append(list, a)
	}
	c.Replace(list)
	return true
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxTextLength {
		return s
	}
	return string([]rune(s)[:MaxTextLength])
}
