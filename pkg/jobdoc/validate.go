package jobdoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/gojobgraph/internal/assets/schemas"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

// SchemaID is the schema identifier for job documents.
const SchemaID = "gojobgraph/v1.0.0/job-document"

var (
	// ErrInvalidDocument indicates the document cannot be loaded at all.
	ErrInvalidDocument = errors.New("invalid job document")

	// ErrSchemaNotFound indicates the embedded schema is missing.
	ErrSchemaNotFound = errors.New("job document schema not found")
)

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

var hhmm = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// ValidationError is a single schema diagnostic.
type ValidationError struct {
	// Path is the JSON pointer to the offending field.
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadError reports a document that produced no usable jobs.
type LoadError struct {
	Errors []string
	// Schema holds envelope diagnostics when the schema check failed.
	Schema []ValidationError
}

func (e *LoadError) Error() string {
	switch len(e.Errors) {
	case 0:
		return ErrInvalidDocument.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrInvalidDocument, e.Errors[0])
	}
	return fmt.Sprintf("%s: %d errors: %s", ErrInvalidDocument, len(e.Errors), strings.Join(e.Errors, "; "))
}

func (e *LoadError) Unwrap() error {
	return ErrInvalidDocument
}

// Result is a loaded document together with the problems found in it.
type Result struct {
	Document *jobgraph.Document
	// Errors lists jobs that were dropped.
	Errors []string
	// Warnings lists fields that were ignored on jobs that were kept.
	Warnings []string
}

// Valid reports whether the document loaded without any problem.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0 && len(r.Warnings) == 0
}

// Messages returns errors followed by warnings.
func (r *Result) Messages() []string {
	out := make([]string, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// Validate checks JSON data and builds the job set.
//
// Jobs missing a required field, or repeating an earlier id, are dropped and
// recorded in Errors. Malformed optional fields are dropped from the job and
// recorded in Warnings. If no job survives and errors were recorded, a
// *LoadError is returned.
func Validate(data []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &LoadError{Errors: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &LoadError{Errors: []string{"Input must be a JSON object"}}
	}
	items, ok := obj["jobs"].([]any)
	if !ok {
		return nil, &LoadError{Errors: []string{`Missing or invalid "jobs" array`}}
	}
	if diags, err := validateEnvelope(data); err != nil {
		return nil, err
	} else if len(diags) > 0 {
		le := &LoadError{Schema: diags}
		for _, d := range diags {
			le.Errors = append(le.Errors, d.Error())
		}
		return nil, le
	}

	res := &Result{Document: &jobgraph.Document{Jobs: []jobgraph.Job{}}}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		m, _ := item.(map[string]any)
		id, _ := m["id"].(string)
		if id == "" {
			res.Errors = append(res.Errors, fmt.Sprintf(`Job at index %d: missing or invalid "id"`, i))
			continue
		}
		if seen[id] {
			res.Errors = append(res.Errors, fmt.Sprintf(`Duplicate job ID: "%s"`, id))
			continue
		}
		if name, _ := m["name"].(string); name == "" {
			res.Errors = append(res.Errors, fmt.Sprintf(`Job "%s": missing or invalid "name"`, id))
			continue
		}
		if _, ok := m["dependencies"].([]any); !ok {
			res.Errors = append(res.Errors, fmt.Sprintf(`Job "%s": "dependencies" must be an array`, id))
			continue
		}

		job, warnings := buildJob(m)
		res.Warnings = append(res.Warnings, warnings...)
		seen[id] = true
		res.Document.Jobs = append(res.Document.Jobs, job)
	}

	if len(res.Document.Jobs) == 0 && len(res.Errors) > 0 {
		return nil, &LoadError{Errors: res.Messages()}
	}

	if md, ok := obj["metadata"].(map[string]any); ok {
		meta := &jobgraph.Metadata{}
		meta.ExportDate, _ = md["exportDate"].(string)
		meta.Source, _ = md["source"].(string)
		meta.Version, _ = md["version"].(string)
		res.Document.Metadata = meta
	}
	return res, nil
}

// buildJob converts a job object that passed the required-field checks.
func buildJob(m map[string]any) (jobgraph.Job, []string) {
	job := jobgraph.Job{Dependencies: []string{}}
	job.ID, _ = m["id"].(string)
	job.Name, _ = m["name"].(string)

	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(`Job "%s": `, job.ID)+fmt.Sprintf(format, args...))
	}

	for _, d := range m["dependencies"].([]any) {
		s, ok := d.(string)
		if !ok {
			warn(`"dependencies" entries must be strings`)
			continue
		}
		job.Dependencies = append(job.Dependencies, s)
	}

	strField := func(key string, dst *string) {
		v, present := m[key]
		if !present || v == nil {
			return
		}
		s, ok := v.(string)
		if !ok {
			warn(`"%s" must be a string`, key)
			return
		}
		*dst = s
	}
	strField("description", &job.Description)
	strField("machine", &job.Machine)
	strField("owner", &job.Owner)
	strField("command", &job.Command)
	strField("condition", &job.Condition)
	strField("schedule", &job.Schedule)

	var typ string
	strField("type", &typ)
	if typ != "" {
		if t, err := jobgraph.ParseJobType(typ); err == nil {
			job.Type = t
		} else {
			warn(`unknown "type" %q`, typ)
		}
	}

	for _, key := range []string{"lastRunStart", "lastRunEnd"} {
		v, present := m[key]
		if !present || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok || !hhmm.MatchString(s) {
			warn(`"%s" must be in HH:MM format`, key)
			continue
		}
		if key == "lastRunStart" {
			job.LastRunStart = s
		} else {
			job.LastRunEnd = s
		}
	}

	if v, present := m["fixedStartTime"]; present && v != nil {
		if b, ok := v.(bool); ok {
			job.FixedStartTime = b
		} else {
			warn(`"fixedStartTime" must be a boolean`)
		}
	}

	if v, present := m["avgDurationMinutes"]; present && v != nil {
		n, ok := v.(json.Number)
		f, err := n.Float64()
		switch {
		case !ok || err != nil:
			warn(`"avgDurationMinutes" must be a number`)
		case f != math.Trunc(f):
			r := int(math.Round(f))
			job.AvgDurationMinutes = &r
			warn(`"avgDurationMinutes" rounded to %d`, r)
		default:
			d := int(f)
			job.AvgDurationMinutes = &d
		}
	}

	listField := func(key string, dst *[]string) {
		v, present := m[key]
		if !present || v == nil {
			return
		}
		arr, ok := v.([]any)
		if !ok {
			warn(`"%s" must be an array of strings`, key)
			return
		}
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			s, ok := e.(string)
			if !ok {
				warn(`"%s" must be an array of strings`, key)
				return
			}
			out = append(out, s)
		}
		*dst = out
	}
	listField("tags", &job.Tags)
	listField("tablesRead", &job.TablesRead)
	listField("tablesWritten", &job.TablesWritten)

	if v, present := m["customAttributes"]; present && v != nil {
		attrs, ok := v.(map[string]any)
		if !ok {
			warn(`"customAttributes" must be an object`)
		} else {
			job.CustomAttributes = make(map[string]string, len(attrs))
			for k, av := range attrs {
				switch tv := av.(type) {
				case string:
					job.CustomAttributes[k] = tv
				case json.Number:
					job.CustomAttributes[k] = tv.String()
				case bool:
					job.CustomAttributes[k] = fmt.Sprint(tv)
				default:
					warn(`"customAttributes.%s" must be a scalar`, k)
				}
			}
		}
	}

	return job, warnings
}

// validateEnvelope checks the document against the embedded schema.
func validateEnvelope(data []byte) ([]ValidationError, error) {
	v, err := getValidator()
	if err != nil {
		return nil, err
	}
	diags, err := v.ValidateJSON(data)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	var errs []ValidationError
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
		}
	}
	return errs, nil
}

func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.JobDocumentSchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded job-document schema is empty", ErrSchemaNotFound)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.JobDocumentSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("failed to compile job document schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
