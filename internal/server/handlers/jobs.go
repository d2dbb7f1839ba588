package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
	"github.com/3leaps/gojobgraph/internal/metrics"
	"github.com/3leaps/gojobgraph/pkg/annotations"
	"github.com/3leaps/gojobgraph/pkg/jobdoc"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/output"
	"github.com/3leaps/gojobgraph/pkg/workbench"
)

type documentResponse struct {
	Jobs     int      `json:"jobs"`
	Dataset  string   `json:"dataset"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// formatFor picks a document format from ?format= or the Content-Type.
func formatFor(r *http.Request) (jobdoc.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		switch jobdoc.Format(strings.ToLower(f)) {
		case jobdoc.FormatJSON, jobdoc.FormatYAML, jobdoc.FormatTOML:
			return jobdoc.Format(strings.ToLower(f)), nil
		}
		return "", apperrors.BadRequest(fmt.Sprintf("unsupported format %q", f))
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		return jobdoc.FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml":
		return jobdoc.FormatYAML, nil
	case "application/toml":
		return jobdoc.FormatTOML, nil
	}
	return jobdoc.FormatAuto, nil
}

func (a *API) loadDocument(w http.ResponseWriter, r *http.Request) {
	format, err := formatFor(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDocumentBytes))
	if err != nil {
		respondWithError(w, r, apperrors.New(http.StatusRequestEntityTooLarge, apperrors.CodeInvalidArgument, "job document too large"))
		return
	}

	res, err := jobdoc.LoadFromBytes(data, format)
	metrics.ObserveDocumentLoad(err)
	if err != nil {
		var le *jobdoc.LoadError
		if !errors.As(err, &le) {
			err = apperrors.BadRequest(err.Error())
		}
		respondWithError(w, r, err)
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	if err := a.wb.LoadDocument(res.Document, source); err != nil {
		respondWithError(w, r, err)
		return
	}
	a.logger.Info("Job document uploaded",
		zap.String("source", source),
		zap.Int("jobs", len(res.Document.Jobs)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)))

	writeJSON(w, http.StatusOK, documentResponse{
		Jobs:     len(res.Document.Jobs),
		Dataset:  a.wb.DatasetKey(),
		Errors:   nonNil(res.Errors),
		Warnings: nonNil(res.Warnings),
	})
}

type graphResponse struct {
	Mode        string                   `json:"mode"`
	Nodes       []jobgraph.Node          `json:"nodes"`
	Edges       []jobgraph.Edge          `json:"edges"`
	Matches     []string                 `json:"matches"`
	TypeCounts  map[jobgraph.JobType]int `json:"typeCounts"`
	Annotations []annotations.Annotation `json:"annotations"`
}

// filterFrom builds a display filter from ?q=, ?match= and ?hide=.
func filterFrom(r *http.Request) (jobgraph.Filter, error) {
	q := r.URL.Query()
	f := jobgraph.Filter{Query: q.Get("q"), Patterns: q["match"]}
	for _, raw := range q["hide"] {
		t, err := jobgraph.ParseJobType(raw)
		if err != nil {
			return f, apperrors.BadRequest(err.Error())
		}
		if f.Types == nil {
			f.Types = make(map[jobgraph.JobType]bool)
		}
		f.Types[t] = false
	}
	if err := f.Validate(); err != nil {
		return f, apperrors.BadRequest(err.Error())
	}
	return f, nil
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	f, err := filterFrom(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	g := a.wb.Graph()
	visible := g.Visible(f)
	writeJSON(w, http.StatusOK, graphResponse{
		Mode:        a.wb.Mode().Name(),
		Nodes:       visible.Nodes(),
		Edges:       visible.Edges(),
		Matches:     nonNil(visible.SearchMatches(f)),
		TypeCounts:  g.TypeCounts(),
		Annotations: a.wb.Annotations(),
	})
}

// storeErr classifies an error from a store-backed call.
func storeErr(err error) error {
	if errors.Is(err, workbench.ErrWrongMode) {
		return err
	}
	return apperrors.StoreUnavailable(err)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.wb.Job(r.Context(), id)
	if err != nil {
		respondWithError(w, r, storeErr(err))
		return
	}
	if job == nil {
		respondWithError(w, r, apperrors.NotFound("job not found: "+id))
		return
	}
	rec := output.JobRecord{Job: *job}
	if note, ok := a.wb.Annotation(id); ok {
		rec.Annotation = &note
	}
	writeJSON(w, http.StatusOK, rec)
}

type lineageResponse struct {
	ID        string             `json:"id"`
	Direction jobgraph.Direction `json:"direction"`
	IDs       []string           `json:"ids"`
	Edges     []string           `json:"edges"`
	Tree      *jobgraph.Lineage  `json:"tree"`
}

func (a *API) getLineage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir := jobgraph.Upstream
	switch r.URL.Query().Get("direction") {
	case "", "up", "upstream":
	case "down", "downstream":
		dir = jobgraph.Downstream
	default:
		respondWithError(w, r, apperrors.BadRequest("direction must be up or down"))
		return
	}
	depth, err := intParam(r, "depth", 0)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	g := a.wb.Graph()
	if !g.HasNode(id) {
		respondWithError(w, r, apperrors.NotFound("job not found: "+id))
		return
	}
	ids := g.Upstream(id)
	if dir == jobgraph.Downstream {
		ids = g.Downstream(id)
	}
	writeJSON(w, http.StatusOK, lineageResponse{
		ID:        id,
		Direction: dir,
		IDs:       nonNil(ids),
		Edges:     nonNil(g.LineageEdges(id)),
		Tree:      g.LineageTree(id, dir, depth),
	})
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondWithError(w, r, apperrors.BadRequest("q is required"))
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	hits, err := a.wb.Search(r.Context(), q, limit)
	if err != nil {
		respondWithError(w, r, storeErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": hits})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
