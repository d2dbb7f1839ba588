package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
	"github.com/3leaps/gojobgraph/pkg/workbench"
)

// MaxDocumentBytes bounds uploaded job documents.
const MaxDocumentBytes = 32 << 20

// API serves the /api/v1 routes over a workbench.
type API struct {
	wb     *workbench.Workbench
	logger *zap.Logger
}

func NewAPI(wb *workbench.Workbench, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{wb: wb, logger: logger}
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/mode", a.getMode)
	r.Delete("/store", a.closeStore)
	r.Post("/document", a.loadDocument)

	r.Get("/jobs", a.listJobs)
	r.Get("/jobs/{id}", a.getJob)
	r.Get("/jobs/{id}/lineage", a.getLineage)
	r.Get("/search", a.search)

	r.Route("/timing", func(r chi.Router) {
		r.Get("/", a.getTiming)
		r.Post("/enable", a.enableTiming)
		r.Post("/disable", a.disableTiming)
		r.Delete("/overrides", a.resetOverrides)
		r.Put("/overrides/{id}", a.setOverride)
		r.Delete("/overrides/{id}", a.clearOverride)
		r.Delete("/fixed", a.clearFixed)
		r.Put("/fixed/{id}", a.setFixed)
	})

	r.Route("/explorer", func(r chi.Router) {
		r.Get("/", a.getExplorer)
		r.Post("/seed", a.seedExplorer)
		r.Post("/expand", a.expandExplorer)
		r.Post("/materialize/{id}", a.materializeGhost)
		r.Post("/clear", a.clearExplorer)
	})

	r.Route("/annotations", func(r chi.Router) {
		r.Get("/", a.listAnnotations)
		r.Delete("/", a.clearAnnotations)
		r.Get("/export", a.exportAnnotations)
		r.Post("/import", a.importAnnotations)
		r.Put("/{id}", a.setAnnotation)
		r.Delete("/{id}", a.removeAnnotation)
	})
}

type modeResponse struct {
	Mode          string `json:"mode"`
	Source        string `json:"source,omitempty"`
	Jobs          int    `json:"jobs"`
	Total         int    `json:"total,omitempty"`
	Dataset       string `json:"dataset,omitempty"`
	TimingEnabled bool   `json:"timingEnabled"`
}

func (a *API) modeState() modeResponse {
	resp := modeResponse{
		Mode:          a.wb.Mode().Name(),
		Jobs:          len(a.wb.Jobs()),
		Dataset:       a.wb.DatasetKey(),
		TimingEnabled: a.wb.Session().Enabled(),
	}
	switch m := a.wb.Mode().(type) {
	case workbench.DocumentMode:
		resp.Source = m.Source
	case workbench.ExplorerMode:
		resp.Source = "store"
		resp.Total = m.Total
	}
	return resp
}

func (a *API) getMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.modeState())
}

func (a *API) closeStore(w http.ResponseWriter, r *http.Request) {
	if err := a.wb.CloseStore(); err != nil {
		if errors.Is(err, workbench.ErrWrongMode) {
			respondWithError(w, r, err)
			return
		}
		respondWithError(w, r, apperrors.StoreUnavailable(err))
		return
	}
	writeJSON(w, http.StatusOK, a.modeState())
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.BadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// intParam reads a non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.BadRequest(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}
