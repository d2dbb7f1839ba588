package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
	"github.com/3leaps/gojobgraph/pkg/timing"
)

type timingResponse struct {
	Enabled   bool                     `json:"enabled"`
	Analysis  *timing.Analysis         `json:"analysis,omitempty"`
	Summary   *timing.Summary          `json:"summary,omitempty"`
	Overrides timing.DurationOverrides `json:"overrides"`
	Fixed     map[string]bool          `json:"fixed"`
}

func (a *API) timingState() timingResponse {
	s := a.wb.Session()
	resp := timingResponse{
		Enabled:   s.Enabled(),
		Overrides: s.DurationOverrides(),
		Fixed:     s.FixedOverrides(),
	}
	if an, sum, ok := s.Evaluate(); ok {
		resp.Analysis = an
		resp.Summary = &sum
	}
	return resp
}

func (a *API) getTiming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.timingState())
}

func (a *API) enableTiming(w http.ResponseWriter, r *http.Request) {
	a.wb.Session().Enable()
	writeJSON(w, http.StatusOK, a.timingState())
}

// disableTiming also drops every duration override.
func (a *API) disableTiming(w http.ResponseWriter, r *http.Request) {
	a.wb.Session().Disable()
	writeJSON(w, http.StatusOK, a.timingState())
}

func (a *API) setOverride(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Minutes *int `json:"minutes"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondWithError(w, r, err)
		return
	}
	if body.Minutes == nil {
		respondWithError(w, r, apperrors.BadRequest("minutes is required"))
		return
	}
	if err := a.wb.Session().SetDurationOverride(chi.URLParam(r, "id"), *body.Minutes); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.timingState())
}

func (a *API) clearOverride(w http.ResponseWriter, r *http.Request) {
	a.wb.Session().ClearDurationOverride(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, a.timingState())
}

func (a *API) resetOverrides(w http.ResponseWriter, r *http.Request) {
	a.wb.Session().ResetDurationOverrides()
	writeJSON(w, http.StatusOK, a.timingState())
}

func (a *API) setFixed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fixed *bool `json:"fixed"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondWithError(w, r, err)
		return
	}
	if body.Fixed == nil {
		respondWithError(w, r, apperrors.BadRequest("fixed is required"))
		return
	}
	if err := a.wb.SetFixedOverride(chi.URLParam(r, "id"), *body.Fixed); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.timingState())
}

func (a *API) clearFixed(w http.ResponseWriter, r *http.Request) {
	if err := a.wb.ClearFixedOverrides(); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.timingState())
}
