package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
	"github.com/3leaps/gojobgraph/pkg/explorer"
)

// DefaultLevels is the neighborhood depth used when a request omits one.
const DefaultLevels = 1

type expandRequest struct {
	ID   string `json:"id"`
	Up   *int   `json:"up"`
	Down *int   `json:"down"`
}

func (req expandRequest) levels() (int, int, error) {
	up, down := DefaultLevels, DefaultLevels
	if req.Up != nil {
		up = *req.Up
	}
	if req.Down != nil {
		down = *req.Down
	}
	if up < 0 || down < 0 {
		return 0, 0, apperrors.BadRequest("up and down must not be negative")
	}
	return up, down, nil
}

func (a *API) explorerState(e *explorer.Engine) map[string]any {
	state, g := e.View()
	return map[string]any{
		"state": state,
		"nodes": g.Nodes(),
		"edges": g.Edges(),
	}
}

func (a *API) getExplorer(w http.ResponseWriter, r *http.Request) {
	e, err := a.wb.Explorer()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.explorerState(e))
}

// runExplorer decodes the request, checks that the job exists and applies op.
func (a *API) runExplorer(w http.ResponseWriter, r *http.Request, op func(e *explorer.Engine, req expandRequest, up, down int) error) {
	e, err := a.wb.Explorer()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var req expandRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	if req.ID == "" {
		respondWithError(w, r, apperrors.BadRequest("id is required"))
		return
	}
	up, down, err := req.levels()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	job, err := a.wb.Job(r.Context(), req.ID)
	if err != nil {
		respondWithError(w, r, storeErr(err))
		return
	}
	if job == nil {
		respondWithError(w, r, apperrors.NotFound("job not found: "+req.ID))
		return
	}
	if err := op(e, req, up, down); err != nil {
		respondWithError(w, r, apperrors.StoreUnavailable(err))
		return
	}
	a.wb.Sync()
	writeJSON(w, http.StatusOK, a.explorerState(e))
}

func (a *API) seedExplorer(w http.ResponseWriter, r *http.Request) {
	a.runExplorer(w, r, func(e *explorer.Engine, req expandRequest, up, down int) error {
		return e.SetStartingNode(r.Context(), req.ID, up, down)
	})
}

func (a *API) expandExplorer(w http.ResponseWriter, r *http.Request) {
	a.runExplorer(w, r, func(e *explorer.Engine, req expandRequest, up, down int) error {
		return e.ExpandFromNode(r.Context(), req.ID, up, down)
	})
}

func (a *API) materializeGhost(w http.ResponseWriter, r *http.Request) {
	e, err := a.wb.Explorer()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := e.MaterializeGhost(r.Context(), id); err != nil {
		respondWithError(w, r, apperrors.StoreUnavailable(err))
		return
	}
	a.wb.Sync()
	writeJSON(w, http.StatusOK, a.explorerState(e))
}

func (a *API) clearExplorer(w http.ResponseWriter, r *http.Request) {
	e, err := a.wb.Explorer()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	e.ClearGraph()
	a.wb.Sync()
	writeJSON(w, http.StatusOK, a.explorerState(e))
}
