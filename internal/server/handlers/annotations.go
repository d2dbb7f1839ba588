package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
	"github.com/3leaps/gojobgraph/pkg/annotations"
)

func (a *API) listAnnotations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset":     a.wb.DatasetKey(),
		"annotations": a.wb.Annotations(),
	})
}

func (a *API) setAnnotation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text  string `json:"text"`
		Color string `json:"color"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondWithError(w, r, err)
		return
	}
	color, err := annotations.ParseColor(body.Color)
	if err != nil {
		respondWithError(w, r, apperrors.BadRequest(err.Error()).WithDetails(map[string]any{
			"field": "color",
			"value": body.Color,
		}))
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.wb.SetAnnotation(id, body.Text, color); err != nil {
		respondWithError(w, r, err)
		return
	}
	note, _ := a.wb.Annotation(id)
	writeJSON(w, http.StatusOK, note)
}

func (a *API) removeAnnotation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := a.wb.RemoveAnnotation(id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if !removed {
		respondWithError(w, r, apperrors.NotFound("no annotation for job: "+id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) clearAnnotations(w http.ResponseWriter, r *http.Request) {
	if err := a.wb.ClearAnnotations(); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) exportAnnotations(w http.ResponseWriter, r *http.Request) {
	data, err := a.wb.ExportAnnotations()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="annotations.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) importAnnotations(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		respondWithError(w, r, apperrors.BadRequest("failed to read body"))
		return
	}
	ok, err := a.wb.ImportAnnotations(data)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if !ok {
		respondWithError(w, r, apperrors.BadRequest("annotations must be a JSON array"))
		return
	}
	a.listAnnotations(w, r)
}
