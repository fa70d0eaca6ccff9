package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

func (h *Handler) listSections(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("nest_stations") != "" {
		nested, err := h.svc.SectionsWithStations(r.Context(), false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, nested)
		return
	}

	sections, err := h.svc.Store().Sections().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sections == nil {
		sections = []*trailguide.Section{}
	}
	render.JSON(w, r, sections)
}

func (h *Handler) getSection(w http.ResponseWriter, r *http.Request) {
	sec, err := h.svc.Store().Sections().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, sec)
}

func (h *Handler) putSection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, raw, err := decodeObjectBody(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}
	if bodyID, ok := body["id"].(string); ok && bodyID != id {
		writeMessage(w, r, http.StatusBadRequest, "Cannot alter object ID")
		return
	}

	var sec trailguide.Section
	if err := json.Unmarshal(raw, &sec); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}
	sec.ID = id

	if violations := trailguide.ValidateSection(&sec); len(violations) > 0 {
		writeError(w, r, &trailguide.ValidationError{Violations: violations})
		return
	}

	stored, err := h.svc.Store().Sections().Set(r.Context(), &sec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, stored)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Store().Categories().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, categories)
}

// putCategories replaces the whole category list; the body is a JSON array of
// category ID strings in display order.
func (h *Handler) putCategories(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an array of strings")
		return
	}

	if err := h.svc.Store().Categories().Replace(r.Context(), ids); err != nil {
		writeError(w, r, err)
		return
	}

	stored, err := h.svc.Store().Categories().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, stored)
}

func (h *Handler) listLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := h.svc.Store().Layers().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, layers)
}

func (h *Handler) getLayer(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Store().Layers().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, l)
}

func (h *Handler) putLayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, raw, err := decodeObjectBody(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}
	if bodyID, ok := body["id"].(string); ok && bodyID != id {
		writeMessage(w, r, http.StatusBadRequest, "Cannot alter object ID")
		return
	}

	var l trailguide.Layer
	if err := json.Unmarshal(raw, &l); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}
	l.ID = id

	if violations := trailguide.ValidateLayer(&l); len(violations) > 0 {
		writeError(w, r, &trailguide.ValidationError{Violations: violations})
		return
	}

	stored, err := h.svc.Store().Layers().Set(r.Context(), &l)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, stored)
}

func (h *Handler) deleteLayer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Store().Layers().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Store().Settings().Get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, settings)
}

// putSettings merges the request body's keys into the stored settings.
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	body, _, err := decodeObjectBody(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}

	settings, err := h.svc.Store().Settings().Merge(r.Context(), trailguide.Settings(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, settings)
}

func (h *Handler) listFeedback(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Store().Feedback().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, items)
}

func (h *Handler) getFeedback(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Store().Feedback().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, f)
}

// createFeedback records a visitor submission, assigning the ID and the
// submission timestamp server-side.
func (h *Handler) createFeedback(w http.ResponseWriter, r *http.Request) {
	_, raw, err := decodeObjectBody(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}

	var f trailguide.FeedbackItem
	if err := json.Unmarshal(raw, &f); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}
	f.ID = uuid.NewString()
	f.Submitted = trailguide.UTCTimestamp(time.Now())

	if violations := trailguide.ValidateFeedbackItem(&f); len(violations) > 0 {
		writeError(w, r, &trailguide.ValidationError{Violations: violations})
		return
	}

	stored, err := h.svc.Store().Feedback().Set(r.Context(), &f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, stored)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeMessage(w, r, http.StatusBadRequest, "Missing query parameter q")
		return
	}

	results, err := h.svc.Search(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, results)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.svc.PublicConfig())
}
