package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

// collectionResource serves one revisioned content type (stations, pages,
// modals) with identical route shapes. generateID assigns a fresh UUID to
// POSTed objects without one; upsertPut lets PUT create unknown IDs instead of
// returning 404.
type collectionResource[T trailguide.Object] struct {
	h          *Handler
	collection func() *trailguide.Collection[T]
	generateID bool
	upsertPut  bool
}

func (c *collectionResource[T]) mount(r chi.Router, prefix string) {
	r.Route(prefix, func(r chi.Router) {
		r.Get("/", c.list)
		r.Post("/", c.create)
		r.Get("/{id}", c.get)
		r.Put("/{id}", c.put)
		r.Delete("/{id}", c.delete)
		r.Get("/{id}/revision/{revision}", c.getRevision)
	})
}

func (c *collectionResource[T]) list(w http.ResponseWriter, r *http.Request) {
	objs, err := c.collection().GetAll(r.Context(), trailguide.ListOptions{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, objs)
}

func (c *collectionResource[T]) create(w http.ResponseWriter, r *http.Request) {
	body, raw, err := decodeObjectBody(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}

	if c.generateID {
		if id, _ := body["id"].(string); id == "" {
			body["id"] = uuid.NewString()
			raw, _ = json.Marshal(body)
		}
	}

	coll := c.collection()
	obj := coll.New()
	if err := json.Unmarshal(raw, obj); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}

	created, err := coll.Set(r.Context(), obj, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

func (c *collectionResource[T]) get(w http.ResponseWriter, r *http.Request) {
	obj, err := c.collection().GetOne(r.Context(), chi.URLParam(r, "id"), trailguide.GetOptions{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, obj)
}

func (c *collectionResource[T]) getRevision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	revision, err := strconv.Atoi(chi.URLParam(r, "revision"))
	if err != nil || revision < 1 {
		writeMessage(w, r, http.StatusBadRequest, "Revision must be a positive integer")
		return
	}

	obj, err := c.collection().GetOne(r.Context(), id,
		trailguide.GetOptions{Revision: revision, IncludeDeleted: true})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, obj)
}

// put applies the request body to the stored object as an RFC 7386 merge
// patch: present keys replace, explicit nulls clear, absent keys are kept.
func (c *collectionResource[T]) put(w http.ResponseWriter, r *http.Request) {
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

	coll := c.collection()

	var merged json.RawMessage
	existing, err := coll.GetOne(r.Context(), id, trailguide.GetOptions{})
	switch {
	case err == nil:
		current, err := json.Marshal(existing)
		if err != nil {
			writeError(w, r, err)
			return
		}
		merged, err = jsonpatch.MergePatch(current, raw)
		if err != nil {
			writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
			return
		}
	case errors.Is(err, trailguide.ErrNotFound) && c.upsertPut:
		body["id"] = id
		merged, _ = json.Marshal(body)
	default:
		writeError(w, r, err)
		return
	}

	obj := coll.New()
	if err := json.Unmarshal(merged, obj); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}

	updated, err := coll.Set(r.Context(), obj, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, updated)
}

func (c *collectionResource[T]) delete(w http.ResponseWriter, r *http.Request) {
	if err := c.collection().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
