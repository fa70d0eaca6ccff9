// Package api exposes the content service over HTTP. Routes are mounted under
// the caller's /api/v1 prefix; responses are JSON via go-chi/render, and
// errors use the message bodies the admin client expects.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/auth"
)

// Handler holds the service and the request gate.
type Handler struct {
	svc     *trailguide.Service
	authz   auth.Authorizer
	maxBody int64
}

// NewHandler builds the API handler. maxBody caps request body size in bytes;
// zero means no cap.
func NewHandler(svc *trailguide.Service, authz auth.Authorizer, maxBody int64) *Handler {
	return &Handler{svc: svc, authz: authz, maxBody: maxBody}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.limitBody)

	// Public: asset bytes are fetched by <img>/<video> tags that cannot carry
	// an Authorization header, and feedback comes from app visitors.
	r.Get("/assets/{id}/bytes", h.assetBytes)
	r.Post("/feedback", h.createFeedback)
	// Bundle downloads accept a one-time ?token= as well as a bearer token.
	r.Get("/releases/{version}/bundle", h.releaseBundle)

	r.Group(func(r chi.Router) {
		r.Use(h.requireScope)

		stations := &collectionResource[*trailguide.Station]{
			h:          h,
			collection: func() *trailguide.Collection[*trailguide.Station] { return h.svc.Stations },
			generateID: true,
		}
		pages := &collectionResource[*trailguide.Page]{
			h:          h,
			collection: func() *trailguide.Collection[*trailguide.Page] { return h.svc.Pages },
			upsertPut:  true,
		}
		modals := &collectionResource[*trailguide.Modal]{
			h:          h,
			collection: func() *trailguide.Collection[*trailguide.Modal] { return h.svc.Modals },
			upsertPut:  true,
		}
		stations.mount(r, "/stations")
		pages.mount(r, "/pages")
		modals.mount(r, "/modals")

		r.Get("/sections", h.listSections)
		r.Get("/sections/{id}", h.getSection)
		r.Put("/sections/{id}", h.putSection)

		r.Get("/categories", h.listCategories)
		r.Put("/categories", h.putCategories)

		r.Get("/layers", h.listLayers)
		r.Get("/layers/{id}", h.getLayer)
		r.Put("/layers/{id}", h.putLayer)
		r.Delete("/layers/{id}", h.deleteLayer)

		r.Get("/assets", h.listAssets)
		r.Post("/assets", h.createAsset)
		r.Get("/assets/{id}", h.getAsset)
		r.Put("/assets/{id}", h.replaceAsset)
		r.Delete("/assets/{id}", h.deleteAsset)
		r.Get("/assets/{id}/usage", h.assetUsage)
		r.Get("/asset_types", h.assetTypes)

		r.Get("/releases", h.listReleases)
		r.Post("/releases", h.createRelease)
		r.Get("/releases/latest", h.latestRelease)
		r.Get("/releases/{version}", h.getRelease)
		r.Put("/releases/{version}", h.putRelease)

		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)

		r.Get("/feedback", h.listFeedback)
		r.Get("/feedback/{id}", h.getFeedback)

		r.Post("/ott", h.mintToken)
		r.Get("/search", h.search)
		r.Get("/config", h.getConfig)
	})

	return r
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.maxBody > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// requireScope gates requests: safe methods need read:content, everything
// else manage:content.
func (h *Handler) requireScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := trailguide.ScopeManageContent
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			scope = trailguide.ScopeReadContent
		}
		if err := h.authz.Authorize(r, scope); err != nil {
			writeMessage(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]any{"message": message})
}

// writeError maps domain errors onto HTTP statuses and the response bodies
// the admin client expects.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound   *trailguide.NotFoundError
		validation *trailguide.ValidationError
		immutable  *trailguide.ImmutableFieldError
	)

	switch {
	case errors.As(err, &notFound):
		writeMessage(w, r, http.StatusNotFound, capitalize(notFound.Error()))
	case errors.Is(err, trailguide.ErrNotFound):
		writeMessage(w, r, http.StatusNotFound, "Not found")
	case errors.As(err, &validation):
		msgs := make([]string, len(validation.Violations))
		for i, v := range validation.Violations {
			msgs[i] = v.String()
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]any{
			"message": "Object validation failed",
			"errors":  msgs,
		})
	case errors.As(err, &immutable):
		writeMessage(w, r, http.StatusBadRequest, capitalize(immutable.Error()))
	case errors.Is(err, trailguide.ErrUnknownAssetType):
		writeMessage(w, r, http.StatusBadRequest, capitalize(trailguide.ErrUnknownAssetType.Error()))
	default:
		writeMessage(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// decodeObjectBody reads the request body as a JSON object.
func decodeObjectBody(r *http.Request) (map[string]any, json.RawMessage, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, err
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, nil, errBodyNotObject
	}
	return body, raw, nil
}

var errBodyNotObject = errors.New("request body must be an object")
