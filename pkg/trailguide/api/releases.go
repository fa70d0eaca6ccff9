package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

func (h *Handler) listReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := h.svc.Store().Releases().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if releases == nil {
		releases = []*trailguide.Release{}
	}
	render.JSON(w, r, releases)
}

func (h *Handler) createRelease(w http.ResponseWriter, r *http.Request) {
	body, _, err := decodeObjectBody(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}
	notes, _ := body["release_notes"].(string)

	release, err := h.svc.CreateRelease(r.Context(), notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, release)
}

func (h *Handler) latestRelease(w http.ResponseWriter, r *http.Request) {
	release, err := h.svc.Store().Releases().Latest(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, release)
}

func (h *Handler) releaseFromURL(r *http.Request) (*trailguide.Release, error) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		return nil, &trailguide.NotFoundError{Kind: "release", ID: chi.URLParam(r, "version")}
	}
	return h.svc.Store().Releases().Get(r.Context(), version)
}

func (h *Handler) getRelease(w http.ResponseWriter, r *http.Request) {
	release, err := h.releaseFromURL(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, release)
}

// putRelease updates the mutable release fields. version, bundle_path, and
// submitted_dt are fixed at creation; published_dt transitions from null to
// the server clock exactly once, whatever timestamp the client sent.
func (h *Handler) putRelease(w http.ResponseWriter, r *http.Request) {
	release, err := h.releaseFromURL(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, _, err := decodeObjectBody(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request body must be an object")
		return
	}

	if v, ok := body["version"]; ok {
		if f, isNum := v.(float64); !isNum || int(f) != release.Version {
			writeMessage(w, r, http.StatusBadRequest, "Cannot alter version")
			return
		}
	}
	if v, ok := body["bundle_path"].(string); ok && v != release.BundlePath {
		writeMessage(w, r, http.StatusBadRequest, "Cannot alter bundle_path")
		return
	}
	if v, ok := body["submitted_dt"].(string); ok && v != release.SubmittedDT {
		writeMessage(w, r, http.StatusBadRequest, "Cannot alter submitted_dt")
		return
	}

	if notes, ok := body["release_notes"].(string); ok {
		release.ReleaseNotes = notes
	}
	if v, ok := body["published_dt"]; ok && v != nil && release.PublishedDT == nil {
		now := trailguide.UTCTimestamp(time.Now())
		release.PublishedDT = &now
	}

	updated, err := h.svc.Store().Releases().Update(r.Context(), release)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, updated)
}

// releaseBundle streams a release archive. Authorization accepts either a
// bearer token with read scope or a single-use ?token= minted via POST /ott.
func (h *Handler) releaseBundle(w http.ResponseWriter, r *http.Request) {
	if ott := r.URL.Query().Get("token"); ott != "" {
		if err := h.svc.ConsumeToken(r.Context(), ott, trailguide.ScopeReadContent); err != nil {
			writeMessage(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
	} else if err := h.authz.Authorize(r, trailguide.ScopeReadContent); err != nil {
		writeMessage(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	release, err := h.releaseFromURL(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, err := h.svc.BundleReader(r.Context(), release)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("release-%d.zip", release.Version)))
	if release.BundleSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(release.BundleSize, 10))
	}
	_, _ = io.Copy(w, body)
}

func (h *Handler) mintToken(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.MintToken(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, t)
}
