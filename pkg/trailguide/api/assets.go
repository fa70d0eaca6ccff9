package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

func (h *Handler) listAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.svc.Store().Assets().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if assets == nil {
		assets = []*trailguide.AssetWithUsage{}
	}

	// ?as_js=1 renders the same JS module that ships inside bundles, for
	// admin-side preview.
	if r.URL.Query().Get("as_js") != "" {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		_, _ = io.WriteString(w, trailguide.MakeAssetListJS(assets, time.Now()))
		return
	}

	render.JSON(w, r, assets)
}

// assetUploadFromRequest pulls the multipart file part plus the optional
// asset_type override out of an upload request.
func assetUploadFromRequest(r *http.Request) (trailguide.AssetUpload, io.Closer, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return trailguide.AssetUpload{}, nil, err
	}
	return trailguide.AssetUpload{
		FileName:     header.Filename,
		TypeOverride: trailguide.AssetType(r.FormValue("asset_type")),
		Body:         file,
	}, file, nil
}

func (h *Handler) createAsset(w http.ResponseWriter, r *http.Request) {
	up, file, err := assetUploadFromRequest(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request must include a file upload")
		return
	}
	defer file.Close()

	a, err := h.svc.CreateAsset(r.Context(), up)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, a)
}

func (h *Handler) getAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Store().Assets().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, a)
}

func (h *Handler) replaceAsset(w http.ResponseWriter, r *http.Request) {
	up, file, err := assetUploadFromRequest(r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Request must include a file upload")
		return
	}
	defer file.Close()

	a, err := h.svc.ReplaceAssetFile(r.Context(), chi.URLParam(r, "id"), up)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, a)
}

func (h *Handler) deleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAsset(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *Handler) assetBytes(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Store().Assets().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if a.Deleted {
		writeError(w, r, &trailguide.NotFoundError{Kind: "asset", ID: a.ID})
		return
	}

	body, err := h.svc.AssetBytes(r.Context(), &a.Asset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := trailguide.AssetContentType(&a.Asset)
	w.Header().Set("Content-Type", contentType)
	if contentType == "application/octet-stream" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", a.FileName))
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", a.FileSize))
	_, _ = io.Copy(w, body)
}

func (h *Handler) assetUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// 404 for unknown assets; usage of a known-but-unreferenced asset is just
	// empty lists.
	if _, err := h.svc.Store().Assets().Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	usage, err := h.svc.AssetUsage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, usage)
}

func (h *Handler) assetTypes(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, trailguide.AssetTypes)
}
