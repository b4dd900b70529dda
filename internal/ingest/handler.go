package ingest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pixelgrove/service/internal/derivative"
	"github.com/pixelgrove/service/internal/response"
	"github.com/pixelgrove/service/internal/storage"
)

// Handler holds HTTP handlers for asset lifecycle endpoints.
type Handler struct {
	orch *Orchestrator
	plan []derivative.Spec
}

// NewHandler creates a new ingest Handler. plan is the fixed derivative
// plan whose key-space Remove recomputes.
func NewHandler(orch *Orchestrator, plan []derivative.Spec) *Handler {
	return &Handler{orch: orch, plan: plan}
}

// Remove godoc
//
//	@Summary		Delete an asset's derivatives
//	@Description	Recomputes the asset's full derivative key-space from the plan and issues an idempotent fan-out delete. Already-absent keys are reported as notFound, not errors.
//	@Tags			assets
//	@Produce		json
//	@Security		BearerAuth
//	@Param			baseID	path		string	true	"Asset base identifier"
//	@Success		200		{object}	response.Envelope{data=storage.DeleteReport}
//	@Failure		400		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Router			/assets/{baseID} [delete]
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	baseID := chi.URLParam(r, "baseID")
	if baseID == "" {
		response.BadRequest(w, "baseID is required")
		return
	}

	report, err := h.orch.Remove(r.Context(), baseID, h.plan)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "object store unreachable")
		return
	}

	response.OK(w, report)
}

// Serve godoc
//
//	@Summary		Read-through derivative proxy
//	@Description	Streams one stored derivative through the API. Regular delivery should use the URLs in the derivative set; this path exists for private deployments without a public bucket.
//	@Tags			assets
//	@Produce		image/webp
//	@Param			baseID	path		string	true	"Asset base identifier"
//	@Param			file	path		string	true	"Derivative file name, e.g. thumbnail.webp"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/assets/{baseID}/{file} [get]
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	baseID := chi.URLParam(r, "baseID")
	file := chi.URLParam(r, "file")

	tier, enc, ok := parseDerivativeFile(file)
	if !ok || baseID == "" {
		response.BadRequest(w, "unknown derivative name")
		return
	}

	key := derivative.ObjectKey(h.orch.store.Folder(), baseID, tier, enc)
	rc, info, err := h.orch.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.NotFound(w, "derivative not found")
			return
		}
		response.InternalError(w)
		return
	}
	defer func() {
		_ = rc.Close()
	}()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = io.Copy(w, rc)
}

// parseDerivativeFile splits "<tier>.<ext>" into the closed tier and
// encoding enums.
func parseDerivativeFile(file string) (derivative.Tier, derivative.Encoding, bool) {
	name, ext, found := strings.Cut(file, ".")
	if !found {
		return "", "", false
	}

	var tier derivative.Tier
	switch derivative.Tier(name) {
	case derivative.TierThumbnail, derivative.TierSmall, derivative.TierRegular, derivative.TierOriginal:
		tier = derivative.Tier(name)
	default:
		return "", "", false
	}

	switch "." + ext {
	case derivative.EncodingWebP.Ext():
		return tier, derivative.EncodingWebP, true
	case derivative.EncodingAVIF.Ext():
		return tier, derivative.EncodingAVIF, true
	default:
		return "", "", false
	}
}
