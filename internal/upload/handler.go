package upload

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pixelgrove/service/internal/derivative"
	"github.com/pixelgrove/service/internal/response"
	"github.com/pixelgrove/service/internal/storage"
	"github.com/pixelgrove/service/internal/transcode"
)

// Handler holds HTTP handlers for the upload control plane.
type Handler struct {
	svc *Service
}

// NewHandler creates a new upload Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type issueRequest struct {
	FileName    string `json:"fileName"    example:"sunset.jpg"`
	ContentType string `json:"contentType" example:"image/jpeg"`
	Size        int64  `json:"size"        example:"2480130"`
}

// photoMetadata is caller-owned descriptive metadata. It is validated only
// for presence of the required fields and echoed back for the caller's
// metadata store; this service never persists it.
type photoMetadata struct {
	Title       string    `json:"title"                 example:"Golden hour at the pier"`
	Category    string    `json:"category"              example:"landscape"`
	Location    string    `json:"location,omitempty"    example:"Lisbon, Portugal"`
	CameraModel string    `json:"cameraModel,omitempty" example:"X100V"`
	Coordinates []float64 `json:"coordinates,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

type finalizeRequest struct {
	UploadID  string        `json:"uploadId"`
	UploadKey string        `json:"uploadKey"`
	Metadata  photoMetadata `json:"metadata"`
}

type finalizeData struct {
	BaseID      string         `json:"baseId"`
	Derivatives derivative.Set `json:"derivatives"`
	Metadata    photoMetadata  `json:"metadata"`
}

type acceptedData struct {
	Accepted bool   `json:"accepted" example:"true"`
	BaseID   string `json:"baseId"`
}

// Issue godoc
//
//	@Summary		Issue upload credential
//	@Description	Validates the declared file and returns a short-lived presigned PUT URL for direct upload to object storage. No bytes pass through the API.
//	@Tags			uploads
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		issueRequest	true	"Declared file name, content type and size"
//	@Success		201		{object}	response.Envelope{data=IssuedIntent}
//	@Failure		400		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		415		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/uploads [post]
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.FileName == "" {
		response.BadRequest(w, "fileName is required")
		return
	}

	issued, err := h.svc.Issue(r.Context(), req.FileName, req.ContentType, req.Size)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedMediaType):
			response.UnsupportedMediaType(w, "content type is not an accepted image type")
		case errors.Is(err, ErrInvalidSize):
			response.BadRequest(w, "declared size must be a positive byte count")
		case errors.Is(err, ErrPayloadTooLarge):
			response.PayloadTooLarge(w, "declared size exceeds the upload ceiling")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, issued)
}

// Finalize godoc
//
//	@Summary		Finalize an upload
//	@Description	Confirms the client's direct PUT completed and runs the derivative pipeline. Synchronous by default; pass async=true to get 202 Accepted while processing continues out of band.
//	@Tags			uploads
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			async	query		bool			false	"Process in the background"
//	@Param			request	body		finalizeRequest	true	"Upload id, key and photo metadata"
//	@Success		200		{object}	response.Envelope{data=finalizeData}
//	@Success		202		{object}	response.Envelope{data=acceptedData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		410		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		422		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Failure		504		{object}	response.Envelope
//	@Router			/uploads/finalize [post]
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.UploadID == "" || req.UploadKey == "" {
		response.BadRequest(w, "uploadId and uploadKey are required")
		return
	}
	if req.Metadata.Title == "" || req.Metadata.Category == "" {
		response.BadRequest(w, "metadata.title and metadata.category are required")
		return
	}

	if r.URL.Query().Get("async") == "true" {
		baseID, err := h.svc.FinalizeAsync(r.Context(), req.UploadID, req.UploadKey)
		if err != nil {
			h.writeFinalizeError(w, err)
			return
		}
		response.Accepted(w, acceptedData{Accepted: true, BaseID: baseID})
		return
	}

	baseID, set, err := h.svc.Finalize(r.Context(), req.UploadID, req.UploadKey)
	if err != nil {
		h.writeFinalizeError(w, err)
		return
	}

	response.OK(w, finalizeData{BaseID: baseID, Derivatives: set, Metadata: req.Metadata})
}

// writeFinalizeError maps the failure taxonomy onto HTTP statuses. Caller
// faults get 4xx, retriable pipeline faults get 5xx.
func (h *Handler) writeFinalizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownOrExpiredIntent):
		response.Gone(w, "upload intent unknown or expired; restart the upload")
	case errors.Is(err, ErrSourceMissing):
		response.UnprocessableEntity(w, "no bytes were uploaded for this intent")
	case errors.Is(err, ErrPayloadTooLarge):
		response.PayloadTooLarge(w, "uploaded object exceeds the declared size")
	case errors.Is(err, transcode.ErrDecode):
		response.UnprocessableEntity(w, "uploaded image cannot be decoded")
	case errors.Is(err, transcode.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "image processing timed out; retry with a fresh upload")
	case errors.Is(err, storage.ErrStorage):
		response.Error(w, http.StatusBadGateway, "object store unreachable")
	default:
		response.InternalError(w)
	}
}
