// Package upload implements the control plane of the two-phase upload
// protocol: issuing scoped, short-lived write credentials and the finalize
// handshake that turns "bytes now sit in storage" into "processing may
// begin". Raw bytes never pass through this package.
package upload

import (
	"errors"
	"time"
)

// Intent statuses. An intent is single-use: issued → finalized, or swept
// to expired when the credential lapses unfinalized. An expired intent may
// leave an orphaned staging object behind; it is never referenced and an
// external reclaim job may remove it.
const (
	StatusIssued    = "issued"
	StatusFinalized = "finalized"
	StatusExpired   = "expired"
)

// ErrUnsupportedMediaType is returned for content types outside the
// accepted image set.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// ErrPayloadTooLarge is returned when the declared size exceeds the
// configured ceiling.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrInvalidSize is returned when the declared size is zero or negative.
var ErrInvalidSize = errors.New("invalid declared size")

// ErrUnknownOrExpiredIntent is returned when finalize cannot resolve an
// issued, unexpired intent for the given id and key.
var ErrUnknownOrExpiredIntent = errors.New("unknown or expired upload intent")

// ErrSourceMissing is returned when finalize resolves a valid intent but
// no bytes were ever uploaded to the staging key.
var ErrSourceMissing = errors.New("source object not uploaded")

// Intent is one issued upload credential and its lifecycle record.
type Intent struct {
	ID          string
	BaseID      string
	ObjectKey   string
	ContentType string
	MaxBytes    int64
	Status      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// IssuedIntent is what the caller receives: everything needed to PUT the
// bytes directly to storage and finalize afterwards.
type IssuedIntent struct {
	UploadID  string    `json:"uploadId"`
	Key       string    `json:"uploadKey"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// acceptedTypes maps accepted source content types to staging-key
// extensions. Anything else is rejected at issuance.
var acceptedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}
