// Package derivative defines the closed set of derivative tiers and
// encodings, the generation plan, and the deterministic object key scheme.
package derivative

import "fmt"

// Tier identifies a resolution tier of a derivative.
type Tier string

const (
	TierThumbnail Tier = "thumbnail"
	TierSmall     Tier = "small"
	TierRegular   Tier = "regular"
	TierOriginal  Tier = "original"
)

// Encoding identifies an output image codec.
type Encoding string

const (
	EncodingWebP Encoding = "webp"
	EncodingAVIF Encoding = "avif"
)

// Ext returns the file extension for the encoding, including the dot.
func (e Encoding) Ext() string {
	switch e {
	case EncodingAVIF:
		return ".avif"
	default:
		return ".webp"
	}
}

// ContentType returns the MIME type for the encoding.
func (e Encoding) ContentType() string {
	switch e {
	case EncodingAVIF:
		return "image/avif"
	default:
		return "image/webp"
	}
}

// Spec describes one derivative to generate: a resolution tier rendered in
// one encoding. TargetWidth 0 means "natural width" (no resize); a non-zero
// width is an upper bound — sources narrower than it are never enlarged.
type Spec struct {
	Tier        Tier     `json:"tier"`
	Encoding    Encoding `json:"encoding"`
	TargetWidth int      `json:"targetWidth"`
	Quality     int      `json:"quality"`
}

// Descriptor is one stored derivative, resolved to its public URL.
type Descriptor struct {
	Tier     Tier     `json:"tier"`
	Encoding Encoding `json:"encoding"`
	URL      string   `json:"url"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
}

// Set is the complete ordered derivative set for one asset. Callers only
// ever see a Set whose length matches the plan it was generated from.
type Set []Descriptor

// ObjectKey computes the storage key for one derivative. It is pure: a
// fixed (baseID, tier, encoding) always maps to the same key, so deletion
// can recompute the full key-space without listing the store.
func ObjectKey(folder, baseID string, tier Tier, enc Encoding) string {
	return fmt.Sprintf("%s/%s-%s%s", folder, baseID, tier, enc.Ext())
}
