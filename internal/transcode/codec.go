package transcode

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"

	"github.com/pixelgrove/service/internal/derivative"
)

// Encode renders an already decoded, resized, upright base image in the
// codec named by the spec. Stateless and safe for concurrent use; this is
// the unit of parallel work in the pipeline.
func Encode(base image.Image, spec derivative.Spec) ([]byte, error) {
	var buf bytes.Buffer
	switch spec.Encoding {
	case derivative.EncodingWebP:
		if err := webp.Encode(&buf, base, webp.Options{Quality: spec.Quality}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case derivative.EncodingAVIF:
		if err := avif.Encode(&buf, base, avif.Options{Quality: spec.Quality, Speed: 8}); err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown encoding %q", spec.Encoding)
	}
	return buf.Bytes(), nil
}
