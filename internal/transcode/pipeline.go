// Package transcode derives the tier×encoding matrix of encoded images
// from one source. The source is decoded once, resized once per tier, and
// the resized base is cloned per encoding so concurrent encode tasks never
// share pixel data.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/pixelgrove/service/internal/derivative"
)

// Encoded is one finished derivative: the spec it was generated for, the
// encoded bytes, and the actual pixel dimensions.
type Encoded struct {
	Spec   derivative.Spec
	Data   []byte
	Width  int
	Height int
}

// Pipeline runs derivative generation with a bounded worker count and a
// per-asset wall-clock budget.
type Pipeline struct {
	workers int
	budget  time.Duration
}

// NewPipeline creates a Pipeline. workers bounds concurrent encode tasks;
// budget bounds the total decode+encode time for one asset.
func NewPipeline(workers int, budget time.Duration) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{workers: workers, budget: budget}
}

// Generate produces every derivative in plan from src, or fails as a
// whole. The result slice is ordered like plan; a partial list is never
// returned. EXIF orientation is normalized during decode, so stored pixels
// are always upright.
func (p *Pipeline) Generate(ctx context.Context, src []byte, plan []derivative.Spec) ([]Encoded, error) {
	if len(plan) == 0 {
		return nil, errors.New("empty derivative plan")
	}

	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	decoded, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, timeoutOr(err)
	}

	// One resized base per tier; encodings within a tier clone it rather
	// than re-running the decode/resize step.
	bases := make(map[derivative.Tier]image.Image)
	for _, spec := range plan {
		if _, ok := bases[spec.Tier]; ok {
			continue
		}
		bases[spec.Tier] = resize(decoded, spec.TargetWidth)
	}

	results := make([]Encoded, len(plan))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, spec := range plan {
		base := bases[spec.Tier]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			clone := imaging.Clone(base)
			data, err := Encode(clone, spec)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", spec.Tier, spec.Encoding, err)
			}
			bounds := clone.Bounds()
			results[i] = Encoded{
				Spec:   spec,
				Data:   data,
				Width:  bounds.Dx(),
				Height: bounds.Dy(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, timeoutOr(err)
	}
	return results, nil
}

// resize scales to targetWidth preserving aspect ratio. It never enlarges:
// sources narrower than the target, and targetWidth 0 (the original tier),
// keep their natural width.
func resize(img image.Image, targetWidth int) image.Image {
	if targetWidth <= 0 || img.Bounds().Dx() <= targetWidth {
		return img
	}
	return imaging.Resize(img, targetWidth, 0, imaging.Lanczos)
}

// timeoutOr maps a deadline expiry to ErrTimeout and passes anything else
// through unchanged.
func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after deadline", ErrTimeout)
	}
	return err
}
