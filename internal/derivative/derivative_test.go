package derivative

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeyDeterministic(t *testing.T) {
	t.Parallel()

	k1 := ObjectKey("photos", "abc123", TierThumbnail, EncodingWebP)
	k2 := ObjectKey("photos", "abc123", TierThumbnail, EncodingWebP)
	assert.Equal(t, k1, k2)
	assert.Equal(t, "photos/abc123-thumbnail.webp", k1)
}

func TestObjectKeyNoCollisions(t *testing.T) {
	t.Parallel()

	seen := make(map[string]Spec)
	for _, spec := range DefaultPlan() {
		key := ObjectKey("photos", "abc123", spec.Tier, spec.Encoding)
		prev, dup := seen[key]
		require.Falsef(t, dup, "key %q produced by both %+v and %+v", key, prev, spec)
		seen[key] = spec
	}
}

func TestDefaultPlanCoversEveryTierAndEncoding(t *testing.T) {
	t.Parallel()

	plan := DefaultPlan()
	require.Len(t, plan, len(tiers)*len(encodings))

	byPair := make(map[Tier]map[Encoding]Spec)
	for _, spec := range plan {
		if byPair[spec.Tier] == nil {
			byPair[spec.Tier] = make(map[Encoding]Spec)
		}
		byPair[spec.Tier][spec.Encoding] = spec
	}
	for _, tier := range []Tier{TierThumbnail, TierSmall, TierRegular, TierOriginal} {
		require.Contains(t, byPair, tier)
		for _, enc := range []Encoding{EncodingWebP, EncodingAVIF} {
			spec, ok := byPair[tier][enc]
			require.True(t, ok, "missing %s/%s", tier, enc)
			assert.GreaterOrEqual(t, spec.Quality, 1)
			assert.LessOrEqual(t, spec.Quality, 100)
		}
	}

	// Only the original tier keeps natural width.
	for _, spec := range plan {
		if spec.Tier == TierOriginal {
			assert.Zero(t, spec.TargetWidth)
		} else {
			assert.Positive(t, spec.TargetWidth)
		}
	}
}

func TestEncodingExtAndContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".webp", EncodingWebP.Ext())
	assert.Equal(t, ".avif", EncodingAVIF.Ext())
	assert.Equal(t, "image/webp", EncodingWebP.ContentType())
	assert.Equal(t, "image/avif", EncodingAVIF.ContentType())
}
