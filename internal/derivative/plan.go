package derivative

// tierParams holds the per-tier resize and quality parameters. Width and
// crop decisions are per-tier; encodings only change the codec, so each
// table row fans out to every encoding.
type tierParams struct {
	tier    Tier
	width   int // 0 = natural width
	quality int
}

// tiers is the generation table, ordered smallest to largest. Adding a
// tier is a data change here, not new control flow.
var tiers = []tierParams{
	{tier: TierThumbnail, width: 200, quality: 60},
	{tier: TierSmall, width: 640, quality: 75},
	{tier: TierRegular, width: 1080, quality: 80},
	{tier: TierOriginal, width: 0, quality: 90},
}

// encodings is the set of output codecs every tier is rendered in.
var encodings = []Encoding{EncodingWebP, EncodingAVIF}

// DefaultPlan returns the ordered list of derivative specs generated for
// every ingested asset: each tier in each encoding.
func DefaultPlan() []Spec {
	plan := make([]Spec, 0, len(tiers)*len(encodings))
	for _, t := range tiers {
		for _, enc := range encodings {
			plan = append(plan, Spec{
				Tier:        t.tier,
				Encoding:    enc,
				TargetWidth: t.width,
				Quality:     t.quality,
			})
		}
	}
	return plan
}
