package pipeline

import (
	"math"
	"time"

	"github.com/placegraph/backend/pkg/common"
)

// Evidence kind weights for claim scoring. Unknown kinds fall back to a
// small floor so malformed evidence never dominates a score.
var scoreWeights = map[common.SourceKind]float64{
	common.KindMenuItem:        0.65,
	common.KindMenuDescription: 0.35,
	common.KindEvidencePacket:  0.58,
	common.KindBusinessName:    0.42,
	common.KindCategoryTag:     0.45,
	common.KindWebText:         0.22,
	common.KindSourceSnippet:   0.20,
	common.KindRelation:        0.28,
	common.KindComposition:     0.32,
}

const (
	unknownKindWeight        = 0.12
	independentSupportWeight = 0.24
	scoreCap                 = 1.35
)

func clampUnit(value float64) float64 {
	return math.Max(0, math.Min(1, value))
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

// ScoreClaims computes each claim's score and confidence in place.
// Score is the weighted sum of evidence values plus an independent
// support bonus that saturates at four distinct sources; confidence is
// the score normalized against the cap.
func ScoreClaims(claims map[string]*common.Claim, now time.Time) {
	for _, claim := range claims {
		raw := 0.0
		for _, evidence := range claim.Evidence {
			weight, ok := scoreWeights[evidence.Kind]
			if !ok {
				weight = unknownKindWeight
			}
			raw += weight * clampUnit(evidence.Value)
		}

		support := clampUnit(float64(claim.SourceCount-1) / 3.0)
		raw += independentSupportWeight * support

		claim.Score = round4(raw)
		claim.Confidence = round4(math.Min(1.0, raw/scoreCap))
		claim.CreatedAt = now
	}
}
