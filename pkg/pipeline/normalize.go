package pipeline

import (
	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/textnorm"
)

// NormalizeSpans fills the derived text fields on each span and drops
// spans whose text normalizes to nothing. Tokens carry singular forms
// alongside the surface forms for alias matching; n-grams are built
// over the plain token sequence so windows stay contiguous phrases.
func NormalizeSpans(spans []common.EvidenceSpan) []common.EvidenceSpan {
	out := make([]common.EvidenceSpan, 0, len(spans))
	for _, span := range spans {
		normalized := textnorm.Normalize(span.Text)
		if normalized == "" {
			continue
		}
		span.NormalizedText = normalized
		span.Tokens = textnorm.TokensWithSingulars(normalized)
		span.NGrams = textnorm.NGrams(textnorm.Tokens(normalized), 1, 4)
		out = append(out, span)
	}
	return out
}
