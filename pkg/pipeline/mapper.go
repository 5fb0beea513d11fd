package pipeline

import (
	"fmt"
	"sort"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/taxonomy"
)

// Mapper resolves normalized spans into concept claims through the
// taxonomy alias table. No inference happens here; every claim it
// produces carries only direct hop-0 evidence.
type Mapper struct {
	tax *taxonomy.Taxonomy
}

func NewMapper(tax *taxonomy.Taxonomy) *Mapper {
	return &Mapper{tax: tax}
}

// candidatePhrases returns the span's full normalized text followed by
// its unique n-grams, longest first. Longer phrases get first shot at
// an alias so "carne asada" wins over "carne" when both resolve.
func candidatePhrases(span common.EvidenceSpan) []string {
	unique := make(map[string]struct{}, len(span.NGrams))
	grams := make([]string, 0, len(span.NGrams))
	for _, gram := range span.NGrams {
		if _, seen := unique[gram]; seen {
			continue
		}
		unique[gram] = struct{}{}
		grams = append(grams, gram)
	}
	sort.Slice(grams, func(i, j int) bool {
		if len(grams[i]) != len(grams[j]) {
			return len(grams[i]) > len(grams[j])
		}
		return grams[i] < grams[j]
	})
	return append([]string{span.NormalizedText}, grams...)
}

// Map folds every span into the claim set keyed by concept ID. Each
// span contributes at most one evidence entry per concept, valued at
// the mean of its extraction confidence and scaled credibility.
func (m *Mapper) Map(spans []common.EvidenceSpan) map[string]*common.Claim {
	claims := make(map[string]*common.Claim)

	for _, span := range spans {
		seen := make(map[string]struct{})

		for _, phrase := range candidatePhrases(span) {
			conceptID, ok := m.tax.ConceptForPhrase(phrase)
			if !ok {
				continue
			}
			if _, dup := seen[conceptID]; dup {
				continue
			}
			seen[conceptID] = struct{}{}

			claim, exists := claims[conceptID]
			if !exists {
				claim = common.NewClaim(conceptID, taxonomy.LabelFor(conceptID))
				claims[conceptID] = claim
			}

			value := clampUnit((span.ExtractionConfidence + span.CredibilityScore/100.0) / 2.0)
			claim.AddEvidence(common.Evidence{
				Kind:       span.SourceKind,
				Text:       span.Text,
				Normalized: span.NormalizedText,
				Alias:      phrase,
				Value:      round4(value),
				Hops:       0,
				SourceKey:  fmt.Sprintf("%s|%s|%s", span.SourceID, span.SourceURL, span.SpanID),
				SourceID:   span.SourceID,
				SourceURL:  span.SourceURL,
				Provenance: span.Provenance,
			})
		}
	}

	return claims
}
