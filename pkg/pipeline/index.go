package pipeline

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/textnorm"
	"github.com/placegraph/backend/pkg/vectorizer"
)

const (
	// Claims below this confidence do not contribute to the footprint
	// vector.
	footprintConfidenceFloor = 0.35

	// Coverage saturates once this many feature keys are present.
	coverageSaturation = 14.0
)

// featureKey collapses a concept ID to its first two dotted segments.
func featureKey(claimID string) string {
	parts := strings.Split(claimID, ".")
	if len(parts) >= 2 {
		return parts[0] + "." + parts[1]
	}
	return claimID
}

// sliceKey assigns a concept ID to its coarse vertical.
func sliceKey(claimID string) string {
	switch {
	case strings.HasPrefix(claimID, "food."):
		return "food"
	case strings.HasPrefix(claimID, "service."):
		return "service"
	case strings.HasPrefix(claimID, "biz.type."):
		return "business_type"
	case strings.HasPrefix(claimID, "biz.category."):
		return "business_category"
	}
	if segment, _, _ := strings.Cut(claimID, "."); segment != "" {
		return segment
	}
	return "general"
}

// sortClaims orders claims by confidence descending, claim ID ascending
// on ties. Every artifact is built from this order.
func sortClaims(claims map[string]*common.Claim) []*common.Claim {
	rows := make([]*common.Claim, 0, len(claims))
	for _, claim := range claims {
		rows = append(rows, claim)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Confidence != rows[j].Confidence {
			return rows[i].Confidence > rows[j].Confidence
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// BuildArtifacts derives the full artifact set for one business from
// its scored claims: the footprint vector, vertical slices, the literal
// inverted index, and the micrograph. It is pure; persistence happens
// elsewhere.
func BuildArtifacts(business *common.Business, claims map[string]*common.Claim, spanCount int, now time.Time) common.BusinessArtifacts {
	rows := sortClaims(claims)

	return common.BusinessArtifacts{
		Footprint:  buildFootprint(business.ID, rows, now),
		Slices:     buildSlices(business.ID, rows, now),
		Terms:      buildIndexTerms(business.ID, rows),
		Micrograph: buildMicrograph(business.ID, rows, spanCount, now),
		Verified:   VerifyClaims(business.ID, rows, now),
	}
}

func buildFootprint(businessID int64, rows []*common.Claim, now time.Time) common.GlobalFootprint {
	weights := make(map[string]float64)
	for _, claim := range rows {
		if claim.Confidence < footprintConfidenceFloor {
			continue
		}
		key := featureKey(claim.ID)
		weights[key] += math.Log1p(claim.Confidence * 8.0)
	}
	if len(weights) == 0 {
		weights = map[string]float64{"fallback.none": 1.0}
	}

	flags := make(map[string]float64, len(weights))
	for key, value := range weights {
		flags[key] = round4(value)
	}

	return common.GlobalFootprint{
		BusinessID:    businessID,
		FeatureVector: vectorizer.EncodeWeightedTerms(weights),
		FeatureFlags:  flags,
		CoverageScore: clampUnit(float64(len(flags)) / coverageSaturation),
		UpdatedAt:     now,
	}
}

func buildSlices(businessID int64, rows []*common.Claim, now time.Time) []common.VerticalSlice {
	weightsBySlice := make(map[string]map[string]float64)
	termsBySlice := make(map[string]map[string]struct{})

	for _, claim := range rows {
		if claim.Confidence <= 0 {
			continue
		}
		key := sliceKey(claim.ID)
		category := featureKey(claim.ID)
		if weightsBySlice[key] == nil {
			weightsBySlice[key] = make(map[string]float64)
			termsBySlice[key] = make(map[string]struct{})
		}
		weightsBySlice[key][category] += claim.Confidence
		termsBySlice[key][claim.ID] = struct{}{}
	}

	keys := make([]string, 0, len(weightsBySlice))
	for key := range weightsBySlice {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	slices := make([]common.VerticalSlice, 0, len(keys))
	for _, key := range keys {
		weights := make(map[string]float64, len(weightsBySlice[key]))
		for category, value := range weightsBySlice[key] {
			weights[category] = round4(value)
		}
		terms := make([]string, 0, len(termsBySlice[key]))
		for term := range termsBySlice[key] {
			terms = append(terms, term)
		}
		sort.Strings(terms)

		slices = append(slices, common.VerticalSlice{
			BusinessID:      businessID,
			SliceKey:        key,
			CategoryWeights: weights,
			SliceTerms:      terms,
			UpdatedAt:       now,
		})
	}
	return slices
}

func buildIndexTerms(businessID int64, rows []*common.Claim) []common.EvidenceIndexTerm {
	type termKey struct {
		term    string
		claimID string
		kind    common.SourceKind
	}
	seen := make(map[termKey]struct{})
	var out []common.EvidenceIndexTerm

	for _, claim := range rows {
		for _, evidence := range claim.Evidence {
			normalized := evidence.Normalized
			if normalized == "" {
				normalized = textnorm.Normalize(evidence.Text)
			}

			termSet := make(map[string]struct{})
			for _, token := range textnorm.TokensWithSingulars(normalized) {
				termSet[token] = struct{}{}
			}
			for _, token := range textnorm.TokensWithSingulars(claim.Label) {
				termSet[token] = struct{}{}
			}
			terms := make([]string, 0, len(termSet))
			for term := range termSet {
				terms = append(terms, term)
			}
			sort.Strings(terms)

			for _, term := range terms {
				if len(term) < 2 {
					continue
				}
				key := termKey{term: term, claimID: claim.ID, kind: evidence.Kind}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				out = append(out, common.EvidenceIndexTerm{
					BusinessID: businessID,
					Term:       term,
					ClaimID:    claim.ID,
					SourceKind: evidence.Kind,
					Ref: common.EvidenceRef{
						SourceID:  evidence.SourceID,
						SourceKey: evidence.SourceKey,
						Text:      evidence.Text,
					},
					Provenance: evidence.Provenance,
					Weight:     clampUnit(claim.Confidence),
				})
			}
		}
	}
	return out
}

func buildMicrograph(businessID int64, rows []*common.Claim, spanCount int, now time.Time) common.Micrograph {
	nodes := make([]common.MicrographNode, 0, len(rows))
	summaries := make([]common.ClaimSummary, 0, len(rows))
	var edges []common.MicrographEdge

	for _, claim := range rows {
		nodes = append(nodes, common.MicrographNode{
			ID:          claim.ID,
			Label:       claim.Label,
			Confidence:  claim.Confidence,
			Score:       claim.Score,
			MaxHops:     claim.MaxHops,
			IsInferred:  claim.IsInferred,
			IsComposed:  claim.IsComposed,
			SourceCount: claim.SourceCount,
			Evidence:    claim.Evidence,
		})
		summaries = append(summaries, common.ClaimSummary{
			ClaimID:     claim.ID,
			Label:       claim.Label,
			Score:       claim.Score,
			Confidence:  claim.Confidence,
			SourceCount: claim.SourceCount,
			MaxHops:     claim.MaxHops,
			IsComposed:  claim.IsComposed,
		})

		for _, evidence := range claim.Evidence {
			switch evidence.Kind {
			case common.KindRelation:
				// Unroll the hop path into one edge per hop.
				for i := 0; i+2 < len(evidence.Path); i += 2 {
					hops := evidence.Hops
					if hops == 0 {
						hops = 1
					}
					edges = append(edges, common.MicrographEdge{
						Source:     evidence.Path[i],
						Relation:   evidence.Path[i+1],
						Target:     evidence.Path[i+2],
						Hops:       hops,
						Provenance: evidence.Provenance,
					})
				}
			case common.KindComposition:
				if len(evidence.Path) < 5 {
					continue
				}
				left, right, target := evidence.Path[0], evidence.Path[2], evidence.Path[4]
				for _, source := range []string{left, right} {
					edges = append(edges, common.MicrographEdge{
						Source:     source,
						Relation:   "composes_with",
						Target:     target,
						Hops:       1,
						Provenance: evidence.Provenance,
					})
				}
			}
		}
	}

	return common.Micrograph{
		BusinessID:  businessID,
		GeneratedAt: now,
		Constraints: common.GraphConstraints{
			MaxHops:               MaxRelationHops,
			MLInference:           false,
			GlobalOntologyChanges: false,
		},
		Nodes:     nodes,
		Edges:     edges,
		Claims:    summaries,
		SpanCount: spanCount,
	}
}
