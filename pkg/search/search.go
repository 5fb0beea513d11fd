// Package search implements precision search over the precomputed
// evidence layers: coarse vector retrieval, slice matching, literal
// verification, micrograph confirmation, the verified-claim registry,
// and on-demand subgraph extraction. Every result carries a full audit
// chain explaining which layers supported it.
package search

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/store"
	"github.com/placegraph/backend/pkg/taxonomy"
	"github.com/placegraph/backend/pkg/textnorm"
	"github.com/placegraph/backend/pkg/vectorizer"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// Precision mixing weights over the layer outputs.
	similarityWeight = 0.35
	sliceWeight      = 0.15
	literalWeight    = 0.20
	verifiedWeight   = 0.30

	// Results below this precision are dropped entirely.
	precisionFloor = 0.28

	// Layer-1 over-fetch: retrieve a wide candidate pool so later
	// layers have room to filter.
	candidateFloor      = 40
	candidateMultiplier = 8

	DefaultLimit                   = 20
	DefaultWalkingThresholdMinutes = 15

	cacheTTL     = 30 * time.Second
	cacheCleanup = time.Minute
	cachePrefix  = "search:"
)

// Params are the inputs to one precision search.
type Params struct {
	Query                        string  `json:"query"`
	Lat                          float64 `json:"lat"`
	Lng                          float64 `json:"lng"`
	IncludeChains                bool    `json:"include_chains"`
	ConsumerFacingOnly           bool    `json:"consumer_facing_only"`
	IncludeServiceAreaBusinesses bool    `json:"include_service_area_businesses"`
	RequireDelivery              bool    `json:"require_delivery"`
	RequireTakeout               bool    `json:"require_takeout"`
	RequireDineIn                bool    `json:"require_dine_in"`
	RequireCurbsidePickup        bool    `json:"require_curbside_pickup"`
	OpenNow                      bool    `json:"open_now"`
	WalkingDistance              bool    `json:"walking_distance"`
	WalkingThresholdMinutes      int     `json:"walking_threshold_minutes"`
	Limit                        int     `json:"limit"`
}

// DefaultParams returns Params with the service defaults applied.
func DefaultParams() Params {
	return Params{
		ConsumerFacingOnly:      true,
		WalkingThresholdMinutes: DefaultWalkingThresholdMinutes,
		Limit:                   DefaultLimit,
	}
}

// VerifiedClaimPayload is one verified claim as surfaced in responses.
type VerifiedClaimPayload struct {
	ClaimID    string            `json:"claim_id"`
	Label      string            `json:"label"`
	Evidence   []common.Evidence `json:"evidence"`
	Confidence float64           `json:"confidence"`
	Timestamp  time.Time         `json:"timestamp"`
}

// AuditChain explains exactly which layers supported a result.
type AuditChain struct {
	Layer1Similarity    float64                 `json:"layer_1_similarity"`
	Layer2SliceMatch    bool                    `json:"layer_2_slice_match"`
	Layer2SliceKeys     []string                `json:"layer_2_slice_keys"`
	Layer3LiteralHits   []string                `json:"layer_3_literal_hits"`
	Layer3LiteralScore  float64                 `json:"layer_3_literal_score"`
	Layer4DeepConfirmed bool                    `json:"layer_4_deep_confirmed"`
	Layer4Paths         [][]string              `json:"layer_4_paths"`
	Layer4DeepScore     float64                 `json:"layer_4_deep_score"`
	Layer5VerifiedCount int                     `json:"layer_5_verified_count"`
	Layer6Subgraph      Subgraph                `json:"layer_6_subgraph"`
	Constraints         common.GraphConstraints `json:"constraints"`
}

// Result is one ranked business.
type Result struct {
	ID             int64                  `json:"id"`
	Name           string                 `json:"name"`
	Lat            float64                `json:"lat"`
	Lng            float64                `json:"lng"`
	DistanceKm     float64                `json:"distance_km"`
	MinutesAway    int                    `json:"minutes_away"`
	WalkingMinutes int                    `json:"walking_minutes"`
	DrivingMinutes int                    `json:"driving_minutes"`
	OpenNow        bool                   `json:"open_now"`
	IsChain        bool                   `json:"is_chain"`
	ChainName      string                 `json:"chain_name,omitempty"`
	PrecisionScore float64                `json:"precision_score"`
	EvidenceScore  int                    `json:"evidence_score"`
	VerifiedClaims []VerifiedClaimPayload `json:"verified_claims"`
	AuditChain     AuditChain             `json:"audit_chain"`
	LastUpdated    time.Time              `json:"last_updated"`
}

// Response is the full search answer.
type Response struct {
	Query           string   `json:"query"`
	NormalizedQuery string   `json:"normalized_query"`
	MatchedConcepts []string `json:"matched_concepts"`
	Results         []Result `json:"results"`
}

// Service executes precision searches over a Storage backend.
type Service struct {
	tax     *taxonomy.Taxonomy
	storage store.Storage
	cache   *gocache.Cache
	now     func() time.Time
}

func New(tax *taxonomy.Taxonomy, storage store.Storage) *Service {
	return &Service{
		tax:     tax,
		storage: storage,
		cache:   gocache.New(cacheTTL, cacheCleanup),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// queryConcepts resolves a normalized query to concept IDs: the full
// phrase first, then every token window up to width four, deduplicated
// in discovery order.
func (s *Service) queryConcepts(normalizedQuery string) []string {
	phrases := []string{normalizedQuery}
	tokens := textnorm.TokensWithSingulars(normalizedQuery)
	maxWidth := 4
	if len(tokens) < maxWidth {
		maxWidth = len(tokens)
	}
	for width := 1; width <= maxWidth; width++ {
		for start := 0; start+width <= len(tokens); start++ {
			phrases = append(phrases, strings.Join(tokens[start:start+width], " "))
		}
	}

	var concepts []string
	seen := make(map[string]struct{})
	for _, phrase := range phrases {
		concept, ok := s.tax.ConceptForPhrase(phrase)
		if !ok {
			continue
		}
		if _, dup := seen[concept]; dup {
			continue
		}
		seen[concept] = struct{}{}
		concepts = append(concepts, concept)
	}
	return concepts
}

// queryVector encodes the query for Layer-1 retrieval: feature keys of
// matched concepts when any resolved, raw tokens otherwise.
func (s *Service) queryVector(normalizedQuery string, concepts []string) []float32 {
	weighted := make(map[string]float64)
	for _, concept := range concepts {
		key := concept
		if parts := strings.Split(concept, "."); len(parts) >= 2 {
			key = parts[0] + "." + parts[1]
		}
		weighted[key]++
	}

	if len(weighted) == 0 {
		for _, token := range textnorm.TokensWithSingulars(normalizedQuery) {
			weighted[token]++
		}
	}
	if len(weighted) == 0 {
		weighted["empty"] = 1.0
	}
	return vectorizer.EncodeWeightedTerms(weighted)
}

func verifiedPayload(row common.VerifiedClaim) VerifiedClaimPayload {
	return VerifiedClaimPayload{
		ClaimID:    row.ClaimID,
		Label:      row.Label,
		Evidence:   row.Evidence,
		Confidence: math.Round(row.Confidence*10000) / 10000,
		Timestamp:  row.Timestamp,
	}
}

// Search runs the full layered retrieval. Identical parameter sets are
// answered from a short-lived cache.
func (s *Service) Search(ctx context.Context, params Params) (Response, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if params.WalkingThresholdMinutes <= 0 {
		params.WalkingThresholdMinutes = DefaultWalkingThresholdMinutes
	}

	cacheKey := searchCacheKey(params)
	if cached, ok := s.cache.Get(cacheKey); ok {
		if response, ok := cached.(Response); ok {
			return response, nil
		}
	}

	normalizedQuery := textnorm.Normalize(params.Query)
	if normalizedQuery == "" {
		return Response{Query: params.Query, MatchedConcepts: []string{}, Results: []Result{}}, nil
	}

	queryConcepts := s.queryConcepts(normalizedQuery)
	queryTokens := make(map[string]struct{})
	for _, token := range textnorm.TokensWithSingulars(normalizedQuery) {
		queryTokens[token] = struct{}{}
	}
	conceptSet := make(map[string]struct{}, len(queryConcepts))
	for _, concept := range queryConcepts {
		conceptSet[concept] = struct{}{}
	}

	candidateLimit := candidateFloor
	if scaled := params.Limit * candidateMultiplier; scaled > candidateLimit {
		candidateLimit = scaled
	}
	candidates, err := s.storage.FootprintCandidates(ctx, s.queryVector(normalizedQuery, queryConcepts), candidateLimit, params.IncludeChains)
	if err != nil {
		return Response{}, err
	}

	businessIDs := make([]int64, 0, len(candidates))
	for _, candidate := range candidates {
		businessIDs = append(businessIDs, candidate.Business.ID)
	}

	sliceMap, err := s.storage.VerticalSlices(ctx, businessIDs)
	if err != nil {
		return Response{}, err
	}
	termMap, err := s.storage.EvidenceTerms(ctx, businessIDs, mapKeys(queryTokens))
	if err != nil {
		return Response{}, err
	}
	micrographs, err := s.storage.Micrographs(ctx, businessIDs)
	if err != nil {
		return Response{}, err
	}
	verifiedMap, err := s.storage.VerifiedClaims(ctx, businessIDs)
	if err != nil {
		return Response{}, err
	}

	querySliceKeys := s.tax.QuerySliceKeys(queryConcepts)
	filters := ModelFilters{
		ConsumerFacingOnly:           params.ConsumerFacingOnly,
		IncludeServiceAreaBusinesses: params.IncludeServiceAreaBusinesses,
		RequireDelivery:              params.RequireDelivery,
		RequireTakeout:               params.RequireTakeout,
		RequireDineIn:                params.RequireDineIn,
		RequireCurbsidePickup:        params.RequireCurbsidePickup,
	}
	now := s.now()

	var results []Result
	for _, candidate := range candidates {
		business := candidate.Business
		similarity := candidate.Similarity

		distanceKm := haversineKm(params.Lat, params.Lng, business.Lat, business.Lng)
		walking, driving, fastest := travelMinutes(distanceKm)
		if params.WalkingDistance && walking > float64(params.WalkingThresholdMinutes) {
			continue
		}

		if !passesModelFilters(business.BusinessModel, filters) {
			continue
		}

		liveOpen, hasLiveOpen := modelOpenNow(business.BusinessModel)
		openFlag := liveOpen
		if !hasLiveOpen {
			openFlag = openNowFromHours(business.HoursJSON, business.Timezone, now)
		}
		if params.OpenNow && !(hasLiveOpen && liveOpen) {
			continue
		}

		sliceMatch, sliceKeys := layer2SliceMatch(querySliceKeys, sliceMap[business.ID])
		literalHits, literalScore := layer3LiteralVerify(queryTokens, termMap[business.ID])

		graph := micrographs[business.ID]
		deepConfirmed, deepScore, deepPaths, matchedClaimIDs := layer4MicrographCheck(graph, conceptSet, queryTokens)

		matchedClaimSet := make(map[string]struct{}, len(matchedClaimIDs))
		for _, claimID := range matchedClaimIDs {
			matchedClaimSet[claimID] = struct{}{}
		}

		verifiedRows := verifiedMap[business.ID]
		var relevantVerified []VerifiedClaimPayload
		for _, row := range verifiedRows {
			related := false
			if _, ok := conceptSet[row.ClaimID]; ok {
				related = true
			}
			if !related {
				for _, labelToken := range textnorm.TokensWithSingulars(row.Label) {
					if _, ok := queryTokens[labelToken]; ok {
						related = true
						break
					}
				}
			}
			if _, ok := matchedClaimSet[row.ClaimID]; ok {
				related = true
			}
			if related {
				relevantVerified = append(relevantVerified, verifiedPayload(row))
			}
		}
		if len(relevantVerified) == 0 && len(verifiedRows) > 0 {
			relevantVerified = append(relevantVerified, verifiedPayload(verifiedRows[0]))
		}

		verifiedScore := 0.0
		for _, item := range relevantVerified {
			if item.Confidence > verifiedScore {
				verifiedScore = item.Confidence
			}
		}

		precision := similarityWeight*math.Max(0, similarity) +
			literalWeight*literalScore +
			verifiedWeight*math.Max(verifiedScore, deepScore)
		if sliceMatch {
			precision += sliceWeight
		}
		precision = math.Max(0, math.Min(1, precision))
		if precision < precisionFloor {
			continue
		}

		seeds := make(map[string]struct{}, len(conceptSet)+len(matchedClaimIDs))
		for concept := range conceptSet {
			seeds[concept] = struct{}{}
		}
		for _, claimID := range matchedClaimIDs {
			seeds[claimID] = struct{}{}
		}
		subgraph := buildOnDemandSubgraph(graph, seeds, MaxSubgraphHops)

		results = append(results, Result{
			ID:             business.ID,
			Name:           business.Name,
			Lat:            business.Lat,
			Lng:            business.Lng,
			DistanceKm:     math.Round(distanceKm*100) / 100,
			MinutesAway:    int(math.Round(fastest)),
			WalkingMinutes: int(math.Round(walking)),
			DrivingMinutes: int(math.Round(driving)),
			OpenNow:        openFlag,
			IsChain:        business.IsChain,
			ChainName:      business.ChainName,
			PrecisionScore: math.Round(precision*10000) / 10000,
			EvidenceScore:  int(math.Round(precision * 100)),
			VerifiedClaims: relevantVerified,
			AuditChain: AuditChain{
				Layer1Similarity:    math.Round(similarity*10000) / 10000,
				Layer2SliceMatch:    sliceMatch,
				Layer2SliceKeys:     sliceKeys,
				Layer3LiteralHits:   literalHits,
				Layer3LiteralScore:  literalScore,
				Layer4DeepConfirmed: deepConfirmed,
				Layer4Paths:         deepPaths,
				Layer4DeepScore:     deepScore,
				Layer5VerifiedCount: len(relevantVerified),
				Layer6Subgraph:      subgraph,
				Constraints: common.GraphConstraints{
					MaxHops: MaxSubgraphHops,
				},
			},
			LastUpdated: business.LastUpdated,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].PrecisionScore != results[j].PrecisionScore {
			return results[i].PrecisionScore > results[j].PrecisionScore
		}
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return strings.ToLower(results[i].Name) < strings.ToLower(results[j].Name)
	})
	if len(results) > params.Limit {
		results = results[:params.Limit]
	}
	if results == nil {
		results = []Result{}
	}
	if queryConcepts == nil {
		queryConcepts = []string{}
	}

	response := Response{
		Query:           params.Query,
		NormalizedQuery: normalizedQuery,
		MatchedConcepts: queryConcepts,
		Results:         results,
	}
	s.cache.Set(cacheKey, response, gocache.DefaultExpiration)
	return response, nil
}

// VerifiedClaimsForBusiness returns one business's verified registry,
// highest confidence first.
func (s *Service) VerifiedClaimsForBusiness(ctx context.Context, businessID int64) ([]VerifiedClaimPayload, error) {
	rows, err := s.storage.VerifiedClaimsForBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	payloads := make([]VerifiedClaimPayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, verifiedPayload(row))
	}
	return payloads, nil
}

func searchCacheKey(params Params) string {
	encoded, err := json.Marshal(params)
	if err != nil {
		return cachePrefix + params.Query
	}
	return cachePrefix + string(encoded)
}

func mapKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
