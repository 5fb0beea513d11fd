package search

import (
	"math"
	"sort"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/textnorm"
)

// MaxSubgraphHops bounds query-time graph traversal, matching the
// indexing-side hop limit.
const MaxSubgraphHops = 2

const (
	deepDirectScore     = 1.0
	deepLabelTokenScore = 0.72
	deepOneHopScore     = 0.76
	deepTwoHopScore     = 0.62
)

// layer2SliceMatch reports whether any of the business's vertical
// slices overlap the query's slice keys, either by slice key or by
// category weight key. An empty query key set matches trivially.
func layer2SliceMatch(querySliceKeys map[string]struct{}, slices []common.VerticalSlice) (bool, []string) {
	if len(querySliceKeys) == 0 {
		return true, nil
	}

	matched := make(map[string]struct{})
	for _, row := range slices {
		if _, ok := querySliceKeys[row.SliceKey]; ok {
			matched[row.SliceKey] = struct{}{}
			continue
		}
		for category := range row.CategoryWeights {
			if _, ok := querySliceKeys[category]; ok {
				matched[row.SliceKey] = struct{}{}
				break
			}
		}
	}

	keys := make([]string, 0, len(matched))
	for key := range matched {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return len(keys) > 0, keys
}

// layer3LiteralVerify intersects the query tokens with the business's
// inverted-index terms. The score is the matched fraction of query
// tokens.
func layer3LiteralVerify(queryTokens map[string]struct{}, terms []common.EvidenceIndexTerm) ([]string, float64) {
	if len(queryTokens) == 0 {
		return nil, 0
	}

	indexed := make(map[string]struct{}, len(terms))
	for _, row := range terms {
		indexed[row.Term] = struct{}{}
	}

	var hits []string
	for token := range queryTokens {
		if _, ok := indexed[token]; ok {
			hits = append(hits, token)
		}
	}
	sort.Strings(hits)

	score := math.Min(1.0, float64(len(hits))/float64(len(queryTokens)))
	return hits, math.Round(score*10000) / 10000
}

// layer4MicrographCheck looks for the query concepts inside the
// business's claim graph: first as direct node hits, then as label
// token overlap for concept-free queries, and finally via bounded
// traversal from each query concept.
func layer4MicrographCheck(graph common.Micrograph, queryConcepts, queryTokens map[string]struct{}) (confirmed bool, score float64, paths [][]string, matchedClaims []string) {
	nodeIDs := make(map[string]struct{}, len(graph.Nodes))
	labels := make(map[string]string, len(graph.Nodes))
	orderedIDs := make([]string, 0, len(graph.Nodes))
	for _, node := range graph.Nodes {
		if node.ID == "" {
			continue
		}
		nodeIDs[node.ID] = struct{}{}
		labels[node.ID] = textnorm.Normalize(node.Label)
		orderedIDs = append(orderedIDs, node.ID)
	}

	if len(queryConcepts) > 0 {
		var direct []string
		for concept := range queryConcepts {
			if _, ok := nodeIDs[concept]; ok {
				direct = append(direct, concept)
			}
		}
		if len(direct) > 0 {
			sort.Strings(direct)
			directPaths := make([][]string, 0, 4)
			for _, match := range capStrings(direct, 4) {
				directPaths = append(directPaths, []string{match})
			}
			return true, deepDirectScore, directPaths, capStrings(direct, 8)
		}
	}

	if len(queryConcepts) == 0 {
		var tokenMatches []string
		for _, nodeID := range orderedIDs {
			for _, labelToken := range textnorm.TokensWithSingulars(labels[nodeID]) {
				if _, ok := queryTokens[labelToken]; ok {
					tokenMatches = append(tokenMatches, nodeID)
					break
				}
			}
		}
		if len(tokenMatches) > 0 {
			tokenPaths := make([][]string, 0, 4)
			for _, nodeID := range capStrings(tokenMatches, 4) {
				tokenPaths = append(tokenPaths, []string{nodeID})
			}
			return true, deepLabelTokenScore, tokenPaths, capStrings(tokenMatches, 8)
		}
		return false, 0, nil, nil
	}

	adjacency := graphAdjacency(graph)
	seeds := make([]string, 0, len(queryConcepts))
	for concept := range queryConcepts {
		seeds = append(seeds, concept)
	}
	sort.Strings(seeds)

	matched := make(map[string]struct{})
	var matchedPaths [][]string

	type frontier struct {
		node  string
		depth int
		path  []string
	}
	for _, seed := range seeds {
		queue := []frontier{{node: seed, depth: 0, path: []string{seed}}}
		visited := map[string]int{seed: 0}

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if current.depth >= MaxSubgraphHops {
				continue
			}
			for _, next := range sortedNeighbors(adjacency, current.node) {
				nextDepth := current.depth + 1
				if prev, seen := visited[next]; seen && prev <= nextDepth {
					continue
				}
				visited[next] = nextDepth
				path := append(append([]string{}, current.path...), next)
				queue = append(queue, frontier{node: next, depth: nextDepth, path: path})

				if _, ok := nodeIDs[next]; ok {
					matched[next] = struct{}{}
					matchedPaths = append(matchedPaths, path)
				}
			}
		}
	}

	if len(matched) == 0 {
		return false, 0, nil, nil
	}

	bestHops := MaxSubgraphHops
	for _, path := range matchedPaths {
		if hops := len(path) - 1; hops < bestHops {
			bestHops = hops
		}
	}
	score = deepTwoHopScore
	if bestHops == 1 {
		score = deepOneHopScore
	}

	claims := make([]string, 0, len(matched))
	for claim := range matched {
		claims = append(claims, claim)
	}
	sort.Strings(claims)

	if len(matchedPaths) > 6 {
		matchedPaths = matchedPaths[:6]
	}
	return true, score, matchedPaths, capStrings(claims, 12)
}

func capStrings(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
