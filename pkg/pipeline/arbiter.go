package pipeline

import (
	"fmt"
	"sort"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/taxonomy"
)

// MaxRelationHops bounds relation traversal. No inference chain may be
// longer than this, ever.
const MaxRelationHops = 2

const (
	hopPenaltyOne = 0.78
	hopPenaltyTwo = 0.58
)

// Arbiter derives relation-backed claims by walking the curated concept
// graph outward from every directly mapped claim, at most
// MaxRelationHops deep.
type Arbiter struct {
	tax *taxonomy.Taxonomy
}

func NewArbiter(tax *taxonomy.Taxonomy) *Arbiter {
	return &Arbiter{tax: tax}
}

type traversalState struct {
	node      string
	depth     int
	concepts  []string
	relations []string
}

// serializePath interleaves the concept chain with the relations that
// connect it: [c0 r0 c1 r1 c2].
func serializePath(concepts, relations []string) []string {
	path := make([]string, 0, len(concepts)+len(relations))
	for i, concept := range concepts {
		path = append(path, concept)
		if i < len(relations) {
			path = append(path, relations[i])
		}
	}
	return path
}

// Apply mutates the claim set in place, attaching relation evidence to
// reachable target concepts. Seeds are walked in sorted order and each
// target keeps only its shortest derivation, so output never depends on
// map iteration.
func (a *Arbiter) Apply(claims map[string]*common.Claim) {
	seeds := make([]string, 0, len(claims))
	for id := range claims {
		seeds = append(seeds, id)
	}
	sort.Strings(seeds)

	for _, seed := range seeds {
		seedClaim := claims[seed]
		if seedClaim == nil || len(seedClaim.Evidence) == 0 {
			continue
		}
		seedStrength := seedClaim.BestDirectValue()

		queue := []traversalState{{node: seed, depth: 0, concepts: []string{seed}}}
		bestDepth := map[string]int{seed: 0}

		for len(queue) > 0 {
			state := queue[0]
			queue = queue[1:]
			if state.depth >= MaxRelationHops {
				continue
			}

			for _, edge := range a.tax.Outgoing(state.node) {
				nextDepth := state.depth + 1
				if nextDepth > MaxRelationHops {
					continue
				}
				target := edge.Target
				if existing, seen := bestDepth[target]; seen && existing <= nextDepth {
					continue
				}
				bestDepth[target] = nextDepth

				concepts := append(append([]string{}, state.concepts...), target)
				relations := append(append([]string{}, state.relations...), edge.Relation)
				queue = append(queue, traversalState{
					node:      target,
					depth:     nextDepth,
					concepts:  concepts,
					relations: relations,
				})

				if target == seed {
					continue
				}

				penalty := hopPenaltyOne
				if nextDepth > 1 {
					penalty = hopPenaltyTwo
				}
				strength := clampUnit(seedStrength * penalty)

				targetClaim, exists := claims[target]
				if !exists {
					targetClaim = common.NewClaim(target, taxonomy.LabelFor(target))
					claims[target] = targetClaim
				}
				targetClaim.IsInferred = true
				targetClaim.AddEvidence(common.Evidence{
					Kind:      common.KindRelation,
					Path:      serializePath(concepts, relations),
					FromClaim: seed,
					Relation:  edge.Relation,
					Hops:      nextDepth,
					Value:     round4(strength),
					SourceKey: fmt.Sprintf("relation:%s:%s:%d", seed, target, nextDepth),
					SourceID:  fmt.Sprintf("relation:%s:%s", seed, target),
					Provenance: common.Provenance{
						RelationProvenance: edge.Provenance,
						MaxHopsEnforced:    MaxRelationHops,
					},
				})
			}
		}
	}
}
