// Package pipeline implements the deterministic precompute that turns a
// business's upstream records into search artifacts: extraction,
// normalization, concept mapping, bounded relation inference,
// composition, scoring, indexing, and verification. Running it twice
// over unchanged inputs and an unchanged taxonomy produces identical
// artifacts.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/logger"
	"github.com/placegraph/backend/pkg/store"
	"github.com/placegraph/backend/pkg/taxonomy"

	"golang.org/x/sync/errgroup"
)

// Stats summarizes one pipeline run.
type Stats struct {
	BusinessesProcessed int `json:"businesses_processed"`
	SpansExtracted      int `json:"spans_extracted"`
	ClaimsMapped        int `json:"claims_mapped"`
	ClaimsVerified      int `json:"claims_verified"`
	Failures            int `json:"failures"`
}

// Pipeline wires the stages together over a Storage backend.
type Pipeline struct {
	tax         *taxonomy.Taxonomy
	storage     store.Storage
	mapper      *Mapper
	arbiter     *Arbiter
	parallelism int
}

// New builds a pipeline. Parallelism below 1 is clamped to sequential
// processing.
func New(tax *taxonomy.Taxonomy, storage store.Storage, parallelism int) *Pipeline {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Pipeline{
		tax:         tax,
		storage:     storage,
		mapper:      NewMapper(tax),
		arbiter:     NewArbiter(tax),
		parallelism: parallelism,
	}
}

// DeriveClaims runs the in-memory stages over one business's inputs and
// returns the scored claim set plus the normalized span count.
func (p *Pipeline) DeriveClaims(inputs common.BusinessInputs, now time.Time) (map[string]*common.Claim, int) {
	spans := NormalizeSpans(ExtractSpans(inputs))
	claims := p.mapper.Map(spans)
	p.arbiter.Apply(claims)
	Compose(claims)
	ScoreClaims(claims, now)
	return claims, len(spans)
}

// ProcessBusiness rebuilds and persists all artifacts for one business.
// A business that no longer exists is a no-op.
func (p *Pipeline) ProcessBusiness(ctx context.Context, businessID int64) (claimCount, verifiedCount, spanCount int, err error) {
	inputs, err := p.storage.GetBusinessInputs(ctx, businessID)
	if err != nil {
		return 0, 0, 0, err
	}
	if inputs.Business == nil {
		return 0, 0, 0, nil
	}

	now := time.Now().UTC()
	claims, spanCount := p.DeriveClaims(inputs, now)
	artifacts := BuildArtifacts(inputs.Business, claims, spanCount, now)

	if err := p.storage.ReplaceBusinessArtifacts(ctx, artifacts); err != nil {
		return 0, 0, 0, err
	}
	return len(claims), len(artifacts.Verified), spanCount, nil
}

// Run processes the given businesses, or every known business when the
// list is empty. Individual failures are logged and counted but do not
// abort the batch.
func (p *Pipeline) Run(ctx context.Context, businessIDs []int64) (Stats, error) {
	var stats Stats

	if len(businessIDs) == 0 {
		ids, err := p.storage.ListBusinessIDs(ctx)
		if err != nil {
			return stats, err
		}
		businessIDs = ids
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.parallelism)

	for _, businessID := range businessIDs {
		group.Go(func() error {
			claimCount, verifiedCount, spanCount, err := p.ProcessBusiness(groupCtx, businessID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("Failed to index business", "business_id", businessID, "error", err)
				stats.Failures++
				return nil
			}
			stats.BusinessesProcessed++
			stats.ClaimsMapped += claimCount
			stats.ClaimsVerified += verifiedCount
			stats.SpansExtracted += spanCount
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}
