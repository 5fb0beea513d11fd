// Package store defines the persistence boundary for pipeline inputs,
// derived artifacts, and the search-side read paths. The pgx subpackage
// provides the Postgres implementation.
package store

import (
	"context"

	"github.com/placegraph/backend/pkg/common"
)

// Candidate is one coarse-retrieval hit: a business plus its cosine
// similarity against the query footprint vector.
type Candidate struct {
	Business   common.Business
	Similarity float64
}

// Storage is the full persistence interface. Write paths replace
// per-business artifact sets atomically; read paths are batch-oriented
// so the search service can hydrate many businesses in one round trip.
type Storage interface {
	// ListBusinessIDs returns every business ID in ascending order.
	ListBusinessIDs(ctx context.Context) ([]int64, error)

	// GetBusinessInputs loads the upstream records for one business.
	// A missing business yields a zero BusinessInputs with a nil
	// Business and no error.
	GetBusinessInputs(ctx context.Context, businessID int64) (common.BusinessInputs, error)

	// ReplaceBusinessArtifacts atomically swaps all derived artifacts
	// for artifacts.Footprint.BusinessID in one transaction.
	ReplaceBusinessArtifacts(ctx context.Context, artifacts common.BusinessArtifacts) error

	// DeleteBusinessArtifacts removes all derived artifacts for a
	// business. Deleting an unindexed business is a no-op.
	DeleteBusinessArtifacts(ctx context.Context, businessID int64) error

	// FootprintCandidates returns the businesses whose footprint
	// vectors are nearest to the query vector, most similar first.
	// Chains are excluded unless includeChains is set.
	FootprintCandidates(ctx context.Context, queryVector []float32, limit int, includeChains bool) ([]Candidate, error)

	// VerticalSlices loads the slice rows for a set of businesses.
	VerticalSlices(ctx context.Context, businessIDs []int64) (map[int64][]common.VerticalSlice, error)

	// EvidenceTerms loads inverted-index rows matching any of the given
	// terms for a set of businesses.
	EvidenceTerms(ctx context.Context, businessIDs []int64, terms []string) (map[int64][]common.EvidenceIndexTerm, error)

	// Micrographs loads the per-business claim graphs.
	Micrographs(ctx context.Context, businessIDs []int64) (map[int64]common.Micrograph, error)

	// VerifiedClaims loads the verified registries for a set of
	// businesses.
	VerifiedClaims(ctx context.Context, businessIDs []int64) (map[int64][]common.VerifiedClaim, error)

	// VerifiedClaimsForBusiness loads one business's verified claims,
	// highest confidence first.
	VerifiedClaimsForBusiness(ctx context.Context, businessID int64) ([]common.VerifiedClaim, error)
}
