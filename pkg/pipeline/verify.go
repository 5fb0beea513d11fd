package pipeline

import (
	"time"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/logger"
)

// VerifiedThreshold is the minimum confidence for promotion into the
// verified registry.
const VerifiedThreshold = 0.85

// VerifyClaims promotes qualifying claims into frozen verified records.
// A claim must have direct support, meet the confidence threshold,
// count at least one source (two when composed), and carry traceable
// provenance on at least one evidence entry. Rows keep the confidence
// ordering of the input.
func VerifyClaims(businessID int64, rows []*common.Claim, now time.Time) []common.VerifiedClaim {
	var verified []common.VerifiedClaim

	for _, claim := range rows {
		if claim.MaxHops > MaxRelationHops {
			logger.Warn("Claim exceeds hop bound, refusing verification",
				"business_id", businessID, "claim_id", claim.ID, "max_hops", claim.MaxHops)
			continue
		}
		if !claim.DirectSupport {
			continue
		}
		if claim.Confidence < VerifiedThreshold {
			continue
		}
		if claim.SourceCount < 1 {
			continue
		}
		if claim.IsComposed && claim.SourceCount < composeMinSources {
			continue
		}

		traceable := false
		for _, evidence := range claim.Evidence {
			if !evidence.Provenance.IsZero() {
				traceable = true
				break
			}
		}
		if !traceable {
			continue
		}

		verified = append(verified, common.VerifiedClaim{
			BusinessID: businessID,
			ClaimID:    claim.ID,
			Label:      claim.Label,
			Evidence:   append([]common.Evidence{}, claim.Evidence...),
			Confidence: round4(claim.Confidence),
			Timestamp:  now,
			AuditChain: common.ClaimAudit{
				Score:         claim.Score,
				SourceCount:   claim.SourceCount,
				MaxHops:       claim.MaxHops,
				DirectSupport: claim.DirectSupport,
			},
		})
	}
	return verified
}
