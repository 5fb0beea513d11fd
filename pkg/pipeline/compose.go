package pipeline

import (
	"sort"
	"strings"

	"github.com/placegraph/backend/pkg/common"
)

const (
	tacoFillingValue   = 0.92
	pediManiComboValue = 0.90

	// Composed claims must be backed by at least this many distinct
	// source keys across their contributors.
	composeMinSources = 2

	// How many evidence entries each contributor copies onto the
	// composed claim.
	composeEvidenceCopies = 2
)

func distinctSourceKeys(lists ...[]common.Evidence) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, evidence := range lists {
		for _, item := range evidence {
			if item.SourceKey != "" {
				keys[item.SourceKey] = struct{}{}
			}
		}
	}
	return keys
}

func copyHead(evidence []common.Evidence, n int) []common.Evidence {
	if len(evidence) < n {
		n = len(evidence)
	}
	return append([]common.Evidence{}, evidence[:n]...)
}

// Compose applies the fixed composition rules. A composed claim is only
// created when its contributors together span enough independent
// sources; a single upstream row restated twice never composes.
func Compose(claims map[string]*common.Claim) {
	composeTacoFillings(claims)
	composePediManiCombo(claims)
}

func composeTacoFillings(claims map[string]*common.Claim) {
	tacoClaim := claims["food.taco"]
	if tacoClaim == nil {
		return
	}

	fillingIDs := make([]string, 0)
	for id := range claims {
		if strings.HasPrefix(id, "food.filling.") {
			fillingIDs = append(fillingIDs, id)
		}
	}
	sort.Strings(fillingIDs)

	for _, fillingID := range fillingIDs {
		fillingClaim := claims[fillingID]
		filler := strings.TrimPrefix(fillingID, "food.filling.")
		composedID := "food.taco.filling." + filler

		sourceKeys := distinctSourceKeys(tacoClaim.Evidence, fillingClaim.Evidence)
		if len(sourceKeys) < composeMinSources {
			continue
		}

		composed, exists := claims[composedID]
		if !exists {
			composed = common.NewClaim(composedID, "tacos de "+strings.ReplaceAll(filler, "_", " "))
			claims[composedID] = composed
		}
		composed.IsComposed = true
		for _, item := range copyHead(tacoClaim.Evidence, composeEvidenceCopies) {
			composed.AddEvidence(item)
		}
		for _, item := range copyHead(fillingClaim.Evidence, composeEvidenceCopies) {
			composed.AddEvidence(item)
		}
		composed.AddEvidence(common.Evidence{
			Kind:      common.KindComposition,
			Rule:      "taco_filling",
			Path:      []string{"food.taco", "+", fillingID, "=>", composedID},
			Hops:      0,
			Value:     tacoFillingValue,
			SourceKey: "composition:taco_filling:" + filler,
			SourceID:  "composition:taco_filling",
			Provenance: common.Provenance{
				Rule:                "food.taco + food.filling.X => food.taco.filling.X",
				MultiSourceRequired: true,
				SourceCount:         len(sourceKeys),
			},
		})
	}
}

func composePediManiCombo(claims map[string]*common.Claim) {
	nailpolishClaim := claims["service.nailpolish"]
	pedicureClaim := claims["service.pedicure"]
	if nailpolishClaim == nil || pedicureClaim == nil {
		return
	}

	sourceKeys := distinctSourceKeys(nailpolishClaim.Evidence, pedicureClaim.Evidence)
	if len(sourceKeys) < composeMinSources {
		return
	}

	comboID := "service.pedi_mani_combo"
	combo, exists := claims[comboID]
	if !exists {
		combo = common.NewClaim(comboID, "pedi mani combo")
		claims[comboID] = combo
	}
	combo.IsComposed = true
	for _, item := range copyHead(nailpolishClaim.Evidence, composeEvidenceCopies) {
		combo.AddEvidence(item)
	}
	for _, item := range copyHead(pedicureClaim.Evidence, composeEvidenceCopies) {
		combo.AddEvidence(item)
	}
	combo.AddEvidence(common.Evidence{
		Kind:      common.KindComposition,
		Rule:      "pedi_mani_combo",
		Path:      []string{"service.nailpolish", "+", "service.pedicure", "=>", comboID},
		Hops:      0,
		Value:     pediManiComboValue,
		SourceKey: "composition:pedi_mani_combo",
		SourceID:  "composition:pedi_mani_combo",
		Provenance: common.Provenance{
			Rule:                "service.nailpolish + service.pedicure => service.pedi_mani_combo",
			MultiSourceRequired: true,
			SourceCount:         len(sourceKeys),
		},
	})
}
