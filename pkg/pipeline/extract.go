package pipeline

import (
	"fmt"
	"strings"

	"github.com/placegraph/backend/pkg/common"
)

// Extraction defaults applied when an upstream row carries no
// confidence or credibility of its own.
const (
	defaultMenuNameConfidence = 1.0
	defaultMenuNameCred       = 85.0
	defaultMenuDescCred       = 80.0
	defaultPacketConfidence   = 0.7
	defaultPacketCred         = 70.0
	categoryTagCred           = 72.0
	businessNameCred          = 70.0
	webTextConfidence         = 0.55
	webTextCred               = 55.0
	sourceSnippetConfidence   = 0.6
	sourceSnippetCred         = 60.0

	webTextSnippetLimit = 300
)

func orDefault(value, fallback float64) float64 {
	if value <= 0 {
		return fallback
	}
	return value
}

func firstNonEmpty(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

// ExtractSpans collects raw evidence spans from a business's upstream
// records. Output order is fixed (menu items, packets, category tags,
// name, web text, sources) so the whole pipeline stays deterministic;
// callers must pass row lists already sorted by ID.
func ExtractSpans(inputs common.BusinessInputs) []common.EvidenceSpan {
	if inputs.Business == nil {
		return nil
	}
	biz := inputs.Business
	var spans []common.EvidenceSpan

	for _, item := range inputs.MenuItems {
		name := strings.TrimSpace(item.ItemName)
		if name != "" {
			spans = append(spans, common.EvidenceSpan{
				SpanID:               fmt.Sprintf("menu:%d:name", item.ID),
				BusinessID:           biz.ID,
				Text:                 name,
				SourceKind:           common.KindMenuItem,
				SourceID:             fmt.Sprintf("menu:%d", item.ID),
				SourceURL:            item.SourceURL,
				Snippet:              firstNonEmpty(item.SourceSnippet, name),
				ExtractionConfidence: orDefault(item.ExtractionConfidence, defaultMenuNameConfidence),
				CredibilityScore:     orDefault(item.CredibilityScore, defaultMenuNameCred),
				Provenance: common.Provenance{
					Table: "menu_items",
					RowID: item.ID,
					Field: "item_name",
				},
			})
		}

		description := strings.TrimSpace(item.Description)
		if description != "" {
			spans = append(spans, common.EvidenceSpan{
				SpanID:               fmt.Sprintf("menu:%d:description", item.ID),
				BusinessID:           biz.ID,
				Text:                 description,
				SourceKind:           common.KindMenuDescription,
				SourceID:             fmt.Sprintf("menu:%d", item.ID),
				SourceURL:            item.SourceURL,
				Snippet:              firstNonEmpty(item.SourceSnippet, description),
				ExtractionConfidence: orDefault(item.ExtractionConfidence, defaultMenuNameConfidence),
				CredibilityScore:     orDefault(item.CredibilityScore, defaultMenuDescCred),
				Provenance: common.Provenance{
					Table: "menu_items",
					RowID: item.ID,
					Field: "description",
				},
			})
		}
	}

	for _, packet := range inputs.EvidencePackets {
		claimText := strings.TrimSpace(firstNonEmpty(packet.SanitizedClaimText, packet.ClaimText))
		if claimText == "" {
			continue
		}
		spans = append(spans, common.EvidenceSpan{
			SpanID:               fmt.Sprintf("evidence:%d", packet.ID),
			BusinessID:           biz.ID,
			Text:                 claimText,
			SourceKind:           common.KindEvidencePacket,
			SourceID:             fmt.Sprintf("evidence:%d", packet.ID),
			SourceURL:            packet.SourceURL,
			Snippet:              firstNonEmpty(packet.SourceSnippet, claimText),
			ExtractionConfidence: orDefault(packet.ExtractionConfidence, defaultPacketConfidence),
			CredibilityScore:     orDefault(packet.CredibilityScore, defaultPacketCred),
			Provenance: common.Provenance{
				Table: "evidence_packets",
				RowID: packet.ID,
				Field: "sanitized_claim_text",
			},
		})
	}

	for idx, placeType := range biz.Types {
		if placeType == "" {
			continue
		}
		spans = append(spans, common.EvidenceSpan{
			SpanID:               fmt.Sprintf("type:%d:%d", biz.ID, idx),
			BusinessID:           biz.ID,
			Text:                 placeType,
			SourceKind:           common.KindCategoryTag,
			SourceID:             fmt.Sprintf("place_type:%d", idx),
			Snippet:              placeType,
			ExtractionConfidence: 1.0,
			CredibilityScore:     categoryTagCred,
			Provenance: common.Provenance{
				Table: "businesses",
				RowID: biz.ID,
				Field: "types",
				Index: idx,
			},
		})
	}

	if name := strings.TrimSpace(biz.Name); name != "" {
		spans = append(spans, common.EvidenceSpan{
			SpanID:               fmt.Sprintf("bizname:%d", biz.ID),
			BusinessID:           biz.ID,
			Text:                 name,
			SourceKind:           common.KindBusinessName,
			SourceID:             fmt.Sprintf("business:%d", biz.ID),
			SourceURL:            biz.Website,
			Snippet:              name,
			ExtractionConfidence: 1.0,
			CredibilityScore:     businessNameCred,
			Provenance: common.Provenance{
				Table: "businesses",
				RowID: biz.ID,
				Field: "name",
			},
		})
	}

	if content := strings.TrimSpace(biz.TextContent); content != "" {
		snippet := content
		if runes := []rune(snippet); len(runes) > webTextSnippetLimit {
			snippet = string(runes[:webTextSnippetLimit])
		}
		spans = append(spans, common.EvidenceSpan{
			SpanID:               fmt.Sprintf("text:%d", biz.ID),
			BusinessID:           biz.ID,
			Text:                 content,
			SourceKind:           common.KindWebText,
			SourceID:             fmt.Sprintf("text:%d", biz.ID),
			SourceURL:            biz.Website,
			Snippet:              snippet,
			ExtractionConfidence: webTextConfidence,
			CredibilityScore:     webTextCred,
			Provenance: common.Provenance{
				Table: "businesses",
				RowID: biz.ID,
				Field: "text_content",
			},
		})
	}

	for _, src := range inputs.Sources {
		snippet := strings.TrimSpace(src.Snippet)
		if snippet == "" {
			continue
		}
		spans = append(spans, common.EvidenceSpan{
			SpanID:               fmt.Sprintf("source:%d", src.ID),
			BusinessID:           biz.ID,
			Text:                 snippet,
			SourceKind:           common.KindSourceSnippet,
			SourceID:             fmt.Sprintf("source:%d", src.ID),
			SourceURL:            src.SourceURL,
			Snippet:              snippet,
			ExtractionConfidence: sourceSnippetConfidence,
			CredibilityScore:     sourceSnippetCred,
			Provenance: common.Provenance{
				Table: "business_sources",
				RowID: src.ID,
				Field: "snippet",
			},
		})
	}

	return spans
}
