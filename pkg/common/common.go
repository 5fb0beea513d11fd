package common

import "time"

// SourceKind identifies where a piece of evidence originated. Direct
// kinds correspond to upstream records; KindRelation and KindComposition
// mark synthetic evidence produced during inference.
type SourceKind string

const (
	KindMenuItem        SourceKind = "menu_item"
	KindMenuDescription SourceKind = "menu_description"
	KindEvidencePacket  SourceKind = "evidence_packet"
	KindCategoryTag     SourceKind = "category_tag"
	KindBusinessName    SourceKind = "business_name"
	KindWebText         SourceKind = "web_text"
	KindSourceSnippet   SourceKind = "source_snippet"
	KindRelation        SourceKind = "relation"
	KindComposition     SourceKind = "composition"
)

// Direct reports whether evidence of this kind counts as direct support,
// i.e. it was observed in an upstream record rather than inferred.
func (k SourceKind) Direct() bool {
	return k != KindRelation && k != KindComposition
}

// Provenance records where an evidence entry came from. For direct
// evidence it points at an upstream table row; for synthetic evidence it
// carries the relation or composition rule that produced it.
type Provenance struct {
	Table string `json:"table,omitempty"`
	RowID int64  `json:"row_id,omitempty"`
	Field string `json:"field,omitempty"`
	Index int    `json:"index,omitempty"`

	RelationProvenance  string `json:"relation_provenance,omitempty"`
	MaxHopsEnforced     int    `json:"max_hops_enforced,omitempty"`
	Rule                string `json:"rule,omitempty"`
	MultiSourceRequired bool   `json:"multi_source_required,omitempty"`
	SourceCount         int    `json:"source_count,omitempty"`
}

// IsZero reports whether the provenance record carries no information.
func (p Provenance) IsZero() bool {
	return p == Provenance{}
}

// Evidence is one entry in a claim's evidence list. Value is the
// strength of the entry in [0,1]; Hops is the relation-graph distance at
// which it was derived (0 for direct and composed evidence). SourceKey
// is the deduplication key for distinct-source counting.
type Evidence struct {
	Kind       SourceKind `json:"kind"`
	Text       string     `json:"text,omitempty"`
	Normalized string     `json:"normalized,omitempty"`
	Alias      string     `json:"alias,omitempty"`
	Value      float64    `json:"evidence"`
	Hops       int        `json:"hops"`
	Path       []string   `json:"path,omitempty"`
	FromClaim  string     `json:"from_claim,omitempty"`
	Relation   string     `json:"relation,omitempty"`
	Rule       string     `json:"rule,omitempty"`
	SourceKey  string     `json:"source_key"`
	SourceID   string     `json:"source_id,omitempty"`
	SourceURL  string     `json:"source_url,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// EvidenceSpan is one snippet of raw evidence text with provenance,
// produced by extraction and enriched by normalization. Spans only live
// for the duration of one pipeline run; they are never persisted.
type EvidenceSpan struct {
	SpanID               string
	BusinessID           int64
	Text                 string
	SourceKind           SourceKind
	SourceID             string
	SourceURL            string
	Snippet              string
	ExtractionConfidence float64
	CredibilityScore     float64
	Provenance           Provenance

	NormalizedText string
	Tokens         []string
	NGrams         []string
}

// RelationEdge is one directed edge of the curated relation table.
type RelationEdge struct {
	Source     string
	Relation   string
	Target     string
	Provenance string
}

// Claim is a scored assertion that a business exhibits a concept,
// accumulated over the pipeline stages. Adding evidence is monotone:
// SourceCount and MaxHops never decrease.
type Claim struct {
	ID            string     `json:"claim_id"`
	Label         string     `json:"label"`
	Evidence      []Evidence `json:"evidence"`
	Score         float64    `json:"score"`
	Confidence    float64    `json:"confidence"`
	MaxHops       int        `json:"max_hops"`
	IsInferred    bool       `json:"is_inferred"`
	IsComposed    bool       `json:"is_composed"`
	SourceCount   int        `json:"source_count"`
	DirectSupport bool       `json:"direct_support"`
	CreatedAt     time.Time  `json:"created_at,omitzero"`

	sourceKeys map[string]struct{}
}

// NewClaim creates an empty claim for the given concept.
func NewClaim(id, label string) *Claim {
	return &Claim{
		ID:         id,
		Label:      label,
		sourceKeys: make(map[string]struct{}),
	}
}

// AddEvidence appends an entry to the claim's evidence list and updates
// the derived counters. SourceCount always equals the number of distinct
// source keys ever added.
func (c *Claim) AddEvidence(e Evidence) {
	c.Evidence = append(c.Evidence, e)

	if c.sourceKeys == nil {
		c.sourceKeys = make(map[string]struct{})
	}
	if e.SourceKey != "" {
		c.sourceKeys[e.SourceKey] = struct{}{}
		c.SourceCount = len(c.sourceKeys)
	}
	if e.Kind.Direct() {
		c.DirectSupport = true
	}
	if e.Hops > c.MaxHops {
		c.MaxHops = e.Hops
	}
}

// BestDirectValue returns the strongest direct (hop-0, non-synthetic)
// evidence value on the claim, or 0 if there is none.
func (c *Claim) BestDirectValue() float64 {
	best := 0.0
	for _, e := range c.Evidence {
		if !e.Kind.Direct() {
			continue
		}
		if e.Value > best {
			best = e.Value
		}
	}
	return best
}

// SourceKeys returns the distinct source keys collected so far.
func (c *Claim) SourceKeys() map[string]struct{} {
	out := make(map[string]struct{}, len(c.sourceKeys))
	for k := range c.sourceKeys {
		out[k] = struct{}{}
	}
	return out
}

// GlobalFootprint is the dense per-business embedding used for coarse
// Layer-1 retrieval. The vector is unit length (or all zero when the
// business produced no features).
type GlobalFootprint struct {
	BusinessID    int64              `json:"business_id"`
	FeatureVector []float32          `json:"feature_vector"`
	FeatureFlags  map[string]float64 `json:"feature_flags"`
	CoverageScore float64            `json:"coverage_score"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// VerticalSlice groups a business's claims under one coarse category
// with per-subcategory confidence weights.
type VerticalSlice struct {
	BusinessID      int64              `json:"business_id"`
	SliceKey        string             `json:"slice_key"`
	CategoryWeights map[string]float64 `json:"category_weights"`
	SliceTerms      []string           `json:"slice_terms"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// EvidenceRef points an inverted-index term back at the evidence entry
// it was derived from.
type EvidenceRef struct {
	SourceID  string `json:"source_id,omitempty"`
	SourceKey string `json:"source_key,omitempty"`
	Text      string `json:"text,omitempty"`
}

// EvidenceIndexTerm is one literal inverted-index row, unique per
// (business, term, claim, source kind). Weight mirrors the owning
// claim's confidence.
type EvidenceIndexTerm struct {
	BusinessID int64       `json:"business_id"`
	Term       string      `json:"term"`
	ClaimID    string      `json:"claim_id"`
	SourceKind SourceKind  `json:"source_kind"`
	Ref        EvidenceRef `json:"evidence_ref"`
	Provenance Provenance  `json:"provenance"`
	Weight     float64     `json:"weight"`
}

// MicrographNode is a claim serialized into the per-business graph.
type MicrographNode struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Confidence  float64    `json:"confidence"`
	Score       float64    `json:"score"`
	MaxHops     int        `json:"max_hops"`
	IsInferred  bool       `json:"is_inferred"`
	IsComposed  bool       `json:"is_composed"`
	SourceCount int        `json:"source_count"`
	Evidence    []Evidence `json:"evidence"`
}

// MicrographEdge is a relation or composition link between two claim
// nodes in the per-business graph.
type MicrographEdge struct {
	Source     string     `json:"source"`
	Relation   string     `json:"relation"`
	Target     string     `json:"target"`
	Hops       int        `json:"hops"`
	Provenance Provenance `json:"provenance"`
}

// ClaimSummary is the compact per-claim record embedded in a micrograph
// for quick listing without walking the node payloads.
type ClaimSummary struct {
	ClaimID     string  `json:"claim_id"`
	Label       string  `json:"label"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	SourceCount int     `json:"source_count"`
	MaxHops     int     `json:"max_hops"`
	IsComposed  bool    `json:"is_composed"`
}

// GraphConstraints records the pipeline bounds a micrograph was built
// under, surfaced in every audit chain.
type GraphConstraints struct {
	MaxHops               int  `json:"max_hops"`
	MLInference           bool `json:"ml_inference"`
	GlobalOntologyChanges bool `json:"global_ontology_changes"`
}

// Micrograph is the serialized per-business claim graph.
type Micrograph struct {
	BusinessID  int64            `json:"business_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Constraints GraphConstraints `json:"constraints"`
	Nodes       []MicrographNode `json:"nodes"`
	Edges       []MicrographEdge `json:"edges"`
	Claims      []ClaimSummary   `json:"claims"`
	SpanCount   int              `json:"span_count"`
}

// ClaimAudit is the frozen audit summary attached to a verified claim.
type ClaimAudit struct {
	Score         float64 `json:"score"`
	SourceCount   int     `json:"source_count"`
	MaxHops       int     `json:"max_hops"`
	DirectSupport bool    `json:"direct_support"`
}

// VerifiedClaim is a claim promoted into the verified registry. The
// evidence list is a frozen copy; rows are replaced wholesale per run
// and never mutated in place.
type VerifiedClaim struct {
	BusinessID int64      `json:"business_id"`
	ClaimID    string     `json:"claim_id"`
	Label      string     `json:"label"`
	Evidence   []Evidence `json:"evidence"`
	Confidence float64    `json:"confidence"`
	Timestamp  time.Time  `json:"timestamp"`
	AuditChain ClaimAudit `json:"audit_chain"`
}

// BusinessArtifacts bundles everything one pipeline run derives for a
// single business. Persistence replaces the whole set atomically.
type BusinessArtifacts struct {
	Footprint  GlobalFootprint
	Slices     []VerticalSlice
	Terms      []EvidenceIndexTerm
	Micrograph Micrograph
	Verified   []VerifiedClaim
}

// Business is the upstream-owned business record. The pipeline and
// search service read it but never write it.
type Business struct {
	ID            int64
	Name          string
	Lat           float64
	Lng           float64
	Website       string
	Types         []string
	TextContent   string
	IsChain       bool
	ChainName     string
	HoursJSON     string
	Timezone      string
	BusinessModel map[string]any
	LastUpdated   time.Time
}

// MenuItem is one upstream menu row for a business.
type MenuItem struct {
	ID                   int64
	BusinessID           int64
	ItemName             string
	Description          string
	SourceURL            string
	SourceSnippet        string
	ExtractionConfidence float64
	CredibilityScore     float64
}

// EvidencePacket is one upstream extracted claim-text record.
type EvidencePacket struct {
	ID                   int64
	BusinessID           int64
	ClaimText            string
	SanitizedClaimText   string
	SourceURL            string
	SourceSnippet        string
	ExtractionConfidence float64
	CredibilityScore     float64
}

// BusinessSource is one upstream prior-source snippet for a business.
type BusinessSource struct {
	ID         int64
	BusinessID int64
	SourceURL  string
	Snippet    string
}

// BusinessInputs is everything the pipeline reads for one business.
// A nil Business means the business does not exist (a no-op, not an
// error, for indexing).
type BusinessInputs struct {
	Business        *Business
	MenuItems       []MenuItem
	EvidencePackets []EvidencePacket
	Sources         []BusinessSource
}
