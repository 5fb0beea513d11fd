package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/taxonomy"
)

const testAliases = `{
  "food.taco": ["tacos"],
  "food.filling.barbacoa": ["barbacoa"],
  "biz.type.restaurant": ["restaurant", "mexican restaurant"],
  "service.nailpolish": ["nail polish", "manicure"],
  "service.pedicure": ["pedicure"],
  "concept.a": ["alpha"],
  "concept.b": ["beta"],
  "concept.c": ["gamma"],
  "concept.d": ["delta"]
}`

const testRelations = `[
  {"source": "food.filling.barbacoa", "relation": "served_in", "target": "food.taco"},
  {"source": "concept.a", "relation": "leads_to", "target": "concept.b"},
  {"source": "concept.b", "relation": "leads_to", "target": "concept.c"},
  {"source": "concept.c", "relation": "leads_to", "target": "concept.d"}
]`

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	dir := t.TempDir()
	aliasPath := filepath.Join(dir, "aliases.json")
	relationPath := filepath.Join(dir, "relations.json")
	if err := os.WriteFile(aliasPath, []byte(testAliases), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(relationPath, []byte(testRelations), 0o644); err != nil {
		t.Fatal(err)
	}
	tax, err := taxonomy.Load(aliasPath, relationPath)
	if err != nil {
		t.Fatal(err)
	}
	return tax
}

func directEvidence(kind common.SourceKind, value float64, sourceKey string) common.Evidence {
	return common.Evidence{
		Kind:       kind,
		Value:      value,
		SourceKey:  sourceKey,
		Provenance: common.Provenance{Table: "menu_items", RowID: 1, Field: "item_name"},
	}
}

func TestExtractSpans(t *testing.T) {
	longText := strings.Repeat("tacos y mas ", 40)
	inputs := common.BusinessInputs{
		Business: &common.Business{
			ID:          7,
			Name:        "La Taquería",
			Website:     "https://lataqueria.example",
			Types:       []string{"restaurant", "food"},
			TextContent: longText,
		},
		MenuItems: []common.MenuItem{
			{ID: 11, BusinessID: 7, ItemName: "Barbacoa Taco", Description: "slow cooked barbacoa"},
		},
		EvidencePackets: []common.EvidencePacket{
			{ID: 21, BusinessID: 7, ClaimText: "famous for tacos", ExtractionConfidence: 0.9, CredibilityScore: 88},
		},
		Sources: []common.BusinessSource{
			{ID: 31, BusinessID: 7, SourceURL: "https://reviews.example", Snippet: "best manicure in town"},
		},
	}

	spans := ExtractSpans(inputs)

	wantIDs := []string{
		"menu:11:name", "menu:11:description", "evidence:21",
		"type:7:0", "type:7:1", "bizname:7", "text:7", "source:31",
	}
	gotIDs := make([]string, len(spans))
	for i, span := range spans {
		gotIDs[i] = span.SpanID
	}
	if !reflect.DeepEqual(gotIDs, wantIDs) {
		t.Fatalf("span ids = %v, want %v", gotIDs, wantIDs)
	}

	byID := make(map[string]common.EvidenceSpan, len(spans))
	for _, span := range spans {
		byID[span.SpanID] = span
	}

	if got := byID["menu:11:name"]; got.ExtractionConfidence != 1.0 || got.CredibilityScore != 85.0 {
		t.Errorf("menu name defaults = %f/%f, want 1.0/85.0", got.ExtractionConfidence, got.CredibilityScore)
	}
	if got := byID["menu:11:description"]; got.CredibilityScore != 80.0 {
		t.Errorf("menu description credibility = %f, want 80.0", got.CredibilityScore)
	}
	if got := byID["evidence:21"]; got.ExtractionConfidence != 0.9 || got.CredibilityScore != 88.0 {
		t.Errorf("packet kept explicit confidence %f/%f", got.ExtractionConfidence, got.CredibilityScore)
	}
	if got := byID["text:7"]; len(got.Snippet) != 300 {
		t.Errorf("web text snippet length = %d, want 300", len(got.Snippet))
	}
	if got := byID["type:7:0"]; got.Provenance.Index != 0 || got.Provenance.Field != "types" {
		t.Errorf("unexpected category tag provenance: %+v", got.Provenance)
	}

	if got := ExtractSpans(common.BusinessInputs{}); got != nil {
		t.Errorf("expected no spans for missing business, got %d", len(got))
	}
}

func TestMapperEvidenceValue(t *testing.T) {
	tax := testTaxonomy(t)
	spans := NormalizeSpans([]common.EvidenceSpan{
		{
			SpanID:               "menu:1:name",
			Text:                 "Barbacoa Tacos",
			SourceKind:           common.KindMenuItem,
			SourceID:             "menu:1",
			ExtractionConfidence: 1.0,
			CredibilityScore:     85.0,
			Provenance:           common.Provenance{Table: "menu_items", RowID: 1},
		},
	})

	claims := NewMapper(tax).Map(spans)

	taco := claims["food.taco"]
	if taco == nil {
		t.Fatal("expected food.taco claim")
	}
	if len(taco.Evidence) != 1 {
		t.Fatalf("expected one evidence entry per span per concept, got %d", len(taco.Evidence))
	}
	if got, want := taco.Evidence[0].Value, 0.925; got != want {
		t.Errorf("evidence value = %f, want %f", got, want)
	}
	if !taco.DirectSupport {
		t.Error("mapped claim should carry direct support")
	}
	if claims["food.filling.barbacoa"] == nil {
		t.Error("expected barbacoa concept from n-gram match")
	}
}

func TestArbiterHopBound(t *testing.T) {
	tax := testTaxonomy(t)
	claims := map[string]*common.Claim{}
	seed := common.NewClaim("concept.a", "a")
	seed.AddEvidence(directEvidence(common.KindMenuItem, 0.9, "menu:1||menu:1:name"))
	claims["concept.a"] = seed

	NewArbiter(tax).Apply(claims)

	b := claims["concept.b"]
	if b == nil || !b.IsInferred {
		t.Fatal("expected inferred claim one hop out")
	}
	if got, want := b.Evidence[0].Value, math.Round(0.9*0.78*10000)/10000; got != want {
		t.Errorf("hop-1 strength = %f, want %f", got, want)
	}
	if b.Evidence[0].Hops != 1 || b.MaxHops != 1 {
		t.Errorf("hop-1 claim has hops %d / max %d", b.Evidence[0].Hops, b.MaxHops)
	}

	c := claims["concept.c"]
	if c == nil {
		t.Fatal("expected inferred claim two hops out")
	}
	if got, want := c.Evidence[0].Value, math.Round(0.9*0.58*10000)/10000; got != want {
		t.Errorf("hop-2 strength = %f, want %f", got, want)
	}
	wantPath := []string{"concept.a", "leads_to", "concept.b", "leads_to", "concept.c"}
	if !reflect.DeepEqual(c.Evidence[0].Path, wantPath) {
		t.Errorf("hop-2 path = %v, want %v", c.Evidence[0].Path, wantPath)
	}

	if claims["concept.d"] != nil {
		t.Error("three-hop concept must never receive evidence")
	}

	if b.DirectSupport {
		t.Error("relation evidence must not grant direct support")
	}
}

func TestCompositionRequiresIndependentSources(t *testing.T) {
	tests := []struct {
		name        string
		tacoKey     string
		fillingKey  string
		wantCompose bool
	}{
		{
			name:        "same source restated",
			tacoKey:     "menu:1||menu:1:name",
			fillingKey:  "menu:1||menu:1:name",
			wantCompose: false,
		},
		{
			name:        "independent sources",
			tacoKey:     "menu:1||menu:1:name",
			fillingKey:  "evidence:9||evidence:9",
			wantCompose: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := map[string]*common.Claim{}
			taco := common.NewClaim("food.taco", "taco")
			taco.AddEvidence(directEvidence(common.KindMenuItem, 0.9, tt.tacoKey))
			claims["food.taco"] = taco

			filling := common.NewClaim("food.filling.barbacoa", "barbacoa")
			filling.AddEvidence(directEvidence(common.KindEvidencePacket, 0.8, tt.fillingKey))
			claims["food.filling.barbacoa"] = filling

			Compose(claims)

			composed := claims["food.taco.filling.barbacoa"]
			if tt.wantCompose {
				if composed == nil {
					t.Fatal("expected composed claim")
				}
				if !composed.IsComposed {
					t.Error("composed claim missing is_composed flag")
				}
				if composed.Label != "tacos de barbacoa" {
					t.Errorf("composed label = %q", composed.Label)
				}
				last := composed.Evidence[len(composed.Evidence)-1]
				if last.Kind != common.KindComposition || last.Value != 0.92 {
					t.Errorf("composition evidence = %+v", last)
				}
				if !last.Provenance.MultiSourceRequired || last.Provenance.SourceCount != 2 {
					t.Errorf("composition provenance = %+v", last.Provenance)
				}
			} else if composed != nil {
				t.Fatal("composed claim must not exist from a single source")
			}
		})
	}
}

func TestScoreClaimsFormula(t *testing.T) {
	claim := common.NewClaim("food.taco", "taco")
	claim.AddEvidence(directEvidence(common.KindMenuItem, 0.8, "s1"))
	claim.AddEvidence(common.Evidence{Kind: common.KindRelation, Value: 0.5, Hops: 1, SourceKey: "s2"})
	claims := map[string]*common.Claim{"food.taco": claim}

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ScoreClaims(claims, now)

	wantScore := math.Round((0.65*0.8+0.28*0.5+0.24*(1.0/3.0))*10000) / 10000
	if claim.Score != wantScore {
		t.Errorf("score = %f, want %f", claim.Score, wantScore)
	}
	wantConfidence := math.Round(claim.Score / 1.35 * 10000) / 10000
	if math.Abs(claim.Confidence-wantConfidence) > 1e-9 {
		t.Errorf("confidence = %f, want %f", claim.Confidence, wantConfidence)
	}
	if !claim.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", claim.CreatedAt, now)
	}
}

func TestScoreClaimsUnknownKindFloor(t *testing.T) {
	claim := common.NewClaim("x.y", "y")
	claim.AddEvidence(common.Evidence{Kind: "mystery", Value: 1.0, SourceKey: "s1"})
	claims := map[string]*common.Claim{"x.y": claim}

	ScoreClaims(claims, time.Now().UTC())

	if claim.Score != 0.12 {
		t.Errorf("unknown kind score = %f, want 0.12", claim.Score)
	}
}

func TestVerifyClaims(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	strong := common.NewClaim("food.taco", "taco")
	strong.AddEvidence(directEvidence(common.KindMenuItem, 0.95, "s1"))
	strong.Confidence = 0.92
	strong.Score = 1.24

	weak := common.NewClaim("food.burrito", "burrito")
	weak.AddEvidence(directEvidence(common.KindMenuItem, 0.7, "s1"))
	weak.Confidence = 0.80

	inferredOnly := common.NewClaim("concept.b", "b")
	inferredOnly.AddEvidence(common.Evidence{Kind: common.KindRelation, Value: 0.9, Hops: 1, SourceKey: "r1", Provenance: common.Provenance{RelationProvenance: "curated"}})
	inferredOnly.Confidence = 0.95

	composedThin := common.NewClaim("food.taco.filling.barbacoa", "tacos de barbacoa")
	composedThin.IsComposed = true
	composedThin.AddEvidence(directEvidence(common.KindMenuItem, 0.9, "s1"))
	composedThin.Confidence = 0.95

	untraceable := common.NewClaim("service.pedicure", "pedicure")
	untraceable.AddEvidence(common.Evidence{Kind: common.KindMenuItem, Value: 0.95, SourceKey: "s1"})
	untraceable.Confidence = 0.95

	rows := []*common.Claim{strong, weak, inferredOnly, composedThin, untraceable}
	verified := VerifyClaims(7, rows, now)

	if len(verified) != 1 {
		t.Fatalf("expected exactly one verified claim, got %d", len(verified))
	}
	got := verified[0]
	if got.ClaimID != "food.taco" || got.BusinessID != 7 {
		t.Errorf("verified wrong claim: %+v", got)
	}
	if got.AuditChain.Score != 1.24 || !got.AuditChain.DirectSupport {
		t.Errorf("unexpected audit chain: %+v", got.AuditChain)
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, now)
	}
}

func TestBuildArtifacts(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	business := &common.Business{ID: 7, Name: "La Taquería"}

	taco := common.NewClaim("food.taco", "taco")
	taco.AddEvidence(common.Evidence{
		Kind:       common.KindMenuItem,
		Text:       "Barbacoa Tacos",
		Normalized: "barbacoa tacos",
		Value:      0.925,
		SourceKey:  "menu:1||menu:1:name",
		SourceID:   "menu:1",
		Provenance: common.Provenance{Table: "menu_items", RowID: 1, Field: "item_name"},
	})
	taco.Score = 1.2
	taco.Confidence = 0.89

	restaurant := common.NewClaim("biz.type.restaurant", "restaurant")
	restaurant.AddEvidence(common.Evidence{
		Kind:       common.KindCategoryTag,
		Text:       "restaurant",
		Normalized: "restaurant",
		Value:      0.86,
		SourceKey:  "place_type:0||type:7:0",
		Provenance: common.Provenance{Table: "businesses", RowID: 7, Field: "types"},
	})
	restaurant.Score = 0.5
	restaurant.Confidence = 0.37

	inferred := common.NewClaim("concept.c", "c")
	inferred.IsInferred = true
	inferred.AddEvidence(common.Evidence{
		Kind:      common.KindRelation,
		Path:      []string{"concept.a", "leads_to", "concept.b", "leads_to", "concept.c"},
		Value:     0.52,
		Hops:      2,
		SourceKey: "relation:concept.a:concept.c:2",
		Provenance: common.Provenance{
			RelationProvenance: "curated",
			MaxHopsEnforced:    2,
		},
	})
	inferred.Confidence = 0.2

	claims := map[string]*common.Claim{
		"food.taco":           taco,
		"biz.type.restaurant": restaurant,
		"concept.c":           inferred,
	}

	artifacts := BuildArtifacts(business, claims, 5, now)

	if artifacts.Footprint.BusinessID != 7 || len(artifacts.Footprint.FeatureVector) != 384 {
		t.Fatalf("unexpected footprint shape: %+v", artifacts.Footprint.BusinessID)
	}
	wantFlags := map[string]float64{"food.taco": round4(math.Log1p(0.89 * 8)), "biz.type": round4(math.Log1p(0.37 * 8))}
	if !reflect.DeepEqual(artifacts.Footprint.FeatureFlags, wantFlags) {
		t.Errorf("feature flags = %v, want %v", artifacts.Footprint.FeatureFlags, wantFlags)
	}
	if got, want := artifacts.Footprint.CoverageScore, 2.0/14.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("coverage = %f, want %f", got, want)
	}

	sliceKeys := make([]string, 0, len(artifacts.Slices))
	for _, slice := range artifacts.Slices {
		sliceKeys = append(sliceKeys, slice.SliceKey)
	}
	if !reflect.DeepEqual(sliceKeys, []string{"business_type", "concept", "food"}) {
		t.Errorf("slice keys = %v", sliceKeys)
	}

	foundTerm := false
	for _, term := range artifacts.Terms {
		if term.Term == "barbacoa" && term.ClaimID == "food.taco" {
			foundTerm = true
			if term.Weight != 0.89 {
				t.Errorf("term weight = %f, want claim confidence", term.Weight)
			}
		}
		if len(term.Term) < 2 {
			t.Errorf("index contains short term %q", term.Term)
		}
	}
	if !foundTerm {
		t.Error("expected barbacoa index term for food.taco")
	}

	mg := artifacts.Micrograph
	if mg.Constraints.MaxHops != 2 || mg.Constraints.MLInference || mg.Constraints.GlobalOntologyChanges {
		t.Errorf("constraints = %+v", mg.Constraints)
	}
	if mg.SpanCount != 5 || len(mg.Nodes) != 3 || len(mg.Claims) != 3 {
		t.Errorf("micrograph shape: spans %d nodes %d claims %d", mg.SpanCount, len(mg.Nodes), len(mg.Claims))
	}
	if mg.Nodes[0].ID != "food.taco" {
		t.Errorf("nodes not ordered by confidence, first is %s", mg.Nodes[0].ID)
	}
	if len(mg.Edges) != 2 {
		t.Fatalf("expected relation path unrolled into 2 edges, got %d", len(mg.Edges))
	}
	if mg.Edges[0].Source != "concept.a" || mg.Edges[0].Target != "concept.b" || mg.Edges[1].Target != "concept.c" {
		t.Errorf("unexpected edges: %+v", mg.Edges)
	}
}

func TestBuildArtifactsFallbackFootprint(t *testing.T) {
	now := time.Now().UTC()
	business := &common.Business{ID: 9}

	faint := common.NewClaim("food.taco", "taco")
	faint.Confidence = 0.1

	artifacts := BuildArtifacts(business, map[string]*common.Claim{"food.taco": faint}, 0, now)

	want := map[string]float64{"fallback.none": 1.0}
	if !reflect.DeepEqual(artifacts.Footprint.FeatureFlags, want) {
		t.Errorf("feature flags = %v, want fallback", artifacts.Footprint.FeatureFlags)
	}
}

func TestDeriveClaimsDeterministic(t *testing.T) {
	tax := testTaxonomy(t)
	pipe := New(tax, nil, 1)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	inputs := common.BusinessInputs{
		Business: &common.Business{
			ID:    7,
			Name:  "La Taquería",
			Types: []string{"restaurant"},
		},
		MenuItems: []common.MenuItem{
			{ID: 1, BusinessID: 7, ItemName: "Barbacoa Tacos"},
			{ID: 2, BusinessID: 7, ItemName: "Pedicure Special"},
		},
		EvidencePackets: []common.EvidencePacket{
			{ID: 3, BusinessID: 7, ClaimText: "amazing barbacoa and manicure deals"},
		},
	}

	claimsA, spansA := pipe.DeriveClaims(inputs, now)
	claimsB, spansB := pipe.DeriveClaims(inputs, now)

	if spansA != spansB {
		t.Fatalf("span counts differ: %d vs %d", spansA, spansB)
	}
	artifactsA := BuildArtifacts(inputs.Business, claimsA, spansA, now)
	artifactsB := BuildArtifacts(inputs.Business, claimsB, spansB, now)
	if !reflect.DeepEqual(artifactsA, artifactsB) {
		t.Fatal("reruns over identical inputs must produce identical artifacts")
	}
}
