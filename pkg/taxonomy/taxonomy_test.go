package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, aliases, relations string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	aliasPath := filepath.Join(dir, "aliases.json")
	relationPath := filepath.Join(dir, "relations.json")
	if err := os.WriteFile(aliasPath, []byte(aliases), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(relationPath, []byte(relations), 0o644); err != nil {
		t.Fatal(err)
	}
	return aliasPath, relationPath
}

const testAliases = `{
  "food.taco": ["tacos", "taquería"],
  "food.filling.barbacoa": ["barbacoa"],
  "biz.type.restaurant": ["restaurant"],
  "food.burrito": ["burritos", "taco"]
}`

const testRelations = `[
  {"source": "food.filling.barbacoa", "relation": "served_in", "target": "food.taco"},
  {"source": "food.taco", "relation": "sold_at", "target": "biz.type.restaurant", "provenance": "manual.review"},
  {"source": "", "relation": "broken", "target": "food.taco"}
]`

func loadTestTaxonomy(t *testing.T) *Taxonomy {
	t.Helper()
	aliasPath, relationPath := writeTestConfig(t, testAliases, testRelations)
	tax, err := Load(aliasPath, relationPath)
	if err != nil {
		t.Fatal(err)
	}
	return tax
}

func TestConceptForPhrase(t *testing.T) {
	tax := loadTestTaxonomy(t)

	tests := []struct {
		name   string
		phrase string
		want   string
		found  bool
	}{
		{name: "exact alias", phrase: "tacos", want: "food.taco", found: true},
		{name: "singular form", phrase: "taco", want: "food.taco", found: true},
		{name: "accented alias", phrase: "Taquería", want: "food.taco", found: true},
		{name: "derived label", phrase: "barbacoa", want: "food.filling.barbacoa", found: true},
		{name: "unknown phrase", phrase: "sushi", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tax.ConceptForPhrase(tt.phrase)
			if ok != tt.found {
				t.Fatalf("ConceptForPhrase(%q) found = %v, want %v", tt.phrase, ok, tt.found)
			}
			if ok && got != tt.want {
				t.Errorf("ConceptForPhrase(%q) = %q, want %q", tt.phrase, got, tt.want)
			}
		})
	}
}

func TestAliasFirstWriterWins(t *testing.T) {
	tax := loadTestTaxonomy(t)

	// "taco" is both the singular of food.taco's alias and a literal
	// alias of food.burrito; the concept listed first keeps it.
	got, ok := tax.ConceptForPhrase("taco")
	if !ok || got != "food.taco" {
		t.Errorf("ConceptForPhrase(taco) = %q, %v, want food.taco", got, ok)
	}
}

func TestRelationsSkipIncompleteRows(t *testing.T) {
	tax := loadTestTaxonomy(t)

	if got := len(tax.Relations()); got != 2 {
		t.Fatalf("expected 2 relations, got %d", got)
	}
	if got := tax.Outgoing("food.filling.barbacoa"); len(got) != 1 || got[0].Target != "food.taco" {
		t.Errorf("unexpected outgoing edges: %v", got)
	}
	if got := tax.Incoming("food.taco"); len(got) != 1 || got[0].Source != "food.filling.barbacoa" {
		t.Errorf("unexpected incoming edges: %v", got)
	}
	if got := tax.Outgoing("food.taco"); got[0].Provenance != "manual.review" {
		t.Errorf("expected explicit provenance preserved, got %q", got[0].Provenance)
	}
	if got := tax.Incoming("biz.type.restaurant"); got[0].Provenance != "manual.review" {
		t.Errorf("expected explicit provenance preserved, got %q", got[0].Provenance)
	}
}

func TestDefaultRelationProvenance(t *testing.T) {
	tax := loadTestTaxonomy(t)

	edges := tax.Outgoing("food.filling.barbacoa")
	if edges[0].Provenance != "taxonomy.curated" {
		t.Errorf("expected default provenance, got %q", edges[0].Provenance)
	}
}

func TestLoadMalformedFiles(t *testing.T) {
	t.Run("invalid alias json", func(t *testing.T) {
		aliasPath, relationPath := writeTestConfig(t, `["not", "an", "object"]`, `[]`)
		if _, err := Load(aliasPath, relationPath); err == nil {
			t.Fatal("expected error for non-object alias file")
		}
	})

	t.Run("invalid relation json", func(t *testing.T) {
		aliasPath, relationPath := writeTestConfig(t, `{}`, `{"not": "a list"}`)
		if _, err := Load(aliasPath, relationPath); err == nil {
			t.Fatal("expected error for non-array relation file")
		}
	})

	t.Run("missing alias file", func(t *testing.T) {
		_, relationPath := writeTestConfig(t, `{}`, `[]`)
		if _, err := Load(filepath.Join(t.TempDir(), "nope.json"), relationPath); err == nil {
			t.Fatal("expected error for missing alias file")
		}
	})
}

func TestQuerySliceKeys(t *testing.T) {
	tax := loadTestTaxonomy(t)

	keys := tax.QuerySliceKeys([]string{"food.filling.barbacoa", "biz.type.restaurant", "solo"})

	want := []string{"food", "food.filling", "biz", "biz.type", "business_type"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for _, key := range want {
		if _, ok := keys[key]; !ok {
			t.Errorf("missing slice key %q", key)
		}
	}
}

func TestLoadShippedConfig(t *testing.T) {
	tax, err := Load(
		filepath.Join("..", "..", "data", "taxonomy", "aliases.json"),
		filepath.Join("..", "..", "data", "taxonomy", "relations.json"),
	)
	if err != nil {
		t.Fatalf("shipped taxonomy config failed to load: %v", err)
	}

	tests := []struct {
		phrase string
		want   string
	}{
		{phrase: "tacos", want: "food.taco"},
		{phrase: "al pastor", want: "food.filling.al_pastor"},
		{phrase: "coffee", want: "food.drink.coffee"},
		{phrase: "nail salon", want: "biz.type.nail_salon"},
	}
	for _, tt := range tests {
		got, ok := tax.ConceptForPhrase(tt.phrase)
		if !ok || got != tt.want {
			t.Errorf("ConceptForPhrase(%q) = %q, %v, want %q", tt.phrase, got, ok, tt.want)
		}
	}

	if len(tax.Relations()) == 0 {
		t.Fatal("shipped relations file produced no edges")
	}
	for _, edge := range tax.Relations() {
		if edge.Provenance == "" {
			t.Errorf("edge %s -[%s]-> %s has empty provenance", edge.Source, edge.Relation, edge.Target)
		}
	}
	if got := tax.Outgoing("food.filling.barbacoa"); len(got) != 1 || got[0].Target != "food.taco" {
		t.Errorf("unexpected outgoing edges for barbacoa: %v", got)
	}
}

func TestLabelFor(t *testing.T) {
	if got := LabelFor("food.filling.al_pastor"); got != "al pastor" {
		t.Errorf("LabelFor() = %q, want %q", got, "al pastor")
	}
	if got := LabelFor("taco"); got != "taco" {
		t.Errorf("LabelFor() = %q, want %q", got, "taco")
	}
}
