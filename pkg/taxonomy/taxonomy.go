// Package taxonomy loads the curated concept graph: a concept-to-alias
// table and a small set of directed relation edges between concepts.
// The graph is fixed at startup; nothing at runtime ever adds concepts
// or edges to it.
package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/textnorm"
)

// Taxonomy is the immutable concept graph shared by the indexing
// pipeline and the search service.
type Taxonomy struct {
	conceptAliases map[string][]string
	aliasToConcept map[string]string
	relations      []common.RelationEdge
	adjacency      map[string][]common.RelationEdge
	reverse        map[string][]common.RelationEdge
}

// Load reads the alias and relation config files. Malformed JSON is an
// error; rows with missing fields are skipped silently.
func Load(aliasPath, relationPath string) (*Taxonomy, error) {
	concepts, order, err := loadAliases(aliasPath)
	if err != nil {
		return nil, fmt.Errorf("loading concept aliases from %s: %w", aliasPath, err)
	}
	relations, err := loadRelations(relationPath)
	if err != nil {
		return nil, fmt.Errorf("loading relations from %s: %w", relationPath, err)
	}

	t := &Taxonomy{
		conceptAliases: concepts,
		aliasToConcept: buildAliasLookup(concepts, order),
		relations:      relations,
		adjacency:      make(map[string][]common.RelationEdge),
		reverse:        make(map[string][]common.RelationEdge),
	}
	for _, edge := range relations {
		t.adjacency[edge.Source] = append(t.adjacency[edge.Source], edge)
		t.reverse[edge.Target] = append(t.reverse[edge.Target], edge)
	}
	return t, nil
}

// loadAliases decodes the concept alias table while preserving the
// file's key order. Order matters: when two concepts claim the same
// alias, the first concept in the file wins.
func loadAliases(path string) (map[string][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected top-level object, got %v", tok)
	}

	concepts := make(map[string][]string)
	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		conceptID, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected concept key, got %v", keyTok)
		}
		var aliases []string
		if err := dec.Decode(&aliases); err != nil {
			return nil, nil, fmt.Errorf("decoding aliases for %q: %w", conceptID, err)
		}
		if _, seen := concepts[conceptID]; !seen {
			order = append(order, conceptID)
		}
		concepts[conceptID] = aliases
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return concepts, order, nil
}

func loadRelations(path string) ([]common.RelationEdge, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Source     string `json:"source"`
		Relation   string `json:"relation"`
		Target     string `json:"target"`
		Provenance string `json:"provenance"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}

	edges := make([]common.RelationEdge, 0, len(rows))
	for _, row := range rows {
		source := strings.TrimSpace(row.Source)
		relation := strings.TrimSpace(row.Relation)
		target := strings.TrimSpace(row.Target)
		if source == "" || relation == "" || target == "" {
			continue
		}
		provenance := row.Provenance
		if provenance == "" {
			provenance = "taxonomy.curated"
		}
		edges = append(edges, common.RelationEdge{
			Source:     source,
			Relation:   relation,
			Target:     target,
			Provenance: provenance,
		})
	}
	return edges, nil
}

// buildAliasLookup maps normalized alias phrases to concept IDs. Each
// concept also answers to its derived label, the singularized form of
// each alias phrase, and the singular of single-word aliases.
func buildAliasLookup(concepts map[string][]string, order []string) map[string]string {
	lookup := make(map[string]string)
	put := func(phrase, concept string) {
		if phrase == "" {
			return
		}
		if _, exists := lookup[phrase]; !exists {
			lookup[phrase] = concept
		}
	}

	for _, concept := range order {
		aliases := append([]string{}, concepts[concept]...)
		aliases = append(aliases, LabelFor(concept))
		for _, raw := range aliases {
			normalized := textnorm.Normalize(raw)
			if normalized == "" {
				continue
			}
			put(normalized, concept)

			tokens := textnorm.Tokens(normalized)
			if len(tokens) > 0 {
				singulars := make([]string, len(tokens))
				for i, token := range tokens {
					singulars[i] = textnorm.Singularize(token)
				}
				put(strings.Join(singulars, " "), concept)
			}
			if len(tokens) == 1 {
				put(textnorm.Singularize(tokens[0]), concept)
			}
		}
	}
	return lookup
}

// ConceptForPhrase resolves a surface phrase to a concept ID via the
// alias table. The phrase is normalized before lookup.
func (t *Taxonomy) ConceptForPhrase(phrase string) (string, bool) {
	concept, ok := t.aliasToConcept[textnorm.Normalize(phrase)]
	return concept, ok
}

// LabelFor derives the human-readable label of a concept ID: the last
// dotted segment with underscores turned into spaces.
func LabelFor(conceptID string) string {
	parts := strings.Split(conceptID, ".")
	return strings.ReplaceAll(parts[len(parts)-1], "_", " ")
}

// HasConcept reports whether the concept appears in the alias table.
func (t *Taxonomy) HasConcept(conceptID string) bool {
	_, ok := t.conceptAliases[conceptID]
	return ok
}

// Relations returns every curated relation edge.
func (t *Taxonomy) Relations() []common.RelationEdge {
	return t.relations
}

// Outgoing returns the edges whose source is the given concept.
func (t *Taxonomy) Outgoing(conceptID string) []common.RelationEdge {
	return t.adjacency[conceptID]
}

// Incoming returns the edges whose target is the given concept.
func (t *Taxonomy) Incoming(conceptID string) []common.RelationEdge {
	return t.reverse[conceptID]
}

// QuerySliceKeys expands concept IDs into the slice keys a search for
// those concepts should consult.
func (t *Taxonomy) QuerySliceKeys(conceptIDs []string) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, concept := range conceptIDs {
		parts := strings.Split(concept, ".")
		if len(parts) < 2 {
			continue
		}
		if parts[0] == "biz" && len(parts) >= 3 && parts[1] == "type" {
			keys["business_type"] = struct{}{}
		}
		keys[parts[0]] = struct{}{}
		keys[parts[0]+"."+parts[1]] = struct{}{}
	}
	return keys
}
