// Package pgx implements store.Storage on Postgres with pgvector for
// footprint similarity.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/placegraph/backend/internal/util"
	"github.com/placegraph/backend/pkg/common"
	"github.com/placegraph/backend/pkg/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Conn is the subset of pgxpool.Pool the storage uses; it keeps the
// implementation testable against a transaction or a mock.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Storage struct {
	conn Conn
}

var _ store.Storage = (*Storage)(nil)

func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{conn: pool}
}

func NewStorageWithConn(conn Conn) *Storage {
	return &Storage{conn: conn}
}

func (s *Storage) ListBusinessIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.conn.Query(ctx, `SELECT id FROM businesses ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing businesses: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const businessColumns = `
	b.id, b.name, b.lat, b.lng,
	COALESCE(b.website, ''), COALESCE(b.types, '{}'),
	COALESCE(b.text_content, ''), b.is_chain, COALESCE(b.chain_name, ''),
	COALESCE(b.hours_json, ''), COALESCE(b.timezone, ''),
	COALESCE(b.business_model, 'null'::jsonb), b.last_updated`

func scanBusiness(row pgx.Row) (common.Business, error) {
	var business common.Business
	var model []byte
	err := row.Scan(
		&business.ID, &business.Name, &business.Lat, &business.Lng,
		&business.Website, &business.Types,
		&business.TextContent, &business.IsChain, &business.ChainName,
		&business.HoursJSON, &business.Timezone,
		&model, &business.LastUpdated,
	)
	if err != nil {
		return common.Business{}, err
	}
	if len(model) > 0 {
		if err := json.Unmarshal(model, &business.BusinessModel); err != nil {
			return common.Business{}, fmt.Errorf("decoding business model for %d: %w", business.ID, err)
		}
	}
	return business, nil
}

func (s *Storage) GetBusinessInputs(ctx context.Context, businessID int64) (common.BusinessInputs, error) {
	business, err := scanBusiness(s.conn.QueryRow(ctx,
		`SELECT `+businessColumns+` FROM businesses b WHERE b.id = $1`, businessID))
	if errors.Is(err, pgx.ErrNoRows) {
		return common.BusinessInputs{}, nil
	}
	if err != nil {
		return common.BusinessInputs{}, fmt.Errorf("loading business %d: %w", businessID, err)
	}
	inputs := common.BusinessInputs{Business: &business}

	menuRows, err := s.conn.Query(ctx, `
		SELECT id, business_id, COALESCE(item_name, ''), COALESCE(description, ''),
			COALESCE(source_url, ''), COALESCE(source_snippet, ''),
			COALESCE(extraction_confidence, 0), COALESCE(credibility_score, 0)
		FROM menu_items WHERE business_id = $1 ORDER BY id ASC`, businessID)
	if err != nil {
		return common.BusinessInputs{}, fmt.Errorf("loading menu items: %w", err)
	}
	defer menuRows.Close()
	for menuRows.Next() {
		var item common.MenuItem
		if err := menuRows.Scan(
			&item.ID, &item.BusinessID, &item.ItemName, &item.Description,
			&item.SourceURL, &item.SourceSnippet,
			&item.ExtractionConfidence, &item.CredibilityScore,
		); err != nil {
			return common.BusinessInputs{}, err
		}
		inputs.MenuItems = append(inputs.MenuItems, item)
	}
	if err := menuRows.Err(); err != nil {
		return common.BusinessInputs{}, err
	}

	packetRows, err := s.conn.Query(ctx, `
		SELECT id, business_id, COALESCE(claim_text, ''), COALESCE(sanitized_claim_text, ''),
			COALESCE(source_url, ''), COALESCE(source_snippet, ''),
			COALESCE(extraction_confidence, 0), COALESCE(credibility_score, 0)
		FROM evidence_packets WHERE business_id = $1 ORDER BY id ASC`, businessID)
	if err != nil {
		return common.BusinessInputs{}, fmt.Errorf("loading evidence packets: %w", err)
	}
	defer packetRows.Close()
	for packetRows.Next() {
		var packet common.EvidencePacket
		if err := packetRows.Scan(
			&packet.ID, &packet.BusinessID, &packet.ClaimText, &packet.SanitizedClaimText,
			&packet.SourceURL, &packet.SourceSnippet,
			&packet.ExtractionConfidence, &packet.CredibilityScore,
		); err != nil {
			return common.BusinessInputs{}, err
		}
		inputs.EvidencePackets = append(inputs.EvidencePackets, packet)
	}
	if err := packetRows.Err(); err != nil {
		return common.BusinessInputs{}, err
	}

	sourceRows, err := s.conn.Query(ctx, `
		SELECT id, business_id, COALESCE(source_url, ''), COALESCE(snippet, '')
		FROM business_sources WHERE business_id = $1 ORDER BY id ASC`, businessID)
	if err != nil {
		return common.BusinessInputs{}, fmt.Errorf("loading business sources: %w", err)
	}
	defer sourceRows.Close()
	for sourceRows.Next() {
		var source common.BusinessSource
		if err := sourceRows.Scan(&source.ID, &source.BusinessID, &source.SourceURL, &source.Snippet); err != nil {
			return common.BusinessInputs{}, err
		}
		inputs.Sources = append(inputs.Sources, source)
	}
	return inputs, sourceRows.Err()
}

func (s *Storage) ReplaceBusinessArtifacts(ctx context.Context, artifacts common.BusinessArtifacts) error {
	businessID := artifacts.Footprint.BusinessID

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting artifact transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	flags, err := json.Marshal(artifacts.Footprint.FeatureFlags)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO global_footprints (business_id, feature_vector, feature_flags, coverage_score, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id) DO UPDATE SET
			feature_vector = EXCLUDED.feature_vector,
			feature_flags = EXCLUDED.feature_flags,
			coverage_score = EXCLUDED.coverage_score,
			updated_at = EXCLUDED.updated_at`,
		businessID,
		pgvector.NewVector(artifacts.Footprint.FeatureVector),
		flags,
		artifacts.Footprint.CoverageScore,
		artifacts.Footprint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting footprint: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM vertical_slices WHERE business_id = $1`, businessID); err != nil {
		return err
	}
	for _, slice := range artifacts.Slices {
		weights, err := json.Marshal(slice.CategoryWeights)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO vertical_slices (business_id, slice_key, category_weights, slice_terms, updated_at)
			VALUES ($1, $2, $3, $4, $5)`,
			businessID, slice.SliceKey, weights, slice.SliceTerms, slice.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting slice %s: %w", slice.SliceKey, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM evidence_index_terms WHERE business_id = $1`, businessID); err != nil {
		return err
	}
	for _, term := range artifacts.Terms {
		ref, err := json.Marshal(term.Ref)
		if err != nil {
			return err
		}
		provenance, err := json.Marshal(term.Provenance)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO evidence_index_terms (business_id, term, claim_id, source_kind, evidence_ref, provenance, weight)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			businessID, util.SanitizePostgresText(term.Term), term.ClaimID,
			string(term.SourceKind), ref, provenance, term.Weight,
		)
		if err != nil {
			return fmt.Errorf("inserting index term %q: %w", term.Term, err)
		}
	}

	graph, err := json.Marshal(artifacts.Micrograph)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO business_micrographs (business_id, graph_json, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id) DO UPDATE SET
			graph_json = EXCLUDED.graph_json,
			updated_at = EXCLUDED.updated_at`,
		businessID, graph, artifacts.Micrograph.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting micrograph: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM verified_claims WHERE business_id = $1`, businessID); err != nil {
		return err
	}
	for _, claim := range artifacts.Verified {
		evidence, err := json.Marshal(claim.Evidence)
		if err != nil {
			return err
		}
		audit, err := json.Marshal(claim.AuditChain)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO verified_claims (business_id, claim_id, label, evidence, confidence, verified_at, audit_chain)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			businessID, claim.ClaimID, claim.Label, evidence, claim.Confidence, claim.Timestamp, audit,
		)
		if err != nil {
			return fmt.Errorf("inserting verified claim %s: %w", claim.ClaimID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Storage) DeleteBusinessArtifacts(ctx context.Context, businessID int64) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tables := []string{
		"global_footprints",
		"vertical_slices",
		"evidence_index_terms",
		"business_micrographs",
		"verified_claims",
	}
	for _, table := range tables {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE business_id = $1`, businessID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Storage) FootprintCandidates(ctx context.Context, queryVector []float32, limit int, includeChains bool) ([]store.Candidate, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+businessColumns+`,
			1 - (gf.feature_vector <=> $1) AS similarity
		FROM global_footprints gf
		JOIN businesses b ON b.id = gf.business_id
		WHERE gf.feature_vector IS NOT NULL
			AND ($2 OR b.is_chain = FALSE)
		ORDER BY gf.feature_vector <=> $1 ASC, b.id ASC
		LIMIT $3`,
		pgvector.NewVector(queryVector), includeChains, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying footprint candidates: %w", err)
	}
	defer rows.Close()

	var candidates []store.Candidate
	for rows.Next() {
		var business common.Business
		var model []byte
		var similarity float64
		err := rows.Scan(
			&business.ID, &business.Name, &business.Lat, &business.Lng,
			&business.Website, &business.Types,
			&business.TextContent, &business.IsChain, &business.ChainName,
			&business.HoursJSON, &business.Timezone,
			&model, &business.LastUpdated,
			&similarity,
		)
		if err != nil {
			return nil, err
		}
		if len(model) > 0 {
			if err := json.Unmarshal(model, &business.BusinessModel); err != nil {
				return nil, fmt.Errorf("decoding business model for %d: %w", business.ID, err)
			}
		}
		candidates = append(candidates, store.Candidate{Business: business, Similarity: similarity})
	}
	return candidates, rows.Err()
}

// batchReadChunkSize bounds the ID lists passed to ANY() on the
// search-side batch reads.
const batchReadChunkSize = 200

func (s *Storage) VerticalSlices(ctx context.Context, businessIDs []int64) (map[int64][]common.VerticalSlice, error) {
	out := make(map[int64][]common.VerticalSlice)
	for _, chunk := range store.ChunkIDs(businessIDs, batchReadChunkSize) {
		if err := s.verticalSlicesChunk(ctx, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Storage) verticalSlicesChunk(ctx context.Context, businessIDs []int64, out map[int64][]common.VerticalSlice) error {
	rows, err := s.conn.Query(ctx, `
		SELECT business_id, slice_key, category_weights, slice_terms, updated_at
		FROM vertical_slices WHERE business_id = ANY($1)
		ORDER BY business_id ASC, slice_key ASC`, businessIDs)
	if err != nil {
		return fmt.Errorf("querying vertical slices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slice common.VerticalSlice
		var weights []byte
		if err := rows.Scan(&slice.BusinessID, &slice.SliceKey, &weights, &slice.SliceTerms, &slice.UpdatedAt); err != nil {
			return err
		}
		if err := json.Unmarshal(weights, &slice.CategoryWeights); err != nil {
			return fmt.Errorf("decoding slice weights: %w", err)
		}
		out[slice.BusinessID] = append(out[slice.BusinessID], slice)
	}
	return rows.Err()
}

func (s *Storage) EvidenceTerms(ctx context.Context, businessIDs []int64, terms []string) (map[int64][]common.EvidenceIndexTerm, error) {
	out := make(map[int64][]common.EvidenceIndexTerm)
	terms = store.DedupeStrings(terms)
	if len(terms) == 0 {
		return out, nil
	}
	for _, chunk := range store.ChunkIDs(businessIDs, batchReadChunkSize) {
		if err := s.evidenceTermsChunk(ctx, chunk, terms, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Storage) evidenceTermsChunk(ctx context.Context, businessIDs []int64, terms []string, out map[int64][]common.EvidenceIndexTerm) error {
	rows, err := s.conn.Query(ctx, `
		SELECT business_id, term, claim_id, source_kind, evidence_ref, provenance, weight
		FROM evidence_index_terms
		WHERE business_id = ANY($1) AND term = ANY($2)
		ORDER BY business_id ASC, term ASC, claim_id ASC`, businessIDs, terms)
	if err != nil {
		return fmt.Errorf("querying evidence terms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var term common.EvidenceIndexTerm
		var kind string
		var ref, provenance []byte
		if err := rows.Scan(&term.BusinessID, &term.Term, &term.ClaimID, &kind, &ref, &provenance, &term.Weight); err != nil {
			return err
		}
		term.SourceKind = common.SourceKind(kind)
		if err := json.Unmarshal(ref, &term.Ref); err != nil {
			return fmt.Errorf("decoding evidence ref: %w", err)
		}
		if err := json.Unmarshal(provenance, &term.Provenance); err != nil {
			return fmt.Errorf("decoding term provenance: %w", err)
		}
		out[term.BusinessID] = append(out[term.BusinessID], term)
	}
	return rows.Err()
}

func (s *Storage) Micrographs(ctx context.Context, businessIDs []int64) (map[int64]common.Micrograph, error) {
	out := make(map[int64]common.Micrograph)
	for _, chunk := range store.ChunkIDs(businessIDs, batchReadChunkSize) {
		if err := s.micrographsChunk(ctx, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Storage) micrographsChunk(ctx context.Context, businessIDs []int64, out map[int64]common.Micrograph) error {
	rows, err := s.conn.Query(ctx, `
		SELECT business_id, graph_json
		FROM business_micrographs WHERE business_id = ANY($1)`, businessIDs)
	if err != nil {
		return fmt.Errorf("querying micrographs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var businessID int64
		var graph []byte
		if err := rows.Scan(&businessID, &graph); err != nil {
			return err
		}
		var micrograph common.Micrograph
		if err := json.Unmarshal(graph, &micrograph); err != nil {
			return fmt.Errorf("decoding micrograph for %d: %w", businessID, err)
		}
		out[businessID] = micrograph
	}
	return rows.Err()
}

const verifiedClaimColumns = `business_id, claim_id, label, evidence, confidence, verified_at, audit_chain`

func scanVerifiedClaims(rows pgx.Rows) ([]common.VerifiedClaim, error) {
	defer rows.Close()

	var claims []common.VerifiedClaim
	for rows.Next() {
		var claim common.VerifiedClaim
		var evidence, audit []byte
		if err := rows.Scan(
			&claim.BusinessID, &claim.ClaimID, &claim.Label,
			&evidence, &claim.Confidence, &claim.Timestamp, &audit,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(evidence, &claim.Evidence); err != nil {
			return nil, fmt.Errorf("decoding claim evidence: %w", err)
		}
		if err := json.Unmarshal(audit, &claim.AuditChain); err != nil {
			return nil, fmt.Errorf("decoding audit chain: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func (s *Storage) VerifiedClaims(ctx context.Context, businessIDs []int64) (map[int64][]common.VerifiedClaim, error) {
	out := make(map[int64][]common.VerifiedClaim)
	for _, chunk := range store.ChunkIDs(businessIDs, batchReadChunkSize) {
		rows, err := s.conn.Query(ctx, `
			SELECT `+verifiedClaimColumns+`
			FROM verified_claims WHERE business_id = ANY($1)
			ORDER BY business_id ASC, confidence DESC, claim_id ASC`, chunk)
		if err != nil {
			return nil, fmt.Errorf("querying verified claims: %w", err)
		}

		claims, err := scanVerifiedClaims(rows)
		if err != nil {
			return nil, err
		}
		for _, claim := range claims {
			out[claim.BusinessID] = append(out[claim.BusinessID], claim)
		}
	}
	return out, nil
}

func (s *Storage) VerifiedClaimsForBusiness(ctx context.Context, businessID int64) ([]common.VerifiedClaim, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+verifiedClaimColumns+`
		FROM verified_claims WHERE business_id = $1
		ORDER BY confidence DESC, claim_id ASC`, businessID)
	if err != nil {
		return nil, fmt.Errorf("querying verified claims for business %d: %w", businessID, err)
	}
	return scanVerifiedClaims(rows)
}
