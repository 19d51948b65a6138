package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"smartrouter/internal/routererr"
)

// PgVectorIndex implements VectorIndex over PostgreSQL with the pgvector
// extension. Grounded directly on internal/vectorstore/pgvector.go: same
// raw-SQL approach, same "<=>" cosine-distance operator, same vector
// literal formatting helper, generalized from a single embedding column on
// an articles table to the three-collection shape of spec.md §4.4.
type PgVectorIndex struct {
	db   *sql.DB
	dims int
}

// NewPgVectorIndex constructs a PgVectorIndex over an already-open *sql.DB.
func NewPgVectorIndex(db *sql.DB, dims int) *PgVectorIndex {
	return &PgVectorIndex{db: db, dims: dims}
}

// Initialize creates the three collections (as tables) with cosine
// distance indexes if they do not already exist.
func (p *PgVectorIndex) Initialize(ctx context.Context, dims int) error {
	p.dims = dims
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS concept_title_vectors (
			concept_id TEXT PRIMARY KEY,
			vector vector(%d) NOT NULL,
			primary_folder TEXT,
			reference_folders TEXT[] NOT NULL DEFAULT '{}',
			placement_confidences JSONB NOT NULL DEFAULT '{}',
			folder_id TEXT,
			content_hash TEXT NOT NULL,
			model TEXT,
			embedded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dims),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS concept_context_vectors (
			concept_id TEXT PRIMARY KEY,
			vector vector(%d) NOT NULL,
			primary_folder TEXT,
			reference_folders TEXT[] NOT NULL DEFAULT '{}',
			placement_confidences JSONB NOT NULL DEFAULT '{}',
			folder_id TEXT,
			content_hash TEXT NOT NULL,
			model TEXT,
			embedded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dims),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS folder_centroids (
			folder_id TEXT PRIMARY KEY,
			centroid vector(%d) NOT NULL,
			member_count INT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dims),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS folder_exemplars (
			id SERIAL PRIMARY KEY,
			folder_id TEXT NOT NULL,
			vector vector(%d) NOT NULL
		)`, dims),
		"CREATE INDEX IF NOT EXISTS idx_title_vectors_primary_folder ON concept_title_vectors (primary_folder)",
		"CREATE INDEX IF NOT EXISTS idx_context_vectors_primary_folder ON concept_context_vectors (primary_folder)",
		"CREATE INDEX IF NOT EXISTS idx_folder_exemplars_folder_id ON folder_exemplars (folder_id)",
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return routererr.Wrap(routererr.KindVectorBackend, "initialize: "+stmt, err)
		}
	}
	return nil
}

// IsReady reports whether the backend is reachable and the collections
// exist.
func (p *PgVectorIndex) IsReady(ctx context.Context) (bool, error) {
	if err := p.db.PingContext(ctx); err != nil {
		return false, routererr.Wrap(routererr.KindVectorConnection, "ping failed", err)
	}
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT FROM information_schema.tables WHERE table_name = 'concept_title_vectors'
	)`).Scan(&exists)
	if err != nil {
		return false, routererr.Wrap(routererr.KindVectorBackend, "ready check failed", err)
	}
	return exists, nil
}

func (p *PgVectorIndex) checkDims(v []float64) error {
	if len(v) != p.dims {
		return routererr.New(routererr.KindVectorDimension, fmt.Sprintf("vector length %d != configured dimension %d", len(v), p.dims))
	}
	return nil
}

// Upsert writes both the title and context points for conceptID. Per
// spec.md §4.4, atomicity is per-collection: the two writes happen in
// sequence and the operation is treated as successful only after both
// succeed.
func (p *PgVectorIndex) Upsert(ctx context.Context, conceptID string, emb Embeddings, placement Placement) error {
	if err := p.checkDims(emb.TitleVector); err != nil {
		return err
	}
	if err := p.checkDims(emb.ContextVector); err != nil {
		return err
	}

	confJSON, err := json.Marshal(placement.PlacementConfidences)
	if err != nil {
		return routererr.Wrap(routererr.KindVectorBackend, "marshal placement confidences", err)
	}

	if err := p.upsertCollection(ctx, "concept_title_vectors", conceptID, emb.TitleVector, placement, confJSON); err != nil {
		return err
	}
	if err := p.upsertCollection(ctx, "concept_context_vectors", conceptID, emb.ContextVector, placement, confJSON); err != nil {
		return err
	}
	return nil
}

func (p *PgVectorIndex) upsertCollection(ctx context.Context, table, conceptID string, vector []float64, placement Placement, confJSON []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (concept_id, vector, primary_folder, reference_folders, placement_confidences, folder_id, content_hash, model, embedded_at)
		VALUES ($1, $2::vector, $3, $4, $5, $3, $6, $7, NOW())
		ON CONFLICT (concept_id) DO UPDATE SET
			vector = excluded.vector,
			primary_folder = excluded.primary_folder,
			reference_folders = excluded.reference_folders,
			placement_confidences = excluded.placement_confidences,
			folder_id = excluded.folder_id,
			content_hash = excluded.content_hash,
			model = excluded.model,
			embedded_at = excluded.embedded_at
	`, table)

	_, err := p.db.ExecContext(ctx, query,
		conceptID,
		formatVector(vector),
		placement.PrimaryFolderID,
		pq.Array(placement.ReferenceFolderIDs),
		confJSON,
		placement.ContentHash,
		placement.Model,
	)
	if err != nil {
		return routererr.Wrap(routererr.KindVectorBackend, "upsert "+table, err)
	}
	return nil
}

// SearchByTitle searches the title collection.
func (p *PgVectorIndex) SearchByTitle(ctx context.Context, q SearchQuery) ([]SearchHit, error) {
	return p.search(ctx, "concept_title_vectors", q)
}

// SearchByContext searches the context collection.
func (p *PgVectorIndex) SearchByContext(ctx context.Context, q SearchQuery) ([]SearchHit, error) {
	return p.search(ctx, "concept_context_vectors", q)
}

func (p *PgVectorIndex) search(ctx context.Context, table string, q SearchQuery) ([]SearchHit, error) {
	if err := p.checkDims(q.Vector); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	vectorStr := formatVector(q.Vector)

	query := fmt.Sprintf(`
		SELECT
			t.concept_id,
			1 - (t.vector <=> $1::vector) AS similarity,
			t.primary_folder, t.reference_folders, t.placement_confidences,
			t.folder_id, t.content_hash, t.model, t.embedded_at,
			COALESCE(c.member_count, 0) AS member_count
		FROM %s t
		LEFT JOIN folder_centroids c ON c.folder_id = t.primary_folder
		WHERE 1 - (t.vector <=> $1::vector) >= $2
		ORDER BY similarity DESC, member_count DESC, t.concept_id ASC
		LIMIT $3
	`, table)

	rows, err := p.db.QueryContext(ctx, query, vectorStr, q.Threshold, limit)
	if err != nil {
		return nil, routererr.Wrap(routererr.KindVectorConnection, "search "+table, err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var refFolders pq.StringArray
		var confJSON []byte
		var embeddedAt time.Time
		var primaryFolder, folderID, contentHash, model sql.NullString

		if err := rows.Scan(&h.ConceptID, &h.Similarity, &primaryFolder, &refFolders, &confJSON, &folderID, &contentHash, &model, &embeddedAt, &h.MemberCount); err != nil {
			return nil, routererr.Wrap(routererr.KindVectorBackend, "scan search result", err)
		}
		confidences := map[string]float64{}
		_ = json.Unmarshal(confJSON, &confidences)

		h.Payload = Payload{
			ConceptID:            h.ConceptID,
			OriginalID:           h.ConceptID,
			PrimaryFolder:        primaryFolder.String,
			ReferenceFolders:     []string(refFolders),
			PlacementConfidences: confidences,
			FolderID:             folderID.String,
			ContentHash:          contentHash.String,
			Model:                model.String,
			EmbeddedAt:           embeddedAt,
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, routererr.Wrap(routererr.KindVectorBackend, "iterate search results", err)
	}

	// Re-assert the deterministic tie-break in Go in case the SQL planner
	// reorders ties differently across backends.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].MemberCount != hits[j].MemberCount {
			return hits[i].MemberCount > hits[j].MemberCount
		}
		return hits[i].ConceptID < hits[j].ConceptID
	})

	return hits, nil
}

// SearchByFolder filters the context collection by primary_folder and,
// if includeReferences, also by membership in reference_folders.
func (p *PgVectorIndex) SearchByFolder(ctx context.Context, folderID string, includeReferences bool) ([]FolderMember, error) {
	query := `
		SELECT concept_id, TRUE
		FROM concept_context_vectors
		WHERE primary_folder = $1
	`
	args := []interface{}{folderID}
	if includeReferences {
		query = `
			SELECT concept_id, primary_folder = $1
			FROM concept_context_vectors
			WHERE primary_folder = $1 OR $1 = ANY(reference_folders)
		`
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, routererr.Wrap(routererr.KindVectorConnection, "search by folder", err)
	}
	defer rows.Close()

	var members []FolderMember
	for rows.Next() {
		var m FolderMember
		if err := rows.Scan(&m.ConceptID, &m.IsPrimary); err != nil {
			return nil, routererr.Wrap(routererr.KindVectorBackend, "scan folder member", err)
		}
		m.Similarity = 1
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetAllFolderIDs returns the union of primary_folder, reference_folders,
// and legacy folder_id across both vector collections.
func (p *PgVectorIndex) GetAllFolderIDs(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, table := range []string{"concept_title_vectors", "concept_context_vectors"} {
		rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT primary_folder, reference_folders, folder_id FROM %s`, table))
		if err != nil {
			return nil, routererr.Wrap(routererr.KindVectorConnection, "get all folder ids", err)
		}
		for rows.Next() {
			var primaryFolder, folderID sql.NullString
			var refFolders pq.StringArray
			if err := rows.Scan(&primaryFolder, &refFolders, &folderID); err != nil {
				rows.Close()
				return nil, routererr.Wrap(routererr.KindVectorBackend, "scan folder ids", err)
			}
			if primaryFolder.Valid && primaryFolder.String != "" {
				seen[primaryFolder.String] = struct{}{}
			}
			if folderID.Valid && folderID.String != "" {
				seen[folderID.String] = struct{}{}
			}
			for _, f := range refFolders {
				if f != "" {
					seen[f] = struct{}{}
				}
			}
		}
		rows.Close()
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// SetFolderCentroid upserts the centroid vector and member count for
// folderID. member_count is persisted (not just inserted as 0) so restarts
// and other readers see the real count rather than always observing 0.
func (p *PgVectorIndex) SetFolderCentroid(ctx context.Context, folderID string, vector []float64, memberCount int) error {
	if err := p.checkDims(vector); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO folder_centroids (folder_id, centroid, member_count, last_updated)
		VALUES ($1, $2::vector, $3, NOW())
		ON CONFLICT (folder_id) DO UPDATE SET centroid = excluded.centroid, member_count = excluded.member_count, last_updated = NOW()
	`, folderID, formatVector(vector), memberCount)
	if err != nil {
		return routererr.Wrap(routererr.KindVectorBackend, "set folder centroid", err)
	}
	return nil
}

// SetFolderExemplars replaces folderID's exemplars via delete-then-insert
// within a single transaction. Readers racing this call may briefly see
// fewer exemplars than before.
func (p *PgVectorIndex) SetFolderExemplars(ctx context.Context, folderID string, vectors [][]float64) error {
	for _, v := range vectors {
		if err := p.checkDims(v); err != nil {
			return err
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return routererr.Wrap(routererr.KindVectorConnection, "begin exemplar transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM folder_exemplars WHERE folder_id = $1`, folderID); err != nil {
		return routererr.Wrap(routererr.KindVectorBackend, "delete prior exemplars", err)
	}
	for _, v := range vectors {
		if _, err := tx.ExecContext(ctx, `INSERT INTO folder_exemplars (folder_id, vector) VALUES ($1, $2::vector)`, folderID, formatVector(v)); err != nil {
			return routererr.Wrap(routererr.KindVectorBackend, "insert exemplar", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return routererr.Wrap(routererr.KindVectorBackend, "commit exemplar transaction", err)
	}
	return nil
}

// GetFolderVectorData returns the centroid, exemplars, member count, and
// last-updated time for folderID, or (nil, nil) if the folder has no
// centroid row yet.
func (p *PgVectorIndex) GetFolderVectorData(ctx context.Context, folderID string) (*FolderVectorData, error) {
	var centroidStr string
	var memberCount int
	var lastUpdated time.Time

	err := p.db.QueryRowContext(ctx, `
		SELECT centroid::text, member_count, last_updated FROM folder_centroids WHERE folder_id = $1
	`, folderID).Scan(&centroidStr, &memberCount, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, routererr.Wrap(routererr.KindVectorBackend, "get folder vector data", err)
	}

	centroid, err := parseVector(centroidStr)
	if err != nil {
		return nil, routererr.Wrap(routererr.KindVectorBackend, "parse centroid", err)
	}

	rows, err := p.db.QueryContext(ctx, `SELECT vector::text FROM folder_exemplars WHERE folder_id = $1`, folderID)
	if err != nil {
		return nil, routererr.Wrap(routererr.KindVectorBackend, "get exemplars", err)
	}
	defer rows.Close()

	var exemplars [][]float64
	for rows.Next() {
		var vecStr string
		if err := rows.Scan(&vecStr); err != nil {
			return nil, routererr.Wrap(routererr.KindVectorBackend, "scan exemplar", err)
		}
		v, err := parseVector(vecStr)
		if err != nil {
			return nil, routererr.Wrap(routererr.KindVectorBackend, "parse exemplar", err)
		}
		exemplars = append(exemplars, v)
	}

	return &FolderVectorData{
		Centroid:    centroid,
		Exemplars:   exemplars,
		MemberCount: memberCount,
		LastUpdated: lastUpdated,
	}, nil
}

// Delete removes conceptID from both vector collections.
func (p *PgVectorIndex) Delete(ctx context.Context, conceptID string) error {
	for _, table := range []string{"concept_title_vectors", "concept_context_vectors"} {
		if _, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE concept_id = $1`, table), conceptID); err != nil {
			return routererr.Wrap(routererr.KindVectorBackend, "delete from "+table, err)
		}
	}
	return nil
}

// formatVector renders a []float64 as a pgvector literal, grounded on
// internal/vectorstore/pgvector.go's formatVector helper.
func formatVector(v []float64) string {
	if len(v) == 0 {
		return "[]"
	}
	out := "["
	for i, val := range v {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%f", val)
	}
	out += "]"
	return out
}

// parseVector parses a pgvector text literal like "[0.1,0.2,0.3]".
func parseVector(s string) ([]float64, error) {
	s = trimBrackets(s)
	if s == "" {
		return []float64{}, nil
	}
	parts := splitComma(s)
	out := make([]float64, len(parts))
	for i, p := range parts {
		var f float64
		if _, err := fmt.Sscanf(p, "%f", &f); err != nil {
			return nil, fmt.Errorf("parse vector component %q: %w", p, err)
		}
		out[i] = f
	}
	return out, nil
}

func trimBrackets(s string) string {
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}

func splitComma(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
