// Package vectorindex defines the VectorIndex contract (C4): three logical
// collections of equal dimension (title, context, centroids+exemplars)
// supporting upsert, threshold search with deterministic tie-breaking, and
// folder membership queries. Grounded on internal/vectorstore/vectorstore.go's
// interface shape; the concrete adapter in pgvector.go is grounded on
// internal/vectorstore/pgvector.go.
package vectorindex

import (
	"context"
	"time"
)

// Payload is stored alongside every title/context point (spec.md §6).
type Payload struct {
	ConceptID             string             `json:"concept_id"`
	OriginalID            string             `json:"original_id"`
	PrimaryFolder         string             `json:"primary_folder,omitempty"`
	ReferenceFolders      []string           `json:"reference_folders"`
	PlacementConfidences  map[string]float64 `json:"placement_confidences"`
	FolderID              string             `json:"folder_id,omitempty"`
	ContentHash           string             `json:"content_hash"`
	Model                 string             `json:"model"`
	EmbeddedAt            time.Time          `json:"embedded_at"`
}

// SearchQuery parameterizes a threshold similarity search.
type SearchQuery struct {
	Vector    []float64
	Threshold float64
	Limit     int
}

// SearchHit is one similarity search result, sorted per the tie-break rule
// of spec.md §4.4: similarity desc, then the hit's primary folder member
// count desc, then conceptId asc.
type SearchHit struct {
	ConceptID   string
	Similarity  float64
	MemberCount int
	Payload     Payload
}

// FolderMember is one entry of a searchByFolder result.
type FolderMember struct {
	ConceptID  string
	Similarity float64
	IsPrimary  bool
}

// FolderVectorData is the stored centroid/exemplar state for one folder.
type FolderVectorData struct {
	Centroid    []float64
	Exemplars   [][]float64
	MemberCount int
	LastUpdated time.Time
}

// Embeddings is the minimal vector pair an upsert writes.
type Embeddings struct {
	TitleVector   []float64
	ContextVector []float64
}

// Placement is the minimal placement state an upsert writes alongside
// vectors.
type Placement struct {
	PrimaryFolderID      string
	ReferenceFolderIDs   []string
	PlacementConfidences map[string]float64
	ContentHash          string
	Model                string
}

// VectorIndex is the C4 contract. Implementations are stateless clients of
// an external vector store.
type VectorIndex interface {
	// Upsert writes both the title and context points for conceptId.
	// Atomicity is per-collection; callers treat the operation as
	// successful only after both succeed.
	Upsert(ctx context.Context, conceptID string, embeddings Embeddings, placement Placement) error

	SearchByTitle(ctx context.Context, q SearchQuery) ([]SearchHit, error)
	SearchByContext(ctx context.Context, q SearchQuery) ([]SearchHit, error)

	// SearchByFolder filters by primary_folder == folderId, and if
	// includeReferences also by folderId in reference_folders.
	SearchByFolder(ctx context.Context, folderID string, includeReferences bool) ([]FolderMember, error)

	// GetAllFolderIDs returns the union of every primary_folder and every
	// element of every reference_folders, plus any legacy folder_id.
	GetAllFolderIDs(ctx context.Context) ([]string, error)

	// SetFolderCentroid upserts folderID's centroid vector and its current
	// member count, the source of truth CentroidManager reads back via
	// GetFolderVectorData for incremental-vs-full-recompute decisions.
	SetFolderCentroid(ctx context.Context, folderID string, vector []float64, memberCount int) error
	// SetFolderExemplars replaces prior exemplars via delete-then-insert;
	// readers may observe a transient, possibly-empty exemplar set.
	SetFolderExemplars(ctx context.Context, folderID string, vectors [][]float64) error

	GetFolderVectorData(ctx context.Context, folderID string) (*FolderVectorData, error)

	Delete(ctx context.Context, conceptID string) error
	IsReady(ctx context.Context) (bool, error)
	Initialize(ctx context.Context, dims int) error
}
