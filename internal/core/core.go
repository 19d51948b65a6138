// Package core defines the domain entities shared across the SmartRouter
// pipeline: batches, concept candidates, distilled concepts, embeddings,
// folders, centroids, placements, and review schedules.
package core

import "time"

// Batch is an immutable group of raw snippets captured together.
type Batch struct {
	BatchID   string      `json:"batch_id"`
	Window    string      `json:"window"`
	Topic     string      `json:"topic"`
	Entries   []BatchItem `json:"entries"`
	CreatedAt time.Time   `json:"created_at"`
}

// BatchItem is one raw text entry within a Batch.
type BatchItem struct {
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Source identifies where a ConceptCandidate's raw text originated.
type Source string

// ConceptCandidate is a validated, normalized snippet with a deterministic id.
// It is created once per (BatchID, Index, NormalizedText) and never mutated.
type ConceptCandidate struct {
	CandidateID    string    `json:"candidate_id"`
	BatchID        string    `json:"batch_id"`
	Index          int       `json:"index"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	ContentHash    string    `json:"content_hash"`
	Source         Source    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
	TitleHint      string    `json:"title_hint,omitempty"`
	KeyTerms       []string  `json:"key_terms,omitempty"`
	QualityScore   float64   `json:"quality_score"`
}

// Classification is the Distiller's educational-content verdict.
type Classification string

const (
	ClassificationStudy    Classification = "STUDY"
	ClassificationNotStudy Classification = "NOT_STUDY"
)

// DistilledConcept is the Distiller's reduction of a candidate to a title
// and summary. ConceptID equals the originating CandidateID.
type DistilledConcept struct {
	ConceptID      string         `json:"concept_id"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary"`
	ContentHash    string         `json:"content_hash"`
	DistilledAt    time.Time      `json:"distilled_at"`
	Cached         bool           `json:"cached"`
	Classification Classification `json:"classification"`
}

// VectorEmbeddings holds the two unit-norm vectors produced for a concept.
type VectorEmbeddings struct {
	TitleVector   []float64 `json:"title_vector"`
	ContextVector []float64 `json:"context_vector"`
	Dims          int       `json:"dims"`
	ContentHash   string    `json:"content_hash"`
	Model         string    `json:"model"`
	EmbeddedAt    time.Time `json:"embedded_at"`
}

// Folder is a node in the topical hierarchy.
type Folder struct {
	FolderID  string    `json:"folder_id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// CentroidQuality summarizes how well a folder's centroid represents its
// members.
type CentroidQuality struct {
	Cohesion   float64 `json:"cohesion"`
	Separation float64 `json:"separation"`
	Stability  float64 `json:"stability"`
	Overall    float64 `json:"overall"`
}

// FolderCentroid is the mean (renormalized) of a folder's member context
// vectors, plus a bounded set of exemplar members.
type FolderCentroid struct {
	FolderID    string          `json:"folder_id"`
	Centroid    []float64       `json:"centroid"`
	Exemplars   [][]float64     `json:"exemplars"`
	MemberCount int             `json:"member_count"`
	LastUpdated time.Time       `json:"last_updated"`
	Quality     CentroidQuality `json:"quality"`
}

// ConceptPlacement records where a concept lives: exactly one primary
// folder, plus any number of disjoint cross-reference folders.
type ConceptPlacement struct {
	ConceptID             string             `json:"concept_id"`
	PrimaryFolderID       string             `json:"primary_folder_id"`
	ReferenceFolderIDs    []string           `json:"reference_folder_ids"`
	PlacementConfidences  map[string]float64 `json:"placement_confidences"`
}

// ReviewStatus is the spaced-repetition lifecycle state of a schedule.
type ReviewStatus string

const (
	StatusNew       ReviewStatus = "NEW"
	StatusLearning  ReviewStatus = "LEARNING"
	StatusReviewing ReviewStatus = "REVIEWING"
	StatusMature    ReviewStatus = "MATURE"
	StatusSuspended ReviewStatus = "SUSPENDED"
)

// ReviewQuality is the self-assessed recall quality for one review.
type ReviewQuality int

const (
	QualityForgot ReviewQuality = iota
	QualityHard
	QualityGood
	QualityEasy
)

// SM2Parameters holds the SM-2 algorithm's mutable state for one concept.
type SM2Parameters struct {
	EaseFactor   float64 `json:"ease_factor"`
	IntervalDays float64 `json:"interval_days"`
	Repetitions  int     `json:"repetitions"`
}

// ReviewEvent is one recorded answer to a review prompt.
type ReviewEvent struct {
	Quality      ReviewQuality `json:"quality"`
	ReviewedAt   time.Time     `json:"reviewed_at"`
	IntervalDays float64       `json:"interval_days"`
	EaseFactor   float64       `json:"ease_factor"`
}

// ReviewSchedule is the per-concept spaced-repetition state, persisted one
// file per concept.
type ReviewSchedule struct {
	ScheduleID          string        `json:"schedule_id"`
	ConceptID           string        `json:"concept_id"`
	Status              ReviewStatus  `json:"status"`
	Parameters          SM2Parameters `json:"parameters"`
	ConsecutiveCorrect  int           `json:"consecutive_correct"`
	ConsecutiveIncorrect int          `json:"consecutive_incorrect"`
	TotalReviews        int           `json:"total_reviews"`
	NextReviewAt        time.Time     `json:"next_review_at"`
	LastReviewAt        *time.Time    `json:"last_review_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	History             []ReviewEvent `json:"history"`
}
