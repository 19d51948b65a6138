package router

import (
	"context"
	"testing"
	"time"

	"smartrouter/internal/centroid"
	"smartrouter/internal/config"
	"smartrouter/internal/core"
	"smartrouter/internal/embedder"
	"smartrouter/internal/scheduler"
	"smartrouter/internal/vectorindex"
)

// fakeIndex is a minimal in-memory VectorIndex for router tests.
type fakeIndex struct {
	titlePoints   map[string]point
	contextPoints map[string]point
	folders       map[string]*vectorindex.FolderVectorData
}

type point struct {
	vector  []float64
	payload vectorindex.Payload
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		titlePoints:   make(map[string]point),
		contextPoints: make(map[string]point),
		folders:       make(map[string]*vectorindex.FolderVectorData),
	}
}

func (f *fakeIndex) Upsert(ctx context.Context, conceptID string, e vectorindex.Embeddings, p vectorindex.Placement) error {
	payload := vectorindex.Payload{
		ConceptID:            conceptID,
		PrimaryFolder:        p.PrimaryFolderID,
		ReferenceFolders:     p.ReferenceFolderIDs,
		PlacementConfidences: p.PlacementConfidences,
		ContentHash:          p.ContentHash,
		Model:                p.Model,
	}
	f.titlePoints[conceptID] = point{vector: e.TitleVector, payload: payload}
	f.contextPoints[conceptID] = point{vector: e.ContextVector, payload: payload}
	return nil
}

func (f *fakeIndex) search(points map[string]point, q vectorindex.SearchQuery) ([]vectorindex.SearchHit, error) {
	var hits []vectorindex.SearchHit
	for id, p := range points {
		sim := embedder.CosineSimilarity(q.Vector, p.vector)
		if sim >= q.Threshold {
			hits = append(hits, vectorindex.SearchHit{ConceptID: id, Similarity: sim, Payload: p.payload})
		}
	}
	// simple descending sort by similarity
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Similarity > hits[j-1].Similarity; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (f *fakeIndex) SearchByTitle(ctx context.Context, q vectorindex.SearchQuery) ([]vectorindex.SearchHit, error) {
	return f.search(f.titlePoints, q)
}
func (f *fakeIndex) SearchByContext(ctx context.Context, q vectorindex.SearchQuery) ([]vectorindex.SearchHit, error) {
	return f.search(f.contextPoints, q)
}
func (f *fakeIndex) SearchByFolder(ctx context.Context, folderID string, includeReferences bool) ([]vectorindex.FolderMember, error) {
	return nil, nil
}
func (f *fakeIndex) GetAllFolderIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.folders))
	for id := range f.folders {
		ids = append(ids, id)
	}
	return ids, nil
}
func (f *fakeIndex) SetFolderCentroid(ctx context.Context, folderID string, vector []float64, memberCount int) error {
	fd := f.folders[folderID]
	if fd == nil {
		fd = &vectorindex.FolderVectorData{}
		f.folders[folderID] = fd
	}
	fd.Centroid = vector
	fd.MemberCount = memberCount
	fd.LastUpdated = time.Now().UTC()
	return nil
}
func (f *fakeIndex) SetFolderExemplars(ctx context.Context, folderID string, vectors [][]float64) error {
	fd := f.folders[folderID]
	if fd == nil {
		fd = &vectorindex.FolderVectorData{}
		f.folders[folderID] = fd
	}
	fd.Exemplars = vectors
	return nil
}
func (f *fakeIndex) GetFolderVectorData(ctx context.Context, folderID string) (*vectorindex.FolderVectorData, error) {
	fd, ok := f.folders[folderID]
	if !ok {
		return nil, nil
	}
	cp := *fd
	return &cp, nil
}
func (f *fakeIndex) Delete(ctx context.Context, conceptID string) error { return nil }
func (f *fakeIndex) IsReady(ctx context.Context) (bool, error)         { return true, nil }
func (f *fakeIndex) Initialize(ctx context.Context, dims int) error    { return nil }

// fakeDistiller always classifies as STUDY unless the text matches a
// configured non-study marker.
type fakeDistiller struct {
	nonStudyMarker string
}

func (d *fakeDistiller) Distill(ctx context.Context, normalizedText, contentHash string) (*core.DistilledConcept, error) {
	classification := core.ClassificationStudy
	if d.nonStudyMarker != "" && contains(normalizedText, d.nonStudyMarker) {
		classification = core.ClassificationNotStudy
	}
	return &core.DistilledConcept{
		ConceptID:      contentHash,
		Title:          firstN(normalizedText, 40),
		Summary:        padTo50(normalizedText),
		ContentHash:    contentHash,
		DistilledAt:    time.Now().UTC(),
		Classification: classification,
	}, nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func padTo50(s string) string {
	for len(s) < 50 {
		s += " ."
	}
	return s
}

// fakeEmbedder returns the fixture vector registered for the concept's
// ConceptID, or the unit vector {1,0,0,0} when none is registered.
type fakeEmbedder struct {
	vectors map[string][]float64 // keyed by DistilledConcept.ConceptID
}

func (e *fakeEmbedder) Embed(ctx context.Context, concept *core.DistilledConcept) (*core.VectorEmbeddings, error) {
	v, ok := e.vectors[concept.ConceptID]
	if !ok {
		v = []float64{1, 0, 0, 0}
	}
	return &core.VectorEmbeddings{
		TitleVector:   append([]float64{}, v...),
		ContextVector: append([]float64{}, v...),
		Dims:          len(v),
		ContentHash:   concept.ContentHash,
		Model:         "fake",
		EmbeddedAt:    time.Now().UTC(),
	}, nil
}

func testRouterConfig() config.Router {
	return config.Router{
		HighConfidenceThreshold: 0.8,
		LowConfidenceThreshold:  0.4,
		DupHighThreshold:        0.85,
		ReferenceThreshold:      0.5,
		EnableFolderCreation:    true,
		GrowingCap:              20,
		MaxContextFolders:       10,
		TokenEstimatePerFolder:  50,
		ScoreWeightCentroid:     0.5,
		ScoreWeightExemplar:     0.3,
		ScoreWeightMember:       0.2,
		ClusterTau:              0.75,
		MinClusterSize:          3,
		MaxConcurrentRoutes:     4,
	}
}

func testCentroidConfig() config.Centroid {
	return config.Centroid{
		DefaultExemplarCount:       3,
		ExemplarStrategy:           "medoid",
		ExemplarWeight:             0.3,
		IncrementalUpdateThreshold: 5,
		StaleThresholdDays:         30,
		BatchSize:                  10,
		ParallelUpdates:            4,
		MemberCacheSize:            1000,
	}
}

func newTestRouter(t *testing.T, d *fakeDistiller, e *fakeEmbedder) (*Router, *fakeIndex) {
	t.Helper()
	idx := newFakeIndex()
	mgr := centroid.NewManager(idx, testCentroidConfig())
	sched, err := scheduler.New(t.TempDir(), config.SM2{InitialEaseFactor: 2.5, MinEaseFactor: 1.3, MatureIntervalDays: 21})
	if err != nil {
		t.Fatalf("scheduler.New failed: %v", err)
	}
	r := New(testRouterConfig(), testCentroidConfig(), idx, mgr, d, e, sched, nil)
	return r, idx
}

func TestNonStudyTextYieldsUnsorted(t *testing.T) {
	d := &fakeDistiller{nonStudyMarker: "electronics"}
	e := &fakeEmbedder{}
	r, _ := newTestRouter(t, d, e)

	cand := &core.ConceptCandidate{
		CandidateID:    "c1",
		ContentHash:    "h1",
		NormalizedText: "50% off all electronics this weekend",
	}

	decision, err := r.Route(context.Background(), cand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Action != ActionUnsorted {
		t.Fatalf("expected UNSORTED, got %s", decision.Action)
	}
	if decision.Explanation.PrimarySignal != "non-study" {
		t.Fatalf("expected non-study primary signal, got %s", decision.Explanation.PrimarySignal)
	}
}

func TestFirstCandidateBootstrapsCreateFolder(t *testing.T) {
	d := &fakeDistiller{}
	e := &fakeEmbedder{vectors: map[string][]float64{"h1": {1, 0, 0, 0}}}
	r, _ := newTestRouter(t, d, e)

	cand := &core.ConceptCandidate{
		CandidateID:    "c1",
		ContentHash:    "h1",
		NormalizedText: "eigenvalues for square matrix a av equals lambda v",
	}

	decision, err := r.Route(context.Background(), cand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Action != ActionCreateFolder {
		t.Fatalf("expected CREATE_FOLDER on empty index, got %s", decision.Action)
	}
}

func TestSecondIdenticalTextIsDuplicate(t *testing.T) {
	d := &fakeDistiller{}
	e := &fakeEmbedder{vectors: map[string][]float64{"h1": {1, 0, 0, 0}}}
	r, _ := newTestRouter(t, d, e)

	cand1 := &core.ConceptCandidate{CandidateID: "c1", ContentHash: "h1", NormalizedText: "eigenvalues for square matrix a av equals lambda v"}
	if _, err := r.Route(context.Background(), cand1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cand2 := &core.ConceptCandidate{CandidateID: "c2", ContentHash: "h1", NormalizedText: "eigenvalues for square matrix a av equals lambda v"}
	decision, err := r.Route(context.Background(), cand2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Action != ActionDuplicate {
		t.Fatalf("expected DUPLICATE for identical contentHash, got %s", decision.Action)
	}
	if decision.DuplicateID != "c1" {
		t.Fatalf("expected duplicateId c1, got %s", decision.DuplicateID)
	}
}
