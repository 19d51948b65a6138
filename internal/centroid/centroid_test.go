package centroid

import (
	"context"
	"testing"
	"time"

	"smartrouter/internal/config"
	"smartrouter/internal/vectorindex"
)

// fakeIndex is a minimal in-memory vectorindex.VectorIndex for exercising
// the Manager without a database.
type fakeIndex struct {
	folders map[string]*vectorindex.FolderVectorData
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{folders: make(map[string]*vectorindex.FolderVectorData)}
}

func (f *fakeIndex) Upsert(ctx context.Context, conceptID string, e vectorindex.Embeddings, p vectorindex.Placement) error {
	return nil
}
func (f *fakeIndex) SearchByTitle(ctx context.Context, q vectorindex.SearchQuery) ([]vectorindex.SearchHit, error) {
	return nil, nil
}
func (f *fakeIndex) SearchByContext(ctx context.Context, q vectorindex.SearchQuery) ([]vectorindex.SearchHit, error) {
	return nil, nil
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

func testCentroidConfig() config.Centroid {
	return config.Centroid{
		DefaultExemplarCount:       3,
		ExemplarStrategy:           "medoid",
		ExemplarWeight:             0.3,
		IncrementalUpdateThreshold: 5,
		StaleThresholdDays:         30,
		BatchSize:                  10,
		ParallelUpdates:            4,
		MinFolderSimilarity:        0.5,
		SimilarityMetric:           "cosine",
		MemberCacheSize:            1000,
	}
}

func unit(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	mag := sum
	for i := range v {
		v[i] = v[i] / sqrtApprox(mag)
	}
	return v
}

// sqrtApprox avoids importing math twice in the test for a single call site.
func sqrtApprox(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func TestEmptyFolderQualityIsPerfect(t *testing.T) {
	mgr := NewManager(newFakeIndex(), testCentroidConfig())
	fc, err := mgr.GetFolderCentroid(context.Background(), "folder-nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := fc.Quality
	if q.Cohesion != 1 || q.Separation != 1 || q.Stability != 1 || q.Overall != 1 {
		t.Fatalf("expected perfect quality tuple for empty folder, got %+v", q)
	}
}

func TestUpdateFolderCentroidFullThenIncremental(t *testing.T) {
	idx := newFakeIndex()
	mgr := NewManager(idx, testCentroidConfig())
	ctx := context.Background()

	v1 := unit([]float64{1, 0, 0, 0})
	v2 := unit([]float64{0, 1, 0, 0})

	fc, err := mgr.UpdateFolderCentroid(ctx, UpdateRequest{
		FolderID:    "folder-a",
		NewConcepts: []MemberUpdate{{ConceptID: "c1", Vector: v1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.MemberCount != 1 {
		t.Fatalf("expected member count 1, got %d", fc.MemberCount)
	}

	fc, err = mgr.UpdateFolderCentroid(ctx, UpdateRequest{
		FolderID:    "folder-a",
		NewConcepts: []MemberUpdate{{ConceptID: "c2", Vector: v2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.MemberCount != 2 {
		t.Fatalf("expected member count 2 after incremental add, got %d", fc.MemberCount)
	}

	var mag float64
	for _, x := range fc.Centroid {
		mag += x * x
	}
	if mag < 0.98 || mag > 1.02 {
		t.Fatalf("expected unit-norm centroid, got squared magnitude %f", mag)
	}
}

func TestUpdateFolderCentroidForceFull(t *testing.T) {
	idx := newFakeIndex()
	mgr := NewManager(idx, testCentroidConfig())
	ctx := context.Background()

	v1 := unit([]float64{1, 0, 0, 0})
	if _, err := mgr.UpdateFolderCentroid(ctx, UpdateRequest{
		FolderID:    "folder-b",
		NewConcepts: []MemberUpdate{{ConceptID: "c1", Vector: v1}},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v2 := unit([]float64{0, 0, 1, 0})
	fc, err := mgr.UpdateFolderCentroid(ctx, UpdateRequest{
		FolderID:    "folder-b",
		NewConcepts: []MemberUpdate{{ConceptID: "c2", Vector: v2}},
		ForceFull:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.MemberCount != 2 {
		t.Fatalf("expected member count 2 after forced full recompute, got %d", fc.MemberCount)
	}
}

func TestSelectExemplarsMedoidReturnsClosest(t *testing.T) {
	idx := newFakeIndex()
	cfg := testCentroidConfig()
	cfg.ExemplarStrategy = "medoid"
	cfg.DefaultExemplarCount = 1
	mgr := NewManager(idx, cfg)
	ctx := context.Background()

	centroid := unit([]float64{1, 0, 0, 0})
	close1 := unit([]float64{0.9, 0.1, 0, 0})
	far1 := unit([]float64{0, 0, 0, 1})

	if _, err := mgr.UpdateFolderCentroid(ctx, UpdateRequest{
		FolderID:    "folder-c",
		NewConcepts: []MemberUpdate{{ConceptID: "close", Vector: close1}, {ConceptID: "far", Vector: far1}},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exemplars := mgr.selectExemplars("folder-c", centroid, 1)
	if len(exemplars) != 1 {
		t.Fatalf("expected 1 exemplar, got %d", len(exemplars))
	}
	if exemplars[0][0] != close1[0] || exemplars[0][3] != close1[3] {
		t.Fatalf("expected medoid exemplar to be the member closest to the centroid, got %v", exemplars[0])
	}
}

func TestFindSimilarFoldersFiltersByThreshold(t *testing.T) {
	idx := newFakeIndex()
	mgr := NewManager(idx, testCentroidConfig())
	ctx := context.Background()

	v := unit([]float64{1, 0, 0, 0})
	if _, err := mgr.UpdateFolderCentroid(ctx, UpdateRequest{
		FolderID:    "folder-near",
		NewConcepts: []MemberUpdate{{ConceptID: "a", Vector: v}},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	far := unit([]float64{0, 1, 0, 0})
	if _, err := mgr.UpdateFolderCentroid(ctx, UpdateRequest{
		FolderID:    "folder-far",
		NewConcepts: []MemberUpdate{{ConceptID: "b", Vector: far}},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := mgr.FindSimilarFolders(ctx, v, 10, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].FolderID != "folder-near" {
		t.Fatalf("expected only folder-near above threshold, got %+v", results)
	}
}

func TestBatchUpdateCentroidsProcessesAllFolders(t *testing.T) {
	idx := newFakeIndex()
	mgr := NewManager(idx, testCentroidConfig())
	ctx := context.Background()

	for _, fid := range []string{"f1", "f2", "f3"} {
		if err := idx.SetFolderCentroid(ctx, fid, unit([]float64{1, 0, 0, 0}), 1); err != nil {
			t.Fatalf("setup error: %v", err)
		}
	}

	results, err := mgr.BatchUpdateCentroids(ctx, []string{"f1", "f2", "f3"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}
