package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smartrouter/internal/candidate"
	"smartrouter/internal/centroid"
	"smartrouter/internal/config"
	"smartrouter/internal/core"
	"smartrouter/internal/distiller"
	"smartrouter/internal/embedder"
	"smartrouter/internal/router"
	"smartrouter/internal/scheduler"
	"smartrouter/internal/vectorindex"
)

// memIndex is a minimal in-memory VectorIndex used only to exercise the
// HTTP layer end to end.
type memIndex struct {
	folders map[string]*vectorindex.FolderVectorData
}

func newMemIndex() *memIndex {
	return &memIndex{folders: make(map[string]*vectorindex.FolderVectorData)}
}

func (m *memIndex) Upsert(ctx context.Context, conceptID string, e vectorindex.Embeddings, p vectorindex.Placement) error {
	return nil
}
func (m *memIndex) SearchByTitle(ctx context.Context, q vectorindex.SearchQuery) ([]vectorindex.SearchHit, error) {
	return nil, nil
}
func (m *memIndex) SearchByContext(ctx context.Context, q vectorindex.SearchQuery) ([]vectorindex.SearchHit, error) {
	return nil, nil
}
func (m *memIndex) SearchByFolder(ctx context.Context, folderID string, includeReferences bool) ([]vectorindex.FolderMember, error) {
	return nil, nil
}
func (m *memIndex) GetAllFolderIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.folders))
	for id := range m.folders {
		ids = append(ids, id)
	}
	return ids, nil
}
func (m *memIndex) SetFolderCentroid(ctx context.Context, folderID string, vector []float64, memberCount int) error {
	fd := m.folders[folderID]
	if fd == nil {
		fd = &vectorindex.FolderVectorData{}
		m.folders[folderID] = fd
	}
	fd.Centroid = vector
	fd.MemberCount = memberCount
	return nil
}
func (m *memIndex) SetFolderExemplars(ctx context.Context, folderID string, vectors [][]float64) error {
	return nil
}
func (m *memIndex) GetFolderVectorData(ctx context.Context, folderID string) (*vectorindex.FolderVectorData, error) {
	return m.folders[folderID], nil
}
func (m *memIndex) Delete(ctx context.Context, conceptID string) error          { return nil }
func (m *memIndex) IsReady(ctx context.Context) (bool, error)                  { return true, nil }
func (m *memIndex) Initialize(ctx context.Context, dims int) error             { return nil }

// passthroughDistiller treats the normalized text as its own title/summary.
type passthroughDistiller struct{}

func (passthroughDistiller) Distill(ctx context.Context, normalizedText, contentHash string) (*core.DistilledConcept, error) {
	return &core.DistilledConcept{
		ConceptID:      contentHash,
		Title:          normalizedText,
		Summary:        normalizedText,
		ContentHash:    contentHash,
		DistilledAt:    time.Now().UTC(),
		Classification: core.ClassificationStudy,
	}, nil
}

// fixedEmbedder always returns the same unit vector, sufficient for
// exercising the HTTP plumbing without real embedding calls.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, concept *core.DistilledConcept) (*core.VectorEmbeddings, error) {
	v := []float64{1, 0, 0, 0}
	return &core.VectorEmbeddings{
		TitleVector:   v,
		ContextVector: v,
		Dims:          len(v),
		ContentHash:   concept.ContentHash,
		Model:         "fixed",
		EmbeddedAt:    time.Now().UTC(),
	}, nil
}

var _ distiller.Distiller = passthroughDistiller{}
var _ embedder.Embedder = fixedEmbedder{}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	idx := newMemIndex()
	centroidCfg := config.Centroid{
		DefaultExemplarCount:       3,
		ExemplarStrategy:           "medoid",
		ExemplarWeight:             0.3,
		IncrementalUpdateThreshold: 5,
		StaleThresholdDays:         30,
		BatchSize:                  10,
		ParallelUpdates:            4,
		MemberCacheSize:            1000,
	}
	mgr := centroid.NewManager(idx, centroidCfg)
	sched, err := scheduler.New(t.TempDir(), config.SM2{InitialEaseFactor: 2.5, MinEaseFactor: 1.3, MatureIntervalDays: 21})
	if err != nil {
		t.Fatalf("scheduler.New failed: %v", err)
	}
	routerCfg := config.Router{
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
	r := router.New(routerCfg, centroidCfg, idx, mgr, passthroughDistiller{}, fixedEmbedder{}, sched, nil)
	validator := candidate.NewValidator(config.Candidate{MinTextLength: 1, MaxTextLength: 10000, MinWordCount: 1}, config.Quality{
		UniquenessWeight:          0.4,
		LengthWeight:              0.3,
		AvgWordLengthNormalization: 6,
		ShortTextQualityScore:     0.3,
	})

	srvCfg := config.Server{Host: "127.0.0.1", Port: 0, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	return New(srvCfg, validator, r, sched, idx)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestRouteEndpointBootstrapsCreateFolder(t *testing.T) {
	s := newTestServer(t)

	payload, _ := json.Marshal(routeRequest{
		BatchID: "batch-1",
		Index:   0,
		RawText: "eigenvalues for square matrix a, av equals lambda v",
		Source:  "manual",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/route", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	decision, ok := body["decision"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected decision object in response, got %v", body)
	}
	if decision["action"] != string(router.ActionCreateFolder) {
		t.Fatalf("expected create_folder action, got %v", decision["action"])
	}
}

func TestRouteEndpointRejectsEmptyText(t *testing.T) {
	s := newTestServer(t)

	payload, _ := json.Marshal(routeRequest{BatchID: "batch-1", Index: 0, RawText: "", Source: "manual"})
	req := httptest.NewRequest(http.MethodPost, "/api/route", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", rec.Code)
	}
}

func TestDueReviewsEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/reviews/due", nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
