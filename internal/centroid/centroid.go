// Package centroid implements the CentroidManager component (C5):
// per-folder centroid/exemplar lifecycle, quality scoring, incremental and
// full-recompute updates, and folder-context filtering for the router.
// Grounded on internal/clustering/clustering.go's centroid averaging and
// nearest-centroid search, and internal/quality's cohesion-style metrics,
// repurposed into the cohesion/separation/stability/overall quality tuple
// of spec.md §4.5.
package centroid

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"smartrouter/internal/config"
	"smartrouter/internal/core"
	"smartrouter/internal/embedder"
	"smartrouter/internal/router/keylock"
	"smartrouter/internal/routererr"
	"smartrouter/internal/vectorindex"
)

// MemberUpdate is one member context vector added to a folder.
type MemberUpdate struct {
	ConceptID string
	Vector    []float64
}

// UpdateRequest parameterizes UpdateFolderCentroid.
type UpdateRequest struct {
	FolderID         string
	NewConcepts      []MemberUpdate
	RemovedConceptIDs []string
	ForceFull        bool
}

// Manager implements the CentroidManager contract. It holds a bounded
// in-memory cache of centroids and member vectors; the VectorIndex is the
// source of truth (spec.md §3 Ownership).
type Manager struct {
	idx   vectorindex.VectorIndex
	cfg   config.Centroid
	locks *keylock.Registry

	memberVectors *memberVectorCache

	mu        sync.RWMutex
	centroids map[string]*core.FolderCentroid
}

// NewManager constructs a Manager over idx using cfg's tuning parameters.
func NewManager(idx vectorindex.VectorIndex, cfg config.Centroid) *Manager {
	return &Manager{
		idx:           idx,
		cfg:           cfg,
		locks:         keylock.NewRegistry(),
		memberVectors: newMemberVectorCache(cfg.MemberCacheSize),
		centroids:     make(map[string]*core.FolderCentroid),
	}
}

// UpdateFolderCentroid implements spec.md §4.5's updateFolderCentroid:
// incremental update when the change set is small, otherwise a full
// recompute from cached member vectors, followed by exemplar selection
// and quality scoring. Updates to the same folderId are serialized.
func (m *Manager) UpdateFolderCentroid(ctx context.Context, req UpdateRequest) (*core.FolderCentroid, error) {
	var result *core.FolderCentroid
	var updateErr error

	m.locks.With(req.FolderID, func() {
		result, updateErr = m.updateLocked(ctx, req)
	})
	return result, updateErr
}

func (m *Manager) updateLocked(ctx context.Context, req UpdateRequest) (*core.FolderCentroid, error) {
	existing, err := m.idx.GetFolderVectorData(ctx, req.FolderID)
	if err != nil {
		return nil, routererr.Stage("centroid.update", err)
	}

	var centroidVec []float64
	memberCount := 0
	if existing != nil {
		centroidVec = append([]float64{}, existing.Centroid...)
		memberCount = existing.MemberCount
	}

	for _, nc := range req.NewConcepts {
		m.memberVectors.put(req.FolderID, nc.ConceptID, nc.Vector)
	}
	for _, removedID := range req.RemovedConceptIDs {
		m.memberVectors.remove(req.FolderID, removedID)
	}

	changeSize := len(req.NewConcepts) + len(req.RemovedConceptIDs)
	useIncremental := !req.ForceFull && changeSize < m.cfg.IncrementalUpdateThreshold && memberCount > 0

	var newCentroid []float64
	var newCount int

	if useIncremental {
		newCentroid, newCount = m.incrementalUpdate(centroidVec, memberCount, req)
	} else {
		newCentroid, newCount = m.fullRecompute(req.FolderID, memberCount, req)
	}

	if err := m.idx.SetFolderCentroid(ctx, req.FolderID, newCentroid, newCount); err != nil {
		return nil, routererr.Stage("centroid.update", err)
	}

	exemplars := m.selectExemplars(req.FolderID, newCentroid, m.cfg.DefaultExemplarCount)
	if err := m.idx.SetFolderExemplars(ctx, req.FolderID, exemplars); err != nil {
		return nil, routererr.Stage("centroid.update", err)
	}

	quality := m.calculateQuality(req.FolderID, newCentroid, newCount, time.Now())

	fc := &core.FolderCentroid{
		FolderID:    req.FolderID,
		Centroid:    newCentroid,
		Exemplars:   exemplars,
		MemberCount: newCount,
		LastUpdated: time.Now().UTC(),
		Quality:     quality,
	}

	m.mu.Lock()
	m.centroids[req.FolderID] = fc
	m.mu.Unlock()

	return fc, nil
}

// incrementalUpdate applies spec.md §4.5's incremental rule: scale the
// centroid back up to a sum, add new vectors, subtract cached vectors for
// removed concepts (approximate when uncached), divide, renormalize.
func (m *Manager) incrementalUpdate(centroid []float64, memberCount int, req UpdateRequest) ([]float64, int) {
	dims := len(centroid)
	if dims == 0 {
		for _, nc := range req.NewConcepts {
			dims = len(nc.Vector)
			break
		}
	}
	sum := make([]float64, dims)
	for i, v := range centroid {
		sum[i] = v * float64(memberCount)
	}

	count := memberCount
	for _, nc := range req.NewConcepts {
		for i, v := range nc.Vector {
			sum[i] += v
		}
		count++
	}
	for _, removedID := range req.RemovedConceptIDs {
		if vec, ok := m.memberVectors.remove(req.FolderID, removedID); ok {
			for i, v := range vec {
				sum[i] -= v
			}
		}
		// Uncached removals reduce only memberCount, per spec.md §4.5's
		// documented limitation.
		if count > 0 {
			count--
		}
	}

	if count <= 0 {
		return make([]float64, dims), 0
	}
	for i := range sum {
		sum[i] /= float64(count)
	}
	return embedder.Normalize(sum), count
}

// fullRecompute averages every cached member vector for folderID plus any
// newly-supplied vectors, then renormalizes. Because the source of truth
// (memberCount) may exceed cache coverage, this is exact only when the
// member-vector cache holds every member; folders whose members were
// evicted from the cache are averaged over the cached remainder.
func (m *Manager) fullRecompute(folderID string, memberCount int, req UpdateRequest) ([]float64, int) {
	members := m.memberVectors.membersWithIDs(folderID)
	for _, removedID := range req.RemovedConceptIDs {
		delete(members, removedID)
	}
	for _, nc := range req.NewConcepts {
		members[nc.ConceptID] = nc.Vector
	}

	if len(members) == 0 {
		return []float64{}, 0
	}

	dims := 0
	for _, v := range members {
		dims = len(v)
		break
	}
	sum := make([]float64, dims)
	for _, v := range members {
		for i, x := range v {
			sum[i] += x
		}
	}
	for i := range sum {
		sum[i] /= float64(len(members))
	}

	newCount := memberCount + len(req.NewConcepts) - len(req.RemovedConceptIDs)
	if newCount < len(members) {
		newCount = len(members)
	}
	return embedder.Normalize(sum), newCount
}

// GetFolderCentroid returns folderID's centroid, caching through to the
// VectorIndex on miss.
func (m *Manager) GetFolderCentroid(ctx context.Context, folderID string) (*core.FolderCentroid, error) {
	m.mu.RLock()
	if fc, ok := m.centroids[folderID]; ok {
		m.mu.RUnlock()
		return fc, nil
	}
	m.mu.RUnlock()

	data, err := m.idx.GetFolderVectorData(ctx, folderID)
	if err != nil {
		return nil, routererr.Stage("centroid.get", err)
	}
	if data == nil {
		return &core.FolderCentroid{
			FolderID: folderID,
			Quality:  core.CentroidQuality{Cohesion: 1, Separation: 1, Stability: 1, Overall: 1},
		}, nil
	}

	quality := m.calculateQuality(folderID, data.Centroid, data.MemberCount, data.LastUpdated)
	fc := &core.FolderCentroid{
		FolderID:    folderID,
		Centroid:    data.Centroid,
		Exemplars:   data.Exemplars,
		MemberCount: data.MemberCount,
		LastUpdated: data.LastUpdated,
		Quality:     quality,
	}

	m.mu.Lock()
	m.centroids[folderID] = fc
	m.mu.Unlock()

	return fc, nil
}

// calculateQuality implements spec.md §4.5's quality formula. Empty
// folders return a perfect-score "no-quality" tuple per the
// CentroidInsufficientData policy (spec.md §7, §8 boundary behavior).
func (m *Manager) calculateQuality(folderID string, centroid []float64, memberCount int, lastUpdated time.Time) core.CentroidQuality {
	if memberCount <= 0 || len(centroid) == 0 {
		return core.CentroidQuality{Cohesion: 1, Separation: 1, Stability: 1, Overall: 1}
	}

	members := m.memberVectors.vectors(folderID)
	cohesion := 1.0
	if len(members) > 0 {
		var sum float64
		for _, v := range members {
			sum += embedder.CosineSimilarity(v, centroid)
		}
		cohesion = sum / float64(len(members))
	}

	separation := math.Max(0.2, 1-cohesion)

	staleDays := float64(m.cfg.StaleThresholdDays)
	if staleDays <= 0 {
		staleDays = 30
	}
	daysSince := time.Since(lastUpdated).Hours() / 24
	stability := math.Max(0.5, 1-daysSince/staleDays)

	overall := 0.5*cohesion + 0.3*separation + 0.2*stability

	return core.CentroidQuality{
		Cohesion:   cohesion,
		Separation: separation,
		Stability:  stability,
		Overall:    overall,
	}
}

// BatchUpdateCentroids processes folderIDs in groups of cfg.BatchSize with
// at most cfg.ParallelUpdates concurrent updates in flight, grounded on
// internal/sources/manager.go's Aggregate bounded-concurrency pattern.
func (m *Manager) BatchUpdateCentroids(ctx context.Context, folderIDs []string, forceFull bool) (map[string]*core.FolderCentroid, error) {
	results := make(map[string]*core.FolderCentroid, len(folderIDs))
	var mu sync.Mutex
	var firstErr error

	batchSize := m.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(folderIDs)
		if batchSize == 0 {
			batchSize = 1
		}
	}
	parallel := m.cfg.ParallelUpdates
	if parallel <= 0 {
		parallel = 1
	}

	for start := 0; start < len(folderIDs); start += batchSize {
		end := start + batchSize
		if end > len(folderIDs) {
			end = len(folderIDs)
		}
		group := folderIDs[start:end]

		sem := make(chan struct{}, parallel)
		var wg sync.WaitGroup
		for _, folderID := range group {
			wg.Add(1)
			sem <- struct{}{}
			go func(fid string) {
				defer wg.Done()
				defer func() { <-sem }()

				fc, err := m.UpdateFolderCentroid(ctx, UpdateRequest{FolderID: fid, ForceFull: forceFull})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				results[fid] = fc
			}(folderID)
		}
		wg.Wait()
	}

	return results, firstErr
}

// FindSimilarFolders implements spec.md §4.5's findSimilarFolders: for
// each folder, combined = (1-w)*sim(v,centroid) + w*max_i sim(v,exemplar_i),
// returning matches >= threshold sorted desc then truncated to limit.
func (m *Manager) FindSimilarFolders(ctx context.Context, v []float64, limit int, threshold float64) ([]FolderScore, error) {
	folderIDs, err := m.idx.GetAllFolderIDs(ctx)
	if err != nil {
		return nil, routererr.Stage("centroid.find_similar", err)
	}

	w := m.cfg.ExemplarWeight
	var scored []FolderScore
	for _, fid := range folderIDs {
		fc, err := m.GetFolderCentroid(ctx, fid)
		if err != nil || fc == nil || len(fc.Centroid) == 0 {
			continue
		}
		centroidSim := embedder.CosineSimilarity(v, fc.Centroid)
		maxExemplarSim := 0.0
		for _, ex := range fc.Exemplars {
			if s := embedder.CosineSimilarity(v, ex); s > maxExemplarSim {
				maxExemplarSim = s
			}
		}
		combined := (1-w)*centroidSim + w*maxExemplarSim
		if combined >= threshold {
			scored = append(scored, FolderScore{
				FolderID:    fid,
				Score:       combined,
				CentroidSim: centroidSim,
				ExemplarSim: maxExemplarSim,
				MemberCount: fc.MemberCount,
			})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].MemberCount != scored[j].MemberCount {
			return scored[i].MemberCount > scored[j].MemberCount
		}
		return scored[i].FolderID < scored[j].FolderID
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// FolderScore is one result of FindSimilarFolders. Score is the combined
// (1-w)*centroid + w*exemplar similarity used for ranking; CentroidSim and
// ExemplarSim are the raw components for callers that weight them
// independently (the router applies its own score_weight_centroid /
// score_weight_exemplar to these rather than reusing Score twice).
type FolderScore struct {
	FolderID    string
	Score       float64
	CentroidSim float64
	ExemplarSim float64
	MemberCount int
}
