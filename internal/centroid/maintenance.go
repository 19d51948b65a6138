package centroid

import (
	"context"
	"sort"
	"time"

	"smartrouter/internal/embedder"
	"smartrouter/internal/routererr"
)

// FolderContextEntry is one folder surfaced by FilterFolderContext, with a
// handful of representative member samples for the router's scoring and
// decide stages.
type FolderContextEntry struct {
	FolderID string
	Score    FolderScore
	Samples  [][]float64
}

// ContextParams carries the router-owned tuning knobs FilterFolderContext
// needs (spec.md draws max_context_folders/token_estimate_per_folder from
// the router's config section, not the centroid manager's).
type ContextParams struct {
	MaxContextFolders      int
	TokenEstimatePerFolder int
}

// FilterFolderContext implements spec.md §4.5's folder-context filter: the
// candidate folder set shown to the router is capped by systemState
// (bootstrap/growing/mature) and by a token budget, with a handful of
// nearest member samples attached per folder for grounding.
func (m *Manager) FilterFolderContext(ctx context.Context, v []float64, maxTokens int, systemState string, params ContextParams) ([]FolderContextEntry, error) {
	targetCount := params.MaxContextFolders
	switch systemState {
	case "bootstrap":
		if targetCount > 5 || targetCount == 0 {
			targetCount = 5
		}
	case "growing":
		if targetCount > 10 || targetCount == 0 {
			targetCount = 10
		}
	}
	if targetCount <= 0 {
		targetCount = 10
	}

	scored, err := m.FindSimilarFolders(ctx, v, targetCount, 0)
	if err != nil {
		return nil, routererr.Stage("centroid.filter_context", err)
	}

	tokensPerFolder := params.TokenEstimatePerFolder
	if tokensPerFolder <= 0 {
		tokensPerFolder = 50
	}
	samplesPerFolder := tokensPerFolder / 20
	if samplesPerFolder < 1 {
		samplesPerFolder = 1
	}

	budget := maxTokens
	entries := make([]FolderContextEntry, 0, len(scored))
	for _, fs := range scored {
		if maxTokens > 0 {
			if budget < tokensPerFolder {
				break
			}
			budget -= tokensPerFolder
		}

		entries = append(entries, FolderContextEntry{
			FolderID: fs.FolderID,
			Score:    fs,
			Samples:  m.nearestSamples(fs.FolderID, v, samplesPerFolder),
		})
	}

	return entries, nil
}

// nearestSamples returns up to n member vectors for folderID closest to v.
func (m *Manager) nearestSamples(folderID string, v []float64, n int) [][]float64 {
	members := m.memberVectors.membersWithIDs(folderID)
	items := toIDVecs(members)
	sortByCentroidSim(items, v, true)
	return takeVectors(items, n)
}

// FindStaleCentroids returns folder ids whose centroid has not been updated
// in staleDays or whose overall quality has fallen below qualityThreshold.
func (m *Manager) FindStaleCentroids(ctx context.Context, staleDays int, qualityThreshold float64) ([]string, error) {
	folderIDs, err := m.idx.GetAllFolderIDs(ctx)
	if err != nil {
		return nil, routererr.Stage("centroid.find_stale", err)
	}

	cutoff := time.Duration(staleDays) * 24 * time.Hour
	var stale []string
	for _, fid := range folderIDs {
		fc, err := m.GetFolderCentroid(ctx, fid)
		if err != nil || fc == nil {
			continue
		}
		if fc.MemberCount == 0 {
			continue
		}
		age := time.Since(fc.LastUpdated)
		if age >= cutoff || fc.Quality.Overall < qualityThreshold {
			stale = append(stale, fid)
		}
	}

	sort.Strings(stale)
	return stale, nil
}

// RedundantPair is a pair of folders whose centroids are similar enough to
// be merge candidates.
type RedundantPair struct {
	FolderA    string
	FolderB    string
	Similarity float64
}

// DetectRedundantFolders returns every unordered pair of folders whose
// centroid similarity is at least threshold.
func (m *Manager) DetectRedundantFolders(ctx context.Context, threshold float64) ([]RedundantPair, error) {
	folderIDs, err := m.idx.GetAllFolderIDs(ctx)
	if err != nil {
		return nil, routererr.Stage("centroid.detect_redundant", err)
	}

	type withCentroid struct {
		id       string
		centroid []float64
	}
	var withCentroids []withCentroid
	for _, fid := range folderIDs {
		fc, err := m.GetFolderCentroid(ctx, fid)
		if err != nil || fc == nil || len(fc.Centroid) == 0 {
			continue
		}
		withCentroids = append(withCentroids, withCentroid{fid, fc.Centroid})
	}

	var pairs []RedundantPair
	for i := 0; i < len(withCentroids); i++ {
		for j := i + 1; j < len(withCentroids); j++ {
			sim := embedder.CosineSimilarity(withCentroids[i].centroid, withCentroids[j].centroid)
			if sim >= threshold {
				pairs = append(pairs, RedundantPair{
					FolderA:    withCentroids[i].id,
					FolderB:    withCentroids[j].id,
					Similarity: sim,
				})
			}
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Similarity > pairs[j].Similarity
	})
	return pairs, nil
}
