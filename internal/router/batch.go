package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"smartrouter/internal/core"
	"smartrouter/internal/embedder"
)

// BatchResult is routeBatch's output: every item's decision, the clusters
// discovered among UNSORTED items, and folder names proposed for clusters
// large enough to warrant one.
type BatchResult struct {
	Decisions        []*RoutingDecision
	Clusters         [][]string // candidateIds, one slice per cluster
	SuggestedFolders []SuggestedFolder
}

// SuggestedFolder is a folder name proposed for a cluster of unsorted
// items.
type SuggestedFolder struct {
	Name       string
	Members    []string
	ClusterTau float64
}

// RouteBatch processes candidates with bounded concurrency
// (cfg.MaxConcurrentRoutes in flight), then clusters the resulting
// UNSORTED items via single-link clustering over their context vectors.
func (r *Router) RouteBatch(ctx context.Context, candidates []*core.ConceptCandidate) (*BatchResult, error) {
	decisions := make([]*RoutingDecision, len(candidates))
	errs := make([]error, len(candidates))

	limit := r.cfg.MaxConcurrentRoutes
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, c := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, cand *core.ConceptCandidate) {
			defer wg.Done()
			defer func() { <-sem }()

			d, err := r.Route(ctx, cand)
			decisions[idx] = d
			errs[idx] = err
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return &BatchResult{Decisions: decisions}, err
		}
	}

	unsortedIDs := make([]string, 0)
	for i, d := range decisions {
		if d != nil && d.Action == ActionUnsorted {
			unsortedIDs = append(unsortedIDs, candidates[i].CandidateID)
		}
	}

	clusters := r.clusterUnsorted(unsortedIDs)

	var suggestions []SuggestedFolder
	for _, cluster := range clusters {
		if len(cluster) >= r.cfg.MinClusterSize {
			suggestions = append(suggestions, SuggestedFolder{
				Name:       fmt.Sprintf("cluster-%s", cluster[0]),
				Members:    cluster,
				ClusterTau: r.cfg.ClusterTau,
			})
		}
	}

	return &BatchResult{
		Decisions:        decisions,
		Clusters:         clusters,
		SuggestedFolders: suggestions,
	}, nil
}

// clusterUnsorted runs single-link clustering over the context vectors of
// unsorted concept ids (cached at commit time, since the router holds no
// other vector state) at threshold cfg.ClusterTau.
func (r *Router) clusterUnsorted(conceptIDs []string) [][]string {
	if len(conceptIDs) == 0 {
		return nil
	}

	r.mu.Lock()
	vectors := make(map[string][]float64, len(conceptIDs))
	for _, id := range conceptIDs {
		if v, ok := r.unsortedVectors[id]; ok {
			vectors[id] = v
		}
	}
	r.mu.Unlock()

	parent := make(map[string]string, len(conceptIDs))
	for _, id := range conceptIDs {
		parent[id] = id
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < len(conceptIDs); i++ {
		for j := i + 1; j < len(conceptIDs); j++ {
			a, b := conceptIDs[i], conceptIDs[j]
			va, okA := vectors[a]
			vb, okB := vectors[b]
			if !okA || !okB {
				continue
			}
			if embedder.CosineSimilarity(va, vb) >= r.cfg.ClusterTau {
				union(a, b)
			}
		}
	}

	groups := make(map[string][]string)
	for _, id := range conceptIDs {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	clusters := make([][]string, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		clusters = append(clusters, members)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters
}
