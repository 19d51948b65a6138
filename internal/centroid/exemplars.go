package centroid

import (
	"sort"

	"smartrouter/internal/embedder"
)

// selectExemplars picks up to k representative member vectors for folderID
// using cfg.ExemplarStrategy, per spec.md §4.5:
//   - medoid: members closest to the centroid (most typical)
//   - boundary: members farthest from the centroid (edge cases)
//   - diverse: greedy max-min selection for spread across the folder
//   - hybrid: 40% medoid, 30% boundary, the remainder diverse, deduplicated
//
// Folders with fewer members than k return every cached member vector.
func (m *Manager) selectExemplars(folderID string, centroid []float64, k int) [][]float64 {
	members := m.memberVectors.membersWithIDs(folderID)
	if k <= 0 || len(members) == 0 {
		return nil
	}
	if len(members) <= k {
		out := make([][]float64, 0, len(members))
		for _, v := range members {
			out = append(out, v)
		}
		return out
	}

	switch m.cfg.ExemplarStrategy {
	case "boundary":
		return selectBoundary(members, centroid, k)
	case "diverse":
		return selectDiverse(members, k)
	case "hybrid":
		return selectHybrid(members, centroid, k)
	default: // "medoid" and unrecognized values fall back to medoid
		return selectMedoid(members, centroid, k)
	}
}

type idVec struct {
	id  string
	vec []float64
}

func toIDVecs(members map[string][]float64) []idVec {
	out := make([]idVec, 0, len(members))
	for id, v := range members {
		out = append(out, idVec{id, v})
	}
	return out
}

func selectMedoid(members map[string][]float64, centroid []float64, k int) [][]float64 {
	items := toIDVecs(members)
	sortByCentroidSim(items, centroid, true)
	return takeVectors(items, k)
}

func selectBoundary(members map[string][]float64, centroid []float64, k int) [][]float64 {
	items := toIDVecs(members)
	sortByCentroidSim(items, centroid, false)
	return takeVectors(items, k)
}

// sortByCentroidSim orders items by similarity to centroid, descending if
// closest-first is true, else ascending (farthest first).
func sortByCentroidSim(items []idVec, centroid []float64, closestFirst bool) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			a := embedder.CosineSimilarity(items[j].vec, centroid)
			b := embedder.CosineSimilarity(items[j-1].vec, centroid)
			swap := a > b
			if !closestFirst {
				swap = a < b
			}
			if !swap {
				break
			}
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func takeVectors(items []idVec, k int) [][]float64 {
	if k > len(items) {
		k = len(items)
	}
	out := make([][]float64, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, items[i].vec)
	}
	return out
}

// selectDiverse greedily picks the member farthest (in min-distance terms)
// from the set already chosen, starting from an arbitrary first pick.
func selectDiverse(members map[string][]float64, k int) [][]float64 {
	items := toIDVecs(members)
	if len(items) == 0 {
		return nil
	}
	// toIDVecs iterates a map, so order is otherwise nondeterministic; sort
	// by id before picking the seed so repeated runs pick the same exemplars.
	sort.Slice(items, func(i, j int) bool { return items[i].id < items[j].id })

	chosen := []idVec{items[0]}
	remaining := items[1:]

	for len(chosen) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMinSim := 2.0 // similarity is bounded in [-1,1]; start above range
		for i, cand := range remaining {
			minSim := 1.0
			for _, c := range chosen {
				s := embedder.CosineSimilarity(cand.vec, c.vec)
				if s < minSim {
					minSim = s
				}
			}
			if minSim < bestMinSim {
				bestMinSim = minSim
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		chosen = append(chosen, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return takeVectors(chosen, len(chosen))
}

// selectHybrid blends medoid, boundary, and diverse exemplars, deduplicated
// by conceptId: 40% medoid, 30% boundary, the remainder diverse.
func selectHybrid(members map[string][]float64, centroid []float64, k int) [][]float64 {
	medoidCount := (k * 4) / 10
	boundaryCount := (k * 3) / 10
	if medoidCount < 1 {
		medoidCount = 1
	}
	if boundaryCount < 1 {
		boundaryCount = 1
	}

	items := toIDVecs(members)
	sortByCentroidSim(items, centroid, true)

	seen := make(map[string]bool, k)
	var out [][]float64

	for i := 0; i < len(items) && len(out) < medoidCount; i++ {
		if !seen[items[i].id] {
			seen[items[i].id] = true
			out = append(out, items[i].vec)
		}
	}

	boundaryItems := make([]idVec, len(items))
	copy(boundaryItems, items)
	sortByCentroidSim(boundaryItems, centroid, false)
	for i := 0; i < len(boundaryItems) && len(out) < medoidCount+boundaryCount; i++ {
		if !seen[boundaryItems[i].id] {
			seen[boundaryItems[i].id] = true
			out = append(out, boundaryItems[i].vec)
		}
	}

	if len(out) < k {
		remaining := make(map[string][]float64, len(members))
		for id, v := range members {
			if !seen[id] {
				remaining[id] = v
			}
		}
		diverse := selectDiverse(remaining, k-len(out))
		out = append(out, diverse...)
	}

	return out
}
