// Package router implements the SmartRouter component (C7): it orchestrates
// the Distiller, Embedder, VectorIndex, and CentroidManager collaborators
// into a single route(candidate) decision, and exposes routeBatch for
// bounded-concurrency batch processing plus unsorted-item clustering.
// Grounded on internal/sources/manager.go's Aggregate pipeline shape for
// the staged, cancellable, bounded-concurrency orchestration.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"smartrouter/internal/budget"
	"smartrouter/internal/centroid"
	"smartrouter/internal/config"
	"smartrouter/internal/core"
	"smartrouter/internal/distiller"
	"smartrouter/internal/embedder"
	"smartrouter/internal/router/keylock"
	"smartrouter/internal/routererr"
	"smartrouter/internal/scheduler"
	"smartrouter/internal/vectorindex"
)

// Action is one of the five terminal routing decisions.
type Action string

const (
	ActionRoute        Action = "route"
	ActionCreateFolder Action = "create_folder"
	ActionDuplicate    Action = "duplicate"
	ActionUnsorted     Action = "unsorted"
	ActionReview       Action = "review"
)

// NewFolder describes a folder proposed by CREATE_FOLDER.
type NewFolder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Explanation carries the human-readable rationale behind a decision.
type Explanation struct {
	PrimarySignal    string   `json:"primary_signal"`
	DecisionFactors  []string `json:"decision_factors"`
	AcademicDomain   string   `json:"academic_domain,omitempty"`
	SystemState      string   `json:"system_state"`
}

// RoutingDecision is the SmartRouter's sole output per spec.md §4.7/§6.
type RoutingDecision struct {
	Action        Action             `json:"action"`
	FolderID      string             `json:"folder_id,omitempty"`
	NewFolder     *NewFolder         `json:"new_folder,omitempty"`
	DuplicateID   string             `json:"duplicate_id,omitempty"`
	References    []string           `json:"references"`
	Confidence    float64            `json:"confidence"`
	Explanation   Explanation        `json:"explanation"`
	Timestamp     time.Time          `json:"timestamp"`
}

// SystemState classifies how aggressively the router creates folders.
type SystemState string

const (
	StateBootstrap SystemState = "bootstrap"
	StateGrowing   SystemState = "growing"
	StateMature    SystemState = "mature"
)

// Router wires together every collaborator the pipeline needs.
type Router struct {
	cfg       config.Router
	centroid  config.Centroid
	idx       vectorindex.VectorIndex
	centroids *centroid.Manager
	distill   distiller.Distiller
	embed     embedder.Embedder
	sched     *scheduler.Scheduler
	budget    *budget.Tracker
	locks     *keylock.Registry

	mu               sync.Mutex
	placements       map[string]*core.ConceptPlacement // conceptId -> placement, in-process view
	unsortedVectors  map[string][]float64              // conceptId -> contextVector, for batch clustering
}

// New constructs a Router from its collaborators and configuration.
func New(
	cfg config.Router,
	centroidCfg config.Centroid,
	idx vectorindex.VectorIndex,
	centroids *centroid.Manager,
	d distiller.Distiller,
	e embedder.Embedder,
	s *scheduler.Scheduler,
	b *budget.Tracker,
) *Router {
	return &Router{
		cfg:        cfg,
		centroid:   centroidCfg,
		idx:        idx,
		centroids:  centroids,
		distill:    d,
		embed:      e,
		sched:      s,
		budget:     b,
		locks:           keylock.NewRegistry(),
		placements:      make(map[string]*core.ConceptPlacement),
		unsortedVectors: make(map[string][]float64),
	}
}

// Route runs the full nine-stage pipeline for one candidate (spec.md
// §4.7). All writes for candidate.CandidateID are serialized.
func (r *Router) Route(ctx context.Context, candidate *core.ConceptCandidate) (*RoutingDecision, error) {
	var decision *RoutingDecision
	var err error

	r.locks.With(candidate.CandidateID, func() {
		decision, err = r.routeLocked(ctx, candidate)
	})
	return decision, err
}

func (r *Router) routeLocked(ctx context.Context, candidate *core.ConceptCandidate) (*RoutingDecision, error) {
	state := r.systemState(ctx)

	// Stage: budget check before any upstream call (§5 backpressure).
	estimate := budget.EstimateTokenCount(candidate.NormalizedText)
	if r.budget != nil {
		if err := r.budget.Reserve(estimate); err != nil {
			return r.unsortedDecision("budget-exceeded", state), nil
		}
	}

	// Stage 2: distill.
	distilled, err := r.distill.Distill(ctx, candidate.NormalizedText, candidate.ContentHash)
	if err != nil {
		return nil, routererr.Stage("distill", err)
	}
	distilled.ConceptID = candidate.CandidateID

	if distilled.Classification == core.ClassificationNotStudy {
		return r.unsortedDecision("non-study", state), nil
	}

	if ctx.Err() != nil {
		return nil, routererr.Stage("distill", ctx.Err())
	}

	// Stage 3: embed.
	embeddings, err := r.embed.Embed(ctx, distilled)
	if err != nil {
		return nil, routererr.Stage("embed", err)
	}

	if ctx.Err() != nil {
		return nil, routererr.Stage("embed", ctx.Err())
	}

	// Stage 4: duplicate check.
	if dup, err := r.duplicateCheck(ctx, candidate, embeddings); err != nil {
		return nil, routererr.Stage("duplicate_check", err)
	} else if dup != nil {
		return dup, nil
	}

	if ctx.Err() != nil {
		return nil, routererr.Stage("duplicate_check", ctx.Err())
	}

	// Stage 5: folder-context filter.
	entries, err := r.centroids.FilterFolderContext(ctx, embeddings.ContextVector, r.contextTokenBudget(), string(state), centroid.ContextParams{
		MaxContextFolders:      r.cfg.MaxContextFolders,
		TokenEstimatePerFolder: r.cfg.TokenEstimatePerFolder,
	})
	if err != nil {
		// ContextFiltering degrades to an empty context; router proceeds
		// with duplicate-only decisions (spec.md §7).
		entries = nil
	}

	// Stage 6: score folders.
	scores := r.scoreFolders(embeddings.ContextVector, entries)

	if ctx.Err() != nil {
		return nil, routererr.Stage("score_folders", ctx.Err())
	}

	// Stage 7: decide.
	decision := r.decide(candidate, distilled, embeddings, scores, state)

	// Stage 8: commit.
	if err := r.commit(ctx, candidate, embeddings, decision); err != nil {
		return nil, routererr.Stage("commit", err)
	}

	// Stage 9: schedule.
	if decision.Action != ActionDuplicate && r.sched != nil {
		if _, err := r.sched.Schedule(candidate.CandidateID, nil); err != nil {
			return nil, routererr.Stage("schedule", err)
		}
	}

	return decision, nil
}

func (r *Router) unsortedDecision(reason string, state SystemState) *RoutingDecision {
	return &RoutingDecision{
		Action:     ActionUnsorted,
		References: []string{},
		Confidence: 0,
		Explanation: Explanation{
			PrimarySignal:   reason,
			DecisionFactors: []string{reason},
			SystemState:     string(state),
		},
		Timestamp: time.Now().UTC(),
	}
}

// duplicateCheck implements stage 4: one searchByTitle at dupHigh (limit 1)
// decides, and the returned hit is a duplicate when its contentHash matches
// or its similarity reaches dupHigh. There is no lookup by content hash, so
// an entry with an equal contentHash is found only through that search.
func (r *Router) duplicateCheck(ctx context.Context, candidate *core.ConceptCandidate, embeddings *core.VectorEmbeddings) (*RoutingDecision, error) {
	hits, err := r.idx.SearchByTitle(ctx, vectorindex.SearchQuery{
		Vector:    embeddings.TitleVector,
		Threshold: r.cfg.DupHighThreshold,
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	best := hits[0]
	isDuplicate := best.Payload.ContentHash == candidate.ContentHash || best.Similarity >= r.cfg.DupHighThreshold
	if !isDuplicate {
		return nil, nil
	}

	return &RoutingDecision{
		Action:      ActionDuplicate,
		DuplicateID: best.ConceptID,
		References:  []string{},
		Confidence:  best.Similarity,
		Explanation: Explanation{
			PrimarySignal:   "duplicate",
			DecisionFactors: []string{fmt.Sprintf("title similarity %.4f >= %.4f", best.Similarity, r.cfg.DupHighThreshold)},
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// folderScore is the result of stage 6's scoring for one candidate folder.
type folderScore struct {
	FolderID    string
	Score       float64
	MemberCount int
}

// scoreFolders implements stage 6: score = alpha*sim(v,centroid) +
// beta*max_i sim(v,exemplar_i) + gamma*maxMemberSimilarity.
func (r *Router) scoreFolders(v []float64, entries []centroid.FolderContextEntry) []folderScore {
	alpha, beta, gamma := r.cfg.ScoreWeightCentroid, r.cfg.ScoreWeightExemplar, r.cfg.ScoreWeightMember

	scores := make([]folderScore, 0, len(entries))
	for _, e := range entries {
		maxMemberSim := 0.0
		for _, sample := range e.Samples {
			if s := embedder.CosineSimilarity(v, sample); s > maxMemberSim {
				maxMemberSim = s
			}
		}

		score := alpha*e.Score.CentroidSim + beta*e.Score.ExemplarSim + gamma*maxMemberSim
		scores = append(scores, folderScore{FolderID: e.FolderID, Score: score, MemberCount: e.Score.MemberCount})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].MemberCount != scores[j].MemberCount {
			return scores[i].MemberCount > scores[j].MemberCount
		}
		return scores[i].FolderID < scores[j].FolderID
	})
	return scores
}

// decide implements stage 7's threshold ladder.
func (r *Router) decide(candidate *core.ConceptCandidate, distilled *core.DistilledConcept, embeddings *core.VectorEmbeddings, scores []folderScore, state SystemState) *RoutingDecision {
	if len(scores) == 0 {
		return r.decideEmptyContext(candidate, distilled, state)
	}

	best := scores[0]

	if best.Score >= r.cfg.HighConfidenceThreshold {
		var refs []string
		for _, s := range scores[1:] {
			if s.Score >= r.cfg.ReferenceThreshold {
				refs = append(refs, s.FolderID)
			}
		}
		return &RoutingDecision{
			Action:     ActionRoute,
			FolderID:   best.FolderID,
			References: nonNil(refs),
			Confidence: best.Score,
			Explanation: Explanation{
				PrimarySignal:   "folder-similarity",
				DecisionFactors: []string{fmt.Sprintf("score %.4f >= high-confidence %.4f", best.Score, r.cfg.HighConfidenceThreshold)},
				SystemState:     string(state),
			},
			Timestamp: time.Now().UTC(),
		}
	}

	if best.Score >= r.cfg.LowConfidenceThreshold {
		return &RoutingDecision{
			Action:     ActionReview,
			FolderID:   best.FolderID,
			References: []string{},
			Confidence: best.Score,
			Explanation: Explanation{
				PrimarySignal:   "ambiguous-similarity",
				DecisionFactors: []string{fmt.Sprintf("score %.4f in review band", best.Score)},
				SystemState:     string(state),
			},
			Timestamp: time.Now().UTC(),
		}
	}

	return r.decideEmptyContext(candidate, distilled, state)
}

// decideEmptyContext handles both the "no candidate folders" case and the
// "best score below lowConfidence" case, which share the CREATE_FOLDER /
// UNSORTED branch of the decision ladder.
func (r *Router) decideEmptyContext(candidate *core.ConceptCandidate, distilled *core.DistilledConcept, state SystemState) *RoutingDecision {
	if r.cfg.EnableFolderCreation && state != StateMature {
		name := proposeFolderName(distilled, candidate)
		return &RoutingDecision{
			Action: ActionCreateFolder,
			NewFolder: &NewFolder{
				Name: name,
				Path: "/" + name,
			},
			References: []string{},
			Confidence: 1,
			Explanation: Explanation{
				PrimarySignal:   "no-similar-folder",
				DecisionFactors: []string{"score below low-confidence threshold", "folder creation enabled"},
				SystemState:     string(state),
			},
			Timestamp: time.Now().UTC(),
		}
	}

	return &RoutingDecision{
		Action:     ActionUnsorted,
		References: []string{},
		Confidence: 0,
		Explanation: Explanation{
			PrimarySignal:   "no-similar-folder",
			DecisionFactors: []string{"score below low-confidence threshold", "folder creation disabled or system mature"},
			SystemState:     string(state),
		},
		Timestamp: time.Now().UTC(),
	}
}

// proposeFolderName builds a folder name from the distilled title and any
// key terms on the candidate.
func proposeFolderName(distilled *core.DistilledConcept, candidate *core.ConceptCandidate) string {
	base := distilled.Title
	if len(candidate.KeyTerms) > 0 {
		base = base + " " + strings.Join(candidate.KeyTerms[:min(2, len(candidate.KeyTerms))], " ")
	}
	slug := strings.ToLower(strings.TrimSpace(base))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "folder"
	}
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return slug
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// commit implements stage 8: upsert on ROUTE/CREATE_FOLDER/first-seen
// UNSORTED, followed by a background centroid update. DUPLICATE never
// commits.
func (r *Router) commit(ctx context.Context, candidate *core.ConceptCandidate, embeddings *core.VectorEmbeddings, decision *RoutingDecision) error {
	if decision.Action == ActionDuplicate {
		return nil
	}

	placement := vectorindex.Placement{
		ContentHash: candidate.ContentHash,
		Model:       embeddings.Model,
		PlacementConfidences: map[string]float64{},
	}

	folderID := decision.FolderID
	switch decision.Action {
	case ActionRoute:
		placement.PrimaryFolderID = decision.FolderID
		placement.ReferenceFolderIDs = decision.References
		placement.PlacementConfidences[decision.FolderID] = decision.Confidence
	case ActionCreateFolder:
		folderID = decision.NewFolder.Path
		placement.PrimaryFolderID = folderID
		placement.PlacementConfidences[folderID] = decision.Confidence
		decision.FolderID = folderID
	case ActionReview, ActionUnsorted:
		// REVIEW is a deferred human/re-check decision and first-seen
		// UNSORTED has no confident folder yet; both still get an upsert
		// with no primary folder so they can be found and clustered later.
		folderID = ""
	}

	if err := r.idx.Upsert(ctx, candidate.CandidateID, vectorindex.Embeddings{
		TitleVector:   embeddings.TitleVector,
		ContextVector: embeddings.ContextVector,
	}, placement); err != nil {
		return err
	}

	r.mu.Lock()
	r.placements[candidate.CandidateID] = &core.ConceptPlacement{
		ConceptID:            candidate.CandidateID,
		PrimaryFolderID:       placement.PrimaryFolderID,
		ReferenceFolderIDs:    placement.ReferenceFolderIDs,
		PlacementConfidences:  placement.PlacementConfidences,
	}
	if decision.Action == ActionUnsorted {
		r.unsortedVectors[candidate.CandidateID] = append([]float64{}, embeddings.ContextVector...)
	}
	r.mu.Unlock()

	if folderID != "" {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, _ = r.centroids.UpdateFolderCentroid(bgCtx, centroid.UpdateRequest{
				FolderID:    folderID,
				NewConcepts: []centroid.MemberUpdate{{ConceptID: candidate.CandidateID, Vector: embeddings.ContextVector}},
			})
		}()
	}

	return nil
}

// systemState classifies the router's current aggressiveness based on the
// number of known folders (spec.md §4.7 step 5).
func (r *Router) systemState(ctx context.Context) SystemState {
	folderIDs, err := r.idx.GetAllFolderIDs(ctx)
	if err != nil {
		return StateBootstrap
	}
	switch {
	case len(folderIDs) == 0:
		return StateBootstrap
	case len(folderIDs) < r.cfg.GrowingCap:
		return StateGrowing
	default:
		return StateMature
	}
}

func (r *Router) contextTokenBudget() int {
	if r.cfg.MaxContextFolders <= 0 {
		return 500
	}
	return r.cfg.MaxContextFolders * max(r.cfg.TokenEstimatePerFolder, 20)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
