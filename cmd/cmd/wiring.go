package cmd

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"smartrouter/internal/budget"
	"smartrouter/internal/cache"
	"smartrouter/internal/candidate"
	"smartrouter/internal/centroid"
	"smartrouter/internal/config"
	"smartrouter/internal/gemini"
	"smartrouter/internal/router"
	"smartrouter/internal/scheduler"
	"smartrouter/internal/vectorindex"
)

// pipeline bundles every collaborator a SmartRouter command needs, wired
// from one loaded Config. Grounded on cmd/handlers/serve.go's pattern of
// loading config once and constructing collaborators before building the
// command-specific entry point.
type pipeline struct {
	cfg       *config.Config
	db        *sql.DB
	idx       vectorindex.VectorIndex
	centroids *centroid.Manager
	validator *candidate.Validator
	router    *router.Router
	sched     *scheduler.Scheduler
}

func buildPipeline(cfgFilePath string) (*pipeline, error) {
	cfg, err := config.Load(cfgFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.IdleConnections)

	idx := vectorindex.NewPgVectorIndex(db, cfg.Embedding.Dimensions)
	if err := idx.Initialize(context.Background(), cfg.Embedding.Dimensions); err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	var contentCache *cache.Cache
	if cfg.Cache.Enabled {
		contentCache = cache.New(cfg.Cache.MaxSize, cfg.Cache.CleanupInterval)
	}

	budgetTracker := budget.NewTracker(cfg.Budget.DailyTokenBudget, cfg.Budget.DailyRequestLimit)

	geminiOpts := []gemini.Option{
		gemini.WithEmbeddingDimensions(int32(cfg.Embedding.Dimensions)),
	}
	if cfg.Gemini.MaxRetries > 0 {
		geminiOpts = append(geminiOpts, gemini.WithMaxRetries(cfg.Gemini.MaxRetries))
	}
	if contentCache != nil {
		geminiOpts = append(geminiOpts, gemini.WithCache(contentCache))
	}
	geminiClient, err := gemini.NewClient(cfg.Gemini.Model, cfg.Gemini.EmbeddingModel, geminiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	centroidMgr := centroid.NewManager(idx, cfg.Centroid)

	sched, err := scheduler.New(cfg.App.ScheduleDir, cfg.SM2)
	if err != nil {
		return nil, fmt.Errorf("failed to open scheduler: %w", err)
	}

	r := router.New(cfg.Router, cfg.Centroid, idx, centroidMgr, geminiClient, geminiClient, sched, budgetTracker)
	validator := candidate.NewValidator(cfg.Candidate, cfg.Quality)

	return &pipeline{
		cfg:       cfg,
		db:        db,
		idx:       idx,
		centroids: centroidMgr,
		validator: validator,
		router:    r,
		sched:     sched,
	}, nil
}

func (p *pipeline) Close() {
	if p.db != nil {
		_ = p.db.Close()
	}
}
