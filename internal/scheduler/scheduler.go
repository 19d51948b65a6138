// Package scheduler implements the ReviewScheduler component (C8): SM-2
// spaced-repetition state per concept, persisted one file per schedule via
// temp-file-plus-rename, with due-review queries and system health
// reporting. Grounded on other_examples' manifest temp-file+rename
// persistence pattern, adapted from a single shared manifest file to one
// file per schedule so concurrent per-concept writers never contend.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"smartrouter/internal/config"
	"smartrouter/internal/core"
	"smartrouter/internal/router/keylock"
	"smartrouter/internal/routererr"
)

// Scheduler owns ReviewSchedule persistence under a fixed directory, one
// JSON file per conceptId.
type Scheduler struct {
	dir   string
	cfg   config.SM2
	locks *keylock.Registry

	mu    sync.RWMutex
	cache map[string]*core.ReviewSchedule
}

// New constructs a Scheduler persisting schedules under dir.
func New(dir string, cfg config.SM2) (*Scheduler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, routererr.Wrap(routererr.KindScheduleIO, "create schedule dir", err)
	}
	return &Scheduler{
		dir:   dir,
		cfg:   cfg,
		locks: keylock.NewRegistry(),
		cache: make(map[string]*core.ReviewSchedule),
	}, nil
}

func (s *Scheduler) pathFor(conceptID string) string {
	return filepath.Join(s.dir, conceptID+".json")
}

// Schedule creates a NEW schedule for conceptId if one doesn't already
// exist. params overrides the configured initial ease factor when
// non-nil.
func (s *Scheduler) Schedule(conceptID string, params *core.SM2Parameters) (*core.ReviewSchedule, error) {
	var result *core.ReviewSchedule
	var err error

	s.locks.With(conceptID, func() {
		existing, loadErr := s.load(conceptID)
		if loadErr != nil {
			err = loadErr
			return
		}
		if existing != nil {
			result = existing
			return
		}

		ease := s.cfg.InitialEaseFactor
		if ease <= 0 {
			ease = 2.5
		}
		if params != nil {
			ease = params.EaseFactor
		}

		now := time.Now().UTC()
		sched := &core.ReviewSchedule{
			ScheduleID: conceptID,
			ConceptID:  conceptID,
			Status:     core.StatusNew,
			Parameters: core.SM2Parameters{
				EaseFactor:   ease,
				IntervalDays: 0,
				Repetitions:  0,
			},
			NextReviewAt: now,
			CreatedAt:    now,
			History:      []core.ReviewEvent{},
		}

		if err = s.save(sched); err != nil {
			return
		}
		result = sched
	})

	return result, err
}

// GetSchedule returns conceptId's schedule, or nil if none exists.
func (s *Scheduler) GetSchedule(conceptID string) (*core.ReviewSchedule, error) {
	return s.load(conceptID)
}

// ProcessReview applies the SM-2 update for response quality q to
// conceptId's schedule (spec.md §4.8).
func (s *Scheduler) ProcessReview(conceptID string, quality core.ReviewQuality) (*core.ReviewSchedule, error) {
	var result *core.ReviewSchedule
	var err error

	s.locks.With(conceptID, func() {
		sched, loadErr := s.load(conceptID)
		if loadErr != nil {
			err = loadErr
			return
		}
		if sched == nil {
			err = routererr.New(routererr.KindScheduleIO, fmt.Sprintf("no schedule for concept %q", conceptID))
			return
		}
		if sched.Status == core.StatusSuspended {
			err = routererr.New(routererr.KindScheduleIO, fmt.Sprintf("concept %q is suspended", conceptID))
			return
		}

		applySM2(sched, quality, s.cfg)

		if err = s.save(sched); err != nil {
			return
		}
		result = sched
	})

	return result, err
}

// applySM2 mutates sched in place per spec.md §4.8's exact update rule.
func applySM2(sched *core.ReviewSchedule, quality core.ReviewQuality, cfg config.SM2) {
	minEase := cfg.MinEaseFactor
	if minEase <= 0 {
		minEase = 1.3
	}
	matureDays := cfg.MatureIntervalDays
	if matureDays <= 0 {
		matureDays = 21
	}

	now := time.Now().UTC()
	previousInterval := sched.Parameters.IntervalDays

	if quality == core.QualityForgot {
		sched.Parameters.IntervalDays = 1
		sched.Parameters.Repetitions = 0
		sched.Parameters.EaseFactor = maxFloat(minEase, sched.Parameters.EaseFactor-0.2)
		sched.ConsecutiveIncorrect++
		sched.ConsecutiveCorrect = 0
		sched.Status = core.StatusLearning
	} else {
		q := float64(quality)
		delta := 0.1 - (3-q)*(0.08+(3-q)*0.02)
		sched.Parameters.EaseFactor = maxFloat(minEase, sched.Parameters.EaseFactor+delta)
		sched.Parameters.Repetitions++
		sched.ConsecutiveCorrect++
		sched.ConsecutiveIncorrect = 0

		switch sched.Parameters.Repetitions {
		case 1:
			sched.Parameters.IntervalDays = 1
		case 2:
			sched.Parameters.IntervalDays = 6
		default:
			sched.Parameters.IntervalDays = roundHalfAwayFromZero(previousInterval * sched.Parameters.EaseFactor)
		}

		switch sched.Status {
		case core.StatusNew:
			sched.Status = core.StatusLearning
		case core.StatusLearning:
			if sched.ConsecutiveCorrect >= 3 {
				sched.Status = core.StatusReviewing
			}
		}
		if sched.Parameters.IntervalDays >= matureDays {
			sched.Status = core.StatusMature
		}
	}

	sched.NextReviewAt = now.Add(time.Duration(sched.Parameters.IntervalDays * float64(24*time.Hour)))
	sched.TotalReviews++
	lastReview := now
	sched.LastReviewAt = &lastReview
	sched.History = append(sched.History, core.ReviewEvent{
		Quality:      quality,
		ReviewedAt:   now,
		IntervalDays: sched.Parameters.IntervalDays,
		EaseFactor:   sched.Parameters.EaseFactor,
	})
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func roundHalfAwayFromZero(x float64) float64 {
	if x >= 0 {
		return float64(int64(x + 0.5))
	}
	return float64(int64(x - 0.5))
}

// Suspend marks conceptId's schedule SUSPENDED, removing it from
// getDueReviews until Resume is called.
func (s *Scheduler) Suspend(conceptID string) error {
	return s.mutateStatus(conceptID, core.StatusSuspended)
}

// Resume returns a suspended schedule to NEW if it had no prior reviews,
// else LEARNING.
func (s *Scheduler) Resume(conceptID string) error {
	var err error
	s.locks.With(conceptID, func() {
		sched, loadErr := s.load(conceptID)
		if loadErr != nil {
			err = loadErr
			return
		}
		if sched == nil {
			err = routererr.New(routererr.KindScheduleIO, fmt.Sprintf("no schedule for concept %q", conceptID))
			return
		}
		if sched.TotalReviews == 0 {
			sched.Status = core.StatusNew
		} else {
			sched.Status = core.StatusLearning
		}
		err = s.save(sched)
	})
	return err
}

func (s *Scheduler) mutateStatus(conceptID string, status core.ReviewStatus) error {
	var err error
	s.locks.With(conceptID, func() {
		sched, loadErr := s.load(conceptID)
		if loadErr != nil {
			err = loadErr
			return
		}
		if sched == nil {
			err = routererr.New(routererr.KindScheduleIO, fmt.Sprintf("no schedule for concept %q", conceptID))
			return
		}
		sched.Status = status
		err = s.save(sched)
	})
	return err
}

// DueReviewsOptions parameterizes GetDueReviews.
type DueReviewsOptions struct {
	Limit                 int
	PrioritizeByDifficulty bool
}

// GetDueReviews returns schedules with nextReviewAt <= now and status !=
// SUSPENDED, sorted ascending by nextReviewAt (or, if
// prioritizeByDifficulty, by easeFactor ascending then nextReviewAt).
func (s *Scheduler) GetDueReviews(opts DueReviewsOptions) ([]*core.ReviewSchedule, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	due := make([]*core.ReviewSchedule, 0, len(all))
	for _, sched := range all {
		if sched.Status != core.StatusSuspended && !sched.NextReviewAt.After(now) {
			due = append(due, sched)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if opts.PrioritizeByDifficulty {
			if due[i].Parameters.EaseFactor != due[j].Parameters.EaseFactor {
				return due[i].Parameters.EaseFactor < due[j].Parameters.EaseFactor
			}
		}
		return due[i].NextReviewAt.Before(due[j].NextReviewAt)
	})

	if opts.Limit > 0 && len(due) > opts.Limit {
		due = due[:opts.Limit]
	}
	return due, nil
}

// BulkScheduleOptions parameterizes BulkSchedule.
type BulkScheduleOptions struct {
	BatchSize   int
	SkipExisting bool
}

// BulkSchedule creates schedules for conceptIds in groups, fsyncing each
// group's writes before moving to the next (spec.md §4.8).
func (s *Scheduler) BulkSchedule(ctx context.Context, conceptIDs []string, opts BulkScheduleOptions) error {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(conceptIDs)
		if batchSize == 0 {
			return nil
		}
	}

	for start := 0; start < len(conceptIDs); start += batchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + batchSize
		if end > len(conceptIDs) {
			end = len(conceptIDs)
		}
		group := conceptIDs[start:end]

		for _, id := range group {
			if opts.SkipExisting {
				existing, err := s.load(id)
				if err != nil {
					return err
				}
				if existing != nil {
					continue
				}
			}
			if _, err := s.Schedule(id, nil); err != nil {
				return err
			}
		}

		if err := s.fsyncDir(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) fsyncDir() error {
	f, err := os.Open(s.dir)
	if err != nil {
		return routererr.Wrap(routererr.KindScheduleIO, "open schedule dir for fsync", err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return routererr.Wrap(routererr.KindScheduleIO, "fsync schedule dir", err)
	}
	return nil
}

// CleanupOrphaned deletes every persisted schedule whose conceptId is not
// in validIDs.
func (s *Scheduler) CleanupOrphaned(validIDs map[string]bool) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, routererr.Wrap(routererr.KindScheduleIO, "read schedule dir", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		conceptID := trimJSONExt(entry.Name())
		if validIDs[conceptID] {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, routererr.Wrap(routererr.KindScheduleIO, "remove orphaned schedule", err)
		}
		s.mu.Lock()
		delete(s.cache, conceptID)
		s.mu.Unlock()
		removed++
	}
	return removed, nil
}

func trimJSONExt(name string) string {
	const ext = ".json"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return name
}

// load reads conceptId's schedule from cache or disk, returning nil if
// absent.
func (s *Scheduler) load(conceptID string) (*core.ReviewSchedule, error) {
	s.mu.RLock()
	if sched, ok := s.cache[conceptID]; ok {
		s.mu.RUnlock()
		cp := *sched
		return &cp, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.pathFor(conceptID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, routererr.Wrap(routererr.KindScheduleIO, "read schedule", err)
	}

	var sched core.ReviewSchedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, routererr.Wrap(routererr.KindScheduleIO, "parse schedule", err)
	}

	s.mu.Lock()
	s.cache[conceptID] = &sched
	s.mu.Unlock()

	return &sched, nil
}

// loadAll reads every persisted schedule from disk.
func (s *Scheduler) loadAll() ([]*core.ReviewSchedule, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, routererr.Wrap(routererr.KindScheduleIO, "read schedule dir", err)
	}

	out := make([]*core.ReviewSchedule, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		conceptID := trimJSONExt(entry.Name())
		sched, err := s.load(conceptID)
		if err != nil {
			return nil, err
		}
		if sched != nil {
			out = append(out, sched)
		}
	}
	return out, nil
}

// save writes sched atomically via temp-file-plus-rename.
func (s *Scheduler) save(sched *core.ReviewSchedule) error {
	data, err := json.MarshalIndent(sched, "", "  ")
	if err != nil {
		return routererr.Wrap(routererr.KindScheduleIO, "marshal schedule", err)
	}

	path := s.pathFor(sched.ConceptID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return routererr.Wrap(routererr.KindScheduleIO, "write schedule temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return routererr.Wrap(routererr.KindScheduleIO, "rename schedule temp file", err)
	}

	s.mu.Lock()
	cp := *sched
	s.cache[sched.ConceptID] = &cp
	s.mu.Unlock()

	return nil
}
