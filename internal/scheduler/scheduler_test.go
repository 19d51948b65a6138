package scheduler

import (
	"os"
	"testing"

	"smartrouter/internal/config"
	"smartrouter/internal/core"
)

func testSM2Config() config.SM2 {
	return config.SM2{
		InitialEaseFactor:  2.5,
		MinEaseFactor:      1.3,
		MatureIntervalDays: 21,
	}
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, testSM2Config())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestScheduleCreatesNewSchedule(t *testing.T) {
	s := newTestScheduler(t)
	sched, err := s.Schedule("concept-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.Status != core.StatusNew {
		t.Fatalf("expected NEW status, got %s", sched.Status)
	}
	if sched.Parameters.EaseFactor != 2.5 {
		t.Fatalf("expected initial ease factor 2.5, got %f", sched.Parameters.EaseFactor)
	}
}

func TestScheduleIsIdempotent(t *testing.T) {
	s := newTestScheduler(t)
	first, err := s.Schedule("concept-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.ProcessReview("concept-1", core.QualityGood); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.Schedule("concept-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.TotalReviews != 1 {
		t.Fatalf("expected Schedule to be a no-op on an existing schedule, got TotalReviews=%d", second.TotalReviews)
	}
	_ = first
}

func TestFirstGoodReviewFromNewGoesToLearningWithOneDayInterval(t *testing.T) {
	s := newTestScheduler(t)
	if _, err := s.Schedule("concept-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched, err := s.ProcessReview("concept-1", core.QualityGood)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.Status != core.StatusLearning {
		t.Fatalf("expected LEARNING status, got %s", sched.Status)
	}
	if sched.Parameters.IntervalDays != 1 {
		t.Fatalf("expected interval 1, got %f", sched.Parameters.IntervalDays)
	}
}

func TestForgotResetsIntervalAndConsecutiveCorrect(t *testing.T) {
	s := newTestScheduler(t)
	if _, err := s.Schedule("concept-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.ProcessReview("concept-1", core.QualityGood); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched, err := s.ProcessReview("concept-1", core.QualityForgot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.Parameters.IntervalDays != 1 {
		t.Fatalf("expected interval reset to 1, got %f", sched.Parameters.IntervalDays)
	}
	if sched.ConsecutiveCorrect != 0 {
		t.Fatalf("expected consecutive correct reset to 0, got %d", sched.ConsecutiveCorrect)
	}
	if sched.Parameters.EaseFactor < 1.3 {
		t.Fatalf("expected ease factor floor at 1.3, got %f", sched.Parameters.EaseFactor)
	}
}

func TestSixGoodReviewsProgressTowardMature(t *testing.T) {
	s := newTestScheduler(t)
	if _, err := s.Schedule("concept-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sched *core.ReviewSchedule
	var err error
	for i := 0; i < 6; i++ {
		sched, err = s.ProcessReview("concept-1", core.QualityGood)
		if err != nil {
			t.Fatalf("unexpected error on review %d: %v", i, err)
		}
	}

	if sched.Parameters.Repetitions != 6 {
		t.Fatalf("expected 6 repetitions, got %d", sched.Parameters.Repetitions)
	}
	if sched.Parameters.IntervalDays < 6 {
		t.Fatalf("expected interval to have grown past 6 days, got %f", sched.Parameters.IntervalDays)
	}
}

func TestGetDueReviewsExcludesSuspended(t *testing.T) {
	s := newTestScheduler(t)
	if _, err := s.Schedule("concept-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Schedule("concept-2", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Suspend("concept-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	due, err := s.GetDueReviews(DueReviewsOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sched := range due {
		if sched.ConceptID == "concept-2" {
			t.Fatalf("expected suspended concept-2 to be excluded from due reviews")
		}
	}
}

func TestPersistAndReloadRoundTrips(t *testing.T) {
	s := newTestScheduler(t)
	sched, err := s.Schedule("concept-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := New(s.dir, testSM2Config())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := reloaded.GetSchedule("concept-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected reloaded schedule to exist")
	}
	if got.ScheduleID != sched.ScheduleID || got.Status != sched.Status {
		t.Fatalf("expected reloaded schedule to match: got %+v, want %+v", got, sched)
	}
}

func TestCleanupOrphanedRemovesUnknownConcepts(t *testing.T) {
	s := newTestScheduler(t)
	if _, err := s.Schedule("keep", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Schedule("drop", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	removed, err := s.CleanupOrphaned(map[string]bool{"keep": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(s.pathFor("drop")); !os.IsNotExist(err) {
		t.Fatalf("expected dropped schedule file to be removed")
	}
}
