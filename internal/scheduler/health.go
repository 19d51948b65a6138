package scheduler

import (
	"time"

	"smartrouter/internal/core"
)

// ReviewPlan summarizes upcoming review load by day, for the next 7 days.
type ReviewPlan struct {
	DueToday     int
	DueTomorrow  int
	DueThisWeek  int
	OverdueCount int
}

// GetReviewPlan buckets every non-suspended schedule by how soon it's due.
func (s *Scheduler) GetReviewPlan() (*ReviewPlan, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfToday := startOfToday.Add(24 * time.Hour)
	endOfTomorrow := endOfToday.Add(24 * time.Hour)
	endOfWeek := startOfToday.Add(7 * 24 * time.Hour)

	plan := &ReviewPlan{}
	for _, sched := range all {
		if sched.Status == core.StatusSuspended {
			continue
		}
		switch {
		case sched.NextReviewAt.Before(startOfToday):
			plan.OverdueCount++
		case sched.NextReviewAt.Before(endOfToday):
			plan.DueToday++
		case sched.NextReviewAt.Before(endOfTomorrow):
			plan.DueTomorrow++
		case sched.NextReviewAt.Before(endOfWeek):
			plan.DueThisWeek++
		}
	}
	return plan, nil
}

// SystemHealth summarizes the overall state of the review pipeline.
type SystemHealth struct {
	TotalSchedules int
	ByStatus       map[string]int
	AverageEase    float64
	OverdueCount   int
}

// GetSystemHealth reports aggregate schedule statistics.
func (s *Scheduler) GetSystemHealth() (*SystemHealth, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	health := &SystemHealth{
		TotalSchedules: len(all),
		ByStatus:       make(map[string]int),
	}

	now := time.Now().UTC()
	var easeSum float64
	for _, sched := range all {
		health.ByStatus[string(sched.Status)]++
		easeSum += sched.Parameters.EaseFactor
		if sched.Status != core.StatusSuspended && sched.NextReviewAt.Before(now) {
			health.OverdueCount++
		}
	}
	if len(all) > 0 {
		health.AverageEase = easeSum / float64(len(all))
	}
	return health, nil
}

// EstimateDailyStudyTime estimates minutes of review time for today's due
// queue, assuming a fixed per-card duration.
func (s *Scheduler) EstimateDailyStudyTime(secondsPerCard float64) (float64, error) {
	if secondsPerCard <= 0 {
		secondsPerCard = 20
	}
	due, err := s.GetDueReviews(DueReviewsOptions{})
	if err != nil {
		return 0, err
	}
	return float64(len(due)) * secondsPerCard / 60, nil
}
