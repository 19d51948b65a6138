// Package budget enforces the per-day token and request limits that throttle
// the Distiller and Embedder (spec.md §6/§7, error kind Budget). Grounded on
// internal/cost/estimation.go's token-estimation heuristic and pricing-table
// shape, repurposed from cost *estimation* into budget *enforcement*.
package budget

import (
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"smartrouter/internal/routererr"
)

// EstimateTokenCount approximates token count as characters/3.5, the same
// heuristic the teacher used for cost estimation.
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")
	charCount := utf8.RuneCountInString(text)
	return int(math.Ceil(float64(charCount) / 3.5))
}

// Tracker enforces a rolling daily token and request budget, resetting at
// UTC midnight. Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	dailyTokenBudget  int
	dailyRequestLimit int

	windowStart   time.Time
	tokensUsed    int
	requestsUsed  int
}

// NewTracker constructs a Tracker with the given daily limits. A limit of 0
// or less disables that dimension's check.
func NewTracker(dailyTokenBudget, dailyRequestLimit int) *Tracker {
	return &Tracker{
		dailyTokenBudget:  dailyTokenBudget,
		dailyRequestLimit: dailyRequestLimit,
		windowStart:       startOfUTCDay(time.Now()),
	}
}

func startOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (t *Tracker) rolloverLocked() {
	today := startOfUTCDay(time.Now())
	if today.After(t.windowStart) {
		t.windowStart = today
		t.tokensUsed = 0
		t.requestsUsed = 0
	}
}

// Reserve checks whether estimatedTokens and one additional request fit
// within today's remaining budget, and if so records the reservation. On
// exhaustion it returns a *routererr.Error of kind Budget and the caller
// must not make the upstream call (spec.md §5 backpressure policy).
func (t *Tracker) Reserve(estimatedTokens int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	if t.dailyRequestLimit > 0 && t.requestsUsed+1 > t.dailyRequestLimit {
		return routererr.New(routererr.KindBudget, "daily request limit exhausted")
	}
	if t.dailyTokenBudget > 0 && t.tokensUsed+estimatedTokens > t.dailyTokenBudget {
		return routererr.New(routererr.KindBudget, "daily token budget exhausted")
	}

	t.requestsUsed++
	t.tokensUsed += estimatedTokens
	return nil
}

// Usage returns today's consumed tokens and requests.
func (t *Tracker) Usage() (tokens, requests int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	return t.tokensUsed, t.requestsUsed
}

// Remaining returns today's remaining tokens and requests. A zero or negative
// dailyTokenBudget/dailyRequestLimit configuration is reported as
// math.MaxInt (unbounded).
func (t *Tracker) Remaining() (tokens, requests int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	tokens = math.MaxInt
	if t.dailyTokenBudget > 0 {
		tokens = t.dailyTokenBudget - t.tokensUsed
	}
	requests = math.MaxInt
	if t.dailyRequestLimit > 0 {
		requests = t.dailyRequestLimit - t.requestsUsed
	}
	return tokens, requests
}
