package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smartrouter/internal/core"
	"smartrouter/internal/routererr"
)

const distillPromptTemplate = `You are filing a short study snippet into a personal knowledge base.
Classify whether the following text is educational study material, then
produce a concise title (<=100 characters) and a summary (50-500
characters) that captures the core idea.

Respond with ONLY a JSON object of the form:
{"classification": "STUDY" or "NOT_STUDY", "title": "...", "summary": "..."}

Text:
---
%s
---`

type distillResponse struct {
	Classification string `json:"classification"`
	Title          string `json:"title"`
	Summary        string `json:"summary"`
}

// Distill implements distiller.Distiller. It serves a cached result when
// available, otherwise calls Gemini with bounded exponential-backoff
// retries, falling back to a first-sentence/first-500-chars heuristic on
// malformed model output (spec.md §4.2/§7). Budget admission is the
// router's responsibility (one Reserve per route, not per upstream call).
func (c *Client) Distill(ctx context.Context, normalizedText, contentHash string) (*core.DistilledConcept, error) {
	if c.cache != nil {
		if raw, ok := c.cache.Get(contentHash); ok {
			var cached core.DistilledConcept
			if err := json.Unmarshal(raw, &cached); err == nil {
				cached.Cached = true
				return &cached, nil
			}
		}
	}

	prompt := fmt.Sprintf(distillPromptTemplate, normalizedText)
	var raw string
	err := c.withRetry(ctx, routererr.KindDistillTimeout, routererr.KindDistillUpstream, func(callCtx context.Context) error {
		var genErr error
		raw, genErr = c.generateContent(callCtx, prompt)
		return genErr
	})
	if err != nil {
		return nil, err
	}

	concept, malformed := parseDistillResponse(raw, contentHash)
	if malformed {
		concept = fallbackDistill(normalizedText, contentHash)
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(concept); err == nil {
			c.cache.Set(contentHash, encoded, 7*24*time.Hour)
		}
	}

	return concept, nil
}

func parseDistillResponse(raw, contentHash string) (*core.DistilledConcept, bool) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var resp distillResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return nil, true
	}
	title := strings.TrimSpace(resp.Title)
	summary := strings.TrimSpace(resp.Summary)
	if title == "" || summary == "" {
		return nil, true
	}
	if len(title) > 100 {
		title = title[:100]
	}
	if len(summary) > 500 {
		summary = summary[:500]
	}

	classification := core.ClassificationStudy
	if strings.EqualFold(resp.Classification, string(core.ClassificationNotStudy)) {
		classification = core.ClassificationNotStudy
	}

	return &core.DistilledConcept{
		ConceptID:      contentHash,
		Title:          title,
		Summary:        summary,
		ContentHash:    contentHash,
		DistilledAt:    time.Now().UTC(),
		Classification: classification,
	}, false
}

// fallbackDistill implements the DistillMalformed recovery path: first
// sentence as title, first 500 chars as summary, classified STUDY so the
// router still has something to route rather than silently dropping it.
func fallbackDistill(normalizedText, contentHash string) *core.DistilledConcept {
	title := firstSentence(normalizedText)
	if len(title) > 100 {
		title = title[:100]
	}
	summary := normalizedText
	if len(summary) > 500 {
		summary = summary[:500]
	}
	if len(summary) < 50 {
		summary = padSummary(summary)
	}
	return &core.DistilledConcept{
		ConceptID:      contentHash,
		Title:          title,
		Summary:        summary,
		ContentHash:    contentHash,
		DistilledAt:    time.Now().UTC(),
		Classification: core.ClassificationStudy,
	}
}

func firstSentence(text string) string {
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.Index(text, sep); idx > 0 {
			return text[:idx]
		}
	}
	if len(text) > 100 {
		return text[:100]
	}
	return text
}

// padSummary pads a summary shorter than the 50-character minimum so the
// fallback path still satisfies the DistilledConcept invariant.
func padSummary(s string) string {
	for len(s) < 50 {
		s += " ."
	}
	return s
}
