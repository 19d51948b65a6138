// Package distiller defines the Distiller collaborator contract (C2):
// raw normalized text reduced to a title, summary, and classification.
// Concrete implementations live in internal/gemini.
package distiller

import (
	"context"

	"smartrouter/internal/core"
)

// Distiller reduces a normalized candidate text to a DistilledConcept.
//
// Contract (spec.md §4.2):
//   - Returns Classification NOT_STUDY (the caller must discard such
//     inputs) if the text is not educational; otherwise a title ≤100
//     chars and a summary of 50-500 chars.
//   - If the cache hits for contentHash, returns the cached
//     DistilledConcept with Cached=true and makes no remote call.
//   - Fails with a *routererr.Error of kind DistillTimeout, DistillQuota,
//     DistillMalformed (callers should fall back to first-sentence title
//     / first-500-chars summary), or DistillUpstream.
//   - Does not enforce the per-day request budget: the router reserves
//     against the shared budget.Tracker before calling Distill.
type Distiller interface {
	Distill(ctx context.Context, normalizedText, contentHash string) (*core.DistilledConcept, error)
}
