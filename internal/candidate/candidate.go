// Package candidate implements the ConceptCandidate lifecycle (C6):
// validation, the fixed normalization pipeline, quality scoring, and the
// deterministic content-addressed id scheme. Grounded on internal/parser's
// validation/normalization structuring and internal/categorization's
// rule-based scoring layering, applied here to quality instead of topic.
package candidate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"smartrouter/internal/config"
	"smartrouter/internal/core"
	"smartrouter/internal/routererr"
)

// bannedPatterns reject OCR captures that are clearly not study material
// (ads, promo codes, cookie banners). Small and conservative by design.
var bannedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d{1,2}%\s*off\b`),
	regexp.MustCompile(`(?i)\bunsubscribe\b`),
	regexp.MustCompile(`(?i)\baccept\s+all\s+cookies\b`),
	regexp.MustCompile(`(?i)\bclick\s+here\s+to\s+(buy|subscribe|shop)\b`),
}

// Validator creates ConceptCandidates against a fixed set of admission
// thresholds drawn from config.
type Validator struct {
	cfg config.Candidate
	q   config.Quality
}

// NewValidator constructs a Validator from the candidate and quality config
// sections.
func NewValidator(candCfg config.Candidate, qualCfg config.Quality) *Validator {
	return &Validator{cfg: candCfg, q: qualCfg}
}

// Create validates and normalizes rawText, producing a ConceptCandidate
// with a deterministic id. It fails with one of EmptyText, TooShort,
// TooLong, LowQuality, or BannedPattern.
func (v *Validator) Create(batchID string, index int, rawText string, source core.Source) (*core.ConceptCandidate, error) {
	if len(rawText) == 0 {
		return nil, routererr.New(routererr.KindEmptyText, "raw text is empty")
	}

	normalized := Normalize(rawText)
	if normalized == "" {
		return nil, routererr.New(routererr.KindEmptyText, "normalized text is empty")
	}

	for _, pat := range bannedPatterns {
		if pat.MatchString(normalized) {
			return nil, routererr.New(routererr.KindBannedPattern, fmt.Sprintf("matched banned pattern %q", pat.String()))
		}
	}

	if len(normalized) < v.cfg.MinTextLength {
		return nil, routererr.New(routererr.KindTooShort, fmt.Sprintf("normalized length %d < min %d", len(normalized), v.cfg.MinTextLength))
	}
	if len(normalized) > v.cfg.MaxTextLength {
		return nil, routererr.New(routererr.KindTooLong, fmt.Sprintf("normalized length %d > max %d", len(normalized), v.cfg.MaxTextLength))
	}

	score := QualityScore(normalized, v.q, v.cfg.MinWordCount)
	if score < v.cfg.MinQualityScore {
		return nil, routererr.New(routererr.KindLowQuality, fmt.Sprintf("quality %.4f < min %.4f", score, v.cfg.MinQualityScore))
	}

	candidateID := CandidateID(batchID, index, normalized)
	contentHash := ContentHash(normalized)

	return &core.ConceptCandidate{
		CandidateID:    candidateID,
		BatchID:        batchID,
		Index:          index,
		RawText:        rawText,
		NormalizedText: normalized,
		ContentHash:    contentHash,
		Source:         source,
		CreatedAt:      time.Now().UTC(),
		QualityScore:   score,
	}, nil
}

// CandidateID computes H64(batchId:index:normalizedText): the first 64
// bits (16 hex chars) of the text's SHA-256 digest.
func CandidateID(batchID string, index int, normalizedText string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", batchID, index, normalizedText)))
	return hex.EncodeToString(sum[:8])
}

// ContentHash computes the full SHA-256 hex digest of normalizedText, the
// deduplication key across batches.
func ContentHash(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}
