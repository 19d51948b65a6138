package candidate

import (
	"strings"

	"smartrouter/internal/config"
)

// QualityScore computes the [0,1] quality score of spec.md §4.6:
// uniqueness = |uniqueWords|/|words|; lengthScore = min(avgWordLen/norm, 1);
// score = w_u·uniqueness + w_l·lengthScore. Texts shorter than minWordCount
// get the configured short-text score instead.
func QualityScore(normalizedText string, q config.Quality, minWordCount int) float64 {
	words := strings.Fields(normalizedText)
	if len(words) < minWordCount {
		return q.ShortTextQualityScore
	}

	unique := make(map[string]struct{}, len(words))
	totalLen := 0
	for _, w := range words {
		unique[w] = struct{}{}
		totalLen += len(w)
	}

	uniqueness := float64(len(unique)) / float64(len(words))
	avgWordLen := float64(totalLen) / float64(len(words))
	norm := q.AvgWordLengthNormalization
	if norm <= 0 {
		norm = 1
	}
	lengthScore := avgWordLen / norm
	if lengthScore > 1 {
		lengthScore = 1
	}

	return q.UniquenessWeight*uniqueness + q.LengthWeight*lengthScore
}
