package candidate

import (
	"regexp"
	"strings"
)

// smartQuoteReplacer maps common smart-quote / dash byte sequences to their
// ASCII equivalents. Grounded on the teacher's URL/text-cleanup helpers in
// internal/parser, generalized from URL normalization to prose normalization.
var smartQuoteReplacer = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", "\"",
	"”", "\"",
	"–", "-",
	"—", "-",
	"…", "...",
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	hyphenLineBreak = regexp.MustCompile(`(\w)-\s*\n\s*(\w)`)
	punctSpacing    = regexp.MustCompile(`\s+([,.;:!?])`)

	// navFooterPatterns strip common OCR capture artifacts: page numbers,
	// breadcrumb trails, and repeated headers/footers.
	navFooterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*page\s+\d+\s+of\s+\d+\s*`),
		regexp.MustCompile(`(?i)\bhome\s*>\s*[\w\s>]+$`),
		regexp.MustCompile(`(?i)^\s*(chapter|section)\s+\d+[:.]?\s*`),
		regexp.MustCompile(`\s*©\s*\d{4}.*$`),
	}
)

// Normalize applies the fixed normalization pipeline from spec.md §4.6:
// lowercase, trim, rejoin hyphenated line breaks (before whitespace is
// collapsed, so the newline is still visible), collapse whitespace,
// replace smart quotes, collapse punctuation spacing, strip navigation
// artifacts. It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = strings.TrimSpace(s)
	s = hyphenLineBreak.ReplaceAllString(s, "$1$2")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = smartQuoteReplacer.Replace(s)
	s = punctSpacing.ReplaceAllString(s, "$1")
	for _, pat := range navFooterPatterns {
		s = pat.ReplaceAllString(s, "")
	}
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return s
}
