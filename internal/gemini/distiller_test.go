package gemini

import (
	"strings"
	"testing"

	"smartrouter/internal/core"
)

func TestParseDistillResponseWellFormed(t *testing.T) {
	raw := `{"classification":"STUDY","title":"Eigenvalues","summary":"For a square matrix A, Av=λv characterizes eigenvectors and eigenvalues of the linear map."}`
	concept, malformed := parseDistillResponse(raw, "hash1")
	if malformed {
		t.Fatalf("expected well-formed response to parse")
	}
	if concept.Classification != core.ClassificationStudy {
		t.Fatalf("expected STUDY classification, got %v", concept.Classification)
	}
	if concept.Title != "Eigenvalues" {
		t.Fatalf("unexpected title %q", concept.Title)
	}
}

func TestParseDistillResponseStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"classification\":\"NOT_STUDY\",\"title\":\"Ad\",\"summary\":\"This is a fifty-plus character promotional summary about sales and discounts today.\"}\n```"
	concept, malformed := parseDistillResponse(raw, "hash2")
	if malformed {
		t.Fatalf("expected fenced JSON to parse")
	}
	if concept.Classification != core.ClassificationNotStudy {
		t.Fatalf("expected NOT_STUDY classification, got %v", concept.Classification)
	}
}

func TestParseDistillResponseMalformedFallsBack(t *testing.T) {
	_, malformed := parseDistillResponse("not json at all", "hash3")
	if !malformed {
		t.Fatalf("expected malformed response to be detected")
	}
}

func TestFallbackDistillUsesFirstSentenceAndFirst500Chars(t *testing.T) {
	text := "Eigenvalues satisfy Av equals lambda v. This is additional context that should not appear in the title."
	concept := fallbackDistill(text, "hash4")
	if concept.Title != "Eigenvalues satisfy Av equals lambda v" {
		t.Fatalf("unexpected fallback title %q", concept.Title)
	}
	if len(concept.Summary) > 500 {
		t.Fatalf("fallback summary exceeds 500 chars: %d", len(concept.Summary))
	}
	if len(concept.Summary) < 50 {
		t.Fatalf("fallback summary below 50 char minimum: %d", len(concept.Summary))
	}
}

func TestFallbackDistillTruncatesLongTitle(t *testing.T) {
	text := strings.Repeat("a", 200) + ". rest of the text here that is long enough to be a summary on its own merits."
	concept := fallbackDistill(text, "hash5")
	if len(concept.Title) > 100 {
		t.Fatalf("expected title truncated to 100 chars, got %d", len(concept.Title))
	}
}
