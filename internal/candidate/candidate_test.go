package candidate

import (
	"strings"
	"testing"

	"smartrouter/internal/config"
	"smartrouter/internal/routererr"
)

func testConfig() (config.Candidate, config.Quality) {
	return config.Candidate{
			MinTextLength:   20,
			MaxTextLength:   4000,
			MinWordCount:    4,
			MinQualityScore: 0.1,
		}, config.Quality{
			UniquenessWeight:           0.5,
			LengthWeight:               0.5,
			AvgWordLengthNormalization: 8.0,
			ShortTextQualityScore:      0.2,
		}
}

func TestCandidateIDDeterministic(t *testing.T) {
	id1 := CandidateID("batch-1", 0, "eigenvalues satisfy av=λv")
	id2 := CandidateID("batch-1", 0, "eigenvalues satisfy av=λv")
	if id1 != id2 {
		t.Fatalf("expected identical ids, got %q and %q", id1, id2)
	}
	if len(id1) != 16 {
		t.Fatalf("expected 16 hex chars (64 bits), got %d: %q", len(id1), id1)
	}

	id3 := CandidateID("batch-2", 0, "eigenvalues satisfy av=λv")
	if id1 == id3 {
		t.Fatalf("different batchId should yield different candidateId")
	}
}

func TestContentHashMatchesDeduplicationKey(t *testing.T) {
	text := "a matrix is diagonalizable if it has a full set of eigenvectors"
	h1 := ContentHash(text)
	h2 := ContentHash(text)
	if h1 != h2 {
		t.Fatalf("ContentHash must be pure function of normalizedText")
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars (sha256), got %d", len(h1))
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := "  Eigen-\n values:   for a square  matrix A , Av=λv ."
	once := Normalize(raw)
	twice := Normalize(once)
	if once != twice {
		t.Fatalf("Normalize is not idempotent: %q != %q", once, twice)
	}
}

func TestNormalizeCollapsesHyphenatedBreaks(t *testing.T) {
	got := Normalize("eigen-\nvalues are important")
	if strings.Contains(got, "eigen-") {
		t.Fatalf("expected hyphenated line break to be rejoined, got %q", got)
	}
}

func TestCreateRejectsEmptyText(t *testing.T) {
	candCfg, qualCfg := testConfig()
	v := NewValidator(candCfg, qualCfg)
	_, err := v.Create("b1", 0, "", "ocr")
	if !routererr.Is(err, routererr.KindEmptyText) {
		t.Fatalf("expected EmptyText, got %v", err)
	}
}

func TestCreateRejectsTooShort(t *testing.T) {
	candCfg, qualCfg := testConfig()
	v := NewValidator(candCfg, qualCfg)
	_, err := v.Create("b1", 0, "too short", "ocr")
	if !routererr.Is(err, routererr.KindTooShort) {
		t.Fatalf("expected TooShort, got %v", err)
	}
}

func TestCreateBoundaryAcceptsExactMinLength(t *testing.T) {
	candCfg, qualCfg := testConfig()
	// Build text exactly at MinTextLength once normalized, with enough
	// distinct words to clear MinWordCount and MinQualityScore.
	words := []string{"alpha", "echo", "golf", "kilo"}
	text := strings.Join(words, " ")
	if len(text) != candCfg.MinTextLength {
		t.Fatalf("test setup: expected text of length %d, got %d", candCfg.MinTextLength, len(text))
	}

	v := NewValidator(candCfg, qualCfg)
	c, err := v.Create("b1", 0, text, "ocr")
	if err != nil {
		t.Fatalf("expected boundary-length text to be accepted, got %v", err)
	}
	if c.ContentHash != ContentHash(c.NormalizedText) {
		t.Fatalf("ContentHash invariant violated")
	}
}

func TestCreateRejectsBannedPattern(t *testing.T) {
	candCfg, qualCfg := testConfig()
	v := NewValidator(candCfg, qualCfg)
	_, err := v.Create("b1", 0, "50% off all electronics this weekend and click here to buy now before it ends", "ocr")
	if !routererr.Is(err, routererr.KindBannedPattern) {
		t.Fatalf("expected BannedPattern, got %v", err)
	}
}

func TestQualityScoreShortTextFallback(t *testing.T) {
	_, qualCfg := testConfig()
	score := QualityScore("a b c", qualCfg, 4)
	if score != qualCfg.ShortTextQualityScore {
		t.Fatalf("expected short text fallback score %f, got %f", qualCfg.ShortTextQualityScore, score)
	}
}
