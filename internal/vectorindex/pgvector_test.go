package vectorindex

import (
	"context"
	"database/sql"
	"math"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

func TestFormatAndParseVectorRoundTrip(t *testing.T) {
	v := []float64{0.1, -0.25, 1.0, 0.0}
	str := formatVector(v)
	parsed, err := parseVector(str)
	if err != nil {
		t.Fatalf("parseVector failed: %v", err)
	}
	if len(parsed) != len(v) {
		t.Fatalf("expected %d components, got %d", len(v), len(parsed))
	}
	for i := range v {
		if math.Abs(parsed[i]-v[i]) > 1e-5 {
			t.Fatalf("component %d: expected %f, got %f", i, v[i], parsed[i])
		}
	}
}

func TestFormatVectorEmpty(t *testing.T) {
	if got := formatVector(nil); got != "[]" {
		t.Fatalf("expected empty vector literal '[]', got %q", got)
	}
}

func TestCheckDimsRejectsMismatch(t *testing.T) {
	idx := &PgVectorIndex{dims: 4}
	if err := idx.checkDims([]float64{1, 2, 3}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
	if err := idx.checkDims([]float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("expected matching dims to pass, got %v", err)
	}
}

func TestSearchTieBreakOrdering(t *testing.T) {
	hits := []SearchHit{
		{ConceptID: "zzz", Similarity: 0.9, MemberCount: 2},
		{ConceptID: "aaa", Similarity: 0.9, MemberCount: 5},
		{ConceptID: "bbb", Similarity: 0.95, MemberCount: 1},
		{ConceptID: "ccc", Similarity: 0.9, MemberCount: 5},
	}
	sortHitsForTest(hits)

	if hits[0].ConceptID != "bbb" {
		t.Fatalf("expected highest-similarity hit first, got %q", hits[0].ConceptID)
	}
	// Among the 0.9-similarity ties, highest member count wins; among
	// those, lexicographically smaller conceptId wins.
	if hits[1].ConceptID != "aaa" || hits[2].ConceptID != "ccc" {
		t.Fatalf("expected tie-break order aaa,ccc for equal similarity+memberCount, got %q,%q", hits[1].ConceptID, hits[2].ConceptID)
	}
	if hits[3].ConceptID != "zzz" {
		t.Fatalf("expected lowest member-count tie last, got %q", hits[3].ConceptID)
	}
}

// sortHitsForTest exercises the same comparator used inside search.
func sortHitsForTest(hits []SearchHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && less(hits[j], hits[j-1]); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

func less(a, b SearchHit) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.MemberCount != b.MemberCount {
		return a.MemberCount > b.MemberCount
	}
	return a.ConceptID < b.ConceptID
}

// TestPgVectorIntegration exercises the adapter against a live pgvector
// database. Run with DATABASE_URL set to a reachable Postgres instance
// with the vector extension available.
func TestPgVectorIntegration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	idx := NewPgVectorIndex(db, 8)
	ctx := context.Background()
	if err := idx.Initialize(ctx, 8); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	ready, err := idx.IsReady(ctx)
	if err != nil || !ready {
		t.Fatalf("expected ready index, ready=%v err=%v", ready, err)
	}
}
