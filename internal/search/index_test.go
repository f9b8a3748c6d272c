package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/scope-engine/scope-assistant/internal/complaint"
)

// keywordEmbedder produces deterministic vectors so similarity ordering
// is predictable: each dimension counts a keyword occurrence.
type keywordEmbedder struct {
	keywords []string
	calls    int
}

func (e *keywordEmbedder) Generate(_ context.Context, text string) ([]float32, error) {
	e.calls++
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.keywords))
	for i, kw := range e.keywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	return vec, nil
}

type staticSource struct {
	records []*complaint.Complaint
	err     error
}

func (s *staticSource) All(context.Context) ([]*complaint.Complaint, error) {
	return s.records, s.err
}

func sampleComplaints() []*complaint.Complaint {
	now := time.Now()
	return []*complaint.Complaint{
		{ID: 1, Text: "The wifi in the library has been down for days", Category: complaint.CategoryITSupport, Urgency: complaint.UrgencyHigh, Status: complaint.StatusPending, CreatedAt: now},
		{ID: 2, Text: "Heating broken in dorm building C", Category: complaint.CategoryHousing, Urgency: complaint.UrgencyCritical, Status: complaint.StatusInProgress, CreatedAt: now},
		{ID: 3, Text: "Cafeteria food quality has dropped", Category: complaint.CategoryCampusLife, Urgency: complaint.UrgencyLow, Status: complaint.StatusPending, CreatedAt: now},
	}
}

func TestSearchRanking(t *testing.T) {
	emb := &keywordEmbedder{keywords: []string{"wifi", "heating", "food"}}
	ix := NewIndex(emb, &staticSource{records: sampleComplaints()}, nil)

	hits, err := ix.Search(context.Background(), "wifi not working", 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(hits))
	}
	if hits[0].ID != 1 {
		t.Errorf("top hit = %d, want complaint 1 (wifi)", hits[0].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("hits not ranked: %v vs %v", hits[0].Score, hits[1].Score)
	}
}

func TestSearchTopK(t *testing.T) {
	emb := &keywordEmbedder{keywords: []string{"wifi", "heating", "food"}}
	ix := NewIndex(emb, &staticSource{records: sampleComplaints()}, nil)

	hits, err := ix.Search(context.Background(), "heating", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("hits = %d, want 2", len(hits))
	}
}

func TestSearchReusesVectors(t *testing.T) {
	emb := &keywordEmbedder{keywords: []string{"wifi"}}
	src := &staticSource{records: sampleComplaints()}
	ix := NewIndex(emb, src, nil)

	// First search embeds the 3 records plus the query.
	if _, err := ix.Search(context.Background(), "wifi", 5); err != nil {
		t.Fatal(err)
	}
	if emb.calls != 4 {
		t.Errorf("embedder calls = %d, want 4", emb.calls)
	}

	// Unchanged texts keep their cached vectors: only the query is
	// embedded on the second search.
	if _, err := ix.Search(context.Background(), "wifi", 5); err != nil {
		t.Fatal(err)
	}
	if emb.calls != 5 {
		t.Errorf("embedder calls = %d, want 5", emb.calls)
	}
}

func TestSearchReflectsStatusUpdates(t *testing.T) {
	emb := &keywordEmbedder{keywords: []string{"wifi", "heating", "food"}}
	src := &staticSource{records: sampleComplaints()}
	ix := NewIndex(emb, src, nil)

	hits, err := ix.Search(context.Background(), "wifi", 5)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Status != complaint.StatusPending {
		t.Fatalf("initial status = %s, want Pending", hits[0].Status)
	}

	src.records[0].Status = complaint.StatusResolved
	src.records[0].Urgency = complaint.UrgencyLow

	hits, err = ix.Search(context.Background(), "wifi", 5)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ID != 1 || hits[0].Status != complaint.StatusResolved {
		t.Errorf("hit after update = id %d status %s, want id 1 Resolved", hits[0].ID, hits[0].Status)
	}
	if hits[0].Urgency != complaint.UrgencyLow {
		t.Errorf("urgency after update = %s, want Low", hits[0].Urgency)
	}
	// A rendered-field change must not cost a re-embedding.
	if emb.calls != 5 {
		t.Errorf("embedder calls = %d, want 5", emb.calls)
	}
}

func TestSearchSeesNewAndEditedComplaints(t *testing.T) {
	emb := &keywordEmbedder{keywords: []string{"wifi", "heating", "food", "parking"}}
	src := &staticSource{records: sampleComplaints()}
	ix := NewIndex(emb, src, nil)

	if _, err := ix.Search(context.Background(), "wifi", 5); err != nil {
		t.Fatal(err)
	}

	src.records = append(src.records, &complaint.Complaint{
		ID: 4, Text: "No parking near the science building",
		Category: complaint.CategoryFacilities, Urgency: complaint.UrgencyMedium,
		Status: complaint.StatusPending, CreatedAt: time.Now(),
	})
	hits, err := ix.Search(context.Background(), "parking", 5)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ID != 4 {
		t.Errorf("top hit = %d, want the newly added complaint", hits[0].ID)
	}

	// Edited text invalidates that complaint's cached vector.
	before := emb.calls
	src.records[0].Text = "The heating in the library has been down for days"
	if _, err := ix.Search(context.Background(), "heating", 5); err != nil {
		t.Fatal(err)
	}
	if emb.calls != before+2 {
		t.Errorf("embedder calls = %d, want %d (query plus edited text)", emb.calls, before+2)
	}
}

func TestSearchSourceError(t *testing.T) {
	ix := NewIndex(&keywordEmbedder{keywords: []string{"x"}}, &staticSource{err: errors.New("database is locked")}, nil)
	if _, err := ix.Search(context.Background(), "anything", 5); err == nil {
		t.Error("Search() should surface source errors")
	}
}

func TestPreviewTruncation(t *testing.T) {
	long := strings.Repeat("complaint text ", 20)
	p := preview(long)
	if len([]rune(p)) > previewLen+3 {
		t.Errorf("preview too long: %d runes", len([]rune(p)))
	}
	if !strings.HasSuffix(p, "...") {
		t.Errorf("long preview should end with ellipsis, got %q", p)
	}

	short := "brief\nnote"
	if got := preview(short); got != "brief note" {
		t.Errorf("preview(%q) = %q, want newlines collapsed", short, got)
	}
}
