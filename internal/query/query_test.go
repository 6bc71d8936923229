package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mqstudio/studio-server/internal/content"
)

// fakeRepo is an in-memory Repository with the store's lookup and
// search semantics.
type fakeRepo struct {
	records map[content.Type][]content.Record
}

func (r *fakeRepo) List(ctx context.Context, typ content.Type) ([]content.Record, error) {
	return r.records[typ], nil
}

func (r *fakeRepo) Get(ctx context.Context, typ content.Type, slug string) (content.Record, bool, error) {
	for _, rec := range r.records[typ] {
		if rec.Slug == slug {
			return rec, true, nil
		}
	}
	return content.Record{}, false, nil
}

func (r *fakeRepo) Search(ctx context.Context, typ content.Type, q string) ([]content.Record, error) {
	ql := strings.ToLower(q)
	out := make([]content.Record, 0)
	for _, rec := range r.records[typ] {
		if strings.Contains(strings.ToLower(rec.Title), ql) ||
			strings.Contains(strings.ToLower(rec.Description), ql) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRepo) ByTag(ctx context.Context, typ content.Type, tag string) ([]content.Record, error) {
	out := make([]content.Record, 0)
	for _, rec := range r.records[typ] {
		if rec.HasTag(tag) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func at(day int) time.Time {
	return time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
}

func rec(typ content.Type, slug string, status content.Status, mod func(*content.Record)) content.Record {
	r := content.Record{
		ID:        slug,
		Slug:      slug,
		Type:      typ,
		Title:     strings.ReplaceAll(slug, "-", " "),
		Status:    status,
		CreatedAt: at(1),
		UpdatedAt: at(1),
	}
	if mod != nil {
		mod(&r)
	}
	return r
}

func testService() *Service {
	published := func(day int) func(*content.Record) {
		return func(r *content.Record) {
			t := at(day)
			r.PublishedAt = &t
		}
	}
	repo := &fakeRepo{records: map[content.Type][]content.Record{
		content.TypeMusing: {
			rec(content.TypeMusing, "go-notes", content.StatusPublished, func(r *content.Record) {
				r.Description = "notes on the go scheduler"
				r.Tags = []string{"go", "systems"}
				r.Category = content.CategoryThinking
				t := at(10)
				r.PublishedAt = &t
			}),
			rec(content.TypeMusing, "secret-draft", content.StatusDraft, func(r *content.Record) {
				r.Tags = []string{"go"}
				r.Featured = true
			}),
			rec(content.TypeMusing, "on-feelings", content.StatusPublished, func(r *content.Record) {
				r.Category = content.CategoryFeeling
				t := at(5)
				r.PublishedAt = &t
			}),
		},
		content.TypeArtwork: {
			rec(content.TypeArtwork, "ink-study", content.StatusPublished, func(r *content.Record) {
				r.Tags = []string{"ink", "systems"}
				r.Featured = true
				t := at(8)
				r.PublishedAt = &t
			}),
			rec(content.TypeArtwork, "archived-piece", content.StatusArchived, published(2)),
		},
		content.TypeProject: {
			rec(content.TypeProject, "go-notes", content.StatusPublished, published(3)),
		},
	}}
	return New(repo)
}

func TestByID_CanonicalTypeOrder(t *testing.T) {
	s := testService()

	// "go-notes" exists as both a musing and a project; musing wins
	// because it comes first in canonical order.
	got, ok, err := s.ByID(context.Background(), "go-notes")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if !ok {
		t.Fatal("not found")
	}
	if got.Type != content.TypeMusing {
		t.Fatalf("Type = %q, want musing", got.Type)
	}
}

func TestByID_Miss(t *testing.T) {
	s := testService()

	_, ok, err := s.ByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if ok {
		t.Fatal("unexpected hit")
	}
}

func TestByType_ExcludesDrafts(t *testing.T) {
	s := testService()

	recs, err := s.ByType(context.Background(), content.TypeMusing)
	if err != nil {
		t.Fatalf("ByType: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Status == content.StatusDraft {
			t.Fatalf("draft %q leaked into listing", r.Slug)
		}
	}
}

func TestByType_IncludesArchived(t *testing.T) {
	s := testService()

	recs, err := s.ByType(context.Background(), content.TypeArtwork)
	if err != nil {
		t.Fatalf("ByType: %v", err)
	}
	found := false
	for _, r := range recs {
		if r.Slug == "archived-piece" {
			found = true
		}
	}
	if !found {
		t.Fatal("archived record excluded from type listing")
	}
}

func TestByCategory(t *testing.T) {
	s := testService()

	recs, err := s.ByCategory(context.Background(), content.CategoryFeeling)
	if err != nil {
		t.Fatalf("ByCategory: %v", err)
	}
	if len(recs) != 1 || recs[0].Slug != "on-feelings" {
		t.Fatalf("recs = %v", recs)
	}

	if _, err := s.ByCategory(context.Background(), "brooding"); !content.IsValidation(err) {
		t.Fatalf("invalid category: err = %v, want ValidationError", err)
	}
}

func TestFeatured_ExcludesDrafts(t *testing.T) {
	s := testService()

	recs, err := s.Featured(context.Background())
	if err != nil {
		t.Fatalf("Featured: %v", err)
	}
	// secret-draft is featured but a draft
	if len(recs) != 1 || recs[0].Slug != "ink-study" {
		t.Fatalf("recs = %v", recs)
	}
}

func TestAll_CanonicalOrder(t *testing.T) {
	s := testService()

	recs, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("len = %d, want 5", len(recs))
	}
	// musings before artworks before projects
	if recs[0].Type != content.TypeMusing || recs[len(recs)-1].Type != content.TypeProject {
		t.Fatalf("type order broken: first %q last %q", recs[0].Type, recs[len(recs)-1].Type)
	}
}

func TestSearch_AnnotatesMatches(t *testing.T) {
	s := testService()

	matches, err := s.Search(context.Background(), "scheduler")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("len = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.Slug != "go-notes" {
		t.Fatalf("Slug = %q", m.Slug)
	}
	if len(m.MatchedFields) != 1 || m.MatchedFields[0] != "description" {
		t.Fatalf("MatchedFields = %v", m.MatchedFields)
	}
	if !strings.Contains(m.Highlights["description"], "<mark>scheduler</mark>") {
		t.Fatalf("Highlights = %v", m.Highlights)
	}
}

func TestSearch_HighlightSurvivesCaseLengthChange(t *testing.T) {
	// U+023A lowercases to U+2C65, which is one byte longer in UTF-8.
	repo := &fakeRepo{records: map[content.Type][]content.Record{
		content.TypeMusing: {
			rec(content.TypeMusing, "stray-letters", content.StatusPublished, func(r *content.Record) {
				r.Title = "Ⱥbc forms"
				t := at(4)
				r.PublishedAt = &t
			}),
		},
	}}
	s := New(repo)

	matches, err := s.Search(context.Background(), "bc")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("len = %d, want 1", len(matches))
	}
	if got := matches[0].Highlights["title"]; got != "Ⱥ<mark>bc</mark> forms" {
		t.Fatalf("Highlights[title] = %q", got)
	}
}

func TestHighlight(t *testing.T) {
	cases := []struct {
		name, s, term, want string
	}{
		{"ascii", "Go Notes", "go", "<mark>Go</mark> Notes"},
		{"every occurrence", "Go and go", "go", "<mark>Go</mark> and <mark>go</mark>"},
		{"lowercase form longer", "Ⱥbc", "bc", "Ⱥ<mark>bc</mark>"},
		{"lowercase form shorter", "İstanbul sketches", "istanbul", "<mark>İstanbul</mark> sketches"},
		{"match spans case pair", "Ⱥbc", "ⱥb", "<mark>Ⱥb</mark>c"},
		{"no occurrence", "Go Notes", "rust", "Go Notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := highlight(tc.s, tc.term); got != tc.want {
				t.Fatalf("highlight(%q, %q) = %q, want %q", tc.s, tc.term, got, tc.want)
			}
		})
	}
}

func TestSearch_ExcludesDrafts(t *testing.T) {
	s := testService()

	matches, err := s.Search(context.Background(), "secret")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches = %v, want none", matches)
	}
}

func TestSearch_TermTooLong(t *testing.T) {
	s := testService()

	_, err := s.Search(context.Background(), strings.Repeat("a", MaxSearchLen+1))
	if !content.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestRecent_OrderAndLimit(t *testing.T) {
	s := testService()

	recs, err := s.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	want := []string{"go-notes", "ink-study", "on-feelings"}
	for i := range want {
		if recs[i].Slug != want[i] {
			t.Fatalf("recs[%d] = %q, want %q", i, recs[i].Slug, want[i])
		}
	}
}

func TestRecent_RejectsBadLimit(t *testing.T) {
	s := testService()
	ctx := context.Background()

	for _, n := range []int{0, -1, MaxLimit + 1} {
		if _, err := s.Recent(ctx, n); !content.IsValidation(err) {
			t.Fatalf("Recent(%d): err = %v, want ValidationError", n, err)
		}
	}
}

func TestRelated_ScoringAndExclusions(t *testing.T) {
	s := testService()

	recs, err := s.Related(context.Background(), "go-notes", DefaultRelated)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}

	// Candidates for the go-notes musing: ink-study shares "systems"
	// (score 2); on-feelings and the go-notes project are same-type or
	// zero. on-feelings scores 1 for same type; project go-notes IS the
	// project twin with no shared tags, different type, score 0 and
	// dropped. secret-draft shares a tag but is a draft.
	want := []string{"ink-study", "on-feelings"}
	if len(recs) != len(want) {
		t.Fatalf("recs = %v, want slugs %v", recs, want)
	}
	for i := range want {
		if recs[i].Slug != want[i] {
			t.Fatalf("recs[%d] = %q, want %q", i, recs[i].Slug, want[i])
		}
	}
	for _, r := range recs {
		if r.Slug == "go-notes" && r.Type == content.TypeMusing {
			t.Fatal("target returned as its own relative")
		}
	}
}

func TestRelated_MissingTarget(t *testing.T) {
	s := testService()

	_, err := s.Related(context.Background(), "phantom", DefaultRelated)
	if !content.IsNotFound(err) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestCheckLimit(t *testing.T) {
	for _, n := range []int{MinLimit, 50, MaxLimit} {
		if err := CheckLimit(n); err != nil {
			t.Errorf("CheckLimit(%d) = %v", n, err)
		}
	}
	for _, n := range []int{0, -5, 101} {
		if err := CheckLimit(n); !content.IsValidation(err) {
			t.Errorf("CheckLimit(%d) = %v, want ValidationError", n, err)
		}
	}
}
