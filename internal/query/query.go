// Package query is the read-side composition layer over the content
// store: exact lookups, collection filters, substring search with
// highlight annotation, recency, and relatedness. It is what the
// public site surface talks to.
package query

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/mqstudio/studio-server/internal/content"
)

// Limits accepted by the façade. Out-of-range limits are rejected as
// client errors rather than silently clamped, to keep the contract
// explicit to callers.
const (
	MinLimit       = 1
	MaxLimit       = 100
	MaxSearchLen   = 200
	DefaultRelated = 6
)

// Repository is the slice of the content store the façade reads from.
type Repository interface {
	List(ctx context.Context, typ content.Type) ([]content.Record, error)
	Get(ctx context.Context, typ content.Type, slug string) (content.Record, bool, error)
	Search(ctx context.Context, typ content.Type, q string) ([]content.Record, error)
	ByTag(ctx context.Context, typ content.Type, tag string) ([]content.Record, error)
}

// Service composes filtered and aggregate reads over the repository.
type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Match is a search hit annotated with which metadata fields matched
// and mark-highlighted copies of those fields, for the render layer.
// Highlight values are already passed through the highlight sanitizer.
type Match struct {
	content.Record
	MatchedFields []string          `json:"matchedFields"`
	Highlights    map[string]string `json:"highlights,omitempty"`
}

// ByID returns the record whose id (== slug) matches, scanning the
// types in canonical order so cross-type collisions resolve
// deterministically. ok=false on miss.
func (s *Service) ByID(ctx context.Context, id string) (content.Record, bool, error) {
	return s.BySlug(ctx, id)
}

// BySlug is the exact lookup across all types.
func (s *Service) BySlug(ctx context.Context, slug string) (content.Record, bool, error) {
	for _, typ := range content.Types() {
		rec, ok, err := s.repo.Get(ctx, typ, slug)
		if err != nil {
			return content.Record{}, false, err
		}
		if ok {
			return rec, true, nil
		}
	}
	return content.Record{}, false, nil
}

// ByType lists public (non-draft) records of one type.
func (s *Service) ByType(ctx context.Context, typ content.Type) ([]content.Record, error) {
	recs, err := s.repo.List(ctx, typ)
	if err != nil {
		return nil, err
	}
	return public(recs), nil
}

// ByCategory lists public musings on the thinking/feeling/doing axis.
// Category only means anything for musings, so only musings are
// consulted.
func (s *Service) ByCategory(ctx context.Context, category string) ([]content.Record, error) {
	if !content.ValidCategory(category) {
		return nil, &content.ValidationError{Field: "category", Reason: "must be one of thinking, feeling, doing"}
	}
	recs, err := s.repo.List(ctx, content.TypeMusing)
	if err != nil {
		return nil, err
	}
	out := make([]content.Record, 0)
	for _, rec := range public(recs) {
		if rec.Category == category {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Featured lists public featured records across all types.
func (s *Service) Featured(ctx context.Context) ([]content.Record, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]content.Record, 0)
	for _, rec := range all {
		if rec.Featured {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All lists public records across every type, in canonical type order.
func (s *Service) All(ctx context.Context) ([]content.Record, error) {
	out := make([]content.Record, 0)
	for _, typ := range content.Types() {
		recs, err := s.repo.List(ctx, typ)
		if err != nil {
			return nil, err
		}
		out = append(out, public(recs)...)
	}
	return out, nil
}

// Search runs the literal substring search across all types and
// annotates each hit with the fields that matched. Results keep the
// store's disk order within each type; there is no relevance ranking.
func (s *Service) Search(ctx context.Context, term string) ([]Match, error) {
	if len(term) > MaxSearchLen {
		return nil, &content.ValidationError{Field: "search", Reason: "query must be 200 characters or less"}
	}
	term = strings.TrimSpace(term)

	out := make([]Match, 0)
	for _, typ := range content.Types() {
		recs, err := s.repo.Search(ctx, typ, term)
		if err != nil {
			return nil, err
		}
		for _, rec := range public(recs) {
			out = append(out, annotate(rec, term))
		}
	}
	return out, nil
}

// Recent returns the n most recently published (falling back to
// created) public records across all types, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]content.Record, error) {
	if err := CheckLimit(n); err != nil {
		return nil, err
	}
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return effectiveTime(all[i]).After(effectiveTime(all[j]))
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Related returns up to n public records related to the given one:
// most shared tags first, then same type, then newest, with a
// (type, slug) tie-break so equal inputs always produce equal output.
func (s *Service) Related(ctx context.Context, id string, n int) ([]content.Record, error) {
	if err := CheckLimit(n); err != nil {
		return nil, err
	}
	target, ok, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &content.NotFoundError{Slug: id}
	}

	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   content.Record
		score int
	}
	candidates := make([]scored, 0, len(all))
	for _, rec := range all {
		if rec.Type == target.Type && rec.Slug == target.Slug {
			continue
		}
		score := sharedTags(target, rec) * 2
		if rec.Type == target.Type {
			score++
		}
		if score == 0 {
			continue
		}
		candidates = append(candidates, scored{rec: rec, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		at, bt := effectiveTime(a.rec), effectiveTime(b.rec)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if a.rec.Type != b.rec.Type {
			return a.rec.Type < b.rec.Type
		}
		return a.rec.Slug < b.rec.Slug
	})

	out := make([]content.Record, 0, n)
	for _, c := range candidates {
		if len(out) == n {
			break
		}
		out = append(out, c.rec)
	}
	return out, nil
}

// CheckLimit validates a caller-supplied result limit.
func CheckLimit(n int) error {
	if n < MinLimit || n > MaxLimit {
		return &content.ValidationError{Field: "limit", Reason: "must be a number between 1 and 100"}
	}
	return nil
}

// public filters out drafts; archived records are excluded only by
// explicit caller filtering, which listings do not apply.
func public(recs []content.Record) []content.Record {
	out := make([]content.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.Status == content.StatusDraft {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func sharedTags(a, b content.Record) int {
	n := 0
	for _, t := range a.Tags {
		if b.HasTag(t) {
			n++
		}
	}
	return n
}

func effectiveTime(rec content.Record) time.Time {
	if rec.PublishedAt != nil {
		return *rec.PublishedAt
	}
	return rec.CreatedAt
}

// annotate records which of title/description contained the term and
// builds mark-highlighted copies of those fields.
func annotate(rec content.Record, term string) Match {
	m := Match{Record: rec, MatchedFields: []string{}}
	if term == "" {
		return m
	}
	if containsFold(rec.Title, term) {
		m.MatchedFields = append(m.MatchedFields, "title")
		m.setHighlight("title", highlight(rec.Title, term))
	}
	if containsFold(rec.Description, term) {
		m.MatchedFields = append(m.MatchedFields, "description")
		m.setHighlight("description", highlight(rec.Description, term))
	}
	return m
}

func (m *Match) setHighlight(field, value string) {
	if m.Highlights == nil {
		m.Highlights = make(map[string]string, 2)
	}
	m.Highlights[field] = value
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// highlight wraps every case-insensitive occurrence of term in a bare
// <mark> tag, then runs the allow-list sanitizer so any markup that
// came from the stored text itself is stripped down to its content.
// Matching is done rune by rune against s itself; lowercasing the
// whole string first would shift byte offsets for runes whose case
// pair encodes to a different length.
func highlight(s, term string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if n := foldMatchLen(s[i:], term); n > 0 {
			b.WriteString("<mark>")
			b.WriteString(s[i : i+n])
			b.WriteString("</mark>")
			i += n
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(s[i : i+size])
		i += size
	}
	return content.SanitizeHighlight(b.String())
}

// foldMatchLen reports how many bytes at the start of s lowercase to
// the same runes as term, or 0 when s does not start with term.
func foldMatchLen(s, term string) int {
	if term == "" {
		return 0
	}
	i := 0
	for _, tr := range term {
		r, size := utf8.DecodeRuneInString(s[i:])
		if size == 0 || unicode.ToLower(r) != unicode.ToLower(tr) {
			return 0
		}
		i += size
	}
	return i
}
