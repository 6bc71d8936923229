package content

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mqstudio/studio-server/internal/log"
)

const recordExt = ".mdx"

// Store is the filesystem-backed content repository. It exclusively
// owns read/write access to the storage partitions; nothing else in
// the process touches the content root.
type Store struct {
	root          string
	defaultAuthor string
	now           func() time.Time
	logger        log.Logger
	locks         *slugLocks

	// onOp is called at the start of every repository operation,
	// used for incrementing prometheus counters
	onOp func(op string, typ Type)
}

type Option func(*Store)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDefaultAuthor sets the author recorded when metadata omits one.
func WithDefaultAuthor(author string) Option {
	return func(s *Store) { s.defaultAuthor = author }
}

// WithLogger sets the logger used for skipped-file warnings.
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithOnOp sets a callback invoked per repository operation, used for
// incrementing prometheus counters.
func WithOnOp(fn func(op string, typ Type)) Option {
	return func(s *Store) { s.onOp = fn }
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		root:          dir,
		defaultAuthor: "Admin",
		now:           time.Now,
		logger:        log.Nop(),
		locks:         newSlugLocks(),
	}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}
	return s, nil
}

func (s *Store) partitionDir(typ Type) string {
	// typ has passed ValidType before this is called
	return filepath.Join(s.root, string(typ))
}

func (s *Store) recordPath(typ Type, slug string) string {
	// slug has passed ValidSlug before this is called
	return filepath.Join(s.partitionDir(typ), slug+recordExt)
}

func (s *Store) observe(op string, typ Type) {
	if s.onOp != nil {
		s.onOp(op, typ)
	}
}

// List returns every record of the given type, any status, in
// directory order (sorted by slug). A missing partition is an empty
// result, not an error.
func (s *Store) List(ctx context.Context, typ Type) ([]Record, error) {
	if !ValidType(typ) {
		return nil, invalidf("type", "unknown content type %q", typ)
	}
	s.observe("list", typ)
	return s.readPartition(ctx, typ)
}

// readPartition does the directory scan behind List without touching
// the operation counters; each exported caller observes its own op.
func (s *Store) readPartition(ctx context.Context, typ Type) ([]Record, error) {
	entries, err := os.ReadDir(s.partitionDir(typ))
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, &StorageError{Op: "list", Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Record, 0, len(names))
	for _, name := range names {
		slug := strings.TrimSuffix(name, recordExt)
		if !ValidSlug(slug) {
			continue
		}
		rec, err := s.readRecord(typ, slug)
		if err != nil {
			// one bad file must not take down the whole listing
			s.logger.Warn(ctx, "skipping unreadable record",
				"type", typ,
				"slug", slug,
				"error", SanitizeError(err),
			)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns one record, with ok=false when it does not exist.
// Invalid slug or type is a validation error before any I/O.
func (s *Store) Get(ctx context.Context, typ Type, slug string) (Record, bool, error) {
	if err := s.checkAddress(typ, slug); err != nil {
		return Record{}, false, err
	}
	s.observe("get", typ)

	rec, err := s.readRecord(typ, slug)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, &StorageError{Op: "get", Err: err}
	}
	return rec, true, nil
}

// Create writes a new record. The existence check and write run under
// the per-slug lock, so concurrent creates on one slug resolve to
// exactly one winner and one ConflictError.
func (s *Store) Create(ctx context.Context, typ Type, slug string, f Fields, body string) (Record, error) {
	if err := s.checkAddress(typ, slug); err != nil {
		return Record{}, err
	}
	if err := s.checkFields(typ, f); err != nil {
		return Record{}, err
	}
	s.observe("create", typ)

	unlock := s.locks.acquire(lockKey(typ, slug))
	defer unlock()

	if _, err := os.Stat(s.recordPath(typ, slug)); err == nil {
		return Record{}, &ConflictError{Type: typ, Slug: slug}
	} else if !os.IsNotExist(err) {
		return Record{}, &StorageError{Op: "create", Err: err}
	}

	now := s.now().UTC()
	rec := Record{
		ID:        slug,
		Slug:      slug,
		Type:      typ,
		Title:     "Untitled",
		Author:    s.defaultAuthor,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusDraft,
		Tags:      []string{},
		Body:      SanitizeBody(body),
	}
	rec = applyFields(rec, sanitizeFields(f))

	if err := s.writeRecord(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Update merges the patch over the existing record, always refreshing
// UpdatedAt and never touching CreatedAt. The body is replaced only
// when non-nil.
func (s *Store) Update(ctx context.Context, typ Type, slug string, f Fields, body *string) (Record, error) {
	if err := s.checkAddress(typ, slug); err != nil {
		return Record{}, err
	}
	if err := s.checkFields(typ, f); err != nil {
		return Record{}, err
	}
	s.observe("update", typ)

	unlock := s.locks.acquire(lockKey(typ, slug))
	defer unlock()

	rec, err := s.readRecord(typ, slug)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, &NotFoundError{Type: typ, Slug: slug}
		}
		return Record{}, &StorageError{Op: "update", Err: err}
	}

	rec = applyFields(rec, sanitizeFields(f))
	rec.UpdatedAt = s.now().UTC()
	if body != nil {
		rec.Body = SanitizeBody(*body)
	}

	if err := s.writeRecord(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes the record permanently. There is no soft delete.
func (s *Store) Delete(ctx context.Context, typ Type, slug string) error {
	if err := s.checkAddress(typ, slug); err != nil {
		return err
	}
	s.observe("delete", typ)

	unlock := s.locks.acquire(lockKey(typ, slug))
	defer unlock()

	if err := os.Remove(s.recordPath(typ, slug)); err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{Type: typ, Slug: slug}
		}
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// Publish transitions the record to published and stamps PublishedAt.
func (s *Store) Publish(ctx context.Context, typ Type, slug string) (Record, error) {
	status := StatusPublished
	at := s.now().UTC()
	return s.Update(ctx, typ, slug, Fields{Status: &status, PublishedAt: &at}, nil)
}

// Archive transitions the record to archived.
func (s *Store) Archive(ctx context.Context, typ Type, slug string) (Record, error) {
	status := StatusArchived
	return s.Update(ctx, typ, slug, Fields{Status: &status}, nil)
}

// Search returns records whose title or description contains the query
// case-insensitively. The body is deliberately not searched, results
// keep disk order, and there is no relevance ranking.
func (s *Store) Search(ctx context.Context, typ Type, query string) ([]Record, error) {
	if !ValidType(typ) {
		return nil, invalidf("type", "unknown content type %q", typ)
	}
	s.observe("search", typ)

	all, err := s.readPartition(ctx, typ)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	out := make([]Record, 0)
	for _, rec := range all {
		if strings.Contains(strings.ToLower(rec.Title), q) ||
			strings.Contains(strings.ToLower(rec.Description), q) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ByTag returns records carrying the tag, matched case-insensitively.
func (s *Store) ByTag(ctx context.Context, typ Type, tag string) ([]Record, error) {
	if !ValidType(typ) {
		return nil, invalidf("type", "unknown content type %q", typ)
	}
	s.observe("byTag", typ)

	all, err := s.readPartition(ctx, typ)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0)
	for _, rec := range all {
		if rec.HasTag(tag) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// checkAddress validates the (type, slug) pair before any path join.
func (s *Store) checkAddress(typ Type, slug string) error {
	if !ValidType(typ) {
		return invalidf("type", "unknown content type %q", typ)
	}
	if !ValidSlug(slug) {
		return invalidf("slug", "must be lowercase letters, numbers, and hyphens, 1-100 chars")
	}
	return nil
}

// checkFields rejects invalid enum values in a metadata patch.
func (s *Store) checkFields(typ Type, f Fields) error {
	if f.Status != nil && !ValidStatus(*f.Status) {
		return invalidf("status", "must be one of draft, published, archived")
	}
	if f.Category != nil && *f.Category != "" {
		if typ != TypeMusing {
			return invalidf("category", "only musings carry a category")
		}
		if !ValidCategory(strings.ToLower(*f.Category)) {
			return invalidf("category", "must be one of thinking, feeling, doing")
		}
	}
	return nil
}

// applyFields merges a sanitized patch over a record. Identity and
// timestamps are never touched here.
func applyFields(rec Record, f Fields) Record {
	if f.Title != nil && *f.Title != "" {
		rec.Title = *f.Title
	}
	if f.Description != nil {
		rec.Description = *f.Description
	}
	if f.Author != nil && *f.Author != "" {
		rec.Author = *f.Author
	}
	if f.Status != nil {
		rec.Status = *f.Status
	}
	if f.PublishedAt != nil {
		at := *f.PublishedAt
		rec.PublishedAt = &at
	}
	if f.Featured != nil {
		rec.Featured = *f.Featured
	}
	if f.Tags != nil {
		rec.Tags = f.Tags
	}
	if f.Category != nil {
		rec.Category = strings.ToLower(*f.Category)
	}
	if f.SEOTitle != nil {
		rec.SEOTitle = *f.SEOTitle
	}
	if f.SEODescription != nil {
		rec.SEODescription = *f.SEODescription
	}
	return rec
}

// readRecord loads and decodes one file. Raw os errors (including
// not-exist) propagate so callers can map them; everything leaving the
// store's public surface is wrapped or sanitized there.
func (s *Store) readRecord(typ Type, slug string) (Record, error) {
	data, err := os.ReadFile(s.recordPath(typ, slug))
	if err != nil {
		return Record{}, err
	}
	meta, body, err := decodeDocument(data)
	if err != nil {
		return Record{}, err
	}
	rec := coerceRecord(typ, slug, meta, SanitizeBody(body), s.defaultAuthor, s.now().UTC())
	return rec, nil
}

// writeRecord persists a record with the temp file -> fsync -> atomic
// rename pattern, so readers never observe a partial document.
func (s *Store) writeRecord(rec Record) error {
	data, err := encodeDocument(rec)
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}

	dir := s.partitionDir(rec.Type)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &StorageError{Op: "write", Err: err}
	}

	path := s.recordPath(rec.Type, rec.Slug)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &StorageError{Op: "write", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &StorageError{Op: "write", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &StorageError{Op: "write", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}

func lockKey(typ Type, slug string) string {
	return string(typ) + "/" + slug
}

// slugLocks serializes writes per (type, slug) while letting writes to
// different slugs proceed in parallel. Entries are refcounted and
// removed when the last holder releases, so the table stays small.
type slugLocks struct {
	mu sync.Mutex
	m  map[string]*slugLock
}

type slugLock struct {
	sync.Mutex
	refs int
}

func newSlugLocks() *slugLocks {
	return &slugLocks{m: make(map[string]*slugLock)}
}

func (l *slugLocks) acquire(key string) (release func()) {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &slugLock{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
