package content

import (
	"bytes"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mqstudio/studio-server/internal/xerrors"
)

// frontmatter is the on-disk metadata header. Field names here are the
// wire format; keep them stable.
type frontmatter struct {
	Title          string     `yaml:"title"`
	Description    string     `yaml:"description,omitempty"`
	Author         string     `yaml:"author"`
	CreatedAt      time.Time  `yaml:"createdAt"`
	UpdatedAt      time.Time  `yaml:"updatedAt"`
	PublishedAt    *time.Time `yaml:"publishedAt,omitempty"`
	Status         Status     `yaml:"status"`
	Featured       bool       `yaml:"featured"`
	Tags           []string   `yaml:"tags,omitempty"`
	Category       string     `yaml:"category,omitempty"`
	SEOTitle       string     `yaml:"seoTitle,omitempty"`
	SEODescription string     `yaml:"seoDescription,omitempty"`
}

var fmFence = []byte("---\n")

// encodeDocument renders a record as frontmatter header + body.
func encodeDocument(r Record) ([]byte, error) {
	fm := frontmatter{
		Title:          r.Title,
		Description:    r.Description,
		Author:         r.Author,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		PublishedAt:    r.PublishedAt,
		Status:         r.Status,
		Featured:       r.Featured,
		Tags:           r.Tags,
		Category:       r.Category,
		SEOTitle:       r.SEOTitle,
		SEODescription: r.SEODescription,
	}
	meta, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, xerrors.Wrap(err, "encode frontmatter")
	}

	var buf bytes.Buffer
	buf.Grow(len(meta) + len(r.Body) + 16)
	buf.Write(fmFence)
	buf.Write(meta)
	buf.Write(fmFence)
	buf.WriteByte('\n')
	buf.WriteString(r.Body)
	return buf.Bytes(), nil
}

// decodeDocument splits a document into its raw metadata map and body.
// Headerless files decode as body-only with empty metadata, matching
// permissive frontmatter parsers; typed coercion happens in
// coerceRecord, never here.
func decodeDocument(data []byte) (map[string]any, string, error) {
	if !bytes.HasPrefix(data, fmFence) {
		return map[string]any{}, string(data), nil
	}
	rest := data[len(fmFence):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, "", xerrors.New("unterminated frontmatter header")
	}
	header := rest[:end+1]
	body := rest[end+len("\n---"):]
	// swallow the fence's own newline and one blank separator line
	body = bytes.TrimPrefix(body, []byte("\n"))
	body = bytes.TrimPrefix(body, []byte("\n"))

	meta := map[string]any{}
	if err := yaml.Unmarshal(header, &meta); err != nil {
		return nil, "", xerrors.Wrap(err, "decode frontmatter")
	}
	return meta, string(body), nil
}

// coerceRecord applies the typed-variant-per-field rules to a raw
// metadata map: each known field is coerced to its expected type with
// an explicit default on absence or wrong type, and unknown keys are
// dropped. Raw user metadata never passes through unchecked.
func coerceRecord(typ Type, slug string, meta map[string]any, body, defaultAuthor string, now time.Time) Record {
	r := Record{
		ID:          slug,
		Slug:        slug,
		Type:        typ,
		Title:       metaString(meta, "title", "Untitled"),
		Description: metaString(meta, "description", ""),
		Author:      metaString(meta, "author", defaultAuthor),
		CreatedAt:   metaTime(meta, "createdAt", now),
		UpdatedAt:   metaTime(meta, "updatedAt", now),
		Featured:    metaBool(meta, "featured"),
		Tags:        metaStrings(meta, "tags"),
		Body:        body,
	}

	if t, ok := metaTimeOK(meta, "publishedAt"); ok {
		r.PublishedAt = &t
	}

	status := Status(metaString(meta, "status", string(StatusDraft)))
	if !ValidStatus(status) {
		status = StatusDraft
	}
	r.Status = status

	if typ == TypeMusing {
		if c := metaString(meta, "category", ""); ValidCategory(c) {
			r.Category = c
		}
	}

	r.SEOTitle = metaString(meta, "seoTitle", "")
	r.SEODescription = metaString(meta, "seoDescription", "")
	return r
}

func metaString(meta map[string]any, key, def string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return def
}

func metaBool(meta map[string]any, key string) bool {
	b, _ := meta[key].(bool)
	return b
}

func metaStrings(meta map[string]any, key string) []string {
	raw, ok := meta[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func metaTime(meta map[string]any, key string, def time.Time) time.Time {
	if t, ok := metaTimeOK(meta, key); ok {
		return t
	}
	return def
}

func metaTimeOK(meta map[string]any, key string) (time.Time, bool) {
	switch v := meta[key].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
