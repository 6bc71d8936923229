package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mqstudio/studio-server/internal/xerrors"
)

// maxDescriptionLen caps free-text description metadata.
const maxDescriptionLen = 500

// bodyPolicy keeps ordinary authoring markup but strips executable
// content (script/style/iframe/object, event handler attributes,
// javascript: URLs). Applied on every write as defense in depth; the
// rendering layer applies its own allow-list pass on top.
var bodyPolicy = bluemonday.UGCPolicy()

// highlightPolicy is the render-side pass for search-highlighted
// fragments: a single non-attributed <mark> element and nothing else.
// Text content of stripped tags is preserved.
var highlightPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("mark")
	return p
}()

// SanitizeBody neutralizes script-like payloads in a record body
// before persistence.
func SanitizeBody(body string) string {
	return bodyPolicy.Sanitize(body)
}

// SanitizeHighlight strips everything except bare <mark> tags from a
// highlighted fragment, keeping the text of anything it removes.
func SanitizeHighlight(fragment string) string {
	return highlightPolicy.Sanitize(fragment)
}

// absPathPattern matches absolute unix paths, the usual way storage
// layout leaks into os errors.
var absPathPattern = regexp.MustCompile(`(/[\w.@-]+)+/?`)

// SanitizeError rewrites err into one safe for logs and responses:
// absolute filesystem paths and environment detail are redacted while
// the failure shape is kept.
func SanitizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := absPathPattern.ReplaceAllString(err.Error(), "[path]")
	return xerrors.New(msg)
}

// sanitizeFields tidies a partial metadata set before it is merged
// into a record: trims and caps strings, sanitizes tag labels, and
// normalizes the category. Type/status validity is checked separately
// by the store, so this never rejects - it only coerces.
func sanitizeFields(f Fields) Fields {
	if f.Title != nil {
		t := strings.TrimSpace(stripTags(*f.Title))
		f.Title = &t
	}
	if f.Description != nil {
		d := strings.TrimSpace(stripTags(*f.Description))
		if len(d) > maxDescriptionLen {
			// back up to a rune boundary so the cut never splits
			// a multi-byte encoding
			cut := maxDescriptionLen
			for cut > 0 && !utf8.RuneStart(d[cut]) {
				cut--
			}
			d = d[:cut]
		}
		f.Description = &d
	}
	if f.Author != nil {
		a := strings.TrimSpace(stripTags(*f.Author))
		f.Author = &a
	}
	if f.Category != nil {
		c := strings.ToLower(strings.TrimSpace(*f.Category))
		f.Category = &c
	}
	if f.SEOTitle != nil {
		s := strings.TrimSpace(stripTags(*f.SEOTitle))
		f.SEOTitle = &s
	}
	if f.SEODescription != nil {
		s := strings.TrimSpace(stripTags(*f.SEODescription))
		f.SEODescription = &s
	}
	if f.Tags != nil {
		f.Tags = sanitizeTags(f.Tags)
	}
	return f
}

// sanitizeTags strips markup from tag labels, drops empties, and
// deduplicates case-insensitively while keeping first-seen order.
func sanitizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(stripTags(t))
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// stripTags removes all markup from a metadata string. Metadata fields
// are plain text; only the body carries markup.
var strictPolicy = bluemonday.StrictPolicy()

func stripTags(s string) string {
	return strictPolicy.Sanitize(s)
}
