package content

import "regexp"

// slugPattern rejects everything that could escape the partition when
// joined into a path: separators, dot segments, uppercase, leading or
// trailing hyphens. Validation happens before any filesystem call.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

const maxSlugLen = 100

// ValidSlug reports whether s is a well-formed slug: lowercase
// alphanumerics and single interior hyphens, length 1..100.
func ValidSlug(s string) bool {
	if len(s) == 0 || len(s) > maxSlugLen {
		return false
	}
	return slugPattern.MatchString(s)
}

// ValidType reports whether t is one of the closed content types.
func ValidType(t Type) bool {
	switch t {
	case TypeMusing, TypeArtwork, TypePublication, TypeProject:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the closed lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// ValidCategory reports whether c is a valid musings category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryThinking, CategoryFeeling, CategoryDoing:
		return true
	}
	return false
}
