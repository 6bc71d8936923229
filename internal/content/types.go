package content

import (
	"strings"
	"time"
)

// Type is the closed set of content kinds, each owning one storage
// partition under the content root.
type Type string

const (
	TypeMusing      Type = "musing"
	TypeArtwork     Type = "artwork"
	TypePublication Type = "publication"
	TypeProject     Type = "project"
)

// Types lists all content types in their canonical order. Cross-type
// scans (by-id lookup, recent, search-all) iterate in this order so
// results are deterministic.
func Types() []Type {
	return []Type{TypeMusing, TypeArtwork, TypePublication, TypeProject}
}

// Status is the publication lifecycle state of a record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Categories for the musings thinking/feeling/doing axis.
const (
	CategoryThinking = "thinking"
	CategoryFeeling  = "feeling"
	CategoryDoing    = "doing"
)

// Record is the canonical content entity. ID and Slug are identical
// and unique within a (type, partition); both are immutable after
// creation, as is Type. CreatedAt is set once; UpdatedAt is rewritten
// by every mutation; PublishedAt only by the publish transition.
type Record struct {
	ID             string     `json:"id"`
	Slug           string     `json:"slug"`
	Type           Type       `json:"type"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Author         string     `json:"author"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	Status         Status     `json:"status"`
	Featured       bool       `json:"featured"`
	Tags           []string   `json:"tags"`
	Category       string     `json:"category,omitempty"`
	SEOTitle       string     `json:"seoTitle,omitempty"`
	SEODescription string     `json:"seoDescription,omitempty"`
	Body           string     `json:"body,omitempty"`
}

// Fields is a partial metadata set used for creates and update patches.
// Nil pointer / nil slice means "not provided, leave as-is".
type Fields struct {
	Title          *string
	Description    *string
	Author         *string
	Status         *Status
	PublishedAt    *time.Time
	Featured       *bool
	Tags           []string
	Category       *string
	SEOTitle       *string
	SEODescription *string
}

// HasTag reports whether the record carries the tag, matching
// case-insensitively.
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
