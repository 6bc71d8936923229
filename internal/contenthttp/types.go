package contenthttp

import "github.com/mqstudio/studio-server/internal/content"

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	ResetAt string `json:"resetAt,omitempty"`
}

// actionRequest is the POST /api/content body for composite read
// actions. ContentID and ID are aliases; Limit defaults to 6.
type actionRequest struct {
	Action    string `json:"action"`
	ContentID string `json:"contentId,omitempty"`
	ID        string `json:"id,omitempty"`
	Slug      string `json:"slug,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
}

// upsertRequest is the authoring payload for create and update.
// Pointer fields distinguish "absent" from zero values so updates can
// patch selectively.
type upsertRequest struct {
	Type           string   `json:"type"`
	Slug           string   `json:"slug"`
	Action         string   `json:"action,omitempty"`
	Title          *string  `json:"title,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Author         *string  `json:"author,omitempty"`
	Status         *string  `json:"status,omitempty"`
	Featured       *bool    `json:"featured,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Category       *string  `json:"category,omitempty"`
	SEOTitle       *string  `json:"seoTitle,omitempty"`
	SEODescription *string  `json:"seoDescription,omitempty"`
	Body           *string  `json:"body,omitempty"`
}

// fields converts the request metadata into a store patch.
func (req upsertRequest) fields() content.Fields {
	f := content.Fields{
		Title:          req.Title,
		Description:    req.Description,
		Author:         req.Author,
		Featured:       req.Featured,
		Tags:           req.Tags,
		Category:       req.Category,
		SEOTitle:       req.SEOTitle,
		SEODescription: req.SEODescription,
	}
	if req.Status != nil {
		status := content.Status(*req.Status)
		f.Status = &status
	}
	return f
}
