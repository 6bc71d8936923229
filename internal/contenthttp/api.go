// Package contenthttp exposes the content store over JSON HTTP: the
// public query surface on /api/content and the authoring surface on
// /api/studio/content. Every route passes the rate governor before any
// parsing; authoring routes additionally pass the admin boundary.
package contenthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mqstudio/studio-server/internal/auth"
	"github.com/mqstudio/studio-server/internal/content"
	"github.com/mqstudio/studio-server/internal/httpmw"
	"github.com/mqstudio/studio-server/internal/log"
	"github.com/mqstudio/studio-server/internal/query"
	"github.com/mqstudio/studio-server/internal/ratelimit"
)

// API implements the content endpoints.
type API struct {
	store    *content.Store
	query    *query.Service
	governor *ratelimit.Window
	admin    auth.Admin
	logger   log.Logger
}

// NewAPI creates the content API handler.
func NewAPI(store *content.Store, q *query.Service, governor *ratelimit.Window, admin auth.Admin, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		store:    store,
		query:    q,
		governor: governor,
		admin:    admin,
		logger:   logger,
	}
}

// RegisterRoutes attaches the content endpoints to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/content", api.HandleQuery)
	r.Post("/api/content", api.HandleAction)

	r.Route("/api/studio/content", func(r chi.Router) {
		r.Use(api.admin.Middleware)
		r.Post("/", api.HandleCreate)
		r.Put("/", api.HandleUpdate)
		r.Delete("/", api.HandleDelete)
	})
}

// HandleQuery serves GET /api/content. At most one primary selector
// (id, slug, search) is honored, in that order; otherwise the
// type/category/featured filters apply, defaulting to all published
// content. limit applies to collection results only.
func (api *API) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.admit(w, r) {
		return
	}

	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid limit: must be a number between 1 and 100"})
			return
		}
		if err := query.CheckLimit(n); err != nil {
			api.writeError(ctx, w, err)
			return
		}
		limit = n
	}

	// primary selectors
	if id := q.Get("id"); id != "" {
		api.serveOne(ctx, w, id)
		return
	}
	if slug := q.Get("slug"); slug != "" {
		if !content.ValidSlug(slug) {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid slug format"})
			return
		}
		api.serveOne(ctx, w, slug)
		return
	}
	if term := q.Get("search"); term != "" {
		matches, err := api.query.Search(ctx, term)
		if err != nil {
			api.writeError(ctx, w, err)
			return
		}
		api.writeJSON(ctx, w, http.StatusOK, matches)
		return
	}

	// collection filters
	var (
		recs []content.Record
		err  error
	)
	switch {
	case q.Get("type") != "":
		typ := content.Type(q.Get("type"))
		if !content.ValidType(typ) {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid type"})
			return
		}
		recs, err = api.query.ByType(ctx, typ)
	case q.Get("category") != "":
		recs, err = api.query.ByCategory(ctx, q.Get("category"))
	case q.Get("featured") == "true":
		recs, err = api.query.Featured(ctx)
	default:
		recs, err = api.query.All(ctx)
	}
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	api.writeJSON(ctx, w, http.StatusOK, recs)
}

// HandleAction serves POST /api/content composite read actions:
// recent, related (getRelated), getBySlug.
func (api *API) HandleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.admit(w, r) {
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	limit := query.DefaultRelated
	if req.Limit != nil {
		limit = *req.Limit
	}
	if err := query.CheckLimit(limit); err != nil {
		api.writeError(ctx, w, err)
		return
	}

	switch req.Action {
	case "recent":
		recs, err := api.query.Recent(ctx, limit)
		if err != nil {
			api.writeError(ctx, w, err)
			return
		}
		api.writeJSON(ctx, w, http.StatusOK, recs)

	case "related", "getRelated":
		id := req.ContentID
		if id == "" {
			id = req.ID
		}
		if id == "" {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "contentId or id required for related content"})
			return
		}
		recs, err := api.query.Related(ctx, id, limit)
		if err != nil {
			api.writeError(ctx, w, err)
			return
		}
		api.writeJSON(ctx, w, http.StatusOK, recs)

	case "getBySlug":
		if req.Slug == "" {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "slug required for getBySlug action"})
			return
		}
		if !content.ValidSlug(req.Slug) {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid slug format"})
			return
		}
		api.serveOne(ctx, w, req.Slug)

	default:
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid action"})
	}
}

// HandleCreate serves POST /api/studio/content.
func (api *API) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.admit(w, r) {
		return
	}

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	body := ""
	if req.Body != nil {
		body = *req.Body
	}
	rec, err := api.store.Create(ctx, content.Type(req.Type), req.Slug, req.fields(), body)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}

	api.logger.Info(ctx, "content created", "type", rec.Type, "slug", rec.Slug)
	api.writeJSON(ctx, w, http.StatusCreated, rec)
}

// HandleUpdate serves PUT /api/studio/content. The optional action
// field selects the publish or archive transition; default is a plain
// metadata/body patch.
func (api *API) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.admit(w, r) {
		return
	}

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	typ := content.Type(req.Type)
	var (
		rec content.Record
		err error
	)
	switch req.Action {
	case "", "update":
		rec, err = api.store.Update(ctx, typ, req.Slug, req.fields(), req.Body)
	case "publish":
		rec, err = api.store.Publish(ctx, typ, req.Slug)
	case "archive":
		rec, err = api.store.Archive(ctx, typ, req.Slug)
	default:
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid action"})
		return
	}
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}

	api.logger.Info(ctx, "content updated",
		"type", rec.Type,
		"slug", rec.Slug,
		"action", req.Action,
		"status", rec.Status,
	)
	api.writeJSON(ctx, w, http.StatusOK, rec)
}

// HandleDelete serves DELETE /api/studio/content?type=...&slug=...
// Deletion is destructive; there is no soft delete.
func (api *API) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.admit(w, r) {
		return
	}

	typ := content.Type(r.URL.Query().Get("type"))
	slug := r.URL.Query().Get("slug")

	if err := api.store.Delete(ctx, typ, slug); err != nil {
		api.writeError(ctx, w, err)
		return
	}

	api.logger.Info(ctx, "content deleted", "type", typ, "slug", slug)
	w.WriteHeader(http.StatusNoContent)
}

// serveOne answers an exact id/slug lookup with 404 semantics on miss.
func (api *API) serveOne(ctx context.Context, w http.ResponseWriter, id string) {
	rec, ok, err := api.query.ByID(ctx, id)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	if !ok {
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "content not found"})
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, rec)
}

// admit runs the rate governor for this request. On denial it writes
// the 429 with retry metadata and reports false.
func (api *API) admit(w http.ResponseWriter, r *http.Request) bool {
	if api.governor == nil {
		return true
	}

	identity := httpmw.ClientIPFromContext(r.Context())
	res := api.governor.Check(identity)
	if res.Allowed {
		return true
	}

	resetAt := res.ResetAt.UTC().Format(time.RFC3339)
	retryAfter := int(time.Until(res.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", resetAt)
	api.writeJSON(r.Context(), w, http.StatusTooManyRequests, errorResponse{
		Error:   "too many requests",
		Message: "Rate limit exceeded. Please try again later.",
		ResetAt: resetAt,
	})
	return false
}

// writeError maps domain errors onto HTTP statuses. Validation,
// not-found, and conflict messages relay verbatim; anything else is
// opaque to the caller and logged with paths stripped.
func (api *API) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case content.IsValidation(err):
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case content.IsNotFound(err):
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "content not found"})
	case content.IsConflict(err):
		api.writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		api.logger.Error(ctx, content.SanitizeError(err), "content request failed")
		api.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
