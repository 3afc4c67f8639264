// Package api exposes the admin engine over HTTP: resource CRUD,
// filter definitions, exports, and login.
package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"steward/internal/audit"
	"steward/internal/authz"
	"steward/internal/dashboard"
	"steward/internal/export"
	"steward/internal/metadata"
	"steward/internal/params"
	"steward/internal/policy"
	"steward/internal/query"
	"steward/internal/storage"
	"steward/internal/store"
)

const (
	defaultPerPage = 25
	maxPerPage     = 200
)

// Deps bundles everything the handler needs; the composition root owns
// the lifecycles.
type Deps struct {
	DB        *store.Store
	Registry  *metadata.Registry
	Composer  *query.Composer
	Loader    *query.Loader
	Counter   *query.Counter
	Policy    *policy.Policy
	Sanitizer *params.Sanitizer
	Adapter   authz.Adapter
	Audit     *audit.Log
	Exports   *export.Store
	Worker    *export.Worker
	Storage   storage.Backend
	Logger    *zap.Logger
}

type Handler struct {
	deps   Deps
	writer *Writer

	// Unauthorized converts a denial into a response. Hosts may replace
	// it; the default is a 403 carrying the denial detail.
	Unauthorized func(c *fiber.Ctx, d authz.Decision) error
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{
		deps:   deps,
		writer: NewWriter(deps.DB, deps.Registry),
	}
	h.Unauthorized = func(c *fiber.Ctx, d authz.Decision) error {
		return respondError(c, ForbiddenError(d.Detail))
	}
	return h
}

// List handles GET /admin/:resource
func (h *Handler) List(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}
	if done, err := h.authorize(c, res, nil); done {
		return err
	}

	req := query.ListRequest{
		Search:    c.Query("search"),
		Filters:   c.Queries(),
		Sort:      c.Query("sort"),
		Direction: c.Query("direction"),
	}
	scope := h.deps.Composer.Scope(res, req)
	scope = authz.ApplyScope(h.deps.Adapter, GetActor(c), scope)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := c.QueryInt("per_page", defaultPerPage)
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	sqlStr, args := scope.SelectSQL(perPage, (page-1)*perPage)
	rows, err := store.QueryRows(c.Context(), h.deps.DB.DB, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("list %s: %w", res.Name, err)
	}

	countSQL, countArgs := scope.CountSQL()
	total, err := store.QueryCount(c.Context(), h.deps.DB.DB, countSQL, countArgs...)
	if err != nil {
		return fmt.Errorf("count %s: %w", res.Name, err)
	}

	includes := h.deps.Policy.CollectionIncludes(res)
	if err := h.deps.Loader.Attach(c.Context(), res, rows, includes); err != nil {
		return err
	}

	attrs := h.deps.Policy.AttributesFor(res, dashboard.ViewCollection)
	data := make([]map[string]any, len(rows))
	for i, row := range rows {
		data[i] = projectRow(res, row, attrs, includes)
	}

	meta := fiber.Map{
		"page":     page,
		"per_page": perPage,
		"total":    total,
	}
	if len(scope.IgnoredParams) > 0 {
		meta["ignored_filters"] = scope.IgnoredParams
	}
	return c.JSON(fiber.Map{"data": data, "meta": meta})
}

// Show handles GET /admin/:resource/:id
func (h *Handler) Show(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	row, err := h.writer.Fetch(c.Context(), res, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(res.Name, id))
		}
		return fmt.Errorf("show %s/%s: %w", res.Name, id, err)
	}

	if done, err := h.authorize(c, res, row); done {
		return err
	}

	includes := h.deps.Policy.ShowIncludes(res)
	rows := []map[string]any{row}
	if err := h.deps.Loader.Attach(c.Context(), res, rows, includes); err != nil {
		return err
	}

	attrs := h.deps.Policy.AttributesFor(res, dashboard.ViewShow)
	data := projectRow(res, rows[0], attrs, includes)
	counts := h.deps.Counter.Counts(c.Context(), res, row)

	return c.JSON(fiber.Map{"data": data, "meta": fiber.Map{"counts": counts}})
}

// Create handles POST /admin/:resource
func (h *Handler) Create(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}
	if done, err := h.authorize(c, res, nil); done {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, InvalidPayloadError())
	}

	attrs := h.deps.Sanitizer.Normalize(res, h.deps.Sanitizer.Permit(res, body))
	row, err := h.writer.Create(c.Context(), res, attrs)
	if err != nil {
		return h.writeError(c, res, err)
	}

	h.deps.Audit.Record(GetActor(c), res.Name, recordID(res, row), audit.ActionCreate, attrs)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// Update handles PUT /admin/:resource/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	existing, err := h.writer.Fetch(c.Context(), res, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(res.Name, id))
		}
		return fmt.Errorf("update %s/%s: %w", res.Name, id, err)
	}

	if done, err := h.authorize(c, res, existing); done {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, InvalidPayloadError())
	}

	attrs := h.deps.Sanitizer.Normalize(res, h.deps.Sanitizer.Permit(res, body))
	row, err := h.writer.Update(c.Context(), res, id, attrs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(res.Name, id))
		}
		return h.writeError(c, res, err)
	}

	h.deps.Audit.Record(GetActor(c), res.Name, id, audit.ActionUpdate, attrs)
	return c.JSON(fiber.Map{"data": row})
}

// Delete handles DELETE /admin/:resource/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	existing, err := h.writer.Fetch(c.Context(), res, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(res.Name, id))
		}
		return fmt.Errorf("delete %s/%s: %w", res.Name, id, err)
	}

	if done, err := h.authorize(c, res, existing); done {
		return err
	}

	if err := h.writer.Delete(c.Context(), res, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(res.Name, id))
		}
		return fmt.Errorf("delete %s/%s: %w", res.Name, id, err)
	}

	h.deps.Audit.Record(GetActor(c), res.Name, id, audit.ActionDelete, nil)
	return c.SendStatus(fiber.StatusNoContent)
}

// FilterDefinitions handles GET /admin/:resource/filters
func (h *Handler) FilterDefinitions(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}
	if done, err := h.authorize(c, res, nil); done {
		return err
	}

	defs := h.deps.Composer.Definitions(res)
	if defs == nil {
		defs = []query.FilterDefinition{}
	}
	return c.JSON(fiber.Map{"data": defs})
}

func (h *Handler) resolveResource(c *fiber.Ctx) (*metadata.Resource, error) {
	name := c.Params("resource")
	res, err := h.deps.Registry.Resolve(name)
	if err != nil {
		return nil, respondError(c, UnknownResourceError(name))
	}
	return res, nil
}

// authorize runs the configured adapter. The bool reports whether the
// request was already answered (denial or adapter failure).
func (h *Handler) authorize(c *fiber.Ctx, res *metadata.Resource, record map[string]any) (bool, error) {
	decision, err := h.deps.Adapter.Authorize(c.Context(), GetActor(c), res, record)
	if err != nil {
		h.deps.Logger.Error("authorization adapter failed",
			zap.String("adapter", h.deps.Adapter.Name()), zap.Error(err))
		return true, respondError(c, NewAppError("AUTHORIZATION_ERROR", 500, "Authorization check failed"))
	}
	if !decision.Authorized {
		return true, h.Unauthorized(c, decision)
	}
	return false, nil
}

func (h *Handler) writeError(c *fiber.Ctx, res *metadata.Resource, err error) error {
	if errors.Is(err, store.ErrUniqueViolation) {
		return respondError(c, ValidationError([]ErrorDetail{{Message: "Record violates a unique constraint"}}))
	}
	return fmt.Errorf("write %s: %w", res.Name, err)
}

// projectRow reduces a stored row to the attributes the view declares,
// replacing association names with their loaded records.
func projectRow(res *metadata.Resource, row map[string]any, attrs []dashboard.AttributeSpec, includes []string) map[string]any {
	out := make(map[string]any)
	out[res.PrimaryKey.Column] = row[res.PrimaryKey.Column]
	for _, spec := range attrs {
		if v, ok := row[spec.Name]; ok {
			out[spec.Name] = v
		}
	}
	for _, name := range includes {
		if v, ok := row[name]; ok {
			out[name] = v
		}
	}
	return out
}

func recordID(res *metadata.Resource, row map[string]any) string {
	return fmt.Sprintf("%v", row[res.PrimaryKey.Column])
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}
