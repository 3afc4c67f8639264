package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"steward/internal/audit"
	"steward/internal/metadata"
	"steward/internal/store"
)

// Overview handles GET /admin/overview. It lists every administrable
// resource the actor may access together with its live row count. A
// count that fails is reported as zero so one broken table never takes
// down the landing page.
func (h *Handler) Overview(c *fiber.Ctx) error {
	id := GetActor(c)
	if id == nil {
		return respondError(c, UnauthorizedError("Missing auth token"))
	}

	resources := h.deps.Registry.AllResources()
	sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })

	data := make([]fiber.Map, 0, len(resources))
	for _, res := range resources {
		decision, err := h.deps.Adapter.Authorize(c.Context(), id, res, nil)
		if err != nil {
			h.deps.Logger.Warn("overview authorization failed",
				zap.String("resource", res.Name), zap.Error(err))
			continue
		}
		if !decision.Authorized {
			continue
		}

		count, err := store.QueryCount(c.Context(), h.deps.DB.DB, "SELECT COUNT(*) FROM "+res.Table)
		if err != nil {
			h.deps.Logger.Warn("cannot count resource",
				zap.String("resource", res.Name), zap.Error(err))
			count = 0
		}

		data = append(data, fiber.Map{
			"name":  res.Name,
			"label": humanize(res.Name),
			"table": res.Table,
			"count": count,
			"path":  "/admin/" + metadata.Pluralize(res.Name),
		})
	}
	return c.JSON(fiber.Map{"data": data})
}

// ListAuditLogs handles GET /admin/audit_logs, a read-only view over
// the recorded trail. The trail exposes who touched what, so it stays
// behind the super admin flag regardless of the configured adapter.
func (h *Handler) ListAuditLogs(c *fiber.Ctx) error {
	id := GetActor(c)
	if id == nil {
		return respondError(c, UnauthorizedError("Missing auth token"))
	}
	if !id.SuperAdmin {
		return respondError(c, ForbiddenError(fmt.Sprintf("actor %s may not read the audit log", id.ID)))
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := c.QueryInt("per_page", defaultPerPage)
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	// Entries still sitting in the buffer belong in the view too.
	h.deps.Audit.Flush()
	entries, total, err := h.deps.Audit.Recent(c.Context(), audit.ListQuery{
		Action:       c.Query("action_type"),
		ResourceType: c.Query("resource_type"),
		Term:         c.Query("query"),
		Limit:        perPage,
		Offset:       (page - 1) * perPage,
	})
	if err != nil {
		return fmt.Errorf("list audit logs: %w", err)
	}

	return c.JSON(fiber.Map{
		"data": entries,
		"meta": fiber.Map{"page": page, "per_page": perPage, "total": total},
	})
}

func humanize(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
