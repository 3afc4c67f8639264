package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"steward/internal/audit"
	"steward/internal/export"
	"steward/internal/store"
)

type exportRequest struct {
	Search     string            `json:"search"`
	Filters    map[string]string `json:"filters"`
	Sort       string            `json:"sort"`
	Direction  string            `json:"direction"`
	Attributes []string          `json:"attributes"`
}

// CreateExport handles POST /admin/:resource/exports. The request body
// freezes the collection view to export; generation happens out of
// band.
func (h *Handler) CreateExport(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}
	if done, err := h.authorize(c, res, nil); done {
		return err
	}

	var req exportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, InvalidPayloadError())
		}
	}

	id := GetActor(c)
	actorID := ""
	if id != nil {
		actorID = id.ID
	}

	snap := export.Snapshot{
		Search:    req.Search,
		Filters:   req.Filters,
		Sort:      req.Sort,
		Direction: req.Direction,
	}
	job, err := h.deps.Exports.Create(c.Context(), actorID, res.Name, c.Params("resource"), snap, req.Attributes)
	if err != nil {
		return fmt.Errorf("create export for %s: %w", res.Name, err)
	}

	// A refused enqueue would otherwise leave the job pending forever
	// with nothing to pick it up.
	if !h.deps.Worker.Enqueue(job.ID) {
		if err := h.deps.Exports.MarkFailed(c.Context(), job.ID, "export queue unavailable"); err != nil {
			return fmt.Errorf("mark export failed: %w", err)
		}
		return respondError(c, NewAppError("EXPORT_UNAVAILABLE", 503, "Export queue is not accepting jobs"))
	}

	h.deps.Audit.Record(id, res.Name, job.ID, audit.ActionExport, nil)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": jobJSON(job)})
}

// ListExports handles GET /admin/exports
func (h *Handler) ListExports(c *fiber.Ctx) error {
	id := GetActor(c)
	if id == nil {
		return respondError(c, UnauthorizedError("Missing auth token"))
	}

	jobs, err := h.deps.Exports.List(c.Context(), id.ID)
	if err != nil {
		return fmt.Errorf("list exports: %w", err)
	}

	data := make([]fiber.Map, len(jobs))
	for i, job := range jobs {
		data[i] = jobJSON(job)
	}
	return c.JSON(fiber.Map{"data": data})
}

// ShowExport handles GET /admin/exports/:token
func (h *Handler) ShowExport(c *fiber.Ctx) error {
	job, err := h.findExport(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": jobJSON(job)})
}

// DownloadExport handles GET /admin/exports/:token/download. A ready
// export past its expiry stays ready but can no longer be fetched.
func (h *Handler) DownloadExport(c *fiber.Ctx) error {
	job, err := h.findExport(c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if job.Expired(now) {
		return respondError(c, GoneError("Export has expired"))
	}
	if !job.Downloadable(now) {
		return respondError(c, NewAppError("NOT_READY", 409, "Export is not ready for download"))
	}

	if h.deps.Storage == nil {
		return respondError(c, NewAppError("NOT_READY", 409, "Export file storage is not configured"))
	}
	file, err := h.deps.Storage.Open(c.Context(), job.FilePath)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", job.ResourceName+".csv"))
	return c.SendStream(file)
}

// DestroyExport handles DELETE /admin/exports/:token. Removes the
// attached file before the tracking record.
func (h *Handler) DestroyExport(c *fiber.Ctx) error {
	job, err := h.findExport(c)
	if err != nil {
		return err
	}

	if job.FilePath != "" && h.deps.Storage != nil {
		if err := h.deps.Storage.Delete(c.Context(), job.FilePath); err != nil {
			return fmt.Errorf("delete export file: %w", err)
		}
	}
	if err := h.deps.Exports.Delete(c.Context(), job.ID); err != nil {
		return fmt.Errorf("delete export: %w", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// findExport loads the export by token and enforces ownership: actors
// only see their own exports.
func (h *Handler) findExport(c *fiber.Ctx) (*export.Job, error) {
	id := GetActor(c)
	if id == nil {
		return nil, respondError(c, UnauthorizedError("Missing auth token"))
	}

	token := c.Params("token")
	job, err := h.deps.Exports.GetByToken(c.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, respondError(c, NotFoundError("export", token))
		}
		return nil, fmt.Errorf("find export: %w", err)
	}
	if job.ActorID != id.ID && !id.SuperAdmin {
		return nil, respondError(c, NotFoundError("export", token))
	}
	return job, nil
}

func jobJSON(job *export.Job) fiber.Map {
	m := fiber.Map{
		"token":         job.Token,
		"resource":      job.ResourceName,
		"status":        job.Status,
		"records_count": job.RecordsCount,
		"created_at":    job.CreatedAt,
	}
	if job.Status == export.StatusFailed {
		m["error_message"] = job.ErrorMessage
	}
	if job.StartedAt != nil {
		m["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		m["completed_at"] = job.CompletedAt
	}
	if job.ExpiresAt != nil {
		m["expires_at"] = job.ExpiresAt
	}
	return m
}
