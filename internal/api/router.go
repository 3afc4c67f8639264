package api

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the admin surface. Fixed paths are mounted
// before the generic :resource routes so their names are never treated
// as resource names.
func RegisterRoutes(app *fiber.App, h *Handler, login *LoginHandler, middleware ...fiber.Handler) {
	app.Post("/admin/login", login.Login)

	admin := app.Group("/admin", middleware...)

	admin.Get("/overview", h.Overview)
	admin.Get("/audit_logs", h.ListAuditLogs)

	admin.Get("/exports", h.ListExports)
	admin.Get("/exports/:token", h.ShowExport)
	admin.Get("/exports/:token/download", h.DownloadExport)
	admin.Delete("/exports/:token", h.DestroyExport)

	admin.Get("/:resource/filters", h.FilterDefinitions)
	admin.Post("/:resource/exports", h.CreateExport)
	admin.Get("/:resource", h.List)
	admin.Get("/:resource/:id", h.Show)
	admin.Post("/:resource", h.Create)
	admin.Put("/:resource/:id", h.Update)
	admin.Delete("/:resource/:id", h.Delete)
}
