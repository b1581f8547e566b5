package web

import "github.com/gofiber/fiber/v3"

// Mount registers the API routes under router. Every route requires a caller identity.
func (h *APIHandlers) Mount(router fiber.Router) {
	api := router.Group("/api", RequireUser())

	w := api.Group("/workflows")
	w.Get("/sync", h.SyncRead)
	w.Post("/sync", h.SyncWrite)
	w.Post("/:id/duplicate", h.Duplicate)
	w.Post("/:id/autolayout", h.AutoLayout)
	w.Get("/:id/status", h.Status)

	cp := api.Group("/copilot/checkpoints")
	cp.Post("/", h.CreateCheckpoint)
	cp.Get("/", h.ListCheckpoints)
	cp.Post("/revert", h.RevertCheckpoint)

	ws := api.Group("/workspaces")
	ws.Post("/", h.CreateWorkspace)
	ws.Post("/:id/members", h.AddWorkspaceMember)
}
