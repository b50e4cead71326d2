package notes

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the notes API on the /api/v1 group.
func RegisterRoutes(api *echo.Group, h *Handler) {
	api.GET("/campaigns/:id/notes", h.Get)
	api.PUT("/campaigns/:id/notes", h.Put)
}
