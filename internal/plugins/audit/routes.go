package audit

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the audit routes. JSON endpoints go on api (the
// /api/v1 group); drawer fragments are mounted on e behind drawerMW, which
// must include the drawer session middleware.
func RegisterRoutes(e *echo.Echo, api *echo.Group, h *Handler, drawerMW ...echo.MiddlewareFunc) {
	api.POST("/campaigns/:id/audit/create", h.RecordCreate)
	api.POST("/campaigns/:id/audit/edit", h.RecordEdit)
	api.GET("/campaigns/:id/audit", h.List)
	api.GET("/campaigns/:id/audit/view", h.View)
	api.DELETE("/campaigns/:id/audit", h.ClearCampaign)
	api.DELETE("/campaigns/:id/adgroups/:agid/audit", h.ClearAdGroup)
	api.POST("/campaigns/:id/audit/reconcile", h.Reconcile)

	api.PUT("/entities/campaign-groups", h.ReplaceCampaignGroups)
	api.PUT("/entities/adgroups", h.ReplaceAdGroups)

	dg := e.Group("/campaigns/:id/audit/drawer", drawerMW...)
	dg.GET("", h.OpenDrawer)
	dg.DELETE("", h.CloseDrawer)
	dg.POST("/sections/:sid/toggle", h.ToggleSection)
	dg.POST("/sections/:sid/collapse", h.CollapseSection)
	dg.POST("/rows/:sid/:field", h.Row)
	dg.POST("/clear", h.ClearEdits)
	dg.PUT("/notes", h.SaveNotes)
	dg.GET("/export.csv", h.ExportCSV)
}
