package app

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/beacon/internal/middleware"
	"github.com/keyxmakerx/beacon/internal/plugins/audit"
	"github.com/keyxmakerx/beacon/internal/widgets/notes"
)

// RegisterRoutes builds the repositories, services and handlers over the
// app's store and mounts every route. This is the single place where routes
// are aggregated.
func (a *App) RegisterRoutes() {
	e := a.Echo

	e.GET("/healthz", a.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1", middleware.RateLimit(a.Config.HTTP.RateLimit, a.Config.HTTP.RateWindow))

	// notes widget
	noteSvc := notes.NewNoteService(notes.NewNoteRepository(a.Store))
	notes.RegisterRoutes(api, notes.NewHandler(noteSvc))

	// audit plugin
	auditSvc := audit.NewAuditService(
		audit.NewEventRepository(a.Store),
		audit.NewEntityRepository(a.Store),
		noteSvc,
		a.Catalog,
		audit.WithDefaultUser(a.Config.Audit.DefaultUser),
	)
	sessions := audit.NewDrawerSessions(a.Config.Audit.MaxDrawerSessions, func() *audit.Drawer {
		return audit.NewDrawer(auditSvc, a.Catalog)
	})
	audit.RegisterRoutes(e, api, audit.NewHandler(auditSvc, a.Catalog, sessions),
		middleware.DrawerSession(),
		middleware.CSRF(),
	)
}

// healthz reports whether the configured backend answers.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()

	status := map[string]string{"status": "ok", "storage": a.Config.Storage.Backend}
	var err error
	switch {
	case a.DB != nil:
		err = a.DB.PingContext(ctx)
	case a.Redis != nil:
		err = a.Redis.Ping(ctx).Err()
	}
	if err != nil {
		status["status"] = "unavailable"
		status["error"] = err.Error()
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}
