package middleware

import (
	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// IsHTMX returns true if the current request was initiated by HTMX and is NOT
// a boosted navigation. Drawer handlers use this to decide between a fragment
// and a redirect back to the host page.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// Render writes a Templ component to the response with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(statusCode)
	return component.Render(c.Request().Context(), c.Response().Writer)
}
