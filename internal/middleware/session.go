package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	drawerCookieName = "beacon_drawer"
	drawerContextKey = "drawer_session"
)

// DrawerSession ensures every browser has a drawer session id cookie and
// exposes it via DrawerSessionID. The id only selects in-memory drawer
// state; it is not an authentication credential.
func DrawerSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			id := ""
			if cookie, err := req.Cookie(drawerCookieName); err == nil {
				if parsed, err := uuid.Parse(cookie.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     drawerCookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   isSecure(req),
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(drawerContextKey, id)
			return next(c)
		}
	}
}

// DrawerSessionID returns the session id set by DrawerSession, or "" when
// the middleware did not run.
func DrawerSessionID(c echo.Context) string {
	id, _ := c.Get(drawerContextKey).(string)
	return id
}
