package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	csrfTokenLength = 32
	csrfCookieName  = "beacon_csrf"
	csrfHeaderName  = "X-CSRF-Token"
	csrfFormField   = "csrf_token"
	csrfContextKey  = "csrf_token"
)

// CSRF returns double-submit cookie protection for the drawer routes. The
// drawer is driven by the session cookie, so every state-changing request
// must echo the cookie's token in the X-CSRF-Token header or csrf_token
// form field. The JSON API carries no cookie state and is not wrapped.
func CSRF() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			token := ""
			if cookie, err := req.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
				token = cookie.Value
			} else {
				generated, err := generateCSRFToken()
				if err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate CSRF token")
				}
				token = generated
				c.SetCookie(&http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: false, // read by the host page's htmx config
					Secure:   isSecure(req),
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(csrfContextKey, token)

			if isSafeMethod(req.Method) {
				return next(c)
			}

			submitted := req.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = req.FormValue(csrfFormField)
			}
			if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid or missing CSRF token")
			}
			return next(c)
		}
	}
}

// GetCSRFToken returns the token CSRF stored for this request.
func GetCSRFToken(c echo.Context) string {
	token, _ := c.Get(csrfContextKey).(string)
	return token
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isSecure(req *http.Request) bool {
	return req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https"
}

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
