package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vat-ticketing/internal/session"
)

// RequireSession returns a middleware that only lets requests with an
// authenticated profile through.  Anonymous requests have their URL recorded
// in the session as the post-login destination and are redirected to
// loginPath.  It expects session.Middleware to run first.
func RequireSession(store *session.Store, loginPath string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            d := session.FromContext(c)
            if d.Authenticated() {
                return next(c)
            }
            // Only the path and query are kept so the redirect after login
            // always stays on this site.
            d.Next = c.Request().URL.RequestURI()
            if err := store.Save(c.Response(), d); err != nil {
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session unavailable"})
            }
            return c.Redirect(http.StatusFound, loginPath)
        }
    }
}
