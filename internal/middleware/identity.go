package middleware

// identity.go extracts the caller identity used to partition rate limit
// buckets.  Logged-in browsers are keyed by their provider subject; everyone
// else is "anon".

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vat-ticketing/internal/session"
)

func viewerID(c echo.Context) string {
    if d := session.FromContext(c); d.Authenticated() {
        return d.Profile.UserID
    }
    return "anon"
}
