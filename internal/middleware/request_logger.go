package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
)

// RequestLogger logs HTTP requests with method, path, status and duration.
func RequestLogger(log *zap.SugaredLogger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // Let echo write the error response so the logged status is final.
                c.Error(err)
            }
            dur := time.Since(start)
            res := c.Response()
            reqID := res.Header().Get(echo.HeaderXRequestID)
            if reqID == "" {
                reqID = c.Request().Header.Get(echo.HeaderXRequestID)
            }
            log.Infow("http",
                "method", c.Request().Method,
                "path", c.Request().URL.RequestURI(),
                "status", res.Status,
                "duration_ms", float64(dur.Microseconds())/1000.0,
                "request_id", reqID,
            )
            return nil
        }
    }
}
