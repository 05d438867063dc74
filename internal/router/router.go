package router // package router defines how HTTP routes are registered for the app

import (
    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/iliyamo/vat-ticketing/internal/handler"
    "github.com/iliyamo/vat-ticketing/internal/middleware"
    "github.com/iliyamo/vat-ticketing/internal/session"
)

// LoginPath is where the session gate sends anonymous browsers.
const LoginPath = "/login"

// Deps is everything Setup needs to mount the application.
type Deps struct {
    Sessions  *session.Store
    Home      *handler.HomeHandler
    Auth      *handler.AuthHandler
    Tickets   *handler.TicketHandler
    Gatherer  prometheus.Gatherer
    StaticDir string

    // RateLimit guards the endpoints that reach the identity provider.
    // Cache fronts GET /stats.  Both may be nil.
    RateLimit echo.MiddlewareFunc
    Cache     echo.MiddlewareFunc
}

// Setup installs the session middleware and every route group.
func Setup(e *echo.Echo, d Deps) {
    e.Use(session.Middleware(d.Sessions))
    RegisterRoutes(e, d.Gatherer, d.StaticDir)
    RegisterPublic(e, d.Home, d.Cache)
    RegisterAuth(e, d.Auth, d.RateLimit)
    RegisterTickets(e, d.Tickets, d.Sessions, d.RateLimit)
}

// RegisterRoutes registers the operational endpoints and static assets.
func RegisterRoutes(e *echo.Echo, g prometheus.Gatherer, staticDir string) {
    e.GET("/healthz", handler.Health)
    if g != nil {
        e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
    }
    if staticDir != "" {
        e.Static("/static", staticDir)
    }
}

// RegisterPublic registers the landing page and ticket statistics.
func RegisterPublic(e *echo.Echo, h *handler.HomeHandler, cache echo.MiddlewareFunc) {
    e.GET("/", h.Index)
    e.GET("/stats", h.Stats, optional(cache)...)
}

// RegisterAuth registers the browser login flow.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, rl echo.MiddlewareFunc) {
    e.GET(LoginPath, a.Login, optional(rl)...)
    e.GET("/callback", a.Callback)
    e.GET("/logout", a.Logout)
}

// RegisterTickets registers issuance and the gated ticket page.  The ticket
// is resolved before the session gate runs.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, sessions *session.Store, rl echo.MiddlewareFunc) {
    e.POST("/generate-ticket", t.GenerateTicket, optional(rl)...)
    e.GET("/ticket/:ticket_id", t.TicketDetails,
        t.LoadTicket,
        middleware.RequireSession(sessions, LoginPath),
    )
}

func optional(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
    if m == nil {
        return nil
    }
    return []echo.MiddlewareFunc{m}
}
