package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/vat-ticketing/internal/session"
)

// TicketCounter reports the number of issued tickets.
type TicketCounter interface {
    Count(ctx context.Context) (int, error)
}

// HomeHandler serves the landing page and the public ticket statistics.
type HomeHandler struct {
    Tickets  TicketCounter
    Sessions *session.Store
    Log      *zap.SugaredLogger
}

func NewHomeHandler(t TicketCounter, s *session.Store, log *zap.SugaredLogger) *HomeHandler {
    return &HomeHandler{Tickets: t, Sessions: s, Log: log}
}

type indexView struct {
    TicketCount int
    Viewer      string
    Flashes     []session.Flash
}

// Index renders the landing page with the ticket count and any pending
// flash messages, which are consumed by this view.
func (h *HomeHandler) Index(c echo.Context) error {
    n, err := h.Tickets.Count(c.Request().Context())
    if err != nil {
        h.Log.Errorw("count tickets", "error", err)
        return c.String(http.StatusInternalServerError, "internal error")
    }

    d := session.FromContext(c)
    view := indexView{TicketCount: n, Flashes: d.PopFlashes()}
    if d.Authenticated() {
        view.Viewer = d.Profile.Name
    }
    if len(view.Flashes) > 0 {
        if err := h.Sessions.Save(c.Response(), d); err != nil {
            h.Log.Warnw("save session", "error", err)
        }
    }
    return c.Render(http.StatusOK, "index.html", view)
}

// Stats returns {"ticket_count": n}.
func (h *HomeHandler) Stats(c echo.Context) error {
    n, err := h.Tickets.Count(c.Request().Context())
    if err != nil {
        h.Log.Errorw("count tickets", "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"ticket_count": n})
}
