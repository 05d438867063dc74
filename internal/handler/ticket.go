package handler

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/vat-ticketing/internal/model"
    "github.com/iliyamo/vat-ticketing/internal/service"
    "github.com/iliyamo/vat-ticketing/internal/session"
)

// TicketIssuer is the part of service.TicketService the HTTP layer uses.
type TicketIssuer interface {
    Issue(ctx context.Context, req service.IssueRequest) (service.IssuedTicket, error)
    Get(ctx context.Context, id string) (model.Ticket, error)
}

// QRLocator maps a rendered QR file name to its public URL.
type QRLocator interface {
    URL(name string) string
}

// TicketHandler serves ticket issuance and the ticket detail page.
type TicketHandler struct {
    Tickets TicketIssuer
    QR      QRLocator
    Log     *zap.SugaredLogger
}

func NewTicketHandler(t TicketIssuer, qr QRLocator, log *zap.SugaredLogger) *TicketHandler {
    return &TicketHandler{Tickets: t, QR: qr, Log: log}
}

const ticketKey = "ticket"

type generateTicketReq struct {
    VATID     string `json:"vat_id"`
    FirstName string `json:"first_name"`
    LastName  string `json:"last_name"`
}

// GenerateTicket issues a ticket for the posted holder details.
func (h *TicketHandler) GenerateTicket(c echo.Context) error {
    var req generateTicketReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }

    out, err := h.Tickets.Issue(c.Request().Context(), service.IssueRequest{
        VATID:     req.VATID,
        FirstName: req.FirstName,
        LastName:  req.LastName,
    })
    switch {
    case err == nil:
    case errors.Is(err, service.ErrInvalidInput):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrQuotaExceeded):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "Maximum of three tickets allowed per VAT ID"})
    case errors.Is(err, service.ErrAuthUnavailable):
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to authenticate with external API"})
    default:
        h.Log.Errorw("issue ticket", "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }

    return c.JSON(http.StatusOK, echo.Map{
        "message":   "Ticket generated",
        "ticket_id": out.Ticket.ID,
        "qr_code":   out.QRCodeURL,
    })
}

// LoadTicket resolves :ticket_id before anything else on the route so unknown
// tickets are 404 whether or not the browser is logged in.
func (h *TicketHandler) LoadTicket(next echo.HandlerFunc) echo.HandlerFunc {
    return func(c echo.Context) error {
        t, err := h.Tickets.Get(c.Request().Context(), c.Param("ticket_id"))
        if errors.Is(err, service.ErrNotFound) {
            return c.String(http.StatusNotFound, "ticket not found")
        }
        if err != nil {
            h.Log.Errorw("load ticket", "error", err)
            return c.String(http.StatusInternalServerError, "internal error")
        }
        c.Set(ticketKey, t)
        return next(c)
    }
}

type ticketView struct {
    TicketID  string
    Ticket    model.Ticket
    QRCodeURL string
    Viewer    string
}

// TicketDetails renders the ticket loaded by LoadTicket for the logged-in
// viewer.
func (h *TicketHandler) TicketDetails(c echo.Context) error {
    t, ok := c.Get(ticketKey).(model.Ticket)
    if !ok {
        return c.String(http.StatusNotFound, "ticket not found")
    }
    view := ticketView{
        TicketID:  t.ID,
        Ticket:    t,
        QRCodeURL: h.QR.URL(t.ID + ".png"),
    }
    if d := session.FromContext(c); d.Authenticated() {
        view.Viewer = d.Profile.Name
    }
    return c.Render(http.StatusOK, "ticket_details.html", view)
}
