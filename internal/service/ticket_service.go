// Package service holds the ticket issuing rules: quota enforcement, identifier
// generation and QR code production.
package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"
    "unicode/utf8"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/iliyamo/vat-ticketing/internal/metrics"
    "github.com/iliyamo/vat-ticketing/internal/model"
    q "github.com/iliyamo/vat-ticketing/internal/queue"
    "github.com/iliyamo/vat-ticketing/internal/repository"
)

var (
    // ErrAuthUnavailable means the machine-to-machine credential could not be
    // obtained; nothing was written.
    ErrAuthUnavailable = errors.New("failed to authenticate with external API")
    // ErrQuotaExceeded means the VAT ID already holds the maximum number of tickets.
    ErrQuotaExceeded = errors.New("maximum of three tickets allowed per VAT ID")
    // ErrNotFound means no ticket has the requested identifier.
    ErrNotFound = errors.New("ticket not found")
    // ErrInvalidInput wraps request validation failures.
    ErrInvalidInput = errors.New("invalid input")
)

// Column widths of the tickets table.
const (
    maxVATLen  = 20
    maxNameLen = 50
)

// TicketStore is the persistence the service needs.
type TicketStore interface {
    Count(ctx context.Context) (int, error)
    GetByID(ctx context.Context, id string) (model.Ticket, error)
    CreateWithQuota(ctx context.Context, t *model.Ticket, limit int) error
}

// TokenSource yields the machine-to-machine access token.
type TokenSource interface {
    ServiceToken(ctx context.Context) (string, error)
}

// Renderer encodes a string as a PNG image.
type Renderer interface {
    Render(content string) ([]byte, error)
}

// ImageStore persists rendered images and maps them to public URLs.
type ImageStore interface {
    Save(ctx context.Context, name string, data []byte) error
    Remove(ctx context.Context, name string) error
    URL(name string) string
}

// IssueRequest carries the ticket holder's details.
type IssueRequest struct {
    VATID     string
    FirstName string
    LastName  string
}

// IssuedTicket is the result of a successful issuance.
type IssuedTicket struct {
    Ticket    model.Ticket
    VerifyURL string // page the QR code points at
    QRCodeURL string // public URL of the PNG
}

// Deps bundles the TicketService collaborators.
type Deps struct {
    Store     TicketStore
    Tokens    TokenSource
    Renderer  Renderer
    Images    ImageStore
    Events    EventPublisher
    Metrics   *metrics.Metrics
    Log       *zap.SugaredLogger
    PublicURL string // base for verification links, no trailing slash
}

// TicketService issues and looks up tickets.
type TicketService struct {
    store     TicketStore
    tokens    TokenSource
    renderer  Renderer
    images    ImageStore
    events    EventPublisher
    metrics   *metrics.Metrics
    log       *zap.SugaredLogger
    publicURL string
    quota     int
    newID     func() string
    now       func() time.Time
}

// NewTicketService wires a TicketService.  Store, Tokens, Renderer, Images
// and Metrics are required.
func NewTicketService(d Deps) *TicketService {
    if d.Store == nil || d.Tokens == nil || d.Renderer == nil || d.Images == nil || d.Metrics == nil {
        panic("service: missing dependency for NewTicketService")
    }
    if d.Events == nil {
        d.Events = NopPublisher{}
    }
    if d.Log == nil {
        d.Log = zap.NewNop().Sugar()
    }
    return &TicketService{
        store:     d.Store,
        tokens:    d.Tokens,
        renderer:  d.Renderer,
        images:    d.Images,
        events:    d.Events,
        metrics:   d.Metrics,
        log:       d.Log.Named("tickets"),
        publicURL: strings.TrimRight(d.PublicURL, "/"),
        quota:     model.MaxTicketsPerVAT,
        newID:     uuid.NewString,
        now:       time.Now,
    }
}

// VerifyURL is the page a ticket's QR code links to.
func (s *TicketService) VerifyURL(ticketID string) string {
    return s.publicURL + "/ticket/" + ticketID
}

// Issue creates a ticket for req.  The machine credential is obtained before
// the store is touched.  The QR code for the ticket's verification URL is
// rendered and saved as <ticket_id>.png before the row is written, so a
// ticket only counts against the quota once its image exists; if the quota
// check or insert fails the image is removed again.
func (s *TicketService) Issue(ctx context.Context, req IssueRequest) (IssuedTicket, error) {
    req, err := normalize(req)
    if err != nil {
        return IssuedTicket{}, err
    }

    if _, err := s.tokens.ServiceToken(ctx); err != nil {
        s.metrics.IncrementM2MFailures()
        return IssuedTicket{}, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
    }

    t := &model.Ticket{
        ID:        s.newID(),
        VATID:     req.VATID,
        FirstName: req.FirstName,
        LastName:  req.LastName,
    }

    verify := s.VerifyURL(t.ID)
    png, err := s.renderer.Render(verify)
    if err != nil {
        s.log.Errorw("render qr code failed", "ticket_id", t.ID, "error", err)
        return IssuedTicket{}, fmt.Errorf("render qr code: %w", err)
    }
    name := t.ID + ".png"
    if err := s.images.Save(ctx, name, png); err != nil {
        s.log.Errorw("save qr code failed", "ticket_id", t.ID, "error", err)
        return IssuedTicket{}, fmt.Errorf("save qr code: %w", err)
    }

    if err := s.store.CreateWithQuota(ctx, t, s.quota); err != nil {
        if rmErr := s.images.Remove(ctx, name); rmErr != nil {
            s.log.Warnw("remove orphaned qr code failed", "ticket_id", t.ID, "error", rmErr)
        }
        if errors.Is(err, repository.ErrQuotaExceeded) {
            s.metrics.IncrementQuotaRejections()
            s.log.Infow("quota exceeded", "vat_id", req.VATID)
            return IssuedTicket{}, ErrQuotaExceeded
        }
        return IssuedTicket{}, fmt.Errorf("store ticket: %w", err)
    }
    s.metrics.IncrementTicketsIssued()

    out := IssuedTicket{Ticket: *t, VerifyURL: verify, QRCodeURL: s.images.URL(name)}
    s.log.Infow("ticket issued", "ticket_id", t.ID, "vat_id", t.VATID)

    ev := q.TicketIssuedEvent{
        TicketID:  t.ID,
        VATID:     t.VATID,
        FirstName: t.FirstName,
        LastName:  t.LastName,
        QRCodeURL: out.QRCodeURL,
        IssuedAt:  s.now().UTC().Format(time.RFC3339),
    }
    if err := s.events.PublishTicketIssued(ctx, ev); err != nil {
        s.log.Warnw("ticket event not published", "ticket_id", t.ID, "error", err)
    }
    return out, nil
}

// Get returns the ticket with the given identifier.  Identifiers that are not
// UUIDs cannot exist and yield ErrNotFound without a store lookup.
func (s *TicketService) Get(ctx context.Context, id string) (model.Ticket, error) {
    if _, err := uuid.Parse(id); err != nil {
        return model.Ticket{}, ErrNotFound
    }
    t, err := s.store.GetByID(ctx, id)
    if errors.Is(err, repository.ErrNotFound) {
        return model.Ticket{}, ErrNotFound
    }
    return t, err
}

// Count returns the number of issued tickets.
func (s *TicketService) Count(ctx context.Context) (int, error) {
    return s.store.Count(ctx)
}

func normalize(req IssueRequest) (IssueRequest, error) {
    req.VATID = strings.TrimSpace(req.VATID)
    req.FirstName = strings.TrimSpace(req.FirstName)
    req.LastName = strings.TrimSpace(req.LastName)

    switch {
    case req.VATID == "" || req.FirstName == "" || req.LastName == "":
        return req, fmt.Errorf("%w: vat_id, first_name and last_name are required", ErrInvalidInput)
    case utf8.RuneCountInString(req.VATID) > maxVATLen:
        return req, fmt.Errorf("%w: vat_id longer than %d characters", ErrInvalidInput, maxVATLen)
    case utf8.RuneCountInString(req.FirstName) > maxNameLen || utf8.RuneCountInString(req.LastName) > maxNameLen:
        return req, fmt.Errorf("%w: names longer than %d characters", ErrInvalidInput, maxNameLen)
    }
    return req, nil
}
