package repository

import (
    "context"
    "errors"
    "sync"
    "sync/atomic"
    "testing"

    "github.com/google/uuid"
    "github.com/stretchr/testify/suite"

    "github.com/iliyamo/vat-ticketing/internal/model"
)

// ticketStore is the behaviour shared by TicketRepo and MemoryTicketRepo.
type ticketStore interface {
    Count(ctx context.Context) (int, error)
    CountByVAT(ctx context.Context, vatID string) (int, error)
    GetByID(ctx context.Context, id string) (model.Ticket, error)
    CreateWithQuota(ctx context.Context, t *model.Ticket, limit int) error
}

// TicketStoreSuite runs the same contract against every ticket store.
// newStore is called before each test and must return an empty store.
type TicketStoreSuite struct {
    suite.Suite
    newStore func() (ticketStore, error)
    repo     ticketStore
    ctx      context.Context
}

func TestMemoryTicketRepoSuite(t *testing.T) {
    suite.Run(t, &TicketStoreSuite{newStore: func() (ticketStore, error) {
        return NewMemoryTicketRepo(), nil
    }})
}

func (s *TicketStoreSuite) SetupTest() {
    s.ctx = context.Background()
    repo, err := s.newStore()
    s.Require().NoError(err)
    s.repo = repo
}

func newTicket(vat string) *model.Ticket {
    return &model.Ticket{ID: uuid.NewString(), VATID: vat, FirstName: "Ada", LastName: "Lovelace"}
}

func (s *TicketStoreSuite) create(t *model.Ticket) error {
    return s.repo.CreateWithQuota(s.ctx, t, model.MaxTicketsPerVAT)
}

func (s *TicketStoreSuite) TestLookup() {
    s.Run("returns stored ticket with server timestamp", func() {
        t := newTicket("DE123456789")
        s.Require().NoError(s.create(t))
        s.False(t.CreatedAt.IsZero())

        got, err := s.repo.GetByID(s.ctx, t.ID)
        s.Require().NoError(err)
        s.Equal(*t, got)
    })

    s.Run("unknown id is ErrNotFound", func() {
        _, err := s.repo.GetByID(s.ctx, uuid.NewString())
        s.Require().ErrorIs(err, ErrNotFound)
    })
}

func (s *TicketStoreSuite) TestCounts() {
    s.Require().NoError(s.create(newTicket("A")))
    s.Require().NoError(s.create(newTicket("A")))
    s.Require().NoError(s.create(newTicket("B")))

    total, err := s.repo.Count(s.ctx)
    s.Require().NoError(err)
    s.Equal(3, total)

    a, err := s.repo.CountByVAT(s.ctx, "A")
    s.Require().NoError(err)
    s.Equal(2, a)
}

func (s *TicketStoreSuite) TestDuplicateID() {
    t := newTicket("A")
    s.Require().NoError(s.create(t))
    dup := *t
    s.Require().ErrorIs(s.create(&dup), ErrDuplicateID)
}

func (s *TicketStoreSuite) TestCreateWithQuota() {
    for i := 0; i < model.MaxTicketsPerVAT; i++ {
        s.Require().NoError(s.create(newTicket("DE1")))
    }
    err := s.create(newTicket("DE1"))
    s.Require().ErrorIs(err, ErrQuotaExceeded)

    n, err := s.repo.CountByVAT(s.ctx, "DE1")
    s.Require().NoError(err)
    s.Equal(model.MaxTicketsPerVAT, n)

    s.Require().NoError(s.create(newTicket("DE2")))
}

func (s *TicketStoreSuite) TestCreateWithQuotaConcurrent() {
    const goroutines = 25
    var wg sync.WaitGroup
    var ok, rejected atomic.Int32
    errs := make(chan error, goroutines)
    for i := 0; i < goroutines; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            err := s.create(newTicket("RACE"))
            switch {
            case err == nil:
                ok.Add(1)
            case errors.Is(err, ErrQuotaExceeded):
                rejected.Add(1)
            default:
                errs <- err
            }
        }()
    }
    wg.Wait()
    close(errs)

    for err := range errs {
        s.Failf("unexpected error", "%v", err)
    }
    s.Equal(int32(model.MaxTicketsPerVAT), ok.Load())
    s.Equal(int32(goroutines-model.MaxTicketsPerVAT), rejected.Load())

    n, err := s.repo.CountByVAT(s.ctx, "RACE")
    s.Require().NoError(err)
    s.Equal(model.MaxTicketsPerVAT, n)
}
