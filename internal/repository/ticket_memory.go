package repository

import (
    "context"
    "sync"
    "time"

    "github.com/iliyamo/vat-ticketing/internal/model"
)

// MemoryTicketRepo is an in-process ticket store used by tests.  The mutex
// is held across the count and insert in CreateWithQuota, which gives it the
// same quota guarantee as the MySQL implementation.
type MemoryTicketRepo struct {
    mu      sync.RWMutex
    tickets map[string]model.Ticket
    now     func() time.Time
}

// NewMemoryTicketRepo returns an empty store.
func NewMemoryTicketRepo() *MemoryTicketRepo {
    return &MemoryTicketRepo{
        tickets: make(map[string]model.Ticket),
        now:     func() time.Time { return time.Now().UTC() },
    }
}

func (r *MemoryTicketRepo) Count(_ context.Context) (int, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return len(r.tickets), nil
}

func (r *MemoryTicketRepo) CountByVAT(_ context.Context, vatID string) (int, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return r.countLocked(vatID), nil
}

func (r *MemoryTicketRepo) GetByID(_ context.Context, id string) (model.Ticket, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    t, ok := r.tickets[id]
    if !ok {
        return model.Ticket{}, ErrNotFound
    }
    return t, nil
}

func (r *MemoryTicketRepo) CreateWithQuota(_ context.Context, t *model.Ticket, limit int) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.countLocked(t.VATID) >= limit {
        return ErrQuotaExceeded
    }
    return r.insertLocked(t)
}

func (r *MemoryTicketRepo) countLocked(vatID string) int {
    n := 0
    for _, t := range r.tickets {
        if t.VATID == vatID {
            n++
        }
    }
    return n
}

func (r *MemoryTicketRepo) insertLocked(t *model.Ticket) error {
    if _, exists := r.tickets[t.ID]; exists {
        return ErrDuplicateID
    }
    // TIMESTAMP columns keep whole seconds.
    t.CreatedAt = r.now().Truncate(time.Second)
    r.tickets[t.ID] = *t
    return nil
}
