package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/vat-ticketing/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// TicketRepo stores tickets in the MySQL `tickets` table.  Timestamps are
// assigned by the database (time_created DEFAULT CURRENT_TIMESTAMP) and read
// back after insert so callers always see the persisted value.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// Count returns the number of tickets ever issued.
func (r *TicketRepo) Count(ctx context.Context) (int, error) {
    var n int
    err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&n)
    return n, err
}

// CountByVAT returns the number of tickets issued for a VAT identifier.
func (r *TicketRepo) CountByVAT(ctx context.Context, vatID string) (int, error) {
    var n int
    err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE vat_id = ?`, vatID).Scan(&n)
    return n, err
}

// GetByID loads a ticket.  ErrNotFound is returned when no row matches.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
    const q = `SELECT ticket_id, vat_id, first_name, last_name, time_created FROM tickets WHERE ticket_id = ?`
    t, err := scanTicket(r.db.QueryRowContext(ctx, q, id))
    if errors.Is(err, sql.ErrNoRows) {
        return model.Ticket{}, ErrNotFound
    }
    return t, err
}

// CreateWithQuota counts the VAT identifier's tickets and inserts the new one
// in a single transaction.  The transaction first takes an exclusive lock on
// the VAT's row in vat_locks (creating it if needed), so concurrent issuers
// for the same VAT run one after another and each sees the committed count.
// Locking a single primary-key row avoids the gap-lock deadlocks a locking
// COUNT over the vat_id index produces for first-time identifiers.
func (r *TicketRepo) CreateWithQuota(ctx context.Context, t *model.Ticket, limit int) error {
    tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if _, err := tx.ExecContext(ctx,
        `INSERT INTO vat_locks (vat_id) VALUES (?) ON DUPLICATE KEY UPDATE vat_id = vat_id`, t.VATID); err != nil {
        return err
    }
    var n int
    if err := tx.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM tickets WHERE vat_id = ?`, t.VATID).Scan(&n); err != nil {
        return err
    }
    if n >= limit {
        return ErrQuotaExceeded
    }
    if err := insertTx(ctx, tx, t); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

func insertTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
    _, err := tx.ExecContext(ctx,
        `INSERT INTO tickets (ticket_id, vat_id, first_name, last_name) VALUES (?, ?, ?, ?)`,
        t.ID, t.VATID, t.FirstName, t.LastName)
    if err != nil {
        var me *mysql.MySQLError
        if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
            return ErrDuplicateID
        }
        return err
    }
    var created time.Time
    if err := tx.QueryRowContext(ctx,
        `SELECT time_created FROM tickets WHERE ticket_id = ?`, t.ID).Scan(&created); err != nil {
        return err
    }
    t.CreatedAt = created.UTC()
    return nil
}

func scanTicket(row *sql.Row) (model.Ticket, error) {
    var t model.Ticket
    err := row.Scan(&t.ID, &t.VATID, &t.FirstName, &t.LastName, &t.CreatedAt)
    t.CreatedAt = t.CreatedAt.UTC()
    return t, err
}
