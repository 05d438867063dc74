package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Open connects to MySQL using dsn and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NormalizeDSN parses a MySQL DSN and forces the options the repositories rely
// on: TIMESTAMP columns scan into time.Time and are interpreted as UTC.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

const ticketsTable = `CREATE TABLE IF NOT EXISTS tickets (
    ticket_id    CHAR(36)    NOT NULL PRIMARY KEY,
    vat_id       VARCHAR(20) NOT NULL,
    first_name   VARCHAR(50) NOT NULL,
    last_name    VARCHAR(50) NOT NULL,
    time_created TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_tickets_vat_id (vat_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// vatLocksTable holds one row per VAT identifier.  Issuers lock that row
// before counting tickets, which serializes issuance per VAT.
const vatLocksTable = `
CREATE TABLE IF NOT EXISTS vat_locks (
    vat_id VARCHAR(20) NOT NULL PRIMARY KEY
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ticketsTable); err != nil {
		return fmt.Errorf("create tickets table: %w", err)
	}
	if _, err := db.ExecContext(ctx, vatLocksTable); err != nil {
		return fmt.Errorf("create vat_locks table: %w", err)
	}
	return nil
}
