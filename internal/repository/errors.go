// Package repository persists tickets.  Sentinel errors defined here let the
// service layer tell storage facts apart from infrastructure failures.
package repository

import "errors"

// ErrNotFound is returned when no ticket has the requested identifier.
var ErrNotFound = errors.New("ticket not found")

// ErrQuotaExceeded is returned by CreateWithQuota when the VAT identifier
// already holds the maximum number of tickets.  Nothing is written.
var ErrQuotaExceeded = errors.New("ticket quota exceeded")

// ErrDuplicateID signals a primary key collision on insert.
var ErrDuplicateID = errors.New("duplicate ticket id")
