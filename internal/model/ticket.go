package model

import "time"

// MaxTicketsPerVAT is the number of tickets a single VAT identifier may hold.
const MaxTicketsPerVAT = 3

// Ticket represents an issued ticket as stored in the `tickets` table.
// Tickets are written once and never updated or deleted.
//
// Fields:
//  ID        – UUID assigned by the service at issuance.
//  VATID     – VAT identifier the ticket is counted against.
//  FirstName – holder's first name.
//  LastName  – holder's last name.
//  CreatedAt – server-assigned creation time (UTC).
type Ticket struct {
    ID        string    `json:"ticket_id"`  // tickets.ticket_id
    VATID     string    `json:"vat_id"`     // tickets.vat_id
    FirstName string    `json:"first_name"` // tickets.first_name
    LastName  string    `json:"last_name"`  // tickets.last_name
    CreatedAt time.Time `json:"created_at"` // tickets.time_created
}

// FullName joins first and last name for display.
func (t Ticket) FullName() string { return t.FirstName + " " + t.LastName }
