// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// TicketIssuedQueue is the durable queue ticket events are published to.
const TicketIssuedQueue = "ticket.issued"

// TicketIssuedEvent is published after a ticket has been stored and its QR
// code written.  It carries enough data for downstream consumers to log or
// notify without reading the ticket store.
type TicketIssuedEvent struct {
    TicketID  string `json:"ticket_id"`
    VATID     string `json:"vat_id"`
    FirstName string `json:"first_name"`
    LastName  string `json:"last_name"`
    QRCodeURL string `json:"qr_code"`
    IssuedAt  string `json:"issued_at"` // RFC3339, UTC
}
