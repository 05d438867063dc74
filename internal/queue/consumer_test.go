package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
)

func TestHandleAppendsLine(t *testing.T) {
    path := filepath.Join(t.TempDir(), "logs", "tickets.log")
    c := NewConsumer("amqp://unused", path, zap.NewNop().Sugar())

    body, err := json.Marshal(TicketIssuedEvent{
        TicketID:  "t-1",
        VATID:     "DE123456789",
        FirstName: "Ada",
        LastName:  "Lovelace",
        QRCodeURL: "http://localhost/static/qr/t-1.png",
        IssuedAt:  "2026-10-19T10:00:00Z",
    })
    require.NoError(t, err)
    require.NoError(t, c.Handle(body))
    require.NoError(t, c.Handle(body))

    out, err := os.ReadFile(path)
    require.NoError(t, err)
    assert.Contains(t, string(out), "ticket_id=t-1 | vat_id=DE123456789 | holder=\"Ada Lovelace\"")
    assert.Equal(t, 2, countLines(out))
}

func TestHandleRejectsBadPayload(t *testing.T) {
    c := NewConsumer("amqp://unused", filepath.Join(t.TempDir(), "t.log"), zap.NewNop().Sugar())
    require.Error(t, c.Handle([]byte("{not json")))
    require.Error(t, c.Handle([]byte(`{"vat_id":"X"}`)))
}

func countLines(b []byte) int {
    n := 0
    for _, c := range b {
        if c == '\n' {
            n++
        }
    }
    return n
}
