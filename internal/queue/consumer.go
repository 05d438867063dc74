package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Consumer appends one line per TicketIssuedEvent to a log file.
type Consumer struct {
    url     string
    logPath string
    log     *zap.SugaredLogger
}

// NewConsumer returns a consumer reading from the broker at url and writing
// to logPath.
func NewConsumer(url, logPath string, log *zap.SugaredLogger) *Consumer {
    return &Consumer{url: url, logPath: logPath, log: log.Named("ticket-consumer")}
}

// Run connects to the broker, declares the ticket.issued queue and consumes
// until ctx is cancelled.  Dial failures and closed channels are retried with
// exponential backoff capped at 30 seconds.  Messages that cannot be handled
// are rejected without requeue so a bad payload cannot loop forever.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warnw("failed to dial broker", "error", err, "retry_in", backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warnw("consume loop ended; reconnecting", "error", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warnw("set QoS failed", "error", err)
    }
    if _, err := ch.QueueDeclare(TicketIssuedQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, TicketIssuedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := c.Handle(d.Body); err != nil {
            c.log.Errorw("handle message failed", "error", err)
            _ = d.Nack(false, false)
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

// Handle decodes one event body and appends it to the log file.
func (c *Consumer) Handle(body []byte) error {
    var ev TicketIssuedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.TicketID == "" {
        return errors.New("event without ticket_id")
    }
    if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    line := fmt.Sprintf("[%s] Ticket issued | ticket_id=%s | vat_id=%s | holder=\"%s %s\" | qr=%s\n",
        ev.IssuedAt, ev.TicketID, ev.VATID, ev.FirstName, ev.LastName, ev.QRCodeURL)
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
