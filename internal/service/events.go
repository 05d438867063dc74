package service

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    q "github.com/iliyamo/vat-ticketing/internal/queue"
)

// EventPublisher announces issued tickets to downstream consumers.
type EventPublisher interface {
    PublishTicketIssued(ctx context.Context, ev q.TicketIssuedEvent) error
}

// AMQPPublisher publishes TicketIssuedEvents to RabbitMQ.  Each call dials,
// declares the durable queue and publishes a persistent message; errors are
// logged and returned so the caller can choose to ignore them.
type AMQPPublisher struct {
    url string
    log *zap.SugaredLogger
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string, log *zap.SugaredLogger) *AMQPPublisher {
    return &AMQPPublisher{url: url, log: log.Named("rabbitmq")}
}

func (p *AMQPPublisher) PublishTicketIssued(ctx context.Context, ev q.TicketIssuedEvent) error {
    conn, err := amqp.Dial(p.url)
    if err != nil {
        p.log.Warnw("dial failed", "error", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warnw("channel open failed", "error", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Idempotent; durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(q.TicketIssuedQueue, true, false, false, false, nil); err != nil {
        p.log.Warnw("queue declare failed", "error", err)
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        MessageId:    ev.TicketID,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", q.TicketIssuedQueue, false, false, pub); err != nil {
        p.log.Warnw("publish failed", "error", err, "ticket_id", ev.TicketID)
        return err
    }
    return nil
}

// NopPublisher drops every event.  Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTicketIssued(context.Context, q.TicketIssuedEvent) error { return nil }
