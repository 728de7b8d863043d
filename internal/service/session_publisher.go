// Package service publishes domain events to RabbitMQ.  Publishing is best
// effort: errors are returned to the caller, who logs and moves on.
package service

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"

    q "github.com/iliyamo/garage-parking/internal/queue"
)

// SessionPublisher sends SessionClosedEvent messages to the durable
// session.closed queue over one lazily opened connection.  A failed
// publish drops the connection so the next call redials.
type SessionPublisher struct {
    url string

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewSessionPublisher(url string) *SessionPublisher {
    return &SessionPublisher{url: url}
}

// PublishSessionClosed marshals ev and publishes it as a persistent
// message with a fresh message id.
func (p *SessionPublisher) PublishSessionClosed(ctx context.Context, ev q.SessionClosedEvent) error {
    pub, err := newPublishing(ev, time.Now())
    if err != nil {
        return err
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel()
    if err != nil {
        return err
    }
    if err := ch.PublishWithContext(ctx,
        "",                   // default exchange
        q.SessionClosedQueue, // routing key = queue name
        false,                // mandatory
        false,                // immediate
        pub,
    ); err != nil {
        p.reset()
        return fmt.Errorf("rabbitmq: publish: %w", err)
    }
    return nil
}

func newPublishing(ev q.SessionClosedEvent, now time.Time) (amqp.Publishing, error) {
    body, err := json.Marshal(ev)
    if err != nil {
        return amqp.Publishing{}, fmt.Errorf("rabbitmq: marshal event: %w", err)
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    uuid.NewString(),
        Type:         q.SessionClosedQueue,
        Timestamp:    now.UTC(),
        Body:         body,
    }, nil
}

// channel returns the open channel, dialing and declaring the queue when
// needed.  Callers hold p.mu.
func (p *SessionPublisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.reset()

    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, fmt.Errorf("rabbitmq: dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("rabbitmq: channel open: %w", err)
    }
    if _, err := ch.QueueDeclare(q.SessionClosedQueue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, fmt.Errorf("rabbitmq: queue declare: %w", err)
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

func (p *SessionPublisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
    }
    if p.conn != nil {
        _ = p.conn.Close()
    }
    p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *SessionPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
    return nil
}
