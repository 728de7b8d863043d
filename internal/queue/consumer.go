package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/cenkalti/backoff/v5"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/garage-parking/internal/logging"
)

// Ledger appends one human-readable line per closed session to a file.
type Ledger struct {
    path string
    mu   sync.Mutex
}

func NewLedger(path string) *Ledger { return &Ledger{path: path} }

// Record writes ev to the ledger file, creating its directory on demand.
func (l *Ledger) Record(ev SessionClosedEvent) error {
    l.mu.Lock()
    defer l.mu.Unlock()

    if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
        return fmt.Errorf("mkdir ledger dir: %w", err)
    }
    f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open ledger: %w", err)
    }
    defer f.Close()

    sector := ev.SectorCode
    if sector == "" {
        sector = "-"
    }
    line := fmt.Sprintf("[%s] Session closed | session_id=%d | plate=%q | sector=%s | spot_id=%d | entry=%s | factor=%d.%02d | base=%d cents | charged=%d cents\n",
        ev.ExitTime, ev.SessionID, ev.LicensePlate, sector, ev.SpotID, ev.EntryTime,
        ev.PriceFactor/100, ev.PriceFactor%100, ev.BasePriceCents, ev.ChargedAmountCents)
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write ledger: %w", err)
    }
    return nil
}

func (l *Ledger) handle(body []byte) error {
    var ev SessionClosedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    return l.Record(ev)
}

// ConsumerOptions configures StartLedgerConsumer.
type ConsumerOptions struct {
    URL      string
    Prefetch int
    // BackOff paces reconnects; nil means exponential from one second up
    // to thirty.
    BackOff backoff.BackOff
}

// StartLedgerConsumer consumes session.closed into the ledger until ctx is
// cancelled, redialing the broker with backoff whenever the connection or
// delivery channel goes away.  Undecodable messages are rejected without
// requeue.
func StartLedgerConsumer(ctx context.Context, ledger *Ledger, opts ConsumerOptions) error {
    bo := opts.BackOff
    if bo == nil {
        exp := backoff.NewExponentialBackOff()
        exp.InitialInterval = time.Second
        exp.MaxInterval = 30 * time.Second
        bo = exp
    }

    for {
        conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
            return amqp.Dial(opts.URL)
        }, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0), backoff.WithNotify(func(err error, next time.Duration) {
            logging.Warn(ctx).Err(err).Dur("retry_in", next).Msg("ledger.dial_failed")
        }))
        if ctx.Err() != nil {
            return ctx.Err()
        }
        if err != nil {
            continue
        }
        bo.Reset()

        err = consumeLoop(ctx, conn, ledger, opts.Prefetch)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        logging.Warn(ctx).Err(err).Msg("ledger.consume_ended")
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, ledger *Ledger, prefetch int) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if prefetch > 0 {
        if err := ch.Qos(prefetch, 0, false); err != nil {
            logging.Warn(ctx).Err(err).Msg("ledger.qos_failed")
        }
    }
    if _, err := ch.QueueDeclare(SessionClosedQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(SessionClosedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := ledger.handle(d.Body); err != nil {
                logging.Warn(ctx).Err(err).Str("message_id", d.MessageId).Msg("ledger.message_rejected")
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}
