package amqppub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// Publisher pushes signals onto durable RabbitMQ queues. Downstream
// placement workers consume bet signals; the trading desk consumes
// cash-out signals. The connection re-dials lazily after a failure, so
// a broker restart costs one failed publish which the caller retries
// on the next poll.
type Publisher struct {
	url          string
	betQueue     string
	cashoutQueue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(url, betQueue, cashoutQueue string) *Publisher {
	return &Publisher{url: url, betQueue: betQueue, cashoutQueue: cashoutQueue}
}

// Connect dials and declares both queues. Called once at startup and
// again lazily whenever a publish finds the channel gone.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked()
}

func (p *Publisher) connectLocked() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	for _, q := range []string{p.betQueue, p.cashoutQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = conn
	p.ch = ch
	telemetry.Infof("amqp: connected, queues %s / %s declared", p.betQueue, p.cashoutQueue)
	return nil
}

func (p *Publisher) PublishBet(ctx context.Context, sig bet.Signal) error {
	return p.publish(ctx, p.betQueue, sig)
}

func (p *Publisher) PublishCashout(ctx context.Context, sig bet.CashoutSignal) error {
	return p.publish(ctx, p.cashoutQueue, sig)
}

func (p *Publisher) publish(ctx context.Context, queue string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	err = p.ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err == nil {
		return nil
	}

	// One reconnect attempt before giving up; the caller retries the
	// whole operation on the next poll.
	telemetry.Warnf("amqp: publish to %s failed, reconnecting: %v", queue, err)
	if rerr := p.connectLocked(); rerr != nil {
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	if err := p.ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
