package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/liraku/lirabot/core/logger"
)

// channel is the subset of *amqp.Channel the producer uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Producer publishes events to a durable topic exchange.
type Producer struct {
	exchange string
	open     func() (channel, error)
	closer   func() error

	mu       sync.Mutex
	ch       channel
	declared bool
}

// ProducerOptions configure Dial.
type ProducerOptions struct {
	URL         string
	Exchange    string
	DialTimeout time.Duration
}

// Dial connects to the broker and opens a channel.
func Dial(opts ProducerOptions) (*Producer, error) {
	clean, err := cleanURL(opts.URL)
	if err != nil {
		return nil, err
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("events: dial: %w", err)
	}
	p := newProducer(opts.Exchange, func() (channel, error) { return conn.Channel() }, conn.Close)
	if _, err := p.channel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func newProducer(exchange string, open func() (channel, error), closer func() error) *Producer {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Producer{exchange: exchange, open: open, closer: closer}
}

func cleanURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("events: broker url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("events: broker url must use amqp:// or amqps://")
	}
	return clean, nil
}

func (p *Producer) channel() (channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && p.declared {
		return p.ch, nil
	}
	if p.ch == nil {
		ch, err := p.open()
		if err != nil {
			return nil, fmt.Errorf("events: open channel: %w", err)
		}
		p.ch = ch
	}
	if err := p.ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = p.ch.Close()
		p.ch = nil
		return nil, fmt.Errorf("events: declare %s: %w", p.exchange, err)
	}
	p.declared = true
	return p.ch, nil
}

// reset drops a broken channel so the next call reopens it.
func (p *Producer) reset(broken channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == broken {
		_ = p.ch.Close()
		p.ch = nil
		p.declared = false
	}
}

// Publish sends ev with its type as the routing key. A failed publish
// reopens the channel and retries once.
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", ev.Type, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID.String(),
		Type:         ev.Type,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		ch, err := p.channel()
		if err != nil {
			lastErr = err
			continue
		}
		if err := ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, msg); err != nil {
			lastErr = err
			p.reset(ch)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		logger.Debug(ctx, logger.CompEvents, "events.publish",
			slog.String("status", "ok"),
			slog.String("type", ev.Type),
			slog.String("order_id", ev.Order.ID),
			slog.Int("attempts", attempt),
			slog.Duration("duration", logger.Took(start)))
		return nil
	}
	return fmt.Errorf("events: publish %s: %w", ev.Type, lastErr)
}

// Close closes the channel and the connection.
func (p *Producer) Close() error {
	p.mu.Lock()
	ch := p.ch
	p.ch = nil
	p.mu.Unlock()
	var errs []error
	if ch != nil {
		errs = append(errs, ch.Close())
	}
	if p.closer != nil {
		errs = append(errs, p.closer())
	}
	return errors.Join(errs...)
}
