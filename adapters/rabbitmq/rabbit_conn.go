package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-shared-kernel/config"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

const (
	exchangeKind = "topic"
	maxBackoff   = 30 * time.Second
)

type Config struct {
	URL         string
	Exchange    string
	ConnTimeout time.Duration
	Logger      *slog.Logger
}

// ConfigFrom maps the kernel configuration section.
func ConfigFrom(c config.RabbitMQConfig, logger *slog.Logger) Config {
	return Config{URL: c.URL, Exchange: c.Exchange, Logger: logger}
}

// reconnectingPublisher keeps one channel open, redialing with jittered
// exponential backoff whenever the connection drops.
type reconnectingPublisher struct {
	cfg    Config
	log    *slog.Logger
	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	ready  chan struct{} // closed while ch is usable
	closed chan struct{}
	once   sync.Once
}

func newReconnectingPublisher(cfg Config) *reconnectingPublisher {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	rp := &reconnectingPublisher{
		cfg:    cfg,
		log:    log.With("component", "rabbitmq"),
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	go rp.run()

	return rp
}

func (rp *reconnectingPublisher) Publish(ctx context.Context, m PubMsg) error {
	for {
		rp.mu.RLock()
		ch, ready := rp.ch, rp.ready
		rp.mu.RUnlock()

		if ch != nil {
			return ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, publishing(m))
		}

		select {
		case <-ready:
		case <-rp.closed:
			return fmt.Errorf("rabbitmq publisher closed: %w", berr.ErrBusClosed)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (rp *reconnectingPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(rp.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-shared-kernel"},
		Dial:       amqp.DefaultDial(rp.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	exchange := rp.cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

func (rp *reconnectingPublisher) run() {
	backoff := time.Second

	for {
		conn, ch, err := rp.dial()
		if err != nil {
			sleep := min(backoff+rand.N(backoff/2), maxBackoff)
			rp.log.Warn("rabbitmq dial failed", "error", err, "retry_in", sleep)

			t := time.NewTimer(sleep)
			select {
			case <-rp.closed:
				t.Stop()
				return
			case <-t.C:
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = time.Second

		rp.mu.Lock()
		rp.conn, rp.ch = conn, ch
		close(rp.ready)
		rp.mu.Unlock()

		rp.log.Info("rabbitmq connected")

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-rp.closed:
			_ = ch.Close()
			_ = conn.Close()

			return
		case amqpErr := <-notify:
			rp.log.Warn("rabbitmq connection lost", "error", amqpErr)
		}

		rp.mu.Lock()
		rp.conn, rp.ch = nil, nil
		rp.ready = make(chan struct{})
		rp.mu.Unlock()

		_ = ch.Close()
		_ = conn.Close()
	}
}

func (rp *reconnectingPublisher) close() {
	rp.once.Do(func() {
		close(rp.closed)

		rp.mu.Lock()
		defer rp.mu.Unlock()

		if rp.ch != nil {
			_ = rp.ch.Close()
			rp.ch = nil
		}

		if rp.conn != nil {
			_ = rp.conn.Close()
			rp.conn = nil
		}
	})
}

// NewWithAMQPConn dials RabbitMQ in the background, declares the integration
// exchange and returns the Adapter and a cleanup closing the connection.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("rabbitmq url required: %w", berr.ErrPublishFailed)
	}

	pub := newReconnectingPublisher(cfg)
	ad := New(pub)
	ad.Exchange = cfg.Exchange

	return ad, pub.close, nil
}
