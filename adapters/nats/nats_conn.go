package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/next-trace/scg-shared-kernel/config"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
}

// ConfigFrom maps the kernel configuration section.
func ConfigFrom(c config.NATSConfig, service string) Config {
	return Config{URL: c.URL, Name: service}
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data

	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

// Connect dials NATS with the configured options.
func Connect(cfg Config) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required: %w", berr.ErrPublishFailed)
	}

	var opts []nats.Option
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	return nc, nil
}

// NewWithConn wraps an existing connection.
func NewWithConn(nc *nats.Conn) *Adapter { return New(natsClient{nc: nc}) }

// NewWithNATS connects and returns an Adapter and a cleanup draining the connection.
func NewWithNATS(cfg Config) (*Adapter, func(), error) {
	nc, err := Connect(cfg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if !nc.IsClosed() {
			_ = nc.Drain()
		}
	}

	return NewWithConn(nc), cleanup, nil
}
