// Package resilient wraps a transport in a circuit breaker so a failing broker
// is given time to recover instead of being hammered by every request.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/next-trace/scg-shared-kernel/config"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

const (
	defaultFailureRatio = 0.5
	defaultMinRequests  = 5
)

type Option func(*options)

type options struct {
	reg    prometheus.Registerer
	logger *slog.Logger
}

// WithRegisterer exports the breaker state as servicebus_circuit_breaker_state{name}.
func WithRegisterer(r prometheus.Registerer) Option { return func(o *options) { o.reg = r } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Adapter guards every call to the wrapped adapter with one breaker.
type Adapter struct {
	next cbus.Adapter
	cb   *gobreaker.CircuitBreaker
}

var _ cbus.Adapter = (*Adapter)(nil)

// New wraps next. Context errors and serialization failures never count against the breaker.
func New(name string, next cbus.Adapter, cfg config.BreakerConfig, opts ...Option) *Adapter {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = defaultFailureRatio
	}

	minReq := cfg.MinRequests
	if minReq == 0 {
		minReq = defaultMinRequests
	}

	var gauge *prometheus.GaugeVec
	if o.reg != nil {
		gauge = stateGauge(o.reg)
		gauge.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minReq && float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, berr.ErrSerializationFailed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())

			if gauge != nil {
				gauge.WithLabelValues(name).Set(float64(to))
			}
		},
	}

	return &Adapter{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the breaker state.
func (a *Adapter) State() gobreaker.State { return a.cb.State() }

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	return a.do(func() error { return a.next.EnqueueCommand(ctx, cmd, opts) })
}

func (a *Adapter) EnqueueListener(ctx context.Context, e cbus.DomainEvent, handler string, opts cbus.QueueOptions) error {
	return a.do(func() error { return a.next.EnqueueListener(ctx, e, handler, opts) })
}

func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	return a.do(func() error { return a.next.PublishIntegration(ctx, e, opts) })
}

func (a *Adapter) do(fn func() error) error {
	_, err := a.cb.Execute(func() (any, error) { return nil, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit %s: %w", a.cb.Name(), errors.Join(berr.ErrCircuitOpen, err))
	}

	return err
}

func stateGauge(reg prometheus.Registerer) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "servicebus_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})

	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
	}

	return g
}
