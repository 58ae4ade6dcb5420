package behavior

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// Metrics records request latency and outcome counts on reg.
// A nil reg uses prometheus.DefaultRegisterer. Registering twice on the same
// registry reuses the existing collectors.
func Metrics(reg prometheus.Registerer) servicebus.Middleware {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "servicebus_request_duration_seconds",
		Help:    "Latency of commands and queries handled by the bus.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "request"}))

	total := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "servicebus_requests_total",
		Help: "Commands and queries handled by the bus, by outcome.",
	}, []string{"kind", "request", "outcome"}))

	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			kind := string(servicebus.KindFrom(ctx))
			name := servicebus.MessageName(req)
			start := time.Now()

			res, err := next(ctx, req)

			duration.WithLabelValues(kind, name).Observe(time.Since(start).Seconds())
			total.WithLabelValues(kind, name, outcome(err)).Inc()

			return res, err
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}

	if code := berr.CodeOf(err); code != "" {
		return code
	}

	return "error"
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}

		panic(err)
	}

	return c
}
