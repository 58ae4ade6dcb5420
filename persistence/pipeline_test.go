package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/next-trace/scg-shared-kernel/audit"
	"github.com/next-trace/scg-shared-kernel/behavior"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/persistence"
	"github.com/next-trace/scg-shared-kernel/security"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

type placeOrder struct {
	Customer string `validate:"required"`
}

func (placeOrder) Tries() int { return 3 }

func (placeOrder) Timeout() time.Duration { return 5 * time.Second }

func (p placeOrder) UniqueKey() string { return p.Customer }

func (placeOrder) UniqueTTL() time.Duration { return time.Minute }

func (p placeOrder) AuditResource() (string, string) { return "order", p.Customer }

// newPipeline wires every behavior in the documented order over uow.
func newPipeline(t *testing.T, uow *persistence.UnitOfWork) *servicebus.Bus {
	t.Helper()

	b := servicebus.New(nil, nil, quiet())
	servicebus.WithMiddleware(
		behavior.Recovery(quiet()),
		behavior.Tracing(nil),
		behavior.Logging(quiet()),
		behavior.Metrics(prometheus.NewRegistry()),
		behavior.Authorization(security.NewAuthorizer()),
		behavior.Validation(validator.New()),
		behavior.Audit(audit.WriterFunc(func(context.Context, audit.Event) error { return nil }), quiet()),
		behavior.Idempotency(behavior.NewMemoryStore(), quiet()),
		behavior.Retry(quiet()),
		behavior.Timeout(),
		behavior.Transaction(uow),
	)(b)

	return b
}

func TestPipeline_PostCommitFailureRunsOnce(t *testing.T) {
	db := openDB(t)
	pub := &recordingPublisher{db: db, err: errors.New("broker down")}
	repo := persistence.NewRepository[order](db)
	b := newPipeline(t, persistence.NewUnitOfWork(db, pub, quiet()))

	calls := 0
	_ = b.BindCommandOf(placeOrder{}, func(ctx context.Context, c any) error {
		calls++

		o := &order{Customer: c.(placeOrder).Customer}
		o.Raise(orderPlaced{Customer: o.Customer})

		return repo.Create(ctx, o)
	})

	err := b.DispatchSync(t.Context(), placeOrder{Customer: "ada"})
	if !errors.Is(err, berr.ErrAfterCommit) {
		t.Fatalf("want ErrAfterCommit, got %v", err)
	}

	if calls != 1 {
		t.Fatalf("committed command re-ran: calls=%d", calls)
	}

	if n, _ := repo.Count(t.Context()); n != 1 {
		t.Fatalf("rows=%d", n)
	}

	if len(pub.events) != 1 {
		t.Fatalf("events=%d", len(pub.events))
	}

	// the key stays claimed, so a redelivery cannot commit a second row
	if err := b.DispatchSync(t.Context(), placeOrder{Customer: "ada"}); !errors.Is(err, berr.ErrDuplicateRequest) {
		t.Fatalf("want duplicate, got %v", err)
	}

	if n, _ := repo.Count(t.Context()); n != 1 || calls != 1 {
		t.Fatalf("rows=%d calls=%d", n, calls)
	}
}

func TestPipeline_RetriesRolledBackAttempts(t *testing.T) {
	db := openDB(t)
	repo := persistence.NewRepository[order](db)
	b := newPipeline(t, persistence.NewUnitOfWork(db, &recordingPublisher{db: db}, quiet()))

	calls := 0
	_ = b.BindCommandOf(placeOrder{}, func(ctx context.Context, c any) error {
		calls++

		if err := repo.Create(ctx, &order{Customer: c.(placeOrder).Customer}); err != nil {
			return err
		}

		if calls == 1 {
			return errors.New("lock timeout")
		}

		return nil
	})

	if err := b.DispatchSync(t.Context(), placeOrder{Customer: "bob"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if calls != 2 {
		t.Fatalf("calls=%d", calls)
	}

	// the first attempt rolled back
	if n, _ := repo.Count(t.Context()); n != 1 {
		t.Fatalf("rows=%d", n)
	}

	if err := b.DispatchSync(t.Context(), placeOrder{}); !errors.Is(err, berr.ErrValidation) || calls != 2 {
		t.Fatalf("invalid command: err=%v calls=%d", err, calls)
	}
}
