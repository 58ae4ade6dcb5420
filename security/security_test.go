package security_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/security"
)

func TestJWTParser_IssueAndParse(t *testing.T) {
	p := security.NewJWTParser("s3cret", security.WithIssuer("kernel"), security.WithAudience("api"))

	tok, err := p.Issue(security.Principal{
		Subject: "u-1",
		Name:    "Ada",
		Roles:   []string{"admin"},
		Claims:  map[string]string{"tenant": "t1"},
	}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	pr, err := p.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if pr.Subject != "u-1" || pr.Name != "Ada" || !pr.HasRole("admin") {
		t.Fatalf("principal=%+v", pr)
	}

	if v, _ := pr.Claim("tenant"); v != "t1" {
		t.Fatalf("tenant=%q", v)
	}
}

func TestJWTParser_Rejects(t *testing.T) {
	p := security.NewJWTParser("s3cret")
	other := security.NewJWTParser("other")

	expired, _ := p.Issue(security.Principal{Subject: "u"}, -time.Minute)
	foreign, _ := other.Issue(security.Principal{Subject: "u"}, time.Minute)
	noSubject, _ := p.Issue(security.Principal{}, time.Minute)

	for name, tok := range map[string]string{
		"garbage":    "not-a-token",
		"expired":    expired,
		"bad-sig":    foreign,
		"no-subject": noSubject,
	} {
		if _, err := p.Parse(tok); !errors.Is(err, berr.ErrUnauthorized) {
			t.Fatalf("%s: want ErrUnauthorized, got %v", name, err)
		}
	}
}

type deleteOrder struct{ Owner string }

func (deleteOrder) Policies() []string { return []string{"orders.delete", "owner"} }

func TestAuthorizer(t *testing.T) {
	a := security.NewAuthorizer(
		security.Policy{Name: "orders.delete", Requirements: []security.Requirement{
			security.RequireAuthenticated(),
			security.RequireRole("admin", "ops"),
		}},
		security.Policy{Name: "owner", Requirements: []security.Requirement{
			security.RequireFunc(func(_ context.Context, p *security.Principal, req any) error {
				if req.(deleteOrder).Owner != p.Subject {
					return errors.New("not the owner")
				}

				return nil
			}),
		}},
		security.Policy{Name: "tenant", Requirements: []security.Requirement{security.RequireClaim("tenant", "t1")}},
	)

	req := deleteOrder{Owner: "u-1"}

	if err := a.Authorize(t.Context(), req, req.Policies()...); !errors.Is(err, berr.ErrUnauthorized) {
		t.Fatalf("anonymous: want ErrUnauthorized, got %v", err)
	}

	ctx := security.WithPrincipal(t.Context(), &security.Principal{Subject: "u-1", Roles: []string{"ops"}})
	if err := a.Authorize(ctx, req, req.Policies()...); err != nil {
		t.Fatalf("authorized: %v", err)
	}

	// both failures are reported together
	ctx = security.WithPrincipal(t.Context(), &security.Principal{Subject: "u-2"})

	err := a.Authorize(ctx, req, req.Policies()...)

	var ae *security.AuthorizationError
	if !errors.As(err, &ae) || !errors.Is(err, berr.ErrForbidden) {
		t.Fatalf("want AuthorizationError, got %v", err)
	}

	if len(ae.Failures) != 2 {
		t.Fatalf("failures=%v", ae.Failures)
	}

	if err := a.Authorize(ctx, req, "missing"); !errors.Is(err, security.ErrUnknownPolicy) || !strings.Contains(err.Error(), "missing: unknown policy") {
		t.Fatalf("unknown policy: %v", err)
	}

	if err := a.Authorize(ctx, req, "tenant"); !errors.Is(err, berr.ErrForbidden) {
		t.Fatalf("claim: %v", err)
	}

	if err := a.Authorize(t.Context(), req); err != nil {
		t.Fatalf("no policies: %v", err)
	}
}

var errOverLimit = errors.New("amount over limit")

type payInvoice struct{ Amount int }

func (payInvoice) Policies() []string { return []string{"pay", "billing"} }

func TestAuthorizer_KeepsRequirementErrors(t *testing.T) {
	a := security.NewAuthorizer(
		security.Policy{Name: "pay", Requirements: []security.Requirement{
			security.RequireFunc(func(_ context.Context, _ *security.Principal, req any) error {
				if req.(payInvoice).Amount > 100 {
					return errOverLimit
				}

				return nil
			}),
		}},
		security.Policy{Name: "billing", Requirements: []security.Requirement{security.RequireRole("billing")}},
	)

	ctx := security.WithPrincipal(t.Context(), &security.Principal{Subject: "u-1"})
	req := payInvoice{Amount: 500}

	err := a.Authorize(ctx, req, req.Policies()...)
	if !errors.Is(err, berr.ErrForbidden) || !errors.Is(err, errOverLimit) {
		t.Fatalf("want forbidden wrapping errOverLimit, got %v", err)
	}

	if got := berr.CodeOf(err); got != berr.ErrCodeForbidden {
		t.Fatalf("code=%q", got)
	}

	var ae *security.AuthorizationError
	if !errors.As(err, &ae) || len(ae.Failures) != 2 {
		t.Fatalf("failures: %v", err)
	}

	// sorted by message, each prefixed with its policy
	if !strings.HasPrefix(ae.Failures[0].Error(), "billing: ") || ae.Failures[1].Error() != "pay: amount over limit" {
		t.Fatalf("failures=%v", ae.Failures)
	}
}
