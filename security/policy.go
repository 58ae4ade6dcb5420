package security

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// Authorized is implemented by requests that must pass named policies.
type Authorized interface {
	Policies() []string
}

// Requirement is a single check a principal must satisfy for a request.
type Requirement interface {
	Check(ctx context.Context, p *Principal, req any) error
}

// RequirementFunc adapts a function to Requirement.
type RequirementFunc func(ctx context.Context, p *Principal, req any) error

// Check implements Requirement.
func (f RequirementFunc) Check(ctx context.Context, p *Principal, req any) error { return f(ctx, p, req) }

// RequireFunc is shorthand for RequirementFunc.
func RequireFunc(f func(ctx context.Context, p *Principal, req any) error) Requirement {
	return RequirementFunc(f)
}

// RequireAuthenticated passes for any principal with a subject.
func RequireAuthenticated() Requirement {
	return RequirementFunc(func(_ context.Context, p *Principal, _ any) error {
		if p == nil || p.Subject == "" {
			return errors.New("principal is not authenticated")
		}

		return nil
	})
}

// RequireRole passes when the principal has at least one of roles.
func RequireRole(roles ...string) Requirement {
	return RequirementFunc(func(_ context.Context, p *Principal, _ any) error {
		for _, r := range roles {
			if p.HasRole(r) {
				return nil
			}
		}

		return fmt.Errorf("requires role %s", strings.Join(roles, "|"))
	})
}

// RequireClaim passes when the claim is present and, if values are given, equals one of them.
func RequireClaim(key string, values ...string) Requirement {
	return RequirementFunc(func(_ context.Context, p *Principal, _ any) error {
		v, ok := p.Claim(key)
		if !ok {
			return fmt.Errorf("requires claim %s", key)
		}

		if len(values) == 0 {
			return nil
		}

		for _, want := range values {
			if v == want {
				return nil
			}
		}

		return fmt.Errorf("claim %s=%q not allowed", key, v)
	})
}

// Policy is a named set of requirements; all of them must pass.
type Policy struct {
	Name         string
	Requirements []Requirement
}

// ErrUnknownPolicy is reported for a policy name the Authorizer does not know.
var ErrUnknownPolicy = errors.New("unknown policy")

// AuthorizationError collects every failed requirement of a request, each
// prefixed with its policy name. It matches ErrForbidden and every requirement error.
type AuthorizationError struct {
	Failures []error
}

func (e *AuthorizationError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}

	return "forbidden: " + strings.Join(msgs, "; ")
}

// Unwrap exposes ErrForbidden followed by the requirement errors.
func (e *AuthorizationError) Unwrap() []error {
	return append([]error{berr.ErrForbidden}, e.Failures...)
}

// Authorizer evaluates registered policies.
type Authorizer struct {
	policies map[string]Policy
}

// NewAuthorizer returns an Authorizer knowing policies.
func NewAuthorizer(policies ...Policy) *Authorizer {
	a := &Authorizer{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		a.policies[p.Name] = p
	}

	return a
}

// Policy reports whether name is registered.
func (a *Authorizer) Policy(name string) (Policy, bool) {
	p, ok := a.policies[name]
	return p, ok
}

// Authorize checks the principal in ctx against every requirement of every named policy.
// A missing principal returns ErrUnauthorized. Failures are collected, not short-circuited,
// and returned as one *AuthorizationError. Unknown policies count as failures.
func (a *Authorizer) Authorize(ctx context.Context, req any, policies ...string) error {
	if len(policies) == 0 {
		return nil
	}

	p, ok := PrincipalFrom(ctx)
	if !ok {
		return fmt.Errorf("authorize %T: %w", req, berr.ErrUnauthorized)
	}

	var failures []error

	for _, name := range policies {
		pol, ok := a.policies[name]
		if !ok {
			failures = append(failures, fmt.Errorf("%s: %w", name, ErrUnknownPolicy))
			continue
		}

		for _, r := range pol.Requirements {
			if err := r.Check(ctx, p, req); err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	if len(failures) == 0 {
		return nil
	}

	slices.SortStableFunc(failures, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })

	return &AuthorizationError{Failures: failures}
}
