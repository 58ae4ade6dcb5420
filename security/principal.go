// Package security carries the authenticated principal through a request and
// evaluates authorization policies against it.
package security

import (
	"context"
	"slices"
)

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Name    string
	Roles   []string
	Claims  map[string]string
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

// Claim returns a claim value.
func (p *Principal) Claim(key string) (string, bool) {
	if p == nil {
		return "", false
	}

	v, ok := p.Claims[key]

	return v, ok
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// SubjectFrom returns the subject of the principal in ctx or "".
func SubjectFrom(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.Subject
	}

	return ""
}
