package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// Claims is the token payload understood by JWTParser.
type Claims struct {
	Name   string            `json:"name,omitempty"`
	Roles  []string          `json:"roles,omitempty"`
	Extra  map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// JWTParser validates HMAC signed bearer tokens and turns them into principals.
type JWTParser struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// JWTOption configures a JWTParser.
type JWTOption func(*JWTParser)

// WithIssuer requires and stamps the iss claim.
func WithIssuer(iss string) JWTOption { return func(p *JWTParser) { p.issuer = iss } }

// WithAudience requires and stamps the aud claim.
func WithAudience(aud string) JWTOption { return func(p *JWTParser) { p.audience = aud } }

// WithLeeway tolerates clock skew when validating time based claims.
func WithLeeway(d time.Duration) JWTOption { return func(p *JWTParser) { p.leeway = d } }

// NewJWTParser returns a parser for tokens signed with secret.
func NewJWTParser(secret string, opts ...JWTOption) *JWTParser {
	p := &JWTParser{secret: []byte(secret)}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse validates token and returns its principal. Any failure matches ErrUnauthorized.
func (p *JWTParser) Parse(token string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(p.leeway),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}

	claims := &Claims{}

	tok, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return p.secret, nil }, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", errors.Join(berr.ErrUnauthorized, err))
	}

	if !tok.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("parse token: missing subject: %w", berr.ErrUnauthorized)
	}

	return &Principal{
		Subject: claims.Subject,
		Name:    claims.Name,
		Roles:   claims.Roles,
		Claims:  claims.Extra,
	}, nil
}

// Issue signs a token for p valid for ttl. Intended for tools and tests.
func (p *JWTParser) Issue(pr Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  pr.Name,
		Roles: pr.Roles,
		Extra: pr.Claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pr.Subject,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
