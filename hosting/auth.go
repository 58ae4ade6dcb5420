package hosting

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/security"
)

// TokenParser turns a bearer token into a principal. *security.JWTParser implements it.
type TokenParser interface {
	Parse(token string) (*security.Principal, error)
}

// Authenticate reads the bearer token and stores the principal in the request context.
// Without a token the request continues anonymously unless required is set.
// An invalid token is always rejected.
func Authenticate(parser TokenParser, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				WriteError(c, fmt.Errorf("missing bearer token: %w", berr.ErrUnauthorized))
				return
			}

			c.Next()

			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			WriteError(c, fmt.Errorf("malformed authorization header: %w", berr.ErrUnauthorized))
			return
		}

		p, err := parser.Parse(strings.TrimSpace(token))
		if err != nil {
			WriteError(c, err)
			return
		}

		c.Request = c.Request.WithContext(security.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}
