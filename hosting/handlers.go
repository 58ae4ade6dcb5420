package hosting

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// HandlerOption customizes a generated handler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	status int
}

// WithStatus sets the success status, e.g. http.StatusCreated.
func WithStatus(code int) HandlerOption {
	return func(o *handlerOptions) { o.status = code }
}

func buildOptions(def int, opts []HandlerOption) handlerOptions {
	o := handlerOptions{status: def}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Bind fills a request of type T: the JSON body for requests that carry one,
// the query string otherwise, then route parameters on top.
func Bind[T any](c *gin.Context) (T, error) {
	var req T

	if hasBody(c.Request) {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, fmt.Errorf("bind body: %w: %w", berr.ErrValidation, err)
		}
	} else if err := c.ShouldBindQuery(&req); err != nil {
		return req, fmt.Errorf("bind query: %w: %w", berr.ErrValidation, err)
	}

	if len(c.Params) > 0 {
		if err := c.ShouldBindUri(&req); err != nil {
			return req, fmt.Errorf("bind uri: %w: %w", berr.ErrValidation, err)
		}
	}

	return req, nil
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return false
	}

	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

// Command binds C and dispatches it. Success replies 204 unless WithStatus says otherwise.
func Command[C cbus.Command](b *servicebus.Bus, opts ...HandlerOption) gin.HandlerFunc {
	o := buildOptions(http.StatusNoContent, opts)

	return func(c *gin.Context) {
		cmd, err := Bind[C](c)
		if err != nil {
			WriteError(c, err)
			return
		}

		if err := b.Dispatch(c.Request.Context(), cmd); err != nil {
			WriteError(c, err)
			return
		}

		c.Status(o.status)
	}
}

// CommandResult binds C, sends it and writes the handler's result as JSON (200 by default).
func CommandResult[C cbus.Command, R any](b *servicebus.Bus, opts ...HandlerOption) gin.HandlerFunc {
	o := buildOptions(http.StatusOK, opts)

	return func(c *gin.Context) {
		cmd, err := Bind[C](c)
		if err != nil {
			WriteError(c, err)
			return
		}

		res, err := servicebus.Send[C, R](c.Request.Context(), b, cmd)
		if err != nil {
			WriteError(c, err)
			return
		}

		c.JSON(o.status, res)
	}
}

// Query binds Q, asks it and writes the result as JSON.
func Query[Q cbus.Query, R any](b *servicebus.Bus, opts ...HandlerOption) gin.HandlerFunc {
	o := buildOptions(http.StatusOK, opts)

	return func(c *gin.Context) {
		q, err := Bind[Q](c)
		if err != nil {
			WriteError(c, err)
			return
		}

		res, err := servicebus.Ask[Q, R](c.Request.Context(), b, q)
		if err != nil {
			WriteError(c, err)
			return
		}

		c.JSON(o.status, res)
	}
}
