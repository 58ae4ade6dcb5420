package hosting

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/next-trace/scg-shared-kernel/behavior"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// CodeInternal is reported for errors that carry no code.
const CodeInternal = "kernel.internal"

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// StatusFor maps a coded error to an HTTP status.
func StatusFor(err error) int {
	switch berr.CodeOf(err) {
	case "":
		if err == nil {
			return http.StatusOK
		}

		return http.StatusInternalServerError
	case berr.ErrCodeValidation:
		return http.StatusBadRequest
	case berr.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case berr.ErrCodeForbidden:
		return http.StatusForbidden
	case berr.ErrCodeNotFound, berr.ErrCodeHandlerNotFound:
		return http.StatusNotFound
	case berr.ErrCodeConflict, berr.ErrCodeDuplicateRequest:
		return http.StatusConflict
	case berr.ErrCodeCircuitOpen, berr.ErrCodeBusClosed, berr.ErrCodeAsyncNotConfigured,
		berr.ErrCodeEnqueueFailed, berr.ErrCodePublishFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorBody builds the envelope for err. Server side failures are not described to the caller.
func NewErrorBody(err error) ErrorBody {
	body := ErrorBody{Code: berr.CodeOf(err), Message: err.Error()}
	if body.Code == "" {
		body.Code = CodeInternal
	}

	if StatusFor(err) >= http.StatusInternalServerError {
		body.Message = http.StatusText(StatusFor(err))
	}

	var verr *behavior.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	return body
}

// WriteError aborts the request with the status and envelope for err.
func WriteError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(err), NewErrorBody(err))
}
