package behavior

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// ValidationError maps each invalid field to the rule it broke. It matches ErrValidation.
type ValidationError struct {
	Request string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+e.Fields[k])
	}

	return fmt.Sprintf("%s: %s: %s", e.Request, berr.ErrValidation, strings.Join(parts, ", "))
}

// Unwrap exposes the coded error.
func (e *ValidationError) Unwrap() error { return berr.ErrValidation }

// Validation runs struct tag validation on struct (or pointer to struct) requests.
// A nil validate uses a default instance.
func Validation(validate *validator.Validate) servicebus.Middleware {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			if !isStruct(req) {
				return next(ctx, req)
			}

			if err := validate.StructCtx(ctx, req); err != nil {
				var verrs validator.ValidationErrors
				if !errors.As(err, &verrs) {
					return nil, fmt.Errorf("validate %s: %w", servicebus.MessageName(req), err)
				}

				fields := make(map[string]string, len(verrs))
				for _, fe := range verrs {
					fields[fieldPath(fe)] = fe.Tag()
				}

				return nil, &ValidationError{Request: servicebus.MessageName(req), Fields: fields}
			}

			return next(ctx, req)
		}
	}
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}

	return fe.Field()
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}

	if t.Kind() == reflect.Pointer {
		if reflect.ValueOf(v).IsNil() {
			return false
		}

		t = t.Elem()
	}

	return t.Kind() == reflect.Struct
}
