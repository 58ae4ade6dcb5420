package servicebus

import (
	"context"
	"reflect"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// Kind tells middleware which pipeline a request is travelling through.
type Kind string

const (
	KindCommand Kind = "command"
	KindQuery   Kind = "query"
)

type kindKey struct{}

func withKind(ctx context.Context, k Kind) context.Context {
	return context.WithValue(ctx, kindKey{}, k)
}

// KindFrom returns the kind of the request being handled, or "" outside a pipeline.
func KindFrom(ctx context.Context) Kind {
	k, _ := ctx.Value(kindKey{}).(Kind)
	return k
}

// MessageName returns the name a message is registered and transported under:
// cbus.Named.MessageName when implemented, the package qualified type name otherwise.
func MessageName(v any) string {
	if n, ok := v.(cbus.Named); ok {
		if s := n.MessageName(); s != "" {
			return s
		}
	}

	return typeString(v)
}

func typeString(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}

	return t.String()
}
