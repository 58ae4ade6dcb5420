package servicebus

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// TypeRegistry maps message names to Go types so consumers can rebuild messages
// from transport payloads. Every Bind on a Bus registers the bound type.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byName: make(map[string]reflect.Type)}
}

// Register records t under its message name and returns that name.
func (r *TypeRegistry) Register(t reflect.Type) string {
	name := nameOfType(t)

	r.mu.Lock()
	r.byName[name] = t
	r.mu.Unlock()

	return name
}

// RegisterOf records the type of sample, for messages that are only consumed.
func (r *TypeRegistry) RegisterOf(sample any) string {
	return r.Register(reflect.TypeOf(sample))
}

// Lookup returns the type registered under name.
func (r *TypeRegistry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byName[name]

	return t, ok
}

// Decode builds a value of the type registered under name from a JSON body.
// Pointer types decode into a fresh pointer; value types are returned by value.
func (r *TypeRegistry) Decode(name string, body []byte) (any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("decode %q: %w", name, berr.ErrUnknownMessageType)
	}

	var ptr reflect.Value
	if t.Kind() == reflect.Pointer {
		ptr = reflect.New(t.Elem())
	} else {
		ptr = reflect.New(t)
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode %q: %w", name, errors.Join(berr.ErrSerializationFailed, err))
		}
	}

	if t.Kind() == reflect.Pointer {
		return ptr.Interface(), nil
	}

	return ptr.Elem().Interface(), nil
}

func nameOfType(t reflect.Type) string {
	var v any
	if t.Kind() == reflect.Pointer {
		v = reflect.New(t.Elem()).Interface()
	} else {
		v = reflect.New(t).Elem().Interface()
	}

	if n, ok := v.(cbus.Named); ok {
		if s := n.MessageName(); s != "" {
			return s
		}
	}

	return t.String()
}
