// Package wire builds the transport neutral message every adapter sends:
// destination, JSON body, headers and delay.
package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strconv"
	"time"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

const (
	CommandPrefix  = "cmd."
	ListenerPrefix = "listener."

	// HeaderKey carries the partition or ordering key of integration events.
	HeaderKey = "key"
)

// Message is one outgoing delivery.
type Message struct {
	Destination string
	Key         string
	Body        []byte
	Headers     map[string]string
	Delay       time.Duration

	label string
	wrap  error
}

// Label names the operation for error messages, e.g. "enqueue listener".
func (m Message) Label() string { return m.label }

// Command builds the message for a queued command: cmd.<queue> or cmd.<Type>.
func Command(cmd any, o cbus.QueueOptions) (Message, error) {
	dest := CommandPrefix + TypeName(cmd)
	if o.Queue != "" {
		dest = CommandPrefix + o.Queue
	}

	return build(cmd, dest, "", queueHeaders(o), delay(o), "enqueue", berr.ErrEnqueueFailed)
}

// Listener builds the message for a queued listener: cmd.<queue> or listener.<Event>.<Handler>.
func Listener(evt any, handler string, o cbus.QueueOptions) (Message, error) {
	dest := ListenerPrefix + TypeName(evt) + "." + handler
	if o.Queue != "" {
		dest = CommandPrefix + o.Queue
	}

	return build(evt, dest, "", queueHeaders(o), delay(o), "enqueue listener", berr.ErrEnqueueFailed)
}

// Integration builds the message for an integration event on its topic or the override.
func Integration(e cbus.IntegrationEvent, o cbus.PublishOptions) (Message, error) {
	dest := e.Topic()
	if o.TopicOverride != "" {
		dest = o.TopicOverride
	}

	h := maps.Clone(o.Headers)
	if h == nil {
		h = make(map[string]string, 1)
	}

	if o.Key != "" {
		h[HeaderKey] = o.Key
	}

	return build(e, dest, o.Key, h, 0, "publish", berr.ErrPublishFailed)
}

func build(v any, dest, key string, h map[string]string, d time.Duration, label string, wrap error) (Message, error) {
	m := Message{Destination: dest, Key: key, Headers: h, Delay: d, label: label, wrap: wrap}

	body, err := json.Marshal(v)
	if err != nil {
		return m, fmt.Errorf("%s %s serialize: %w", label, dest, errors.Join(berr.ErrSerializationFailed, err))
	}

	m.Body = body

	return m, nil
}

// Inject adds trace headers when p is set.
func (m Message) Inject(ctx context.Context, p cbus.HeaderPropagator) {
	if p != nil {
		p.Inject(ctx, m.Headers)
	}
}

// Fail wraps a transport error with the coded error for the operation.
// Context errors are returned as they are.
func (m Message) Fail(transport string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%s %s %s: %w", transport, m.label, m.Destination, errors.Join(m.wrap, err))
}

// Unavailable reports a missing client for the operation.
func Unavailable(transport, label string, base error) error {
	return fmt.Errorf("%s %s: client not configured: %w", transport, label, base)
}

func queueHeaders(o cbus.QueueOptions) map[string]string {
	h := maps.Clone(o.Headers)
	if h == nil {
		h = make(map[string]string, 1)
	}

	if o.DelaySeconds > 0 {
		h[cbus.HeaderDelay] = strconv.Itoa(o.DelaySeconds)
	}

	return h
}

func delay(o cbus.QueueOptions) time.Duration {
	if o.DelaySeconds <= 0 {
		return 0
	}

	return time.Duration(o.DelaySeconds) * time.Second
}

// DelayOf reads the delay header back; zero when absent or malformed.
func DelayOf(h map[string]string) time.Duration {
	n, err := strconv.Atoi(h[cbus.HeaderDelay])
	if err != nil || n <= 0 {
		return 0
	}

	return time.Duration(n) * time.Second
}

// TypeName is the unqualified type name used in destinations.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Name() != "" {
		return t.Name()
	}

	return t.String()
}

// StringHeaders flattens broker header values to strings.
func StringHeaders[V any](in map[string]V) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch s := any(v).(type) {
		case string:
			out[k] = s
		case []byte:
			out[k] = string(s)
		default:
			out[k] = fmt.Sprint(s)
		}
	}

	return out
}
