package bus

// Command is a marker interface for commands (intent to change state).
// A command has exactly one handler.
type Command interface{}

// Query is a marker interface for queries. Queries are handled synchronously and must not change state.
type Query interface{}

// Named lets a message choose the name it is registered and transported under.
// Without it the Go type name (package qualified) is used.
type Named interface {
	MessageName() string
}
