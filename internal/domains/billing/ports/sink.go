package ports

// SignalSink is the host engine's event dispatch boundary. Emit delivers a
// named signal with an ordered argument list of primitives and structured
// values (map[string]any dictionaries, []any lists). Implementations may
// fail while no listener is attached; the session logs such failures and
// never propagates them.
type SignalSink interface {
	Emit(name string, args ...any) error
}

// SignalSinkFunc adapts a function to the SignalSink interface.
type SignalSinkFunc func(name string, args ...any) error

func (f SignalSinkFunc) Emit(name string, args ...any) error {
	return f(name, args...)
}
