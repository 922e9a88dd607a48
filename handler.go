package rewind

import "encoding/json"

// Handler receives Events published by a Hub
type Handler func(*Event) error

// MakeHandler adapts a function that accepts an Event's decoded Data
func MakeHandler[T any](fn func(ev *Event, data T) error) Handler {
	return func(ev *Event) error {
		var data T
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return err
		}
		return fn(ev, data)
	}
}

// MakeCommandHandler adapts a function that accepts the Commands carried by
// an Event, decoded with the provided Decoders
func MakeCommandHandler[V comparable](
	dec Decoders[V], fn func(ev *Event, cmds []Command[V]) error,
) Handler {
	return func(ev *Event) error {
		cmds, err := dec.Decode(ev.Data)
		if err != nil {
			return err
		}
		return fn(ev, cmds)
	}
}

// MakeDispatcher routes Events to the Handler registered for their type.
// Events with no registered Handler are ignored
func MakeDispatcher(handlers map[EventType]Handler) Handler {
	return func(ev *Event) error {
		if fn, ok := handlers[ev.Type]; ok {
			return fn(ev)
		}
		return nil
	}
}
