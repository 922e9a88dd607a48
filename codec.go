package rewind

import (
	"encoding/json"
	"fmt"
)

type (
	// Decoder reconstructs a Command from its JSON encoding
	Decoder[V comparable]  func(json.RawMessage) (Command[V], error)
	Decoders[V comparable] map[CommandType]Decoder[V]

	commandHeader struct {
		Type CommandType `json:"type"`
	}
)

// MakeDecoder adapts a function that builds a Command from a typed record
// into a Decoder
func MakeDecoder[V comparable, Rec any](fn func(Rec) Command[V]) Decoder[V] {
	return func(data json.RawMessage) (Command[V], error) {
		var rec Rec
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		return fn(rec), nil
	}
}

// DefaultDecoders returns Decoders for the built-in Set and Delete commands.
// The returned map may be extended with custom command types
func DefaultDecoders[V comparable]() Decoders[V] {
	return Decoders[V]{
		CommandSet: MakeDecoder(func(rec commandRecord[V]) Command[V] {
			res := SetCommand[V]{key: rec.Key, existed: rec.Existed}
			if rec.Value != nil {
				res.value = *rec.Value
			}
			if rec.Prior != nil {
				res.prior = *rec.Prior
			}
			return res
		}),
		CommandDelete: MakeDecoder(func(rec commandRecord[V]) Command[V] {
			res := DeleteCommand[V]{key: rec.Key, existed: rec.Existed}
			if rec.Prior != nil {
				res.prior = *rec.Prior
			}
			return res
		}),
	}
}

// EncodeCommands encodes commands as a JSON array. Every Command must be
// marshalable by encoding/json
func EncodeCommands[V comparable](cmds []Command[V]) (json.RawMessage, error) {
	if len(cmds) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(cmds)
}

// Decode decodes a JSON array of commands, dispatching on each element's
// type tag
func (d Decoders[V]) Decode(data json.RawMessage) ([]Command[V], error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	res := make([]Command[V], 0, len(raw))
	for _, item := range raw {
		var hdr commandHeader
		if err := json.Unmarshal(item, &hdr); err != nil {
			return nil, err
		}
		dec, ok := d[hdr.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, hdr.Type)
		}
		cmd, err := dec(item)
		if err != nil {
			return nil, err
		}
		res = append(res, cmd)
	}
	return res, nil
}
