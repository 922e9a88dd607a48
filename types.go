package rewind

import (
	"encoding/json"
	"time"
)

type (
	// Key identifies a single entry in a State
	Key string

	// Version is a monotonically increasing counter. Snapshots carry the
	// version assigned by their Checkpoints manager, and Events carry the
	// version of the Coordinator after the step they describe
	Version int64

	// TxID identifies a transaction. Identifiers are never reused
	TxID string

	// CommandType tags a Command variant for encoding and decoding
	CommandType string

	// EventType tags an Event published by the Coordinator
	EventType string

	// Event describes a completed Coordinator step. Data holds the JSON
	// encoded commands that the step applied to the State, in order
	Event struct {
		Timestamp time.Time       `json:"timestamp"`
		Type      EventType       `json:"type"`
		TxID      TxID            `json:"tx_id,omitempty"`
		Version   Version         `json:"version"`
		Data      json.RawMessage `json:"data"`
	}
)

const (
	EventCommitted  EventType = "committed"
	EventRolledBack EventType = "rolled-back"
	EventUndone     EventType = "undone"
	EventRedone     EventType = "redone"
)

// StateEvents lists the event types that change State and are therefore
// of interest to a Journal
var StateEvents = []EventType{EventCommitted, EventUndone, EventRedone}
