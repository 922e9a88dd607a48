package rewind

type (
	// History records committed Commands on an undo stack and keeps undone
	// Commands on a redo stack until new forward progress is recorded. It
	// never touches State: Undo and Redo return the Command to apply. A
	// History is not safe for concurrent use
	History[V comparable] struct {
		undo  []historyEntry[V]
		redo  []historyEntry[V]
		limit int
	}

	historyEntry[V comparable] struct {
		cmd Command[V]
		tx  TxID
	}
)

// NewHistory creates an empty History. If limit is greater than zero, the
// undo stack holds at most limit Commands and the oldest are discarded
func NewHistory[V comparable](limit int) *History[V] {
	return &History[V]{limit: limit}
}

// Record pushes a Command onto the undo stack and clears the redo stack
func (h *History[V]) Record(cmd Command[V]) error {
	return h.RecordAll("", []Command[V]{cmd})
}

// RecordAll pushes the Commands of a transaction onto the undo stack in
// order and clears the redo stack once. Nothing is recorded unless every
// Command is valid
func (h *History[V]) RecordAll(tx TxID, cmds []Command[V]) error {
	for _, cmd := range cmds {
		if cmd == nil {
			return ErrNilCommand
		}
	}
	if len(cmds) == 0 {
		return nil
	}

	for _, cmd := range cmds {
		h.undo = append(h.undo, historyEntry[V]{cmd: cmd, tx: tx})
	}
	h.redo = nil
	h.trim()
	return nil
}

// Undo moves the most recent Command to the redo stack and returns its
// inverse
func (h *History[V]) Undo() (Command[V], error) {
	if len(h.undo) == 0 {
		return nil, ErrEmptyHistory
	}
	last := len(h.undo) - 1
	e := h.undo[last]
	h.undo = h.undo[:last]
	h.redo = append(h.redo, e)
	return e.cmd.Invert(), nil
}

// Redo moves the most recently undone Command back to the undo stack and
// returns it for re-application
func (h *History[V]) Redo() (Command[V], error) {
	if len(h.redo) == 0 {
		return nil, ErrEmptyHistory
	}
	last := len(h.redo) - 1
	e := h.redo[last]
	h.redo = h.redo[:last]
	h.undo = append(h.undo, e)
	return e.cmd, nil
}

// CanUndo reports whether Undo would succeed
func (h *History[_]) CanUndo() bool {
	return len(h.undo) > 0
}

// CanRedo reports whether Redo would succeed
func (h *History[_]) CanRedo() bool {
	return len(h.redo) > 0
}

func (h *History[_]) UndoDepth() int {
	return len(h.undo)
}

func (h *History[_]) RedoDepth() int {
	return len(h.redo)
}

// Clear discards both stacks
func (h *History[_]) Clear() {
	h.undo = nil
	h.redo = nil
}

// peekUndo returns the transaction that owns the top of the undo stack
func (h *History[_]) peekUndo() (TxID, bool) {
	if len(h.undo) == 0 {
		return "", false
	}
	return h.undo[len(h.undo)-1].tx, true
}

func (h *History[_]) peekRedo() (TxID, bool) {
	if len(h.redo) == 0 {
		return "", false
	}
	return h.redo[len(h.redo)-1].tx, true
}

func (h *History[_]) trim() {
	if h.limit <= 0 || len(h.undo) <= h.limit {
		return
	}
	drop := len(h.undo) - h.limit
	h.undo = append(h.undo[:0:0], h.undo[drop:]...)
}
