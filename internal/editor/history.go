package editor

import "github.com/MarcoPoloResearchLab/idcards/internal/cards"

// History is a linear undo/redo stack of deep element snapshots for one side.
type History struct {
	entries [][]cards.Element
	cursor  int
}

// NewHistory returns an empty history. The first commit becomes entry 0.
func NewHistory() *History {
	return &History{cursor: -1}
}

// Reset discards every entry and records elements as the sole baseline.
func (h *History) Reset(elements []cards.Element) {
	h.entries = [][]cards.Element{cards.CloneElements(elements)}
	h.cursor = 0
}

// Commit prunes entries after the cursor and appends a snapshot.
func (h *History) Commit(elements []cards.Element) {
	if h.cursor < 0 {
		h.Reset(elements)
		return
	}
	h.entries = append(h.entries[:h.cursor+1], cards.CloneElements(elements))
	h.cursor = len(h.entries) - 1
}

// Undo steps back one entry. It is a no-op at entry 0.
func (h *History) Undo() ([]cards.Element, bool) {
	if !h.CanUndo() {
		return nil, false
	}
	h.cursor--
	return cards.CloneElements(h.entries[h.cursor]), true
}

// Redo steps forward one entry. It is a no-op at the tail.
func (h *History) Redo() ([]cards.Element, bool) {
	if !h.CanRedo() {
		return nil, false
	}
	h.cursor++
	return cards.CloneElements(h.entries[h.cursor]), true
}

// Current returns a copy of the entry under the cursor.
func (h *History) Current() ([]cards.Element, bool) {
	if h.cursor < 0 {
		return nil, false
	}
	return cards.CloneElements(h.entries[h.cursor]), true
}

// CanUndo reports whether an earlier entry exists.
func (h *History) CanUndo() bool {
	return h.cursor > 0
}

// CanRedo reports whether a later entry exists.
func (h *History) CanRedo() bool {
	return h.cursor >= 0 && h.cursor < len(h.entries)-1
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Cursor returns the current entry index, or -1 for an empty history.
func (h *History) Cursor() int {
	return h.cursor
}
