package editor

import "github.com/MarcoPoloResearchLab/idcards/internal/cards"

// Layer is one side's live element collection and its history.
type Layer struct {
	elements []cards.Element
	history  *History
}

func newLayer() *Layer {
	layer := &Layer{elements: []cards.Element{}, history: NewHistory()}
	layer.history.Reset(layer.elements)
	return layer
}

// Elements returns a deep copy of the live collection.
func (l *Layer) Elements() []cards.Element {
	return cards.CloneElements(l.elements)
}

// CanUndo reports whether undo would change the collection.
func (l *Layer) CanUndo() bool {
	return l.history.CanUndo()
}

// CanRedo reports whether redo would change the collection.
func (l *Layer) CanRedo() bool {
	return l.history.CanRedo()
}

func (l *Layer) replace(elements []cards.Element) {
	l.elements = cards.CloneElements(elements)
}

// committed returns a copy of the entry under the history cursor.
func (l *Layer) committed() []cards.Element {
	if current, ok := l.history.Current(); ok {
		return current
	}
	return l.Elements()
}

func (l *Layer) commit() {
	l.history.Commit(l.elements)
}

func (l *Layer) reset(elements []cards.Element) {
	l.replace(elements)
	l.history.Reset(l.elements)
}

// restore rolls the live collection back to the entry under the history cursor.
func (l *Layer) restore() {
	if current, ok := l.history.Current(); ok {
		l.elements = current
	}
}
