package editor

import "strings"

// KeyEvent is a key press with its modifier state.
type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
	Shift bool   `json:"shift,omitempty"`
}

// HandleKey applies the editor keyboard shortcuts. Unbound keys are no-ops.
func (c *Controller) HandleKey(event KeyEvent) (outcome Outcome) {
	defer c.guard("handle_key", &outcome)
	if event.Ctrl || event.Meta {
		switch strings.ToLower(event.Key) {
		case "z":
			if event.Shift {
				return c.Redo()
			}
			return c.Undo()
		case "y":
			return c.Redo()
		case "d":
			return c.Duplicate()
		case "s":
			outcome = c.settle()
			outcome.SaveRequested = true
			return outcome
		}
		return Outcome{}
	}

	switch event.Key {
	case "Delete", "Backspace":
		return c.Delete()
	case "Escape":
		outcome = c.ClearSelection()
		if c.tool != ToolSelect {
			c.tool = ToolSelect
			outcome.Changed = true
			c.ws.changed(ChangeTool, false)
		}
		return outcome
	}
	return Outcome{}
}
