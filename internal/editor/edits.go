package editor

import (
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
)

// Geometry is a numeric position/size edit. Nil fields are left untouched.
type Geometry struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// editElement applies mutate to the element with the id (or the selection when id
// is empty) and commits once when the result differs and remains valid.
func (c *Controller) editElement(operation, id string, mutate func(*cards.Element) bool) (outcome Outcome) {
	defer c.guard(operation, &outcome)
	c.settle()
	if strings.TrimSpace(id) == "" {
		id = c.selectionID
	}
	layer := c.ws.activeLayer()
	index := cards.IndexOf(layer.elements, id)
	if index < 0 {
		return Outcome{Warning: "element_not_found"}
	}
	before := layer.elements[index]
	after := before.Clone()
	if !mutate(&after) {
		return Outcome{Warning: "invalid_edit"}
	}
	if err := after.Validate(); err != nil {
		return Outcome{Warning: "invalid_edit"}
	}
	if cards.EqualElement(before, after) {
		return Outcome{}
	}
	layer.elements[index] = after
	layer.commit()
	c.ws.changed(ChangeCommit, true)
	return Outcome{Changed: true, Committed: true}
}

// SetStyle merges the patch into the element's style.
func (c *Controller) SetStyle(id string, patch cards.StylePatch) Outcome {
	return c.editElement("set_style", id, func(element *cards.Element) bool {
		element.Style = patch.Apply(element.Style)
		return true
	})
}

// SetContent replaces the literal content.
func (c *Controller) SetContent(id, content string) Outcome {
	return c.editElement("set_content", id, func(element *cards.Element) bool {
		if element.Type == cards.ElementTypeShape {
			return false
		}
		element.Content = content
		return true
	})
}

// SetBinding binds the element to a record field. An empty field makes it static.
func (c *Controller) SetBinding(id, field string) Outcome {
	field = strings.TrimSpace(field)
	if field == "" {
		return c.SetStatic(id)
	}
	return c.editElement("set_binding", id, func(element *cards.Element) bool {
		if element.Type == cards.ElementTypeShape {
			return false
		}
		element.IsDynamic = true
		element.DataField = field
		if element.Type == cards.ElementTypeText {
			element.Content = "{" + field + "}"
		}
		return true
	})
}

// SetStatic removes the record binding and keeps the current content.
func (c *Controller) SetStatic(id string) Outcome {
	return c.editElement("set_static", id, func(element *cards.Element) bool {
		element.IsDynamic = false
		element.DataField = ""
		return true
	})
}

// SetGeometry applies numeric position and size inputs with the size floor.
func (c *Controller) SetGeometry(id string, geometry Geometry) Outcome {
	return c.editElement("set_geometry", id, func(element *cards.Element) bool {
		if geometry.X != nil {
			element.X = *geometry.X
		}
		if geometry.Y != nil {
			element.Y = *geometry.Y
		}
		if geometry.Width != nil {
			element.Width = cards.ClampSize(*geometry.Width)
		}
		if geometry.Height != nil {
			element.Height = cards.ClampSize(*geometry.Height)
		}
		return true
	})
}

// SetShapeType switches a shape between rectangle and circle.
func (c *Controller) SetShapeType(id string, shape cards.ShapeType) Outcome {
	return c.editElement("set_shape_type", id, func(element *cards.Element) bool {
		if element.Type != cards.ElementTypeShape {
			return false
		}
		element.ShapeType = shape
		return true
	})
}

// SetLocked toggles drag/resize protection.
func (c *Controller) SetLocked(id string, locked bool) Outcome {
	return c.editElement("set_locked", id, func(element *cards.Element) bool {
		element.Locked = locked
		return true
	})
}

// SetVisible shows or hides the element.
func (c *Controller) SetVisible(id string, visible bool) Outcome {
	return c.editElement("set_visible", id, func(element *cards.Element) bool {
		element.Visible = cards.BoolPtr(visible)
		return true
	})
}

// SetOpacity sets the opacity, clamped to [0,1].
func (c *Controller) SetOpacity(id string, opacity float64) Outcome {
	return c.editElement("set_opacity", id, func(element *cards.Element) bool {
		element.Opacity = cards.Float64Ptr(cards.ClampOpacity(opacity))
		return true
	})
}
