package editor

import (
	"fmt"
	"math"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"go.uber.org/zap"
)

const (
	// DragThreshold is the pointer travel, in canvas pixels, that turns a press into a drag.
	DragThreshold = 5.0
	// ResizeHandleSize is the half-width of the bottom-right resize hot zone.
	ResizeHandleSize = 8.0
	// DuplicateOffset is the displacement applied to duplicated elements.
	DuplicateOffset = 20.0
)

type gestureMode int

const (
	gestureIdle gestureMode = iota
	gesturePending
	gestureDragging
	gestureResizing
)

type gesture struct {
	mode      gestureMode
	elementID string
	offsetX   float64
	offsetY   float64
	startX    float64
	startY    float64
	changed   bool
}

// PointerEvent is a pointer position in screen space, optionally naming the element under it.
type PointerEvent struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ElementID string  `json:"elementId,omitempty"`
}

// Outcome reports what an editor operation did.
type Outcome struct {
	Changed       bool   `json:"changed"`
	Committed     bool   `json:"committed"`
	CreatedID     string `json:"createdId,omitempty"`
	EditElementID string `json:"editElementId,omitempty"`
	SaveRequested bool   `json:"saveRequested,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

type workspace interface {
	activeLayer() *Layer
	changed(kind ChangeKind, committed bool)
}

// Controller turns pointer, keyboard and panel input into mutations of the active layer.
type Controller struct {
	ws          workspace
	ids         cards.IDProvider
	logger      *zap.Logger
	tool        Tool
	textKind    cards.TextKind
	shapeKind   cards.ShapeType
	selectionID string
	gesture     gesture
	zoom        float64
}

func newController(ws workspace, ids cards.IDProvider, logger *zap.Logger) *Controller {
	return &Controller{
		ws:        ws,
		ids:       ids,
		logger:    logger,
		tool:      ToolSelect,
		textKind:  cards.TextStatic,
		shapeKind: cards.ShapeRectangle,
		zoom:      DefaultZoom,
	}
}

// guard converts a panic inside an entry point into a warning and rolls the
// active layer back to its last committed state.
func (c *Controller) guard(operation string, outcome *Outcome) {
	recovered := recover()
	if recovered == nil {
		return
	}
	c.logger.Error("editor operation failed",
		zap.String("operation", operation),
		zap.String("panic", fmt.Sprint(recovered)))
	c.gesture = gesture{}
	if layer := c.ws.activeLayer(); layer != nil {
		layer.restore()
	}
	*outcome = Outcome{Changed: true, Warning: "internal_error"}
}

// Tool returns the active tool.
func (c *Controller) Tool() Tool {
	return c.tool
}

// SetTool switches the active tool and settles any gesture in flight.
func (c *Controller) SetTool(tool Tool) (outcome Outcome) {
	defer c.guard("set_tool", &outcome)
	if _, err := ParseTool(string(tool)); err != nil {
		return Outcome{Warning: "unknown_tool"}
	}
	outcome = c.settle()
	if c.tool != tool {
		c.tool = tool
		outcome.Changed = true
		c.ws.changed(ChangeTool, false)
	}
	return outcome
}

// TextKind returns the kind of text the text tool places.
func (c *Controller) TextKind() cards.TextKind {
	return c.textKind
}

// SetTextKind selects static or dynamic text for the text tool.
func (c *Controller) SetTextKind(kind cards.TextKind) Outcome {
	if kind != cards.TextStatic && kind != cards.TextDynamic {
		return Outcome{Warning: "unknown_text_kind"}
	}
	changed := c.textKind != kind
	c.textKind = kind
	return Outcome{Changed: changed}
}

// ShapeKind returns the outline the shape tool places.
func (c *Controller) ShapeKind() cards.ShapeType {
	return c.shapeKind
}

// SetShapeKind selects rectangle or circle for the shape tool.
func (c *Controller) SetShapeKind(shape cards.ShapeType) Outcome {
	if _, err := cards.ParseShapeType(string(shape)); err != nil {
		return Outcome{Warning: "unknown_shape_type"}
	}
	changed := c.shapeKind != shape
	c.shapeKind = shape
	return Outcome{Changed: changed}
}

// Zoom returns the canvas zoom factor.
func (c *Controller) Zoom() float64 {
	return c.zoom
}

// SetZoom snaps value to the nearest preset.
func (c *Controller) SetZoom(value float64) Outcome {
	next := SnapZoom(value)
	if next == c.zoom {
		return Outcome{}
	}
	c.zoom = next
	c.ws.changed(ChangeZoom, false)
	return Outcome{Changed: true}
}

// ZoomIn steps to the next larger preset.
func (c *Controller) ZoomIn() Outcome {
	return c.SetZoom(StepZoom(c.zoom, 1))
}

// ZoomOut steps to the next smaller preset.
func (c *Controller) ZoomOut() Outcome {
	return c.SetZoom(StepZoom(c.zoom, -1))
}

// Selection returns the selected element id, or "".
func (c *Controller) Selection() string {
	return c.selectionID
}

// Select marks the element as selected when it exists on the active side.
func (c *Controller) Select(id string) Outcome {
	layer := c.ws.activeLayer()
	if cards.IndexOf(layer.elements, id) < 0 {
		return Outcome{Warning: "element_not_found"}
	}
	if c.selectionID == id {
		return Outcome{}
	}
	c.selectionID = id
	c.ws.changed(ChangeSelection, false)
	return Outcome{Changed: true}
}

// ClearSelection drops the selection and settles any gesture.
func (c *Controller) ClearSelection() Outcome {
	outcome := c.settle()
	if c.selectionID != "" {
		c.selectionID = ""
		outcome.Changed = true
		c.ws.changed(ChangeSelection, false)
	}
	return outcome
}

// Gesturing reports whether a drag or resize is in flight.
func (c *Controller) Gesturing() bool {
	return c.gesture.mode == gestureDragging || c.gesture.mode == gestureResizing
}

func (c *Controller) canvasPoint(event PointerEvent) (float64, float64) {
	zoom := c.zoom
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return event.X / zoom, event.Y / zoom
}

func inResizeZone(element cards.Element, x, y float64) bool {
	return math.Abs(x-(element.X+element.Width)) <= ResizeHandleSize &&
		math.Abs(y-(element.Y+element.Height)) <= ResizeHandleSize
}

// pick returns the element the pointer targets: the named element when it is
// on the active side, otherwise the topmost visible element under the point.
// With skipLocked, locked elements are transparent to the pointer.
func pick(elements []cards.Element, x, y float64, preferredID string, skipLocked bool) (cards.Element, bool) {
	if element, ok := cards.Find(elements, preferredID); ok && element.IsVisible() && !(skipLocked && element.Locked) {
		return element, true
	}
	sorted := cards.SortByZ(elements)
	for index := len(sorted) - 1; index >= 0; index-- {
		element := sorted[index]
		if !element.IsVisible() || (skipLocked && element.Locked) {
			continue
		}
		if element.Contains(x, y) || inResizeZone(element, x, y) {
			return element, true
		}
	}
	return cards.Element{}, false
}

// settle ends the gesture in flight, committing it when it moved anything.
func (c *Controller) settle() Outcome {
	current := c.gesture
	c.gesture = gesture{}
	if !current.changed {
		return Outcome{}
	}
	c.ws.activeLayer().commit()
	c.ws.changed(ChangeCommit, true)
	return Outcome{Changed: true, Committed: true}
}

// PointerDown starts a selection, pending drag or resize in the select tool.
func (c *Controller) PointerDown(event PointerEvent) (outcome Outcome) {
	defer c.guard("pointer_down", &outcome)
	outcome = c.settle()
	if c.tool != ToolSelect {
		return outcome
	}

	x, y := c.canvasPoint(event)
	layer := c.ws.activeLayer()
	target, ok := pick(layer.elements, x, y, event.ElementID, true)
	if !ok {
		// Locked elements stay selectable when nothing draggable is under the pointer.
		target, ok = pick(layer.elements, x, y, event.ElementID, false)
	}
	if !ok {
		if c.selectionID != "" {
			c.selectionID = ""
			outcome.Changed = true
			c.ws.changed(ChangeSelection, false)
		}
		return outcome
	}

	if c.selectionID != target.ID {
		c.selectionID = target.ID
		outcome.Changed = true
		c.ws.changed(ChangeSelection, false)
	}
	if target.Locked {
		return outcome
	}

	if inResizeZone(target, x, y) {
		c.gesture = gesture{mode: gestureResizing, elementID: target.ID, startX: x, startY: y}
		return outcome
	}
	c.gesture = gesture{
		mode:      gesturePending,
		elementID: target.ID,
		offsetX:   x - target.X,
		offsetY:   y - target.Y,
		startX:    x,
		startY:    y,
	}
	return outcome
}

// PointerMove updates the dragged or resized element live, without committing.
func (c *Controller) PointerMove(event PointerEvent) (outcome Outcome) {
	defer c.guard("pointer_move", &outcome)
	if c.gesture.mode == gestureIdle {
		return Outcome{}
	}
	x, y := c.canvasPoint(event)
	layer := c.ws.activeLayer()
	index := cards.IndexOf(layer.elements, c.gesture.elementID)
	if index < 0 {
		c.gesture = gesture{}
		return Outcome{}
	}

	if c.gesture.mode == gesturePending {
		if math.Hypot(x-c.gesture.startX, y-c.gesture.startY) <= DragThreshold {
			return Outcome{}
		}
		c.gesture.mode = gestureDragging
	}

	element := &layer.elements[index]
	switch c.gesture.mode {
	case gestureDragging:
		nextX, nextY := x-c.gesture.offsetX, y-c.gesture.offsetY
		if nextX == element.X && nextY == element.Y {
			return Outcome{}
		}
		element.X, element.Y = nextX, nextY
	case gestureResizing:
		nextWidth := cards.ClampSize(x - element.X)
		nextHeight := cards.ClampSize(y - element.Y)
		if nextWidth == element.Width && nextHeight == element.Height {
			return Outcome{}
		}
		element.Width, element.Height = nextWidth, nextHeight
	}
	c.gesture.changed = true
	c.ws.changed(ChangeLive, false)
	return Outcome{Changed: true}
}

// PointerUp ends the gesture. Only a gesture that moved or resized commits.
func (c *Controller) PointerUp(event PointerEvent) (outcome Outcome) {
	defer c.guard("pointer_up", &outcome)
	return c.settle()
}

// PointerLeave ends the gesture the same way PointerUp does.
func (c *Controller) PointerLeave() (outcome Outcome) {
	defer c.guard("pointer_leave", &outcome)
	return c.settle()
}

// Click places a new element centred on the point when a placement tool is active.
func (c *Controller) Click(event PointerEvent) (outcome Outcome) {
	defer c.guard("click", &outcome)
	elementType, placing := c.tool.elementType()
	if !placing {
		return Outcome{}
	}
	outcome = c.settle()
	x, y := c.canvasPoint(event)
	width, height := cards.DefaultSize(elementType)
	added := c.addElement(elementType, x-width/2, y-height/2)
	c.tool = ToolSelect
	added.Committed = added.Committed || outcome.Committed
	return added
}

// DoubleClick asks the host to open content editing for a text element.
func (c *Controller) DoubleClick(event PointerEvent) (outcome Outcome) {
	defer c.guard("double_click", &outcome)
	x, y := c.canvasPoint(event)
	target, ok := pick(c.ws.activeLayer().elements, x, y, event.ElementID, false)
	if !ok || target.Type != cards.ElementTypeText {
		return Outcome{}
	}
	c.gesture = gesture{}
	c.tool = ToolSelect
	outcome = Outcome{EditElementID: target.ID}
	if c.selectionID != target.ID {
		c.selectionID = target.ID
		outcome.Changed = true
		c.ws.changed(ChangeSelection, false)
	}
	return outcome
}

// AddElement places a new element of the type with its top-left corner at (x, y).
func (c *Controller) AddElement(elementType cards.ElementType, x, y float64) (outcome Outcome) {
	defer c.guard("add_element", &outcome)
	if !elementType.Valid() {
		return Outcome{Warning: "unknown_element_type"}
	}
	c.settle()
	return c.addElement(elementType, x, y)
}

func (c *Controller) addElement(elementType cards.ElementType, x, y float64) Outcome {
	layer := c.ws.activeLayer()
	id, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("element id generation failed", zap.Error(err))
		return Outcome{Warning: "id_generation_failed"}
	}
	element, err := cards.NewElement(id, elementType, x, y, len(layer.elements)+1, cards.NewElementOptions{
		TextKind:  c.textKind,
		ShapeType: c.shapeKind,
	})
	if err != nil {
		return Outcome{Warning: "invalid_element"}
	}
	layer.elements = append(layer.elements, element)
	c.selectionID = element.ID
	layer.commit()
	c.ws.changed(ChangeCommit, true)
	return Outcome{Changed: true, Committed: true, CreatedID: element.ID}
}

// Delete removes the selected element and renormalizes the layer order.
func (c *Controller) Delete() (outcome Outcome) {
	defer c.guard("delete", &outcome)
	c.settle()
	layer := c.ws.activeLayer()
	index := cards.IndexOf(layer.elements, c.selectionID)
	if index < 0 {
		return Outcome{}
	}
	remaining := make([]cards.Element, 0, len(layer.elements)-1)
	remaining = append(remaining, layer.elements[:index]...)
	remaining = append(remaining, layer.elements[index+1:]...)
	layer.elements = cards.Renormalize(remaining)
	c.selectionID = ""
	layer.commit()
	c.ws.changed(ChangeCommit, true)
	return Outcome{Changed: true, Committed: true}
}

// Duplicate clones the selected element with an offset and selects the clone.
func (c *Controller) Duplicate() (outcome Outcome) {
	defer c.guard("duplicate", &outcome)
	c.settle()
	layer := c.ws.activeLayer()
	source, ok := cards.Find(layer.elements, c.selectionID)
	if !ok {
		return Outcome{}
	}
	id, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("element id generation failed", zap.Error(err))
		return Outcome{Warning: "id_generation_failed"}
	}
	clone := source.Clone()
	clone.ID = id
	clone.X += DuplicateOffset
	clone.Y += DuplicateOffset
	clone.ZIndex = len(layer.elements) + 1
	layer.elements = append(layer.elements, clone)
	c.selectionID = clone.ID
	layer.commit()
	c.ws.changed(ChangeCommit, true)
	return Outcome{Changed: true, Committed: true, CreatedID: clone.ID}
}

// BringForward swaps the selection with its upper neighbour.
func (c *Controller) BringForward() (outcome Outcome) {
	defer c.guard("bring_forward", &outcome)
	return c.reorder(1)
}

// SendBackward swaps the selection with its lower neighbour.
func (c *Controller) SendBackward() (outcome Outcome) {
	defer c.guard("send_backward", &outcome)
	return c.reorder(-1)
}

func (c *Controller) reorder(direction int) Outcome {
	c.settle()
	layer := c.ws.activeLayer()
	sorted := cards.SortByZ(layer.elements)
	index := cards.IndexOf(sorted, c.selectionID)
	if index < 0 {
		return Outcome{}
	}
	neighbour := index + direction
	if neighbour >= 0 && neighbour < len(sorted) {
		sorted[index], sorted[neighbour] = sorted[neighbour], sorted[index]
	}
	return c.commitOrder(layer, sorted)
}

// MoveLayer moves the dragged element to the target's position in the layer order.
func (c *Controller) MoveLayer(draggedID, targetID string) (outcome Outcome) {
	defer c.guard("move_layer", &outcome)
	c.settle()
	layer := c.ws.activeLayer()
	sorted := cards.SortByZ(layer.elements)
	from := cards.IndexOf(sorted, draggedID)
	to := cards.IndexOf(sorted, targetID)
	if from < 0 || to < 0 {
		return Outcome{Warning: "element_not_found"}
	}
	moved := sorted[from]
	reordered := make([]cards.Element, 0, len(sorted))
	reordered = append(reordered, sorted[:from]...)
	reordered = append(reordered, sorted[from+1:]...)
	reordered = append(reordered[:to], append([]cards.Element{moved}, reordered[to:]...)...)
	return c.commitOrder(layer, reordered)
}

// commitOrder assigns zIndex 1..N in the given order and commits when anything moved.
func (c *Controller) commitOrder(layer *Layer, ordered []cards.Element) Outcome {
	for index := range ordered {
		ordered[index].ZIndex = index + 1
	}
	if cards.EqualElements(cards.SortByZ(layer.elements), ordered) {
		return Outcome{}
	}
	layer.elements = ordered
	layer.commit()
	c.ws.changed(ChangeCommit, true)
	return Outcome{Changed: true, Committed: true}
}

// Undo restores the previous committed state of the active side.
func (c *Controller) Undo() (outcome Outcome) {
	defer c.guard("undo", &outcome)
	c.settle()
	layer := c.ws.activeLayer()
	elements, ok := layer.history.Undo()
	if !ok {
		return Outcome{}
	}
	c.applyHistory(layer, elements)
	c.ws.changed(ChangeUndo, true)
	return Outcome{Changed: true}
}

// Redo re-applies the next committed state of the active side.
func (c *Controller) Redo() (outcome Outcome) {
	defer c.guard("redo", &outcome)
	c.settle()
	layer := c.ws.activeLayer()
	elements, ok := layer.history.Redo()
	if !ok {
		return Outcome{}
	}
	c.applyHistory(layer, elements)
	c.ws.changed(ChangeRedo, true)
	return Outcome{Changed: true}
}

func (c *Controller) applyHistory(layer *Layer, elements []cards.Element) {
	layer.elements = elements
	if cards.IndexOf(layer.elements, c.selectionID) < 0 {
		c.selectionID = ""
	}
}

// resetInteraction drops the gesture and selection without committing.
func (c *Controller) resetInteraction() {
	c.gesture = gesture{}
	c.selectionID = ""
}
