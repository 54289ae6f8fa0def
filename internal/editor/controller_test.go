package editor

import (
	"context"
	"testing"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"go.uber.org/zap"
)

func newTestDocument(t *testing.T) *Document {
	t.Helper()
	document, err := NewDocument(Config{
		Resolver:   templates.NewAdapter(templates.NewRegistry(nil), nil),
		IDProvider: cards.NewSequenceProvider("el"),
	})
	if err != nil {
		t.Fatalf("failed to build document: %v", err)
	}
	return document
}

func TestAddDuplicateUndoDeleteScenario(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()

	outcome := controller.AddElement(cards.ElementTypeText, 100, 100)
	if !outcome.Committed {
		t.Fatalf("expected add to commit")
	}
	elements := document.ActiveElements()
	if len(elements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elements))
	}
	text := elements[0]
	if text.Type != cards.ElementTypeText || text.Width != 150 || text.Height != 30 || text.ZIndex != 1 {
		t.Fatalf("unexpected element %#v", text)
	}

	controller.Duplicate()
	elements = document.ActiveElements()
	if len(elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elements))
	}
	clone := elements[1]
	if clone.X != 120 || clone.Y != 120 || clone.ZIndex != 2 || clone.ID == text.ID {
		t.Fatalf("unexpected duplicate %#v", clone)
	}
	if controller.Selection() != clone.ID {
		t.Fatalf("expected the clone to be selected")
	}

	controller.Undo()
	if len(document.ActiveElements()) != 1 {
		t.Fatalf("expected undo to remove the duplicate")
	}
	if controller.Selection() != "" {
		t.Fatalf("expected dangling selection to be cleared")
	}

	controller.Select(text.ID)
	controller.Delete()
	if len(document.ActiveElements()) != 0 {
		t.Fatalf("expected delete to empty the side")
	}
	controller.Undo()
	restored := document.ActiveElements()
	if len(restored) != 1 || restored[0].ID != text.ID {
		t.Fatalf("expected undo to restore the deleted element, got %#v", restored)
	}
}

func TestDragBelowThresholdDoesNotCommit(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeText, 100, 100)
	id := controller.Selection()
	layer := document.Layer(cards.SideFront)
	entries := layer.history.Len()

	controller.PointerDown(PointerEvent{X: 110, Y: 110, ElementID: id})
	if outcome := controller.PointerMove(PointerEvent{X: 113, Y: 113}); outcome.Changed {
		t.Fatalf("movement under the threshold must not change the element")
	}
	outcome := controller.PointerUp(PointerEvent{X: 113, Y: 113})
	if outcome.Committed {
		t.Fatalf("expected no commit")
	}
	element, _ := cards.Find(document.ActiveElements(), id)
	if element.X != 100 || element.Y != 100 {
		t.Fatalf("expected position unchanged, got %.1f,%.1f", element.X, element.Y)
	}
	if layer.history.Len() != entries {
		t.Fatalf("expected history length %d, got %d", entries, layer.history.Len())
	}
}

func TestDragCommitsOncePerGesture(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeText, 100, 100)
	id := controller.Selection()
	layer := document.Layer(cards.SideFront)
	entries := layer.history.Len()

	controller.PointerDown(PointerEvent{X: 110, Y: 110})
	for _, x := range []float64{120, 130, 140} {
		if outcome := controller.PointerMove(PointerEvent{X: x, Y: 110}); outcome.Committed {
			t.Fatalf("live moves must not commit")
		}
	}
	if !controller.Gesturing() {
		t.Fatalf("expected an active drag")
	}
	outcome := controller.PointerUp(PointerEvent{X: 140, Y: 110})
	if !outcome.Committed {
		t.Fatalf("expected pointer up to commit")
	}
	if layer.history.Len() != entries+1 {
		t.Fatalf("expected exactly one new entry, got %d", layer.history.Len()-entries)
	}
	element, _ := cards.Find(document.ActiveElements(), id)
	if element.X != 130 || element.Y != 100 {
		t.Fatalf("expected pointer minus offset, got %.1f,%.1f", element.X, element.Y)
	}
}

func TestResizeAppliesFloor(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeShape, 100, 100)
	id := controller.Selection()

	controller.PointerDown(PointerEvent{X: 200, Y: 200})
	controller.PointerMove(PointerEvent{X: 260, Y: 240})
	element, _ := cards.Find(document.ActiveElements(), id)
	if element.Width != 160 || element.Height != 140 {
		t.Fatalf("unexpected size %.1fx%.1f", element.Width, element.Height)
	}
	controller.PointerMove(PointerEvent{X: 50, Y: 50})
	element, _ = cards.Find(document.ActiveElements(), id)
	if element.Width != cards.MinElementSize || element.Height != cards.MinElementSize {
		t.Fatalf("expected size floor, got %.1fx%.1f", element.Width, element.Height)
	}
	if outcome := controller.PointerUp(PointerEvent{}); !outcome.Committed {
		t.Fatalf("expected resize to commit")
	}
}

func TestLockedElementIgnoresDrag(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeQR, 10, 10)
	id := controller.Selection()
	controller.SetLocked(id, true)

	controller.PointerDown(PointerEvent{X: 20, Y: 20})
	controller.PointerMove(PointerEvent{X: 80, Y: 80})
	controller.PointerUp(PointerEvent{X: 80, Y: 80})
	element, _ := cards.Find(document.ActiveElements(), id)
	if element.X != 10 || element.Y != 10 {
		t.Fatalf("locked element must not move")
	}
	if controller.Selection() != id {
		t.Fatalf("locked element should remain selectable")
	}
}

func TestLockedElementDoesNotShieldElementBelow(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeShape, 100, 100)
	below := controller.Selection()
	controller.AddElement(cards.ElementTypeShape, 120, 120)
	above := controller.Selection()
	controller.SetLocked(above, true)

	controller.PointerDown(PointerEvent{X: 150, Y: 150})
	if controller.Selection() != below {
		t.Fatalf("expected the unlocked element below to be picked, got %q", controller.Selection())
	}
	controller.PointerMove(PointerEvent{X: 200, Y: 150})
	if outcome := controller.PointerUp(PointerEvent{X: 200, Y: 150}); !outcome.Committed {
		t.Fatalf("expected the drag to commit")
	}
	moved, _ := cards.Find(document.ActiveElements(), below)
	locked, _ := cards.Find(document.ActiveElements(), above)
	if moved.X != 150 || moved.Y != 100 {
		t.Fatalf("expected element below at 150,100, got %.1f,%.1f", moved.X, moved.Y)
	}
	if locked.X != 120 || locked.Y != 120 {
		t.Fatalf("locked element must not move")
	}
}

func TestClickPlacesCenteredElementAndRevertsTool(t *testing.T) {
	testCases := []struct {
		name         string
		tool         Tool
		expectedType cards.ElementType
		expectedX    float64
		expectedY    float64
	}{
		{name: "text", tool: ToolText, expectedType: cards.ElementTypeText, expectedX: 125, expectedY: 135},
		{name: "qr", tool: ToolQR, expectedType: cards.ElementTypeQR, expectedX: 170, expectedY: 120},
		{name: "shape", tool: ToolShape, expectedType: cards.ElementTypeShape, expectedX: 150, expectedY: 100},
		{name: "image", tool: ToolImage, expectedType: cards.ElementTypeImage, expectedX: 150, expectedY: 100},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			document := newTestDocument(t)
			controller := document.Controller()
			controller.SetTool(testCase.tool)
			outcome := controller.Click(PointerEvent{X: 200, Y: 150})
			if !outcome.Committed || outcome.CreatedID == "" {
				t.Fatalf("expected a committed creation, got %#v", outcome)
			}
			element, ok := cards.Find(document.ActiveElements(), outcome.CreatedID)
			if !ok || element.Type != testCase.expectedType {
				t.Fatalf("unexpected element %#v", element)
			}
			if element.X != testCase.expectedX || element.Y != testCase.expectedY {
				t.Fatalf("expected centred placement, got %.1f,%.1f", element.X, element.Y)
			}
			if controller.Tool() != ToolSelect || controller.Selection() != element.ID {
				t.Fatalf("expected select tool with the new element selected")
			}
		})
	}
}

func TestClickInSelectToolDoesNothing(t *testing.T) {
	document := newTestDocument(t)
	if outcome := document.Controller().Click(PointerEvent{X: 10, Y: 10}); outcome.Changed {
		t.Fatalf("expected no-op click")
	}
}

func TestDynamicTextToolBindsCustomField(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.SetTextKind(cards.TextDynamic)
	controller.SetTool(ToolText)
	outcome := controller.Click(PointerEvent{X: 100, Y: 100})
	element, _ := cards.Find(document.ActiveElements(), outcome.CreatedID)
	if !element.IsDynamic || element.DataField != cards.DefaultDynamicField || element.Content != "Dynamic Text" {
		t.Fatalf("unexpected dynamic text %#v", element)
	}
}

func TestReorderKeepsZIndexContiguous(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	for _, x := range []float64{0, 50, 100} {
		controller.AddElement(cards.ElementTypeShape, x, 0)
	}
	ids := []string{}
	for _, element := range cards.SortByZ(document.ActiveElements()) {
		ids = append(ids, element.ID)
	}

	controller.Select(ids[0])
	if outcome := controller.BringForward(); !outcome.Committed {
		t.Fatalf("expected reorder commit")
	}
	order := cards.SortByZ(document.ActiveElements())
	if order[1].ID != ids[0] || order[0].ID != ids[1] {
		t.Fatalf("expected swap with upper neighbour, got %s,%s", order[0].ID, order[1].ID)
	}
	if !cards.ZContiguous(document.ActiveElements()) {
		t.Fatalf("expected contiguous zIndex after reorder")
	}

	controller.Select(ids[2])
	if outcome := controller.BringForward(); outcome.Committed {
		t.Fatalf("topmost element cannot move forward")
	}
	controller.SendBackward()
	if !cards.ZContiguous(document.ActiveElements()) {
		t.Fatalf("expected contiguous zIndex after send backward")
	}

	controller.Select(ids[1])
	controller.Delete()
	if !cards.ZContiguous(document.ActiveElements()) {
		t.Fatalf("expected contiguous zIndex after delete")
	}
}

func TestMoveLayerPlacesAtTargetPosition(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	for _, x := range []float64{0, 50, 100} {
		controller.AddElement(cards.ElementTypeShape, x, 0)
	}
	sorted := cards.SortByZ(document.ActiveElements())
	outcome := controller.MoveLayer(sorted[0].ID, sorted[2].ID)
	if !outcome.Committed {
		t.Fatalf("expected move layer to commit")
	}
	order := cards.SortByZ(document.ActiveElements())
	expected := []string{sorted[1].ID, sorted[2].ID, sorted[0].ID}
	for index, id := range expected {
		if order[index].ID != id || order[index].ZIndex != index+1 {
			t.Fatalf("unexpected order at %d: %#v", index, order[index])
		}
	}
	if outcome := controller.MoveLayer("missing", sorted[0].ID); outcome.Changed {
		t.Fatalf("unknown ids must be a no-op")
	}
}

func TestPropertyEditsCommitOnlyOnChange(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeText, 0, 0)
	id := controller.Selection()

	color := "#ff0000"
	if outcome := controller.SetStyle("", cards.StylePatch{Color: &color}); !outcome.Committed {
		t.Fatalf("expected style commit")
	}
	if outcome := controller.SetStyle(id, cards.StylePatch{Color: &color}); outcome.Committed {
		t.Fatalf("repeated identical style must not commit")
	}

	controller.SetBinding(id, "full_name")
	element, _ := cards.Find(document.ActiveElements(), id)
	if !element.IsDynamic || element.DataField != "full_name" || element.Content != "{full_name}" {
		t.Fatalf("unexpected binding %#v", element)
	}
	controller.SetBinding(id, "")
	element, _ = cards.Find(document.ActiveElements(), id)
	if element.IsDynamic || element.DataField != "" {
		t.Fatalf("expected static element after clearing the binding")
	}

	width := 5.0
	controller.SetGeometry(id, Geometry{Width: &width})
	controller.SetOpacity(id, 3)
	element, _ = cards.Find(document.ActiveElements(), id)
	if element.Width != cards.MinElementSize || element.EffectiveOpacity() != 1 {
		t.Fatalf("unexpected geometry/opacity %#v", element)
	}
	controller.SetOpacity(id, 0.25)
	controller.SetVisible(id, false)
	element, _ = cards.Find(document.ActiveElements(), id)
	if element.EffectiveOpacity() != 0.25 || element.IsVisible() {
		t.Fatalf("unexpected modifiers %#v", element)
	}

	if outcome := controller.SetShapeType(id, cards.ShapeCircle); outcome.Warning == "" {
		t.Fatalf("text elements cannot take a shape type")
	}
	if outcome := controller.SetContent("missing", "x"); outcome.Warning != "element_not_found" {
		t.Fatalf("expected not found warning, got %#v", outcome)
	}
}

func TestKeyboardShortcuts(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeText, 0, 0)

	controller.HandleKey(KeyEvent{Key: "d", Ctrl: true})
	if len(document.ActiveElements()) != 2 {
		t.Fatalf("expected ctrl+d to duplicate")
	}
	controller.HandleKey(KeyEvent{Key: "z", Meta: true})
	if len(document.ActiveElements()) != 1 {
		t.Fatalf("expected cmd+z to undo")
	}
	controller.HandleKey(KeyEvent{Key: "Z", Ctrl: true, Shift: true})
	if len(document.ActiveElements()) != 2 {
		t.Fatalf("expected ctrl+shift+z to redo")
	}
	controller.HandleKey(KeyEvent{Key: "z", Ctrl: true})
	controller.HandleKey(KeyEvent{Key: "y", Ctrl: true})
	if len(document.ActiveElements()) != 2 {
		t.Fatalf("expected ctrl+y to redo")
	}
	if outcome := controller.HandleKey(KeyEvent{Key: "s", Ctrl: true}); !outcome.SaveRequested {
		t.Fatalf("expected ctrl+s to request a save")
	}

	controller.Select(document.ActiveElements()[1].ID)
	controller.HandleKey(KeyEvent{Key: "Backspace"})
	if len(document.ActiveElements()) != 1 {
		t.Fatalf("expected backspace to delete the selection")
	}

	controller.SetTool(ToolQR)
	controller.Select(document.ActiveElements()[0].ID)
	controller.HandleKey(KeyEvent{Key: "Escape"})
	if controller.Selection() != "" || controller.Tool() != ToolSelect {
		t.Fatalf("expected escape to clear selection and revert the tool")
	}
}

func TestDoubleClickOnTextRequestsEditing(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeText, 0, 0)
	id := controller.Selection()
	outcome := controller.DoubleClick(PointerEvent{X: 10, Y: 10})
	if outcome.EditElementID != id || outcome.Committed {
		t.Fatalf("unexpected double click outcome %#v", outcome)
	}
	controller.AddElement(cards.ElementTypeShape, 300, 150)
	if outcome := controller.DoubleClick(PointerEvent{X: 310, Y: 160}); outcome.EditElementID != "" {
		t.Fatalf("shapes do not open content editing")
	}
}

func TestZoomScalesPointerCoordinates(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeQR, 100, 100)
	id := controller.Selection()
	controller.ClearSelection()

	controller.ZoomIn()
	if controller.Zoom() != 1.2 {
		t.Fatalf("expected zoom 1.2, got %v", controller.Zoom())
	}
	controller.ZoomIn()
	if controller.Zoom() != 1.2 {
		t.Fatalf("zoom must stay at the largest preset")
	}
	controller.PointerDown(PointerEvent{X: 130 * 1.2, Y: 130 * 1.2})
	if controller.Selection() != id {
		t.Fatalf("expected screen coordinates to be divided by zoom")
	}
	controller.PointerUp(PointerEvent{})
	if SnapZoom(0.7) != 0.8 || SnapZoom(5) != 1.2 {
		t.Fatalf("unexpected snapping")
	}
}

func TestPointerDownOnEmptyCanvasClearsSelection(t *testing.T) {
	document := newTestDocument(t)
	controller := document.Controller()
	controller.AddElement(cards.ElementTypeText, 0, 0)
	controller.PointerDown(PointerEvent{X: 400, Y: 250})
	if controller.Selection() != "" {
		t.Fatalf("expected empty canvas press to clear the selection")
	}
}

type brokenWorkspace struct{}

func (brokenWorkspace) activeLayer() *Layer { return nil }

func (brokenWorkspace) changed(ChangeKind, bool) {}

func TestControllerRecoversFromPanics(t *testing.T) {
	controller := newController(brokenWorkspace{}, cards.NewSequenceProvider("x"), zap.NewNop())
	outcome := controller.PointerDown(PointerEvent{X: 1, Y: 1})
	if outcome.Warning != "internal_error" {
		t.Fatalf("expected recovered warning, got %#v", outcome)
	}
}

func TestApplyTemplateUsesBoundRecord(t *testing.T) {
	document := newTestDocument(t)
	document.SetRecord(cards.Record{"full_name": "Jane Doe", "qr": "S1"})
	if _, err := document.ApplyTemplate(context.Background(), templates.DefaultTemplateID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	qr, ok := cards.Find(document.Elements(cards.SideBack), "qr")
	if !ok || qr.Content != "S1" {
		t.Fatalf("expected back qr bound to S1, got %#v", qr)
	}
	if document.Layer(cards.SideFront).CanUndo() || document.Layer(cards.SideBack).CanUndo() {
		t.Fatalf("template application must reset history baselines")
	}
}
