package cards

import (
	"errors"
	"fmt"
	"strings"
)

// ElementType enumerates the placeable element variants.
type ElementType string

const (
	// ElementTypeText renders literal or data-bound text.
	ElementTypeText ElementType = "text"
	// ElementTypeImage renders a photo or uploaded image.
	ElementTypeImage ElementType = "image"
	// ElementTypeShape renders a filled rectangle or ellipse.
	ElementTypeShape ElementType = "shape"
	// ElementTypeQR renders a scannable QR code.
	ElementTypeQR ElementType = "qr"
)

// ShapeType selects the outline of a shape element.
type ShapeType string

const (
	// ShapeRectangle paints a (possibly rounded) rectangle.
	ShapeRectangle ShapeType = "rectangle"
	// ShapeCircle paints an ellipse inscribed in the element box.
	ShapeCircle ShapeType = "circle"
)

// Side identifies one face of the two-sided card document.
type Side string

const (
	// SideFront is the face carrying the photo and name.
	SideFront Side = "front"
	// SideBack is the face carrying contact details and the QR code.
	SideBack Side = "back"
)

const (
	// CanvasWidth is the logical card width in pixels.
	CanvasWidth = 480.0
	// CanvasHeight is the logical card height in pixels.
	CanvasHeight = 300.0
	// MinElementSize is the floor applied to width and height on resize.
	MinElementSize = 20.0
)

var (
	// ErrInvalidElement indicates that an element failed validation.
	ErrInvalidElement = errors.New("cards: invalid element")
	// ErrUnknownElementType indicates an element type outside the closed variant set.
	ErrUnknownElementType = errors.New("cards: unknown element type")
	// ErrUnknownShapeType indicates a shape type outside rectangle and circle.
	ErrUnknownShapeType = errors.New("cards: unknown shape type")
	// ErrUnknownSide indicates a side other than front or back.
	ErrUnknownSide = errors.New("cards: unknown side")
)

// ParseElementType validates raw input and returns an ElementType.
func ParseElementType(raw string) (ElementType, error) {
	switch ElementType(strings.ToLower(strings.TrimSpace(raw))) {
	case ElementTypeText:
		return ElementTypeText, nil
	case ElementTypeImage:
		return ElementTypeImage, nil
	case ElementTypeShape:
		return ElementTypeShape, nil
	case ElementTypeQR:
		return ElementTypeQR, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownElementType, raw)
	}
}

// Valid reports whether the type belongs to the closed variant set.
func (t ElementType) Valid() bool {
	_, err := ParseElementType(string(t))
	return err == nil
}

// ParseShapeType validates raw input and returns a ShapeType.
func ParseShapeType(raw string) (ShapeType, error) {
	switch ShapeType(strings.ToLower(strings.TrimSpace(raw))) {
	case ShapeRectangle:
		return ShapeRectangle, nil
	case ShapeCircle:
		return ShapeCircle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownShapeType, raw)
	}
}

// ParseSide validates raw input and returns a Side.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(raw))) {
	case SideFront:
		return SideFront, nil
	case SideBack:
		return SideBack, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSide, raw)
	}
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideBack {
		return SideFront
	}
	return SideBack
}

// Element is one placeable unit on a card side.
type Element struct {
	ID          string      `json:"id"`
	Type        ElementType `json:"type"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Width       float64     `json:"width"`
	Height      float64     `json:"height"`
	ZIndex      int         `json:"zIndex"`
	Content     string      `json:"content"`
	Placeholder string      `json:"placeholder,omitempty"`
	IsDynamic   bool        `json:"isDynamic,omitempty"`
	DataField   string      `json:"dataField,omitempty"`
	ShapeType   ShapeType   `json:"shapeType,omitempty"`
	Style       Style       `json:"style"`
	Locked      bool        `json:"locked,omitempty"`
	Visible     *bool       `json:"visible,omitempty"`
	Opacity     *float64    `json:"opacity,omitempty"`
}

// IsVisible reports whether the element should be painted. Absent means visible.
func (e Element) IsVisible() bool {
	return e.Visible == nil || *e.Visible
}

// EffectiveOpacity returns the opacity clamped to [0,1]. Absent means opaque.
func (e Element) EffectiveOpacity() float64 {
	if e.Opacity == nil {
		return 1
	}
	return ClampOpacity(*e.Opacity)
}

// Contains reports whether the point lies inside the element's bounding box.
func (e Element) Contains(x, y float64) bool {
	return x >= e.X && x <= e.X+e.Width && y >= e.Y && y <= e.Y+e.Height
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	copied := e
	if e.Visible != nil {
		copied.Visible = BoolPtr(*e.Visible)
	}
	if e.Opacity != nil {
		copied.Opacity = Float64Ptr(*e.Opacity)
	}
	return copied
}

// Validate checks the element against the model constraints.
func (e Element) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidElement)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownElementType, e.Type)
	}
	if e.Width <= 0 || e.Height <= 0 {
		return fmt.Errorf("%w: non-positive size %.1fx%.1f", ErrInvalidElement, e.Width, e.Height)
	}
	if e.Type == ElementTypeShape {
		if _, err := ParseShapeType(string(e.ShapeType)); err != nil {
			return err
		}
	} else if e.ShapeType != "" {
		return fmt.Errorf("%w: shape type on %s element", ErrInvalidElement, e.Type)
	}
	if e.Type == ElementTypeText && e.IsDynamic && strings.TrimSpace(e.DataField) == "" {
		return fmt.Errorf("%w: dynamic text without data field", ErrInvalidElement)
	}
	return nil
}

// ClampSize applies the minimum size floor.
func ClampSize(value float64) float64 {
	if value < MinElementSize {
		return MinElementSize
	}
	return value
}

// ClampOpacity bounds the value to [0,1].
func ClampOpacity(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}

// BoolPtr returns a pointer to a copy of value.
func BoolPtr(value bool) *bool {
	v := value
	return &v
}

// Float64Ptr returns a pointer to a copy of value.
func Float64Ptr(value float64) *float64 {
	v := value
	return &v
}
