package cards

// TextKind selects whether a new text element is static or data-bound.
type TextKind string

const (
	// TextStatic creates literal text.
	TextStatic TextKind = "static"
	// TextDynamic creates text bound to a custom record field.
	TextDynamic TextKind = "dynamic"
)

const (
	defaultFontSize    = 14
	defaultTextColor   = "#000000"
	defaultTextAlign   = "left"
	defaultFontFamily  = "Arial, sans-serif"
	defaultShapeFill   = "#3b82f6"
	defaultShapeRadius = 8
	defaultQRSize      = 60
	defaultBoxSize     = 100
	defaultTextWidth   = 150
	defaultTextHeight  = 30

	// DefaultDynamicField is the binding given to new dynamic text.
	DefaultDynamicField = "custom_field"
)

// NewElementOptions tunes the defaults applied by NewElement.
type NewElementOptions struct {
	TextKind  TextKind
	ShapeType ShapeType
}

// DefaultSize returns the width and height a new element of the type receives.
func DefaultSize(elementType ElementType) (float64, float64) {
	switch elementType {
	case ElementTypeText:
		return defaultTextWidth, defaultTextHeight
	case ElementTypeQR:
		return defaultQRSize, defaultQRSize
	default:
		return defaultBoxSize, defaultBoxSize
	}
}

// NewElement builds an element of the given type with its top-left corner at (x, y).
func NewElement(id string, elementType ElementType, x, y float64, zIndex int, opts NewElementOptions) (Element, error) {
	if !elementType.Valid() {
		return Element{}, ErrUnknownElementType
	}
	width, height := DefaultSize(elementType)
	element := Element{
		ID:      id,
		Type:    elementType,
		X:       x,
		Y:       y,
		Width:   width,
		Height:  height,
		ZIndex:  zIndex,
		Visible: BoolPtr(true),
		Opacity: Float64Ptr(1),
	}

	switch elementType {
	case ElementTypeText:
		element.Style = Style{
			FontSize:   defaultFontSize,
			Color:      defaultTextColor,
			TextAlign:  defaultTextAlign,
			FontFamily: defaultFontFamily,
		}
		if opts.TextKind == TextDynamic {
			element.Content = "Dynamic Text"
			element.IsDynamic = true
			element.DataField = DefaultDynamicField
		} else {
			element.Content = "Static Text"
		}
	case ElementTypeShape:
		shape := opts.ShapeType
		if shape == "" {
			shape = ShapeRectangle
		}
		if _, err := ParseShapeType(string(shape)); err != nil {
			return Element{}, err
		}
		element.ShapeType = shape
		element.Style = Style{
			BackgroundColor: defaultShapeFill,
			BorderRadius:    defaultShapeRadius,
		}
	case ElementTypeQR:
		element.Content = "QR Code"
		element.IsDynamic = true
	case ElementTypeImage:
		element.IsDynamic = true
	}

	return element, element.Validate()
}
