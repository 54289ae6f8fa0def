package editor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
)

// Tool is the active canvas tool.
type Tool string

const (
	// ToolSelect selects, drags and resizes existing elements.
	ToolSelect Tool = "select"
	// ToolText places a text element on the next click.
	ToolText Tool = "text"
	// ToolShape places a shape element on the next click.
	ToolShape Tool = "shape"
	// ToolImage places an image element on the next click.
	ToolImage Tool = "image"
	// ToolQR places a QR element on the next click.
	ToolQR Tool = "qr"
)

// ErrUnknownTool indicates a tool outside the supported set.
var ErrUnknownTool = errors.New("editor: unknown tool")

// ParseTool validates raw input and returns a Tool.
func ParseTool(raw string) (Tool, error) {
	switch Tool(strings.ToLower(strings.TrimSpace(raw))) {
	case ToolSelect:
		return ToolSelect, nil
	case ToolText:
		return ToolText, nil
	case ToolShape:
		return ToolShape, nil
	case ToolImage:
		return ToolImage, nil
	case ToolQR:
		return ToolQR, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, raw)
	}
}

// elementType maps a placement tool to the element type it creates.
func (t Tool) elementType() (cards.ElementType, bool) {
	switch t {
	case ToolText:
		return cards.ElementTypeText, true
	case ToolShape:
		return cards.ElementTypeShape, true
	case ToolImage:
		return cards.ElementTypeImage, true
	case ToolQR:
		return cards.ElementTypeQR, true
	default:
		return "", false
	}
}

// ZoomPresets lists the supported canvas zoom factors in ascending order.
var ZoomPresets = []float64{0.8, 1.0, 1.2}

// DefaultZoom is the zoom factor a new document starts at.
const DefaultZoom = 1.0

// SnapZoom returns the preset closest to value.
func SnapZoom(value float64) float64 {
	best := DefaultZoom
	bestDistance := math.Inf(1)
	for _, preset := range ZoomPresets {
		distance := math.Abs(preset - value)
		if distance < bestDistance {
			best = preset
			bestDistance = distance
		}
	}
	return best
}

// StepZoom moves one preset up (positive direction) or down from current.
func StepZoom(current float64, direction int) float64 {
	current = SnapZoom(current)
	for index, preset := range ZoomPresets {
		if preset != current {
			continue
		}
		next := index + direction
		if next < 0 || next >= len(ZoomPresets) {
			return current
		}
		return ZoomPresets[next]
	}
	return current
}
