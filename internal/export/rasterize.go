// Package export turns rendered card trees into PNG and PDF bytes.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/render"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"
)

const defaultScale = 2

// Bridge rasterizes render trees.
type Bridge struct {
	scale  int
	logger *zap.Logger
}

// BridgeConfig tunes the rasterizer.
type BridgeConfig struct {
	// Scale is the pixel density multiplier applied to the 480x300 canvas.
	Scale  int
	Logger *zap.Logger
}

// NewBridge constructs a Bridge with defaults applied.
func NewBridge(cfg BridgeConfig) *Bridge {
	scale := cfg.Scale
	if scale <= 0 {
		scale = defaultScale
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{scale: scale, logger: logger}
}

// Rasterize paints the tree and encodes it as PNG.
func (b *Bridge) Rasterize(tree render.Tree) ([]byte, error) {
	canvas := b.Paint(tree)
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buffer.Bytes(), nil
}

// Paint draws the tree into an RGBA image.
func (b *Bridge) Paint(tree render.Tree) *image.RGBA {
	scale := float64(b.scale)
	bounds := image.Rect(0, 0, int(math.Round(tree.Width*scale)), int(math.Round(tree.Height*scale)))
	canvas := image.NewRGBA(bounds)

	xdraw.Draw(canvas, bounds, image.NewUniform(parseColor(tree.Background.InnerColor, color.White)), image.Point{}, xdraw.Src)
	for _, node := range tree.Nodes {
		b.paintNode(canvas, node)
	}
	if border := tree.Background.BorderWidth; border > 0 {
		paintFrame(canvas, bounds, int(math.Round(border*scale)), parseColor(tree.Background.BorderColor, color.Black))
	}
	return canvas
}

func (b *Bridge) box(node render.Node) image.Rectangle {
	scale := float64(b.scale)
	return image.Rect(
		int(math.Round(node.X*scale)),
		int(math.Round(node.Y*scale)),
		int(math.Round((node.X+node.Width)*scale)),
		int(math.Round((node.Y+node.Height)*scale)),
	)
}

func (b *Bridge) paintNode(canvas *image.RGBA, node render.Node) {
	box := b.box(node)
	alpha := uint8(math.Round(node.Opacity * 255))
	radius := int(math.Round(node.Style.BorderRadius * float64(b.scale)))

	switch node.Type {
	case cards.ElementTypeShape:
		fill := parseColor(node.Style.BackgroundColor, color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff})
		if node.ShapeType == cards.ShapeCircle {
			paintEllipse(canvas, box, fill, alpha)
		} else {
			paintRoundedRect(canvas, box, radius, fill, alpha)
		}
		b.paintBorder(canvas, box, node.Style)
	case cards.ElementTypeText:
		if node.Style.BackgroundColor != "" {
			paintRoundedRect(canvas, box, radius, parseColor(node.Style.BackgroundColor, color.White), alpha)
		}
		b.paintText(canvas, box, node.Text, node.Style, alpha)
	case cards.ElementTypeImage:
		if node.Image != nil {
			layer := image.NewRGBA(box)
			xdraw.ApproxBiLinear.Scale(layer, box, node.Image, node.Image.Bounds(), xdraw.Src, nil)
			xdraw.DrawMask(canvas, box, layer, box.Min, image.NewUniform(color.Alpha{A: alpha}), image.Point{}, xdraw.Over)
			return
		}
		paintRoundedRect(canvas, box, radius, parseColor(node.Style.BackgroundColor, color.RGBA{R: 0xf3, G: 0xf4, B: 0xf6, A: 0xff}), alpha)
		b.paintText(canvas, box, node.Caption, cards.Style{Color: "#6b7280", TextAlign: "center"}, alpha)
	case cards.ElementTypeQR:
		paintRoundedRect(canvas, box, 0, parseColor(node.Style.BackgroundColor, color.White), alpha)
		paintModules(canvas, box, node.QRModules, alpha)
	default:
		b.logger.Debug("skipping unpaintable node", zap.String("element_id", node.ElementID), zap.String("type", string(node.Type)))
	}
}

func (b *Bridge) paintBorder(canvas *image.RGBA, box image.Rectangle, style cards.Style) {
	if style.BorderWidth <= 0 {
		return
	}
	paintFrame(canvas, box, int(math.Round(style.BorderWidth*float64(b.scale))), parseColor(style.BorderColor, color.Black))
}

// paintText draws the string with the fixed 7x13 face, upscaled by the bridge
// scale and aligned within the box.
func (b *Bridge) paintText(canvas *image.RGBA, box image.Rectangle, text string, style cards.Style, alpha uint8) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Height
	glyphs := image.NewAlpha(image.Rect(0, 0, width, height))
	drawer := font.Drawer{
		Dst:  glyphs,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	drawer.DrawString(text)

	scale := b.scale
	left := box.Min.X
	switch style.TextAlign {
	case "center":
		left = box.Min.X + (box.Dx()-width*scale)/2
	case "right":
		left = box.Max.X - width*scale
	}
	top := box.Min.Y + (box.Dy()-height*scale)/2
	ink := parseColor(style.Color, color.Black)
	source := image.NewUniform(ink)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			coverage := glyphs.AlphaAt(x, y).A
			if coverage == 0 {
				continue
			}
			cell := image.Rect(left+x*scale, top+y*scale, left+(x+1)*scale, top+(y+1)*scale).Intersect(box)
			if cell.Empty() {
				continue
			}
			mask := image.NewUniform(color.Alpha{A: uint8(uint16(coverage) * uint16(alpha) / 255)})
			xdraw.DrawMask(canvas, cell, source, image.Point{}, mask, image.Point{}, xdraw.Over)
		}
	}
}

func paintRoundedRect(canvas *image.RGBA, box image.Rectangle, radius int, fill color.Color, alpha uint8) {
	limit := min(box.Dx(), box.Dy()) / 2
	if radius > limit {
		radius = limit
	}
	paintMasked(canvas, box, fill, alpha, func(x, y int) bool {
		if radius <= 0 {
			return true
		}
		cx, cy := x, y
		switch {
		case x < box.Min.X+radius:
			cx = box.Min.X + radius
		case x >= box.Max.X-radius:
			cx = box.Max.X - radius - 1
		}
		switch {
		case y < box.Min.Y+radius:
			cy = box.Min.Y + radius
		case y >= box.Max.Y-radius:
			cy = box.Max.Y - radius - 1
		}
		dx, dy := float64(x-cx), float64(y-cy)
		return dx*dx+dy*dy <= float64(radius*radius)
	})
}

func paintEllipse(canvas *image.RGBA, box image.Rectangle, fill color.Color, alpha uint8) {
	rx, ry := float64(box.Dx())/2, float64(box.Dy())/2
	if rx <= 0 || ry <= 0 {
		return
	}
	cx, cy := float64(box.Min.X)+rx, float64(box.Min.Y)+ry
	paintMasked(canvas, box, fill, alpha, func(x, y int) bool {
		dx := (float64(x) + 0.5 - cx) / rx
		dy := (float64(y) + 0.5 - cy) / ry
		return dx*dx+dy*dy <= 1
	})
}

func paintMasked(canvas *image.RGBA, box image.Rectangle, fill color.Color, alpha uint8, inside func(x, y int) bool) {
	clipped := box.Intersect(canvas.Bounds())
	if clipped.Empty() {
		return
	}
	mask := image.NewAlpha(clipped)
	for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
		for x := clipped.Min.X; x < clipped.Max.X; x++ {
			if inside(x, y) {
				mask.SetAlpha(x, y, color.Alpha{A: alpha})
			}
		}
	}
	xdraw.DrawMask(canvas, clipped, image.NewUniform(fill), image.Point{}, mask, clipped.Min, xdraw.Over)
}

func paintFrame(canvas *image.RGBA, box image.Rectangle, width int, stroke color.Color) {
	if width <= 0 {
		return
	}
	source := image.NewUniform(stroke)
	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+width),
		image.Rect(box.Min.X, box.Max.Y-width, box.Max.X, box.Max.Y),
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+width, box.Max.Y),
		image.Rect(box.Max.X-width, box.Min.Y, box.Max.X, box.Max.Y),
	}
	for _, edge := range edges {
		xdraw.Draw(canvas, edge.Intersect(canvas.Bounds()), source, image.Point{}, xdraw.Over)
	}
}

func paintModules(canvas *image.RGBA, box image.Rectangle, modules [][]bool, alpha uint8) {
	count := len(modules)
	if count == 0 {
		return
	}
	side := min(box.Dx(), box.Dy())
	originX := box.Min.X + (box.Dx()-side)/2
	originY := box.Min.Y + (box.Dy()-side)/2
	ink := image.NewUniform(color.Black)
	mask := image.NewUniform(color.Alpha{A: alpha})
	for row, cells := range modules {
		for column, dark := range cells {
			if !dark {
				continue
			}
			cell := image.Rect(
				originX+column*side/count,
				originY+row*side/count,
				originX+(column+1)*side/count,
				originY+(row+1)*side/count,
			)
			xdraw.DrawMask(canvas, cell, ink, image.Point{}, mask, image.Point{}, xdraw.Over)
		}
	}
}

// parseColor reads #rgb and #rrggbb values, returning fallback for anything else.
func parseColor(value string, fallback color.Color) color.Color {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return fallback
	}
	packed, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(packed >> 16), G: uint8(packed >> 8), B: uint8(packed), A: 0xff}
}
