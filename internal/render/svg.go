package render

import (
	"fmt"
	"html"
	"io"
	"math"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	svg "github.com/ajstarks/svgo"
)

const placeholderFill = "#f3f4f6"

// WriteSVG serializes the tree as an SVG document scaled by the tree zoom.
func WriteSVG(w io.Writer, tree Tree) {
	width, height := px(tree.Width), px(tree.Height)
	canvas := svg.New(w)
	canvas.Startview(px(tree.Width*tree.Zoom), px(tree.Height*tree.Zoom), 0, 0, width, height)

	background := tree.Background
	canvas.Rect(0, 0, width, height, fmt.Sprintf("fill:%s", colorOr(background.InnerColor, "#ffffff")))
	if background.BorderWidth > 0 {
		inset := background.BorderWidth / 2
		canvas.Rect(px(inset), px(inset), px(tree.Width-background.BorderWidth), px(tree.Height-background.BorderWidth),
			fmt.Sprintf("fill:none;stroke:%s;stroke-width:%g", colorOr(background.BorderColor, "#000000"), background.BorderWidth))
	}

	for _, node := range tree.Nodes {
		canvas.Group(fmt.Sprintf(`id="%s"`, html.EscapeString(node.ElementID)), fmt.Sprintf("opacity:%g", node.Opacity))
		switch node.Type {
		case cards.ElementTypeText:
			writeText(canvas, node)
		case cards.ElementTypeImage:
			writeImage(canvas, node)
		case cards.ElementTypeShape:
			writeShape(canvas, node)
		case cards.ElementTypeQR:
			writeQR(canvas, node)
		}
		canvas.Gend()
	}
	canvas.End()
}

func writeText(canvas *svg.SVG, node Node) {
	style := node.Style
	if style.BackgroundColor != "" {
		canvas.Rect(px(node.X), px(node.Y), px(node.Width), px(node.Height), boxStyle(style, style.BackgroundColor))
	}
	fontSize := style.FontSize
	if fontSize <= 0 {
		fontSize = 14
	}
	x, anchor := node.X, "start"
	switch style.TextAlign {
	case "center":
		x, anchor = node.X+node.Width/2, "middle"
	case "right":
		x, anchor = node.X+node.Width, "end"
	}
	baseline := node.Y + node.Height/2 + fontSize/3

	declarations := []string{
		fmt.Sprintf("font-size:%gpx", fontSize),
		fmt.Sprintf("fill:%s", colorOr(style.Color, "#000000")),
		fmt.Sprintf("text-anchor:%s", anchor),
	}
	if style.FontFamily != "" {
		declarations = append(declarations, fmt.Sprintf("font-family:%s", style.FontFamily))
	}
	if style.FontWeight != "" {
		declarations = append(declarations, fmt.Sprintf("font-weight:%s", style.FontWeight))
	}
	if style.FontStyle != "" {
		declarations = append(declarations, fmt.Sprintf("font-style:%s", style.FontStyle))
	}
	if style.TextDecoration != "" {
		declarations = append(declarations, fmt.Sprintf("text-decoration:%s", style.TextDecoration))
	}
	if style.LetterSpacing != 0 {
		declarations = append(declarations, fmt.Sprintf("letter-spacing:%gpx", style.LetterSpacing))
	}
	canvas.Text(px(x), px(baseline), node.Text, strings.Join(declarations, ";"))
}

func writeImage(canvas *svg.SVG, node Node) {
	x, y, width, height := px(node.X), px(node.Y), px(node.Width), px(node.Height)
	if node.ImageStatus == ImageLoaded && node.ImageSource != "" {
		canvas.Image(x, y, width, height, html.EscapeString(node.ImageSource), `preserveAspectRatio="xMidYMid slice"`)
		return
	}
	canvas.Roundrect(x, y, width, height, px(node.Style.BorderRadius), px(node.Style.BorderRadius),
		fmt.Sprintf("fill:%s;stroke:#d1d5db;stroke-dasharray:4,2", colorOr(node.Style.BackgroundColor, placeholderFill)))
	canvas.Text(x+width/2, y+height/2+4, node.Caption, "font-size:11px;fill:#6b7280;text-anchor:middle")
}

func writeShape(canvas *svg.SVG, node Node) {
	style := boxStyle(node.Style, colorOr(node.Style.BackgroundColor, "#3b82f6"))
	if node.ShapeType == cards.ShapeCircle {
		canvas.Ellipse(px(node.X+node.Width/2), px(node.Y+node.Height/2), px(node.Width/2), px(node.Height/2), style)
		return
	}
	radius := px(node.Style.BorderRadius)
	canvas.Roundrect(px(node.X), px(node.Y), px(node.Width), px(node.Height), radius, radius, style)
}

func writeQR(canvas *svg.SVG, node Node) {
	canvas.Rect(px(node.X), px(node.Y), px(node.Width), px(node.Height), fmt.Sprintf("fill:%s", colorOr(node.Style.BackgroundColor, "#ffffff")))
	count := len(node.QRModules)
	if count == 0 {
		canvas.Text(px(node.X+node.Width/2), px(node.Y+node.Height/2), node.QRValue, "font-size:10px;text-anchor:middle")
		return
	}
	side := math.Min(node.Width, node.Height)
	module := side / float64(count)
	originX := node.X + (node.Width-side)/2
	originY := node.Y + (node.Height-side)/2

	var path strings.Builder
	for row, cells := range node.QRModules {
		for column, dark := range cells {
			if !dark {
				continue
			}
			fmt.Fprintf(&path, "M%.2f %.2fh%.2fv%.2fh-%.2fz",
				originX+float64(column)*module, originY+float64(row)*module, module, module, module)
		}
	}
	canvas.Path(path.String(), "fill:#000000")
}

func boxStyle(style cards.Style, fill string) string {
	declarations := []string{fmt.Sprintf("fill:%s", fill)}
	if style.BorderWidth > 0 {
		declarations = append(declarations,
			fmt.Sprintf("stroke:%s", colorOr(style.BorderColor, "#000000")),
			fmt.Sprintf("stroke-width:%g", style.BorderWidth))
	}
	return strings.Join(declarations, ";")
}

func colorOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func px(value float64) int {
	return int(math.Round(value))
}
