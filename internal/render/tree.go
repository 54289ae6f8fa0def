package render

import (
	"image"
	"regexp"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const qrSentinel = "QR"

// ImageStatus is the per-node resolution state of an image element.
type ImageStatus string

const (
	// ImageLoaded means the source resolved.
	ImageLoaded ImageStatus = "loaded"
	// ImageEmpty means no source was available.
	ImageEmpty ImageStatus = "empty"
	// ImageError means the source could not be loaded.
	ImageError ImageStatus = "error"
)

const (
	captionNoPhoto     = "No Photo"
	captionNoImage     = "No Image"
	captionUnavailable = "Image unavailable"
)

var fieldToken = regexp.MustCompile(`\{[^{}]*\}`)

// ImageResolver loads the pixels behind an image source.
type ImageResolver interface {
	Resolve(source string) (image.Image, error)
}

// Options tunes a render pass.
type Options struct {
	Zoom         float64
	Background   *cards.Background
	PhotoBaseURL string
	Resolver     ImageResolver
	Logger       *zap.Logger
}

// Node is one painted element.
type Node struct {
	ElementID   string            `json:"elementId"`
	Type        cards.ElementType `json:"type"`
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	Width       float64           `json:"width"`
	Height      float64           `json:"height"`
	ZIndex      int               `json:"zIndex"`
	Opacity     float64           `json:"opacity"`
	Style       cards.Style       `json:"style"`
	ShapeType   cards.ShapeType   `json:"shapeType,omitempty"`
	Text        string            `json:"text,omitempty"`
	ImageSource string            `json:"imageSource,omitempty"`
	ImageStatus ImageStatus       `json:"imageStatus,omitempty"`
	Caption     string            `json:"caption,omitempty"`
	QRValue     string            `json:"qrValue,omitempty"`

	Image     image.Image `json:"-"`
	QRModules [][]bool    `json:"-"`
}

// Tree is the painted form of one card side, bottom node first.
type Tree struct {
	Width      float64          `json:"width"`
	Height     float64          `json:"height"`
	Zoom       float64          `json:"zoom"`
	Background cards.Background `json:"background"`
	Nodes      []Node           `json:"nodes"`
}

// Render resolves bindings, photos and QR payloads into a paintable tree.
// It never mutates its inputs and unresolved sources degrade to placeholders.
func Render(elements []cards.Element, record cards.Record, opts Options) Tree {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	zoom := opts.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	background := cards.DefaultBackground()
	if opts.Background != nil {
		background = *opts.Background
	}

	tree := Tree{
		Width:      cards.CanvasWidth,
		Height:     cards.CanvasHeight,
		Zoom:       zoom,
		Background: background,
		Nodes:      make([]Node, 0, len(elements)),
	}
	for _, element := range cards.SortByZ(elements) {
		if !element.IsVisible() {
			continue
		}
		node := Node{
			ElementID: element.ID,
			Type:      element.Type,
			X:         element.X,
			Y:         element.Y,
			Width:     element.Width,
			Height:    element.Height,
			ZIndex:    element.ZIndex,
			Opacity:   element.EffectiveOpacity(),
			Style:     element.Style,
			ShapeType: element.ShapeType,
		}
		switch element.Type {
		case cards.ElementTypeText:
			node.Text = ResolveText(element, record)
		case cards.ElementTypeImage:
			resolveImage(&node, element, record, opts, logger)
		case cards.ElementTypeShape:
			if node.ShapeType == "" {
				node.ShapeType = cards.ShapeRectangle
			}
		case cards.ElementTypeQR:
			node.QRValue = ResolveQRValue(element, record)
			modules, err := qrModules(node.QRValue)
			if err != nil {
				logger.Warn("qr encoding failed", zap.String("element_id", element.ID), zap.Error(err))
			}
			node.QRModules = modules
		default:
			logger.Warn("skipping unknown element type", zap.String("element_id", element.ID), zap.String("type", string(element.Type)))
			continue
		}
		tree.Nodes = append(tree.Nodes, node)
	}
	return tree
}

// ResolveText returns the display string for a text element.
func ResolveText(element cards.Element, record cards.Record) string {
	if !element.IsDynamic {
		return element.Content
	}
	if value, ok := record.Lookup(element.DataField); ok {
		token := "{" + element.DataField + "}"
		if strings.Contains(element.Content, token) {
			return strings.ReplaceAll(element.Content, token, value)
		}
		return value
	}
	if placeholder := strings.TrimSpace(element.Placeholder); placeholder != "" {
		return element.Placeholder
	}
	return strings.TrimSpace(fieldToken.ReplaceAllString(element.Content, ""))
}

// ResolveQRValue returns the payload encoded by a QR element.
func ResolveQRValue(element cards.Element, record cards.Record) string {
	if element.IsDynamic {
		if value, ok := record.FirstOf(element.DataField, "qr", "prn", "id"); ok {
			return value
		}
	}
	if content := strings.TrimSpace(element.Content); content != "" {
		return content
	}
	return qrSentinel
}

func qrModules(value string) ([][]bool, error) {
	code, err := qrcode.New(value, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	code.DisableBorder = true
	return code.Bitmap(), nil
}

func imageSource(element cards.Element, record cards.Record, baseURL string) string {
	source := ""
	if element.IsDynamic {
		source, _ = record.FirstOf(element.DataField, "photo", "photo_url")
	}
	if source == "" {
		source = strings.TrimSpace(element.Content)
	}
	if source == "" {
		return ""
	}
	if strings.Contains(source, "/") || strings.Contains(source, ":") || baseURL == "" {
		return source
	}
	return strings.TrimRight(baseURL, "/") + "/" + source
}

func resolveImage(node *Node, element cards.Element, record cards.Record, opts Options, logger *zap.Logger) {
	node.ImageSource = imageSource(element, record, opts.PhotoBaseURL)
	if node.ImageSource == "" {
		node.ImageStatus = ImageEmpty
		if element.DataField == "photo" || element.ID == "photo" {
			node.Caption = captionNoPhoto
		} else {
			node.Caption = captionNoImage
		}
		return
	}
	if opts.Resolver == nil {
		node.ImageStatus = ImageLoaded
		return
	}
	pixels, err := opts.Resolver.Resolve(node.ImageSource)
	if err != nil || pixels == nil {
		logger.Warn("image source unavailable",
			zap.String("element_id", element.ID),
			zap.String("source", node.ImageSource),
			zap.Error(err))
		node.ImageStatus = ImageError
		node.Caption = captionUnavailable
		return
	}
	node.ImageStatus = ImageLoaded
	node.Image = pixels
}
