package templates

import (
	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
)

const (
	// DefaultTemplateID is the template an editor session opens with.
	DefaultTemplateID = "uni-standard"

	layoutFontFamily   = "Arial, sans-serif"
	fallbackNeutral    = "#111827"
	fallbackPrimary    = "#1d4ed8"
	fallbackAccent     = "#059669"
	photoSlotFill      = "#e5e7eb"
	qrBackgroundColor  = "#ffffff"
	qrSentinel         = "QR"
	bottomBarY         = 264
	bottomBarHeight    = 36
	headerZIndex       = 10
	photoZIndex        = 5
	bottomBarZIndex    = 1
	frontRowX          = 140
	frontRowWidth      = 240
	frontRowHeight     = 24
	backRowX           = 12
	backRowWidth       = 200
	backRowHeight      = 20
	rowFontSize        = 12
	headlineFontSize   = 16
	headlineLineHeight = 28
)

// BuiltIns returns the default templates. Each call returns fresh copies.
func BuiltIns() []Template {
	definitions := []struct {
		id     string
		name   string
		colors Colors
	}{
		{id: DefaultTemplateID, name: "University Standard", colors: Colors{Primary: "#1d4ed8", Neutral: "#111827", Accent: "#059669"}},
		{id: "blue-accent", name: "Blue Accent", colors: Colors{Primary: "#2563eb", Neutral: "#0f172a", Accent: "#eab308"}},
		{id: "green-bar", name: "Green Bar", colors: Colors{Primary: "#16a34a", Neutral: "#111827", Accent: "#2563eb"}},
		{id: "minimal-dark", name: "Minimal Dark", colors: Colors{Primary: "#0ea5e9", Neutral: "#0b1220"}},
	}
	builtIns := make([]Template, 0, len(definitions))
	for _, definition := range definitions {
		builtIns = append(builtIns, Template{
			ID:        definition.id,
			Name:      definition.name,
			Colors:    definition.colors,
			BuiltIn:   true,
			generator: standardLayout,
		})
	}
	return builtIns
}

// standardLayout is the fixed two-sided layout shared by the built-in templates.
func standardLayout(side cards.Side, colors Colors, record cards.Record) []cards.Element {
	neutral := colorOr(colors.Neutral, fallbackNeutral)
	if side == cards.SideBack {
		qrValue, ok := record.FirstOf("qr", "prn")
		if !ok {
			qrValue = qrSentinel
		}
		return []cards.Element{
			boundRow("dob", backRowX, 12, backRowWidth, backRowHeight, "birthdate", "DOB: ", "2004-01-01", neutral),
			boundRow("address", backRowX, 36, backRowWidth, backRowHeight, "address", "Address: ", "City, State", neutral),
			boundRow("mobile", backRowX, 60, backRowWidth, backRowHeight, "mobile", "Mobile: ", "+91 90000 00000", neutral),
			{
				ID:        "qr",
				Type:      cards.ElementTypeQR,
				X:         329,
				Y:         128,
				Width:     134,
				Height:    134,
				ZIndex:    headerZIndex,
				Content:   qrValue,
				IsDynamic: true,
				DataField: "qr",
				Style:     cards.Style{BackgroundColor: qrBackgroundColor, BorderRadius: 4},
				Visible:   cards.BoolPtr(true),
				Opacity:   cards.Float64Ptr(1),
			},
			bottomBar(colorOr(colors.Accent, fallbackAccent)),
		}
	}

	photo, _ := record.FirstOf("photo", "photo_url")
	university := headline("university", 0, 8, cards.CanvasWidth, "university", "University Name", "center", neutral)
	name := headline("name", frontRowX, 40, frontRowWidth, "full_name", "Student Name", "left", neutral)
	return []cards.Element{
		university,
		{
			ID:        "photo",
			Type:      cards.ElementTypeImage,
			X:         12,
			Y:         40,
			Width:     120,
			Height:    150,
			ZIndex:    photoZIndex,
			Content:   photo,
			IsDynamic: true,
			DataField: "photo",
			Style:     cards.Style{BackgroundColor: photoSlotFill, BorderRadius: 4},
			Visible:   cards.BoolPtr(true),
			Opacity:   cards.Float64Ptr(1),
		},
		name,
		boundRow("prn", frontRowX, 72, frontRowWidth, frontRowHeight, "prn", "PRN: ", "PRN-0000", neutral),
		boundRow("enrollment", frontRowX, 100, frontRowWidth, frontRowHeight, "enrollment_no", "Enroll: ", "ENR-123456", neutral),
		boundRow("batch", frontRowX, 128, frontRowWidth, frontRowHeight, "batch", "Batch: ", "2022-26", neutral),
		bottomBar(colorOr(colors.Primary, fallbackPrimary)),
	}
}

func headline(id string, x, y, width float64, field, placeholder, align, color string) cards.Element {
	return cards.Element{
		ID:          id,
		Type:        cards.ElementTypeText,
		X:           x,
		Y:           y,
		Width:       width,
		Height:      headlineLineHeight,
		ZIndex:      headerZIndex,
		Content:     "{" + field + "}",
		Placeholder: placeholder,
		IsDynamic:   true,
		DataField:   field,
		Style: cards.Style{
			FontSize:   headlineFontSize,
			FontWeight: "bold",
			Color:      color,
			TextAlign:  align,
			FontFamily: layoutFontFamily,
		},
		Visible: cards.BoolPtr(true),
		Opacity: cards.Float64Ptr(1),
	}
}

func boundRow(id string, x, y, width, height float64, field, label, sample, color string) cards.Element {
	return cards.Element{
		ID:          id,
		Type:        cards.ElementTypeText,
		X:           x,
		Y:           y,
		Width:       width,
		Height:      height,
		ZIndex:      headerZIndex,
		Content:     label + "{" + field + "}",
		Placeholder: label + sample,
		IsDynamic:   true,
		DataField:   field,
		Style: cards.Style{
			FontSize:   rowFontSize,
			FontWeight: "normal",
			Color:      color,
			TextAlign:  "left",
			FontFamily: layoutFontFamily,
		},
		Visible: cards.BoolPtr(true),
		Opacity: cards.Float64Ptr(1),
	}
}

func bottomBar(fill string) cards.Element {
	return cards.Element{
		ID:        "bottom_bar",
		Type:      cards.ElementTypeShape,
		X:         0,
		Y:         bottomBarY,
		Width:     cards.CanvasWidth,
		Height:    bottomBarHeight,
		ZIndex:    bottomBarZIndex,
		ShapeType: cards.ShapeRectangle,
		Style:     cards.Style{BackgroundColor: fill},
		Visible:   cards.BoolPtr(true),
		Opacity:   cards.Float64Ptr(1),
	}
}

func colorOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
