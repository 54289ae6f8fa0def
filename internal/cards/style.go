package cards

// Style is the structured bag of optional presentation attributes. Zero values mean unset.
type Style struct {
	FontSize        float64 `json:"fontSize,omitempty"`
	FontWeight      string  `json:"fontWeight,omitempty"`
	FontStyle       string  `json:"fontStyle,omitempty"`
	TextDecoration  string  `json:"textDecoration,omitempty"`
	TextAlign       string  `json:"textAlign,omitempty"`
	Color           string  `json:"color,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	BorderColor     string  `json:"borderColor,omitempty"`
	BorderWidth     float64 `json:"borderWidth,omitempty"`
	BorderRadius    float64 `json:"borderRadius,omitempty"`
	FontFamily      string  `json:"fontFamily,omitempty"`
	LetterSpacing   float64 `json:"letterSpacing,omitempty"`
	LineHeight      float64 `json:"lineHeight,omitempty"`
}

// StylePatch carries a discrete style edit. Nil fields are left untouched.
type StylePatch struct {
	FontSize        *float64 `json:"fontSize,omitempty"`
	FontWeight      *string  `json:"fontWeight,omitempty"`
	FontStyle       *string  `json:"fontStyle,omitempty"`
	TextDecoration  *string  `json:"textDecoration,omitempty"`
	TextAlign       *string  `json:"textAlign,omitempty"`
	Color           *string  `json:"color,omitempty"`
	BackgroundColor *string  `json:"backgroundColor,omitempty"`
	BorderColor     *string  `json:"borderColor,omitempty"`
	BorderWidth     *float64 `json:"borderWidth,omitempty"`
	BorderRadius    *float64 `json:"borderRadius,omitempty"`
	FontFamily      *string  `json:"fontFamily,omitempty"`
	LetterSpacing   *float64 `json:"letterSpacing,omitempty"`
	LineHeight      *float64 `json:"lineHeight,omitempty"`
}

// Apply returns the style with every non-nil patch field written over it.
func (p StylePatch) Apply(style Style) Style {
	if p.FontSize != nil {
		style.FontSize = *p.FontSize
	}
	if p.FontWeight != nil {
		style.FontWeight = *p.FontWeight
	}
	if p.FontStyle != nil {
		style.FontStyle = *p.FontStyle
	}
	if p.TextDecoration != nil {
		style.TextDecoration = *p.TextDecoration
	}
	if p.TextAlign != nil {
		style.TextAlign = *p.TextAlign
	}
	if p.Color != nil {
		style.Color = *p.Color
	}
	if p.BackgroundColor != nil {
		style.BackgroundColor = *p.BackgroundColor
	}
	if p.BorderColor != nil {
		style.BorderColor = *p.BorderColor
	}
	if p.BorderWidth != nil {
		style.BorderWidth = *p.BorderWidth
	}
	if p.BorderRadius != nil {
		style.BorderRadius = *p.BorderRadius
	}
	if p.FontFamily != nil {
		style.FontFamily = *p.FontFamily
	}
	if p.LetterSpacing != nil {
		style.LetterSpacing = *p.LetterSpacing
	}
	if p.LineHeight != nil {
		style.LineHeight = *p.LineHeight
	}
	return style
}

// Background describes the card body shared by both sides.
type Background struct {
	InnerColor  string  `json:"innerColor"`
	BorderWidth float64 `json:"borderWidth"`
	BorderColor string  `json:"borderColor"`
}

// DefaultBackground returns a plain white card without an outer border.
func DefaultBackground() Background {
	return Background{
		InnerColor:  "#ffffff",
		BorderWidth: 0,
		BorderColor: "#000000",
	}
}
