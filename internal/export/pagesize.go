package export

// PageSize is a PDF page in points.
type PageSize struct {
	Name   string
	Width  float64
	Height float64
}

const pointsPerMillimetre = 72.0 / 25.4

var (
	// CardSize is an ISO/IEC 7810 ID-1 (CR80) card, 85.6mm x 53.98mm, landscape.
	CardSize = PageSize{Name: "CR80", Width: 85.6 * pointsPerMillimetre, Height: 53.98 * pointsPerMillimetre}
	// A4Size is a portrait A4 sheet.
	A4Size = PageSize{Name: "A4", Width: 595.27559, Height: 841.88976}
)

// Valid reports whether both dimensions are positive.
func (p PageSize) Valid() bool {
	return p.Width > 0 && p.Height > 0
}
