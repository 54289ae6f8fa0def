package templates

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"go.uber.org/zap"
)

// Catalog looks templates up by id.
type Catalog interface {
	Get(ctx context.Context, id string) (Template, error)
}

// Resolution is the outcome of resolving a template for both sides.
type Resolution struct {
	Template Template
	Found    bool
	Front    []cards.Element
	Back     []cards.Element
	Warnings []string
}

// ElementsFor returns the element list the template yields for the side.
// Saved elements take priority over the generator; inputs are never mutated.
func ElementsFor(template Template, side cards.Side, record cards.Record) ([]cards.Element, error) {
	if _, err := cards.ParseSide(string(side)); err != nil {
		return nil, err
	}

	saved := template.SavedElements(side)
	if saved != nil {
		return normalizeSaved(saved)
	}

	if template.generator == nil {
		return []cards.Element{}, nil
	}
	generated := template.generator(side, template.Colors, record.Clone())
	return cards.CloneElements(generated), nil
}

// unusedID returns element_<n> for the first n from index that no earlier element holds.
func unusedID(seen map[string]struct{}, index int) string {
	for n := index; ; n++ {
		id := fmt.Sprintf("element_%d", n)
		if _, taken := seen[id]; !taken {
			return id
		}
	}
}

func normalizeSaved(saved []cards.Element) ([]cards.Element, error) {
	converted := make([]cards.Element, 0, len(saved))
	seen := make(map[string]struct{}, len(saved))
	for index, source := range saved {
		elementType, err := cards.ParseElementType(string(source.Type))
		if err != nil {
			return nil, fmt.Errorf("saved element %d: %w", index, err)
		}
		element := source.Clone()
		element.Type = elementType

		if _, dup := seen[element.ID]; element.ID == "" || dup {
			element.ID = unusedID(seen, index)
		}
		seen[element.ID] = struct{}{}

		if element.ZIndex <= 0 {
			element.ZIndex = index + 1
		}
		if element.Width <= 0 {
			element.Width = cards.MinElementSize
		}
		if element.Height <= 0 {
			element.Height = cards.MinElementSize
		}
		if element.Type == cards.ElementTypeShape && element.ShapeType == "" {
			element.ShapeType = cards.ShapeRectangle
		}
		converted = append(converted, element)
	}
	return converted, nil
}

// Adapter resolves templates from a catalog into element lists.
type Adapter struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewAdapter constructs an Adapter. A nil logger is replaced with a no-op logger.
func NewAdapter(catalog Catalog, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{catalog: catalog, logger: logger}
}

// Resolve looks the template up and returns both sides. A missing template is
// reported as a warning with empty lists; other lookup failures are returned.
func (a *Adapter) Resolve(ctx context.Context, id string, record cards.Record) (Resolution, error) {
	if a == nil || a.catalog == nil {
		return Resolution{}, errors.New("templates: adapter has no catalog")
	}
	template, err := a.catalog.Get(ctx, id)
	if errors.Is(err, ErrTemplateNotFound) {
		a.logger.Warn("template not found", zap.String("template_id", id))
		return Resolution{
			Front:    []cards.Element{},
			Back:     []cards.Element{},
			Warnings: []string{fmt.Sprintf("template %q not found", id)},
		}, nil
	}
	if err != nil {
		return Resolution{}, err
	}

	front, err := ElementsFor(template, cards.SideFront, record)
	if err != nil {
		return Resolution{}, err
	}
	back, err := ElementsFor(template, cards.SideBack, record)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Template: template, Found: true, Front: front, Back: back}, nil
}
