package templates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
)

const maxIdentifierLength = 190

var (
	// ErrTemplateNotFound indicates that no template carries the requested id.
	ErrTemplateNotFound = errors.New("templates: template not found")
	// ErrInvalidTemplate indicates that a template failed validation.
	ErrInvalidTemplate = errors.New("templates: invalid template")
	// ErrReadOnlyTemplate indicates an attempt to modify a built-in template.
	ErrReadOnlyTemplate = errors.New("templates: built-in templates are read-only")
)

// Colors is the palette a template paints with.
type Colors struct {
	Primary string `json:"primary"`
	Accent  string `json:"accent,omitempty"`
	Neutral string `json:"neutral"`
}

// SideLayout holds the saved element list for one side.
type SideLayout struct {
	Elements []cards.Element `json:"elements"`
}

// Generator synthesizes a side's elements from the bound record.
type Generator func(side cards.Side, colors Colors, record cards.Record) []cards.Element

// Template is a named, styled layout generator.
type Template struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Colors         Colors            `json:"colors"`
	Front          *SideLayout       `json:"front,omitempty"`
	Back           *SideLayout       `json:"back,omitempty"`
	MainBackground *cards.Background `json:"mainBackground,omitempty"`
	OwnerID        string            `json:"ownerId,omitempty"`
	BuiltIn        bool              `json:"builtIn"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`

	generator Generator
}

// SavedElements returns the explicit element list stored for the side, if any.
func (t Template) SavedElements(side cards.Side) []cards.Element {
	var layout *SideLayout
	switch side {
	case cards.SideFront:
		layout = t.Front
	case cards.SideBack:
		layout = t.Back
	}
	if layout == nil {
		return nil
	}
	return layout.Elements
}

// Clone returns a deep copy; the generator is shared because it is stateless.
func (t Template) Clone() Template {
	cloned := t
	if t.Front != nil {
		cloned.Front = &SideLayout{Elements: cards.CloneElements(t.Front.Elements)}
	}
	if t.Back != nil {
		cloned.Back = &SideLayout{Elements: cards.CloneElements(t.Back.Elements)}
	}
	if t.MainBackground != nil {
		background := *t.MainBackground
		cloned.MainBackground = &background
	}
	return cloned
}

// Validate checks the fields required to persist a template.
func (t Template) Validate() error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTemplate)
	}
	if len(t.ID) > maxIdentifierLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidTemplate, maxIdentifierLength)
	}
	for _, side := range []cards.Side{cards.SideFront, cards.SideBack} {
		for index, element := range t.SavedElements(side) {
			if _, err := cards.ParseElementType(string(element.Type)); err != nil {
				return fmt.Errorf("%w: %s element %d: %v", ErrInvalidTemplate, side, index, err)
			}
		}
	}
	return nil
}

// Patch describes a partial template update. Nil fields are left untouched.
type Patch struct {
	Name           *string           `json:"name,omitempty"`
	Colors         *Colors           `json:"colors,omitempty"`
	Front          *SideLayout       `json:"front,omitempty"`
	Back           *SideLayout       `json:"back,omitempty"`
	MainBackground *cards.Background `json:"mainBackground,omitempty"`
}

// Apply returns the template with the patch written over it.
func (p Patch) Apply(t Template) Template {
	updated := t.Clone()
	if p.Name != nil {
		updated.Name = *p.Name
	}
	if p.Colors != nil {
		updated.Colors = *p.Colors
	}
	if p.Front != nil {
		updated.Front = &SideLayout{Elements: cards.CloneElements(p.Front.Elements)}
	}
	if p.Back != nil {
		updated.Back = &SideLayout{Elements: cards.CloneElements(p.Back.Elements)}
	}
	if p.MainBackground != nil {
		background := *p.MainBackground
		updated.MainBackground = &background
	}
	return updated
}
