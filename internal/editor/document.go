package editor

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"go.uber.org/zap"
)

var (
	errMissingResolver   = errors.New("template resolver is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ChangeKind labels a document notification.
type ChangeKind string

// Change kinds. ChangeLive marks uncommitted drag and resize frames; every
// other kind follows a settled state change.
const (
	ChangeLive       ChangeKind = "live"
	ChangeCommit     ChangeKind = "commit"
	ChangeUndo       ChangeKind = "undo"
	ChangeRedo       ChangeKind = "redo"
	ChangeSelection  ChangeKind = "selection"
	ChangeTool       ChangeKind = "tool"
	ChangeZoom       ChangeKind = "zoom"
	ChangeSide       ChangeKind = "side"
	ChangeTemplate   ChangeKind = "template"
	ChangeRecord     ChangeKind = "record"
	ChangeBackground ChangeKind = "background"
)

// Change is delivered to subscribers after the document state moves.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	Side      cards.Side `json:"side"`
	Committed bool       `json:"committed"`
}

// TemplateResolver expands a template id into both sides' elements.
type TemplateResolver interface {
	Resolve(ctx context.Context, id string, record cards.Record) (templates.Resolution, error)
}

// Config wires a Document.
type Config struct {
	Resolver   TemplateResolver
	IDProvider cards.IDProvider
	Logger     *zap.Logger
}

// Document is the two-sided card under edit. It is not safe for concurrent use.
type Document struct {
	front      *Layer
	back       *Layer
	side       cards.Side
	template   templates.Template
	record     cards.Record
	background cards.Background
	controller *Controller
	resolver   TemplateResolver
	logger     *zap.Logger

	listenersMu sync.Mutex
	listeners   map[int]func(Change)
	nextID      int
}

// NewDocument constructs an empty document with the front side active.
func NewDocument(cfg Config) (*Document, error) {
	if cfg.Resolver == nil {
		return nil, errMissingResolver
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	document := &Document{
		front:      newLayer(),
		back:       newLayer(),
		side:       cards.SideFront,
		record:     cards.Record{},
		background: cards.DefaultBackground(),
		resolver:   cfg.Resolver,
		logger:     logger,
		listeners:  make(map[int]func(Change)),
	}
	document.controller = newController(document, cfg.IDProvider, logger)
	return document, nil
}

func (d *Document) activeLayer() *Layer {
	return d.layer(d.side)
}

func (d *Document) layer(side cards.Side) *Layer {
	if side == cards.SideBack {
		return d.back
	}
	return d.front
}

func (d *Document) changed(kind ChangeKind, committed bool) {
	change := Change{Kind: kind, Side: d.side, Committed: committed}
	d.listenersMu.Lock()
	listeners := make([]func(Change), 0, len(d.listeners))
	for _, listener := range d.listeners {
		listeners = append(listeners, listener)
	}
	d.listenersMu.Unlock()
	for _, listener := range listeners {
		listener(change)
	}
}

// Subscribe registers a change listener and returns its cancel function.
func (d *Document) Subscribe(listener func(Change)) func() {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = listener
	return func() {
		d.listenersMu.Lock()
		defer d.listenersMu.Unlock()
		delete(d.listeners, id)
	}
}

// Controller returns the interaction controller bound to the active side.
func (d *Document) Controller() *Controller {
	return d.controller
}

// Side returns the active side.
func (d *Document) Side() cards.Side {
	return d.side
}

// Elements returns a copy of the side's live collection.
func (d *Document) Elements(side cards.Side) []cards.Element {
	return d.layer(side).Elements()
}

// ActiveElements returns a copy of the active side's live collection.
func (d *Document) ActiveElements() []cards.Element {
	return d.activeLayer().Elements()
}

// Layer exposes the side's layer for history inspection.
func (d *Document) Layer(side cards.Side) *Layer {
	return d.layer(side)
}

// Record returns a copy of the bound data record.
func (d *Document) Record() cards.Record {
	return d.record.Clone()
}

// Background returns the shared card background.
func (d *Document) Background() cards.Background {
	return d.background
}

// Template returns the template the document was last generated from.
func (d *Document) Template() templates.Template {
	return d.template.Clone()
}

// SwitchSide activates the other collection and clears the selection. The
// inactive side is never mutated.
func (d *Document) SwitchSide(side cards.Side) (outcome Outcome) {
	if _, err := cards.ParseSide(string(side)); err != nil {
		return Outcome{Warning: "unknown_side"}
	}
	if side == d.side {
		return Outcome{}
	}
	outcome = d.controller.settle()
	d.controller.resetInteraction()
	d.side = side
	d.changed(ChangeSide, false)
	outcome.Changed = true
	return outcome
}

// ApplyTemplate regenerates both sides from the template and the bound record,
// replacing their contents and resetting both histories to the new baseline.
// A missing template leaves the document untouched and is reported as a warning.
func (d *Document) ApplyTemplate(ctx context.Context, id string) ([]string, error) {
	resolution, err := d.resolver.Resolve(ctx, id, d.record)
	if err != nil {
		d.logger.Warn("template resolution failed", zap.String("template_id", id), zap.Error(err))
		return nil, err
	}
	if !resolution.Found {
		return resolution.Warnings, nil
	}
	if err := cards.ValidateCollection(resolution.Front); err != nil {
		d.logger.Warn("template front side invalid", zap.String("template_id", id), zap.Error(err))
		return nil, err
	}
	if err := cards.ValidateCollection(resolution.Back); err != nil {
		d.logger.Warn("template back side invalid", zap.String("template_id", id), zap.Error(err))
		return nil, err
	}

	d.controller.resetInteraction()
	d.front.reset(resolution.Front)
	d.back.reset(resolution.Back)
	d.template = resolution.Template.Clone()
	if resolution.Template.MainBackground != nil {
		d.background = *resolution.Template.MainBackground
	} else {
		d.background = cards.DefaultBackground()
	}
	d.changed(ChangeTemplate, true)
	return resolution.Warnings, nil
}

// SetRecord binds a new data record. Elements are not regenerated; dynamic
// elements pick the new values up at render time.
func (d *Document) SetRecord(record cards.Record) {
	d.record = record.Clone()
	d.changed(ChangeRecord, false)
}

// SetBackground replaces the shared card background.
func (d *Document) SetBackground(background cards.Background) Outcome {
	if background == d.background {
		return Outcome{}
	}
	d.background = background
	d.changed(ChangeBackground, false)
	return Outcome{Changed: true}
}

// SaveSnapshot returns a deep copy of the last committed state of both sides as
// a saveable template. A gesture still in flight is not included, and later
// edits never reach a snapshot already taken.
func (d *Document) SaveSnapshot() templates.Template {
	snapshot := d.template.Clone()
	snapshot.BuiltIn = false
	if snapshot.Name == "" {
		snapshot.Name = "My Template"
	}
	snapshot.Front = &templates.SideLayout{Elements: d.front.committed()}
	snapshot.Back = &templates.SideLayout{Elements: d.back.committed()}
	background := d.background
	snapshot.MainBackground = &background
	return snapshot
}

// State is a serializable view of the document.
type State struct {
	TemplateID  string           `json:"templateId"`
	Side        cards.Side       `json:"side"`
	Tool        Tool             `json:"tool"`
	TextKind    cards.TextKind   `json:"textKind"`
	ShapeKind   cards.ShapeType  `json:"shapeKind"`
	SelectionID string           `json:"selectionId,omitempty"`
	Zoom        float64          `json:"zoom"`
	Front       []cards.Element  `json:"front"`
	Back        []cards.Element  `json:"back"`
	Background  cards.Background `json:"mainBackground"`
	Record      cards.Record     `json:"record"`
	CanUndo     bool             `json:"canUndo"`
	CanRedo     bool             `json:"canRedo"`
}

// State returns a copy of the document and controller state.
func (d *Document) State() State {
	active := d.activeLayer()
	return State{
		TemplateID:  d.template.ID,
		Side:        d.side,
		Tool:        d.controller.Tool(),
		TextKind:    d.controller.TextKind(),
		ShapeKind:   d.controller.ShapeKind(),
		SelectionID: d.controller.Selection(),
		Zoom:        d.controller.Zoom(),
		Front:       d.front.Elements(),
		Back:        d.back.Elements(),
		Background:  d.background,
		Record:      d.record.Clone(),
		CanUndo:     active.CanUndo(),
		CanRedo:     active.CanRedo(),
	}
}
