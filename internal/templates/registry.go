package templates

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/serviceerr"
)

// Registry serves the built-in templates ahead of the stored ones.
type Registry struct {
	builtIns map[string]Template
	order    []string
	store    *Store
}

// NewRegistry constructs a Registry. A nil store serves built-ins only.
func NewRegistry(store *Store) *Registry {
	registry := &Registry{builtIns: make(map[string]Template), store: store}
	for _, template := range BuiltIns() {
		registry.builtIns[template.ID] = template
		registry.order = append(registry.order, template.ID)
	}
	return registry
}

// Get returns the template with the id.
func (r *Registry) Get(ctx context.Context, id string) (Template, error) {
	id = strings.TrimSpace(id)
	if template, ok := r.builtIns[id]; ok {
		return template.Clone(), nil
	}
	if r.store == nil || id == "" {
		return Template{}, serviceerr.New(opStoreGet, "not_found", ErrTemplateNotFound)
	}
	return r.store.Get(ctx, id)
}

// List returns the built-ins in declaration order followed by stored templates.
func (r *Registry) List(ctx context.Context) ([]Template, error) {
	templates := make([]Template, 0, len(r.order))
	for _, id := range r.order {
		templates = append(templates, r.builtIns[id].Clone())
	}
	if r.store == nil {
		return templates, nil
	}
	stored, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return append(templates, stored...), nil
}

// Create stores a user template. Built-in ids are reserved.
func (r *Registry) Create(ctx context.Context, template Template) (Template, error) {
	if _, reserved := r.builtIns[strings.TrimSpace(template.ID)]; reserved {
		return Template{}, serviceerr.New(opStoreCreate, "reserved_id", ErrReadOnlyTemplate)
	}
	if r.store == nil {
		return Template{}, serviceerr.New(opStoreCreate, "missing_store", errMissingDatabase)
	}
	return r.store.Create(ctx, template)
}

// Update patches a user template. Built-ins are rejected.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) (Template, error) {
	if _, builtIn := r.builtIns[id]; builtIn {
		return Template{}, serviceerr.New(opStoreUpdate, "read_only", ErrReadOnlyTemplate)
	}
	if r.store == nil {
		return Template{}, serviceerr.New(opStoreUpdate, "not_found", ErrTemplateNotFound)
	}
	return r.store.Update(ctx, id, patch)
}

// Delete removes a user template. Built-ins are rejected.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, builtIn := r.builtIns[id]; builtIn {
		return serviceerr.New(opStoreDelete, "read_only", ErrReadOnlyTemplate)
	}
	if r.store == nil {
		return serviceerr.New(opStoreDelete, "not_found", ErrTemplateNotFound)
	}
	return r.store.Delete(ctx, id)
}
