package depot

import (
	iter_util "github.com/TheBitDrifter/util/iter"
	"github.com/rotisserie/eris"
)

// TemplateFromEntity captures e's components and their current values as a
// template registered under name. An empty name picks one from e's id.
func (r *Registry) TemplateFromEntity(e EntityHandle, name string) (*EntityTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	arch, err := r.archetypeOf(e)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = defaultTemplateName(e)
	}
	tpl := NewEntityTemplate(name, arch.sig.Mask)
	for _, id := range iter_util.Collect(arch.sig.Mask.Components()) {
		data, err := arch.column(id).encode(e)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to capture component %d of %v", id, e)
		}
		tpl.Components[id] = data
	}
	if err := r.pool.RegisterTemplate(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// RegisterTemplate stores tpl for CreateFromTemplate. Every component in its
// signature must already be registered.
func (r *Registry) RegisterTemplate(tpl *EntityTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkTemplate(tpl); err != nil {
		return err
	}
	return r.pool.RegisterTemplate(tpl)
}

func (r *Registry) Template(name string) (*EntityTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pool.Template(name)
}

// CreateVariant registers the template derived from base by v, named
// "<base>_<v.Name>".
func (r *Registry) CreateVariant(base string, v TemplateVariant) (*EntityTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.Name == "" {
		return nil, eris.Errorf("variant of %q needs a name", base)
	}
	parent, ok := r.pool.Template(base)
	if !ok {
		return nil, eris.Wrapf(ErrTemplateNotFound, "variant base %q", base)
	}
	tpl := v.derive(parent)
	if err := r.checkTemplate(tpl); err != nil {
		return nil, err
	}
	if err := r.pool.RegisterTemplate(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// RemoveTemplate drops the template registered as name and its variants. It
// reports whether name was registered.
func (r *Registry) RemoveTemplate(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.pool.RemoveTemplate(name)
	if len(removed) > 1 {
		r.log.Debug().Str("template", name).Strs("variants", removed[1:]).Msg("removed template variants")
	}
	return len(removed) > 0
}

func (r *Registry) checkTemplate(tpl *EntityTemplate) error {
	for id := range tpl.Signature.Components() {
		if r.components.byComponentID(id) == nil {
			return eris.Wrapf(ErrUnknownComponent, "template %q uses component %d", tpl.Name, id)
		}
	}
	for id := range tpl.Components {
		if !tpl.Signature.Has(id) {
			return eris.Errorf("template %q has a value for component %d outside its signature", tpl.Name, id)
		}
	}
	return nil
}

// CreateFromTemplate creates an entity from the template registered as name.
// Components without an encoded value get their zero value.
func (r *Registry) CreateFromTemplate(name string) (EntityHandle, error) {
	handles, err := r.Instantiate(name, 1)
	if err != nil {
		return NilEntity, err
	}
	return handles[0], nil
}

// Instantiate creates n entities from the template registered as name. Either
// all n are created or none.
func (r *Registry) Instantiate(name string, n int) ([]EntityHandle, error) {
	var events eventBuffer
	r.mu.Lock()
	handles, err := r.instantiate(name, n, &events)
	r.mu.Unlock()
	r.emit(events)
	return handles, err
}

func (r *Registry) instantiate(name string, n int, events *eventBuffer) ([]EntityHandle, error) {
	if r.locks > 0 {
		return nil, LockedRegistryError{}
	}
	tpl, ok := r.pool.Template(name)
	if !ok {
		return nil, eris.Wrapf(ErrTemplateNotFound, "template %q", name)
	}
	if err := r.checkTemplate(tpl); err != nil {
		return nil, err
	}
	archID, err := r.archetypes.GetOrCreate(tpl.Signature)
	if err != nil {
		return nil, err
	}
	arch := r.archetypes.get(archID)

	handles := make([]EntityHandle, 0, n)
	rollback := func() {
		for _, e := range handles {
			arch.remove(e)
			r.locations.Del(e.ID)
			r.pool.Destroy(e)
		}
	}
	for range n {
		e, err := r.pool.CreateFromTemplate(tpl)
		if err != nil {
			rollback()
			return nil, err
		}
		handles = append(handles, e)
		if err := arch.add(e); err != nil {
			rollback()
			return nil, eris.Wrapf(err, "failed to instantiate template %q", name)
		}
		r.locations.Put(e.ID, archID)
		for id, data := range tpl.Components {
			if err := arch.column(id).decodeInto(e, data); err != nil {
				rollback()
				return nil, eris.Wrapf(err, "failed to decode component %d of template %q", id, name)
			}
		}
	}
	if len(handles) > 0 && r.cache != nil {
		r.cache.InvalidateMatching(tpl.Signature)
	}
	for _, e := range handles {
		events.created(e)
	}
	return handles, nil
}
