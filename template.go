package depot

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// EntityTemplate is a reusable component set with encoded initial values.
// Components missing from the map are instantiated with their zero value.
type EntityTemplate struct {
	Name       string                          `json:"name"`
	Signature  Signature                       `json:"signature"`
	Components map[ComponentID]json.RawMessage `json:"components"`
	// Base names the template this one was derived from, if any.
	Base string `json:"base,omitempty"`
	uses uint64
}

// NewEntityTemplate returns an empty template for sig.
func NewEntityTemplate(name string, sig Signature) *EntityTemplate {
	return &EntityTemplate{
		Name:       name,
		Signature:  sig,
		Components: make(map[ComponentID]json.RawMessage),
	}
}

// Uses is the number of instantiations since the last prune.
func (t *EntityTemplate) Uses() uint64 {
	return t.uses
}

// Set encodes v as the initial value of component id and adds id to the
// signature.
func (t *EntityTemplate) Set(id ComponentID, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "failed to encode template component %d", id)
	}
	if t.Components == nil {
		t.Components = make(map[ComponentID]json.RawMessage)
	}
	t.Components[id] = data
	t.Signature = t.Signature.With(id)
	return nil
}

// TemplateVariant derives a template from a registered base: Overrides
// replace or add component values and Removed drops components. The variant
// is registered as "<base>_<Name>".
type TemplateVariant struct {
	Name      string                          `json:"name"`
	Overrides map[ComponentID]json.RawMessage `json:"overrides,omitempty"`
	Removed   []ComponentID                   `json:"removed,omitempty"`
}

// Override encodes v as the variant's value of component id.
func (v *TemplateVariant) Override(id ComponentID, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return eris.Wrapf(err, "failed to encode variant component %d", id)
	}
	if v.Overrides == nil {
		v.Overrides = make(map[ComponentID]json.RawMessage)
	}
	v.Overrides[id] = data
	return nil
}

// derive builds the variant's template from base.
func (v TemplateVariant) derive(base *EntityTemplate) *EntityTemplate {
	tpl := NewEntityTemplate(variantName(base.Name, v.Name), base.Signature)
	tpl.Base = base.Name
	for id, data := range base.Components {
		tpl.Components[id] = data
	}
	for id, data := range v.Overrides {
		tpl.Components[id] = data
		tpl.Signature = tpl.Signature.With(id)
	}
	for _, id := range v.Removed {
		delete(tpl.Components, id)
		tpl.Signature = tpl.Signature.Without(id)
	}
	return tpl
}

func variantName(base, variant string) string {
	return base + "_" + variant
}

func defaultTemplateName(e EntityHandle) string {
	return fmt.Sprintf("template_%d", e.ID)
}
