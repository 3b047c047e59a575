// Package component provides the configuration framework shared by every
// recordflow processor and controller service.
//
// A component declares its static PropertyDescriptors; a Context holds the
// component's live configuration. Values are validated when set: an invalid
// value is reported through the returned ValidationResult and leaves the
// configuration unchanged. Once a Context is finalized, further mutation is a
// structural error.
//
// Property values marked as supporting expressions are compiled once and
// evaluated against each record:
//
//	pv := ctx.GetPropertyValue("record.key")
//	key := pv.Evaluate(rec).AsString()
package component

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

// PropertyKind distinguishes statically declared properties from
// user-defined ones.
type PropertyKind int

const (
	Static PropertyKind = iota
	Dynamic
)

func (k PropertyKind) String() string {
	if k == Dynamic {
		return "dynamic"
	}
	return "static"
}

// PropertyKey identifies a configured property.
type PropertyKey struct {
	Kind PropertyKind
	Name string
}

// StaticKey returns the key of a declared property.
func StaticKey(name string) PropertyKey { return PropertyKey{Kind: Static, Name: name} }

// DynamicKey returns the key of a user-defined property.
func DynamicKey(name string) PropertyKey { return PropertyKey{Kind: Dynamic, Name: name} }

// Property is one entry of Context.Properties.
type Property struct {
	Key        PropertyKey
	Descriptor *PropertyDescriptor
	Value      string
	Set        bool
}

type setting struct {
	descriptor *PropertyDescriptor
	value      string
}

// Context is a component's live configuration. It is safe for concurrent use.
type Context struct {
	identifier string
	name       string
	component  Configurable
	lookup     ServiceLookup

	mu         sync.RWMutex
	statics    *orderedmap.OrderedMap[string, *PropertyDescriptor]
	properties *orderedmap.OrderedMap[PropertyKey, setting]
	finalized  bool
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithServiceLookup wires controller service resolution.
func WithServiceLookup(l ServiceLookup) ContextOption {
	return func(c *Context) {
		if l != nil {
			c.lookup = l
		}
	}
}

// WithName sets a display name. It defaults to the identifier.
func WithName(name string) ContextOption {
	return func(c *Context) { c.name = name }
}

// NewContext creates an empty configuration for component.
func NewContext(identifier string, component Configurable, opts ...ContextOption) *Context {
	c := &Context{
		identifier: identifier,
		name:       identifier,
		component:  component,
		lookup:     NoServices,
		statics:    orderedmap.New[string, *PropertyDescriptor](),
		properties: orderedmap.New[PropertyKey, setting](),
	}
	if component != nil {
		for _, d := range component.PropertyDescriptors() {
			c.statics.Set(d.name, d)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) Identifier() string { return c.identifier }
func (c *Context) Name() string       { return c.name }

// Component returns the configured component.
func (c *Context) Component() Configurable { return c.component }

// ServiceLookup returns the lookup wired into this context.
func (c *Context) ServiceLookup() ServiceLookup { return c.lookup }

// GetControllerService delegates to the wired lookup.
func (c *Context) GetControllerService(identifier string) (ControllerService, bool) {
	return c.lookup.GetControllerService(identifier)
}

// descriptorFor resolves a static descriptor, else a configured dynamic one.
// With synthesize set, a component supporting user-defined names is also
// asked for a new dynamic descriptor. The key kind is returned with it.
func (c *Context) descriptorFor(name string, synthesize bool) (*PropertyDescriptor, PropertyKey, bool) {
	if d, ok := c.statics.Get(name); ok {
		return d, StaticKey(name), true
	}
	if s, ok := c.properties.Get(DynamicKey(name)); ok {
		return s.descriptor, DynamicKey(name), true
	}
	if !synthesize {
		return nil, PropertyKey{}, false
	}
	if sup, ok := c.component.(DynamicPropertySupporter); ok {
		if d := sup.DynamicPropertyDescriptor(name); d != nil {
			if !d.dynamic {
				dd := *d
				dd.dynamic = true
				d = &dd
			}
			return d, DynamicKey(name), true
		}
	}
	return nil, PropertyKey{}, false
}

// SetProperty validates and stores a value. An invalid value leaves the
// configuration unchanged; the error is reserved for structural misuse.
func (c *Context) SetProperty(name, value string) (ValidationResult, error) {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return ValidationResult{}, c.finalizedError("set", name)
	}
	d, key, ok := c.descriptorFor(name, true)
	if !ok {
		c.mu.Unlock()
		return invalid(name, value, "'%s' is not a supported property", name), nil
	}
	res := d.Validate(value)
	if !res.Valid {
		c.mu.Unlock()
		return res, nil
	}
	old, existed := c.properties.Set(key, setting{descriptor: d, value: value})
	c.mu.Unlock()

	if !existed || old.value != value {
		c.notify(d, old.value, value)
	}
	return res, nil
}

// RemoveProperty clears a configured value.
func (c *Context) RemoveProperty(name string) (bool, error) {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return false, c.finalizedError("remove", name)
	}
	key := StaticKey(name)
	if _, ok := c.statics.Get(name); !ok {
		key = DynamicKey(name)
	}
	old, removed := c.properties.Delete(key)
	c.mu.Unlock()

	if removed {
		c.notify(old.descriptor, old.value, "")
	}
	return removed, nil
}

func (c *Context) notify(d *PropertyDescriptor, oldValue, newValue string) {
	if l, ok := c.component.(PropertyModifiedListener); ok {
		l.OnPropertyModified(d, oldValue, newValue)
	}
}

// GetPropertyValue resolves name: the configured value, else the
// descriptor's default, else an unset value. It returns nil when the
// component declares no descriptor for name and no dynamic property of that
// name is configured.
func (c *Context) GetPropertyValue(name string) *PropertyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, key, ok := c.descriptorFor(name, false)
	if !ok {
		return nil
	}
	return c.resolve(d, key)
}

// GetPropertyValueFor resolves d by name, using d itself when the component
// does not declare it.
func (c *Context) GetPropertyValueFor(d *PropertyDescriptor) *PropertyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	known, key, ok := c.descriptorFor(d.name, false)
	if !ok {
		return c.resolve(d, StaticKey(d.name))
	}
	return c.resolve(known, key)
}

func (c *Context) resolve(d *PropertyDescriptor, key PropertyKey) *PropertyValue {
	if s, ok := c.properties.Get(key); ok {
		return newPropertyValue(d, s.value, true, c.lookup)
	}
	if d.hasDefault {
		return newPropertyValue(d, d.defaultValue, true, c.lookup)
	}
	return newPropertyValue(d, "", false, c.lookup)
}

// NewPropertyValue wraps ad-hoc text with expression support.
func (c *Context) NewPropertyValue(raw string) *PropertyValue {
	d := NewPropertyDescriptor("inline").ExpressionLanguageSupported(true).Build()
	return newPropertyValue(d, raw, true, c.lookup)
}

// Properties returns every static descriptor, set or not, followed by every
// configured dynamic property.
func (c *Context) Properties() []Property {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Property, 0, c.statics.Len()+c.properties.Len())
	for p := c.statics.Oldest(); p != nil; p = p.Next() {
		prop := Property{Key: StaticKey(p.Key), Descriptor: p.Value}
		if s, ok := c.properties.Get(prop.Key); ok {
			prop.Value, prop.Set = s.value, true
		}
		out = append(out, prop)
	}
	for p := c.properties.Oldest(); p != nil; p = p.Next() {
		if p.Key.Kind != Dynamic {
			continue
		}
		out = append(out, Property{Key: p.Key, Descriptor: p.Value.descriptor, Value: p.Value.value, Set: true})
	}
	return out
}

// DynamicProperties returns the configured user-defined properties.
func (c *Context) DynamicProperties() []Property {
	var out []Property
	for _, p := range c.Properties() {
		if p.Key.Kind == Dynamic {
			out = append(out, p)
		}
	}
	return out
}

// Validate returns every problem with the configuration: missing required
// properties and configured values that fail their descriptor.
func (c *Context) Validate() []ValidationResult {
	var problems []ValidationResult
	for _, p := range c.Properties() {
		if !p.Set {
			if _, hasDefault := p.Descriptor.DefaultValue(); p.Descriptor.required && !hasDefault {
				problems = append(problems, invalid(p.Key.Name, "", "'%s' is a required property", p.Key.Name))
			}
			continue
		}
		if res := p.Descriptor.Validate(p.Value); !res.Valid {
			problems = append(problems, res)
		}
	}
	return problems
}

// IsValid reports whether Validate finds no problems.
func (c *Context) IsValid() bool {
	return len(c.Validate()) == 0
}

// Finalize freezes the configuration.
func (c *Context) Finalize() {
	c.mu.Lock()
	c.finalized = true
	c.mu.Unlock()
}

// IsFinalized reports whether Finalize has been called.
func (c *Context) IsFinalized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finalized
}

func (c *Context) finalizedError(op, name string) error {
	return errors.Newf(errors.ErrorTypeStructural, "cannot %s property %q: context %q is finalized", op, name, c.identifier).
		WithDetail("component", c.identifier)
}
