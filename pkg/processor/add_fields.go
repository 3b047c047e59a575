package processor

import (
	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// AddFieldsClass is the catalog name of AddFields.
const AddFieldsClass = "processor.add_fields"

// Conflict resolution policies.
const (
	KeepOldField      = "keep_only_old_field"
	OverwriteExisting = "overwrite_existing"
)

var ConflictPolicyProperty = component.NewPropertyDescriptor("conflict.resolution.policy").
	Description("What to do when a field of the same name already exists").
	DefaultValue(KeepOldField).
	AllowableValues(KeepOldField, OverwriteExisting).
	Build()

// AddFields adds one STRING field per dynamic property. The property name is
// the field name and its value is evaluated against each record, so
// "owner=${team:-ops}" copies team into owner.
type AddFields struct {
	overwrite bool
	fields    []addedField
}

type addedField struct {
	name  string
	value *component.PropertyValue
}

// PropertyDescriptors implements component.Configurable.
func (p *AddFields) PropertyDescriptors() []*component.PropertyDescriptor {
	return []*component.PropertyDescriptor{ConflictPolicyProperty}
}

// DynamicPropertyDescriptor accepts any field name.
func (p *AddFields) DynamicPropertyDescriptor(name string) *component.PropertyDescriptor {
	return component.NewPropertyDescriptor(name).
		Description("Field to add").
		ExpressionLanguageSupported(true).
		AddValidator(component.AlwaysValid).
		Dynamic(true).
		Build()
}

// Init captures the policy and compiles the field expressions.
func (p *AddFields) Init(ctx *component.Context) error {
	p.overwrite = ctx.GetPropertyValue(ConflictPolicyProperty.Name()).AsString() == OverwriteExisting
	p.fields = p.fields[:0]
	for _, prop := range ctx.DynamicProperties() {
		p.fields = append(p.fields, addedField{
			name:  prop.Key.Name,
			value: ctx.GetPropertyValue(prop.Key.Name),
		})
	}
	return nil
}

// Process adds the configured fields to every record in place.
func (p *AddFields) Process(_ *component.Context, records []*record.Record) []*record.Record {
	for _, r := range records {
		for _, f := range p.fields {
			if !p.overwrite && r.HasField(f.name) {
				continue
			}
			r.SetStringField(f.name, f.value.Evaluate(r).AsString())
		}
	}
	return records
}
