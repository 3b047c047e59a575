package component

import (
	"fmt"
	"strings"
)

// PropertyDescriptor describes one configurable property of a component.
// Descriptors are immutable once built and are identified by name.
type PropertyDescriptor struct {
	name                        string
	description                 string
	required                    bool
	defaultValue                string
	hasDefault                  bool
	validators                  []Validator
	allowableValues             []string
	dynamic                     bool
	expressionLanguageSupported bool
	sensitive                   bool
	controllerService           bool
}

func (d *PropertyDescriptor) Name() string        { return d.name }
func (d *PropertyDescriptor) Description() string { return d.description }
func (d *PropertyDescriptor) IsRequired() bool    { return d.required }
func (d *PropertyDescriptor) IsDynamic() bool     { return d.dynamic }
func (d *PropertyDescriptor) IsSensitive() bool   { return d.sensitive }

// DefaultValue returns the static default and whether one is declared.
func (d *PropertyDescriptor) DefaultValue() (string, bool) {
	return d.defaultValue, d.hasDefault
}

// AllowableValues returns the closed value set, or nil when unrestricted.
func (d *PropertyDescriptor) AllowableValues() []string {
	return append([]string(nil), d.allowableValues...)
}

// IsExpressionLanguageSupported reports whether values may reference record
// fields with ${name}.
func (d *PropertyDescriptor) IsExpressionLanguageSupported() bool {
	return d.expressionLanguageSupported
}

// IdentifiesControllerService reports whether the value is a service identifier.
func (d *PropertyDescriptor) IdentifiesControllerService() bool {
	return d.controllerService
}

// Equal compares descriptors by name.
func (d *PropertyDescriptor) Equal(other *PropertyDescriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.name == other.name
}

// Validate checks input against the allowable values and every validator.
// Expression-bearing input on an expression-capable descriptor is accepted
// as-is because it can only be checked against a record.
func (d *PropertyDescriptor) Validate(input string) ValidationResult {
	if d.expressionLanguageSupported && HasExpression(input) {
		return ValidationResult{Subject: d.name, Input: input, Valid: true, Explanation: "expression evaluated per record"}
	}
	if len(d.allowableValues) > 0 {
		allowed := false
		for _, v := range d.allowableValues {
			if v == input {
				allowed = true
				break
			}
		}
		if !allowed {
			return invalid(d.name, input, "'%s' is not one of [%s]", input, strings.Join(d.allowableValues, ", "))
		}
	}
	for _, v := range d.validators {
		if res := v.Validate(d.name, input); !res.Valid {
			return res
		}
	}
	return valid(d.name, input)
}

func (d *PropertyDescriptor) String() string {
	return fmt.Sprintf("PropertyDescriptor[%s]", d.name)
}

// PropertyDescriptorBuilder builds a PropertyDescriptor.
type PropertyDescriptorBuilder struct {
	d PropertyDescriptor
}

// NewPropertyDescriptor starts a descriptor for name.
func NewPropertyDescriptor(name string) *PropertyDescriptorBuilder {
	return &PropertyDescriptorBuilder{d: PropertyDescriptor{name: name}}
}

func (b *PropertyDescriptorBuilder) Description(s string) *PropertyDescriptorBuilder {
	b.d.description = s
	return b
}

func (b *PropertyDescriptorBuilder) Required(required bool) *PropertyDescriptorBuilder {
	b.d.required = required
	return b
}

func (b *PropertyDescriptorBuilder) DefaultValue(v string) *PropertyDescriptorBuilder {
	b.d.defaultValue = v
	b.d.hasDefault = true
	return b
}

func (b *PropertyDescriptorBuilder) AddValidator(v Validator) *PropertyDescriptorBuilder {
	b.d.validators = append(b.d.validators, v)
	return b
}

func (b *PropertyDescriptorBuilder) AllowableValues(values ...string) *PropertyDescriptorBuilder {
	b.d.allowableValues = append([]string(nil), values...)
	return b
}

func (b *PropertyDescriptorBuilder) Dynamic(dynamic bool) *PropertyDescriptorBuilder {
	b.d.dynamic = dynamic
	return b
}

func (b *PropertyDescriptorBuilder) ExpressionLanguageSupported(supported bool) *PropertyDescriptorBuilder {
	b.d.expressionLanguageSupported = supported
	return b
}

func (b *PropertyDescriptorBuilder) Sensitive(sensitive bool) *PropertyDescriptorBuilder {
	b.d.sensitive = sensitive
	return b
}

func (b *PropertyDescriptorBuilder) IdentifiesControllerService(identifies bool) *PropertyDescriptorBuilder {
	b.d.controllerService = identifies
	return b
}

// Build returns the descriptor. It panics on an empty name, which is a
// programming error in the declaring component.
func (b *PropertyDescriptorBuilder) Build() *PropertyDescriptor {
	if strings.TrimSpace(b.d.name) == "" {
		panic("component: property descriptor requires a name")
	}
	d := b.d
	d.validators = append([]Validator(nil), b.d.validators...)
	d.allowableValues = append([]string(nil), b.d.allowableValues...)
	return &d
}
