package component

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// PropertyValue wraps a resolved property's raw text. A nil *PropertyValue
// is the absent result for an unknown property; all methods accept it.
type PropertyValue struct {
	raw        string
	set        bool
	descriptor *PropertyDescriptor
	lookup     ServiceLookup
	expr       *expression
}

func newPropertyValue(d *PropertyDescriptor, raw string, set bool, lookup ServiceLookup) *PropertyValue {
	if lookup == nil {
		lookup = NoServices
	}
	pv := &PropertyValue{raw: raw, set: set, descriptor: d, lookup: lookup}
	if set && d != nil && d.expressionLanguageSupported {
		pv.expr = compileExpression(raw)
	}
	return pv
}

// Descriptor returns the descriptor the value was resolved against.
func (pv *PropertyValue) Descriptor() *PropertyDescriptor {
	if pv == nil {
		return nil
	}
	return pv.descriptor
}

// IsSet reports whether a configured or default value exists.
func (pv *PropertyValue) IsSet() bool {
	return pv != nil && pv.set
}

// Evaluate substitutes record-field references and returns a new value
// holding the result. Without expression support it returns pv unchanged.
func (pv *PropertyValue) Evaluate(r *record.Record) *PropertyValue {
	if pv == nil || pv.expr == nil {
		return pv
	}
	return &PropertyValue{
		raw:        pv.expr.evaluate(r),
		set:        true,
		descriptor: pv.descriptor,
		lookup:     pv.lookup,
	}
}

// AsString returns the raw text, or "" when unset.
func (pv *PropertyValue) AsString() string {
	if pv == nil {
		return ""
	}
	return pv.raw
}

func (pv *PropertyValue) AsInt() (int, error) {
	v, err := pv.AsLong()
	if err != nil {
		return 0, err
	}
	if v > 1<<31-1 || v < -1<<31 {
		return 0, pv.coercionError("integer", fmt.Errorf("%d overflows int32", v))
	}
	return int(v), nil
}

func (pv *PropertyValue) AsLong() (int64, error) {
	if err := pv.requireSet("long"); err != nil {
		return 0, err
	}
	v, err := parseInteger(pv.raw)
	if err != nil {
		return 0, pv.coercionError("long", err)
	}
	return v, nil
}

func (pv *PropertyValue) AsDouble() (float64, error) {
	if err := pv.requireSet("double"); err != nil {
		return 0, err
	}
	v, err := cast.ToFloat64E(strings.TrimSpace(pv.raw))
	if err != nil {
		return 0, pv.coercionError("double", err)
	}
	return v, nil
}

func (pv *PropertyValue) AsBoolean() (bool, error) {
	if err := pv.requireSet("boolean"); err != nil {
		return false, err
	}
	v, err := cast.ToBoolE(strings.TrimSpace(pv.raw))
	if err != nil {
		return false, pv.coercionError("boolean", err)
	}
	return v, nil
}

// AsDuration parses Go duration syntax ("30s", "5m").
func (pv *PropertyValue) AsDuration() (time.Duration, error) {
	if err := pv.requireSet("duration"); err != nil {
		return 0, err
	}
	v, err := time.ParseDuration(strings.TrimSpace(pv.raw))
	if err != nil {
		return 0, pv.coercionError("duration", err)
	}
	return v, nil
}

// AsStringList splits the value on commas, dropping empty items.
func (pv *PropertyValue) AsStringList() []string {
	if !pv.IsSet() {
		return nil
	}
	var out []string
	for _, item := range strings.Split(pv.raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// AsControllerService resolves the value as a service identifier.
func (pv *PropertyValue) AsControllerService() (ControllerService, error) {
	if err := pv.requireSet("controller service"); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(pv.raw)
	svc, ok := pv.lookup.GetControllerService(id)
	if !ok {
		return nil, pv.coercionError("controller service",
			errors.Newf(errors.ErrorTypeResolution, "service %q is not available", id))
	}
	return svc, nil
}

// AsControllerService resolves pv and asserts the service implements T.
func AsControllerService[T any](pv *PropertyValue) (T, error) {
	var zero T
	svc, err := pv.AsControllerService()
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		want := reflect.TypeOf((*T)(nil)).Elem()
		return zero, pv.coercionError("controller service",
			fmt.Errorf("service %q is %T, not %s", pv.raw, svc, want))
	}
	return typed, nil
}

func (pv *PropertyValue) String() string {
	if pv == nil {
		return "<absent>"
	}
	if pv.descriptor != nil && pv.descriptor.sensitive {
		return "********"
	}
	return pv.raw
}

func (pv *PropertyValue) requireSet(target string) error {
	if pv.IsSet() {
		return nil
	}
	return errors.Newf(errors.ErrorTypeCoercion, "property %q is not set, cannot read as %s", pv.name(), target).
		WithDetail("property", pv.name())
}

func (pv *PropertyValue) coercionError(target string, cause error) error {
	return errors.Wrap(cause, errors.ErrorTypeCoercion,
		fmt.Sprintf("property %q value %q cannot be read as %s", pv.name(), pv.raw, target)).
		WithDetail("property", pv.name())
}

func (pv *PropertyValue) name() string {
	if pv == nil || pv.descriptor == nil {
		return ""
	}
	return pv.descriptor.name
}

// parseInteger reads s as a base-10 integer; leading zeros do not switch to
// octal.
func parseInteger(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
