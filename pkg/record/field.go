package record

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

// Field is an immutable named, typed value. Replacing a field on a Record
// replaces the whole Field.
type Field struct {
	name string
	typ  FieldType
	raw  interface{}
}

// NewField creates a field. The value is not checked; use IsValid.
func NewField(name string, typ FieldType, raw interface{}) Field {
	return Field{name: name, typ: typ, raw: raw}
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// Type returns the declared type.
func (f Field) Type() FieldType { return f.typ }

// RawValue returns the stored value unchanged.
func (f Field) RawValue() interface{} { return f.raw }

// IsSet reports whether the field holds a non-nil value.
func (f Field) IsSet() bool { return f.raw != nil }

// IsValid reports whether the raw value's representation matches the
// declared type. Nested records are checked recursively.
func (f Field) IsValid() bool {
	return f.check(newVisitPath()) == nil
}

func (f Field) check(path *visitPath) error {
	ok := true
	switch f.typ {
	case FieldTypeString:
		_, ok = f.raw.(string)
	case FieldTypeInt:
		_, ok = f.raw.(int32)
	case FieldTypeLong:
		_, ok = f.raw.(int64)
	case FieldTypeFloat:
		_, ok = f.raw.(float32)
	case FieldTypeDouble:
		_, ok = f.raw.(float64)
	case FieldTypeBoolean:
		_, ok = f.raw.(bool)
	case FieldTypeBytes:
		_, ok = f.raw.([]byte)
	case FieldTypeRecord:
		nested, isRecord := f.raw.(*Record)
		if !isRecord || nested == nil {
			ok = false
			break
		}
		if err := nested.check(path, f.name); err != nil {
			return err
		}
	case FieldTypeArray, FieldTypeMap, FieldTypeUnion:
		if err := checkContained(path, f.name, f.raw); err != nil {
			return err
		}
	case FieldTypeNull:
	default:
		ok = false
	}
	if !ok {
		return errors.Newf(errors.ErrorTypeValidation,
			"field %q declared %s holds %s", path.join(f.name), f.typ, describe(f.raw)).
			WithDetail("field", path.join(f.name)).
			WithDetail("type", string(f.typ))
	}
	return nil
}

// AsString renders the value as text. Absent values return "".
func (f Field) AsString() string {
	return renderValue(f.raw, map[*Record]bool{})
}

// AsInt coerces the value to a 32-bit integer.
func (f Field) AsInt() (int32, error) {
	v, err := toInt64(f.raw)
	if err != nil {
		return 0, f.coercionError(FieldTypeInt, err)
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, f.coercionError(FieldTypeInt, fmt.Errorf("%d overflows int32", v))
	}
	return int32(v), nil
}

// AsLong coerces the value to a 64-bit integer.
func (f Field) AsLong() (int64, error) {
	v, err := toInt64(f.raw)
	if err != nil {
		return 0, f.coercionError(FieldTypeLong, err)
	}
	return v, nil
}

// toInt64 parses strings as base-10 so "08" is 8 and "030" is 30.
func toInt64(v interface{}) (int64, error) {
	if s, ok := v.(string); ok {
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}
	return cast.ToInt64E(v)
}

// AsFloat coerces the value to a 32-bit float.
func (f Field) AsFloat() (float32, error) {
	v, err := cast.ToFloat32E(f.raw)
	if err != nil {
		return 0, f.coercionError(FieldTypeFloat, err)
	}
	return v, nil
}

// AsDouble coerces the value to a 64-bit float.
func (f Field) AsDouble() (float64, error) {
	v, err := cast.ToFloat64E(f.raw)
	if err != nil {
		return 0, f.coercionError(FieldTypeDouble, err)
	}
	return v, nil
}

// AsBoolean coerces the value to a boolean.
func (f Field) AsBoolean() (bool, error) {
	v, err := cast.ToBoolE(f.raw)
	if err != nil {
		return false, f.coercionError(FieldTypeBoolean, err)
	}
	return v, nil
}

// AsBytes returns the value as bytes. Strings are converted.
func (f Field) AsBytes() ([]byte, error) {
	switch v := f.raw.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, f.coercionError(FieldTypeBytes, fmt.Errorf("unsupported %s", describe(f.raw)))
}

// AsRecord returns the nested record.
func (f Field) AsRecord() (*Record, error) {
	if r, ok := f.raw.(*Record); ok && r != nil {
		return r, nil
	}
	return nil, f.coercionError(FieldTypeRecord, fmt.Errorf("unsupported %s", describe(f.raw)))
}

// AsArray returns any slice value as []interface{}.
func (f Field) AsArray() ([]interface{}, error) {
	if v, ok := f.raw.([]interface{}); ok {
		return v, nil
	}
	rv := reflect.ValueOf(f.raw)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, f.coercionError(FieldTypeArray, fmt.Errorf("unsupported %s", describe(f.raw)))
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// AsMap returns any string-keyed map value as map[string]interface{}.
func (f Field) AsMap() (map[string]interface{}, error) {
	if v, ok := f.raw.(map[string]interface{}); ok {
		return v, nil
	}
	rv := reflect.ValueOf(f.raw)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, f.coercionError(FieldTypeMap, fmt.Errorf("unsupported %s", describe(f.raw)))
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}

// Equal compares name, type and value. Nested records compare by content.
func (f Field) Equal(other Field) bool {
	return f.name == other.name && f.typ == other.typ && valuesEqual(f.raw, other.raw, map[[2]*Record]bool{})
}

func (f Field) String() string {
	return fmt.Sprintf("%s(%s)=%s", f.name, f.typ, f.AsString())
}

func (f Field) coercionError(target FieldType, cause error) error {
	return errors.Wrap(cause, errors.ErrorTypeCoercion,
		fmt.Sprintf("field %q of type %s cannot be read as %s", f.name, f.typ, target)).
		WithDetail("field", f.name)
}

func describe(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
