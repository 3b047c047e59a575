package record

import (
	"strings"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

// FieldType is the closed set of types a Field may declare.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInt     FieldType = "int"
	FieldTypeLong    FieldType = "long"
	FieldTypeFloat   FieldType = "float"
	FieldTypeDouble  FieldType = "double"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeBytes   FieldType = "bytes"
	FieldTypeArray   FieldType = "array"
	FieldTypeMap     FieldType = "map"
	FieldTypeRecord  FieldType = "record"
	FieldTypeUnion   FieldType = "union"
	FieldTypeNull    FieldType = "null"
)

var fieldTypes = []FieldType{
	FieldTypeString, FieldTypeInt, FieldTypeLong, FieldTypeFloat, FieldTypeDouble,
	FieldTypeBoolean, FieldTypeBytes, FieldTypeArray, FieldTypeMap, FieldTypeRecord,
	FieldTypeUnion, FieldTypeNull,
}

// FieldTypes returns every declared FieldType.
func FieldTypes() []FieldType {
	out := make([]FieldType, len(fieldTypes))
	copy(out, fieldTypes)
	return out
}

// ParseFieldType parses a type name case-insensitively ("INT", "int").
func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range fieldTypes {
		if t == known {
			return t, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeData, "unknown field type %q", s)
}

// String returns the type name.
func (t FieldType) String() string {
	return string(t)
}

// IsContainer reports whether the type is structural and exempt from
// representation checks.
func (t FieldType) IsContainer() bool {
	switch t {
	case FieldTypeArray, FieldTypeMap, FieldTypeUnion, FieldTypeNull:
		return true
	default:
		return false
	}
}
