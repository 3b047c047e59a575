// Package record defines the typed record model that flows through
// recordflow streams.
//
// A Record is an ordered collection of named, typed Fields. Three shortcut
// fields (record_id, record_type, record_time) are maintained by the record
// itself and do not count towards Size. Values are stored exactly as given;
// IsValid reports whether every field's representation matches its declared
// type, and typed accessors on Field coerce on read.
//
// Records are not safe for concurrent mutation.
package record

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is a mutable, ordered set of fields.
type Record struct {
	fields    *orderedmap.OrderedMap[string, Field]
	createdAt time.Time
}

// New creates a record of the given type with a random id and the current
// time. An empty type defaults to "generic".
func New(recordType string) *Record {
	if recordType == "" {
		recordType = TypeGeneric
	}
	r := newBare()
	r.SetID(uuid.NewString())
	r.SetType(recordType)
	r.SetTime(r.createdAt)
	return r
}

// NewEmpty creates a record without any field, including shortcut fields.
// Deserializers use it to rebuild records exactly.
func NewEmpty() *Record {
	return newBare()
}

// newBare creates a record without shortcut fields.
func newBare() *Record {
	return &Record{
		fields:    orderedmap.New[string, Field](),
		createdAt: time.Now(),
	}
}

// SetField stores a field, replacing any existing field of that name. The
// value is stored as given; ownership of nested records passes to r.
func (r *Record) SetField(name string, typ FieldType, value interface{}) *Record {
	r.fields.Set(name, NewField(name, typ, value))
	return r
}

// PutField stores an existing Field.
func (r *Record) PutField(f Field) *Record {
	r.fields.Set(f.name, f)
	return r
}

func (r *Record) SetStringField(name, value string) *Record {
	return r.SetField(name, FieldTypeString, value)
}

func (r *Record) SetIntField(name string, value int32) *Record {
	return r.SetField(name, FieldTypeInt, value)
}

func (r *Record) SetLongField(name string, value int64) *Record {
	return r.SetField(name, FieldTypeLong, value)
}

func (r *Record) SetFloatField(name string, value float32) *Record {
	return r.SetField(name, FieldTypeFloat, value)
}

func (r *Record) SetDoubleField(name string, value float64) *Record {
	return r.SetField(name, FieldTypeDouble, value)
}

func (r *Record) SetBooleanField(name string, value bool) *Record {
	return r.SetField(name, FieldTypeBoolean, value)
}

func (r *Record) SetBytesField(name string, value []byte) *Record {
	return r.SetField(name, FieldTypeBytes, value)
}

func (r *Record) SetRecordField(name string, value *Record) *Record {
	return r.SetField(name, FieldTypeRecord, value)
}

func (r *Record) SetArrayField(name string, value []interface{}) *Record {
	return r.SetField(name, FieldTypeArray, value)
}

func (r *Record) SetMapField(name string, value map[string]interface{}) *Record {
	return r.SetField(name, FieldTypeMap, value)
}

// GetField returns the named field.
func (r *Record) GetField(name string) (Field, bool) {
	return r.fields.Get(name)
}

// HasField reports whether the named field is present.
func (r *Record) HasField(name string) bool {
	_, ok := r.fields.Get(name)
	return ok
}

// RemoveField deletes the named field and returns it.
func (r *Record) RemoveField(name string) (Field, bool) {
	return r.fields.Delete(name)
}

// Size returns the number of fields, excluding shortcut fields.
func (r *Record) Size() int {
	n := r.fields.Len()
	for _, s := range shortcutFields {
		if _, ok := r.fields.Get(s); ok {
			n--
		}
	}
	return n
}

// IsEmpty reports whether the record has no non-shortcut fields.
func (r *Record) IsEmpty() bool {
	return r.Size() == 0
}

// AllFields returns every field in insertion order.
func (r *Record) AllFields() []Field {
	out := make([]Field, 0, r.fields.Len())
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// AllFieldsSorted returns every field ordered by name.
func (r *Record) AllFieldsSorted() []Field {
	out := r.AllFields()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// FieldNames returns field names in insertion order.
func (r *Record) FieldNames() []string {
	out := make([]string, 0, r.fields.Len())
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// GetID returns record_id, or "" when unset.
func (r *Record) GetID() string {
	f, ok := r.fields.Get(FieldRecordID)
	if !ok {
		return ""
	}
	return f.AsString()
}

// SetID sets record_id.
func (r *Record) SetID(id string) *Record {
	return r.SetStringField(FieldRecordID, id)
}

// GetType returns record_type, or "generic" when unset.
func (r *Record) GetType() string {
	f, ok := r.fields.Get(FieldRecordType)
	if !ok || !f.IsSet() {
		return TypeGeneric
	}
	return f.AsString()
}

// SetType sets record_type.
func (r *Record) SetType(recordType string) *Record {
	return r.SetStringField(FieldRecordType, recordType)
}

// GetTime returns record_time. It falls back to the creation instant when
// the field is absent or unreadable.
func (r *Record) GetTime() time.Time {
	f, ok := r.fields.Get(FieldRecordTime)
	if !ok {
		return r.createdAt
	}
	ms, err := f.AsLong()
	if err != nil {
		return r.createdAt
	}
	return time.UnixMilli(ms)
}

// SetTime sets record_time as epoch milliseconds.
func (r *Record) SetTime(t time.Time) *Record {
	return r.SetLongField(FieldRecordTime, t.UnixMilli())
}

// String renders the record for debugging.
func (r *Record) String() string {
	return r.render(map[*Record]bool{})
}

func (r *Record) render(seen map[*Record]bool) string {
	if seen[r] {
		return "Record{...}"
	}
	seen[r] = true
	defer delete(seen, r)

	var b strings.Builder
	b.WriteString("Record{")
	for i, f := range r.AllFieldsSorted() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s(%s)=%s", f.name, f.typ, renderValue(f.raw, seen))
	}
	b.WriteString("}")
	return b.String()
}

// renderValue formats v, descending into containers itself so records held
// in arrays and maps share the cycle guard.
func renderValue(v interface{}, seen map[*Record]bool) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case *Record:
		if t == nil {
			return ""
		}
		return t.render(seen)
	}

	rv := reflect.ValueOf(v)
	switch {
	case isList(rv):
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = renderValue(rv.Index(i).Interface(), seen)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case isStringMap(rv):
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			item := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
			parts[i] = k + ":" + renderValue(item.Interface(), seen)
		}
		return "map[" + strings.Join(parts, " ") + "]"
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
