package record

import (
	"bytes"
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Clone returns a deep copy. Nested records, slices and maps are copied;
// a cyclic graph is reproduced in the copy.
func (r *Record) Clone() *Record {
	return r.clone(map[*Record]*Record{})
}

func (r *Record) clone(done map[*Record]*Record) *Record {
	if c, ok := done[r]; ok {
		return c
	}
	c := &Record{fields: orderedmap.New[string, Field](), createdAt: r.createdAt}
	done[r] = c
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		f := p.Value
		c.fields.Set(p.Key, Field{name: f.name, typ: f.typ, raw: cloneValue(f.raw, done)})
	}
	return c
}

func cloneValue(v interface{}, done map[*Record]*Record) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case *Record:
		if t == nil {
			return t
		}
		return t.clone(done)
	case []byte:
		return append([]byte(nil), t...)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item, done)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = cloneValue(item, done)
		}
		return out
	}
	return v
}

// Equal reports whether both records hold the same fields with equal
// types and values. Field order is ignored.
func (r *Record) Equal(other *Record) bool {
	return recordsEqual(r, other, map[[2]*Record]bool{})
}

func recordsEqual(a, b *Record, comparing map[[2]*Record]bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	key := [2]*Record{a, b}
	if comparing[key] {
		return true
	}
	comparing[key] = true
	defer delete(comparing, key)

	if a.fields.Len() != b.fields.Len() {
		return false
	}
	for p := a.fields.Oldest(); p != nil; p = p.Next() {
		other, ok := b.fields.Get(p.Key)
		if !ok || other.typ != p.Value.typ {
			return false
		}
		if !valuesEqual(p.Value.raw, other.raw, comparing) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}, comparing map[[2]*Record]bool) bool {
	if ra, ok := a.(*Record); ok {
		rb, ok := b.(*Record)
		return ok && recordsEqual(ra, rb, comparing)
	}
	if ba, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ba, bb)
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return va.IsValid() == vb.IsValid()
	}
	switch {
	case isList(va) && isList(vb):
		if va.Len() != vb.Len() {
			return false
		}
		for i := 0; i < va.Len(); i++ {
			if !valuesEqual(va.Index(i).Interface(), vb.Index(i).Interface(), comparing) {
				return false
			}
		}
		return true
	case isStringMap(va) && isStringMap(vb):
		if va.Len() != vb.Len() {
			return false
		}
		iter := va.MapRange()
		for iter.Next() {
			other := vb.MapIndex(reflect.ValueOf(iter.Key().String()).Convert(vb.Type().Key()))
			if !other.IsValid() || !valuesEqual(iter.Value().Interface(), other.Interface(), comparing) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isList(v reflect.Value) bool {
	return (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Type().Elem().Kind() != reflect.Uint8
}

func isStringMap(v reflect.Value) bool {
	return v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String
}
