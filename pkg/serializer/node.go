package serializer

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// nodeKind names the representation of an encoded value. Kinds match the
// Avro primitive names so both codecs share them.
type nodeKind string

const (
	kindNull    nodeKind = "null"
	kindBoolean nodeKind = "boolean"
	kindInt     nodeKind = "int"
	kindLong    nodeKind = "long"
	kindFloat   nodeKind = "float"
	kindDouble  nodeKind = "double"
	kindBytes   nodeKind = "bytes"
	kindString  nodeKind = "string"
	kindArray   nodeKind = "array"
	kindMap     nodeKind = "map"
	kindRecord  nodeKind = "record"
)

// node is a value tagged with its exact representation.
type node struct {
	kind    nodeKind
	scalar  interface{}
	items   []node
	keys    []string
	entries map[string]node
	fields  []fieldNode
}

type fieldNode struct {
	name  string
	typ   record.FieldType
	value node
}

// recordToNode walks r in AllFieldsSorted order. The record must be valid
// and acyclic.
func recordToNode(r *record.Record) (node, error) {
	fields := r.AllFieldsSorted()
	n := node{kind: kindRecord, fields: make([]fieldNode, 0, len(fields))}
	for _, f := range fields {
		v, err := valueToNode(f.RawValue())
		if err != nil {
			return node{}, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("cannot encode field %q", f.Name()))
		}
		n.fields = append(n.fields, fieldNode{name: f.Name(), typ: f.Type(), value: v})
	}
	return n, nil
}

func valueToNode(v interface{}) (node, error) {
	switch t := v.(type) {
	case nil:
		return node{kind: kindNull}, nil
	case bool:
		return node{kind: kindBoolean, scalar: t}, nil
	case int32:
		return node{kind: kindInt, scalar: t}, nil
	case int8:
		return node{kind: kindInt, scalar: int32(t)}, nil
	case int16:
		return node{kind: kindInt, scalar: int32(t)}, nil
	case int64:
		return node{kind: kindLong, scalar: t}, nil
	case int:
		return node{kind: kindLong, scalar: int64(t)}, nil
	case uint8:
		return node{kind: kindInt, scalar: int32(t)}, nil
	case uint16:
		return node{kind: kindInt, scalar: int32(t)}, nil
	case uint32:
		return node{kind: kindLong, scalar: int64(t)}, nil
	case uint64:
		if t > math.MaxInt64 {
			return node{}, errors.Newf(errors.ErrorTypeData, "value %d overflows long", t)
		}
		return node{kind: kindLong, scalar: int64(t)}, nil
	case float32:
		return node{kind: kindFloat, scalar: t}, nil
	case float64:
		return node{kind: kindDouble, scalar: t}, nil
	case string:
		return node{kind: kindString, scalar: t}, nil
	case []byte:
		return node{kind: kindBytes, scalar: t}, nil
	case time.Time:
		return node{kind: kindLong, scalar: t.UnixMilli()}, nil
	case *record.Record:
		if t == nil {
			return node{kind: kindNull}, nil
		}
		return recordToNode(t)
	}

	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
		n := node{kind: kindArray, items: make([]node, rv.Len())}
		for i := 0; i < rv.Len(); i++ {
			item, err := valueToNode(rv.Index(i).Interface())
			if err != nil {
				return node{}, err
			}
			n.items[i] = item
		}
		return n, nil
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		n := node{kind: kindMap, entries: make(map[string]node, rv.Len())}
		iter := rv.MapRange()
		for iter.Next() {
			item, err := valueToNode(iter.Value().Interface())
			if err != nil {
				return node{}, err
			}
			k := iter.Key().String()
			n.keys = append(n.keys, k)
			n.entries[k] = item
		}
		sort.Strings(n.keys)
		return n, nil
	}
	return node{}, errors.Newf(errors.ErrorTypeData, "unsupported value type %T", v)
}

// toValue returns the Go value of n. Containers become []interface{} and
// map[string]interface{}.
func (n node) toValue() (interface{}, error) {
	switch n.kind {
	case kindNull:
		return nil, nil
	case kindArray:
		out := make([]interface{}, len(n.items))
		for i, item := range n.items {
			v, err := item.toValue()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case kindMap:
		out := make(map[string]interface{}, len(n.entries))
		for k, item := range n.entries {
			v, err := item.toValue()
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case kindRecord:
		return n.toRecord()
	default:
		return n.scalar, nil
	}
}

func (n node) toRecord() (*record.Record, error) {
	if n.kind != kindRecord {
		return nil, errors.Newf(errors.ErrorTypeData, "expected record, got %s", n.kind)
	}
	r := record.NewEmpty()
	for _, f := range n.fields {
		v, err := f.value.toValue()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("cannot decode field %q", f.name))
		}
		r.SetField(f.name, f.typ, v)
	}
	return r, nil
}

// checkWritable refuses records that cannot be encoded faithfully.
func checkWritable(r *record.Record) error {
	if r == nil {
		return errors.New(errors.ErrorTypeValidation, "cannot serialize nil record")
	}
	if err := r.Validate(); err != nil {
		if errors.IsType(err, errors.ErrorTypeStructural) {
			return errors.Wrap(err, errors.ErrorTypeStructural, "cannot serialize cyclic record")
		}
		return errors.Wrap(err, errors.ErrorTypeValidation, "cannot serialize invalid record")
	}
	return nil
}
