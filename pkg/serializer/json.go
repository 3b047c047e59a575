package serializer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// JSON encodes one record per line:
//
//	{"fields":[{"name":"n","type":"int","value":{"int":5}}, ...]}
//
// Every value is a single-key object naming its representation, so int and
// long, float and double, and nested records survive a round trip.
type JSON struct{}

type jsonRecord struct {
	Fields []jsonField `json:"fields"`
}

type jsonField struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Name returns "json".
func (JSON) Name() string { return FormatJSON }

// Serialize writes r followed by a newline.
func (j JSON) Serialize(w io.Writer, r *record.Record) error {
	payload, err := j.Marshal(r)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot write record")
	}
	countBytes(FormatJSON, directionWrite, len(payload))
	return nil
}

// Marshal encodes r without framing.
func (JSON) Marshal(r *record.Record) ([]byte, error) {
	if err := checkWritable(r); err != nil {
		return nil, err
	}
	n, err := recordToNode(r)
	if err != nil {
		return nil, err
	}
	jr, err := jsonRecordOf(n)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(jr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot encode record as json")
	}
	return payload, nil
}

// Deserialize reads one line and decodes it.
func (j JSON) Deserialize(rd io.Reader) (*record.Record, error) {
	line, err := readLine(rd)
	if err != nil {
		return nil, err
	}
	countBytes(FormatJSON, directionRead, len(line))
	return j.Unmarshal(line)
}

// Unmarshal decodes one record without framing.
func (JSON) Unmarshal(data []byte) (*record.Record, error) {
	var jr jsonRecord
	if err := json.Unmarshal(bytes.TrimSpace(data), &jr); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed json record")
	}
	n, err := nodeOfJSONRecord(jr)
	if err != nil {
		return nil, err
	}
	return decoded(n)
}

func jsonRecordOf(n node) (jsonRecord, error) {
	jr := jsonRecord{Fields: make([]jsonField, len(n.fields))}
	for i, f := range n.fields {
		v, err := jsonValueOf(f.value)
		if err != nil {
			return jsonRecord{}, err
		}
		value, err := json.Marshal(v)
		if err != nil {
			return jsonRecord{}, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("cannot encode field %q as json", f.name))
		}
		jr.Fields[i] = jsonField{Name: f.name, Type: string(f.typ), Value: value}
	}
	return jr, nil
}

func jsonValueOf(n node) (interface{}, error) {
	switch n.kind {
	case kindNull:
		return nil, nil
	case kindArray:
		items := make([]interface{}, len(n.items))
		for i, item := range n.items {
			v, err := jsonValueOf(item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return map[string]interface{}{string(kindArray): items}, nil
	case kindMap:
		entries := make(map[string]interface{}, len(n.entries))
		for k, item := range n.entries {
			v, err := jsonValueOf(item)
			if err != nil {
				return nil, err
			}
			entries[k] = v
		}
		return map[string]interface{}{string(kindMap): entries}, nil
	case kindRecord:
		jr, err := jsonRecordOf(n)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{string(kindRecord): jr}, nil
	default:
		return map[string]interface{}{string(n.kind): n.scalar}, nil
	}
}

func nodeOfJSONRecord(jr jsonRecord) (node, error) {
	n := node{kind: kindRecord, fields: make([]fieldNode, 0, len(jr.Fields))}
	for _, f := range jr.Fields {
		typ, err := record.ParseFieldType(f.Type)
		if err != nil {
			return node{}, err
		}
		v, err := nodeOfJSON(f.Value)
		if err != nil {
			return node{}, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("field %q", f.Name))
		}
		n.fields = append(n.fields, fieldNode{name: f.Name, typ: typ, value: v})
	}
	return n, nil
}

func nodeOfJSON(raw json.RawMessage) (node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return node{kind: kindNull}, nil
	}
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &tagged); err != nil {
		return node{}, errors.Wrap(err, errors.ErrorTypeData, "value is not a tagged object")
	}
	if len(tagged) != 1 {
		return node{}, errors.Newf(errors.ErrorTypeData, "tagged value must have exactly one key, got %d", len(tagged))
	}
	for k, payload := range tagged {
		return decodeJSONPayload(nodeKind(k), payload)
	}
	return node{}, nil
}

func decodeJSONPayload(kind nodeKind, payload json.RawMessage) (node, error) {
	var target interface{}
	switch kind {
	case kindBoolean:
		var v bool
		target = &v
	case kindInt:
		var v int32
		target = &v
	case kindLong:
		var v int64
		target = &v
	case kindFloat:
		var v float32
		target = &v
	case kindDouble:
		var v float64
		target = &v
	case kindString:
		var v string
		target = &v
	case kindBytes:
		var v []byte
		target = &v
	case kindArray:
		var items []json.RawMessage
		if err := json.Unmarshal(payload, &items); err != nil {
			return node{}, errors.Wrap(err, errors.ErrorTypeData, "malformed array")
		}
		n := node{kind: kindArray, items: make([]node, len(items))}
		for i, item := range items {
			child, err := nodeOfJSON(item)
			if err != nil {
				return node{}, err
			}
			n.items[i] = child
		}
		return n, nil
	case kindMap:
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(payload, &entries); err != nil {
			return node{}, errors.Wrap(err, errors.ErrorTypeData, "malformed map")
		}
		n := node{kind: kindMap, entries: make(map[string]node, len(entries))}
		for k, item := range entries {
			child, err := nodeOfJSON(item)
			if err != nil {
				return node{}, err
			}
			n.entries[k] = child
		}
		return n, nil
	case kindRecord:
		var jr jsonRecord
		if err := json.Unmarshal(payload, &jr); err != nil {
			return node{}, errors.Wrap(err, errors.ErrorTypeData, "malformed nested record")
		}
		return nodeOfJSONRecord(jr)
	default:
		return node{}, errors.Newf(errors.ErrorTypeData, "unknown value kind %q", kind)
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return node{}, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("malformed %s value", kind))
	}
	return node{kind: kind, scalar: deref(target)}, nil
}

func deref(p interface{}) interface{} {
	switch v := p.(type) {
	case *bool:
		return *v
	case *int32:
		return *v
	case *int64:
		return *v
	case *float32:
		return *v
	case *float64:
		return *v
	case *string:
		return *v
	case *[]byte:
		if *v == nil {
			return []byte{}
		}
		return *v
	}
	return nil
}
