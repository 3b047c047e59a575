package serializer

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// avroSchema describes any record: an array of named, typed fields whose
// values are a union over every representation. Maps are encoded as sorted
// entry lists so the encoding is deterministic.
const avroSchema = `{
  "type": "record",
  "name": "Record",
  "namespace": "recordflow",
  "fields": [{
    "name": "fields",
    "type": {"type": "array", "items": {
      "type": "record",
      "name": "Field",
      "fields": [
        {"name": "name", "type": "string"},
        {"name": "type", "type": "string"},
        {"name": "value", "type": {
          "type": "record",
          "name": "Value",
          "fields": [{"name": "v", "type": [
            "null", "boolean", "int", "long", "float", "double", "bytes", "string",
            {"type": "array", "items": "recordflow.Value"},
            {"type": "record", "name": "MapValue", "fields": [
              {"name": "entries", "type": {"type": "array", "items": {
                "type": "record",
                "name": "Entry",
                "fields": [
                  {"name": "key", "type": "string"},
                  {"name": "value", "type": "recordflow.Value"}
                ]
              }}}
            ]},
            "recordflow.Record"
          ]}]
        }}
      ]
    }}
  }]
}`

const (
	avroUnionMap    = "recordflow.MapValue"
	avroUnionRecord = "recordflow.Record"
)

var (
	avroCodec     *goavro.Codec
	avroCodecErr  error
	avroCodecOnce sync.Once
)

// AvroCodec returns the shared codec for the record schema.
func AvroCodec() (*goavro.Codec, error) {
	avroCodecOnce.Do(func() {
		avroCodec, avroCodecErr = goavro.NewCodec(avroSchema)
	})
	return avroCodec, avroCodecErr
}

// Avro encodes records with the generic record schema, each framed by a
// uvarint length prefix.
type Avro struct{}

// Name returns "avro".
func (Avro) Name() string { return FormatAvro }

// Serialize writes one length-prefixed record.
func (a Avro) Serialize(w io.Writer, r *record.Record) error {
	payload, err := a.Marshal(r)
	if err != nil {
		return err
	}
	n, err := writeFrame(w, payload)
	if err != nil {
		return err
	}
	countBytes(FormatAvro, directionWrite, n)
	return nil
}

// Marshal encodes r without framing.
func (Avro) Marshal(r *record.Record) ([]byte, error) {
	if err := checkWritable(r); err != nil {
		return nil, err
	}
	codec, err := AvroCodec()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "avro schema does not compile")
	}
	n, err := recordToNode(r)
	if err != nil {
		return nil, err
	}
	payload, err := codec.BinaryFromNative(nil, avroNativeRecord(n))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot encode record as avro")
	}
	return payload, nil
}

// Deserialize reads one length-prefixed record.
func (a Avro) Deserialize(rd io.Reader) (*record.Record, error) {
	payload, err := readFrame(rd)
	if err != nil {
		return nil, err
	}
	countBytes(FormatAvro, directionRead, len(payload))
	return a.Unmarshal(payload)
}

// Unmarshal decodes one record without framing.
func (Avro) Unmarshal(data []byte) (*record.Record, error) {
	codec, err := AvroCodec()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "avro schema does not compile")
	}
	native, rest, err := codec.NativeFromBinary(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed avro record")
	}
	if len(rest) != 0 {
		return nil, errors.Newf(errors.ErrorTypeData, "%d trailing bytes after avro record", len(rest))
	}
	n, err := nodeOfAvroRecord(native)
	if err != nil {
		return nil, err
	}
	return decoded(n)
}

func avroNativeRecord(n node) map[string]interface{} {
	fields := make([]interface{}, len(n.fields))
	for i, f := range n.fields {
		fields[i] = map[string]interface{}{
			"name":  f.name,
			"type":  string(f.typ),
			"value": avroNativeValue(f.value),
		}
	}
	return map[string]interface{}{"fields": fields}
}

func avroNativeValue(n node) map[string]interface{} {
	var v interface{}
	switch n.kind {
	case kindNull:
		v = nil
	case kindArray:
		items := make([]interface{}, len(n.items))
		for i, item := range n.items {
			items[i] = avroNativeValue(item)
		}
		v = goavro.Union("array", items)
	case kindMap:
		entries := make([]interface{}, len(n.keys))
		for i, k := range n.keys {
			entries[i] = map[string]interface{}{"key": k, "value": avroNativeValue(n.entries[k])}
		}
		v = goavro.Union(avroUnionMap, map[string]interface{}{"entries": entries})
	case kindRecord:
		v = goavro.Union(avroUnionRecord, avroNativeRecord(n))
	default:
		v = goavro.Union(string(n.kind), n.scalar)
	}
	return map[string]interface{}{"v": v}
}

func nodeOfAvroRecord(native interface{}) (node, error) {
	m, ok := native.(map[string]interface{})
	if !ok {
		return node{}, errors.Newf(errors.ErrorTypeData, "avro record decoded as %T", native)
	}
	list, _ := m["fields"].([]interface{})
	n := node{kind: kindRecord, fields: make([]fieldNode, 0, len(list))}
	for _, item := range list {
		fm, ok := item.(map[string]interface{})
		if !ok {
			return node{}, errors.Newf(errors.ErrorTypeData, "avro field decoded as %T", item)
		}
		name, _ := fm["name"].(string)
		typeName, _ := fm["type"].(string)
		typ, err := record.ParseFieldType(typeName)
		if err != nil {
			return node{}, err
		}
		v, err := nodeOfAvroValue(fm["value"])
		if err != nil {
			return node{}, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("field %q", name))
		}
		n.fields = append(n.fields, fieldNode{name: name, typ: typ, value: v})
	}
	return n, nil
}

func nodeOfAvroValue(native interface{}) (node, error) {
	wrapper, ok := native.(map[string]interface{})
	if !ok {
		return node{}, errors.Newf(errors.ErrorTypeData, "avro value decoded as %T", native)
	}
	union := wrapper["v"]
	if union == nil {
		return node{kind: kindNull}, nil
	}
	tagged, ok := union.(map[string]interface{})
	if !ok || len(tagged) != 1 {
		return node{}, errors.Newf(errors.ErrorTypeData, "avro union decoded as %T", union)
	}
	for branch, payload := range tagged {
		switch branch {
		case "array":
			items, _ := payload.([]interface{})
			n := node{kind: kindArray, items: make([]node, len(items))}
			for i, item := range items {
				child, err := nodeOfAvroValue(item)
				if err != nil {
					return node{}, err
				}
				n.items[i] = child
			}
			return n, nil
		case avroUnionMap:
			mv, _ := payload.(map[string]interface{})
			entries, _ := mv["entries"].([]interface{})
			n := node{kind: kindMap, entries: make(map[string]node, len(entries))}
			for _, e := range entries {
				em, _ := e.(map[string]interface{})
				k, _ := em["key"].(string)
				child, err := nodeOfAvroValue(em["value"])
				if err != nil {
					return node{}, err
				}
				n.keys = append(n.keys, k)
				n.entries[k] = child
			}
			sort.Strings(n.keys)
			return n, nil
		case avroUnionRecord:
			return nodeOfAvroRecord(payload)
		case "bytes":
			b, _ := payload.([]byte)
			if b == nil {
				b = []byte{}
			}
			return node{kind: kindBytes, scalar: b}, nil
		default:
			return node{kind: nodeKind(branch), scalar: payload}, nil
		}
	}
	return node{}, nil
}
