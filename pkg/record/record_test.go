package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

func TestNewRecordIsEmpty(t *testing.T) {
	r := New("")

	assert.Equal(t, 0, r.Size())
	assert.True(t, r.IsEmpty())
	assert.True(t, r.IsValid())
	assert.Equal(t, TypeGeneric, r.GetType())
	assert.NotEmpty(t, r.GetID())
	assert.True(t, r.HasField(FieldRecordTime))
}

func TestSizeExcludesShortcutFields(t *testing.T) {
	r := New(TypeEvent)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n"} {
		r.SetStringField(name, name)
	}
	assert.Equal(t, 14, r.Size())

	removed, ok := r.RemoveField("c")
	require.True(t, ok)
	assert.Equal(t, "c", removed.Name())
	assert.Equal(t, 13, r.Size())

	_, ok = r.RemoveField("missing")
	assert.False(t, ok)
	assert.Equal(t, 13, r.Size())
}

func TestFieldValidity(t *testing.T) {
	tests := []struct {
		name  string
		typ   FieldType
		value interface{}
		valid bool
	}{
		{"string", FieldTypeString, "hello", true},
		{"string from int", FieldTypeString, 12, false},
		{"int32", FieldTypeInt, int32(12), true},
		{"int from int64", FieldTypeInt, int64(12), false},
		{"int from string", FieldTypeInt, "12", false},
		{"long", FieldTypeLong, int64(12), true},
		{"long from int32", FieldTypeLong, int32(12), false},
		{"float", FieldTypeFloat, float32(1.5), true},
		{"float from double", FieldTypeFloat, 1.5, false},
		{"double", FieldTypeDouble, 1.5, true},
		{"double from float", FieldTypeDouble, float32(1.5), false},
		{"boolean", FieldTypeBoolean, true, true},
		{"boolean from string", FieldTypeBoolean, "true", false},
		{"bytes", FieldTypeBytes, []byte("x"), true},
		{"bytes from string", FieldTypeBytes, "x", false},
		{"nil string", FieldTypeString, nil, false},
		{"array", FieldTypeArray, []string{"a"}, true},
		{"map", FieldTypeMap, map[string]int{"a": 1}, true},
		{"union", FieldTypeUnion, 3, true},
		{"null", FieldTypeNull, nil, true},
		{"record", FieldTypeRecord, New(TypeTag), true},
		{"record from string", FieldTypeRecord, "nope", false},
		{"nil record", FieldTypeRecord, (*Record)(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewField("f", tt.typ, tt.value)
			assert.Equal(t, tt.valid, f.IsValid())

			r := New("").PutField(f)
			assert.Equal(t, tt.valid, r.IsValid())
		})
	}
}

func TestNestedRecordValidity(t *testing.T) {
	parent := New(TypeEvent)
	child := New(TypeTag).SetIntField("count", 3)
	parent.SetRecordField("child", child)
	assert.True(t, parent.IsValid())

	child.SetField("count", FieldTypeInt, "three")
	assert.False(t, parent.IsValid())

	err := parent.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "child.count")
}

func TestCyclicRecordIsInvalid(t *testing.T) {
	r := New("")
	r.SetRecordField("self", r)
	assert.False(t, r.IsValid())
	assert.True(t, errors.IsType(r.Validate(), errors.ErrorTypeStructural))

	a, b := New(""), New("")
	a.SetRecordField("b", b)
	b.SetRecordField("a", a)
	assert.False(t, a.IsValid())

	// String and Clone terminate on cycles.
	assert.Contains(t, a.String(), "Record{...}")
	c := a.Clone()
	fb, _ := c.GetField("b")
	nested, err := fb.AsRecord()
	require.NoError(t, err)
	fa, _ := nested.GetField("a")
	back, err := fa.AsRecord()
	require.NoError(t, err)
	assert.Same(t, c, back)
}

func TestCycleThroughContainers(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Record
		field string
	}{
		{
			name: "array",
			build: func() *Record {
				r := New("")
				return r.SetArrayField("children", []interface{}{"x", r})
			},
			field: "children[1]",
		},
		{
			name: "map",
			build: func() *Record {
				r := New("")
				return r.SetMapField("m", map[string]interface{}{"self": r})
			},
			field: "m[self]",
		},
		{
			name: "record inside array inside map",
			build: func() *Record {
				r := New("")
				child := New("").SetArrayField("up", []interface{}{r})
				return r.SetMapField("m", map[string]interface{}{"child": child})
			},
			field: "up[0]",
		},
		{
			name: "typed slice",
			build: func() *Record {
				r := New("")
				return r.SetField("list", FieldTypeArray, []*Record{r})
			},
			field: "list[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.build()
			assert.False(t, r.IsValid())
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeStructural))
			assert.Contains(t, err.Error(), tt.field)
			assert.Contains(t, r.String(), "Record{...}")
		})
	}
}

func TestRecordsInContainersAreValid(t *testing.T) {
	inner := New(TypeTag).SetStringField("name", "x")
	r := New("").
		SetArrayField("items", []interface{}{inner, inner}).
		SetMapField("byName", map[string]interface{}{"x": inner, "n": int64(3)})
	assert.True(t, r.IsValid())
	assert.NoError(t, r.Validate())

	f, _ := r.GetField("byName")
	assert.Equal(t, "map[n:3 x:"+inner.String()+"]", f.AsString())
}

func TestSharedNestedRecordIsNotACycle(t *testing.T) {
	shared := New(TypeTag).SetStringField("name", "x")
	r := New("").SetRecordField("left", shared).SetRecordField("right", shared)
	assert.True(t, r.IsValid())
}

func TestFieldCoercion(t *testing.T) {
	f := NewField("age", FieldTypeString, "1399")
	i, err := f.AsInt()
	require.NoError(t, err)
	assert.Equal(t, int32(1399), i)

	l, err := f.AsLong()
	require.NoError(t, err)
	assert.Equal(t, int64(1399), l)

	d, err := NewField("d", FieldTypeInt, int32(7)).AsDouble()
	require.NoError(t, err)
	assert.Equal(t, 7.0, d)

	b, err := NewField("b", FieldTypeString, "true").AsBoolean()
	require.NoError(t, err)
	assert.True(t, b)

	_, err = NewField("big", FieldTypeLong, int64(1<<40)).AsInt()
	assert.True(t, errors.IsType(err, errors.ErrorTypeCoercion))

	_, err = NewField("bad", FieldTypeString, "abc").AsLong()
	assert.True(t, errors.IsType(err, errors.ErrorTypeCoercion))

	assert.Equal(t, "12", NewField("n", FieldTypeInt, int32(12)).AsString())
	assert.Equal(t, "", NewField("n", FieldTypeNull, nil).AsString())

	arr, err := NewField("tags", FieldTypeArray, []string{"a", "b"}).AsArray()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, arr)

	m, err := NewField("m", FieldTypeMap, map[string]int{"a": 1}).AsMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1}, m)
}

func TestFieldIntegerStringsAreDecimal(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"030000", 30000},
		{"08", 8},
		{" 42 ", 42},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			f := NewField("n", FieldTypeString, tt.raw)
			l, err := f.AsLong()
			require.NoError(t, err)
			assert.Equal(t, tt.want, l)

			i, err := f.AsInt()
			require.NoError(t, err)
			assert.Equal(t, int32(tt.want), i)
		})
	}
}

func TestPositionRoundTrip(t *testing.T) {
	ts := time.UnixMilli(10)
	p := Position{
		Altitude: 1.0, Heading: 2.0, Latitude: 3.0, Longitude: 4.0, Precision: 5.0,
		Satellites: 6, Status: 7, Speed: 8.0, Timestamp: ts,
	}
	r := New(TypeMetric).SetPosition(p)
	assert.True(t, r.IsValid())
	assert.True(t, r.HasPosition())
	assert.Equal(t, 1, r.Size())

	got, ok := r.GetPosition()
	require.True(t, ok)
	assert.Equal(t, p.Latitude, got.Latitude)
	assert.Equal(t, p.Satellites, got.Satellites)
	assert.Equal(t, int32(7), got.Status)
	assert.Equal(t, ts.UnixMilli(), got.Timestamp.UnixMilli())
}

func TestTimeAndType(t *testing.T) {
	r := New(TypeLog)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.SetTime(at)
	assert.Equal(t, at.UnixMilli(), r.GetTime().UnixMilli())

	r.RemoveField(FieldRecordTime)
	assert.False(t, r.GetTime().IsZero())

	r.SetType(TypeAlert)
	assert.Equal(t, TypeAlert, r.GetType())
}

func TestRecordErrors(t *testing.T) {
	r := New("")
	assert.False(t, r.HasErrors())

	r.AddError(ErrorKindProcessing, "first").AddError(ErrorKindPublish, "second")
	require.True(t, r.HasErrors())
	assert.Equal(t, []Error{
		{Kind: ErrorKindProcessing, Message: "first"},
		{Kind: ErrorKindPublish, Message: "second"},
	}, r.Errors())
	assert.True(t, r.IsValid())
}

func TestCloneAndEqual(t *testing.T) {
	r := New(TypeEvent).
		SetStringField("name", "x").
		SetBytesField("raw", []byte{1, 2}).
		SetField("tags", FieldTypeArray, []interface{}{"a", "b"}).
		SetRecordField("child", New(TypeTag).SetIntField("n", 1))

	c := r.Clone()
	assert.True(t, r.Equal(c))
	assert.Equal(t, r.GetID(), c.GetID())

	child, _ := c.GetField("child")
	nested, err := child.AsRecord()
	require.NoError(t, err)
	nested.SetIntField("n", 2)
	assert.False(t, r.Equal(c))

	raw, _ := r.GetField("raw")
	raw.RawValue().([]byte)[0] = 9
	cr, _ := c.GetField("raw")
	assert.Equal(t, byte(1), cr.RawValue().([]byte)[0])
}

func TestFieldOrdering(t *testing.T) {
	r := newBare().SetStringField("b", "1").SetStringField("a", "2").SetStringField("c", "3")
	r.SetStringField("b", "4")

	assert.Equal(t, []string{"b", "a", "c"}, r.FieldNames())
	sorted := r.AllFieldsSorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, "a", sorted[0].Name())
	assert.Equal(t, "4", sorted[1].AsString())
}

func TestParseFieldType(t *testing.T) {
	ft, err := ParseFieldType("INT")
	require.NoError(t, err)
	assert.Equal(t, FieldTypeInt, ft)

	_, err = ParseFieldType("decimal")
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.True(t, FieldTypeMap.IsContainer())
	assert.False(t, FieldTypeRecord.IsContainer())
}

func TestFirewallRecordScenario(t *testing.T) {
	r := New("cisco").SetID("firewall_record1")
	assert.True(t, r.IsEmpty())
	assert.Equal(t, "firewall_record1", r.GetID())
	idField, _ := r.GetField(FieldRecordID)
	assert.Equal(t, r.GetID(), idField.AsString())

	r.SetStringField("timestamp", "2016-09-12T10:10:10").
		SetStringField("method", "GET").
		SetStringField("ip_source", "123.34.45.123").
		SetStringField("ip_target", "255.255.255.255").
		SetStringField("url_scheme", "http").
		SetStringField("url_host", "origin-www.20minutes.fr").
		SetStringField("url_port", "80").
		SetStringField("url_path", "/r15lgc-100KB.js").
		SetLongField("request_size", 1399).
		SetLongField("response_size", 452).
		SetBooleanField("is_outside_office_hours", false).
		SetBooleanField("is_host_blacklisted", false).
		SetField("tags", FieldTypeArray, []string{"spam", "filter", "mail"}).
		SetIntField("status", 200)
	assert.Equal(t, 14, r.Size())
	assert.True(t, r.IsValid())

	size, _ := r.GetField("response_size")
	n, err := size.AsInt()
	require.NoError(t, err)
	assert.Equal(t, int32(452), n)

	_, removed := r.RemoveField("is_host_blacklisted")
	assert.True(t, removed)
	_, removed = r.RemoveField("is_host_blacklisted")
	assert.False(t, removed)
	assert.Equal(t, 13, r.Size())
	assert.True(t, r.IsValid())
}

func TestRepresentationNotMagnitude(t *testing.T) {
	r := New("")
	r.SetField("request_size", FieldTypeInt, int32(45))
	assert.True(t, r.IsValid())
	r.SetField("request_size", FieldTypeInt, int64(45))
	assert.False(t, r.IsValid())
	r.SetField("request_size", FieldTypeLong, int64(45))
	assert.True(t, r.IsValid())
	r.SetField("request_size", FieldTypeDouble, int64(45))
	assert.False(t, r.IsValid())

	r.SetField("request_size", FieldTypeInt, int32(45))
	f, _ := r.GetField("request_size")
	d, err := f.AsDouble()
	require.NoError(t, err)
	assert.Equal(t, 45.0, d)
}
