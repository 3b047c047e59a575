package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/record"
	"github.com/ajitpratap0/recordflow/pkg/service/cache"
)

func stringField(t *testing.T, r *record.Record, name string) string {
	t.Helper()
	f, ok := r.GetField(name)
	require.True(t, ok, "missing field %s", name)
	return f.AsString()
}

func TestAddFields(t *testing.T) {
	tests := []struct {
		name   string
		policy string
		want   string
	}{
		{"keeps existing field by default", "", "old"},
		{"keeps existing field", KeepOldField, "old"},
		{"overwrites existing field", OverwriteExisting, "cisco-new"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := NewRunner(&AddFields{})
			if tt.policy != "" {
				require.NoError(t, runner.SetProperty("conflict.resolution.policy", tt.policy))
			}
			require.NoError(t, runner.SetProperty("owner", "${team:-ops}"))
			require.NoError(t, runner.SetProperty("label", "${record_type}-new"))

			runner.Enqueue(
				record.New("cisco").SetStringField("label", "old").SetStringField("team", "netsec"),
				record.New("cisco").SetStringField("label", "old"),
			)
			require.NoError(t, runner.Run())

			out := runner.Output()
			require.Len(t, out, 2)
			assert.Equal(t, "netsec", stringField(t, out[0], "owner"))
			assert.Equal(t, "ops", stringField(t, out[1], "owner"))
			assert.Equal(t, tt.want, stringField(t, out[0], "label"))
			assert.Empty(t, runner.ErrorRecords())
		})
	}
}

func TestAddFieldsRejectsUnknownPolicy(t *testing.T) {
	runner := NewRunner(&AddFields{})
	err := runner.SetProperty("conflict.resolution.policy", "merge")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestAddFieldsDynamicProperties(t *testing.T) {
	runner := NewRunner(&AddFields{})
	require.NoError(t, runner.SetProperty("a", "1"))
	require.NoError(t, runner.SetProperty("b", "2"))

	dyn := runner.Context().DynamicProperties()
	require.Len(t, dyn, 2)
	assert.Equal(t, component.DynamicKey("a"), dyn[0].Key)
	assert.True(t, dyn[0].Descriptor.IsDynamic())
}

func newCacheRunner(t *testing.T) (*Runner, *cache.LRU) {
	t.Helper()
	lookup := cache.New()
	runner := NewRunner(&EnrichRecords{})
	require.NoError(t, runner.AddControllerService("lookup", lookup, map[string]string{"cache.size": "10"}))
	require.NoError(t, runner.SetProperty("cache.service", "lookup"))
	return runner, lookup
}

func TestEnrichRecords(t *testing.T) {
	runner, lookup := newCacheRunner(t)
	require.NoError(t, runner.SetProperty("record.key", "${src_ip}"))

	lookup.Set("10.0.0.1", record.New(record.TypeTag).
		SetStringField("hostname", "fw01").
		SetIntField("rack", 4))

	runner.Enqueue(
		record.New("cisco").SetStringField("src_ip", "10.0.0.1"),
		record.New("cisco").SetStringField("src_ip", "10.0.0.2"),
		record.New("cisco"),
	)
	require.NoError(t, runner.Run())

	out := runner.Output()
	require.Len(t, out, 3)
	assert.Equal(t, "fw01", stringField(t, out[0], "hostname"))
	rack, _ := out[0].GetField("rack")
	assert.Equal(t, record.FieldTypeInt, rack.Type())
	assert.Equal(t, "cisco", out[0].GetType(), "reserved fields are not copied")

	assert.False(t, out[1].HasField("hostname"))
	assert.False(t, out[2].HasField("hostname"))
	assert.Empty(t, runner.ErrorRecords())
}

func TestEnrichRecordsSelectedFields(t *testing.T) {
	runner, lookup := newCacheRunner(t)
	require.NoError(t, runner.SetProperty("enrich.fields", "hostname:device, missing"))

	in := record.New("cisco")
	lookup.Set(in.GetID(), record.New("").
		SetStringField("hostname", "fw01").
		SetStringField("site", "paris"))

	runner.Enqueue(in)
	require.NoError(t, runner.Run())

	out := runner.Output()[0]
	assert.Equal(t, "fw01", stringField(t, out, "device"))
	assert.False(t, out.HasField("hostname"))
	assert.False(t, out.HasField("site"))
	assert.False(t, out.HasField("missing"))
}

func TestEnrichRecordsWithoutService(t *testing.T) {
	runner := NewRunner(&EnrichRecords{})
	require.Error(t, runner.Run(), "cache.service is required")

	require.NoError(t, runner.SetProperty("cache.service", "nowhere"))
	err := runner.Run()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeResolution))
}

type fakeSink struct {
	published []*record.Record
	failIDs   map[string]bool
}

func (s *fakeSink) PropertyDescriptors() []*component.PropertyDescriptor { return nil }
func (s *fakeSink) Initialize(component.InitializationContext) error    { return nil }

func (s *fakeSink) Publish(_ context.Context, records []*record.Record) []error {
	out := make([]error, len(records))
	for i, r := range records {
		if s.failIDs[r.GetID()] {
			out[i] = errors.New(errors.ErrorTypeConnection, "broker unavailable")
			continue
		}
		s.published = append(s.published, r)
	}
	return out
}

func TestPublishRecords(t *testing.T) {
	sink := &fakeSink{failIDs: map[string]bool{"r2": true}}
	runner := NewRunner(&PublishRecords{})
	require.NoError(t, runner.AddControllerService("events", sink, nil))
	require.NoError(t, runner.SetProperty("record.sink.service", "events"))

	invalid := record.New("").SetID("r3").SetField("n", record.FieldTypeInt, "x")
	runner.Enqueue(record.New("").SetID("r1"), record.New("").SetID("r2"), invalid)
	require.NoError(t, runner.Run())

	assert.Len(t, runner.Output(), 3)
	require.Len(t, sink.published, 1)
	assert.Equal(t, "r1", sink.published[0].GetID())

	failed := runner.ErrorRecords()
	require.Len(t, failed, 1)
	assert.Equal(t, "r2", failed[0].GetID())
	assert.Equal(t, record.ErrorKindPublish, failed[0].Errors()[0].Kind)
}

func TestPublishRecordsWrongServiceType(t *testing.T) {
	runner := NewRunner(&PublishRecords{})
	require.NoError(t, runner.AddControllerService("lookup", cache.New(), nil))
	require.NoError(t, runner.SetProperty("record.sink.service", "lookup"))
	err := runner.Run()
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeCoercion))
}

func TestCatalog(t *testing.T) {
	assert.Equal(t, []string{AddFieldsClass, EnrichRecordsClass, PublishRecordsClass}, DefaultCatalog().List())

	p, err := DefaultCatalog().Create(AddFieldsClass)
	require.NoError(t, err)
	assert.IsType(t, &AddFields{}, p)

	_, err = DefaultCatalog().Create("processor.nope")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	err = Register(AddFieldsClass, func() Processor { return &AddFields{} })
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
