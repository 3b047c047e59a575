package processor

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
	"github.com/ajitpratap0/recordflow/pkg/record"
	"github.com/ajitpratap0/recordflow/pkg/service/cache"
)

// EnrichRecordsClass is the catalog name of EnrichRecords.
const EnrichRecordsClass = "processor.enrich_records"

var (
	CacheServiceProperty = component.NewPropertyDescriptor("cache.service").
				Description("Identifier of the cache service holding enrichment records").
				Required(true).
				IdentifiesControllerService(true).
				Build()

	RecordKeyProperty = component.NewPropertyDescriptor("record.key").
				Description("Lookup key, evaluated against each record").
				DefaultValue("${" + record.FieldRecordID + "}").
				ExpressionLanguageSupported(true).
				Build()

	EnrichFieldsProperty = component.NewPropertyDescriptor("enrich.fields").
				Description("Comma separated fields to copy, each optionally renamed with name:alias; empty copies every non reserved field").
				Build()
)

// EnrichRecords copies fields from a cached record looked up by a per-record
// key. Existing fields are overwritten. A cache miss leaves the record
// unchanged.
type EnrichRecords struct {
	lookup  cache.Service
	key     *component.PropertyValue
	mapping []fieldMapping
	logger  *zap.Logger
}

type fieldMapping struct {
	from, to string
}

// PropertyDescriptors implements component.Configurable.
func (p *EnrichRecords) PropertyDescriptors() []*component.PropertyDescriptor {
	return []*component.PropertyDescriptor{CacheServiceProperty, RecordKeyProperty, EnrichFieldsProperty}
}

// Init resolves the cache service. It fails when the service is absent.
func (p *EnrichRecords) Init(ctx *component.Context) error {
	svc, err := component.AsControllerService[cache.Service](ctx.GetPropertyValue(CacheServiceProperty.Name()))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeResolution, "enrich_records needs a cache service").
			WithDetail("processor", ctx.Identifier())
	}
	p.lookup = svc
	p.key = ctx.GetPropertyValue(RecordKeyProperty.Name())
	p.mapping = parseMapping(ctx.GetPropertyValue(EnrichFieldsProperty.Name()).AsStringList())
	p.logger = logger.With(zap.String("component", "enrich_records"), zap.String("processor", ctx.Identifier()))
	return nil
}

func parseMapping(items []string) []fieldMapping {
	out := make([]fieldMapping, 0, len(items))
	for _, item := range items {
		from, to, renamed := strings.Cut(item, ":")
		from = strings.TrimSpace(from)
		to = strings.TrimSpace(to)
		if !renamed || to == "" {
			to = from
		}
		if from != "" {
			out = append(out, fieldMapping{from: from, to: to})
		}
	}
	return out
}

// Process enriches every record in place.
func (p *EnrichRecords) Process(_ *component.Context, records []*record.Record) []*record.Record {
	for _, r := range records {
		key := p.key.Evaluate(r).AsString()
		if key == "" {
			continue
		}
		source, ok := p.lookup.Get(key)
		if !ok {
			p.logger.Debug("no enrichment record", zap.String("key", key))
			continue
		}
		p.enrich(r, source)
	}
	return records
}

func (p *EnrichRecords) enrich(target, source *record.Record) {
	if len(p.mapping) == 0 {
		for _, f := range source.AllFields() {
			if record.IsReserved(f.Name()) {
				continue
			}
			target.PutField(f)
		}
		return
	}
	for _, m := range p.mapping {
		f, ok := source.GetField(m.from)
		if !ok {
			continue
		}
		target.SetField(m.to, f.Type(), f.RawValue())
	}
}
