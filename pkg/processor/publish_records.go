package processor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// PublishRecordsClass is the catalog name of PublishRecords.
const PublishRecordsClass = "processor.publish_records"

var (
	SinkServiceProperty = component.NewPropertyDescriptor("record.sink.service").
				Description("Identifier of the service records are published to").
				Required(true).
				IdentifiesControllerService(true).
				Build()

	PublishTimeoutProperty = component.NewPropertyDescriptor("publish.timeout").
				Description("Upper bound for publishing one batch").
				DefaultValue("30s").
				AddValidator(component.TimePeriod).
				Build()
)

// RecordSink is implemented by services that accept records, such as
// service.kafka.sink. The result has one slot per record; nil means the
// record was published.
type RecordSink interface {
	Publish(ctx context.Context, records []*record.Record) []error
}

// PublishRecords hands every valid record to a RecordSink and passes the
// batch through. Failed records carry a publish_error.
type PublishRecords struct {
	sink    RecordSink
	timeout time.Duration
	logger  *zap.Logger
}

// PropertyDescriptors implements component.Configurable.
func (p *PublishRecords) PropertyDescriptors() []*component.PropertyDescriptor {
	return []*component.PropertyDescriptor{SinkServiceProperty, PublishTimeoutProperty}
}

// Init resolves the sink service.
func (p *PublishRecords) Init(ctx *component.Context) error {
	sink, err := component.AsControllerService[RecordSink](ctx.GetPropertyValue(SinkServiceProperty.Name()))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeResolution, "publish_records needs a record sink service").
			WithDetail("processor", ctx.Identifier())
	}
	timeout, err := ctx.GetPropertyValue(PublishTimeoutProperty.Name()).AsDuration()
	if err != nil {
		return err
	}
	p.sink = sink
	p.timeout = timeout
	p.logger = logger.With(zap.String("component", "publish_records"), zap.String("processor", ctx.Identifier()))
	return nil
}

// Process publishes the valid records of the batch.
func (p *PublishRecords) Process(_ *component.Context, records []*record.Record) []*record.Record {
	valid := make([]*record.Record, 0, len(records))
	for _, r := range records {
		if r.IsValid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return records
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	failed := 0
	for i, err := range p.sink.Publish(ctx, valid) {
		if err == nil || i >= len(valid) {
			continue
		}
		failed++
		valid[i].AddError(record.ErrorKindPublish, err.Error())
	}
	if failed > 0 {
		p.logger.Warn("records not published", zap.Int("failed", failed), zap.Int("batch", len(valid)))
	}
	return records
}
