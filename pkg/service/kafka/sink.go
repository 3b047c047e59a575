// Package kafka provides a controller service that publishes records to a
// Kafka topic. One producer is shared by every processor that references the
// service identifier.
package kafka

import (
	"bytes"
	"context"
	"crypto/tls"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/controller"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
	"github.com/ajitpratap0/recordflow/pkg/metrics"
	"github.com/ajitpratap0/recordflow/pkg/observability"
	"github.com/ajitpratap0/recordflow/pkg/record"
	"github.com/ajitpratap0/recordflow/pkg/serializer"
)

// Class is the catalog name of the Kafka sink service.
const Class = "service.kafka.sink"

var (
	BrokersProperty = component.NewPropertyDescriptor("kafka.brokers").
			Description("Comma separated list of bootstrap brokers").
			Required(true).
			AddValidator(component.CommaSeparatedList).
			Build()

	TopicProperty = component.NewPropertyDescriptor("kafka.topic").
			Description("Destination topic, evaluated against each record").
			Required(true).
			AddValidator(component.NonEmpty).
			ExpressionLanguageSupported(true).
			Build()

	KeyProperty = component.NewPropertyDescriptor("kafka.key").
			Description("Message key, evaluated against each record").
			DefaultValue("${" + record.FieldRecordID + "}").
			ExpressionLanguageSupported(true).
			Build()

	AcksProperty = component.NewPropertyDescriptor("kafka.acks").
			DefaultValue("all").
			AllowableValues("all", "1", "0").
			Build()

	CompressionProperty = component.NewPropertyDescriptor("kafka.compression").
				Description("Producer batch compression").
				DefaultValue("none").
				AllowableValues("none", "gzip", "snappy", "lz4", "zstd").
				Build()

	RetriesProperty = component.NewPropertyDescriptor("kafka.retries").
			DefaultValue("3").
			AddValidator(component.NonNegativeInteger).
			Build()

	TimeoutProperty = component.NewPropertyDescriptor("kafka.timeout").
			Description("Producer request timeout").
			DefaultValue("10s").
			AddValidator(component.TimePeriod).
			Build()

	FormatProperty = component.NewPropertyDescriptor("record.format").
			Description("Serialization of message values: json or avro").
			DefaultValue(serializer.FormatJSON).
			AllowableValues(serializer.FormatJSON, serializer.FormatAvro).
			Build()

	TLSProperty = component.NewPropertyDescriptor("kafka.tls.enabled").
			DefaultValue("false").
			AddValidator(component.Boolean).
			Build()

	SASLMechanismProperty = component.NewPropertyDescriptor("kafka.sasl.mechanism").
				DefaultValue("none").
				AllowableValues("none", "PLAIN").
				Build()

	SASLUserProperty = component.NewPropertyDescriptor("kafka.sasl.username").
				Build()

	SASLPasswordProperty = component.NewPropertyDescriptor("kafka.sasl.password").
				Sensitive(true).
				Build()
)

// newProducer is replaced in tests.
var newProducer = func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, cfg)
}

func init() {
	if err := controller.Register(Class, func() component.ControllerService { return NewSink() }); err != nil {
		panic(err)
	}
}

type marshaler interface {
	Marshal(r *record.Record) ([]byte, error)
}

// Sink publishes records with a synchronous producer.
type Sink struct {
	mu       sync.Mutex
	id       string
	producer sarama.SyncProducer
	codec    marshaler
	format   string
	topic    *component.PropertyValue
	key      *component.PropertyValue
	logger   *zap.Logger
}

// NewSink creates an unconnected sink.
func NewSink() *Sink {
	return &Sink{logger: logger.With(zap.String("component", "kafka_sink"))}
}

// PropertyDescriptors implements component.Configurable.
func (s *Sink) PropertyDescriptors() []*component.PropertyDescriptor {
	return []*component.PropertyDescriptor{
		BrokersProperty, TopicProperty, KeyProperty, AcksProperty, CompressionProperty,
		RetriesProperty, TimeoutProperty, FormatProperty, TLSProperty,
		SASLMechanismProperty, SASLUserProperty, SASLPasswordProperty,
	}
}

// Initialize builds the producer configuration and connects.
func (s *Sink) Initialize(ctx component.InitializationContext) error {
	cfg, err := saramaConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka producer configuration")
	}

	format := ctx.GetPropertyValue(FormatProperty.Name()).AsString()
	codec, err := serializer.New(format)
	if err != nil {
		return err
	}
	m, ok := codec.(marshaler)
	if !ok {
		return errors.Newf(errors.ErrorTypeConfig, "format %s cannot encode single messages", format)
	}

	brokers := ctx.GetPropertyValue(BrokersProperty.Name()).AsStringList()
	producer, err := newProducer(brokers, cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create kafka producer").
			WithDetail("brokers", brokers)
	}

	s.mu.Lock()
	s.id = ctx.Identifier()
	s.producer = producer
	s.codec = m
	s.format = format
	s.topic = ctx.GetPropertyValue(TopicProperty.Name())
	s.key = ctx.GetPropertyValue(KeyProperty.Name())
	s.logger = s.logger.With(zap.String("service", s.id))
	s.mu.Unlock()

	s.logger.Info("connected to Kafka",
		zap.Strings("brokers", brokers),
		zap.String("topic", s.topic.AsString()),
		zap.String("format", format))
	return nil
}

func saramaConfig(ctx component.PropertyResolver) (*sarama.Config, error) {
	config := sarama.NewConfig()

	switch ctx.GetPropertyValue(AcksProperty.Name()).AsString() {
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}

	retries, err := ctx.GetPropertyValue(RetriesProperty.Name()).AsInt()
	if err != nil {
		return nil, err
	}
	config.Producer.Retry.Max = retries
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	timeout, err := ctx.GetPropertyValue(TimeoutProperty.Name()).AsDuration()
	if err != nil {
		return nil, err
	}
	config.Producer.Timeout = timeout
	config.Net.DialTimeout = timeout

	switch ctx.GetPropertyValue(CompressionProperty.Name()).AsString() {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
		config.Version = sarama.V2_1_0_0
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	useTLS, err := ctx.GetPropertyValue(TLSProperty.Name()).AsBoolean()
	if err != nil {
		return nil, err
	}
	if useTLS {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if ctx.GetPropertyValue(SASLMechanismProperty.Name()).AsString() == "PLAIN" {
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		config.Net.SASL.User = ctx.GetPropertyValue(SASLUserProperty.Name()).AsString()
		config.Net.SASL.Password = ctx.GetPropertyValue(SASLPasswordProperty.Name()).AsString()
	}
	return config, nil
}

// Publish sends each record and returns one error slot per record; a nil
// slot means the record was acknowledged. Records after a cancelled context
// are reported with the context error.
func (s *Sink) Publish(ctx context.Context, records []*record.Record) []error {
	out := make([]error, len(records))

	s.mu.Lock()
	producer, codec := s.producer, s.codec
	s.mu.Unlock()
	if producer == nil {
		err := errors.New(errors.ErrorTypeConnection, "kafka sink is not connected")
		for i := range out {
			out[i] = err
		}
		return out
	}

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			out[i] = err
			continue
		}
		msg, err := s.message(ctx, codec, r)
		if err != nil {
			out[i] = err
			metrics.RecordsPublished.WithLabelValues(s.id, metrics.StatusInvalid).Inc()
			continue
		}
		partition, offset, err := producer.SendMessage(msg)
		if err != nil {
			out[i] = errors.Wrap(err, errors.ErrorTypeConnection, "failed to send message").
				WithDetail("topic", msg.Topic)
			metrics.RecordsPublished.WithLabelValues(s.id, metrics.StatusFailure).Inc()
			continue
		}
		metrics.RecordsPublished.WithLabelValues(s.id, metrics.StatusSuccess).Inc()
		s.logger.Debug("produced message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset))
	}
	return out
}

func (s *Sink) message(ctx context.Context, codec marshaler, r *record.Record) (*sarama.ProducerMessage, error) {
	value, err := codec.Marshal(r)
	if err != nil {
		return nil, err
	}
	topic := s.topic.Evaluate(r).AsString()
	if topic == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "topic evaluated to an empty string").
			WithDetail("record_id", r.GetID())
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes.TrimRight(value, "\n")),
		Headers: []sarama.RecordHeader{
			{Key: []byte("record_type"), Value: []byte(r.GetType())},
			{Key: []byte("content-type"), Value: []byte(contentType(s.format))},
		},
		Timestamp: r.GetTime(),
	}
	carrier := map[string]string{}
	observability.InjectHeaders(ctx, carrier)
	for k, v := range carrier {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	if key := s.key.Evaluate(r).AsString(); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	return msg, nil
}

func contentType(format string) string {
	if format == serializer.FormatAvro {
		return "application/avro"
	}
	return "application/json"
}

// Shutdown closes the producer. It is safe to call more than once.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	producer := s.producer
	s.producer = nil
	s.mu.Unlock()
	if producer == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- producer.Close() }()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close kafka producer")
		}
		s.logger.Info("kafka producer closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
