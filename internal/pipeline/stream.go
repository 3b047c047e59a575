package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/config"
	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/ajitpratap0/recordflow/pkg/logger"
	"github.com/ajitpratap0/recordflow/pkg/metrics"
	"github.com/ajitpratap0/recordflow/pkg/observability"
	"github.com/ajitpratap0/recordflow/pkg/processor"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// BatchSizeKey overrides engine.batch_size in a stream's configuration.
const BatchSizeKey = "batch.size"

// Stream runs records through an ordered chain of processors.
type Stream struct {
	name       string
	batchSize  int
	stages     []*stage
	throughput *metrics.ThroughputTracker
	logger     *zap.Logger
}

type stage struct {
	id        string
	class     string
	processor processor.Processor
	ctx       *component.Context
}

func newStream(sc config.StreamConfig, batchSize int, lookup component.ServiceLookup, catalog *processor.Catalog, base *zap.Logger) (*Stream, error) {
	if raw, ok := sc.Configuration[BatchSizeKey]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n <= 0 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s: %s must be a positive integer, got %q", sc.Name, BatchSizeKey, raw)
		}
		batchSize = n
	}

	s := &Stream{
		name:       sc.Name,
		batchSize:  batchSize,
		throughput: metrics.NewThroughputTracker(sc.Name),
		logger:     base.With(zap.String("component", "stream")),
	}

	for i, pc := range sc.Processors {
		id := Identifier(pc, i)
		p, err := catalog.Create(pc.Class)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unknown processor class").
				WithDetail("stream", sc.Name).
				WithDetail("processor", id)
		}

		ctx := component.NewContext(id, p, component.WithServiceLookup(lookup), component.WithName(pc.Class))
		if err := configure(ctx, pc.Configuration); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid processor configuration").
				WithDetail("stream", sc.Name).
				WithDetail("processor", id)
		}
		ctx.Finalize()
		if err := p.Init(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInitialization, "processor failed to initialize").
				WithDetail("stream", sc.Name).
				WithDetail("processor", id)
		}

		s.stages = append(s.stages, &stage{id: id, class: pc.Class, processor: p, ctx: ctx})
		s.logger.Debug("processor initialized",
			zap.String("stream", sc.Name),
			zap.String("processor", id),
			zap.String("class", pc.Class))
	}
	return s, nil
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// BatchSize returns the maximum number of records handed to a processor.
func (s *Stream) BatchSize() int { return s.batchSize }

// Processors returns the processor identifiers in execution order.
func (s *Stream) Processors() []string {
	ids := make([]string, len(s.stages))
	for i, st := range s.stages {
		ids[i] = st.id
	}
	return ids
}

// Process runs records through every processor, batchSize records at a
// time, and returns the output in order. Records that leave the stream
// invalid carry an invalid_record error. It stops between batches when ctx
// is done and returns what was processed so far.
func (s *Stream) Process(ctx context.Context, records []*record.Record) ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(records))
	for start := 0; start < len(records); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		out = append(out, s.processBatch(ctx, records[start:end])...)
	}
	metrics.Throughput.WithLabelValues(s.name).Set(s.throughput.GetAndReset())
	return out, nil
}

func (s *Stream) processBatch(ctx context.Context, batch []*record.Record) []*record.Record {
	ctx = logger.ContextWithStream(ctx, s.name)
	ctx, span := observability.StartStreamSpan(ctx, s.name, len(batch))
	defer span.End()

	for _, st := range s.stages {
		batch = s.runStage(ctx, st, batch)
	}

	invalid := 0
	for _, r := range batch {
		if err := r.Validate(); err != nil {
			invalid++
			r.AddError(record.ErrorKindInvalidRecord, err.Error())
		}
		for _, e := range r.Errors() {
			metrics.RecordErrors.WithLabelValues(s.name, "", e.Kind).Inc()
		}
	}
	if invalid > 0 {
		span.SetAttribute("recordflow.records.invalid", invalid)
		s.logger.Warn("invalid records leaving stream", append(logger.Fields(ctx), zap.Int("invalid", invalid))...)
	}
	span.SetAttribute("recordflow.records.out", len(batch))
	s.throughput.Increment(int64(len(batch)))
	return batch
}

// runStage calls one processor. A panicking processor leaves the batch as it
// was, with every record tagged processor_panic.
func (s *Stream) runStage(ctx context.Context, st *stage, in []*record.Record) (out []*record.Record) {
	ctx = logger.ContextWithProcessor(ctx, st.id)
	_, span := observability.StartProcessorSpan(ctx, s.name, st.id, st.class)
	defer span.End()
	log := s.logger.With(logger.Fields(ctx)...)
	span.SetAttribute("recordflow.records.in", len(in))

	timer := metrics.NewTimer(st.id)
	defer func() {
		metrics.ProcessingLatency.WithLabelValues(s.name, st.id).Observe(timer.Stop().Seconds())
	}()

	defer func() {
		v := recover()
		if v == nil {
			return
		}
		msg := fmt.Sprintf("processor %s panicked: %v", st.id, v)
		span.Fail(errors.New(errors.ErrorTypeInternal, msg))
		log.Error("processor panicked",
			zap.Any("panic", v),
			zap.Stack("stack"))
		for _, r := range in {
			r.AddError(record.ErrorKindProcessorPanic, msg)
		}
		metrics.RecordsProcessed.WithLabelValues(s.name, st.id, metrics.StatusFailure).Add(float64(len(in)))
		out = in
	}()

	out = st.processor.Process(st.ctx, in)

	valid := 0
	for _, r := range out {
		if r.IsValid() {
			valid++
		}
	}
	metrics.RecordsProcessed.WithLabelValues(s.name, st.id, metrics.StatusSuccess).Add(float64(valid))
	metrics.RecordsProcessed.WithLabelValues(s.name, st.id, metrics.StatusInvalid).Add(float64(len(out) - valid))
	span.SetAttribute("recordflow.records.out", len(out))
	log.Debug("processor finished",
		zap.Int("in", len(in)),
		zap.Int("out", len(out)),
		zap.Duration("elapsed", timer.Stop()))
	return out
}
