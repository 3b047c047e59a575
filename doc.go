// Package recordflow is a record processing engine built around typed
// records, configurable components and shared controller services.
//
// # Architecture
//
// A job file declares controller services and streams. Services (a record
// cache, a Kafka sink) are created lazily by a controller.Registry the first
// time a component asks for them, and are shared by every processor that
// names the same identifier. A stream is an ordered chain of processors, each
// configured through its own component.Context:
//
//	job, err := config.LoadJob("job.yml")
//	if err != nil {
//	    return err
//	}
//	p, err := pipeline.New(job)
//	if err != nil {
//	    return err
//	}
//	defer p.Close(ctx)
//
//	stream, _ := p.Stream("main")
//	out, err := stream.Process(ctx, records)
//
// # Key Packages
//
//	pkg/record       - Typed records, fields and the reserved field dictionary
//	pkg/component    - Property descriptors, values, expressions and contexts
//	pkg/controller   - Service catalog and the lazy, publish-once registry
//	pkg/processor    - Processor contract, catalog, built-ins and Runner
//	pkg/service      - Bundled controller services (cache, kafka)
//	pkg/serializer   - JSON and Avro codecs with optional compression
//	pkg/config       - Job files with ${ENV} substitution
//	pkg/errors       - Structured error taxonomy
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus collectors
//	pkg/observability - OpenTelemetry tracing
//
// # Expressions
//
// Properties that support expressions are evaluated per record: ${name}
// becomes the string form of field name, ${name:-fallback} uses fallback when
// the field is absent.
//
// # Command line
//
//	recordflow list
//	recordflow validate --job job.yml
//	recordflow run --job job.yml --stream main --input records.jsonl
package recordflow
