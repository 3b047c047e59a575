// Package processor defines the record processor contract, a catalog of
// processor factories, and the built-in processors.
//
// A processor is configured through a component.Context. The stream engine
// validates and finalizes the context, calls Init once, then calls Process
// for every batch:
//
//	proc, err := processor.DefaultCatalog().Create(processor.AddFieldsClass)
//	if err != nil {
//		return err
//	}
//	ctx := component.NewContext("add_tags", proc, component.WithServiceLookup(registry))
//	if _, err := ctx.SetProperty("owner", "${team:-ops}"); err != nil {
//		return err
//	}
//	ctx.Finalize()
//	if err := proc.Init(ctx); err != nil {
//		return err
//	}
//	out := proc.Process(ctx, records)
package processor

import (
	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/record"
)

// Processor transforms batches of records.
type Processor interface {
	component.Configurable

	// Init is called once with the finalized configuration. Services the
	// processor depends on are resolved here.
	Init(ctx *component.Context) error

	// Process returns the output batch. Records that fail are tagged with
	// record.AddError and still returned.
	Process(ctx *component.Context, records []*record.Record) []*record.Record
}
