package record

// Common error kinds recorded on records by processors.
const (
	ErrorKindProcessing     = "processing_error"
	ErrorKindInvalidRecord  = "invalid_record"
	ErrorKindProcessorPanic = "processor_panic"
	ErrorKindPublish        = "publish_error"
	ErrorKindEnrichment     = "enrichment_error"
)

// Error is a processing error attached to a record.
type Error struct {
	Kind    string
	Message string
}

// AddError appends an error to record_errors.
func (r *Record) AddError(kind, message string) *Record {
	var existing []interface{}
	if f, ok := r.GetField(FieldRecordErrors); ok {
		if arr, err := f.AsArray(); err == nil {
			existing = arr
		}
	}
	next := make([]interface{}, 0, len(existing)+1)
	next = append(next, existing...)
	next = append(next, map[string]interface{}{"kind": kind, "message": message})
	return r.SetField(FieldRecordErrors, FieldTypeArray, next)
}

// Errors returns the errors attached with AddError.
func (r *Record) Errors() []Error {
	f, ok := r.GetField(FieldRecordErrors)
	if !ok {
		return nil
	}
	arr, err := f.AsArray()
	if err != nil {
		return nil
	}
	out := make([]Error, 0, len(arr))
	for _, item := range arr {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		kind, _ := entry["kind"].(string)
		message, _ := entry["message"].(string)
		out = append(out, Error{Kind: kind, Message: message})
	}
	return out
}

// HasErrors reports whether any error has been attached.
func (r *Record) HasErrors() bool {
	return len(r.Errors()) > 0
}
