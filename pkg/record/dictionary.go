package record

// Reserved field names.
const (
	FieldRecordID       = "record_id"
	FieldRecordTime     = "record_time"
	FieldRecordType     = "record_type"
	FieldRecordValue    = "record_value"
	FieldRecordKey      = "record_key"
	FieldRecordErrors   = "record_errors"
	FieldRecordCount    = "record_count"
	FieldRecordPosition = "record_position"
)

// Position sub-field names.
const (
	FieldPositionAltitude   = "altitude"
	FieldPositionHeading    = "heading"
	FieldPositionLatitude   = "latitude"
	FieldPositionLongitude  = "longitude"
	FieldPositionPrecision  = "precision"
	FieldPositionSatellites = "satellites"
	FieldPositionStatus     = "status"
	FieldPositionSpeed      = "speed"
	FieldPositionTimestamp  = "timestamp"
)

// Well-known record types.
const (
	TypeGeneric     = "generic"
	TypeLog         = "log"
	TypeMetric      = "metric"
	TypeEvent       = "event"
	TypeMessage     = "message"
	TypeError       = "error"
	TypeTag         = "tag"
	TypeComputedTag = "computed_tag"
	TypeThreshold   = "threshold"
	TypeAlert       = "alert"
	TypePosition    = "position"
)

// shortcutFields are maintained by the record itself and excluded from Size.
var shortcutFields = [...]string{FieldRecordID, FieldRecordType, FieldRecordTime}

func isShortcut(name string) bool {
	for _, s := range shortcutFields {
		if s == name {
			return true
		}
	}
	return false
}

var reservedFields = map[string]bool{
	FieldRecordID: true, FieldRecordTime: true, FieldRecordType: true, FieldRecordValue: true,
	FieldRecordKey: true, FieldRecordErrors: true, FieldRecordCount: true, FieldRecordPosition: true,
}

// IsReserved reports whether name is one of the record_* dictionary fields.
func IsReserved(name string) bool {
	return reservedFields[name]
}
