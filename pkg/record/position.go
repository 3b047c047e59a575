package record

import "time"

// Position is a geographic fix attached to a record under record_position.
type Position struct {
	Altitude   float64
	Heading    float64
	Latitude   float64
	Longitude  float64
	Precision  float64
	Satellites int32
	Status     int32
	Speed      float64
	Timestamp  time.Time
}

// ToRecord renders the position as a nested record of type "position".
func (p Position) ToRecord() *Record {
	r := newBare()
	r.SetType(TypePosition)
	r.SetDoubleField(FieldPositionAltitude, p.Altitude).
		SetDoubleField(FieldPositionHeading, p.Heading).
		SetDoubleField(FieldPositionLatitude, p.Latitude).
		SetDoubleField(FieldPositionLongitude, p.Longitude).
		SetDoubleField(FieldPositionPrecision, p.Precision).
		SetIntField(FieldPositionSatellites, p.Satellites).
		SetIntField(FieldPositionStatus, p.Status).
		SetDoubleField(FieldPositionSpeed, p.Speed).
		SetLongField(FieldPositionTimestamp, p.Timestamp.UnixMilli())
	return r
}

// PositionFromRecord reads a position back from its nested record. Missing
// or unreadable sub-fields are left zero.
func PositionFromRecord(r *Record) Position {
	var p Position
	double := func(name string) float64 {
		if f, ok := r.GetField(name); ok {
			v, _ := f.AsDouble()
			return v
		}
		return 0
	}
	integer := func(name string) int32 {
		if f, ok := r.GetField(name); ok {
			v, _ := f.AsInt()
			return v
		}
		return 0
	}
	p.Altitude = double(FieldPositionAltitude)
	p.Heading = double(FieldPositionHeading)
	p.Latitude = double(FieldPositionLatitude)
	p.Longitude = double(FieldPositionLongitude)
	p.Precision = double(FieldPositionPrecision)
	p.Satellites = integer(FieldPositionSatellites)
	p.Status = integer(FieldPositionStatus)
	p.Speed = double(FieldPositionSpeed)
	if f, ok := r.GetField(FieldPositionTimestamp); ok {
		if ms, err := f.AsLong(); err == nil {
			p.Timestamp = time.UnixMilli(ms)
		}
	}
	return p
}

// SetPosition attaches p under record_position.
func (r *Record) SetPosition(p Position) *Record {
	return r.SetRecordField(FieldRecordPosition, p.ToRecord())
}

// GetPosition returns the attached position.
func (r *Record) GetPosition() (Position, bool) {
	f, ok := r.GetField(FieldRecordPosition)
	if !ok {
		return Position{}, false
	}
	nested, err := f.AsRecord()
	if err != nil {
		return Position{}, false
	}
	return PositionFromRecord(nested), true
}

// HasPosition reports whether a position is attached.
func (r *Record) HasPosition() bool {
	_, ok := r.GetPosition()
	return ok
}
