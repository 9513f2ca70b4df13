// Package variables defines the stamped state variables constraints refer to. A variable is
// identified by a UUID derived from its type, stamp and device, so independently constructed
// snapshots of the same quantity agree on identity.
package variables

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// Type names of the built-in variables.
const (
	Position2DType           = "variables.position_2d_stamped"
	Orientation2DType        = "variables.orientation_2d_stamped"
	VelocityLinear2DType     = "variables.velocity_linear_2d_stamped"
	VelocityAngular2DType    = "variables.velocity_angular_2d_stamped"
	AccelerationLinear2DType = "variables.acceleration_linear_2d_stamped"
)

// namespace seeds the name-based variable UUIDs.
var namespace = uuid.MustParse("6f1d2f6c-64c1-4c1a-9bd0-6f2f1c3a9d10")

// Variable is a block of scalars tracked by the graph. Data returns a copy; the graph owns the
// live values.
type Variable interface {
	UUID() uuid.UUID
	Type() string
	Size() int
	Stamp() time.Time
	DeviceID() uuid.UUID
	Data() []float64
}

// GenerateUUID derives the identity of a variable of the given type at stamp for device.
func GenerateUUID(typeName string, stamp time.Time, device uuid.UUID) uuid.UUID {
	buf := make([]byte, 0, len(typeName)+8+len(device))
	buf = append(buf, typeName...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(stamp.UnixNano()))
	buf = append(buf, device[:]...)
	return uuid.NewSHA1(namespace, buf)
}

// stamped is the shared implementation of every built-in variable.
type stamped struct {
	id       uuid.UUID
	typeName string
	stamp    time.Time
	device   uuid.UUID
	data     []float64
}

func newStamped(typeName string, stamp time.Time, device uuid.UUID, data ...float64) stamped {
	return stamped{
		id:       GenerateUUID(typeName, stamp, device),
		typeName: typeName,
		stamp:    stamp,
		device:   device,
		data:     data,
	}
}

func (s *stamped) UUID() uuid.UUID     { return s.id }
func (s *stamped) Type() string        { return s.typeName }
func (s *stamped) Size() int           { return len(s.data) }
func (s *stamped) Stamp() time.Time    { return s.stamp }
func (s *stamped) DeviceID() uuid.UUID { return s.device }

func (s *stamped) Data() []float64 {
	return append([]float64(nil), s.data...)
}
