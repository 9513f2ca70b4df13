package variables

import (
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
)

// Position2DStamped is an (x, y) position in the world frame.
type Position2DStamped struct{ stamped }

// NewPosition2DStamped returns a position variable.
func NewPosition2DStamped(stamp time.Time, device uuid.UUID, p r2.Point) *Position2DStamped {
	return &Position2DStamped{newStamped(Position2DType, stamp, device, p.X, p.Y)}
}

// Point returns the position.
func (v *Position2DStamped) Point() r2.Point {
	return r2.Point{X: v.data[0], Y: v.data[1]}
}

// Orientation2DStamped is a heading in radians.
type Orientation2DStamped struct{ stamped }

// NewOrientation2DStamped returns a yaw variable.
func NewOrientation2DStamped(stamp time.Time, device uuid.UUID, yaw float64) *Orientation2DStamped {
	return &Orientation2DStamped{newStamped(Orientation2DType, stamp, device, yaw)}
}

// Yaw returns the heading in radians.
func (v *Orientation2DStamped) Yaw() float64 {
	return v.data[0]
}

// VelocityLinear2DStamped is a planar linear velocity.
type VelocityLinear2DStamped struct{ stamped }

// NewVelocityLinear2DStamped returns a linear velocity variable.
func NewVelocityLinear2DStamped(stamp time.Time, device uuid.UUID, v r2.Point) *VelocityLinear2DStamped {
	return &VelocityLinear2DStamped{newStamped(VelocityLinear2DType, stamp, device, v.X, v.Y)}
}

// Velocity returns the linear velocity.
func (v *VelocityLinear2DStamped) Velocity() r2.Point {
	return r2.Point{X: v.data[0], Y: v.data[1]}
}

// VelocityAngular2DStamped is a yaw rate in radians per second.
type VelocityAngular2DStamped struct{ stamped }

// NewVelocityAngular2DStamped returns a yaw rate variable.
func NewVelocityAngular2DStamped(stamp time.Time, device uuid.UUID, yawRate float64) *VelocityAngular2DStamped {
	return &VelocityAngular2DStamped{newStamped(VelocityAngular2DType, stamp, device, yawRate)}
}

// YawRate returns the angular velocity.
func (v *VelocityAngular2DStamped) YawRate() float64 {
	return v.data[0]
}

// AccelerationLinear2DStamped is a planar linear acceleration.
type AccelerationLinear2DStamped struct{ stamped }

// NewAccelerationLinear2DStamped returns a linear acceleration variable.
func NewAccelerationLinear2DStamped(stamp time.Time, device uuid.UUID, a r2.Point) *AccelerationLinear2DStamped {
	return &AccelerationLinear2DStamped{newStamped(AccelerationLinear2DType, stamp, device, a.X, a.Y)}
}

// Acceleration returns the linear acceleration.
func (v *AccelerationLinear2DStamped) Acceleration() r2.Point {
	return r2.Point{X: v.data[0], Y: v.data[1]}
}
