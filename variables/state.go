package variables

import (
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
)

// State2D groups the five variables describing a planar kinematic state at one stamp.
type State2D struct {
	Position           *Position2DStamped
	Yaw                *Orientation2DStamped
	LinearVelocity     *VelocityLinear2DStamped
	YawVelocity        *VelocityAngular2DStamped
	LinearAcceleration *AccelerationLinear2DStamped
}

// Kinematics2D is the plain value content of a State2D.
type Kinematics2D struct {
	Position           r2.Point
	Yaw                float64
	LinearVelocity     r2.Point
	YawVelocity        float64
	LinearAcceleration r2.Point
}

// NewState2D builds all five variables of a state at stamp for device.
func NewState2D(stamp time.Time, device uuid.UUID, k Kinematics2D) State2D {
	return State2D{
		Position:           NewPosition2DStamped(stamp, device, k.Position),
		Yaw:                NewOrientation2DStamped(stamp, device, k.Yaw),
		LinearVelocity:     NewVelocityLinear2DStamped(stamp, device, k.LinearVelocity),
		YawVelocity:        NewVelocityAngular2DStamped(stamp, device, k.YawVelocity),
		LinearAcceleration: NewAccelerationLinear2DStamped(stamp, device, k.LinearAcceleration),
	}
}

// Stamp is the stamp of the position variable.
func (s State2D) Stamp() time.Time {
	return s.Position.Stamp()
}

// Kinematics returns the values held by the five variables.
func (s State2D) Kinematics() Kinematics2D {
	return Kinematics2D{
		Position:           s.Position.Point(),
		Yaw:                s.Yaw.Yaw(),
		LinearVelocity:     s.LinearVelocity.Velocity(),
		YawVelocity:        s.YawVelocity.YawRate(),
		LinearAcceleration: s.LinearAcceleration.Acceleration(),
	}
}

// Variables lists the variables in position, yaw, linear velocity, yaw velocity, linear
// acceleration order.
func (s State2D) Variables() []Variable {
	return []Variable{s.Position, s.Yaw, s.LinearVelocity, s.YawVelocity, s.LinearAcceleration}
}

// UUIDs lists the variable identities in the same order as Variables.
func (s State2D) UUIDs() []uuid.UUID {
	vars := s.Variables()
	ids := make([]uuid.UUID, len(vars))
	for i, v := range vars {
		ids[i] = v.UUID()
	}
	return ids
}
