// Package unicycle implements the constant acceleration unicycle motion model as a constraint
// between two planar kinematic states.
//
// A state is position (2), yaw (1), linear velocity (2), yaw velocity (1) and linear
// acceleration (2). Between two stamps the model holds yaw velocity and linear acceleration
// constant, integrates velocity linearly and position quadratically. The residual compares the
// prediction from the first state with the second state and whitens it with the square root
// information of the motion noise.
package unicycle

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/factorgraph/autodiff"
	"go.viam.com/factorgraph/spatialmath"
	"go.viam.com/factorgraph/variables"
)

// Frame selects how linear velocity and acceleration are interpreted during integration.
type Frame int

const (
	// WorldFrame treats velocity and acceleration as world frame vectors; heading is propagated
	// by the yaw rate alone and does not couple into position.
	WorldFrame Frame = iota
	// BodyFrame treats velocity and acceleration as expressed in the robot frame at the first
	// state; the position increment is rotated by the first yaw.
	BodyFrame
)

func (f Frame) String() string {
	switch f {
	case WorldFrame:
		return "world"
	case BodyFrame:
		return "body"
	}
	return "unknown"
}

// ParseFrame parses "world" or "body". The empty string is the world frame.
func ParseFrame(s string) (Frame, error) {
	switch s {
	case "", "world":
		return WorldFrame, nil
	case "body":
		return BodyFrame, nil
	}
	return WorldFrame, errors.Errorf("unknown frame %q, expected \"world\" or \"body\"", s)
}

// StateValues are the eight scalars of a state over any scalar type.
type StateValues[T any] struct {
	Position           [2]T
	Yaw                T
	LinearVelocity     [2]T
	YawVelocity        T
	LinearAcceleration [2]T
}

// ValuesOf reads the plain values out of a state's variables.
func ValuesOf(k variables.Kinematics2D) StateValues[float64] {
	return StateValues[float64]{
		Position:           [2]float64{k.Position.X, k.Position.Y},
		Yaw:                k.Yaw,
		LinearVelocity:     [2]float64{k.LinearVelocity.X, k.LinearVelocity.Y},
		YawVelocity:        k.YawVelocity,
		LinearAcceleration: [2]float64{k.LinearAcceleration.X, k.LinearAcceleration.Y},
	}
}

// Blocks returns the values as the five parameter blocks of one state.
func (s StateValues[T]) Blocks() [][]T {
	return [][]T{
		{s.Position[0], s.Position[1]},
		{s.Yaw},
		{s.LinearVelocity[0], s.LinearVelocity[1]},
		{s.YawVelocity},
		{s.LinearAcceleration[0], s.LinearAcceleration[1]},
	}
}

// valuesFromBlocks reads a state from five consecutive parameter blocks starting at offset.
func valuesFromBlocks[T any](blocks [][]T, offset int) StateValues[T] {
	return StateValues[T]{
		Position:           [2]T{blocks[offset][0], blocks[offset][1]},
		Yaw:                blocks[offset+1][0],
		LinearVelocity:     [2]T{blocks[offset+2][0], blocks[offset+2][1]},
		YawVelocity:        blocks[offset+3][0],
		LinearAcceleration: [2]T{blocks[offset+4][0], blocks[offset+4][1]},
	}
}

// Predict integrates state over dt seconds. With dt = 0 the prediction equals state exactly.
// The returned yaw is not normalized.
func Predict[T any](f autodiff.Field[T], state StateValues[T], dt float64, frame Frame) StateValues[T] {
	halfDt2 := 0.5 * dt * dt
	v, a := state.LinearVelocity, state.LinearAcceleration

	// Position increment in the frame velocity and acceleration are expressed in.
	delta := [2]T{
		f.Add(f.Scale(dt, v[0]), f.Scale(halfDt2, a[0])),
		f.Add(f.Scale(dt, v[1]), f.Scale(halfDt2, a[1])),
	}
	if frame == BodyFrame {
		sin, cos := f.Sin(state.Yaw), f.Cos(state.Yaw)
		delta = [2]T{
			f.Sub(f.Mul(cos, delta[0]), f.Mul(sin, delta[1])),
			f.Add(f.Mul(sin, delta[0]), f.Mul(cos, delta[1])),
		}
	}

	return StateValues[T]{
		Position: [2]T{
			f.Add(state.Position[0], delta[0]),
			f.Add(state.Position[1], delta[1]),
		},
		Yaw: f.Add(state.Yaw, f.Scale(dt, state.YawVelocity)),
		LinearVelocity: [2]T{
			f.Add(v[0], f.Scale(dt, a[0])),
			f.Add(v[1], f.Scale(dt, a[1])),
		},
		YawVelocity:        state.YawVelocity,
		LinearAcceleration: a,
	}
}

// PredictKinematics is Predict over a state's plain values. The predicted yaw is normalized onto
// [-π, π].
func PredictKinematics(k variables.Kinematics2D, dt float64, frame Frame) variables.Kinematics2D {
	p := Predict[float64](autodiff.Reals{}, ValuesOf(k), dt, frame)
	return variables.Kinematics2D{
		Position:           r2.Point{X: p.Position[0], Y: p.Position[1]},
		Yaw:                spatialmath.NormalizeAngle(p.Yaw),
		LinearVelocity:     r2.Point{X: p.LinearVelocity[0], Y: p.LinearVelocity[1]},
		YawVelocity:        p.YawVelocity,
		LinearAcceleration: r2.Point{X: p.LinearAcceleration[0], Y: p.LinearAcceleration[1]},
	}
}
