package unicycle

import (
	"gonum.org/v1/gonum/num/dual"

	"go.viam.com/factorgraph/autodiff"
)

// ResidualSize is the length of the residual: position (2), yaw, linear velocity (2), yaw
// velocity, linear acceleration (2).
const ResidualSize = 8

// SqrtInformation is an upper triangular whitening matrix held by value.
type SqrtInformation [ResidualSize][ResidualSize]float64

// ParameterBlockSizes returns the block sizes of the ten variables a state kinematic
// constraint joins: position, yaw, linear velocity, yaw velocity, linear acceleration of the
// first state, then the same for the second.
func ParameterBlockSizes() []int {
	return []int{2, 1, 2, 1, 2, 2, 1, 2, 1, 2}
}

// RawError is Predict(state1, dt) - state2 with the yaw difference wrapped onto [-π, π].
func RawError[T any](f autodiff.Field[T], state1, state2 StateValues[T], dt float64, frame Frame) [ResidualSize]T {
	predicted := Predict(f, state1, dt, frame)
	return [ResidualSize]T{
		f.Sub(predicted.Position[0], state2.Position[0]),
		f.Sub(predicted.Position[1], state2.Position[1]),
		autodiff.WrapAngle(f, f.Sub(predicted.Yaw, state2.Yaw)),
		f.Sub(predicted.LinearVelocity[0], state2.LinearVelocity[0]),
		f.Sub(predicted.LinearVelocity[1], state2.LinearVelocity[1]),
		f.Sub(predicted.YawVelocity, state2.YawVelocity),
		f.Sub(predicted.LinearAcceleration[0], state2.LinearAcceleration[0]),
		f.Sub(predicted.LinearAcceleration[1], state2.LinearAcceleration[1]),
	}
}

// Whiten returns sqrtInformation · raw, skipping the zero lower triangle.
func Whiten[T any](f autodiff.Field[T], sqrtInformation *SqrtInformation, raw [ResidualSize]T) [ResidualSize]T {
	var out [ResidualSize]T
	for i := 0; i < ResidualSize; i++ {
		sum := f.Const(0)
		for j := i; j < ResidualSize; j++ {
			sum = f.Add(sum, f.Scale(sqrtInformation[i][j], raw[j]))
		}
		out[i] = sum
	}
	return out
}

// Residual is the whitened error of state2 against the prediction from state1.
func Residual[T any](
	f autodiff.Field[T],
	state1, state2 StateValues[T],
	dt float64,
	sqrtInformation *SqrtInformation,
	frame Frame,
) [ResidualSize]T {
	return Whiten(f, sqrtInformation, RawError(f, state1, state2, dt, frame))
}

// stateCostFunctor evaluates Residual over the ten parameter blocks. All fields are copied in
// at construction and never written again.
type stateCostFunctor struct {
	dt              float64
	sqrtInformation SqrtInformation
	frame           Frame
}

func evaluateBlocks[T any](f autodiff.Field[T], c *stateCostFunctor, parameters [][]T, residuals []T) {
	out := Residual(f, valuesFromBlocks(parameters, 0), valuesFromBlocks(parameters, 5), c.dt, &c.sqrtInformation, c.frame)
	copy(residuals, out[:])
}

func (c *stateCostFunctor) Residual(parameters [][]float64, residuals []float64) {
	evaluateBlocks[float64](autodiff.Reals{}, c, parameters, residuals)
}

func (c *stateCostFunctor) ResidualDual(parameters [][]dual.Number, residuals []dual.Number) {
	evaluateBlocks[dual.Number](autodiff.Duals{}, c, parameters, residuals)
}
