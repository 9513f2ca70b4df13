// Package autodiff evaluates residual functions together with their Jacobians.
//
// Residuals are written once against the Field abstraction and then run either on plain
// float64 values (Reals) or on dual numbers (Duals) carrying a single directional derivative.
// CostFunction seeds one input at a time to obtain exact derivatives by forward-mode
// differentiation; NumericCostFunction is the central-difference fallback for residuals that
// only exist over float64.
package autodiff

import (
	"math"

	"gonum.org/v1/gonum/num/dual"
)

// Field is the scalar arithmetic a residual is allowed to use. Residuals must stay branch free
// with respect to their inputs so that every Field produces consistent derivatives.
type Field[T any] interface {
	Const(v float64) T
	Add(a, b T) T
	Sub(a, b T) T
	Mul(a, b T) T
	Scale(f float64, a T) T
	Sin(a T) T
	Cos(a T) T
	Atan2(y, x T) T
}

// Reals is the Field over float64.
type Reals struct{}

// Const returns v.
func (Reals) Const(v float64) float64 { return v }

// Add returns a+b.
func (Reals) Add(a, b float64) float64 { return a + b }

// Sub returns a-b.
func (Reals) Sub(a, b float64) float64 { return a - b }

// Mul returns a*b.
func (Reals) Mul(a, b float64) float64 { return a * b }

// Scale returns f*a.
func (Reals) Scale(f, a float64) float64 { return f * a }

// Sin returns sin(a).
func (Reals) Sin(a float64) float64 { return math.Sin(a) }

// Cos returns cos(a).
func (Reals) Cos(a float64) float64 { return math.Cos(a) }

// Atan2 returns atan2(y, x).
func (Reals) Atan2(y, x float64) float64 { return math.Atan2(y, x) }

// Duals is the Field over first order dual numbers.
type Duals struct{}

// Const returns v with a zero derivative.
func (Duals) Const(v float64) dual.Number { return dual.Number{Real: v} }

// Add returns a+b.
func (Duals) Add(a, b dual.Number) dual.Number { return dual.Add(a, b) }

// Sub returns a-b.
func (Duals) Sub(a, b dual.Number) dual.Number { return dual.Sub(a, b) }

// Mul returns a*b.
func (Duals) Mul(a, b dual.Number) dual.Number { return dual.Mul(a, b) }

// Scale returns f*a.
func (Duals) Scale(f float64, a dual.Number) dual.Number { return dual.Scale(f, a) }

// Sin returns sin(a).
func (Duals) Sin(a dual.Number) dual.Number { return dual.Sin(a) }

// Cos returns cos(a).
func (Duals) Cos(a dual.Number) dual.Number { return dual.Cos(a) }

// Atan2 returns atan2(y, x). d/dt atan2(y, x) = (x·y' - y·x') / (x² + y²).
func (Duals) Atan2(y, x dual.Number) dual.Number {
	denom := x.Real*x.Real + y.Real*y.Real
	if denom == 0 {
		return dual.Number{Real: math.Atan2(y.Real, x.Real)}
	}
	return dual.Number{
		Real: math.Atan2(y.Real, x.Real),
		Emag: (x.Real*y.Emag - y.Real*x.Emag) / denom,
	}
}

// WrapAngle maps theta onto [-π, π] with atan2(sin θ, cos θ), whose derivative is 1 away from
// the ±π seam.
func WrapAngle[T any](f Field[T], theta T) T {
	return f.Atan2(f.Sin(theta), f.Cos(theta))
}
