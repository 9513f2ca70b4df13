package autodiff

import (
	"errors"
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/num/dual"
)

// polarFunctor maps a 2D point and a heading to a rotated point and its wrapped bearing.
type polarFunctor struct{}

func polarResidual[T any](f Field[T], parameters [][]T, residuals []T) {
	point, heading := parameters[0], parameters[1][0]
	sin, cos := f.Sin(heading), f.Cos(heading)
	residuals[0] = f.Sub(f.Mul(cos, point[0]), f.Mul(sin, point[1]))
	residuals[1] = f.Add(f.Mul(sin, point[0]), f.Mul(cos, point[1]))
	residuals[2] = WrapAngle(f, f.Add(f.Atan2(point[1], point[0]), f.Scale(3, heading)))
}

func (polarFunctor) Residual(parameters [][]float64, residuals []float64) {
	polarResidual[float64](Reals{}, parameters, residuals)
}

func (polarFunctor) ResidualDual(parameters [][]dual.Number, residuals []dual.Number) {
	polarResidual[dual.Number](Duals{}, parameters, residuals)
}

func TestCostFunctionMatchesCentralDifferences(t *testing.T) {
	auto := NewCostFunction(polarFunctor{}, 3, 2, 1)
	numeric := NewNumericCostFunction(polarFunctor{}.Residual, 0, 3, 2, 1)

	test.That(t, auto.NumResiduals(), test.ShouldEqual, 3)
	test.That(t, auto.ParameterBlockSizes(), test.ShouldResemble, []int{2, 1})
	test.That(t, auto.NumParameters(), test.ShouldEqual, 3)

	for _, params := range [][][]float64{
		{{1, 2}, {0.3}},
		{{-0.5, 0.25}, {2.9}},
		{{3, -4}, {-1.2}},
	} {
		autoRes := make([]float64, 3)
		autoJac := [][]float64{make([]float64, 6), make([]float64, 3)}
		test.That(t, auto.Evaluate(params, autoRes, autoJac), test.ShouldBeNil)

		numRes := make([]float64, 3)
		numJac := [][]float64{make([]float64, 6), make([]float64, 3)}
		test.That(t, numeric.Evaluate(params, numRes, numJac), test.ShouldBeNil)

		for r := range autoRes {
			test.That(t, autoRes[r], test.ShouldEqual, numRes[r])
		}
		for b := range autoJac {
			for i := range autoJac[b] {
				test.That(t, autoJac[b][i], test.ShouldAlmostEqual, numJac[b][i], 1e-6)
			}
		}
	}
}

func TestCostFunctionKnownDerivatives(t *testing.T) {
	auto := NewCostFunction(polarFunctor{}, 3, 2, 1)
	params := [][]float64{{1, 0}, {0}}
	residuals := make([]float64, 3)
	headingJac := make([]float64, 3)
	test.That(t, auto.Evaluate(params, residuals, [][]float64{nil, headingJac}), test.ShouldBeNil)

	test.That(t, residuals, test.ShouldResemble, []float64{1, 0, 0})
	// d/dθ of (cosθ·x - sinθ·y, sinθ·x + cosθ·y, atan2(y,x)+3θ) at x=1, y=0, θ=0.
	test.That(t, headingJac[0], test.ShouldAlmostEqual, 0, 1e-15)
	test.That(t, headingJac[1], test.ShouldAlmostEqual, 1, 1e-15)
	test.That(t, headingJac[2], test.ShouldAlmostEqual, 3, 1e-15)
}

func TestCostFunctionShapeErrors(t *testing.T) {
	auto := NewCostFunction(polarFunctor{}, 3, 2, 1)
	residuals := make([]float64, 3)

	for _, tc := range []struct {
		name       string
		parameters [][]float64
		residuals  []float64
		jacobians  [][]float64
	}{
		{"missing block", [][]float64{{1, 2}}, residuals, nil},
		{"short block", [][]float64{{1}, {2}}, residuals, nil},
		{"short residuals", [][]float64{{1, 2}, {3}}, make([]float64, 2), nil},
		{"jacobian count", [][]float64{{1, 2}, {3}}, residuals, [][]float64{nil}},
		{"jacobian size", [][]float64{{1, 2}, {3}}, residuals, [][]float64{make([]float64, 5), nil}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := auto.Evaluate(tc.parameters, tc.residuals, tc.jacobians)
			test.That(t, errors.Is(err, ErrParameterShape), test.ShouldBeTrue)
		})
	}
}

func TestDualAtan2(t *testing.T) {
	y := dual.Number{Real: 1, Emag: 1}
	x := dual.Number{Real: 1}
	got := Duals{}.Atan2(y, x)
	test.That(t, got.Real, test.ShouldAlmostEqual, math.Pi/4, 1e-15)
	// ∂/∂y atan2(y, x) = x / (x² + y²).
	test.That(t, got.Emag, test.ShouldAlmostEqual, 0.5, 1e-15)

	wrapped := WrapAngle[dual.Number](Duals{}, dual.Number{Real: 4, Emag: 1})
	test.That(t, wrapped.Real, test.ShouldAlmostEqual, 4-2*math.Pi, 1e-12)
	test.That(t, wrapped.Emag, test.ShouldAlmostEqual, 1, 1e-12)
}
