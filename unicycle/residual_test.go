package unicycle

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/factorgraph/autodiff"
	"go.viam.com/factorgraph/factor"
)

func identitySqrtInformation() *SqrtInformation {
	var r SqrtInformation
	for i := range r {
		r[i][i] = 1
	}
	return &r
}

// correlatedSqrtInformation whitens a covariance with off diagonal terms so every residual
// component mixes several raw errors.
func correlatedSqrtInformation(t *testing.T) *SqrtInformation {
	t.Helper()
	cov := mat.NewSymDense(ResidualSize, nil)
	for i := 0; i < ResidualSize; i++ {
		for j := i; j < ResidualSize; j++ {
			v := 0.1 / float64(1+j-i)
			if i == j {
				v = 0.5 + 0.1*float64(i)
			}
			cov.SetSym(i, j, v)
		}
	}
	r, err := factor.SqrtInformation(cov)
	test.That(t, err, test.ShouldBeNil)
	var out SqrtInformation
	for i := 0; i < ResidualSize; i++ {
		for j := i; j < ResidualSize; j++ {
			out[i][j] = r.At(i, j)
		}
	}
	return &out
}

func randomState(rng *rand.Rand) StateValues[float64] {
	u := func() float64 { return 4*rng.Float64() - 2 }
	return StateValues[float64]{
		Position:           [2]float64{u(), u()},
		Yaw:                math.Pi * (2*rng.Float64() - 1),
		LinearVelocity:     [2]float64{u(), u()},
		YawVelocity:        u(),
		LinearAcceleration: [2]float64{u(), u()},
	}
}

func TestResidualZeroForCoincidentStates(t *testing.T) {
	sqrtInfo := correlatedSqrtInformation(t)
	for _, frame := range []Frame{WorldFrame, BodyFrame} {
		res := Residual[float64](autodiff.Reals{}, movingState, movingState, 0, sqrtInfo, frame)
		test.That(t, res, test.ShouldResemble, [ResidualSize]float64{})
	}
}

func TestResidualZeroAtPrediction(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sqrtInfo := correlatedSqrtInformation(t)
	for trial := 0; trial < 50; trial++ {
		state1 := randomState(rng)
		dt := 3 * rng.Float64()
		for _, frame := range []Frame{WorldFrame, BodyFrame} {
			state2 := Predict[float64](autodiff.Reals{}, state1, dt, frame)
			raw := RawError[float64](autodiff.Reals{}, state1, state2, dt, frame)
			test.That(t, raw, test.ShouldResemble, [ResidualSize]float64{})
			res := Residual[float64](autodiff.Reals{}, state1, state2, dt, sqrtInfo, frame)
			test.That(t, res, test.ShouldResemble, [ResidualSize]float64{})
		}
	}
}

func TestResidualWrapsYaw(t *testing.T) {
	state1 := StateValues[float64]{Yaw: 3, YawVelocity: 1}
	state2 := StateValues[float64]{Yaw: 4 - 2*math.Pi, YawVelocity: 1}

	predicted := Predict[float64](autodiff.Reals{}, state1, 1, WorldFrame)
	test.That(t, predicted.Yaw, test.ShouldAlmostEqual, 4, 1e-15)

	raw := RawError[float64](autodiff.Reals{}, state1, state2, 1, WorldFrame)
	test.That(t, raw[2], test.ShouldAlmostEqual, 0, 1e-12)

	// A genuine small difference across the boundary keeps its sign.
	state2.Yaw = -math.Pi + 0.1
	state1.Yaw = math.Pi - 0.1
	state1.YawVelocity = 0
	raw = RawError[float64](autodiff.Reals{}, state1, state2, 1, WorldFrame)
	test.That(t, raw[2], test.ShouldAlmostEqual, -0.2, 1e-12)
}

func TestResidualWhiteningIsLinear(t *testing.T) {
	state1 := StateValues[float64]{LinearVelocity: [2]float64{1, 0}}
	state2 := Predict[float64](autodiff.Reals{}, state1, 2, WorldFrame)
	test.That(t, state2.Position, test.ShouldResemble, [2]float64{2, 0})

	sqrtInfo := correlatedSqrtInformation(t)
	test.That(t, Residual[float64](autodiff.Reals{}, state1, state2, 2, sqrtInfo, WorldFrame),
		test.ShouldResemble, [ResidualSize]float64{})

	perturbed := func(x float64) [ResidualSize]float64 {
		s := state2
		s.Position[0] = x
		return Residual[float64](autodiff.Reals{}, state1, s, 2, sqrtInfo, WorldFrame)
	}
	half := perturbed(2.5)
	whole := perturbed(3)

	// raw = (-0.5, 0, ...) so only the first column of R contributes.
	test.That(t, half[0], test.ShouldAlmostEqual, -0.5*sqrtInfo[0][0], 1e-12)
	for i := 1; i < ResidualSize; i++ {
		test.That(t, half[i], test.ShouldEqual, 0.)
	}
	for i := range whole {
		test.That(t, whole[i], test.ShouldAlmostEqual, 2*half[i], 1e-12)
	}
}

func TestWhitenMatchesMatrixProduct(t *testing.T) {
	sqrtInfo := correlatedSqrtInformation(t)
	raw := [ResidualSize]float64{0.3, -1, 0.25, 2, -0.5, 0.1, 0.7, -0.2}

	r := mat.NewDense(ResidualSize, ResidualSize, nil)
	for i := range sqrtInfo {
		r.SetRow(i, sqrtInfo[i][:])
	}
	var expected mat.VecDense
	expected.MulVec(r, mat.NewVecDense(ResidualSize, raw[:]))

	out := Whiten[float64](autodiff.Reals{}, sqrtInfo, raw)
	test.That(t, floats.EqualApprox(out[:], expected.RawVector().Data, 1e-12), test.ShouldBeTrue)

	identity := Whiten[float64](autodiff.Reals{}, identitySqrtInformation(), raw)
	test.That(t, identity, test.ShouldResemble, raw)
}

func TestCostFunctionJacobianMatchesCentralDifferences(t *testing.T) {
	sqrtInfo := correlatedSqrtInformation(t)
	state1 := movingState
	state2 := StateValues[float64]{
		Position:           [2]float64{3.1, -1.2},
		Yaw:                -2.9,
		LinearVelocity:     [2]float64{1.1, 0.1},
		YawVelocity:        0.3,
		LinearAcceleration: [2]float64{0.25, 0.05},
	}
	parameters := append(state1.Blocks(), state2.Blocks()...)

	for _, frame := range []Frame{WorldFrame, BodyFrame} {
		t.Run(frame.String(), func(t *testing.T) {
			functor := &stateCostFunctor{dt: 1.3, sqrtInformation: *sqrtInfo, frame: frame}
			auto := autodiff.NewCostFunction(functor, ResidualSize, ParameterBlockSizes()...)
			numeric := autodiff.NewNumericCostFunction(functor.Residual, 0, ResidualSize, ParameterBlockSizes()...)

			autoRes, numRes := make([]float64, ResidualSize), make([]float64, ResidualSize)
			autoJac, numJac := jacobianBuffers(), jacobianBuffers()
			test.That(t, auto.Evaluate(parameters, autoRes, autoJac), test.ShouldBeNil)
			test.That(t, numeric.Evaluate(parameters, numRes, numJac), test.ShouldBeNil)

			test.That(t, autoRes, test.ShouldResemble, numRes)
			for b := range autoJac {
				test.That(t, floats.EqualApprox(autoJac[b], numJac[b], 1e-6), test.ShouldBeTrue)
			}

			// Without whitening, d r / d state2 is -I and d yaw / d yaw rate is dt.
			plain := &stateCostFunctor{dt: 1.3, sqrtInformation: *identitySqrtInformation(), frame: frame}
			jac := jacobianBuffers()
			test.That(t, autodiff.NewCostFunction(plain, ResidualSize, ParameterBlockSizes()...).
				Evaluate(parameters, make([]float64, ResidualSize), jac), test.ShouldBeNil)
			test.That(t, jac[6][0], test.ShouldAlmostEqual, 0, 1e-15)
			test.That(t, jac[6][1], test.ShouldAlmostEqual, 0, 1e-15)
			test.That(t, jac[6][2], test.ShouldAlmostEqual, -1, 1e-12)
			test.That(t, jac[3][2], test.ShouldAlmostEqual, 1.3, 1e-12)
		})
	}
}

func jacobianBuffers() [][]float64 {
	sizes := ParameterBlockSizes()
	out := make([][]float64, len(sizes))
	for i, size := range sizes {
		out[i] = make([]float64, ResidualSize*size)
	}
	return out
}
