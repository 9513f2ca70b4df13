package unicycle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/factorgraph/autodiff"
	"go.viam.com/factorgraph/factor"
	"go.viam.com/factorgraph/logging"
	"go.viam.com/factorgraph/utils"
	"go.viam.com/factorgraph/variables"
)

var testDevice = uuid.MustParse("6f9619ff-8b86-d011-b42d-00c04fc964ff")

func testStates(dt time.Duration) (variables.State2D, variables.State2D) {
	t0 := time.Unix(1700000000, 0)
	state1 := variables.NewState2D(t0, testDevice, variables.Kinematics2D{
		Position:           r2.Point{X: 1, Y: 2},
		Yaw:                0.5,
		LinearVelocity:     r2.Point{X: 1, Y: 0},
		YawVelocity:        0.1,
		LinearAcceleration: r2.Point{X: 0.2, Y: 0},
	})
	state2 := variables.NewState2D(t0.Add(dt), testDevice, variables.Kinematics2D{
		Position:       r2.Point{X: 3, Y: 2.1},
		Yaw:            0.75,
		LinearVelocity: r2.Point{X: 1.3, Y: 0},
		YawVelocity:    0.1,
	})
	return state1, state2
}

func unitCovariance() *mat.SymDense {
	return factor.DiagonalCovariance(1, 1, 1, 1, 1, 1, 1, 1)
}

func TestNewStateKinematicConstraint(t *testing.T) {
	state1, state2 := testStates(2 * time.Second)
	cov := factor.DiagonalCovariance(0.25, 0.25, 0.01, 1, 1, 0.04, 4, 4)
	c, err := NewStateKinematicConstraint(state1, state2, cov)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.Type(), test.ShouldEqual, StateKinematicConstraintType)
	test.That(t, c.UUID(), test.ShouldNotEqual, uuid.Nil)
	test.That(t, c.Dt(), test.ShouldEqual, 2.)
	test.That(t, c.Duration(), test.ShouldEqual, 2*time.Second)
	test.That(t, c.Frame(), test.ShouldEqual, WorldFrame)
	test.That(t, c.Variables(), test.ShouldResemble, append(state1.UUIDs(), state2.UUIDs()...))

	r := c.SqrtInformation()
	test.That(t, r.At(0, 0), test.ShouldAlmostEqual, 2, 1e-12)
	test.That(t, r.At(2, 2), test.ShouldAlmostEqual, 10, 1e-12)
	test.That(t, r.At(7, 7), test.ShouldAlmostEqual, 0.5, 1e-12)

	back, err := c.Covariance()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.EqualApprox(back, cov, 1e-12), test.ShouldBeTrue)

	// Returned slices and matrices are copies.
	c.Variables()[0] = uuid.Nil
	r.SetTri(0, 0, 100)
	test.That(t, c.Variables()[0], test.ShouldEqual, state1.Position.UUID())
	test.That(t, c.SqrtInformation().At(0, 0), test.ShouldAlmostEqual, 2, 1e-12)

	other, err := NewStateKinematicConstraint(state1, state2, cov, WithFrame(BodyFrame))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, other.Frame(), test.ShouldEqual, BodyFrame)
	test.That(t, other.UUID(), test.ShouldNotEqual, c.UUID())
}

func TestNewStateKinematicConstraintInvalidCovariance(t *testing.T) {
	state1, state2 := testStates(time.Second)
	for _, tc := range []struct {
		name string
		cov  mat.Matrix
	}{
		{"negative eigenvalue", factor.DiagonalCovariance(1, 1, 1, 1, -1, 1, 1, 1)},
		{"wrong size", factor.DiagonalCovariance(1, 1, 1)},
		{"zero", mat.NewSymDense(ResidualSize, nil)},
		{"nil", nil},
		{"typed nil", (*mat.Dense)(nil)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewStateKinematicConstraint(state1, state2, tc.cov)
			test.That(t, c, test.ShouldBeNil)
			test.That(t, errors.Is(err, factor.ErrInvalidCovariance), test.ShouldBeTrue)
		})
	}
}

func TestDescribe(t *testing.T) {
	state1, state2 := testStates(1500 * time.Millisecond)
	c, err := NewStateKinematicConstraint(state1, state2, unitCovariance(), WithFrame(BodyFrame))
	test.That(t, err, test.ShouldBeNil)

	var sb strings.Builder
	test.That(t, c.Describe(&sb), test.ShouldBeNil)
	lines := strings.Split(sb.String(), "\n")

	expected := []string{
		"unicycle_2d.state_kinematic",
		fmt.Sprintf("  uuid: %s", c.UUID()),
	}
	for i, state := range []variables.State2D{state1, state2} {
		expected = append(expected,
			fmt.Sprintf("  position variable %d: %s", i+1, state.Position.UUID()),
			fmt.Sprintf("  yaw variable %d: %s", i+1, state.Yaw.UUID()),
			fmt.Sprintf("  linear velocity variable %d: %s", i+1, state.LinearVelocity.UUID()),
			fmt.Sprintf("  yaw velocity variable %d: %s", i+1, state.YawVelocity.UUID()),
			fmt.Sprintf("  linear acceleration variable %d: %s", i+1, state.LinearAcceleration.UUID()),
		)
	}
	expected = append(expected, "  dt: 1.5", "  frame: body", "  sqrt_info:")
	test.That(t, len(lines), test.ShouldBeGreaterThan, len(expected)+ResidualSize-1)
	test.That(t, lines[:len(expected)], test.ShouldResemble, expected)
	for _, line := range lines[len(expected) : len(expected)+ResidualSize] {
		test.That(t, line, test.ShouldStartWith, "    ")
		test.That(t, line, test.ShouldNotContainSubstring, "-0")
	}

	// Deterministic and identical to String.
	var again strings.Builder
	test.That(t, c.Describe(&again), test.ShouldBeNil)
	test.That(t, again.String(), test.ShouldEqual, sb.String())
	test.That(t, c.String(), test.ShouldEqual, sb.String())
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("disk full")
}

func TestDescribeWriteError(t *testing.T) {
	state1, state2 := testStates(time.Second)
	c, err := NewStateKinematicConstraint(state1, state2, unitCovariance())
	test.That(t, err, test.ShouldBeNil)

	w := &failingWriter{}
	err = c.Describe(w)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "disk full")
	test.That(t, w.writes, test.ShouldEqual, 1)
}

func TestConstraintCostFunction(t *testing.T) {
	state1, state2 := testStates(2 * time.Second)
	c, err := NewStateKinematicConstraint(state1, state2, factor.DiagonalCovariance(4, 4, 4, 4, 4, 4, 4, 4))
	test.That(t, err, test.ShouldBeNil)

	cf := c.CostFunction()
	test.That(t, cf.NumResiduals(), test.ShouldEqual, 8)
	test.That(t, cf.ParameterBlockSizes(), test.ShouldResemble, []int{2, 1, 2, 1, 2, 2, 1, 2, 1, 2})

	// Mutating the returned sizes does not leak into later calls.
	cf.ParameterBlockSizes()[0] = 9
	test.That(t, cf.ParameterBlockSizes()[0], test.ShouldEqual, 2)

	s1, s2 := ValuesOf(state1.Kinematics()), ValuesOf(state2.Kinematics())
	parameters := append(s1.Blocks(), s2.Blocks()...)
	residuals := make([]float64, ResidualSize)
	test.That(t, cf.Evaluate(parameters, residuals, nil), test.ShouldBeNil)

	expected := Residual[float64](autodiff.Reals{}, s1, s2, 2, &SqrtInformation{
		{0.5}, {0, 0.5}, {0, 0, 0.5}, {0, 0, 0, 0.5},
		{0, 0, 0, 0, 0.5}, {0, 0, 0, 0, 0, 0.5}, {0, 0, 0, 0, 0, 0, 0.5}, {0, 0, 0, 0, 0, 0, 0, 0.5},
	}, WorldFrame)
	for i := range residuals {
		test.That(t, residuals[i], test.ShouldAlmostEqual, expected[i], 1e-12)
	}
	// Predicted x = 1 + 1·2 + ½·0.2·4 = 3.4 against 3, whitened by 1/2.
	test.That(t, residuals[0], test.ShouldAlmostEqual, 0.2, 1e-12)

	test.That(t, c.CostFunction() != cf, test.ShouldBeTrue)
}

func TestConstraintConcurrentEvaluation(t *testing.T) {
	state1, state2 := testStates(time.Second)
	c, err := NewStateKinematicConstraint(state1, state2, factor.DiagonalCovariance(1, 2, 3, 4, 5, 6, 7, 8),
		WithFrame(BodyFrame))
	test.That(t, err, test.ShouldBeNil)

	parameters := append(ValuesOf(state1.Kinematics()).Blocks(), ValuesOf(state2.Kinematics()).Blocks()...)
	expectedRes := make([]float64, ResidualSize)
	expectedJac := jacobianBuffers()
	test.That(t, c.CostFunction().Evaluate(parameters, expectedRes, expectedJac), test.ShouldBeNil)

	const workers = 16
	results := make([][]float64, workers)
	jacobians := make([][][]float64, workers)
	errs := make([]error, workers)
	shared := c.CostFunction()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cf := shared
			if i%2 == 0 {
				cf = c.CostFunction()
			}
			results[i] = make([]float64, ResidualSize)
			jacobians[i] = jacobianBuffers()
			errs[i] = cf.Evaluate(parameters, results[i], jacobians[i])
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		test.That(t, errs[i], test.ShouldBeNil)
		test.That(t, results[i], test.ShouldResemble, expectedRes)
		test.That(t, jacobians[i], test.ShouldResemble, expectedJac)
	}
}

func TestConfigValidate(t *testing.T) {
	full := make([]float64, 64)
	for i := 0; i < 8; i++ {
		full[i*8+i] = 1
	}
	for _, tc := range []struct {
		name string
		cfg  Config
		err  string
	}{
		{"diagonal", Config{CovarianceDiagonal: []float64{1, 1, 1, 1, 1, 1, 1, 1}}, ""},
		{"full body", Config{Covariance: full, Frame: "body"}, ""},
		{"missing", Config{}, "one of \"covariance\" or \"covariance_diagonal\" is required"},
		{"both", Config{Covariance: full, CovarianceDiagonal: []float64{1}}, "only one of"},
		{"short full", Config{Covariance: []float64{1, 2}}, "must have 64 values, got 2"},
		{"short diagonal", Config{CovarianceDiagonal: []float64{1, 2}}, "must have 8 values, got 2"},
		{"bad frame", Config{CovarianceDiagonal: full[:8], Frame: "odom"}, "unknown frame"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate("constraints.0.attributes")
			if tc.err == "" {
				test.That(t, err, test.ShouldBeNil)
				return
			}
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, "constraints.0.attributes")
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}
}

func TestRegisteredConstructor(t *testing.T) {
	registration := factor.LookupConstraint(StateKinematicConstraintType)
	test.That(t, registration, test.ShouldNotBeNil)
	test.That(t, registration.NumStates, test.ShouldEqual, 2)
	test.That(t, registration.RegistrarLoc, test.ShouldContainSubstring, "unicycle")

	t.Run("diagonal body frame", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		state1, state2 := testStates(time.Second)
		c, err := factor.NewConstraint(StateKinematicConstraintType, []variables.State2D{state1, state2},
			utils.AttributeMap{
				"covariance_diagonal": []interface{}{4.0, 4.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0},
				"frame":               "body",
			}, logger)
		test.That(t, err, test.ShouldBeNil)
		kc, ok := c.(*StateKinematicConstraint)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, kc.Frame(), test.ShouldEqual, BodyFrame)
		test.That(t, kc.SqrtInformation().At(0, 0), test.ShouldAlmostEqual, 0.5, 1e-12)
		test.That(t, logs.FilterMessage("built state kinematic constraint").Len(), test.ShouldEqual, 1)
		test.That(t, logs.FilterMessage("state kinematic constraint has negative dt").Len(), test.ShouldEqual, 0)
	})

	t.Run("negative dt warns", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		state1, state2 := testStates(-time.Second)
		c, err := factor.NewConstraint(StateKinematicConstraintType, []variables.State2D{state1, state2},
			utils.AttributeMap{"covariance_diagonal": []float64{1, 1, 1, 1, 1, 1, 1, 1}}, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.(*StateKinematicConstraint).Dt(), test.ShouldEqual, -1.)
		warnings := logs.FilterMessage("state kinematic constraint has negative dt").All()
		test.That(t, warnings, test.ShouldHaveLength, 1)
		test.That(t, warnings[0].ContextMap()["dt"], test.ShouldEqual, -1.)
	})

	t.Run("bad attributes", func(t *testing.T) {
		state1, state2 := testStates(time.Second)
		states := []variables.State2D{state1, state2}
		logger := logging.NewTestLogger(t)

		_, err := factor.NewConstraint(StateKinematicConstraintType, states,
			utils.AttributeMap{"covariance_diagonal": []float64{1, 1}}, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "must have 8 values")

		_, err = factor.NewConstraint(StateKinematicConstraintType, states,
			utils.AttributeMap{"covariance_diagonal": []float64{1, 1, 1, 1, -1, 1, 1, 1}}, logger)
		test.That(t, errors.Is(err, factor.ErrInvalidCovariance), test.ShouldBeTrue)

		_, err = factor.NewConstraint(StateKinematicConstraintType, states,
			utils.AttributeMap{"covariance_diagonal": []float64{1, 1, 1, 1, 1, 1, 1, 1}, "colour": "red"}, logger)
		test.That(t, err, test.ShouldNotBeNil)

		_, err = factor.NewConstraint(StateKinematicConstraintType, states[:1],
			utils.AttributeMap{"covariance_diagonal": []float64{1, 1, 1, 1, 1, 1, 1, 1}}, logger)
		test.That(t, err, test.ShouldNotBeNil)
	})
}
