package unicycle

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/factorgraph/autodiff"
	"go.viam.com/factorgraph/factor"
	"go.viam.com/factorgraph/variables"
)

// StateKinematicConstraintType is the registered type name of StateKinematicConstraint.
const StateKinematicConstraintType = "unicycle_2d.state_kinematic"

const numVariables = 10

// Option configures a StateKinematicConstraint.
type Option func(*StateKinematicConstraint)

// WithFrame selects the frame velocity and acceleration are integrated in.
func WithFrame(frame Frame) Option {
	return func(c *StateKinematicConstraint) {
		c.frame = frame
	}
}

// StateKinematicConstraint relates two planar kinematic states through the constant
// acceleration unicycle model. It is immutable after construction and safe to share.
type StateKinematicConstraint struct {
	id              uuid.UUID
	variables       [numVariables]uuid.UUID
	dt              float64
	frame           Frame
	sqrtInformation SqrtInformation
}

var _ factor.Constraint = (*StateKinematicConstraint)(nil)

// NewStateKinematicConstraint builds a constraint between state1 and state2 from the 8×8
// covariance of the motion noise, ordered position (2), yaw, linear velocity (2), yaw velocity,
// linear acceleration (2). dt is the stamp difference of the two position variables and is not
// required to be positive.
func NewStateKinematicConstraint(
	state1, state2 variables.State2D,
	covariance mat.Matrix,
	opts ...Option,
) (*StateKinematicConstraint, error) {
	sqrtInfo, err := factor.SqrtInformation(covariance)
	if err != nil {
		return nil, err
	}
	if n, _ := sqrtInfo.Dims(); n != ResidualSize {
		return nil, errors.Wrapf(factor.ErrInvalidCovariance, "expected %dx%d covariance, got %dx%d",
			ResidualSize, ResidualSize, n, n)
	}

	c := &StateKinematicConstraint{
		id: uuid.New(),
		dt: state2.Stamp().Sub(state1.Stamp()).Seconds(),
	}
	for i := 0; i < ResidualSize; i++ {
		for j := i; j < ResidualSize; j++ {
			c.sqrtInformation[i][j] = sqrtInfo.At(i, j)
		}
	}
	copy(c.variables[:5], state1.UUIDs())
	copy(c.variables[5:], state2.UUIDs())
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Type returns StateKinematicConstraintType.
func (c *StateKinematicConstraint) Type() string {
	return StateKinematicConstraintType
}

// UUID identifies this constraint.
func (c *StateKinematicConstraint) UUID() uuid.UUID {
	return c.id
}

// Variables returns the ten variable identities: position, yaw, linear velocity, yaw velocity and
// linear acceleration of the first state, then of the second.
func (c *StateKinematicConstraint) Variables() []uuid.UUID {
	out := make([]uuid.UUID, numVariables)
	copy(out, c.variables[:])
	return out
}

// Dt is the time between the two states in seconds.
func (c *StateKinematicConstraint) Dt() float64 {
	return c.dt
}

// Duration is Dt as a time.Duration.
func (c *StateKinematicConstraint) Duration() time.Duration {
	return time.Duration(c.dt * float64(time.Second))
}

// Frame is the integration frame.
func (c *StateKinematicConstraint) Frame() Frame {
	return c.frame
}

// SqrtInformation returns a copy of the upper triangular whitening matrix.
func (c *StateKinematicConstraint) SqrtInformation() *mat.TriDense {
	out := mat.NewTriDense(ResidualSize, mat.Upper, nil)
	for i := 0; i < ResidualSize; i++ {
		for j := i; j < ResidualSize; j++ {
			out.SetTri(i, j, c.sqrtInformation[i][j])
		}
	}
	return out
}

// Covariance recovers the covariance the constraint was built from.
func (c *StateKinematicConstraint) Covariance() (*mat.SymDense, error) {
	return factor.CovarianceFromSqrtInformation(c.SqrtInformation())
}

// CostFunction returns an automatically differentiated cost function over the ten parameter
// blocks with an 8-long residual. Each call returns an independent value.
func (c *StateKinematicConstraint) CostFunction() factor.CostFunction {
	functor := &stateCostFunctor{
		dt:              c.dt,
		sqrtInformation: c.sqrtInformation,
		frame:           c.frame,
	}
	return autodiff.NewCostFunction(functor, ResidualSize, ParameterBlockSizes()...)
}

var variableLabels = [5]string{
	"position variable",
	"yaw variable",
	"linear velocity variable",
	"yaw velocity variable",
	"linear acceleration variable",
}

// Describe writes the constraint type, its identity, the ten variables, dt, the frame and the
// square root information matrix.
func (c *StateKinematicConstraint) Describe(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n", c.Type())
	ew.printf("  uuid: %s\n", c.id)
	for state := 0; state < 2; state++ {
		for i, label := range variableLabels {
			ew.printf("  %s %d: %s\n", label, state+1, c.variables[state*5+i])
		}
	}
	ew.printf("  dt: %v\n", c.dt)
	ew.printf("  frame: %s\n", c.frame)
	ew.printf("  sqrt_info:\n    %v\n", mat.Formatted(c.SqrtInformation(), mat.Prefix("    "), mat.Squeeze()))
	return ew.err
}

func (c *StateKinematicConstraint) String() string {
	var sb strings.Builder
	//nolint:errcheck
	c.Describe(&sb)
	return sb.String()
}

// errWriter keeps the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	if _, err := fmt.Fprintf(ew.w, format, args...); err != nil {
		ew.err = errors.Wrap(err, "failed to describe constraint")
	}
}
