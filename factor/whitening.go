package factor

import (
	"math"
	"reflect"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/factorgraph/utils"
)

// ErrInvalidCovariance is returned when a covariance is not a finite, symmetric,
// positive-definite square matrix.
var ErrInvalidCovariance = errors.New("invalid covariance")

// symmetryTolerance bounds |a_ij - a_ji| relative to the largest entry of the matrix.
const symmetryTolerance = 1e-9

// SqrtInformation returns the upper triangular R with RᵀR = covariance⁻¹. The result is
// computed once per constraint and turns a covariance weighted error e into the plain
// Euclidean error R·e.
func SqrtInformation(covariance mat.Matrix) (*mat.TriDense, error) {
	sym, err := checkCovariance(covariance)
	if err != nil {
		return nil, err
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.Wrap(ErrInvalidCovariance, "covariance is not positive definite")
	}
	var information mat.SymDense
	if err := chol.InverseTo(&information); err != nil {
		return nil, errors.Wrapf(ErrInvalidCovariance, "covariance is not invertible: %v", err)
	}

	var infoChol mat.Cholesky
	if ok := infoChol.Factorize(&information); !ok {
		return nil, errors.Wrap(ErrInvalidCovariance, "information matrix is not positive definite")
	}
	var upper mat.TriDense
	infoChol.UTo(&upper)
	// The factorization leaves signed zeros off the diagonal.
	n, _ := upper.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if upper.At(i, j) == 0 {
				upper.SetTri(i, j, 0)
			}
		}
	}
	return &upper, nil
}

// CovarianceFromSqrtInformation inverts RᵀR back into a covariance.
func CovarianceFromSqrtInformation(sqrtInformation mat.Matrix) (*mat.SymDense, error) {
	if isNilMatrix(sqrtInformation) {
		return nil, errors.Wrap(ErrInvalidCovariance, "square root information is nil")
	}
	n, c := sqrtInformation.Dims()
	if n != c {
		return nil, errors.Wrapf(ErrInvalidCovariance, "square root information is %dx%d", n, c)
	}
	information := mat.NewSymDense(n, nil)
	information.SymOuterK(1, sqrtInformation.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(information); !ok {
		return nil, errors.Wrap(ErrInvalidCovariance, "information matrix is not positive definite")
	}
	var covariance mat.SymDense
	if err := chol.InverseTo(&covariance); err != nil {
		return nil, errors.Wrap(ErrInvalidCovariance, err.Error())
	}
	return &covariance, nil
}

// DiagonalCovariance builds a covariance from per-axis variances.
func DiagonalCovariance(variances ...float64) *mat.SymDense {
	cov := mat.NewSymDense(len(variances), nil)
	for i, v := range variances {
		cov.SetSym(i, i, v)
	}
	return cov
}

func checkCovariance(covariance mat.Matrix) (*mat.SymDense, error) {
	if isNilMatrix(covariance) {
		return nil, errors.Wrap(ErrInvalidCovariance, "covariance is nil")
	}
	r, c := covariance.Dims()
	if r != c || r == 0 {
		return nil, errors.Wrapf(ErrInvalidCovariance, "covariance is %dx%d", r, c)
	}

	maxAbs := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := covariance.At(i, j)
			if !utils.IsFinite(v) {
				return nil, errors.Wrapf(ErrInvalidCovariance, "covariance entry (%d, %d) is %v", i, j, v)
			}
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}

	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			upper, lower := covariance.At(i, j), covariance.At(j, i)
			if math.Abs(upper-lower) > symmetryTolerance*maxAbs {
				return nil, errors.Wrapf(ErrInvalidCovariance, "covariance is not symmetric at (%d, %d)", i, j)
			}
			sym.SetSym(i, j, (upper+lower)/2)
		}
	}
	return sym, nil
}

// isNilMatrix reports whether m is nil or a nil pointer held in the interface, either of which
// panics on Dims.
func isNilMatrix(m mat.Matrix) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
