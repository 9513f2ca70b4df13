package autodiff

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/dual"
)

// ErrParameterShape is returned when parameter, residual or Jacobian buffers do not match the
// sizes a cost function was built with.
var ErrParameterShape = errors.New("parameter shape mismatch")

// Functor is a residual evaluable over both plain and dual scalars. Implementations usually
// forward both methods to one generic function written against Field.
type Functor interface {
	Residual(parameters [][]float64, residuals []float64)
	ResidualDual(parameters [][]dual.Number, residuals []dual.Number)
}

// layout holds the residual size and parameter block sizes shared by the cost functions.
type layout struct {
	numResiduals int
	blockSizes   []int
}

func newLayout(numResiduals int, blockSizes []int) layout {
	return layout{numResiduals: numResiduals, blockSizes: append([]int(nil), blockSizes...)}
}

// NumResiduals returns the length of the residual vector.
func (l layout) NumResiduals() int {
	return l.numResiduals
}

// ParameterBlockSizes returns a copy of the parameter block sizes, in evaluation order.
func (l layout) ParameterBlockSizes() []int {
	return append([]int(nil), l.blockSizes...)
}

// NumParameters is the sum of all block sizes.
func (l layout) NumParameters() int {
	total := 0
	for _, size := range l.blockSizes {
		total += size
	}
	return total
}

func (l layout) check(parameters [][]float64, residuals []float64, jacobians [][]float64) error {
	if len(parameters) != len(l.blockSizes) {
		return errors.Wrapf(ErrParameterShape, "got %d parameter blocks, expected %d", len(parameters), len(l.blockSizes))
	}
	for i, block := range parameters {
		if len(block) != l.blockSizes[i] {
			return errors.Wrapf(ErrParameterShape, "parameter block %d has %d values, expected %d", i, len(block), l.blockSizes[i])
		}
	}
	if len(residuals) != l.numResiduals {
		return errors.Wrapf(ErrParameterShape, "got %d residuals, expected %d", len(residuals), l.numResiduals)
	}
	if jacobians == nil {
		return nil
	}
	if len(jacobians) != len(l.blockSizes) {
		return errors.Wrapf(ErrParameterShape, "got %d jacobian blocks, expected %d", len(jacobians), len(l.blockSizes))
	}
	for i, jac := range jacobians {
		if jac != nil && len(jac) != l.numResiduals*l.blockSizes[i] {
			return errors.Wrapf(ErrParameterShape, "jacobian block %d has %d values, expected %d",
				i, len(jac), l.numResiduals*l.blockSizes[i])
		}
	}
	return nil
}

// CostFunction differentiates a Functor with forward-mode dual numbers. It holds no mutable
// state, so one instance may be evaluated from many goroutines at once.
type CostFunction struct {
	layout
	functor Functor
}

// NewCostFunction wraps functor, whose residual has numResiduals entries and whose parameters are
// split into blocks of the given sizes.
func NewCostFunction(functor Functor, numResiduals int, blockSizes ...int) *CostFunction {
	return &CostFunction{layout: newLayout(numResiduals, blockSizes), functor: functor}
}

// Evaluate writes the residual for parameters into residuals. When jacobians is non-nil, every
// non-nil jacobians[i] receives the row-major numResiduals×blockSizes[i] derivative of the
// residual with respect to block i.
func (c *CostFunction) Evaluate(parameters [][]float64, residuals []float64, jacobians [][]float64) error {
	if err := c.check(parameters, residuals, jacobians); err != nil {
		return err
	}
	c.functor.Residual(parameters, residuals)
	if jacobians == nil {
		return nil
	}

	seeded := make([][]dual.Number, len(parameters))
	for i, block := range parameters {
		seeded[i] = make([]dual.Number, len(block))
		for k, v := range block {
			seeded[i][k] = dual.Number{Real: v}
		}
	}
	out := make([]dual.Number, c.numResiduals)
	for i, jac := range jacobians {
		if jac == nil {
			continue
		}
		size := c.blockSizes[i]
		for k := 0; k < size; k++ {
			seeded[i][k].Emag = 1
			c.functor.ResidualDual(seeded, out)
			seeded[i][k].Emag = 0
			for r := 0; r < c.numResiduals; r++ {
				jac[r*size+k] = out[r].Emag
			}
		}
	}
	return nil
}
