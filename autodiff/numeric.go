package autodiff

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// ResidualFunc evaluates a residual over plain float64 parameter blocks.
type ResidualFunc func(parameters [][]float64, residuals []float64)

// NumericCostFunction approximates Jacobians with central differences. It is the fallback for
// residuals that cannot be written against Field.
type NumericCostFunction struct {
	layout
	fn   ResidualFunc
	step float64
}

// NewNumericCostFunction wraps fn. A zero step uses gonum's default for the central formula.
func NewNumericCostFunction(fn ResidualFunc, step float64, numResiduals int, blockSizes ...int) *NumericCostFunction {
	return &NumericCostFunction{layout: newLayout(numResiduals, blockSizes), fn: fn, step: step}
}

// Evaluate has the same contract as CostFunction.Evaluate.
func (c *NumericCostFunction) Evaluate(parameters [][]float64, residuals []float64, jacobians [][]float64) error {
	if err := c.check(parameters, residuals, jacobians); err != nil {
		return err
	}
	c.fn(parameters, residuals)
	if jacobians == nil {
		return nil
	}

	flat := make([]float64, 0, c.NumParameters())
	for _, block := range parameters {
		flat = append(flat, block...)
	}
	dst := mat.NewDense(c.numResiduals, len(flat), nil)
	fd.Jacobian(dst, func(y, x []float64) {
		c.fn(c.split(x), y)
	}, flat, &fd.JacobianSettings{
		Formula:     fd.Central,
		OriginValue: append([]float64(nil), residuals...),
		Step:        c.step,
	})

	col := 0
	for i, size := range c.blockSizes {
		if jac := jacobians[i]; jac != nil {
			for r := 0; r < c.numResiduals; r++ {
				for k := 0; k < size; k++ {
					jac[r*size+k] = dst.At(r, col+k)
				}
			}
		}
		col += size
	}
	return nil
}

// split views a flat parameter vector as blocks. The blocks alias x.
func (c *NumericCostFunction) split(x []float64) [][]float64 {
	blocks := make([][]float64, len(c.blockSizes))
	offset := 0
	for i, size := range c.blockSizes {
		blocks[i] = x[offset : offset+size]
		offset += size
	}
	return blocks
}
