// Package factor defines the contract between constraints and the solver integration layer:
// what a constraint references, how it describes itself, and the cost function it hands out.
package factor

import (
	"io"

	"github.com/google/uuid"
)

// CostFunction is a residual with derivatives, sized by NumResiduals and ParameterBlockSizes.
// Evaluate writes the residual, and when jacobians is non-nil, every non-nil jacobians[i]
// receives the row-major NumResiduals×ParameterBlockSizes()[i] derivative with respect to block
// i. Implementations must be safe for concurrent use.
type CostFunction interface {
	NumResiduals() int
	ParameterBlockSizes() []int
	Evaluate(parameters [][]float64, residuals []float64, jacobians [][]float64) error
}

// Constraint is a term of the least squares objective relating a fixed, ordered set of
// variables. Constraints are immutable once built.
type Constraint interface {
	// Type is the registered constraint type name.
	Type() string
	// UUID identifies this constraint instance.
	UUID() uuid.UUID
	// Variables lists the referenced variables in parameter block order.
	Variables() []uuid.UUID
	// Describe writes a human readable multi-line report.
	Describe(w io.Writer) error
	// CostFunction returns a new cost function owned by the caller.
	CostFunction() CostFunction
}
