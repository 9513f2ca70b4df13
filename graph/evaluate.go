package graph

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/factorgraph/utils"
)

// ConstraintResidual is the residual of one constraint at the current values.
type ConstraintResidual struct {
	UUID     uuid.UUID
	Type     string
	Residual []float64
}

// Cost is ½‖r‖².
func (cr ConstraintResidual) Cost() float64 {
	return 0.5 * floats.Dot(cr.Residual, cr.Residual)
}

// Evaluation holds the residual of every constraint, in insertion order, and the total cost.
type Evaluation struct {
	Residuals []ConstraintResidual
	Cost      float64
}

// Evaluate computes every constraint's residual at the current variable values. Constraints are
// split into groups evaluated in parallel.
func (g *Graph) Evaluate(ctx context.Context) (*Evaluation, error) {
	snap := g.snapshot()
	n := len(snap.constraints)
	residuals := make([]ConstraintResidual, n)
	errs := make([]error, n)

	err := utils.GroupWorkParallel(ctx, n, nil, func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		return func(memberNum, workNum int) {
			node := snap.constraints[workNum]
			out := make([]float64, node.costFunction.NumResiduals())
			if err := node.costFunction.Evaluate(snap.parameters[workNum], out, nil); err != nil {
				errs[workNum] = errors.Wrapf(err, "failed to evaluate %s constraint %s", node.constraint.Type(), node.constraint.UUID())
				return
			}
			residuals[workNum] = ConstraintResidual{UUID: node.constraint.UUID(), Type: node.constraint.Type(), Residual: out}
		}, nil
	})
	if err = multierr.Combine(append([]error{err}, errs...)...); err != nil {
		return nil, err
	}

	eval := &Evaluation{Residuals: residuals}
	for _, r := range residuals {
		eval.Cost += r.Cost()
	}
	g.logger.CDebugw(ctx, "evaluated graph", "constraints", n, "cost", eval.Cost)
	return eval, nil
}

// Linearization is the stacked residual and Jacobian of all constraints. Rows follow constraint
// insertion order; columns follow variable insertion order.
type Linearization struct {
	Jacobian *mat.Dense
	Residual *mat.VecDense
	// Rows maps a constraint to its first row.
	Rows map[uuid.UUID]int
	// Columns maps a variable to its first column.
	Columns map[uuid.UUID]int
}

// Linearize evaluates every constraint with derivatives and assembles the stacked system.
func (g *Graph) Linearize(ctx context.Context) (*Linearization, error) {
	g.mu.RLock()
	columns := make(map[uuid.UUID]int, len(g.variables))
	for _, node := range g.variables {
		columns[node.variable.UUID()] = node.column
	}
	g.mu.RUnlock()
	snap := g.snapshot()

	rows := make(map[uuid.UUID]int, len(snap.constraints))
	rowOffsets := make([]int, len(snap.constraints))
	numRows := 0
	for i, node := range snap.constraints {
		rowOffsets[i] = numRows
		rows[node.constraint.UUID()] = numRows
		numRows += node.costFunction.NumResiduals()
	}
	if numRows == 0 || snap.numColumns == 0 {
		return nil, ErrEmptyGraph
	}

	lin := &Linearization{
		Jacobian: mat.NewDense(numRows, snap.numColumns, nil),
		Residual: mat.NewVecDense(numRows, nil),
		Rows:     rows,
		Columns:  columns,
	}

	// Each constraint writes a disjoint set of rows.
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(utils.ParallelFactor)
	for i := range snap.constraints {
		i := i
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			node := snap.constraints[i]
			numResiduals := node.costFunction.NumResiduals()
			sizes := node.costFunction.ParameterBlockSizes()
			residual := make([]float64, numResiduals)
			jacobians := make([][]float64, len(sizes))
			for b, size := range sizes {
				jacobians[b] = make([]float64, numResiduals*size)
			}
			if err := node.costFunction.Evaluate(snap.parameters[i], residual, jacobians); err != nil {
				return errors.Wrapf(err, "failed to linearize %s constraint %s", node.constraint.Type(), node.constraint.UUID())
			}
			for r := 0; r < numResiduals; r++ {
				row := rowOffsets[i] + r
				lin.Residual.SetVec(row, residual[r])
				for b, size := range sizes {
					col := snap.columns[i][b]
					for k := 0; k < size; k++ {
						// Two blocks may name the same variable, so contributions add.
						lin.Jacobian.Set(row, col+k, lin.Jacobian.At(row, col+k)+jacobians[b][r*size+k])
					}
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	g.logger.CDebugw(ctx, "linearized graph", "rows", numRows, "columns", snap.numColumns)
	return lin, nil
}
