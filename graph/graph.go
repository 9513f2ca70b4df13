// Package graph keeps the variables of an estimation problem in an arena indexed by UUID, along
// with the constraints that reference them, and evaluates those constraints against the current
// variable values.
package graph

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/factorgraph/factor"
	"go.viam.com/factorgraph/logging"
	"go.viam.com/factorgraph/utils"
	"go.viam.com/factorgraph/variables"
)

var (
	// ErrMissingVariable is returned when a constraint or lookup names a variable not in the graph.
	ErrMissingVariable = errors.New("variable not in graph")
	// ErrDuplicateConstraint is returned when a constraint UUID is added twice.
	ErrDuplicateConstraint = errors.New("constraint already in graph")
	// ErrEmptyGraph is returned when there is nothing to linearize.
	ErrEmptyGraph = errors.New("graph has no constraints")
)

type variableNode struct {
	variable variables.Variable
	values   []float64
	// column is the first column of this variable in the stacked Jacobian.
	column int
}

type constraintNode struct {
	constraint   factor.Constraint
	costFunction factor.CostFunction
	// blocks are arena indices, one per parameter block.
	blocks []int
}

// Graph is safe for concurrent use.
type Graph struct {
	mu     sync.RWMutex
	logger logging.Logger

	variables     []variableNode
	variableIndex map[uuid.UUID]int
	numColumns    int

	constraints     []constraintNode
	constraintIndex map[uuid.UUID]int
}

// New returns an empty graph.
func New(logger logging.Logger) *Graph {
	return &Graph{
		logger:          logger,
		variableIndex:   make(map[uuid.UUID]int),
		constraintIndex: make(map[uuid.UUID]int),
	}
}

// AddVariable adds v with its own data as the initial value. It returns false, keeping the stored
// value, if a variable with the same UUID is already present.
func (g *Graph) AddVariable(v variables.Variable) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addVariableInLock(v)
}

func (g *Graph) addVariableInLock(v variables.Variable) bool {
	if _, ok := g.variableIndex[v.UUID()]; ok {
		return false
	}
	g.variableIndex[v.UUID()] = len(g.variables)
	g.variables = append(g.variables, variableNode{variable: v, values: v.Data(), column: g.numColumns})
	g.numColumns += v.Size()
	return true
}

// AddState adds the five variables of state and returns how many were new.
func (g *Graph) AddState(state variables.State2D) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	added := 0
	for _, v := range state.Variables() {
		if g.addVariableInLock(v) {
			added++
		}
	}
	return added
}

// Variable returns the variable with the given UUID.
func (g *Graph) Variable(id uuid.UUID) (variables.Variable, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.variableIndex[id]
	if !ok {
		return nil, false
	}
	return g.variables[idx].variable, true
}

// Variables returns every variable in insertion order.
func (g *Graph) Variables() []variables.Variable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Map(g.variables, func(node variableNode, _ int) variables.Variable {
		return node.variable
	})
}

// Values returns a copy of the current value of a variable.
func (g *Graph) Values(id uuid.UUID) ([]float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.variableIndex[id]
	if !ok {
		return nil, errors.Wrapf(ErrMissingVariable, "%s", id)
	}
	out := make([]float64, len(g.variables[idx].values))
	copy(out, g.variables[idx].values)
	return out, nil
}

// SetValues replaces the current value of a variable.
func (g *Graph) SetValues(id uuid.UUID, values []float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.variableIndex[id]
	if !ok {
		return errors.Wrapf(ErrMissingVariable, "%s", id)
	}
	node := &g.variables[idx]
	if len(values) != len(node.values) {
		return errors.Errorf("variable %s (%s) has size %d, got %d values",
			id, node.variable.Type(), len(node.values), len(values))
	}
	copy(node.values, values)
	return nil
}

// AddConstraint adds c. Every variable c references must already be in the graph and match the
// size of the corresponding parameter block.
func (g *Graph) AddConstraint(c factor.Constraint) error {
	costFunction := c.CostFunction()
	sizes := costFunction.ParameterBlockSizes()
	ids := c.Variables()
	if len(ids) != len(sizes) {
		return errors.Errorf("constraint %s references %d variables but has %d parameter blocks",
			c.UUID(), len(ids), len(sizes))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.constraintIndex[c.UUID()]; ok {
		return errors.Wrapf(ErrDuplicateConstraint, "%s", c.UUID())
	}

	var errs error
	blocks := make([]int, len(ids))
	for i, id := range ids {
		idx, ok := g.variableIndex[id]
		if !ok {
			errs = multierr.Append(errs, errors.Wrapf(ErrMissingVariable, "%s", id))
			continue
		}
		if size := g.variables[idx].variable.Size(); size != sizes[i] {
			errs = multierr.Append(errs, errors.Errorf("variable %s has size %d but parameter block %d expects %d",
				id, size, i, sizes[i]))
			continue
		}
		blocks[i] = idx
	}
	if errs != nil {
		return errors.Wrapf(errs, "cannot add %s constraint %s", c.Type(), c.UUID())
	}

	g.constraintIndex[c.UUID()] = len(g.constraints)
	g.constraints = append(g.constraints, constraintNode{constraint: c, costFunction: costFunction, blocks: blocks})
	g.logger.Debugw("added constraint", "type", c.Type(), "uuid", c.UUID())
	return nil
}

// RemoveConstraint removes the constraint with the given UUID and reports whether it was present.
// Variables are kept.
func (g *Graph) RemoveConstraint(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.constraintIndex[id]
	if !ok {
		return false
	}
	g.constraints = append(g.constraints[:idx], g.constraints[idx+1:]...)
	delete(g.constraintIndex, id)
	for i := idx; i < len(g.constraints); i++ {
		g.constraintIndex[g.constraints[i].constraint.UUID()] = i
	}
	g.logger.Debugw("removed constraint", "uuid", id)
	return true
}

// Constraint returns the constraint with the given UUID.
func (g *Graph) Constraint(id uuid.UUID) (factor.Constraint, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.constraintIndex[id]
	if !ok {
		return nil, false
	}
	return g.constraints[idx].constraint, true
}

// Constraints returns every constraint in insertion order.
func (g *Graph) Constraints() []factor.Constraint {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Map(g.constraints, func(node constraintNode, _ int) factor.Constraint {
		return node.constraint
	})
}

// snapshot is a consistent copy of what evaluation needs, taken so the lock is not held while
// cost functions run.
type snapshot struct {
	constraints []constraintNode
	parameters  [][][]float64
	columns     [][]int
	numColumns  int
}

func (g *Graph) snapshot() snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snap := snapshot{
		constraints: make([]constraintNode, len(g.constraints)),
		parameters:  make([][][]float64, len(g.constraints)),
		columns:     make([][]int, len(g.constraints)),
		numColumns:  g.numColumns,
	}
	copy(snap.constraints, g.constraints)
	for i, node := range g.constraints {
		params := make([][]float64, len(node.blocks))
		cols := make([]int, len(node.blocks))
		for b, idx := range node.blocks {
			params[b] = append([]float64(nil), g.variables[idx].values...)
			cols[b] = g.variables[idx].column
		}
		snap.parameters[i] = params
		snap.columns[i] = cols
	}
	return snap
}

// ConstraintAs returns the constraint with the given UUID as a T.
func ConstraintAs[T factor.Constraint](g *Graph, id uuid.UUID) (T, error) {
	c, ok := g.Constraint(id)
	if !ok {
		var zero T
		return zero, errors.Errorf("constraint %s not in graph", id)
	}
	return utils.AssertType[T](c)
}
