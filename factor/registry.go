package factor

import (
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/factorgraph/logging"
	"go.viam.com/factorgraph/utils"
	"go.viam.com/factorgraph/variables"
)

// ErrUnknownConstraintType is returned when no registration exists for a constraint type.
var ErrUnknownConstraintType = errors.New("unknown constraint type")

// A CreateConstraint builds a constraint between states from its attributes.
type CreateConstraint func(states []variables.State2D, attributes utils.AttributeMap, logger logging.Logger) (Constraint, error)

// RegDebugInfo represents some useful information about a registration.
type RegDebugInfo struct {
	RegistrarLoc string
}

// Registration stores a constraint constructor (mandatory) and the number of states it joins.
type Registration struct {
	RegDebugInfo
	Constructor CreateConstraint
	NumStates   int
}

var (
	registryMu         sync.RWMutex
	constraintRegistry = make(map[string]Registration)
)

// RegisterConstraint registers a constraint type. It panics on duplicate names or missing
// constructors, which are programming errors caught at init.
func RegisterConstraint(typeName string, registration Registration) {
	registration.RegistrarLoc = getCallerName()
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := constraintRegistry[typeName]; old {
		panic(errors.Errorf("trying to register two constraints with the same type: %s", typeName))
	}
	if registration.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for constraint: %s", typeName))
	}
	if registration.NumStates <= 0 {
		panic(errors.Errorf("constraint %s must join at least one state", typeName))
	}
	constraintRegistry[typeName] = registration
}

// LookupConstraint looks up a constraint registration by type. nil is returned if there is no
// registration.
func LookupConstraint(typeName string) *Registration {
	registryMu.RLock()
	defer registryMu.RUnlock()
	registration, ok := constraintRegistry[typeName]
	if ok {
		return &registration
	}
	return nil
}

// RegisteredConstraintTypes returns the sorted registered type names.
func RegisteredConstraintTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(constraintRegistry))
	for name := range constraintRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewConstraint builds a constraint of a registered type.
func NewConstraint(
	typeName string,
	states []variables.State2D,
	attributes utils.AttributeMap,
	logger logging.Logger,
) (Constraint, error) {
	registration := LookupConstraint(typeName)
	if registration == nil {
		return nil, errors.Wrapf(ErrUnknownConstraintType, "%q", typeName)
	}
	if len(states) != registration.NumStates {
		return nil, errors.Errorf("constraint %s joins %d states, got %d", typeName, registration.NumStates, len(states))
	}
	return registration.Constructor(states, attributes, logger)
}

func getCallerName() string {
	pc, _, _, ok := runtime.Caller(2)
	details := runtime.FuncForPC(pc)
	if ok && details != nil {
		return details.Name()
	}
	return "unknown"
}
