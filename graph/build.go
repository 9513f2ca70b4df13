package graph

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/factorgraph/config"
	"go.viam.com/factorgraph/factor"
	"go.viam.com/factorgraph/logging"
	"go.viam.com/factorgraph/variables"
)

// FromConfig builds a graph holding every state of cfg and one constraint per constraint entry,
// created through the constraint registry. All constraint errors are reported together.
func FromConfig(cfg *config.Config, logger logging.Logger) (*Graph, error) {
	device, err := cfg.DeviceID()
	if err != nil {
		return nil, err
	}

	g := New(logger)
	states := make(map[string]variables.State2D, len(cfg.States))
	for i := range cfg.States {
		state := cfg.States[i].ToState2D(device)
		states[cfg.States[i].Name] = state
		g.AddState(state)
	}

	constraintLogger := logger.Sublogger("constraints")
	var errs error
	for idx, cc := range cfg.Constraints {
		path := fmt.Sprintf("%s.%d", "constraints", idx)
		joined := make([]variables.State2D, 0, len(cc.States))
		for _, name := range cc.States {
			state, ok := states[name]
			if !ok {
				errs = multierr.Append(errs, errors.Errorf("%s: unknown state %q", path, name))
				continue
			}
			joined = append(joined, state)
		}
		if len(joined) != len(cc.States) {
			continue
		}

		c, err := factor.NewConstraint(cc.Type, joined, cc.Attributes, constraintLogger)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, path))
			continue
		}
		if err := g.AddConstraint(c); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, path))
		}
	}
	if errs != nil {
		return nil, errs
	}
	logger.Infow("built graph", "variables", len(g.Variables()), "constraints", len(g.Constraints()))
	return g, nil
}
