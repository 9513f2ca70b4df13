// Package config defines the problem file: logging settings, the kinematic states, and the
// constraints relating them.
package config

import (
	"fmt"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/factorgraph/logging"
	"go.viam.com/factorgraph/utils"
	"go.viam.com/factorgraph/variables"
)

// A Config describes a set of states and the constraints between them.
type Config struct {
	ConfigFilePath string                        `json:"-"`
	Debug          bool                          `json:"debug,omitempty"`
	LogConfig      []logging.LoggerPatternConfig `json:"log,omitempty"`
	Device         string                        `json:"device,omitempty"`
	States         []State                       `json:"states"`
	Constraints    []Constraint                  `json:"constraints"`
}

// State is one kinematic snapshot.
type State struct {
	Name               string     `json:"name"`
	Stamp              Stamp      `json:"stamp"`
	Position           [2]float64 `json:"position"`
	Yaw                float64    `json:"yaw"`
	LinearVelocity     [2]float64 `json:"linear_velocity"`
	YawVelocity        float64    `json:"yaw_velocity"`
	LinearAcceleration [2]float64 `json:"linear_acceleration"`
}

// Constraint names a registered constraint type, the states it joins in order, and its
// type specific attributes.
type Constraint struct {
	Name       string             `json:"name,omitempty"`
	Type       string             `json:"type"`
	States     []string           `json:"states"`
	Attributes utils.AttributeMap `json:"attributes,omitempty"`
}

// Ensure validates the config. Every problem found is reported, not just the first.
func (c *Config) Ensure() error {
	var errs error
	for idx, lpc := range c.LogConfig {
		errs = multierr.Append(errs, lpc.Validate(fmt.Sprintf("%s.%d", "log", idx)))
	}
	if _, err := c.DeviceID(); err != nil {
		errs = multierr.Append(errs, err)
	}

	names := make(map[string]struct{}, len(c.States))
	for idx := range c.States {
		path := fmt.Sprintf("%s.%d", "states", idx)
		if err := c.States[idx].Validate(path); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, dup := names[c.States[idx].Name]; dup {
			errs = multierr.Append(errs, errors.Errorf("%s: duplicate state name %q", path, c.States[idx].Name))
		}
		names[c.States[idx].Name] = struct{}{}
	}

	for idx := range c.Constraints {
		path := fmt.Sprintf("%s.%d", "constraints", idx)
		if err := c.Constraints[idx].Validate(path); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, name := range c.Constraints[idx].States {
			if _, ok := names[name]; !ok {
				errs = multierr.Append(errs, errors.Errorf("%s: unknown state %q", path, name))
			}
		}
	}
	return errs
}

// DeviceID parses Device. An empty device is uuid.Nil.
func (c *Config) DeviceID() (uuid.UUID, error) {
	if c.Device == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(c.Device)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "device")
	}
	return id, nil
}

// Validate ensures all parts of the state are valid.
func (s *State) Validate(path string) error {
	if s.Name == "" {
		return errors.Errorf("%s: \"name\" is required", path)
	}
	if err := s.Stamp.Validate(path + ".stamp"); err != nil {
		return err
	}
	values := []float64{
		s.Position[0], s.Position[1], s.Yaw, s.LinearVelocity[0], s.LinearVelocity[1],
		s.YawVelocity, s.LinearAcceleration[0], s.LinearAcceleration[1],
	}
	for _, v := range values {
		if !utils.IsFinite(v) {
			return errors.Errorf("%s: state %q has a non finite value", path, s.Name)
		}
	}
	return nil
}

// Time returns the state's stamp.
func (s *State) Time() time.Time {
	return s.Stamp.Time()
}

// Kinematics returns the state's values.
func (s *State) Kinematics() variables.Kinematics2D {
	return variables.Kinematics2D{
		Position:           r2.Point{X: s.Position[0], Y: s.Position[1]},
		Yaw:                s.Yaw,
		LinearVelocity:     r2.Point{X: s.LinearVelocity[0], Y: s.LinearVelocity[1]},
		YawVelocity:        s.YawVelocity,
		LinearAcceleration: r2.Point{X: s.LinearAcceleration[0], Y: s.LinearAcceleration[1]},
	}
}

// ToState2D builds the state's variables for device.
func (s *State) ToState2D(device uuid.UUID) variables.State2D {
	return variables.NewState2D(s.Time(), device, s.Kinematics())
}

// Validate ensures all parts of the constraint are valid.
func (c *Constraint) Validate(path string) error {
	if c.Type == "" {
		return errors.Errorf("%s: \"type\" is required", path)
	}
	if len(c.States) == 0 {
		return errors.Errorf("%s: \"states\" is required", path)
	}
	return nil
}
