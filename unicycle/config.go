package unicycle

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/factorgraph/factor"
	"go.viam.com/factorgraph/logging"
	"go.viam.com/factorgraph/utils"
	"go.viam.com/factorgraph/variables"
)

// Config is the attribute form of a state kinematic constraint. Exactly one of Covariance
// (64 values, row-major) and CovarianceDiagonal (8 variances) must be set.
type Config struct {
	Covariance         []float64 `json:"covariance,omitempty"`
	CovarianceDiagonal []float64 `json:"covariance_diagonal,omitempty"`
	Frame              string    `json:"frame,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	switch {
	case len(cfg.Covariance) == 0 && len(cfg.CovarianceDiagonal) == 0:
		return errors.Errorf("%s: one of \"covariance\" or \"covariance_diagonal\" is required", path)
	case len(cfg.Covariance) != 0 && len(cfg.CovarianceDiagonal) != 0:
		return errors.Errorf("%s: only one of \"covariance\" or \"covariance_diagonal\" may be set", path)
	case len(cfg.Covariance) != 0 && len(cfg.Covariance) != ResidualSize*ResidualSize:
		return errors.Errorf("%s: \"covariance\" must have %d values, got %d",
			path, ResidualSize*ResidualSize, len(cfg.Covariance))
	case len(cfg.CovarianceDiagonal) != 0 && len(cfg.CovarianceDiagonal) != ResidualSize:
		return errors.Errorf("%s: \"covariance_diagonal\" must have %d values, got %d",
			path, ResidualSize, len(cfg.CovarianceDiagonal))
	}
	if _, err := ParseFrame(cfg.Frame); err != nil {
		return errors.Wrapf(err, "%s", path)
	}
	return nil
}

// CovarianceMatrix returns the configured covariance. The config must be valid.
func (cfg *Config) CovarianceMatrix() mat.Matrix {
	if len(cfg.CovarianceDiagonal) != 0 {
		return factor.DiagonalCovariance(cfg.CovarianceDiagonal...)
	}
	data := make([]float64, len(cfg.Covariance))
	copy(data, cfg.Covariance)
	return mat.NewDense(ResidualSize, ResidualSize, data)
}

func init() {
	factor.RegisterConstraint(StateKinematicConstraintType, factor.Registration{
		Constructor: newFromAttributes,
		NumStates:   2,
	})
}

func newFromAttributes(
	states []variables.State2D,
	attributes utils.AttributeMap,
	logger logging.Logger,
) (factor.Constraint, error) {
	cfg, err := utils.TransformAttributeMap[*Config](attributes)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate("attributes"); err != nil {
		return nil, err
	}
	frame, err := ParseFrame(cfg.Frame)
	if err != nil {
		return nil, err
	}
	c, err := NewStateKinematicConstraint(states[0], states[1], cfg.CovarianceMatrix(), WithFrame(frame))
	if err != nil {
		return nil, err
	}
	if c.Dt() < 0 {
		logger.Warnw("state kinematic constraint has negative dt", "uuid", c.UUID(), "dt", c.Dt())
	}
	logger.Debugw("built state kinematic constraint", "uuid", c.UUID(), "dt", c.Dt(), "frame", c.Frame().String())
	return c, nil
}
