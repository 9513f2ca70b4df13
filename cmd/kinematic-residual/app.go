package main

import (
	"fmt"
	"io"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/factorgraph/config"
	"go.viam.com/factorgraph/graph"
	"go.viam.com/factorgraph/logging"
	"go.viam.com/factorgraph/unicycle"
	"go.viam.com/factorgraph/variables"
)

const (
	flagConfig    = "config"
	flagJacobians = "jacobians"
	flagDebug     = "debug"
	flagLogFile   = "log-file"
)

func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "kinematic-residual",
		Usage:     "describe and evaluate the constraints of a problem file",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagConfig,
				Aliases:  []string{"c"},
				Usage:    "load the problem from `FILE`",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  flagJacobians,
				Usage: "also print the stacked Jacobian",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated when it grows large",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	logger := logging.NewBlankLogger("factorgraph")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	logger.SetLevel(logging.INFO)
	if path := c.String(flagLogFile); path != "" {
		logFile := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    64,
			MaxBackups: 2,
			Compress:   true,
		}
		defer utils.UncheckedErrorFunc(logFile.Close)
		logger.AddAppender(logging.NewWriterAppender(logFile))
	}
	defer utils.UncheckedErrorFunc(logger.Sync)
	config.InitLoggingSettings(logger, c.Bool(flagDebug))

	cfg, err := config.Read(c.String(flagConfig))
	if err != nil {
		return err
	}
	if err := config.ApplyLogConfig(cfg, logger); err != nil {
		return err
	}

	g, err := graph.FromConfig(cfg, logger.Sublogger("graph"))
	if err != nil {
		return errors.Wrap(err, "failed to build graph")
	}

	out := c.App.Writer
	for _, constraint := range g.Constraints() {
		if err := constraint.Describe(out); err != nil {
			return err
		}
		kc, err := graph.ConstraintAs[*unicycle.StateKinematicConstraint](g, constraint.UUID())
		if err != nil {
			continue
		}
		state1, err := kinematicsOf(g, kc.Variables()[:5])
		if err != nil {
			return err
		}
		p := unicycle.PredictKinematics(state1, kc.Dt(), kc.Frame())
		fmt.Fprintf(out, "  predicted: position (%g, %g) yaw %g linear velocity (%g, %g) yaw velocity %g linear acceleration (%g, %g)\n",
			p.Position.X, p.Position.Y, p.Yaw, p.LinearVelocity.X, p.LinearVelocity.Y,
			p.YawVelocity, p.LinearAcceleration.X, p.LinearAcceleration.Y)
	}

	ctx := c.Context
	if c.Bool(flagDebug) || cfg.Debug {
		ctx = logging.EnableDebugMode(ctx, "kinematic-residual")
	}
	eval, err := g.Evaluate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, residualTable(eval))
	fmt.Fprintf(out, "total cost: %g\n", eval.Cost)

	if !c.Bool(flagJacobians) {
		return nil
	}
	lin, err := g.Linearize(ctx)
	if err != nil {
		return err
	}
	rows, cols := lin.Jacobian.Dims()
	fmt.Fprintf(out, "jacobian %dx%d:\n%v\n", rows, cols, mat.Formatted(lin.Jacobian, mat.Squeeze()))
	return nil
}

// residualTable renders one row per constraint with its whitened residual and cost.
func residualTable(eval *graph.Evaluation) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Constraint", "Type", "Residual", "Cost"})
	for i, r := range eval.Residuals {
		t.AppendRow(table.Row{
			i + 1,
			r.UUID.String(),
			r.Type,
			fmt.Sprintf("%v", r.Residual),
			fmt.Sprintf("%g", r.Cost()),
		})
	}
	return t.Render()
}

// kinematicsOf reads the current values of a state's five variables, given in position, yaw,
// linear velocity, yaw velocity, linear acceleration order.
func kinematicsOf(g *graph.Graph, ids []uuid.UUID) (variables.Kinematics2D, error) {
	values := make([][]float64, len(ids))
	for i, id := range ids {
		v, err := g.Values(id)
		if err != nil {
			return variables.Kinematics2D{}, err
		}
		values[i] = v
	}
	return variables.Kinematics2D{
		Position:           r2.Point{X: values[0][0], Y: values[0][1]},
		Yaw:                values[1][0],
		LinearVelocity:     r2.Point{X: values[2][0], Y: values[2][1]},
		YawVelocity:        values[3][0],
		LinearAcceleration: r2.Point{X: values[4][0], Y: values[4][1]},
	}, nil
}
