package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jlzhang001/skyloop/pkg/config"
	"github.com/jlzhang001/skyloop/pkg/engine"
	"github.com/jlzhang001/skyloop/pkg/invoke"
	"github.com/jlzhang001/skyloop/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var flags paramFlags

	cmd := &cobra.Command{
		Use:   "run [IN [OUT [NITER]]]",
		Short: "Make a map with an iterative sky estimate",
		Long: `Run the map-maker NITER times, feeding each pass the map made by the
previous one.

The first pass reads IN and exports the cleaned time-series and the
extinction model. Later passes read only the cleaned data. The final map
is written to OUT; with --itermap every pass's map is also stacked into a
cube.

Intermediate files live in a private working area under $STAR_TEMP (or
the system temporary directory) that is removed when the run ends,
unless --retain is given.`,
		Example: `  # Ten passes over a list of raw files
  skyloop run ^files.lis map.sdf 10

  # Use a configuration file and keep every pass in a cube
  skyloop run --in '^files.lis' --out map.sdf --niter 8 \
      --config '^dimmconfig_bright.lis' --itermap iters.sdf

  # Load parameters from a file and override one of them
  skyloop run -p field.yaml --retain`,
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.load(cmd, args)
			if err != nil {
				return err
			}
			return runLoop(cmd.Context(), cmd.Root().Version, params)
		},
	}

	flags.register(cmd)
	return cmd
}

func runLoop(ctx context.Context, version string, params config.Params) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	tel, err := newTelemetry(env, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()
	ctx = tel.WithContext(ctx)

	var journal engine.Journal
	store, err := openJournal(ctx, env)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		journal = store
	}

	logger := tel.Logger
	logger.Zerolog().Info().
		Str("in", params.In).
		Str("out", params.Out).
		Int("niter", params.Iterations).
		Msg("Starting run")

	var result *engine.Result
	report, err := engine.Execute(ctx, params, engine.SessionOptions{Root: env.StarTemp, Logger: logger},
		func(ctx context.Context, s *engine.Session) error {
			runner, err := newRunner(s, tel)
			if err != nil {
				return err
			}

			ctrl, err := engine.NewController(s, engine.Deps{
				MapMaker: &invoke.MakeMap{Runner: runner, Command: env.MakeMap()},
				Introspector: &invoke.ConfigEcho{
					Runner:   runner,
					Command:  env.ConfigEcho(),
					Defaults: env.MakeMapDefaults(),
				},
				Stacker: &invoke.Paste{Runner: runner, Command: env.Paste()},
				Journal: journal,
				Logger:  logger,
				Metrics: tel.Metrics,
				Tracer:  tel.Tracer,
			})
			if err != nil {
				return err
			}

			result, err = ctrl.Run(ctx)
			return err
		})

	if report.Retained {
		logger.Zerolog().Info().
			Str("workspace", report.Dir).
			Strs("ext", report.SideArtifacts).
			Msg("Retaining EXT models and temporary files")
	}
	if cerr := report.Err(); cerr != nil {
		logger.WithError(cerr).Warn("Cleanup incomplete")
	}
	if err != nil {
		return err
	}

	logger.Zerolog().Info().
		Str("run_id", result.RunID).
		Str("output", result.Output).
		Int("iterations", len(result.Records)).
		Msg("Run completed")

	if jsonOutput {
		return printJSON(result)
	}
	fmt.Println(result.Output)
	return nil
}

// newRunner returns the tool runner of a session. Tool transcripts go to
// the working area; ADAM_USER points at a private parameter directory so
// concurrent runs do not share tool state.
func newRunner(s *engine.Session, tel *telemetry.Telemetry) (*invoke.Runner, error) {
	logDir, err := s.Workspace.LogDir()
	if err != nil {
		return nil, engine.NewInternalError("create log directory", err).WithCode(engine.ErrCodeWorkspace)
	}
	adam, err := s.Workspace.SubDir("adam")
	if err != nil {
		return nil, engine.NewInternalError("create parameter directory", err).WithCode(engine.ErrCodeWorkspace)
	}
	return &invoke.Runner{
		Dir:     s.WorkDir,
		Env:     map[string]string{"ADAM_USER": adam},
		Lists:   s.Workspace,
		LogDir:  logDir,
		Logger:  s.Logger(),
		Metrics: tel.Metrics,
		Tracer:  tel.Tracer,
	}, nil
}
