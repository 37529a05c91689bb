package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jlzhang001/skyloop/pkg/config"
	"github.com/jlzhang001/skyloop/pkg/engine"
	"github.com/jlzhang001/skyloop/pkg/invoke"
	"github.com/jlzhang001/skyloop/pkg/workspace"
)

func newPlanCommand() *cobra.Command {
	var (
		flags paramFlags
		keep  bool
	)

	cmd := &cobra.Command{
		Use:   "plan [IN [OUT [NITER]]]",
		Short: "Show the configuration each pass would use",
		Long: `Read the sub-model thresholds from the base configuration and compose
the configuration documents of every pass without running the map-maker.

For each pass the plan shows its role, the document it would read and the
overrides that become active at that pass.`,
		Example: `  # Preview a ten pass run with the default configuration
  skyloop plan --niter 10

  # Keep the composed documents for inspection
  skyloop plan --config '^dimmconfig_jsa_generic.lis' --niter 6 --keep`,
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.load(cmd, args)
			if err != nil {
				return err
			}
			return runPlan(cmd.Context(), cmd.Root().Version, params, keep)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the composed documents")
	return cmd
}

func runPlan(ctx context.Context, version string, params config.Params, keep bool) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	tel, err := newTelemetry(env, version)
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.WithoutCancel(ctx)) }()
	logger := tel.Logger

	params, err = params.Absolute()
	if err != nil {
		return err
	}

	ws, err := workspace.New(env.StarTemp)
	if err != nil {
		return err
	}
	cleanup := workspace.NewCoordinator(ws, keep, logger)
	defer func() {
		report := cleanup.Cleanup()
		if report.Retained {
			logger.Zerolog().Info().Str("workspace", report.Dir).Msg("Keeping composed documents")
		}
	}()

	adam, err := ws.SubDir("adam")
	if err != nil {
		return err
	}
	runner := &invoke.Runner{
		Dir:     ws.Dir(),
		Env:     map[string]string{"ADAM_USER": adam},
		Lists:   ws,
		Logger:  logger,
		Metrics: tel.Metrics,
		Tracer:  tel.Tracer,
	}
	intro := &invoke.ConfigEcho{Runner: runner, Command: env.ConfigEcho(), Defaults: env.MakeMapDefaults()}

	lc, err := engine.ReadLifecycle(ctx, intro, params.Config, params.LastMasking)
	if err != nil {
		return engine.NewInvocationError("read sub-model thresholds", err).
			WithCode(engine.ErrCodeIntrospection).
			WithTool("configecho")
	}

	steps, err := engine.Plan(lc, config.NewComposer(ws, params.Config), params.Iterations)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(steps)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITER\tROLE\tCONFIG\tNEW OVERRIDES")
	for _, s := range steps {
		doc := filepath.Base(s.Config)
		if !s.Created {
			doc += " (reused)"
		}
		var emitted []string
		for _, e := range s.Emitted {
			emitted = append(emitted, e.Key+"="+e.Value)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Index, s.Role, doc, strings.Join(emitted, ","))
	}
	return w.Flush()
}
