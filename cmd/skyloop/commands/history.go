package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jlzhang001/skyloop/pkg/config"
	"github.com/jlzhang001/skyloop/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit      int
		pruneOlder time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show journaled runs",
		Long: `List the runs recorded in the run journal, newest first. Given a run ID,
show the iterations of that run.

The journal is the SQLite database named by --journal or
$SKYLOOP_JOURNAL.`,
		Example: `  # Recent runs
  skyloop history --journal runs.db

  # Iterations of one run
  skyloop history 2f1d5c3e-8a0b-4c36-9e55-0f2c8d1b7a64

  # Drop runs older than thirty days
  skyloop history --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			store, err := openJournal(ctx, env)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no journal configured: use --journal or SKYLOOP_JOURNAL")
			}
			defer store.Close()

			if pruneOlder > 0 {
				n, err := store.PruneRuns(ctx, time.Now().Add(-pruneOlder))
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Pruned %d runs\n", n)
			}

			if len(args) == 1 {
				return showRun(ctx, store, args[0])
			}
			return listRuns(ctx, store, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().DurationVar(&pruneOlder, "prune", 0, "delete runs started longer ago than this")
	return cmd
}

func listRuns(ctx context.Context, store *stores.SQLiteStore, limit int) error {
	runs, err := store.ListRuns(ctx, limit, 0)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(runs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tPASSES\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Completed, r.Iterations, r.Out)
	}
	return w.Flush()
}

func showRun(ctx context.Context, store *stores.SQLiteStore, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	records, err := store.ListIterations(ctx, id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(struct {
			Run        interface{} `json:"run"`
			Iterations interface{} `json:"iterations"`
		}{run, records})
	}

	fmt.Printf("Run %s: %s (%d/%d passes)\n", run.ID, run.Status, run.Completed, run.Iterations)
	fmt.Printf("  in:  %s\n  out: %s\n", run.In, run.Out)
	if run.Error != "" {
		fmt.Printf("  error: %s\n", run.Error)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITER\tROLE\tCONFIG\tDURATION\tOUTPUT")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\tconf%d\t%s\t%s\n",
			r.Index, r.Role, r.ConfigIndex, r.Duration.Round(time.Second), r.Output)
	}
	return w.Flush()
}
