package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cyberfarm.ai/internal/persistence/indexdb"
	"cyberfarm.ai/internal/session"
)

type RunsOptions struct {
	DataDir string
	DBPath  string
	Limit   int
}

type RunsResult struct {
	BestROI float64             `json:"best_roi"`
	Runs    []session.RunRecord `json:"runs"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{}
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from a server's run index",
		Long: `List the most recent runs recorded by a server in its SQLite run index,
newest first, together with the best ROI of any finished run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.DataDir, "data", "./data", "server data directory")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "sqlite index path (default: <data>/index/runs.sqlite)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list (1-500)")
	return cmd
}

func listRuns(rootOpts *RootOptions, opts *RunsOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	path := opts.DBPath
	if path == "" {
		path = filepath.Join(opts.DataDir, "index", "runs.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "open run index", err)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open run index", err)
	}
	defer idx.Close()

	ctx := cmd.Context()
	runs, err := idx.RecentRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "query runs", err)
	}
	best, err := idx.BestROI(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "query best roi", err)
	}
	rootOpts.logger().Debug("runs listed", "db", path, "count", len(runs))

	res := RunsResult{BestROI: best, Runs: runs}
	if out.JSON() {
		return out.Success(res)
	}
	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDED\tRUN\tMODE\tOUTCOME\tSTEPS\tROI\tERROR")
	for _, r := range runs {
		errCol := "-"
		if r.ErrorCode != "" {
			errCol = fmt.Sprintf("%s@%d", r.ErrorCode, r.ErrorLine)
		}
		ended := time.UnixMilli(r.EndedAt).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.3f\t%s\n", ended, r.RunID, r.Mode, r.Outcome, r.Steps, r.ROI, errCol)
	}
	fmt.Fprintf(tw, "best roi: %.3f\n", best)
	return tw.Flush()
}
