package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/script/interp"
	"cyberfarm.ai/internal/script/parser"
	"cyberfarm.ai/internal/sim/farm"
)

type RunOptions struct {
	MaxSteps int
	Quiet    bool
}

// RunReport is the JSON payload of `farmctl run`.
type RunReport struct {
	Events []farm.Event     `json:"events"`
	Steps  int              `json:"steps"`
	Result *farm.RunSummary `json:"result,omitempty"`
	Error  *CLIError        `json:"error,omitempty"`
	Farm   farm.Snapshot    `json:"farm"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run <script.py|->",
		Short: "Run a farm script to completion on a fresh farm",
		Long: `Run a farm script to completion on a fresh farm and print every event.

The script runs in automatic mode with the configured step and time limits.
Exits 1 if the script fails.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(rootOpts, opts, args[0], cmd)
		},
	}
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "override the step limit (0 = from tuning)")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "print only the outcome")
	return cmd
}

func runScript(rootOpts *RootOptions, opts *RunOptions, path string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	log := rootOpts.logger()

	tn, cats, err := loadConfig(rootOpts.ConfigDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "load configs", err)
	}
	code, err := readScript(cmd.InOrStdin(), path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read script", err)
	}

	f := farm.New(farm.ConfigFromTuning(tn), cats)
	f.BeginRun()
	report := RunReport{Events: []farm.Event{}}

	prog, err := parser.Parse(code)
	if err != nil {
		report.Error = parseDiagnostic(err)
		report.Farm = f.Snapshot()
		return finishRun(out, report)
	}

	iopts := interp.OptionsFromTuning(tn, false)
	if opts.MaxSteps > 0 {
		iopts.MaxSteps = opts.MaxSteps
	}
	in := interp.New(prog, f, iopts)
	log.Debug("run starting", "script", path, "max_steps", iopts.MaxSteps, "statements", len(prog.Body))

	for {
		ev, err := in.Step()
		if errors.Is(err, interp.ErrFinished) {
			summary := f.FinishRun()
			report.Result = &summary
			break
		}
		if err != nil {
			report.Error = runDiagnostic(err)
			break
		}
		report.Events = append(report.Events, ev)
		if !opts.Quiet {
			out.Textf("%s", describeEvent(ev))
		}
	}
	report.Steps = in.Steps()
	report.Farm = f.Snapshot()
	log.Debug("run finished", "steps", report.Steps, "events", len(report.Events), "failed", report.Error != nil)
	return finishRun(out, report)
}

func finishRun(out *OutputFormatter, report RunReport) error {
	if report.Error != nil {
		if out.JSON() {
			e := *report.Error
			e.Details = report
			_ = out.Error(e)
		} else {
			_ = out.Error(*report.Error)
		}
		return NewExitError(ExitFailure, report.Error.Message)
	}
	if out.JSON() {
		return out.Success(report)
	}
	r := report.Result
	line := fmt.Sprintf("done: steps=%d cost=%d gain=%d roi=%.3f gold=%d", report.Steps, r.Cost, r.Gain, r.ROI, report.Farm.Gold)
	if r.NewRecord {
		line += " (new record)"
	}
	return out.Success(line)
}

func describeEvent(ev farm.Event) string {
	if ev.Kind == farm.EventWait {
		return fmt.Sprintf("line %d: wait %.1fs gold=%d", ev.Line, ev.Seconds, ev.Gold)
	}
	crop := "empty"
	if ev.Cell != nil && !ev.Cell.Empty() {
		crop = fmt.Sprintf("%s %.0f%%", ev.Cell.Type, ev.Cell.Maturity*100)
	}
	return fmt.Sprintf("line %d: (%d,%d) %s gold=%d", ev.Line, ev.X, ev.Y, crop, ev.Gold)
}

func parseDiagnostic(err error) *CLIError {
	d := &CLIError{Code: protocol.ErrParse, Message: err.Error()}
	var perr *parser.Error
	if errors.As(err, &perr) {
		d.Line = perr.Line
		d.Message = perr.Msg
	}
	return d
}

func runDiagnostic(err error) *CLIError {
	var ierr *interp.Error
	if errors.As(err, &ierr) {
		return &CLIError{Code: ierr.Code, Message: ierr.Msg, Line: ierr.Line, Details: string(ierr.Category)}
	}
	return &CLIError{Code: protocol.ErrInternal, Message: err.Error()}
}
