package cli

import (
	"github.com/spf13/cobra"

	"cyberfarm.ai/internal/script/interp"
	"cyberfarm.ai/internal/script/parser"
)

// CheckResult is the JSON payload of `farmctl check`.
type CheckResult struct {
	Valid       bool       `json:"valid"`
	Diagnostics []CLIError `json:"diagnostics,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <script.py|->",
		Short: "Report unsupported syntax and unknown functions without running",
		Long: `Parse a farm script and report every construct that would stop a run:
syntax errors, unsupported statements and expressions, and unknown functions.
Farm rules (gold, occupancy, maturity) are only checked by run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
}

func runCheck(rootOpts *RootOptions, path string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	code, err := readScript(cmd.InOrStdin(), path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read script", err)
	}

	res := CheckResult{Valid: true}
	prog, err := parser.Parse(code)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, *parseDiagnostic(err))
	} else {
		for _, e := range interp.Check(prog) {
			res.Diagnostics = append(res.Diagnostics, CLIError{
				Code: e.Code, Message: e.Msg, Line: e.Line, Details: string(e.Category),
			})
		}
	}
	res.Valid = len(res.Diagnostics) == 0
	rootOpts.logger().Debug("check finished", "script", path, "diagnostics", len(res.Diagnostics))

	if out.JSON() {
		if err := out.Success(res); err != nil {
			return err
		}
	} else {
		for _, d := range res.Diagnostics {
			_ = out.Error(d)
		}
		if res.Valid {
			_ = out.Success("ok: no problems found")
		}
	}
	if !res.Valid {
		return NewExitError(ExitFailure, "script has problems")
	}
	return nil
}
