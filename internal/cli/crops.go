package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cyberfarm.ai/internal/sim/catalogs"
)

type CropsResult struct {
	Digest string             `json:"digest"`
	Crops  []catalogs.CropDef `json:"crops"`
}

// NewCropsCommand creates the crops command.
func NewCropsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "crops",
		Short:         "List the crop catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			_, cats, err := loadConfig(rootOpts.ConfigDir)
			if err != nil {
				return WrapExitError(ExitCommandError, "load configs", err)
			}
			res := CropsResult{Digest: cats.Crops.Digest, Crops: cats.Sorted()}
			if out.JSON() {
				return out.Success(res)
			}
			tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CROP\tPLANT\tHARVEST\tGROW/S")
			for _, c := range res.Crops {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%g\n", c.ID, c.PlantCost, c.HarvestGain, c.GrowSpeed)
			}
			return tw.Flush()
		},
	}
}
