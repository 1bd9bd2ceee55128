package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/partfetch/internal/output"
	"github.com/tanq16/partfetch/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "clean [NAME]",
		Short: "Remove part files left behind in the output directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := cfg.Client.OutputDir
			if cmd.Flags().Changed("output-dir") {
				dir = outputDir
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			if err := utils.Clean(dir, name); err != nil {
				return err
			}
			output.PrintSuccess("Temporary files cleaned up")
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "downloads", "Directory the downloads were written to")
	return cmd
}
