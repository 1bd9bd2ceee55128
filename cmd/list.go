package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/partfetch/internal/client"
	"github.com/tanq16/partfetch/internal/output"
	"github.com/tanq16/partfetch/internal/utils"
)

func newListCmd() *cobra.Command {
	var (
		cf     clientFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the files a server offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := cf.apply(cmd.Flags(), cfg.Client)
			if err != nil {
				return err
			}
			session, err := client.Dial(cmd.Context(), cc)
			if err != nil {
				return err
			}
			defer session.Close()
			cat := session.Catalog()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cat)
			}
			output.PrintHeader(fmt.Sprintf("%d files on %s", cat.Len(), cc.Address))
			for _, name := range cat.Names() {
				size, _ := cat.Lookup(name)
				fmt.Printf("  %s %s %s\n", output.StyleSymbols["bullet"], name, output.FDebug(utils.FormatBytes(uint64(size))))
			}
			return nil
		},
	}
	cf.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	return cmd
}
