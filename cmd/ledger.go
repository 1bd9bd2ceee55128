package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/partfetch/internal/ledger"
	"github.com/tanq16/partfetch/internal/output"
	"github.com/tanq16/partfetch/internal/utils"
)

func newLedgerCmd() *cobra.Command {
	var ledgerPath string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or edit the record of completed downloads",
	}
	cmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "Path of the completed-downloads ledger")

	openLedger := func(cmd *cobra.Command) (ledger.Ledger, error) {
		path := cfg.Client.LedgerPath
		if cmd.Flags().Changed("ledger") {
			path = ledgerPath
		}
		if path == "" {
			return nil, errors.New("no ledger configured (set --ledger or client.ledger)")
		}
		return ledger.Open(path)
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show every recorded download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer l.Close()
			entries, err := l.List()
			if err != nil {
				return err
			}
			return printLedger(os.Stdout, entries, asJSON)
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Print the entries as JSON")

	forgetCmd := &cobra.Command{
		Use:   "forget NAME [NAME...]",
		Short: "Drop names from the ledger so the next poll downloads them again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer l.Close()
			for _, name := range args {
				if err := l.Forget(name); err != nil {
					return fmt.Errorf("forget %s: %w", name, err)
				}
				output.PrintSuccess("Forgot " + name)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, forgetCmd)
	return cmd
}

func printLedger(w io.Writer, entries []ledger.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, output.FDebug("No completed downloads recorded"))
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  %s %s %s %s\n", output.StyleSymbols["bullet"], e.Name,
			output.FDebug(utils.FormatBytes(uint64(e.Size))),
			output.FStream(e.CompletedAt.Local().Format("2006-01-02 15:04:05")+" "+e.Path))
	}
	return nil
}
