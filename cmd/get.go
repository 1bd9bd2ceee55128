package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/partfetch/internal/client"
	"github.com/tanq16/partfetch/internal/ledger"
	"github.com/tanq16/partfetch/internal/output"
	"github.com/tanq16/partfetch/internal/utils"
)

func newGetCmd() *cobra.Command {
	var cf clientFlags
	cmd := &cobra.Command{
		Use:   "get NAME [NAME...]",
		Short: "Download the named files once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := cf.apply(cmd.Flags(), cfg.Client)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			session, err := client.Dial(ctx, cc)
			if err != nil {
				return err
			}
			defer session.Close()
			var l ledger.Ledger
			if cc.LedgerPath != "" {
				if l, err = ledger.Open(cc.LedgerPath); err != nil {
					return err
				}
				defer l.Close()
			}

			outputMgr := output.NewManager()
			coord := client.NewCoordinator(session, cc)
			coord.OnProgress(outputMgr.Update)
			outputMgr.StartDisplay()

			log := utils.GetLogger("get")
			failed := 0
			for _, name := range args {
				outputMgr.Register(name)
				if err := session.EnsureAlive(ctx); err != nil {
					outputMgr.ReportError(name, err)
					failed++
					if ctx.Err() != nil {
						break
					}
					continue
				}
				if err := coord.Download(ctx, name); err != nil {
					outputMgr.ReportError(name, err)
					failed++
					if ctx.Err() != nil {
						break
					}
					continue
				}
				size, _ := session.Catalog().Lookup(name)
				outputMgr.Complete(name, fmt.Sprintf("Completed %s (%s)", name, utils.FormatBytes(uint64(size))))
				if l != nil {
					entry := ledger.Entry{Name: name, Size: size, Path: coord.OutputPath(name), CompletedAt: time.Now().UTC()}
					if err := l.Record(entry); err != nil {
						log.Warn().Err(err).Str("file", name).Msg("Failed to record download")
					}
				}
			}
			outputMgr.StopDisplay()
			outputMgr.ShowSummary()
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(args))
			}
			return nil
		},
	}
	cf.register(cmd.Flags())
	return cmd
}
