package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/partfetch/internal/client"
	"github.com/tanq16/partfetch/internal/ledger"
	"github.com/tanq16/partfetch/internal/output"
	"github.com/tanq16/partfetch/internal/scheduler"
)

func newFetchCmd() *cobra.Command {
	var (
		cf         clientFlags
		trigger    string
		interval   time.Duration
		ledgerPath string
		once       bool
	)
	cmd := &cobra.Command{
		Use:   "fetch [--trigger FILE] [--once]",
		Short: "Poll a trigger list and download every file it names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := cf.apply(cmd.Flags(), cfg.Client)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("trigger") {
				cc.TriggerFile = trigger
			}
			if cmd.Flags().Changed("interval") {
				cc.PollInterval = interval
			}
			if cmd.Flags().Changed("ledger") {
				cc.LedgerPath = ledgerPath
			}

			ctx := cmd.Context()
			l, err := ledger.Open(cc.LedgerPath)
			if err != nil {
				return err
			}
			defer l.Close()
			session, err := client.Dial(ctx, cc)
			if err != nil {
				return err
			}
			defer session.Close()

			outputMgr := output.NewManager()
			coord := client.NewCoordinator(session, cc)
			coord.OnProgress(outputMgr.Update)
			outputMgr.StartDisplay()
			defer func() {
				outputMgr.StopDisplay()
				outputMgr.ShowSummary()
			}()

			sched := scheduler.New(session, coord, l, cc.TriggerFile, cc.PollInterval, outputMgr)
			if once {
				_, err := sched.RunOnce(ctx)
				return err
			}
			return sched.Run(ctx)
		},
	}
	cf.register(cmd.Flags())
	cmd.Flags().StringVarP(&trigger, "trigger", "f", "input.txt", "File listing the names to download")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 5*time.Second, "Time between polls of the trigger file")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "Path of the completed-downloads ledger (in memory if empty)")
	cmd.Flags().BoolVar(&once, "once", false, "Run one poll cycle and exit")
	return cmd
}
