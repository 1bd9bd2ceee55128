package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/partfetch/internal/catalog"
	"github.com/tanq16/partfetch/internal/server"
	"github.com/tanq16/partfetch/internal/utils"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		listen       string
		dir          string
		table        string
		snapshot     string
		maxConns     int
		acceptRate   float64
		statusListen string
	)
	cmd := &cobra.Command{
		Use:   "serve [--dir DIR] [--listen ADDR]",
		Short: "Serve the files in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := cfg.Server
			flags := cmd.Flags()
			if flags.Changed("listen") {
				sc.Listen = listen
			}
			if flags.Changed("dir") {
				sc.Dir = dir
			}
			if flags.Changed("table") {
				sc.Table = table
			}
			if flags.Changed("snapshot") {
				sc.Snapshot = snapshot
			}
			if flags.Changed("max-conns") {
				sc.MaxConns = maxConns
			}
			if flags.Changed("accept-rate") {
				sc.AcceptRate = acceptRate
			}
			if flags.Changed("status") {
				sc.StatusListen = statusListen
			}
			if err := sc.Validate(); err != nil {
				return err
			}

			log := utils.GetLogger("server")
			cat, err := catalog.Build(sc.Dir, sc.Table, log)
			if err != nil {
				return err
			}
			if sc.Snapshot != "" {
				if err := cat.WriteSnapshot(sc.Snapshot); err != nil {
					return err
				}
				log.Debug().Str("path", sc.Snapshot).Msg("Catalog snapshot written")
			}
			srv, err := server.New(sc, cat, log)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.ListenAndServe(ctx) })
			if sc.StatusListen != "" {
				g.Go(func() error { return srv.ServeStatus(ctx, sc.StatusListen) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", utils.DefaultAddress, "Address to listen on")
	cmd.Flags().StringVarP(&dir, "dir", "d", "server_files", "Directory of files to serve")
	cmd.Flags().StringVar(&table, "table", "", "Optional \"name size\" table restricting the served files")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Write the catalog as JSON to this path on startup")
	cmd.Flags().IntVar(&maxConns, "max-conns", 64, "Maximum concurrent connections (0 for no limit)")
	cmd.Flags().Float64Var(&acceptRate, "accept-rate", 0, "Maximum new connections per second (0 for no limit)")
	cmd.Flags().StringVar(&statusListen, "status", "", "Address for the HTTP status endpoint (disabled if empty)")
	return cmd
}
