package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/partfetch/internal/config"
	"github.com/tanq16/partfetch/internal/utils"
)

var (
	configPath string
	debug      bool
	logFile    bool
	cfg        config.Config
)

var PartfetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "partfetch",
	Short:   "Partfetch serves files over TCP and fetches them in parallel parts",
	Version: PartfetchVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		if logFile {
			f, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			utils.SetLogOutput(f)
		}
		loaded := config.Default()
		if configPath != "" {
			var err error
			if loaded, err = config.LoadFromFile(configPath); err != nil {
				return err
			}
		}
		if err := loaded.LoadFromEnv(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	SilenceUsage: true,
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "C", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to "+utils.LogFile+" instead of stderr")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newLedgerCmd())
}
