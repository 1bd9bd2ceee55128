package cmd

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/tanq16/partfetch/internal/config"
)

// clientFlags are the connection flags shared by every client command.
type clientFlags struct {
	address   string
	outputDir string
	parts     int
	timeout   time.Duration
	retries   int
}

func (f *clientFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.address, "address", "a", "", "Server address (host:port)")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "Directory for downloaded files")
	fs.IntVarP(&f.parts, "parts", "p", 0, "Number of parallel parts per file (above 5 enables high-thread-mode)")
	fs.DurationVarP(&f.timeout, "timeout", "t", 0, "Per read/write timeout (eg. 30s, 2m)")
	fs.IntVar(&f.retries, "retries", 0, "Whole-file attempts before giving up")
}

// apply overlays flags that were set on the command line onto the loaded
// client config.
func (f *clientFlags) apply(fs *pflag.FlagSet, cc config.ClientConfig) (config.ClientConfig, error) {
	if fs.Changed("address") {
		cc.Address = f.address
	}
	if fs.Changed("output-dir") {
		cc.OutputDir = f.outputDir
	}
	if fs.Changed("parts") {
		cc.Parts = f.parts
	}
	if fs.Changed("timeout") {
		cc.IOTimeout = f.timeout
	}
	if fs.Changed("retries") {
		cc.Retry.Attempts = f.retries
	}
	return cc, cc.Validate()
}
