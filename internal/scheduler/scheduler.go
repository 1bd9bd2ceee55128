package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/partfetch/internal/catalog"
	"github.com/tanq16/partfetch/internal/ledger"
	"github.com/tanq16/partfetch/internal/output"
	"github.com/tanq16/partfetch/internal/utils"
)

type Session interface {
	EnsureAlive(ctx context.Context) error
	Catalog() *catalog.Catalog
}

type Downloader interface {
	Download(ctx context.Context, name string) error
	OutputPath(name string) string
}

// Scheduler polls a trigger list and downloads every listed file that the
// server advertises and the ledger has not seen, one file at a time.
type Scheduler struct {
	session      Session
	downloader   Downloader
	ledger       ledger.Ledger
	triggerFile  string
	pollInterval time.Duration
	outputMgr    *output.Manager
	log          zerolog.Logger
}

func New(session Session, downloader Downloader, l ledger.Ledger, triggerFile string, pollInterval time.Duration, outputMgr *output.Manager) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Scheduler{
		session:      session,
		downloader:   downloader,
		ledger:       l,
		triggerFile:  triggerFile,
		pollInterval: pollInterval,
		outputMgr:    outputMgr,
		log:          utils.GetLogger("scheduler"),
	}
}

// ReadTriggerList returns the whitespace-separated names in path, in order
// and without duplicates. A missing file is an empty list.
func ReadTriggerList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trigger list: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, name := range strings.Fields(string(data)) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// Run polls until ctx is cancelled. Cycle errors are logged and the next
// cycle tries again.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Str("trigger", s.triggerFile).Dur("interval", s.pollInterval).Msg("Polling for requested files")
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("Poll cycle failed")
		}
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single poll cycle and returns how many files it
// downloaded. The cycle stops early when the server cannot be reached.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	names, err := ReadTriggerList(s.triggerFile)
	if err != nil || len(names) == 0 {
		return 0, err
	}

	downloaded := 0
	var failures []error
	for _, name := range names {
		if ctx.Err() != nil {
			return downloaded, ctx.Err()
		}
		done, err := s.ledger.Has(name)
		if err != nil {
			return downloaded, fmt.Errorf("ledger lookup: %w", err)
		}
		if done {
			continue
		}
		// the server is checked before every file, and a reconnect refreshes the catalog
		if err := s.session.EnsureAlive(ctx); err != nil {
			if ctx.Err() != nil {
				return downloaded, ctx.Err()
			}
			return downloaded, errors.Join(append(failures, fmt.Errorf("server unreachable: %w", err))...)
		}
		size, ok := s.session.Catalog().Lookup(name)
		if !ok {
			s.log.Debug().Str("file", name).Msg("Requested file not in server catalog")
			continue
		}

		if s.outputMgr != nil {
			s.outputMgr.Register(name)
		}
		if err := s.downloader.Download(ctx, name); err != nil {
			if ctx.Err() != nil {
				return downloaded, ctx.Err()
			}
			s.log.Error().Err(err).Str("file", name).Msg("Download failed")
			if s.outputMgr != nil {
				s.outputMgr.ReportError(name, err)
			}
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
			continue
		}
		entry := ledger.Entry{Name: name, Size: size, Path: s.downloader.OutputPath(name), CompletedAt: time.Now().UTC()}
		if err := s.ledger.Record(entry); err != nil {
			s.log.Error().Err(err).Str("file", name).Msg("Failed to record download")
		}
		if s.outputMgr != nil {
			s.outputMgr.Complete(name, fmt.Sprintf("Completed %s (%s)", name, utils.FormatBytes(uint64(size))))
		}
		downloaded++
	}
	if len(failures) > 0 {
		return downloaded, fmt.Errorf("%d of %d downloads failed: %w", len(failures), len(failures)+downloaded, errors.Join(failures...))
	}
	return downloaded, nil
}
