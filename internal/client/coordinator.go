package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tanq16/partfetch/internal/config"
	"github.com/tanq16/partfetch/internal/protocol"
	"github.com/tanq16/partfetch/internal/utils"
	"golang.org/x/sync/errgroup"
)

const mergeSuffix = ".partfetch-merge"

// ErrAlreadyInFlight is returned wrapped together with protocol.ErrUnknownFile,
// so callers that only check for an unknown file still see the rejection.
var ErrAlreadyInFlight = errors.New("download already in flight")

// Coordinator turns a file name into a complete local copy by fetching its
// planned parts concurrently and merging them in part order.
type Coordinator struct {
	session      *Session
	dialer       *utils.ConnDialer
	cfg          config.ClientConfig
	log          zerolog.Logger
	progress     ProgressFunc
	progressTick time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewCoordinator(session *Session, cfg config.ClientConfig) *Coordinator {
	if cfg.Parts < 1 {
		cfg.Parts = utils.DefaultParts
	}
	return &Coordinator{
		session:      session,
		dialer:       session.Dialer(),
		cfg:          cfg,
		log:          utils.GetLogger("coordinator"),
		progressTick: 200 * time.Millisecond,
		inFlight:     make(map[string]struct{}),
	}
}

// OnProgress registers fn to receive snapshots while a download runs and a
// final one when each attempt ends.
func (c *Coordinator) OnProgress(fn ProgressFunc) {
	c.progress = fn
}

func (c *Coordinator) OutputPath(name string) string {
	return filepath.Join(c.cfg.OutputDir, name)
}

func (c *Coordinator) claim(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[name]; busy {
		return false
	}
	c.inFlight[name] = struct{}{}
	return true
}

func (c *Coordinator) release(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, name)
}

// Download fetches name into the output directory. The final file is only
// created after every part has arrived in full; a failed attempt leaves no
// final file and no temp files behind.
func (c *Coordinator) Download(ctx context.Context, name string) error {
	size, ok := c.session.Catalog().Lookup(name)
	if !ok || !utils.SafeName(name) {
		return fmt.Errorf("%w: %s", protocol.ErrUnknownFile, name)
	}
	if !c.claim(name) {
		return fmt.Errorf("%w: %w: %s", protocol.ErrUnknownFile, ErrAlreadyInFlight, name)
	}
	defer c.release(name)

	job := &utils.DownloadJob{
		ID:         uuid.NewString(),
		FileName:   name,
		FileSize:   size,
		OutputPath: c.OutputPath(name),
		Chunks:     utils.PlanChunks(size, c.cfg.Parts),
		StartTime:  time.Now(),
	}
	for _, chunk := range job.Chunks {
		job.Tasks = append(job.Tasks, utils.ChunkTask{
			FileName: name,
			Chunk:    chunk,
			TempPath: utils.TempPartPath(c.cfg.OutputDir, name, chunk.ID),
		})
	}
	log := c.log.With().Str("file", name).Str("download", job.ID).Logger()
	log.Info().Str("size", utils.FormatBytes(uint64(size))).Int("parts", len(job.Chunks)).Msg("Starting download")

	maxAttempts := max(c.cfg.Retry.Attempts, 1)
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Debug().Int("attempt", attempt).Int("maxAttempts", maxAttempts).Msg("Retrying download")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.Retry.Backoff):
			}
		}
		err = c.attempt(ctx, job, attempt)
		if err == nil {
			log.Info().Dur("elapsed", time.Since(job.StartTime)).Msg("Download completed")
			return nil
		}
		removeParts(job)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Download attempt failed")
		if errors.Is(err, protocol.ErrUnknownFile) || errors.Is(err, protocol.ErrInvalidRange) {
			break
		}
	}
	return fmt.Errorf("download %s: %w", name, err)
}

func (c *Coordinator) attempt(ctx context.Context, job *utils.DownloadJob, attempt int) error {
	if err := os.MkdirAll(utils.TempDir(c.cfg.OutputDir), 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %w", err)
	}
	state := newDownloadState(job, attempt)
	stopProgress := c.reportProgress(state)
	defer stopProgress()

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range job.Tasks {
		g.Go(func() error {
			return c.fetchPart(gctx, task, state)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if !state.complete() {
		return fmt.Errorf("%w: part byte counts do not match plan", protocol.ErrTransportFault)
	}
	if err := mergeParts(job); err != nil {
		return err
	}
	removeParts(job)
	state.done.Store(true)
	return nil
}

// reportProgress feeds snapshots to the progress callback until the returned
// stop function is called, which also delivers the final snapshot.
func (c *Coordinator) reportProgress(state *DownloadState) func() {
	fn := c.progress
	if fn == nil {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.progressTick)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn(state.Snapshot())
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		fn(state.Snapshot())
	}
}
