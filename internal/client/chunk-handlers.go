package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tanq16/partfetch/internal/protocol"
	"github.com/tanq16/partfetch/internal/utils"
)

// fetchPart downloads one planned range into its own temp file over its own
// connection. The temp file is truncated first, so every attempt restarts
// the part from its first byte.
func (c *Coordinator) fetchPart(ctx context.Context, task utils.ChunkTask, state *DownloadState) error {
	log := c.log.With().Str("file", task.FileName).Int("chunkId", task.Chunk.ID).Logger()
	tempFile, err := os.OpenFile(task.TempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error opening temp file: %w", err)
	}
	defer tempFile.Close()

	length := task.Chunk.Length()
	if length == 0 {
		log.Debug().Msg("Empty chunk, nothing to fetch")
		return nil
	}
	progress := func(n int64) { state.add(task.Chunk.ID, n) }

	conn, err := openConn(ctx, c.dialer)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.cfg.SharedFallback || c.session == nil || !fallbackWorthy(err) {
			return err
		}
		log.Warn().Err(err).Msg("Part connection failed, falling back to control connection")
		_, err = c.session.FetchRange(task.FileName, task.Chunk.StartByte, length, tempFile, progress)
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Debug().Int64("start", task.Chunk.StartByte).Int64("end", task.Chunk.EndByte).Msg("Requesting chunk")
	received, err := conn.fetchRange(task.FileName, task.Chunk.StartByte, length, tempFile, progress)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug().Err(err).Int64("received", received).Int64("expected", length).Msg("Chunk fetch failed")
		return fmt.Errorf("part %d: %w", task.Chunk.ID, err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("error syncing temp file: %w", err)
	}
	log.Debug().Int64("received", received).Msg("Chunk download completed")
	return nil
}

// fallbackWorthy reports whether a failed part connection may be retried over
// the control connection. A server at its connection cap accepts the dial
// into its backlog but never sends the catalog, which surfaces as
// ErrCatalogUnavailable rather than a transport fault.
func fallbackWorthy(err error) bool {
	return errors.Is(err, protocol.ErrTransportFault) || errors.Is(err, protocol.ErrCatalogUnavailable)
}

// mergeParts writes the part files into dest in ascending part ID through a
// sibling temp file, so dest only ever appears complete.
func mergeParts(job *utils.DownloadJob) error {
	log := utils.GetLogger("assembler").With().Str("file", job.FileName).Logger()
	byID := make(map[int]utils.ChunkTask, len(job.Tasks))
	for _, task := range job.Tasks {
		byID[task.Chunk.ID] = task
	}

	mergePath := job.OutputPath + mergeSuffix
	destFile, err := os.Create(mergePath)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMergeFault, err)
	}
	fail := func(err error) error {
		destFile.Close()
		os.Remove(mergePath)
		return err
	}

	var totalWritten int64
	for id := range len(job.Chunks) {
		task, ok := byID[id]
		if !ok {
			return fail(fmt.Errorf("%w: part %d missing from job", protocol.ErrMergeFault, id))
		}
		written, err := appendPart(destFile, task)
		if err != nil {
			return fail(err)
		}
		totalWritten += written
	}
	if totalWritten != job.FileSize {
		return fail(fmt.Errorf("%w: wrote %d bytes, expected %d", protocol.ErrMergeFault, totalWritten, job.FileSize))
	}
	if err := destFile.Sync(); err != nil {
		return fail(fmt.Errorf("%w: %v", protocol.ErrMergeFault, err))
	}
	if err := destFile.Close(); err != nil {
		os.Remove(mergePath)
		return fmt.Errorf("%w: %v", protocol.ErrMergeFault, err)
	}
	if err := os.Rename(mergePath, job.OutputPath); err != nil {
		os.Remove(mergePath)
		return fmt.Errorf("%w: %v", protocol.ErrMergeFault, err)
	}
	log.Debug().Int64("totalBytes", totalWritten).Str("outputFile", job.OutputPath).Msg("File assembly completed")
	return nil
}

func appendPart(dst io.Writer, task utils.ChunkTask) (int64, error) {
	tempFile, err := os.Open(task.TempPath)
	if err != nil {
		return 0, fmt.Errorf("%w: part %d: %v", protocol.ErrMergeFault, task.Chunk.ID, err)
	}
	defer tempFile.Close()
	info, err := tempFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: part %d: %v", protocol.ErrMergeFault, task.Chunk.ID, err)
	}
	if info.Size() != task.Chunk.Length() {
		return 0, fmt.Errorf("%w: part %d is %d bytes, planned %d", protocol.ErrMergeFault, task.Chunk.ID, info.Size(), task.Chunk.Length())
	}
	written, err := io.Copy(dst, tempFile)
	if err != nil {
		return written, fmt.Errorf("%w: copy part %d: %v", protocol.ErrMergeFault, task.Chunk.ID, err)
	}
	return written, nil
}

func removeParts(job *utils.DownloadJob) {
	for _, task := range job.Tasks {
		os.Remove(task.TempPath)
	}
	os.Remove(job.OutputPath + mergeSuffix)
}
