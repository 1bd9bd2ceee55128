package utils

import "time"

// DownloadChunk is one contiguous byte range of a file. A zero-length chunk
// has EndByte == StartByte-1.
type DownloadChunk struct {
	ID        int
	StartByte int64
	EndByte   int64
}

func (c DownloadChunk) Length() int64 {
	return c.EndByte - c.StartByte + 1
}

type ChunkTask struct {
	FileName string
	Chunk    DownloadChunk
	TempPath string
}

type DownloadJob struct {
	ID         string
	FileName   string
	FileSize   int64
	OutputPath string
	Chunks     []DownloadChunk
	Tasks      []ChunkTask
	StartTime  time.Time
}

type ConnConfig struct {
	Address        string
	DialTimeout    time.Duration
	IOTimeout      time.Duration
	KeepAlive      time.Duration
	HighThreadMode bool // larger socket buffers for many parallel parts
}
