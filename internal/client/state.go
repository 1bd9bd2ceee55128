package client

import (
	"sync/atomic"
	"time"

	"github.com/tanq16/partfetch/internal/utils"
)

// DownloadState tracks one download attempt. Each part counter is written
// only by the goroutine fetching that part.
type DownloadState struct {
	ID       string
	FileName string
	Size     int64
	Attempt  int
	start    time.Time
	planned  []int64
	received []atomic.Int64
	done     atomic.Bool
}

type PartProgress struct {
	ID       int
	Received int64
	Length   int64
}

// Progress is a point-in-time copy of a DownloadState.
type Progress struct {
	ID       string
	FileName string
	Size     int64
	Received int64
	Attempt  int
	Elapsed  time.Duration
	Parts    []PartProgress
	Done     bool
}

type ProgressFunc func(Progress)

func newDownloadState(job *utils.DownloadJob, attempt int) *DownloadState {
	st := &DownloadState{
		ID:       job.ID,
		FileName: job.FileName,
		Size:     job.FileSize,
		Attempt:  attempt,
		start:    time.Now(),
		planned:  make([]int64, len(job.Chunks)),
		received: make([]atomic.Int64, len(job.Chunks)),
	}
	for i, c := range job.Chunks {
		st.planned[i] = c.Length()
	}
	return st
}

func (st *DownloadState) add(part int, n int64) {
	st.received[part].Add(n)
}

// complete reports whether every part received exactly its planned length.
func (st *DownloadState) complete() bool {
	for i := range st.planned {
		if st.received[i].Load() != st.planned[i] {
			return false
		}
	}
	return true
}

func (st *DownloadState) Snapshot() Progress {
	p := Progress{
		ID:       st.ID,
		FileName: st.FileName,
		Size:     st.Size,
		Attempt:  st.Attempt,
		Elapsed:  time.Since(st.start),
		Parts:    make([]PartProgress, len(st.planned)),
		Done:     st.done.Load(),
	}
	for i := range st.planned {
		got := st.received[i].Load()
		p.Parts[i] = PartProgress{ID: i, Received: got, Length: st.planned[i]}
		p.Received += got
	}
	return p
}
