package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/partfetch/internal/client"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		current, total int64
		want           string
	}{
		{0, 100, "  0.0%"},
		{50, 100, " 50.0%"},
		{150, 100, "100.0%"},
		{0, 0, "100.0%"},
	}
	for _, tt := range tests {
		got := ProgressBar(tt.current, tt.total, 10)
		if !strings.HasSuffix(got, tt.want) {
			t.Errorf("ProgressBar(%d, %d) = %q, want suffix %q", tt.current, tt.total, got, tt.want)
		}
	}
}

func TestManagerNonInteractive(t *testing.T) {
	var buf bytes.Buffer
	m := NewManagerTo(&buf)
	m.StartDisplay()
	m.Register("a.bin")
	m.Register("b.bin")
	m.Update(client.Progress{FileName: "a.bin", Size: 100, Received: 50, Attempt: 1})
	m.Complete("a.bin", "")
	m.ReportError("b.bin", errors.New("transport fault"))
	m.StopDisplay()
	m.ShowSummary()

	out := buf.String()
	for _, want := range []string{"Completed a.bin", "Failed b.bin", "Completed 1 of 2", "Failed 1 of 2", "transport fault"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("non-interactive output contains cursor control")
	}
}

func TestManagerRender(t *testing.T) {
	m := NewManagerTo(&bytes.Buffer{})
	m.Register("done.bin")
	m.Complete("done.bin", "")
	m.Register("a.bin")
	m.Update(client.Progress{
		FileName: "a.bin",
		Size:     200,
		Received: 150,
		Attempt:  2,
		Elapsed:  time.Second,
		Parts: []client.PartProgress{
			{ID: 0, Received: 100, Length: 100},
			{ID: 1, Received: 50, Length: 100},
		},
	})

	lines := m.render(100)
	// finished line, status line, two part bars, totals line
	if len(lines) != 5 {
		t.Fatalf("render returned %d lines:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if !strings.Contains(lines[1], "attempt 2") {
		t.Errorf("status line = %q", lines[1])
	}
	if !strings.Contains(lines[3], "part 1") || !strings.Contains(lines[3], "50.0%") {
		t.Errorf("part line = %q", lines[3])
	}

	short := m.render(4)
	if len(short) != 4 || !strings.Contains(short[0], "a.bin") {
		t.Fatalf("finished downloads not dropped first: %v", short)
	}
}

func TestManagerIgnoresUnknownAndFinished(t *testing.T) {
	m := NewManagerTo(&bytes.Buffer{})
	m.Update(client.Progress{FileName: "ghost.bin"})
	m.Register("a.bin")
	m.Complete("a.bin", "")
	m.Update(client.Progress{FileName: "a.bin", Attempt: 1})
	if success, failed := m.Counts(); success != 1 || failed != 0 {
		t.Fatalf("Counts = %d, %d", success, failed)
	}
	if len(m.render(100)) != 1 {
		t.Fatal("progress revived a finished download")
	}
}
