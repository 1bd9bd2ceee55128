package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tanq16/partfetch/internal/client"
	"github.com/tanq16/partfetch/internal/utils"
)

type downloadOutput struct {
	Name        string
	Status      string
	Message     string
	Progress    client.Progress
	HasProgress bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	Name  string
	Error error
	Time  time.Time
}

// Manager renders one status line per download, with a progress bar per
// part while the download runs. On a terminal the block is redrawn in place;
// otherwise only completions and failures are printed.
type Manager struct {
	out         io.Writer
	interactive bool
	outputs     map[string]*downloadOutput
	mutex       sync.RWMutex
	numLines    int
	count       int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
	stopOnce    sync.Once
}

func NewManager() *Manager {
	m := NewManagerTo(os.Stdout)
	m.interactive = isTerminal(os.Stdout)
	return m
}

// NewManagerTo returns a non-interactive manager writing to w.
func NewManagerTo(w io.Writer) *Manager {
	return &Manager{
		out:         w,
		outputs:     make(map[string]*downloadOutput),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[name]; exists {
		info.Status = "pending"
		info.Error = nil
		info.HasProgress = false
		info.StartTime = time.Now()
		return
	}
	m.count++
	m.outputs[name] = &downloadOutput{
		Name:        name,
		Status:      "pending",
		Message:     "Waiting for server",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.count,
	}
}

// Update is a client.ProgressFunc.
func (m *Manager) Update(p client.Progress) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[p.FileName]
	if !exists || info.Status == "success" || info.Status == "error" {
		return
	}
	info.Status = "active"
	info.Message = fmt.Sprintf("Downloading %s (attempt %d)", p.FileName, p.Attempt)
	info.Progress = p
	info.HasProgress = true
	info.LastUpdated = time.Now()
}

func (m *Manager) Complete(name, message string) {
	m.mutex.Lock()
	info, exists := m.outputs[name]
	if !exists {
		m.mutex.Unlock()
		return
	}
	if message == "" {
		message = fmt.Sprintf("Completed %s", name)
	}
	info.Message = message
	info.Status = "success"
	info.LastUpdated = time.Now()
	line := m.statusLine(info)
	m.mutex.Unlock()
	if !m.interactive {
		fmt.Fprintln(m.out, line)
	}
}

func (m *Manager) ReportError(name string, err error) {
	m.mutex.Lock()
	info, exists := m.outputs[name]
	if !exists {
		m.mutex.Unlock()
		return
	}
	info.Status = "error"
	info.Message = fmt.Sprintf("Failed %s", name)
	info.Error = err
	info.LastUpdated = time.Now()
	m.errors = append(m.errors, ErrorReport{Name: name, Error: err, Time: time.Now()})
	line := m.statusLine(info)
	m.mutex.Unlock()
	if !m.interactive {
		fmt.Fprintln(m.out, line)
	}
}

func (m *Manager) getStatusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "active":
		return warningStyle.Render(StyleSymbols["pending"])
	default:
		return pendingStyle.Render(StyleSymbols["pending"])
	}
}

func (m *Manager) statusLine(info *downloadOutput) string {
	elapsed := time.Since(info.StartTime).Round(time.Second)
	if info.Status == "success" || info.Status == "error" {
		elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
	}
	var styled string
	switch info.Status {
	case "success":
		styled = successStyle.Render(info.Message)
	case "error":
		styled = errorStyle.Render(info.Message)
	default:
		styled = pendingStyle.Render(info.Message)
	}
	return fmt.Sprintf("  %s %s %s", m.getStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styled)
}

func partLines(p client.Progress) []string {
	elapsed := p.Elapsed.Seconds()
	lines := make([]string, 0, len(p.Parts)+1)
	for _, part := range p.Parts {
		lines = append(lines, fmt.Sprintf("      %s %s part %d %s %s",
			debugStyle.Render(ProgressBar(part.Received, part.Length, 30)),
			StyleSymbols["bullet"], part.ID, StyleSymbols["bullet"],
			streamStyle.Render(utils.FormatBytes(uint64(part.Received))+" / "+utils.FormatBytes(uint64(part.Length)))))
	}
	lines = append(lines, fmt.Sprintf("      %s %s %s",
		streamStyle.Render(utils.FormatBytes(uint64(p.Received))+" / "+utils.FormatBytes(uint64(p.Size))),
		StyleSymbols["bullet"], streamStyle.Render(utils.FormatSpeed(p.Received, elapsed))))
	return lines
}

// render builds the display block, keeping at most maxLines lines and
// dropping the oldest finished downloads first.
func (m *Manager) render(maxLines int) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	all := make([]*downloadOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })

	var running, finished []string
	for _, info := range all {
		if info.Status == "success" || info.Status == "error" {
			finished = append(finished, m.statusLine(info))
			continue
		}
		running = append(running, m.statusLine(info))
		if info.HasProgress {
			running = append(running, partLines(info.Progress)...)
		}
	}
	if room := maxLines - len(running); len(finished) > room {
		finished = finished[len(finished)-max(room, 0):]
	}
	lines := append(finished, running...)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

func (m *Manager) updateDisplay() {
	lines := m.render(terminalHeight() - 3)
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	for _, line := range lines {
		fmt.Fprintln(m.out, line)
	}
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	if !m.interactive {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() { close(m.doneCh) })
	m.displayWg.Wait()
}

func (m *Manager) Counts() (success, failed int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failed++
		}
	}
	return success, failed
}

func (m *Manager) ShowSummary() {
	success, failures := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+summaryStyle.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	if len(m.errors) > 0 {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
		for i, report := range m.errors {
			fmt.Fprintf(m.out, "    %s %s %s\n",
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
				errorStyle.Render(fmt.Sprintf("%s: %v", report.Name, report.Error)))
		}
	}
	fmt.Fprintln(m.out)
}
