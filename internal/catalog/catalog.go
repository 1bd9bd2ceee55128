package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tanq16/partfetch/internal/utils"
)

// Catalog maps file names to byte lengths. It is never modified after
// construction, so concurrent readers need no locking.
type Catalog struct {
	entries map[string]int64
}

func New(entries map[string]int64) *Catalog {
	copied := make(map[string]int64, len(entries))
	for name, size := range entries {
		copied[name] = size
	}
	return &Catalog{entries: copied}
}

func (c *Catalog) Lookup(name string) (int64, bool) {
	size, ok := c.entries[name]
	return size, ok
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns a copy of the mapping for serialization.
func (c *Catalog) Entries() map[string]int64 {
	copied := make(map[string]int64, len(c.entries))
	for name, size := range c.entries {
		copied[name] = size
	}
	return copied
}

func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.entries)
}

// Path resolves the backing file for name inside root. Only names that are
// in the catalog and cannot escape root resolve.
func (c *Catalog) Path(root, name string) (string, bool) {
	if _, ok := c.entries[name]; !ok || !utils.SafeName(name) {
		return "", false
	}
	return filepath.Join(root, name), true
}

// Scan records every regular, non-hidden file directly inside dir.
func Scan(dir string) (*Catalog, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	entries := make(map[string]int64)
	for _, file := range files {
		if !file.Type().IsRegular() || strings.HasPrefix(file.Name(), ".") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", file.Name(), err)
		}
		entries[file.Name()] = info.Size()
	}
	return &Catalog{entries: entries}, nil
}

// LoadTable reads a persisted "name size" table, one pair per line, where size
// may carry a unit suffix (e.g. "movie.mkv 700MB"). Blank lines and lines
// starting with # are ignored.
func LoadTable(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog table: %w", err)
	}
	defer f.Close()

	table := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected \"name size\", got %q", path, lineNo, line)
		}
		size, err := utils.ParseSize(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if _, dup := table[fields[0]]; dup {
			return nil, fmt.Errorf("%s:%d: duplicate entry %q", path, lineNo, fields[0])
		}
		table[fields[0]] = size
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog table: %w", err)
	}
	return table, nil
}

// Reconcile restricts the scanned catalog to the names listed in table. The
// on-disk size always wins; disagreements and missing files are only logged.
func Reconcile(table map[string]int64, scanned *Catalog, logger zerolog.Logger) *Catalog {
	entries := make(map[string]int64, len(table))
	for name, recorded := range table {
		actual, ok := scanned.Lookup(name)
		if !ok {
			logger.Warn().Str("file", name).Msg("Catalog table entry not found on disk, skipping")
			continue
		}
		if actual != recorded {
			logger.Warn().Str("file", name).Int64("recorded", recorded).Int64("actual", actual).Msg("Catalog table size mismatch, serving on-disk size")
		}
		entries[name] = actual
	}
	return &Catalog{entries: entries}
}

// Build scans dir and, when tablePath is set, reconciles against the table.
func Build(dir, tablePath string, logger zerolog.Logger) (*Catalog, error) {
	scanned, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	if tablePath == "" {
		return scanned, nil
	}
	table, err := LoadTable(tablePath)
	if err != nil {
		return nil, err
	}
	return Reconcile(table, scanned, logger), nil
}

func (c *Catalog) WriteSnapshot(path string) error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
