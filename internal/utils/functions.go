package utils

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var sizeRegex = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([kKmMgGtT]?[iI]?[bB]?)\s*$`)

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	formatted := FormatBytes(uint64(bps))
	return formatted[:len(formatted)-1] + "B/s" // Slice off "B" and add "B/s"
}

// ParseSize parses sizes such as "512", "100B", "4KB", "1.5MiB" or "2GB".
// KB/MB/GB and KiB/MiB/GiB are both powers of 1024, matching how catalog
// tables have always been written.
func ParseSize(s string) (int64, error) {
	matches := sizeRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	val, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	multiplier := int64(1)
	switch strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(matches[2]), "b"), "i") {
	case "":
	case "k":
		multiplier = 1 << 10
	case "m":
		multiplier = 1 << 20
	case "g":
		multiplier = 1 << 30
	case "t":
		multiplier = 1 << 40
	default:
		return 0, fmt.Errorf("invalid size unit in %q", s)
	}
	size := val * float64(multiplier)
	if size >= math.MaxInt64 {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(size), nil
}

// SafeName reports whether name is a plain file name that cannot escape the
// directory it is joined to.
func SafeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

func TempDir(outputDir string) string {
	return filepath.Join(outputDir, TempDirName)
}

func TempPartPath(outputDir, name string, id int) string {
	return filepath.Join(TempDir(outputDir), fmt.Sprintf("%s.part%d", name, id))
}

// Clean removes part files left behind for name inside outputDir and drops
// the temp directory once it is empty. An empty name cleans every part file.
func Clean(outputDir, name string) error {
	tempDir := TempDir(outputDir)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	partPrefix := ""
	if name != "" {
		partPrefix = name + ".part"
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), partPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, file.Name())); err != nil {
			return err
		}
	}
	remainingFiles, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}
	if len(remainingFiles) == 0 {
		if err := os.Remove(tempDir); err != nil {
			return err
		}
	}
	return nil
}
