package catalog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, size), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.bin"), 1000)
	writeFile(t, filepath.Join(dir, "empty.txt"), 0)
	writeFile(t, filepath.Join(dir, ".hidden"), 10)
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	cat, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (%v)", cat.Len(), cat.Names())
	}
	if size, ok := cat.Lookup("a.bin"); !ok || size != 1000 {
		t.Errorf("Lookup(a.bin) = %d, %v", size, ok)
	}
	if size, ok := cat.Lookup("empty.txt"); !ok || size != 0 {
		t.Errorf("Lookup(empty.txt) = %d, %v", size, ok)
	}
	if _, ok := cat.Lookup("missing.bin"); ok {
		t.Error("Lookup(missing.bin) succeeded")
	}
}

func TestScanMissingDir(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Scan of missing dir succeeded")
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	content := "# served files\nmovie.mkv 700MB\n\nnotes.txt 12\nimage.iso 1.5GB\nsmall.bin 4KiB\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	want := map[string]int64{
		"movie.mkv": 700 * 1024 * 1024,
		"notes.txt": 12,
		"image.iso": 1536 * 1024 * 1024,
		"small.bin": 4096,
	}
	for name, size := range want {
		if table[name] != size {
			t.Errorf("table[%q] = %d, want %d", name, table[name], size)
		}
	}
}

func TestLoadTableErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"missing size", "movie.mkv\n", ":1:"},
		{"bad unit", "ok.bin 1MB\nmovie.mkv 7XB\n", ":2:"},
		{"duplicate", "a 1\na 2\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.txt")
			os.WriteFile(path, []byte(tt.content), 0644)
			_, err := LoadTable(path)
			if err == nil || !strings.Contains(err.Error(), tt.errPart) {
				t.Fatalf("err = %v, want mention of %q", err, tt.errPart)
			}
		})
	}
}

func TestReconcilePrefersDiskSize(t *testing.T) {
	scanned := New(map[string]int64{"a.bin": 1000, "b.bin": 20, "extra.bin": 5})
	table := map[string]int64{"a.bin": 1024 * 1024, "b.bin": 20, "gone.bin": 7}

	var logs bytes.Buffer
	cat := Reconcile(table, scanned, zerolog.New(&logs))

	if cat.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (%v)", cat.Len(), cat.Names())
	}
	if size, _ := cat.Lookup("a.bin"); size != 1000 {
		t.Errorf("a.bin size = %d, want on-disk 1000", size)
	}
	if _, ok := cat.Lookup("extra.bin"); ok {
		t.Error("file not in table was served")
	}
	if _, ok := cat.Lookup("gone.bin"); ok {
		t.Error("file missing on disk was served")
	}
	if !strings.Contains(logs.String(), "size mismatch") {
		t.Errorf("no mismatch warning logged: %s", logs.String())
	}
}

func TestBuildWithTable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.bin"), 100)
	writeFile(t, filepath.Join(dir, "b.bin"), 200)
	table := filepath.Join(t.TempDir(), "data.txt")
	os.WriteFile(table, []byte("a.bin 1MB\n"), 0644)

	cat, err := Build(dir, table, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if names := cat.Names(); len(names) != 1 || names[0] != "a.bin" {
		t.Fatalf("Names = %v, want [a.bin]", names)
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	src := map[string]int64{"a.bin": 1}
	cat := New(src)
	src["a.bin"] = 99
	src["b.bin"] = 2
	entries := cat.Entries()
	entries["c.bin"] = 3

	if size, _ := cat.Lookup("a.bin"); size != 1 {
		t.Errorf("catalog changed through constructor input: %d", size)
	}
	if cat.Len() != 1 {
		t.Errorf("catalog changed through Entries copy: %v", cat.Names())
	}
}

func TestPath(t *testing.T) {
	cat := New(map[string]int64{"a.bin": 1, "../etc/passwd": 1})
	if p, ok := cat.Path("/srv", "a.bin"); !ok || p != filepath.Join("/srv", "a.bin") {
		t.Errorf("Path(a.bin) = %q, %v", p, ok)
	}
	if _, ok := cat.Path("/srv", "../etc/passwd"); ok {
		t.Error("traversal name resolved")
	}
	if _, ok := cat.Path("/srv", "missing"); ok {
		t.Error("unknown name resolved")
	}
}

func TestWriteSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files.json")
	cat := New(map[string]int64{"a.bin": 1000})
	if err := cat.WriteSnapshot(path); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	data, _ := os.ReadFile(path)
	var got map[string]int64
	if err := json.Unmarshal(data, &got); err != nil || got["a.bin"] != 1000 {
		t.Fatalf("snapshot = %s, %v", data, err)
	}
}
