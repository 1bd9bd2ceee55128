package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/partfetch/internal/ledger"
)

func TestPrintLedger(t *testing.T) {
	entries := []ledger.Entry{
		{Name: "a.bin", Size: 2048, Path: "/out/a.bin", CompletedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{Name: "b.bin", Size: 10, Path: "/out/b.bin", CompletedAt: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	if err := printLedger(&buf, entries, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"a.bin", "2.00 KB", "/out/b.bin"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := printLedger(&buf, entries, true); err != nil {
		t.Fatal(err)
	}
	var decoded []ledger.Entry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Name != "a.bin" || decoded[1].Size != 10 {
		t.Fatalf("decoded = %+v", decoded)
	}

	buf.Reset()
	printLedger(&buf, nil, false)
	if !strings.Contains(buf.String(), "No completed downloads") {
		t.Fatalf("empty output = %q", buf.String())
	}
}

func TestLedgerForgetAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Record(ledger.Entry{Name: "a.bin", Size: 1, CompletedAt: time.Now()})
	l.Record(ledger.Entry{Name: "b.bin", Size: 2, CompletedAt: time.Now()})
	l.Close()

	root := newLedgerCmd()
	root.SetArgs([]string{"forget", "--ledger", path, "a.bin"})
	if err := root.Execute(); err != nil {
		t.Fatalf("forget: %v", err)
	}

	l, err = ledger.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	entries, _ := l.List()
	if len(entries) != 1 || entries[0].Name != "b.bin" {
		t.Fatalf("entries after forget = %+v", entries)
	}
}
