package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCatalogRoundTrip(t *testing.T) {
	entries := map[string]int64{"a.bin": 1000000, "empty.txt": 0, "with space.iso": 42}
	var buf bytes.Buffer
	if err := WriteCatalog(&buf, entries); err != nil {
		t.Fatalf("WriteCatalog: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "CATALOG ") {
		t.Fatalf("push does not start with header: %q", buf.String())
	}

	got, err := ReadCatalog(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadCatalog: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for name, size := range entries {
		if got[name] != size {
			t.Errorf("entry %q = %d, want %d", name, got[name], size)
		}
	}
}

func TestReadCatalogUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty stream", ""},
		{"wrong header", "HELLO 2\n{}"},
		{"bad size", "CATALOG abc\n{}"},
		{"short payload", "CATALOG 20\n{}"},
		{"not json", "CATALOG 3\nabc"},
		{"json array", "CATALOG 2\n[]"},
		{"negative size", "CATALOG 9\n{\"a\": -1}"},
		{"oversized", "CATALOG 999999999\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCatalog(bufio.NewReader(strings.NewReader(tt.input)))
			if !errors.Is(err, ErrCatalogUnavailable) {
				t.Fatalf("err = %v, want ErrCatalogUnavailable", err)
			}
		})
	}
}

func TestChunkRequestRoundTrip(t *testing.T) {
	names := []string{"a.bin", "name with spaces.txt", "colon:inside", "line\nbreak", "ünïcode.dat"}
	for _, name := range names {
		var buf bytes.Buffer
		if err := WriteChunkRequest(&buf, name, 250000, 249999); err != nil {
			t.Fatalf("WriteChunkRequest: %v", err)
		}
		req, err := ReadRequest(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("ReadRequest(%q): %v", name, err)
		}
		if req.Kind != RequestChunk || req.Name != name || req.Offset != 250000 || req.Length != 249999 {
			t.Errorf("ReadRequest(%q) = %+v", name, req)
		}
		if buf.Len() != 0 {
			t.Errorf("%d bytes left unread after request for %q", buf.Len(), name)
		}
	}
}

func TestProbeFollowedByChunkRequest(t *testing.T) {
	var buf bytes.Buffer
	WriteProbe(&buf)
	WriteProbe(&buf)
	WriteChunkRequest(&buf, "a.bin", 0, 10)
	r := bufio.NewReader(&buf)

	for i := 0; i < 2; i++ {
		req, err := ReadRequest(r)
		if err != nil || req.Kind != RequestProbe {
			t.Fatalf("request %d = %+v, %v; want probe", i, req, err)
		}
	}
	req, err := ReadRequest(r)
	if err != nil || req.Kind != RequestChunk {
		t.Fatalf("third request = %+v, %v; want chunk", req, err)
	}
	if _, err := ReadRequest(r); err != io.EOF {
		t.Fatalf("after last request err = %v, want io.EOF", err)
	}
}

func TestReadRequestBadRequest(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown token", "LIST"},
		{"zero name length", "GET 0: 1 2\n"},
		{"non numeric name length", "GET x:a 1 2\n"},
		{"name too long", "GET 99999:a 1 2\n"},
		{"missing range", "GET 1:a\n"},
		{"extra field", "GET 1:a 1 2 3\n"},
		{"bad offset", "GET 1:a one 2\n"},
		{"bad length", "GET 1:a 1 two\n"},
		{"double space", "GET 1:a  1 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRequest(bufio.NewReader(strings.NewReader(tt.input)))
			if !errors.Is(err, ErrBadRequest) {
				t.Fatalf("err = %v, want ErrBadRequest", err)
			}
		})
	}
}

func TestResponseHeader(t *testing.T) {
	var buf bytes.Buffer
	WriteDataHeader(&buf, 0)
	WriteError(&buf, ReasonInvalidRange+": offset 10 length 5 exceeds size 12")
	WriteError(&buf, ReasonUnknownFile+": missing\nbin")
	WriteDataHeader(&buf, 1234)
	r := bufio.NewReader(&buf)

	n, err := ReadResponseHeader(r)
	if err != nil || n != 0 {
		t.Fatalf("zero-length header = %d, %v", n, err)
	}
	_, err = ReadResponseHeader(r)
	var remote *RemoteError
	if !errors.As(err, &remote) || !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want RemoteError wrapping ErrInvalidRange", err)
	}
	_, err = ReadResponseHeader(r)
	if !errors.Is(err, ErrUnknownFile) {
		t.Fatalf("err = %v, want ErrUnknownFile", err)
	}
	n, err = ReadResponseHeader(r)
	if err != nil || n != 1234 {
		t.Fatalf("header = %d, %v; want 1234", n, err)
	}
}

func TestProbeResponse(t *testing.T) {
	var buf bytes.Buffer
	WriteProbeResponse(&buf)
	if err := ReadProbeResponse(&buf); err != nil {
		t.Fatalf("ReadProbeResponse: %v", err)
	}
	if err := ReadProbeResponse(strings.NewReader("PON")); err == nil {
		t.Fatal("short reply accepted")
	}
	if err := ReadProbeResponse(strings.NewReader("OK 0")); err == nil {
		t.Fatal("wrong reply accepted")
	}
}

func TestFaultError(t *testing.T) {
	err := Fault("read chunk", io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrTransportFault) {
		t.Fatal("fault does not match ErrTransportFault")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("fault does not unwrap to cause")
	}
}
