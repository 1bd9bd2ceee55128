// Package protocol implements the chunk transfer wire format shared by the
// server dispatcher and the client coordinator.
//
// Exchanges on one connection:
//
//	server -> client  CATALOG <n>\n<n bytes of JSON {"name": size}>   (once, on accept)
//	client -> server  PING                                            (4 bytes)
//	server -> client  PONG                                            (4 bytes)
//	client -> server  GET <len>:<name> <offset> <length>\n
//	server -> client  OK <length>\n<length raw bytes>
//	                  | ERROR:<reason>\n
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	ProbeRequest  = "PING"
	ProbeResponse = "PONG"
	getCommand    = "GET "
	catalogHeader = "CATALOG"
	okTag         = "OK"
	errorTag      = "ERROR:"

	TokenSize      = 4
	MaxCatalogSize = 16 << 20
	MaxNameLength  = 4096
)

const (
	ReasonUnknownFile  = "unknown file"
	ReasonInvalidRange = "invalid range"
	ReasonBadRequest   = "bad request"
	ReasonUnavailable  = "file unavailable"
)

var errLineTooLong = errors.New("line too long")

type RequestKind int

const (
	RequestProbe RequestKind = iota + 1
	RequestChunk
)

func (k RequestKind) String() string {
	switch k {
	case RequestProbe:
		return "probe"
	case RequestChunk:
		return "chunk"
	default:
		return "invalid"
	}
}

type Request struct {
	Kind   RequestKind
	Name   string
	Offset int64
	Length int64
}

// readLine returns one \n-terminated line without the terminator. Lines
// longer than the reader's buffer are rejected.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", errLineTooLong
		}
		return "", err
	}
	return string(line[:len(line)-1]), nil
}

func WriteCatalog(w io.Writer, entries map[string]int64) error {
	if entries == nil {
		entries = map[string]int64{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if len(payload) > MaxCatalogSize {
		return fmt.Errorf("encode catalog: %d bytes exceeds limit of %d", len(payload), MaxCatalogSize)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d\n", catalogHeader, len(payload))
	buf.Write(payload)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return Fault("send catalog", err)
	}
	return nil
}

// ReadCatalog reads the catalog push sent right after accept. Anything other
// than a well-formed push is reported as ErrCatalogUnavailable.
func ReadCatalog(r *bufio.Reader) (map[string]int64, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCatalogUnavailable, err)
	}
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != catalogHeader {
		return nil, fmt.Errorf("%w: malformed header %q", ErrCatalogUnavailable, line)
	}
	size, err := strconv.Atoi(fields[1])
	if err != nil || size < 0 || size > MaxCatalogSize {
		return nil, fmt.Errorf("%w: bad payload size %q", ErrCatalogUnavailable, fields[1])
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read payload: %v", ErrCatalogUnavailable, err)
	}
	var entries map[string]int64
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrCatalogUnavailable, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrCatalogUnavailable)
	}
	for name, size := range entries {
		if size < 0 {
			return nil, fmt.Errorf("%w: negative size for %q", ErrCatalogUnavailable, name)
		}
	}
	return entries, nil
}

func WriteProbe(w io.Writer) error {
	_, err := io.WriteString(w, ProbeRequest)
	return err
}

func WriteProbeResponse(w io.Writer) error {
	_, err := io.WriteString(w, ProbeResponse)
	return err
}

func ReadProbeResponse(r io.Reader) error {
	var tok [TokenSize]byte
	if _, err := io.ReadFull(r, tok[:]); err != nil {
		return err
	}
	if string(tok[:]) != ProbeResponse {
		return fmt.Errorf("unexpected probe reply %q", tok[:])
	}
	return nil
}

// WriteChunkRequest frames the file name with an explicit byte length so
// names containing spaces, colons or newlines stay unambiguous.
func WriteChunkRequest(w io.Writer, name string, offset, length int64) error {
	var buf bytes.Buffer
	buf.WriteString(getCommand)
	buf.WriteString(strconv.Itoa(len(name)))
	buf.WriteByte(':')
	buf.WriteString(name)
	fmt.Fprintf(&buf, " %d %d\n", offset, length)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadRequest reads the next client request. A clean disconnect before the
// first byte returns io.EOF. Framing errors wrap ErrBadRequest; after one the
// stream position is unknown and the connection should be dropped.
func ReadRequest(r *bufio.Reader) (Request, error) {
	var tok [TokenSize]byte
	if _, err := io.ReadFull(r, tok[:]); err != nil {
		return Request{}, err
	}
	switch string(tok[:]) {
	case ProbeRequest:
		return Request{Kind: RequestProbe}, nil
	case getCommand:
	default:
		return Request{}, fmt.Errorf("%w: unknown command %q", ErrBadRequest, tok[:])
	}

	prefix, err := r.ReadSlice(':')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return Request{}, fmt.Errorf("%w: name length too long", ErrBadRequest)
		}
		return Request{}, err
	}
	nameLen, err := strconv.Atoi(string(prefix[:len(prefix)-1]))
	if err != nil || nameLen <= 0 || nameLen > MaxNameLength {
		return Request{}, fmt.Errorf("%w: bad name length %q", ErrBadRequest, prefix[:len(prefix)-1])
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Request{}, err
	}
	rest, err := readLine(r)
	if err != nil {
		if errors.Is(err, errLineTooLong) {
			return Request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return Request{}, err
	}
	fields := strings.Split(rest, " ")
	if len(fields) != 3 || fields[0] != "" {
		return Request{}, fmt.Errorf("%w: malformed range %q", ErrBadRequest, rest)
	}
	offset, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("%w: bad offset %q", ErrBadRequest, fields[1])
	}
	length, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("%w: bad length %q", ErrBadRequest, fields[2])
	}
	return Request{Kind: RequestChunk, Name: string(name), Offset: offset, Length: length}, nil
}

func WriteDataHeader(w io.Writer, length int64) error {
	_, err := fmt.Fprintf(w, "%s %d\n", okTag, length)
	return err
}

func WriteError(w io.Writer, reason string) error {
	reason = strings.NewReplacer("\r", " ", "\n", " ").Replace(reason)
	_, err := fmt.Fprintf(w, "%s%s\n", errorTag, reason)
	return err
}

// ReadResponseHeader returns the number of data bytes that follow, or a
// *RemoteError when the server answered with an error tag.
func ReadResponseHeader(r *bufio.Reader) (int64, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, err
	}
	if reason, ok := strings.CutPrefix(line, errorTag); ok {
		return 0, &RemoteError{Reason: reason}
	}
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != okTag {
		return 0, fmt.Errorf("malformed response header %q", line)
	}
	length, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || length < 0 {
		return 0, fmt.Errorf("malformed response length %q", fields[1])
	}
	return length, nil
}
