package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/tanq16/partfetch/internal/protocol"
	"github.com/tanq16/partfetch/internal/utils"
)

// timedConn applies a fresh deadline to every read and write, so a transfer
// only fails when the peer goes quiet for longer than timeout.
type timedConn struct {
	net.Conn
	timeout time.Duration
}

func (c *timedConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Read(p)
}

func (c *timedConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Write(p)
}

// serverConn is one dialed connection with its catalog push already consumed.
type serverConn struct {
	conn    *timedConn
	r       *bufio.Reader
	entries map[string]int64
}

func openConn(ctx context.Context, dialer *utils.ConnDialer) (*serverConn, error) {
	conn, err := dialer.Dial(ctx)
	if err != nil {
		return nil, protocol.Fault("dial "+dialer.Address(), err)
	}
	tc := &timedConn{Conn: conn, timeout: dialer.IOTimeout()}
	r := bufio.NewReaderSize(tc, utils.DefaultBufferSize)
	entries, err := protocol.ReadCatalog(r)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &serverConn{conn: tc, r: r, entries: entries}, nil
}

func (sc *serverConn) Close() error {
	return sc.conn.Close()
}

// fetchRange requests [offset, offset+length) of name and copies the body to
// w, reporting each write to progress. Remote rejections come back as
// *protocol.RemoteError and leave the connection usable; anything else is a
// transport fault.
func (sc *serverConn) fetchRange(name string, offset, length int64, w io.Writer, progress func(int64)) (int64, error) {
	if err := protocol.WriteChunkRequest(sc.conn, name, offset, length); err != nil {
		return 0, protocol.Fault("send chunk request", err)
	}
	announced, err := protocol.ReadResponseHeader(sc.r)
	if err != nil {
		var remote *protocol.RemoteError
		if errors.As(err, &remote) {
			return 0, err
		}
		return 0, protocol.Fault("read chunk header", err)
	}
	if announced != length {
		return 0, protocol.Fault("read chunk header", fmt.Errorf("server announced %d bytes, requested %d", announced, length))
	}

	buffer := make([]byte, utils.DefaultBufferSize)
	var received int64
	for received < length {
		bytesRead, err := sc.r.Read(buffer[:min(int64(len(buffer)), length-received)])
		if bytesRead > 0 {
			if _, writeErr := w.Write(buffer[:bytesRead]); writeErr != nil {
				return received, fmt.Errorf("write chunk data: %w", writeErr)
			}
			received += int64(bytesRead)
			if progress != nil {
				progress(int64(bytesRead))
			}
		}
		if err != nil && received < length {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return received, protocol.Fault("read chunk", err)
		}
	}
	return received, nil
}
