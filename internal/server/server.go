package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tanq16/partfetch/internal/catalog"
	"github.com/tanq16/partfetch/internal/config"
	"github.com/tanq16/partfetch/internal/protocol"
	"github.com/tanq16/partfetch/internal/utils"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Server answers catalog, probe and chunk requests for a fixed catalog.
type Server struct {
	cfg     config.ServerConfig
	catalog *catalog.Catalog
	push    []byte
	log     zerolog.Logger
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu      sync.Mutex
	active  map[string]*activeConn
	closing bool
	wg      sync.WaitGroup
}

type activeConn struct {
	conn     net.Conn
	remote   string
	since    time.Time
	requests atomic.Int64
}

type ConnInfo struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	Since    time.Time `json:"since"`
	Requests int64     `json:"requests"`
}

func New(cfg config.ServerConfig, cat *catalog.Catalog, logger zerolog.Logger) (*Server, error) {
	var push bytes.Buffer
	if err := protocol.WriteCatalog(&push, cat.Entries()); err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.AcceptRate > 0 {
		limit = rate.Limit(cfg.AcceptRate)
	}
	s := &Server{
		cfg:     cfg,
		catalog: cat,
		push:    push.Bytes(),
		log:     logger,
		limiter: rate.NewLimiter(limit, max(cfg.AcceptBurst, 1)),
		active:  make(map[string]*activeConn),
	}
	if cfg.MaxConns > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConns))
	}
	return s, nil
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or the listener
// fails. On return the listener and every active connection are closed and
// all handlers have exited.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Int("files", s.catalog.Len()).Int("maxConns", s.cfg.MaxConns).Msg("Server listening")
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
		s.closeActive()
	}()

	var serveErr error
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				break
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			s.release()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn().Err(err).Msg("Accept timed out, continuing")
				continue
			}
			serveErr = fmt.Errorf("accept: %w", err)
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.handleConn(conn)
		}()
	}
	ln.Close()
	s.closeActive()
	s.wg.Wait()
	s.log.Info().Msg("Server stopped")
	return serveErr
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *Server) register(id string, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.active[id] = &activeConn{conn: conn, remote: conn.RemoteAddr().String(), since: time.Now()}
	return true
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// closeActive unblocks every handler by closing its connection; handlers
// then observe a read error and exit through their own cleanup path.
func (s *Server) closeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for _, ac := range s.active {
		ac.conn.Close()
	}
}

func (s *Server) ActiveConnections() []ConnInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]ConnInfo, 0, len(s.active))
	for id, ac := range s.active {
		infos = append(infos, ConnInfo{ID: id, Remote: ac.remote, Since: ac.since, Requests: ac.requests.Load()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Since.Before(infos[j].Since) })
	return infos
}

// deadlineConn refreshes the write deadline before every write so a long
// chunk stream only fails when the peer stalls, not when it is merely large.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Write(p)
}

func (s *Server) handleConn(conn net.Conn) {
	id := uuid.NewString()
	log := s.log.With().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Logger()
	defer conn.Close()
	if !s.register(id, conn) {
		return
	}
	defer s.unregister(id)
	log.Debug().Msg("Connection accepted")

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	br := bufio.NewReader(conn)
	bw := bufio.NewWriterSize(&deadlineConn{Conn: conn, timeout: s.cfg.WriteTimeout}, utils.DefaultBufferSize)

	if _, err := bw.Write(s.push); err != nil {
		log.Debug().Err(err).Msg("Failed to send catalog")
		return
	}
	if err := bw.Flush(); err != nil {
		log.Debug().Err(err).Msg("Failed to send catalog")
		return
	}

	for {
		if s.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		req, err := protocol.ReadRequest(br)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Debug().Msg("Peer disconnected")
			case errors.Is(err, protocol.ErrBadRequest):
				log.Warn().Err(err).Msg("Malformed request, closing connection")
				protocol.WriteError(bw, protocol.ReasonBadRequest)
				bw.Flush()
			default:
				log.Debug().Err(err).Msg("Connection read ended")
			}
			return
		}
		s.mu.Lock()
		if ac, ok := s.active[id]; ok {
			ac.requests.Add(1)
		}
		s.mu.Unlock()

		if err := s.serveRequest(bw, req, log); err != nil {
			log.Debug().Err(err).Str("request", req.Kind.String()).Msg("Request failed, closing connection")
			return
		}
		if err := bw.Flush(); err != nil {
			log.Debug().Err(err).Msg("Flush failed, closing connection")
			return
		}
	}
}

// serveRequest answers one request. A returned error means the connection is
// no longer usable; validation failures are answered in-band and return nil.
func (s *Server) serveRequest(bw *bufio.Writer, req protocol.Request, log zerolog.Logger) error {
	switch req.Kind {
	case protocol.RequestProbe:
		return protocol.WriteProbeResponse(bw)
	case protocol.RequestChunk:
		return s.serveChunk(bw, req, log)
	default:
		return protocol.WriteError(bw, protocol.ReasonBadRequest)
	}
}

func (s *Server) serveChunk(bw *bufio.Writer, req protocol.Request, log zerolog.Logger) error {
	log = log.With().Str("file", req.Name).Int64("offset", req.Offset).Int64("length", req.Length).Logger()
	size, ok := s.catalog.Lookup(req.Name)
	path, safe := s.catalog.Path(s.cfg.Dir, req.Name)
	if !ok || !safe {
		log.Debug().Msg("Rejected chunk request for unknown file")
		return protocol.WriteError(bw, fmt.Sprintf("%s: %s", protocol.ReasonUnknownFile, req.Name))
	}
	if req.Offset < 0 || req.Length < 0 || req.Offset > size || req.Length > size-req.Offset {
		log.Debug().Int64("size", size).Msg("Rejected chunk request with invalid range")
		return protocol.WriteError(bw, fmt.Sprintf("%s: offset %d length %d outside size %d", protocol.ReasonInvalidRange, req.Offset, req.Length, size))
	}

	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("Cannot open backing file")
		return protocol.WriteError(bw, protocol.ReasonUnavailable)
	}
	defer f.Close()
	if info, err := f.Stat(); err != nil || info.Size() < req.Offset+req.Length {
		log.Error().Err(err).Msg("Backing file shorter than catalog entry")
		return protocol.WriteError(bw, protocol.ReasonUnavailable)
	}
	if _, err := f.Seek(req.Offset, io.SeekStart); err != nil {
		log.Error().Err(err).Msg("Seek failed")
		return protocol.WriteError(bw, protocol.ReasonUnavailable)
	}

	if err := protocol.WriteDataHeader(bw, req.Length); err != nil {
		return err
	}
	written, err := io.CopyN(bw, f, req.Length)
	if err != nil {
		return fmt.Errorf("streamed %d of %d bytes: %w", written, req.Length, err)
	}
	log.Debug().Msg("Served chunk")
	return nil
}
