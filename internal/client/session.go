package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/partfetch/internal/catalog"
	"github.com/tanq16/partfetch/internal/config"
	"github.com/tanq16/partfetch/internal/protocol"
	"github.com/tanq16/partfetch/internal/utils"
)

// Session owns the control connection to a server: the catalog it advertised
// and the liveness probe. All use of the connection is serialized.
type Session struct {
	dialer       *utils.ConnDialer
	probeTimeout time.Duration
	reconnect    config.RetryConfig
	log          zerolog.Logger

	mu      sync.Mutex
	conn    *serverConn
	catalog *catalog.Catalog
}

func Dial(ctx context.Context, cfg config.ClientConfig) (*Session, error) {
	s := &Session{
		dialer:       utils.NewConnDialer(cfg.ConnConfig()),
		probeTimeout: cfg.ProbeTimeout,
		reconnect:    cfg.Reconnect,
		log:          utils.GetLogger("session").With().Str("server", cfg.Address).Logger(),
	}
	if s.probeTimeout <= 0 {
		s.probeTimeout = utils.DefaultProbeTimeout
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// connect replaces the control connection and the cached catalog. Caller
// must hold s.mu or own s exclusively.
func (s *Session) connect(ctx context.Context) error {
	conn, err := openConn(ctx, s.dialer)
	if err != nil {
		return err
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.catalog = catalog.New(conn.entries)
	s.log.Info().Int("files", s.catalog.Len()).Msg("Connected to server")
	return nil
}

func (s *Session) Catalog() *catalog.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

func (s *Session) Dialer() *utils.ConnDialer {
	return s.dialer
}

// Ping sends one probe and waits at most the probe timeout for the reply.
func (s *Session) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ping()
}

func (s *Session) ping() error {
	if s.conn == nil {
		return protocol.Fault("probe", net.ErrClosed)
	}
	tc := s.conn.conn
	saved := tc.timeout
	tc.timeout = s.probeTimeout
	defer func() { tc.timeout = saved }()
	err := protocol.WriteProbe(s.conn.conn)
	if err == nil {
		err = protocol.ReadProbeResponse(s.conn.r)
	}
	if err != nil {
		// a late PONG would desync the stream, so the connection is dropped
		s.conn.Close()
		s.conn = nil
		return protocol.Fault("probe", err)
	}
	return nil
}

// EnsureAlive probes the control connection and redials when the probe
// fails, refreshing the catalog from the new connection.
func (s *Session) EnsureAlive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ping()
	if err == nil {
		return nil
	}
	s.log.Warn().Err(err).Msg("Server not responding, reconnecting")
	attempts := max(s.reconnect.Attempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = s.connect(ctx); err == nil {
			return nil
		}
		s.log.Debug().Err(err).Int("attempt", attempt).Int("maxAttempts", attempts).Msg("Reconnect failed")
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnect.Backoff):
		}
	}
	return fmt.Errorf("reconnect after %d attempts: %w", attempts, err)
}

// FetchRange reads a range over the control connection. It is the slow path
// used when dedicated part connections cannot be opened.
func (s *Session) FetchRange(name string, offset, length int64, w io.Writer, progress func(int64)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, protocol.Fault("fetch range", net.ErrClosed)
	}
	n, err := s.conn.fetchRange(name, offset, length, w, progress)
	if errors.Is(err, protocol.ErrTransportFault) {
		s.conn.Close()
		s.conn = nil
	}
	return n, err
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
