package utils

import (
	"context"
	"net"
	"syscall"
	"time"
)

// ConnDialer opens TCP connections to a single server address.
type ConnDialer struct {
	dialer *net.Dialer
	config ConnConfig
}

func NewConnDialer(cfg ConnConfig) *ConnDialer {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	if cfg.HighThreadMode {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd)
			})
		}
	}
	return &ConnDialer{dialer: dialer, config: cfg}
}

func (d *ConnDialer) Dial(ctx context.Context) (net.Conn, error) {
	return d.dialer.DialContext(ctx, "tcp", d.config.Address)
}

func (d *ConnDialer) Address() string {
	return d.config.Address
}

// IOTimeout is the per-read/per-write deadline applied to dialed connections.
func (d *ConnDialer) IOTimeout() time.Duration {
	return d.config.IOTimeout
}
