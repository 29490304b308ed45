package channel

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChannel implements ByteChannel over a single TCP connection. It is
// mostly useful for bridging two endpoints through a serial-over-IP server
// or for running the link across machines without a null-modem cable.
type TCPChannel struct {
	*StreamChannel

	conn     net.Conn
	listener net.Listener
}

// TCPChannelConfig configures a TCP channel
type TCPChannelConfig struct {
	Address     string        // "host:port" format
	IsServer    bool          // true = listen and accept one peer, false = connect
	DialTimeout time.Duration // Connect timeout (client only)
}

// NewTCPChannel creates a new TCP channel. In server mode it blocks until
// one peer connects or ctx is done.
func NewTCPChannel(ctx context.Context, config TCPChannelConfig) (*TCPChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	// Set defaults
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	if config.IsServer {
		return acceptTCP(ctx, config.Address)
	}

	dialer := net.Dialer{Timeout: config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Address, err)
	}
	return newTCPChannel(conn, nil), nil
}

// acceptTCP listens on address and waits for exactly one peer
func acceptTCP(ctx context.Context, address string) (*TCPChannel, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := listener.Accept()
		accepted <- result{conn, err}
	}()

	select {
	case r := <-accepted:
		if r.err != nil {
			listener.Close()
			return nil, fmt.Errorf("accept on %s: %w", address, r.err)
		}
		return newTCPChannel(r.conn, listener), nil
	case <-ctx.Done():
		listener.Close()
		return nil, ctx.Err()
	}
}

func newTCPChannel(conn net.Conn, listener net.Listener) *TCPChannel {
	tc := &TCPChannel{
		StreamChannel: NewStreamChannel("tcp:"+conn.RemoteAddr().String(), conn),
		conn:          conn,
		listener:      listener,
	}
	if listener != nil {
		tc.addCleanup(listener.Close)
	}
	return tc
}

// LocalAddr returns the local address of the connection
func (tc *TCPChannel) LocalAddr() net.Addr {
	return tc.conn.LocalAddr()
}

// RemoteAddr returns the remote address of the connection
func (tc *TCPChannel) RemoteAddr() net.Addr {
	return tc.conn.RemoteAddr()
}
