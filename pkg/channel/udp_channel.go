package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const maxDatagramSize = 65535

var errNoPeer = errors.New("no peer address available (no data received yet)")

// UDPChannel implements ByteChannel over UDP datagrams. Datagram
// boundaries are ignored: the link layer finds frames by their flags, and
// lost or reordered datagrams look like line noise to it.
type UDPChannel struct {
	*StreamChannel

	socket *udpSocket
}

// UDPChannelConfig configures a UDP channel
type UDPChannelConfig struct {
	Address  string // "host:port" format
	IsServer bool   // true = bind address and reply to the last peer, false = send to address
}

// NewUDPChannel creates a new UDP channel. Unlike TCP, a server does not
// wait for its peer: it cannot write until the first datagram arrives.
func NewUDPChannel(ctx context.Context, config UDPChannelConfig) (*UDPChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	addr, err := net.ResolveUDPAddr("udp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", config.Address, err)
	}

	socket := &udpSocket{
		isServer: config.IsServer,
		buf:      make([]byte, maxDatagramSize),
	}

	var lc net.ListenConfig
	if config.IsServer {
		// Server mode: bind to local address to receive from any client
		pc, err := lc.ListenPacket(ctx, "udp", addr.String())
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", config.Address, err)
		}
		socket.conn = pc.(*net.UDPConn)
	} else {
		// Client mode: bind to any local address and remember the remote one
		pc, err := lc.ListenPacket(ctx, "udp", ":0")
		if err != nil {
			return nil, fmt.Errorf("failed to create UDP socket: %w", err)
		}
		socket.conn = pc.(*net.UDPConn)
		socket.remote = addr
	}

	return &UDPChannel{
		StreamChannel: NewStreamChannel("udp:"+config.Address, socket),
		socket:        socket,
	}, nil
}

// LocalAddr returns the bound local address
func (uc *UDPChannel) LocalAddr() net.Addr {
	return uc.socket.conn.LocalAddr()
}

// RemoteAddr returns the configured remote address in client mode and the
// last peer heard from in server mode
func (uc *UDPChannel) RemoteAddr() net.Addr {
	if addr := uc.socket.destination(); addr != nil {
		return addr
	}
	return nil
}

// udpSocket presents a UDP socket as a byte stream to StreamChannel. Read
// is only called from the StreamChannel reader goroutine.
type udpSocket struct {
	conn     *net.UDPConn
	isServer bool
	remote   *net.UDPAddr

	peerMu sync.RWMutex
	peer   *net.UDPAddr

	buf     []byte
	pending []byte
}

func (u *udpSocket) Read(p []byte) (int, error) {
	for len(u.pending) == 0 {
		n, from, err := u.conn.ReadFromUDP(u.buf)
		if err != nil {
			return 0, err
		}
		if u.isServer {
			// Reply to the same peer
			u.peerMu.Lock()
			u.peer = from
			u.peerMu.Unlock()
		} else if !from.IP.Equal(u.remote.IP) || from.Port != u.remote.Port {
			continue
		}
		u.pending = u.buf[:n]
	}

	n := copy(p, u.pending)
	u.pending = u.pending[n:]
	return n, nil
}

func (u *udpSocket) destination() *net.UDPAddr {
	if !u.isServer {
		return u.remote
	}
	u.peerMu.RLock()
	defer u.peerMu.RUnlock()
	return u.peer
}

// Write sends p as a single datagram
func (u *udpSocket) Write(p []byte) (int, error) {
	dest := u.destination()
	if dest == nil {
		return 0, errNoPeer
	}
	return u.conn.WriteToUDP(p, dest)
}

func (u *udpSocket) SetWriteDeadline(t time.Time) error {
	return u.conn.SetWriteDeadline(t)
}

func (u *udpSocket) Close() error {
	return u.conn.Close()
}
