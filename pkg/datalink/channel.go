package datalink

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"avaneesh/datalink-go/pkg/channel"
)

// EndpointKind identifies the medium behind a channel id
type EndpointKind int

const (
	EndpointSerial EndpointKind = iota
	EndpointTCP
	EndpointTCPListen
	EndpointQUIC
	EndpointQUICListen
	EndpointUDP
	EndpointUDPListen
)

// String returns string representation of EndpointKind
func (k EndpointKind) String() string {
	switch k {
	case EndpointSerial:
		return "serial"
	case EndpointTCP:
		return "tcp"
	case EndpointTCPListen:
		return "tcp-listen"
	case EndpointQUIC:
		return "quic"
	case EndpointQUICListen:
		return "quic-listen"
	case EndpointUDP:
		return "udp"
	case EndpointUDPListen:
		return "udp-listen"
	default:
		return "unknown"
	}
}

// Endpoint is a parsed channel id
type Endpoint struct {
	Kind    EndpointKind
	Address string // device path or host:port
}

var schemes = map[string]EndpointKind{
	"tcp://":         EndpointTCP,
	"tcp-listen://":  EndpointTCPListen,
	"quic://":        EndpointQUIC,
	"quic-listen://": EndpointQUICListen,
	"udp://":         EndpointUDP,
	"udp-listen://":  EndpointUDPListen,
}

// ParseChannelID resolves a channel id. A bare port number N names the
// platform's Nth serial port (/dev/ttyS<N>, or COM<N> on Windows).
func ParseChannelID(id string) (Endpoint, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Endpoint{}, fmt.Errorf("empty channel id")
	}

	for prefix, kind := range schemes {
		if strings.HasPrefix(id, prefix) {
			addr := strings.TrimPrefix(id, prefix)
			if addr == "" {
				return Endpoint{}, fmt.Errorf("channel id %q has no address", id)
			}
			return Endpoint{Kind: kind, Address: addr}, nil
		}
	}

	if n, err := strconv.Atoi(id); err == nil {
		if n < 0 {
			return Endpoint{}, fmt.Errorf("invalid port number %d", n)
		}
		if runtime.GOOS == "windows" {
			return Endpoint{Kind: EndpointSerial, Address: fmt.Sprintf("COM%d", n)}, nil
		}
		return Endpoint{Kind: EndpointSerial, Address: fmt.Sprintf("/dev/ttyS%d", n)}, nil
	}

	if channel.IsSerialDevice(id) {
		return Endpoint{Kind: EndpointSerial, Address: id}, nil
	}
	return Endpoint{}, fmt.Errorf("unrecognized channel id %q", id)
}

// ChannelOptions tunes the channel opened for an id. Zero values select
// the defaults.
type ChannelOptions struct {
	BaudRate        int           // Serial only
	ReadTimeout     time.Duration // Serial only
	DialTimeout     time.Duration // TCP only
	QUICIdleTimeout time.Duration // QUIC only
	Fault           channel.FaultConfig
}

// OpenChannel opens the channel named by id with default options
func OpenChannel(ctx context.Context, id string) (channel.ByteChannel, error) {
	return OpenChannelWithOptions(ctx, id, ChannelOptions{})
}

// OpenChannelWithOptions opens the channel named by id. Listening TCP and
// QUIC endpoints block until one peer connects or ctx is done. When
// opts.Fault sets a rate the channel is wrapped in a channel.FaultyChannel.
func OpenChannelWithOptions(ctx context.Context, id string, opts ChannelOptions) (channel.ByteChannel, error) {
	ep, err := ParseChannelID(id)
	if err != nil {
		return nil, err
	}

	var ch channel.ByteChannel
	switch ep.Kind {
	case EndpointSerial:
		cfg := channel.DefaultSerialConfig(ep.Address)
		if opts.BaudRate > 0 {
			cfg.BaudRate = opts.BaudRate
		}
		if opts.ReadTimeout > 0 {
			cfg.ReadTimeout = opts.ReadTimeout
		}
		ch, err = channel.NewSerialChannel(cfg)

	case EndpointTCP, EndpointTCPListen:
		ch, err = channel.NewTCPChannel(ctx, channel.TCPChannelConfig{
			Address:     ep.Address,
			IsServer:    ep.Kind == EndpointTCPListen,
			DialTimeout: opts.DialTimeout,
		})

	case EndpointQUIC, EndpointQUICListen:
		ch, err = channel.NewQUICChannel(ctx, channel.QUICChannelConfig{
			Address:     ep.Address,
			IsServer:    ep.Kind == EndpointQUICListen,
			IdleTimeout: opts.QUICIdleTimeout,
		})

	case EndpointUDP, EndpointUDPListen:
		ch, err = channel.NewUDPChannel(ctx, channel.UDPChannelConfig{
			Address:  ep.Address,
			IsServer: ep.Kind == EndpointUDPListen,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open %s channel %s: %w", ep.Kind, ep.Address, err)
	}

	if opts.Fault.DropRate > 0 || opts.Fault.CorruptRate > 0 {
		ch = channel.NewFaultyChannel(ch, opts.Fault)
	}
	return ch, nil
}
