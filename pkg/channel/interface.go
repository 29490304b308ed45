package channel

import (
	"context"
	"errors"
)

var (
	ErrChannelClosed = errors.New("channel is closed")
)

// ByteChannel is the transport beneath the link layer: an opaque,
// unreliable byte stream. Implementations own the underlying device for
// their whole lifetime.
type ByteChannel interface {
	// ReadByte blocks until one byte is available or ctx is done.
	// A ctx deadline is how the link layer bounds its waits.
	ReadByte(ctx context.Context) (byte, error)

	// Write writes all of data to the medium
	Write(ctx context.Context, data []byte) error

	// Close restores the device's prior configuration and releases it.
	// Pending ReadByte calls are unblocked.
	Close() error

	// Statistics returns transport-level statistics
	Statistics() TransportStats
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent     uint64 // Total bytes sent
	BytesReceived uint64 // Total bytes received
	WriteErrors   uint64 // Number of write errors
	ReadErrors    uint64 // Number of read errors
}

// ChannelState represents the state of a channel
type ChannelState int

const (
	ChannelStateOpen ChannelState = iota
	ChannelStateClosed
)

// String returns string representation of ChannelState
func (s ChannelState) String() string {
	switch s {
	case ChannelStateOpen:
		return "Open"
	case ChannelStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
