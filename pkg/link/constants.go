package link

import (
	"errors"
	"time"
)

// Delimiters and byte stuffing
const (
	Flag      byte = 0x7E // Frame delimiter
	Escape    byte = 0x7D // Escape prefix for stuffed bytes
	EscapeKey byte = 0x20 // XOR key applied to an escaped byte
)

// Address field values. Every frame carries the address of the role that
// originated it.
const (
	AddrInitiator byte = 0x03 // Frames sent by the initiator
	AddrResponder byte = 0x01 // Frames sent by the responder
)

// Control field values
const (
	CtrlSET  byte = 0x03 // Connection request
	CtrlDISC byte = 0x0B // Disconnect
	CtrlUA   byte = 0x07 // Unnumbered acknowledgment
	CtrlRR   byte = 0x05 // Receiver ready, OR with the sequence bit at CtrlRRSeqBit
	CtrlREJ  byte = 0x01 // Reject, OR with the sequence bit at CtrlRRSeqBit
	CtrlInfo byte = 0x00 // Information frame, OR with the sequence bit at CtrlInfoSeqBit

	CtrlRRSeqBit   byte = 0x80 // Sequence bit position in RR/REJ
	CtrlInfoSeqBit byte = 0x40 // Sequence bit position in information frames
)

// Frame sizes
const (
	SupervisoryFrameSize  = 5   // FLAG ADDR CTRL BCC1 FLAG
	HeaderSize            = 4   // FLAG ADDR CTRL BCC1
	DefaultMaxPayloadSize = 512 // Shared payload bound, not negotiated
)

// Defaults
const (
	DefaultTimeout    = 3 * time.Second
	DefaultMaxRetries = 3
)

// MaxStuffedSize returns the largest stuffed body (payload + BCC2) an
// information frame can carry for the given payload bound.
func MaxStuffedSize(maxPayload int) int {
	return 2 * (maxPayload + 1)
}

// Role identifies which side of the link an endpoint plays
type Role int

const (
	RoleInitiator Role = iota // Sends SET, drives DISC
	RoleResponder             // Answers SET, answers DISC
)

// String returns string representation of Role
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// Address returns the address this role stamps on its own frames
func (r Role) Address() byte {
	if r == RoleInitiator {
		return AddrInitiator
	}
	return AddrResponder
}

// PeerAddress returns the address expected on frames from the other side
func (r Role) PeerAddress() byte {
	if r == RoleInitiator {
		return AddrResponder
	}
	return AddrInitiator
}

// ParseRole parses "initiator"/"transmitter" or "responder"/"receiver"
func ParseRole(s string) (Role, error) {
	switch s {
	case "initiator", "transmitter", "tx":
		return RoleInitiator, nil
	case "responder", "receiver", "rx":
		return RoleResponder, nil
	default:
		return 0, ErrInvalidRole
	}
}

// Link layer states
type LinkState int

const (
	LinkStateClosed       LinkState = iota // Not yet opened
	LinkStateConnecting                    // Handshake in progress
	LinkStateOpen                          // Data transfer allowed
	LinkStateDisconnecting                 // DISC exchange in progress
	LinkStateDisconnected                  // Peer disconnected or close completed
	LinkStateDead                          // Retry budget exhausted
)

// String returns string representation of LinkState
func (s LinkState) String() string {
	switch s {
	case LinkStateClosed:
		return "Closed"
	case LinkStateConnecting:
		return "Connecting"
	case LinkStateOpen:
		return "Open"
	case LinkStateDisconnecting:
		return "Disconnecting"
	case LinkStateDisconnected:
		return "Disconnected"
	case LinkStateDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// Errors
var (
	ErrChecksum           = errors.New("payload checksum mismatch")
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrConnectivity       = errors.New("link connectivity lost")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrConnectionDead     = errors.New("connection is dead")
	ErrDisconnected       = errors.New("peer disconnected")
	ErrInvalidState       = errors.New("invalid link state")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTimeout            = errors.New("link layer timeout")
)
