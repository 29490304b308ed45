package link

import "context"

// ControlSet is the set of control codes a read is willing to accept. One
// receiver implementation serves every wait: {SET} while listening,
// {UA} after SET or DISC, {RR, REJ} after an information frame, {I, DISC}
// while receiving data.
type ControlSet uint8

// NewControlSet builds a ControlSet from the given controls
func NewControlSet(controls ...Control) ControlSet {
	var s ControlSet
	for _, c := range controls {
		s |= 1 << uint(c)
	}
	return s
}

// Has reports whether c is in the set
func (s ControlSet) Has(c Control) bool {
	return c >= 0 && c < numControls && s&(1<<uint(c)) != 0
}

// Predefined control sets
var (
	AcceptSET      = NewControlSet(ControlSET)
	AcceptUA       = NewControlSet(ControlUA)
	AcceptDISC     = NewControlSet(ControlDISC)
	AcceptResponse = NewControlSet(ControlRR, ControlREJ)
	AcceptData     = NewControlSet(ControlInfo, ControlDISC)
)

// ReceiverState is a state of the frame synchronization machine
type ReceiverState int

const (
	StateAwaitFlag ReceiverState = iota
	StateFlagSeen
	StateAddressSeen
	StateControlSeen
	StateHeaderValidated
	StateCollecting
	StateDone
)

// String returns string representation of ReceiverState
func (s ReceiverState) String() string {
	switch s {
	case StateAwaitFlag:
		return "AwaitFlag"
	case StateFlagSeen:
		return "FlagSeen"
	case StateAddressSeen:
		return "AddressSeen"
	case StateControlSeen:
		return "ControlSeen"
	case StateHeaderValidated:
		return "HeaderValidated"
	case StateCollecting:
		return "Collecting"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// ByteReader is the blocking single-byte read side of a transport
type ByteReader interface {
	ReadByte(ctx context.Context) (byte, error)
}

// Receiver recognizes one validated frame at a time from a byte stream.
// Garbage before or between frames is discarded; any unexpected flag is
// treated as the start of a new frame.
type Receiver struct {
	address byte
	accept  ControlSet
	maxBody int

	state    ReceiverState
	control  byte
	body     []byte
	lastFlag bool

	discarded int
}

// NewReceiver creates a receiver that buffers information frames carrying
// at most maxPayload bytes
func NewReceiver(maxPayload int) *Receiver {
	maxBody := MaxStuffedSize(maxPayload)
	return &Receiver{
		maxBody: maxBody,
		body:    make([]byte, 0, maxBody),
	}
}

// Expect prepares the receiver for the next frame from address whose
// control code is in accept
func (r *Receiver) Expect(address byte, accept ControlSet) {
	r.address = address
	r.accept = accept
	r.body = r.body[:0]
	r.state = StateAwaitFlag
	if r.lastFlag {
		r.state = StateFlagSeen
	}
}

// State returns the current state
func (r *Receiver) State() ReceiverState {
	return r.state
}

// Discarded returns the number of bytes dropped while hunting for a frame
func (r *Receiver) Discarded() int {
	return r.discarded
}

// Step consumes one byte and reports whether a complete frame is available
func (r *Receiver) Step(b byte) bool {
	if r.state == StateDone {
		r.Expect(r.address, r.accept)
	}
	r.lastFlag = b == Flag

	switch r.state {
	case StateAwaitFlag:
		if b == Flag {
			r.state = StateFlagSeen
		} else {
			r.discarded++
		}

	case StateFlagSeen:
		switch {
		case b == r.address:
			r.state = StateAddressSeen
		case b == Flag:
		default:
			r.drop()
		}

	case StateAddressSeen:
		c, _, ok := ParseControl(b)
		switch {
		case ok && r.accept.Has(c):
			r.control = b
			r.state = StateControlSeen
		case b == Flag:
			r.state = StateFlagSeen
		default:
			r.drop()
		}

	case StateControlSeen:
		switch {
		case b == HeaderChecksum(r.address, r.control):
			r.state = StateHeaderValidated
		case b == Flag:
			r.state = StateFlagSeen
		default:
			r.drop()
		}

	case StateHeaderValidated:
		if c, _, _ := ParseControl(r.control); c == ControlInfo {
			if b == Flag {
				// BCC2 is mandatory, a bare header is a new frame start
				r.state = StateFlagSeen
				return false
			}
			r.body = append(r.body[:0], b)
			r.state = StateCollecting
			return false
		}
		if b == Flag {
			r.state = StateDone
			return true
		}
		r.drop()

	case StateCollecting:
		if b == Flag {
			r.state = StateDone
			return true
		}
		if len(r.body) >= r.maxBody {
			r.discarded += len(r.body)
			r.body = r.body[:0]
			r.drop()
			return false
		}
		r.body = append(r.body, b)
	}

	return false
}

func (r *Receiver) drop() {
	r.discarded++
	r.state = StateAwaitFlag
}

// Frame returns the frame recognized by the last Step that returned true.
// For information frames whose payload fails to destuff or verify, the
// returned frame still carries the header fields and the error is
// ErrChecksum or ErrMalformedFrame.
func (r *Receiver) Frame() (*Frame, error) {
	if r.state != StateDone {
		return nil, ErrInvalidState
	}
	c, seq, _ := ParseControl(r.control)
	if c != ControlInfo {
		return NewSupervisoryFrame(r.address, c, seq), nil
	}

	f := NewInformationFrame(r.address, seq, nil)
	payload, err := DecodeInformation(r.body)
	if err != nil {
		return f, err
	}
	f.Payload = payload
	return f, nil
}

// ReadFrame reads bytes from src until a frame matching the current
// expectation is recognized or ctx is done
func (r *Receiver) ReadFrame(ctx context.Context, src ByteReader) (*Frame, error) {
	for {
		b, err := src.ReadByte(ctx)
		if err != nil {
			return nil, err
		}
		if r.Step(b) {
			return r.Frame()
		}
	}
}
