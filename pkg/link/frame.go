package link

import (
	"bytes"
	"fmt"
)

// FrameKind distinguishes connection-control frames from payload frames
type FrameKind int

const (
	KindSupervisory FrameKind = iota
	KindInformation
)

// String returns string representation of FrameKind
func (k FrameKind) String() string {
	if k == KindInformation {
		return "I"
	}
	return "S"
}

// Control identifies the meaning of a control byte independent of its
// sequence bit
type Control int

const (
	ControlSET Control = iota
	ControlDISC
	ControlUA
	ControlRR
	ControlREJ
	ControlInfo
	numControls
)

// String returns string representation of Control
func (c Control) String() string {
	switch c {
	case ControlSET:
		return "SET"
	case ControlDISC:
		return "DISC"
	case ControlUA:
		return "UA"
	case ControlRR:
		return "RR"
	case ControlREJ:
		return "REJ"
	case ControlInfo:
		return "I"
	default:
		return "Unknown"
	}
}

// ControlByte builds the wire control byte for c carrying sequence bit seq.
// seq is ignored for SET, DISC and UA.
func ControlByte(c Control, seq byte) byte {
	seq &= 1
	switch c {
	case ControlSET:
		return CtrlSET
	case ControlDISC:
		return CtrlDISC
	case ControlUA:
		return CtrlUA
	case ControlRR:
		return CtrlRR | seq<<7
	case ControlREJ:
		return CtrlREJ | seq<<7
	default:
		return CtrlInfo | seq<<6
	}
}

// ParseControl classifies a wire control byte. ok is false for bytes that
// are not a valid control value.
func ParseControl(b byte) (c Control, seq byte, ok bool) {
	switch b {
	case CtrlSET:
		return ControlSET, 0, true
	case CtrlDISC:
		return ControlDISC, 0, true
	case CtrlUA:
		return ControlUA, 0, true
	case CtrlRR, CtrlRR | CtrlRRSeqBit:
		return ControlRR, b >> 7, true
	case CtrlREJ, CtrlREJ | CtrlRRSeqBit:
		return ControlREJ, b >> 7, true
	case CtrlInfo, CtrlInfo | CtrlInfoSeqBit:
		return ControlInfo, (b >> 6) & 1, true
	}
	return 0, 0, false
}

// Frame represents a link layer frame
type Frame struct {
	Kind     FrameKind
	Address  byte    // Address of the originating role
	Control  Control // Decoded control meaning
	Sequence byte    // Sequence bit for I, RR and REJ frames

	Payload []byte // Destuffed payload, information frames only
}

// NewSupervisoryFrame creates a SET, DISC, UA, RR or REJ frame
func NewSupervisoryFrame(address byte, c Control, seq byte) *Frame {
	return &Frame{
		Kind:     KindSupervisory,
		Address:  address,
		Control:  c,
		Sequence: seq & 1,
	}
}

// NewInformationFrame creates an information frame carrying payload
func NewInformationFrame(address byte, seq byte, payload []byte) *Frame {
	return &Frame{
		Kind:     KindInformation,
		Address:  address,
		Control:  ControlInfo,
		Sequence: seq & 1,
		Payload:  payload,
	}
}

// ControlByte returns the wire control byte of the frame
func (f *Frame) ControlByte() byte {
	return ControlByte(f.Control, f.Sequence)
}

// Serialize converts frame to wire format
func (f *Frame) Serialize() []byte {
	if f.Kind == KindInformation {
		return EncodeInformation(f.Address, f.Sequence, f.Payload)
	}
	return EncodeSupervisory(f.Address, f.ControlByte())
}

// EncodeSupervisory builds the fixed 5-byte supervisory frame. Supervisory
// control values never collide with Flag or Escape, so nothing is stuffed.
func EncodeSupervisory(address, control byte) []byte {
	return []byte{Flag, address, control, HeaderChecksum(address, control), Flag}
}

// EncodeInformation builds a complete information frame: header, stuffed
// payload followed by its stuffed BCC2, closing flag.
func EncodeInformation(address, seq byte, payload []byte) []byte {
	control := ControlByte(ControlInfo, seq)
	bcc2 := CalculateBCC(payload)

	out := make([]byte, 0, HeaderSize+2*(len(payload)+1)+1)
	out = append(out, Flag, address, control, HeaderChecksum(address, control))
	out = Stuff(out, payload)
	out = Stuff(out, []byte{bcc2})
	out = append(out, Flag)
	return out
}

// DecodeInformation destuffs the body of an information frame (the bytes
// between BCC1 and the closing flag) and verifies BCC2. It returns the
// payload without the checksum byte.
func DecodeInformation(stuffed []byte) ([]byte, error) {
	body, err := Destuff(stuffed)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrMalformedFrame
	}
	if !VerifyBCC(body) {
		return nil, ErrChecksum
	}
	return body[:len(body)-1], nil
}

// Stuff appends data to dst, escaping every Flag and Escape byte
func Stuff(dst, data []byte) []byte {
	for _, b := range data {
		if b == Flag || b == Escape {
			dst = append(dst, Escape, b^EscapeKey)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// Destuff reverses Stuff in a single pass into a buffer bounded by the
// stuffed length. A trailing Escape or an unescaped Flag is malformed.
func Destuff(stuffed []byte) ([]byte, error) {
	out := make([]byte, len(stuffed))
	n := 0
	escaped := false
	for _, b := range stuffed {
		switch {
		case escaped:
			out[n] = b ^ EscapeKey
			n++
			escaped = false
		case b == Escape:
			escaped = true
		case b == Flag:
			return nil, ErrMalformedFrame
		default:
			out[n] = b
			n++
		}
	}
	if escaped {
		return nil, ErrMalformedFrame
	}
	return out[:n], nil
}

// String returns a string representation of the frame
func (f *Frame) String() string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Frame{%s, Addr=0x%02X, Ctrl=%s", f.Kind, f.Address, f.Control))
	if f.Control == ControlRR || f.Control == ControlREJ || f.Control == ControlInfo {
		buf.WriteString(fmt.Sprintf("(%d)", f.Sequence))
	}
	if f.Kind == KindInformation {
		buf.WriteString(fmt.Sprintf(", DataLen=%d", len(f.Payload)))
	}
	buf.WriteString("}")
	return buf.String()
}

// Clone creates a deep copy of the frame
func (f *Frame) Clone() *Frame {
	c := *f
	if f.Payload != nil {
		c.Payload = make([]byte, len(f.Payload))
		copy(c.Payload, f.Payload)
	}
	return &c
}
