package app

import (
	"errors"
	"fmt"
)

// Packet control field values
const (
	CtrlData  uint8 = 0x01 // File chunk
	CtrlStart uint8 = 0x02 // Transfer begins, carries file parameters
	CtrlStop  uint8 = 0x03 // Transfer ends, repeats file parameters
)

// Parameter types carried by START and STOP packets
const (
	ParamSize uint8 = 0x00 // File size, big-endian unsigned
	ParamName uint8 = 0x01 // File name bytes
)

// Packet sizes
const (
	DataHeaderSize = 4     // C N L2 L1
	MaxChunkSize   = 65535 // Largest length expressible by L2 L1
	MaxNameLength  = 255   // Largest length expressible by a TLV L byte
)

var (
	ErrMalformedPacket  = errors.New("malformed packet")
	ErrUnexpectedPacket = errors.New("unexpected packet")
	ErrInvalidSequence  = errors.New("invalid data packet sequence")
	ErrSizeMismatch     = errors.New("file size mismatch")
	ErrNameTooLong      = errors.New("file name too long")
)

// ControlPacket is a START or STOP packet: C followed by TLV parameters
type ControlPacket struct {
	Control uint8  // CtrlStart or CtrlStop
	Size    uint64 // ParamSize
	Name    string // ParamName
}

// NewControlPacket creates a START or STOP packet
func NewControlPacket(control uint8, name string, size uint64) *ControlPacket {
	return &ControlPacket{
		Control: control,
		Size:    size,
		Name:    name,
	}
}

// Serialize converts the packet to wire format
func (p *ControlPacket) Serialize() ([]byte, error) {
	if len(p.Name) > MaxNameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(p.Name))
	}

	size := encodeSize(p.Size)
	out := make([]byte, 0, 1+2+len(size)+2+len(p.Name))
	out = append(out, p.Control)
	out = append(out, ParamSize, byte(len(size)))
	out = append(out, size...)
	out = append(out, ParamName, byte(len(p.Name)))
	out = append(out, p.Name...)
	return out, nil
}

// ParseControlPacket parses a START or STOP packet. Unknown parameter types
// are skipped.
func ParseControlPacket(data []byte) (*ControlPacket, error) {
	if len(data) < 1 {
		return nil, ErrMalformedPacket
	}
	if data[0] != CtrlStart && data[0] != CtrlStop {
		return nil, fmt.Errorf("%w: control 0x%02X is not START or STOP", ErrMalformedPacket, data[0])
	}

	p := &ControlPacket{Control: data[0]}
	haveSize := false
	for offset := 1; offset < len(data); {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated parameter header", ErrMalformedPacket)
		}
		typ, length := data[offset], int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return nil, fmt.Errorf("%w: parameter 0x%02X overruns packet", ErrMalformedPacket, typ)
		}
		value := data[offset : offset+length]
		offset += length

		switch typ {
		case ParamSize:
			if length == 0 || length > 8 {
				return nil, fmt.Errorf("%w: size parameter of %d bytes", ErrMalformedPacket, length)
			}
			p.Size = decodeSize(value)
			haveSize = true
		case ParamName:
			p.Name = string(value)
		}
	}

	if !haveSize {
		return nil, fmt.Errorf("%w: missing size parameter", ErrMalformedPacket)
	}
	return p, nil
}

// DataPacket carries one chunk of the file
type DataPacket struct {
	Sequence uint8 // Chunk index modulo 256
	Data     []byte
}

// Serialize converts the packet to wire format
func (p *DataPacket) Serialize() []byte {
	out := make([]byte, DataHeaderSize+len(p.Data))
	out[0] = CtrlData
	out[1] = p.Sequence
	out[2] = byte(len(p.Data) >> 8)
	out[3] = byte(len(p.Data))
	copy(out[DataHeaderSize:], p.Data)
	return out
}

// ParseDataPacket parses a DATA packet
func ParseDataPacket(data []byte) (*DataPacket, error) {
	if len(data) < DataHeaderSize || data[0] != CtrlData {
		return nil, ErrMalformedPacket
	}
	length := int(data[2])<<8 | int(data[3])
	if len(data)-DataHeaderSize != length {
		return nil, fmt.Errorf("%w: length field %d, carried %d", ErrMalformedPacket, length, len(data)-DataHeaderSize)
	}
	return &DataPacket{
		Sequence: data[1],
		Data:     data[DataHeaderSize:],
	}, nil
}

// ChunkSize returns the largest file chunk a DATA packet can carry when
// link payloads are bounded by maxPayload
func ChunkSize(maxPayload int) int {
	n := maxPayload - DataHeaderSize
	if n > MaxChunkSize {
		n = MaxChunkSize
	}
	return n
}

// encodeSize returns v in the fewest big-endian bytes, at least one
func encodeSize(v uint64) []byte {
	n := 1
	for x := v >> 8; x != 0; x >>= 8 {
		n++
	}
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func decodeSize(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
