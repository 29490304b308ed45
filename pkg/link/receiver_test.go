package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

// sliceReader feeds a fixed byte sequence and then reports io.EOF
type sliceReader struct {
	data []byte
}

func (r *sliceReader) ReadByte(ctx context.Context) (byte, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	b := r.data[0]
	r.data = r.data[1:]
	return b, nil
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestControlSet(t *testing.T) {
	s := NewControlSet(ControlRR, ControlREJ)
	if !s.Has(ControlRR) || !s.Has(ControlREJ) {
		t.Errorf("Expected RR and REJ in set")
	}
	if s.Has(ControlSET) || s.Has(ControlInfo) {
		t.Errorf("Unexpected member in set %08b", s)
	}
	if s.Has(Control(-1)) || s.Has(numControls) {
		t.Errorf("Out of range control reported as member")
	}
	if AcceptData != NewControlSet(ControlInfo, ControlDISC) {
		t.Errorf("AcceptData = %08b", AcceptData)
	}
}

func TestReceiver_SupervisoryStates(t *testing.T) {
	r := NewReceiver(DefaultMaxPayloadSize)
	r.Expect(AddrInitiator, AcceptSET)

	want := []ReceiverState{StateFlagSeen, StateAddressSeen, StateControlSeen, StateHeaderValidated, StateDone}
	for i, b := range EncodeSupervisory(AddrInitiator, CtrlSET) {
		done := r.Step(b)
		if r.State() != want[i] {
			t.Fatalf("After byte %d state = %s, want %s", i, r.State(), want[i])
		}
		if done != (i == SupervisoryFrameSize-1) {
			t.Fatalf("Step(%d) done = %v", i, done)
		}
	}

	f, err := r.Frame()
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if f.Kind != KindSupervisory || f.Control != ControlSET || f.Address != AddrInitiator {
		t.Errorf("Unexpected frame %s", f)
	}
}

func TestReceiver_NoiseTolerance(t *testing.T) {
	payload := []byte{0x10, Flag, 0x20, Escape}
	frame := EncodeInformation(AddrInitiator, 1, payload)

	tests := []struct {
		name   string
		stream []byte
	}{
		{"Leading garbage", concat([]byte{0x00, 0x11, 0x03, 0x40, 0xFF}, frame)},
		{"Repeated flags", concat([]byte{Flag, Flag, Flag}, frame)},
		{"Truncated frame before", concat([]byte{Flag, 0x03, 0x40}, frame)},
		{"Wrong address", concat(EncodeSupervisory(AddrResponder, CtrlUA), frame)},
		{"Unaccepted control", concat(EncodeSupervisory(AddrInitiator, CtrlSET), frame)},
		{"Bad header checksum", concat([]byte{Flag, 0x03, 0x40, 0x00, 0x55, Flag}, frame)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReceiver(DefaultMaxPayloadSize)
			r.Expect(AddrInitiator, AcceptData)

			f, err := r.ReadFrame(context.Background(), &sliceReader{tt.stream})
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if f.Kind != KindInformation || f.Sequence != 1 {
				t.Errorf("Unexpected frame %s", f)
			}
			if !bytes.Equal(f.Payload, payload) {
				t.Errorf("Payload = %X, want %X", f.Payload, payload)
			}
		})
	}
}

func TestReceiver_BackToBackFrames(t *testing.T) {
	first := EncodeSupervisory(AddrResponder, ControlByte(ControlRR, 1))
	second := EncodeSupervisory(AddrResponder, ControlByte(ControlREJ, 0))
	// Frames sharing a single flag between them
	stream := concat(first, second[1:])

	r := NewReceiver(DefaultMaxPayloadSize)
	src := &sliceReader{stream}

	r.Expect(AddrResponder, AcceptResponse)
	f, err := r.ReadFrame(context.Background(), src)
	if err != nil || f.Control != ControlRR || f.Sequence != 1 {
		t.Fatalf("First frame = %v, %v", f, err)
	}

	r.Expect(AddrResponder, AcceptResponse)
	f, err = r.ReadFrame(context.Background(), src)
	if err != nil || f.Control != ControlREJ || f.Sequence != 0 {
		t.Fatalf("Second frame = %v, %v", f, err)
	}
}

func TestReceiver_ChecksumErrorKeepsHeader(t *testing.T) {
	frame := EncodeInformation(AddrInitiator, 0, []byte("abc"))
	frame[HeaderSize] ^= 0x01

	r := NewReceiver(DefaultMaxPayloadSize)
	r.Expect(AddrInitiator, AcceptData)

	f, err := r.ReadFrame(context.Background(), &sliceReader{frame})
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("Expected ErrChecksum, got %v", err)
	}
	if f == nil || f.Kind != KindInformation || f.Sequence != 0 {
		t.Errorf("Expected header of I(0), got %v", f)
	}
	if f != nil && f.Payload != nil {
		t.Errorf("Damaged payload must not be exposed, got %X", f.Payload)
	}
}

func TestReceiver_OverflowResynchronizes(t *testing.T) {
	const maxPayload = 8
	tooBig := EncodeInformation(AddrInitiator, 0, bytes.Repeat([]byte{0x01}, 40))
	good := EncodeInformation(AddrInitiator, 1, []byte{0x02, 0x03})

	r := NewReceiver(maxPayload)
	r.Expect(AddrInitiator, AcceptData)

	f, err := r.ReadFrame(context.Background(), &sliceReader{concat(tooBig, good)})
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if f.Sequence != 1 || !bytes.Equal(f.Payload, []byte{0x02, 0x03}) {
		t.Errorf("Expected the second frame, got %s", f)
	}
	if r.Discarded() == 0 {
		t.Errorf("Expected discarded bytes to be counted")
	}
}

func TestReceiver_BareHeaderIsNewStart(t *testing.T) {
	// An information header immediately followed by a flag carries no BCC2
	good := EncodeInformation(AddrInitiator, 0, []byte{0x55})
	stream := concat([]byte{Flag, 0x03, 0x00, 0x03}, good)

	r := NewReceiver(DefaultMaxPayloadSize)
	r.Expect(AddrInitiator, AcceptData)

	f, err := r.ReadFrame(context.Background(), &sliceReader{stream})
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(f.Payload, []byte{0x55}) {
		t.Errorf("Payload = %X, want 55", f.Payload)
	}
}

func TestReceiver_SourceError(t *testing.T) {
	r := NewReceiver(DefaultMaxPayloadSize)
	r.Expect(AddrInitiator, AcceptSET)

	if _, err := r.ReadFrame(context.Background(), &sliceReader{[]byte{0x00, Flag}}); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
	if _, err := NewReceiver(1).Frame(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState before any frame, got %v", err)
	}
}
