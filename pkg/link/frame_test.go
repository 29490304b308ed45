package link

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestControlByte_RoundTrip(t *testing.T) {
	tests := []struct {
		ctrl Control
		seq  byte
		want byte
	}{
		{ControlSET, 0, 0x03},
		{ControlDISC, 0, 0x0B},
		{ControlUA, 0, 0x07},
		{ControlRR, 0, 0x05},
		{ControlRR, 1, 0x85},
		{ControlREJ, 0, 0x01},
		{ControlREJ, 1, 0x81},
		{ControlInfo, 0, 0x00},
		{ControlInfo, 1, 0x40},
	}

	for _, tt := range tests {
		t.Run(tt.ctrl.String(), func(t *testing.T) {
			b := ControlByte(tt.ctrl, tt.seq)
			if b != tt.want {
				t.Fatalf("ControlByte(%s, %d) = 0x%02X, want 0x%02X", tt.ctrl, tt.seq, b, tt.want)
			}
			if b == Flag || b == Escape {
				t.Errorf("Control byte 0x%02X collides with a delimiter", b)
			}

			c, seq, ok := ParseControl(b)
			if !ok || c != tt.ctrl || seq != tt.seq {
				t.Errorf("ParseControl(0x%02X) = %s, %d, %v, want %s, %d, true", b, c, seq, ok, tt.ctrl, tt.seq)
			}
		})
	}

	for _, b := range []byte{0x02, 0x7E, 0x7D, 0xFF, 0x41 | 0x80} {
		if _, _, ok := ParseControl(b); ok {
			t.Errorf("ParseControl(0x%02X) accepted an invalid control", b)
		}
	}
}

func TestEncodeSupervisory(t *testing.T) {
	tests := []struct {
		name string
		addr byte
		ctrl byte
		want []byte
	}{
		{"SET", AddrInitiator, CtrlSET, []byte{0x7E, 0x03, 0x03, 0x00, 0x7E}},
		{"UA", AddrResponder, CtrlUA, []byte{0x7E, 0x01, 0x07, 0x06, 0x7E}},
		{"DISC", AddrInitiator, CtrlDISC, []byte{0x7E, 0x03, 0x0B, 0x08, 0x7E}},
		{"RR1", AddrResponder, ControlByte(ControlRR, 1), []byte{0x7E, 0x01, 0x85, 0x84, 0x7E}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeSupervisory(tt.addr, tt.ctrl)
			if len(got) != SupervisoryFrameSize {
				t.Errorf("Expected %d bytes, got %d", SupervisoryFrameSize, len(got))
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeSupervisory = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestEncodeInformation_Layout(t *testing.T) {
	payload := []byte{0x01, Flag, 0x02, Escape}
	got := EncodeInformation(AddrInitiator, 1, payload)

	bcc2 := CalculateBCC(payload)
	want := []byte{Flag, 0x03, 0x40, 0x43, 0x01, Escape, 0x5E, 0x02, Escape, 0x5D, bcc2, Flag}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeInformation = %X, want %X", got, want)
	}
}

func TestInformation_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	random := make([]byte, DefaultMaxPayloadSize)
	rng.Read(random)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"Empty", []byte{}},
		{"Single byte", []byte{0x42}},
		{"All zero", make([]byte, 16)},
		{"Only flags", bytes.Repeat([]byte{Flag}, 10)},
		{"Only escapes", bytes.Repeat([]byte{Escape}, 10)},
		{"Checksum is flag", []byte{Flag}},
		{"Checksum is escape", []byte{0x01, Escape ^ 0x01}},
		{"Random max size", random},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeInformation(AddrResponder, 0, tt.payload)

			if frame[0] != Flag || frame[len(frame)-1] != Flag {
				t.Fatalf("Frame not delimited: %X", frame)
			}
			body := frame[HeaderSize : len(frame)-1]
			if bytes.IndexByte(body, Flag) >= 0 {
				t.Fatalf("Unescaped flag inside body %X", body)
			}
			if len(body) > MaxStuffedSize(len(tt.payload)) {
				t.Errorf("Stuffed body %d bytes exceeds bound %d", len(body), MaxStuffedSize(len(tt.payload)))
			}

			got, err := DecodeInformation(body)
			if err != nil {
				t.Fatalf("DecodeInformation failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("Round trip = %X, want %X", got, tt.payload)
			}
		})
	}
}

func TestStuffing_Bijective(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []byte{Flag, Escape, 0x00, 0x20, 0x5D, 0x5E, 0xFF}

	for i := 0; i < 200; i++ {
		data := make([]byte, rng.Intn(64))
		for j := range data {
			data[j] = alphabet[rng.Intn(len(alphabet))]
		}

		stuffed := Stuff(nil, data)
		if bytes.IndexByte(stuffed, Flag) >= 0 {
			t.Fatalf("Stuff left a flag in %X", stuffed)
		}

		got, err := Destuff(stuffed)
		if err != nil {
			t.Fatalf("Destuff(%X) failed: %v", stuffed, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("Destuff(Stuff(%X)) = %X", data, got)
		}
	}
}

func TestDestuff_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		stuffed []byte
	}{
		{"Trailing escape", []byte{0x01, Escape}},
		{"Raw flag", []byte{0x01, Flag, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Destuff(tt.stuffed); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("Expected ErrMalformedFrame, got %v", err)
			}
		})
	}

	if _, err := DecodeInformation(nil); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for empty body, got %v", err)
	}
}

func TestDecodeInformation_BitFlip(t *testing.T) {
	payload := []byte("hello, link")
	frame := EncodeInformation(AddrInitiator, 0, payload)
	body := frame[HeaderSize : len(frame)-1]

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte(nil), body...)
			corrupted[i] ^= 1 << bit

			got, err := DecodeInformation(corrupted)
			if err == nil {
				t.Errorf("Bit %d of byte %d: accepted corrupted payload %q", bit, i, got)
			}
		}
	}
}

func TestFrame_Serialize(t *testing.T) {
	f := NewInformationFrame(AddrInitiator, 1, []byte{0x10, 0x20})
	if !bytes.Equal(f.Serialize(), EncodeInformation(AddrInitiator, 1, []byte{0x10, 0x20})) {
		t.Errorf("Serialize mismatch for information frame")
	}

	s := NewSupervisoryFrame(AddrResponder, ControlREJ, 1)
	if !bytes.Equal(s.Serialize(), EncodeSupervisory(AddrResponder, 0x81)) {
		t.Errorf("Serialize mismatch for supervisory frame")
	}
	if s.String() != "Frame{S, Addr=0x01, Ctrl=REJ(1)}" {
		t.Errorf("Unexpected String() %q", s.String())
	}

	clone := f.Clone()
	clone.Payload[0] = 0xFF
	if f.Payload[0] != 0x10 {
		t.Errorf("Clone shares payload with original")
	}
}
