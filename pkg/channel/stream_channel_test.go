package channel

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func readN(t *testing.T, ch ByteChannel, n int) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := make([]byte, 0, n)
	for len(out) < n {
		b, err := ch.ReadByte(ctx)
		if err != nil {
			t.Fatalf("ReadByte failed after %d bytes: %v", len(out), err)
		}
		out = append(out, b)
	}
	return out
}

func TestStreamChannel_PipeRoundTrip(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	data := []byte{0x7E, 0x03, 0x03, 0x00, 0x7E}
	go a.Write(context.Background(), data)

	got := readN(t, b, len(data))
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %X, got %X", data, got)
	}

	// Statistics are updated by the writer and the reader goroutine
	deadline := time.Now().Add(time.Second)
	for a.Statistics().BytesSent != uint64(len(data)) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if a.Statistics().BytesSent != uint64(len(data)) {
		t.Errorf("Expected %d bytes sent, got %d", len(data), a.Statistics().BytesSent)
	}
	if b.Statistics().BytesReceived != uint64(len(data)) {
		t.Errorf("Expected %d bytes received, got %d", len(data), b.Statistics().BytesReceived)
	}
}

func TestStreamChannel_ReadByteHonoursDeadline(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.ReadByte(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("ReadByte returned after %v", elapsed)
	}
}

func TestStreamChannel_CloseUnblocksReader(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := b.ReadByte(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Errorf("Expected error after close, got nil")
		}
	case <-time.After(time.Second):
		t.Fatal("ReadByte not unblocked by Close")
	}

	if b.State() != ChannelStateClosed {
		t.Errorf("Expected state Closed, got %s", b.State())
	}
	if err := b.Write(context.Background(), []byte{0x01}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Expected ErrChannelClosed, got %v", err)
	}
}

func TestStreamChannel_PeerCloseSurfacesError(t *testing.T) {
	a, b := NewPipe()
	defer b.Close()

	a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := b.ReadByte(ctx); err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected terminal read error, got %v", err)
	}
}

func TestStreamChannel_CleanupRunsOnce(t *testing.T) {
	a, b := NewPipe()
	defer b.Close()

	calls := 0
	a.addCleanup(func() error {
		calls++
		return nil
	})

	a.Close()
	a.Close()

	if calls != 1 {
		t.Errorf("Expected cleanup to run once, ran %d times", calls)
	}
}

func TestIsSerialDevice(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"/dev/ttyS0", true},
		{"/dev/ttyUSB1", true},
		{"COM3", true},
		{"com4", true},
		{"tcp://localhost:4000", false},
		{"quic-listen://:4443", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := IsSerialDevice(tt.id); got != tt.want {
				t.Errorf("IsSerialDevice(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
