package app

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"avaneesh/datalink-go/pkg/channel"
	"avaneesh/datalink-go/pkg/internal/logger"
	"avaneesh/datalink-go/pkg/link"
)

// memLink is a lossless in-memory Link
type memLink struct {
	out chan<- []byte
	in  <-chan []byte
}

func newMemLinkPair() (*memLink, *memLink) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	return &memLink{out: ab, in: ba}, &memLink{out: ba, in: ab}
}

func (m *memLink) Send(ctx context.Context, payload []byte) (int, error) {
	p := append([]byte(nil), payload...)
	select {
	case m.out <- p:
		return len(p), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (m *memLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case p, ok := <-m.in:
		if !ok {
			return nil, link.ErrDisconnected
		}
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func randomFile(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(data)
	return data
}

func TestTransfer_InMemory(t *testing.T) {
	sizes := []int{0, 1, 508, 509, 10968}

	for _, size := range sizes {
		file := randomFile(size)
		a, b := newMemLinkPair()
		log := logger.NewNoOpLogger()

		sender, err := NewSender(a, link.DefaultMaxPayloadSize, log)
		if err != nil {
			t.Fatalf("NewSender failed: %v", err)
		}
		receiver := NewReceiver(b, log)

		var progress uint64
		receiver.OnProgress = func(done, total uint64) { progress = done }

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var out bytes.Buffer
		var sent, got *Result
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			sent, err = sender.SendFile(gctx, "file.bin", bytes.NewReader(file), uint64(size))
			return err
		})
		g.Go(func() (err error) {
			got, err = receiver.ReceiveFile(gctx, &out)
			return err
		})
		err = g.Wait()
		cancel()
		if err != nil {
			t.Fatalf("size %d: transfer failed: %v", size, err)
		}

		if !bytes.Equal(out.Bytes(), file) {
			t.Errorf("size %d: received content differs", size)
		}
		wantPackets := (size + ChunkSize(link.DefaultMaxPayloadSize) - 1) / ChunkSize(link.DefaultMaxPayloadSize)
		if sent.Packets != wantPackets || got.Packets != wantPackets {
			t.Errorf("size %d: packets sent %d received %d, want %d", size, sent.Packets, got.Packets, wantPackets)
		}
		if got.Name != "file.bin" || got.Size != uint64(size) {
			t.Errorf("size %d: unexpected result %+v", size, got)
		}
		if progress != uint64(size) {
			t.Errorf("size %d: last progress %d", size, progress)
		}
	}
}

func TestTransfer_ShortReader(t *testing.T) {
	a, _ := newMemLinkPair()
	sender, _ := NewSender(a, 64, logger.NewNoOpLogger())

	_, err := sender.SendFile(context.Background(), "short", bytes.NewReader([]byte{1, 2, 3}), 10)
	if err == nil {
		t.Errorf("Expected error when reader ends before size")
	}
}

func TestTransfer_NameTooLong(t *testing.T) {
	a, b := newMemLinkPair()
	sender, _ := NewSender(a, 64, logger.NewNoOpLogger())

	name := string(bytes.Repeat([]byte{'n'}, MaxNameLength+1))
	_, err := sender.SendFile(context.Background(), name, bytes.NewReader(nil), 0)
	if !errors.Is(err, ErrNameTooLong) {
		t.Errorf("Expected ErrNameTooLong, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if p, err := b.Receive(ctx); err == nil {
		t.Errorf("Expected nothing sent, got %X", p)
	}
}

func TestNewSender_PayloadTooSmall(t *testing.T) {
	a, _ := newMemLinkPair()
	if _, err := NewSender(a, DataHeaderSize, nil); err == nil {
		t.Errorf("Expected error for payload bound %d", DataHeaderSize)
	}
}

func TestAssembly_Errors(t *testing.T) {
	start, _ := NewControlPacket(CtrlStart, "a", 4).Serialize()
	stopWrongName, _ := NewControlPacket(CtrlStop, "b", 4).Serialize()
	stopEarly, _ := NewControlPacket(CtrlStop, "a", 4).Serialize()
	data0 := (&DataPacket{Sequence: 0, Data: []byte{1, 2}}).Serialize()
	data1 := (&DataPacket{Sequence: 1, Data: []byte{3, 4}}).Serialize()
	data1Big := (&DataPacket{Sequence: 1, Data: []byte{3, 4, 5}}).Serialize()

	tests := []struct {
		name    string
		packets [][]byte
		want    error
	}{
		{"DATA before START", [][]byte{data0}, ErrUnexpectedPacket},
		{"STOP before START", [][]byte{stopEarly}, ErrUnexpectedPacket},
		{"Repeated START", [][]byte{start, start}, ErrUnexpectedPacket},
		{"Skipped sequence", [][]byte{start, data1}, ErrInvalidSequence},
		{"Too much data", [][]byte{start, data0, data1Big}, ErrSizeMismatch},
		{"STOP mismatch", [][]byte{start, data0, data1, stopWrongName}, ErrUnexpectedPacket},
		{"STOP too early", [][]byte{start, data0, stopEarly}, ErrSizeMismatch},
		{"Unknown control", [][]byte{{0x09}}, ErrMalformedPacket},
		{"Empty packet", [][]byte{{}}, ErrMalformedPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a assembly
			var err error
			for _, p := range tt.packets {
				if _, _, err = a.process(p); err != nil {
					break
				}
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReceiveFile_PeerDisconnect(t *testing.T) {
	a, b := newMemLinkPair()
	receiver := NewReceiver(b, logger.NewNoOpLogger())

	start, _ := NewControlPacket(CtrlStart, "cut", 100).Serialize()
	a.Send(context.Background(), start)
	close(a.out)

	_, err := receiver.ReceiveFile(context.Background(), &bytes.Buffer{})
	if !errors.Is(err, link.ErrDisconnected) {
		t.Errorf("Expected ErrDisconnected, got %v", err)
	}
}

func TestTransfer_OverLink(t *testing.T) {
	pa, pb := channel.NewPipe()
	lossy := channel.NewFaultyChannel(pa, channel.FaultConfig{})

	cfg := func(role link.Role) link.Config {
		c := link.DefaultConfig(role)
		c.Timeout = 100 * time.Millisecond
		c.MaxPayloadSize = 128
		c.Logger = logger.NewNoOpLogger()
		return c
	}

	file := randomFile(3000)
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conn, err := link.Open(gctx, lossy, cfg(link.RoleInitiator))
		if err != nil {
			return err
		}
		lossy.DropWrites(1)
		sender, err := NewSender(conn, conn.MaxPayloadSize(), logger.NewNoOpLogger())
		if err != nil {
			return err
		}
		if _, err := sender.SendFile(gctx, "data.bin", bytes.NewReader(file), uint64(len(file))); err != nil {
			return err
		}
		return conn.Close(gctx)
	})
	g.Go(func() error {
		conn, err := link.Open(gctx, pb, cfg(link.RoleResponder))
		if err != nil {
			return err
		}
		if _, err := NewReceiver(conn, logger.NewNoOpLogger()).ReceiveFile(gctx, &out); err != nil {
			return err
		}
		if _, err := conn.Receive(gctx); !errors.Is(err, link.ErrDisconnected) {
			return err
		}
		return conn.Close(gctx)
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	if !bytes.Equal(out.Bytes(), file) {
		t.Errorf("Received %d bytes, content differs from the %d sent", out.Len(), len(file))
	}
}
