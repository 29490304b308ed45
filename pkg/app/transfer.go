package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"avaneesh/datalink-go/pkg/internal/logger"
	"avaneesh/datalink-go/pkg/link"
)

// Link is the reliable packet service the transfer runs on
type Link interface {
	Send(ctx context.Context, payload []byte) (int, error)
	Receive(ctx context.Context) ([]byte, error)
}

// ProgressFunc reports bytes transferred so far out of total
type ProgressFunc func(done, total uint64)

// Result summarizes a completed transfer
type Result struct {
	Name     string
	Size     uint64
	Packets  int // DATA packets
	Duration time.Duration
}

// Throughput returns the transfer rate in bytes per second
func (r Result) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Size) / r.Duration.Seconds()
}

// Sender transmits a file as START, DATA... , STOP
type Sender struct {
	link       Link
	chunkSize  int
	OnProgress ProgressFunc
	logger     logger.Logger
}

// NewSender creates a sender whose packets fit in maxPayload bytes
func NewSender(l Link, maxPayload int, log logger.Logger) (*Sender, error) {
	if ChunkSize(maxPayload) < 1 {
		return nil, fmt.Errorf("max payload %d leaves no room for data", maxPayload)
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Sender{
		link:      l,
		chunkSize: ChunkSize(maxPayload),
		logger:    log,
	}, nil
}

// SendFile sends size bytes read from r under name
func (s *Sender) SendFile(ctx context.Context, name string, r io.Reader, size uint64) (*Result, error) {
	start := time.Now()

	startPkt, err := NewControlPacket(CtrlStart, name, size).Serialize()
	if err != nil {
		return nil, err
	}
	stopPkt, err := NewControlPacket(CtrlStop, name, size).Serialize()
	if err != nil {
		return nil, err
	}
	if _, err := s.link.Send(ctx, startPkt); err != nil {
		return nil, fmt.Errorf("send START: %w", err)
	}
	s.logger.Info("App: sending %q (%d bytes)", name, size)

	buf := make([]byte, s.chunkSize)
	var sent uint64
	var seq uint8
	packets := 0
	for sent < size {
		want := uint64(len(buf))
		if size-sent < want {
			want = size - sent
		}
		n, err := io.ReadFull(r, buf[:want])
		if err != nil {
			return nil, fmt.Errorf("read %q at offset %d: %w", name, sent, err)
		}

		pkt := &DataPacket{Sequence: seq, Data: buf[:n]}
		if _, err := s.link.Send(ctx, pkt.Serialize()); err != nil {
			return nil, fmt.Errorf("send DATA %d: %w", packets, err)
		}

		sent += uint64(n)
		seq++
		packets++
		if s.OnProgress != nil {
			s.OnProgress(sent, size)
		}
	}

	if _, err := s.link.Send(ctx, stopPkt); err != nil {
		return nil, fmt.Errorf("send STOP: %w", err)
	}

	res := &Result{Name: name, Size: size, Packets: packets, Duration: time.Since(start)}
	s.logger.Info("App: sent %q in %d packets, %v", name, packets, res.Duration)
	return res, nil
}

// Receiver accepts one file per ReceiveFile call
type Receiver struct {
	link       Link
	OnProgress ProgressFunc
	logger     logger.Logger
}

// NewReceiver creates a file receiver
func NewReceiver(l Link, log logger.Logger) *Receiver {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Receiver{link: l, logger: log}
}

// ReceiveFile waits for a START packet, writes every DATA chunk to w and
// checks the STOP packet against START. A peer disconnect before START is
// returned as link.ErrDisconnected.
func (r *Receiver) ReceiveFile(ctx context.Context, w io.Writer) (*Result, error) {
	var asm assembly
	began := time.Now()

	for {
		payload, err := r.link.Receive(ctx)
		if err != nil {
			if errors.Is(err, link.ErrDisconnected) && asm.inProgress {
				return nil, fmt.Errorf("transfer of %q interrupted at %d/%d bytes: %w",
					asm.start.Name, asm.received, asm.start.Size, err)
			}
			return nil, err
		}

		data, done, err := asm.process(payload)
		if err != nil {
			return nil, err
		}
		if payload[0] == CtrlStart {
			began = time.Now()
			r.logger.Info("App: receiving %q (%d bytes)", asm.start.Name, asm.start.Size)
			continue
		}

		if len(data) > 0 {
			if _, err := w.Write(data); err != nil {
				return nil, fmt.Errorf("write %q: %w", asm.start.Name, err)
			}
			if r.OnProgress != nil {
				r.OnProgress(asm.received, asm.start.Size)
			}
		}

		if done {
			res := &Result{
				Name:     asm.start.Name,
				Size:     asm.start.Size,
				Packets:  asm.packets,
				Duration: time.Since(began),
			}
			r.logger.Info("App: received %q in %d packets, %v", res.Name, res.Packets, res.Duration)
			return res, nil
		}
	}
}

// assembly tracks one file transfer from START to STOP
type assembly struct {
	start       *ControlPacket
	expectedSeq uint8
	received    uint64
	packets     int
	inProgress  bool
}

// process consumes one packet. It returns file data to write, and done once
// a STOP matching the START has arrived.
func (a *assembly) process(payload []byte) (data []byte, done bool, err error) {
	if len(payload) == 0 {
		return nil, false, ErrMalformedPacket
	}

	switch payload[0] {
	case CtrlStart:
		if a.inProgress {
			return nil, false, fmt.Errorf("%w: START during transfer of %q", ErrUnexpectedPacket, a.start.Name)
		}
		p, err := ParseControlPacket(payload)
		if err != nil {
			return nil, false, err
		}
		*a = assembly{start: p, inProgress: true}
		return nil, false, nil

	case CtrlData:
		if !a.inProgress {
			return nil, false, fmt.Errorf("%w: DATA before START", ErrUnexpectedPacket)
		}
		p, err := ParseDataPacket(payload)
		if err != nil {
			return nil, false, err
		}
		if p.Sequence != a.expectedSeq {
			return nil, false, fmt.Errorf("%w: got %d, want %d", ErrInvalidSequence, p.Sequence, a.expectedSeq)
		}
		if a.received+uint64(len(p.Data)) > a.start.Size {
			return nil, false, fmt.Errorf("%w: more than %d bytes", ErrSizeMismatch, a.start.Size)
		}
		a.expectedSeq++
		a.received += uint64(len(p.Data))
		a.packets++
		return p.Data, false, nil

	case CtrlStop:
		if !a.inProgress {
			return nil, false, fmt.Errorf("%w: STOP before START", ErrUnexpectedPacket)
		}
		p, err := ParseControlPacket(payload)
		if err != nil {
			return nil, false, err
		}
		if p.Size != a.start.Size || p.Name != a.start.Name {
			return nil, false, fmt.Errorf("%w: STOP %q/%d does not match START %q/%d",
				ErrUnexpectedPacket, p.Name, p.Size, a.start.Name, a.start.Size)
		}
		if a.received != a.start.Size {
			return nil, false, fmt.Errorf("%w: received %d of %d bytes", ErrSizeMismatch, a.received, a.start.Size)
		}
		a.inProgress = false
		return nil, true, nil

	default:
		return nil, false, fmt.Errorf("%w: control 0x%02X", ErrMalformedPacket, payload[0])
	}
}
