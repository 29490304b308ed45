package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const rxQueueSize = 4096

// StreamChannel adapts any io.ReadWriteCloser (serial port, TCP
// connection, QUIC stream, pipe) to ByteChannel. A single reader goroutine
// pumps incoming bytes into a queue so that ReadByte can honour ctx.
type StreamChannel struct {
	name string
	rwc  io.ReadWriteCloser

	rx      chan byte
	readErr atomic.Value // error that stopped the pump

	writeMu sync.Mutex

	// Run after rwc is closed, in order
	cleanup []func() error

	stats struct {
		bytesSent     atomic.Uint64
		bytesReceived atomic.Uint64
		writeErrors   atomic.Uint64
		readErrors    atomic.Uint64
	}

	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewStreamChannel wraps rwc and starts reading from it
func NewStreamChannel(name string, rwc io.ReadWriteCloser) *StreamChannel {
	s := &StreamChannel{
		name: name,
		rwc:  rwc,
		rx:   make(chan byte, rxQueueSize),
		done: make(chan struct{}),
	}
	s.state.Store(int32(ChannelStateOpen))

	s.wg.Add(1)
	go s.readLoop()

	return s
}

// Name returns the channel name given at construction
func (s *StreamChannel) Name() string {
	return s.name
}

// State returns the current channel state
func (s *StreamChannel) State() ChannelState {
	return ChannelState(s.state.Load())
}

// addCleanup registers fn to run after the stream is closed
func (s *StreamChannel) addCleanup(fn func() error) {
	s.cleanup = append(s.cleanup, fn)
}

// readLoop continuously reads from the stream into the rx queue
func (s *StreamChannel) readLoop() {
	defer s.wg.Done()
	defer close(s.rx)

	buf := make([]byte, 256)
	for {
		n, err := s.rwc.Read(buf)
		if n > 0 {
			s.stats.bytesReceived.Add(uint64(n))
		}
		for _, b := range buf[:n] {
			select {
			case s.rx <- b:
			case <-s.done:
				return
			}
		}
		if err != nil {
			select {
			case <-s.done:
			default:
				s.stats.readErrors.Add(1)
				s.readErr.Store(err)
			}
			return
		}
	}
}

// ReadByte implements ByteChannel.ReadByte
func (s *StreamChannel) ReadByte(ctx context.Context) (byte, error) {
	select {
	case b, ok := <-s.rx:
		if !ok {
			return 0, s.terminalError()
		}
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.done:
		return 0, ErrChannelClosed
	}
}

func (s *StreamChannel) terminalError() error {
	if err, ok := s.readErr.Load().(error); ok && err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return ErrChannelClosed
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Write implements ByteChannel.Write
func (s *StreamChannel) Write(ctx context.Context, data []byte) error {
	if s.State() == ChannelStateClosed {
		return ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if wd, ok := s.rwc.(writeDeadliner); ok {
		deadline, _ := ctx.Deadline()
		_ = wd.SetWriteDeadline(deadline)
	}

	for written := 0; written < len(data); {
		n, err := s.rwc.Write(data[written:])
		written += n
		s.stats.bytesSent.Add(uint64(n))
		if err != nil {
			s.stats.writeErrors.Add(1)
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() && ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s: write: %w", s.name, err)
		}
	}
	return nil
}

// Close implements ByteChannel.Close
func (s *StreamChannel) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(ChannelStateClosed))
		close(s.done)

		errs := []error{s.rwc.Close()}
		s.wg.Wait()
		for _, fn := range s.cleanup {
			errs = append(errs, fn())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Statistics implements ByteChannel.Statistics
func (s *StreamChannel) Statistics() TransportStats {
	return TransportStats{
		BytesSent:     s.stats.bytesSent.Load(),
		BytesReceived: s.stats.bytesReceived.Load(),
		WriteErrors:   s.stats.writeErrors.Load(),
		ReadErrors:    s.stats.readErrors.Load(),
	}
}

// NewPipe returns two connected in-memory channels
func NewPipe() (*StreamChannel, *StreamChannel) {
	a, b := net.Pipe()
	return NewStreamChannel("pipe-a", a), NewStreamChannel("pipe-b", b)
}
