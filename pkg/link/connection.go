package link

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"avaneesh/datalink-go/pkg/channel"
	"avaneesh/datalink-go/pkg/internal/logger"
)

var _ Link = (*Connection)(nil)

// Connection is one endpoint of an open link. It owns its channel from Open
// until Close. A Connection is driven by a single goroutine and is not safe
// for concurrent use, except that State, IsAlive and Statistics may be read
// from any goroutine.
type Connection struct {
	// Configuration
	cfg     Config
	address byte // Stamped on our frames
	peer    byte // Expected on the peer's frames

	ch channel.ByteChannel
	rx *Receiver

	// State
	state       atomic.Int32 // LinkState
	alive       atomic.Bool
	sendSeq     byte // Sequence bit of the next information frame we send
	expectedSeq byte // Sequence bit of the next new frame we accept
	retries     int  // Transmissions of the current frame
	peerDisc    bool // DISC received and answered by Receive
	released    bool

	stats  *Statistics
	logger logger.Logger
}

// Open runs the connection handshake for cfg.Role over ch. The initiator
// sends SET until UA arrives; the responder waits for SET and answers UA.
// If the handshake fails the channel is closed before returning.
func Open(ctx context.Context, ch channel.ByteChannel, cfg Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid link config: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	c := &Connection{
		cfg:     cfg,
		address: cfg.Role.Address(),
		peer:    cfg.Role.PeerAddress(),
		ch:      ch,
		rx:      NewReceiver(cfg.MaxPayloadSize),
		stats:   NewStatistics(),
		logger:  log,
	}
	c.state.Store(int32(LinkStateClosed))
	c.alive.Store(true)

	c.setState(LinkStateConnecting, nil)

	var err error
	if cfg.Role == RoleInitiator {
		err = c.openInitiator(ctx)
	} else {
		err = c.openResponder(ctx)
	}
	if err != nil {
		if relErr := c.release(); relErr != nil {
			c.logger.Warn("Link: release after failed open: %v", relErr)
		}
		return nil, err
	}

	c.setState(LinkStateOpen, nil)
	c.logger.Info("Link: open as %s", cfg.Role)
	return c, nil
}

// Role returns the role fixed at open time
func (c *Connection) Role() Role {
	return c.cfg.Role
}

// State returns current link state
func (c *Connection) State() LinkState {
	return LinkState(c.state.Load())
}

// IsAlive returns false once a retry budget has been exhausted
func (c *Connection) IsAlive() bool {
	return c.alive.Load()
}

// Statistics returns the connection counters
func (c *Connection) Statistics() *Statistics {
	return c.stats
}

// MaxPayloadSize returns the largest payload Send accepts
func (c *Connection) MaxPayloadSize() int {
	return c.cfg.MaxPayloadSize
}

func (c *Connection) setState(state LinkState, err error) {
	prev := LinkState(c.state.Swap(int32(state)))
	if prev == state {
		return
	}
	c.logger.Debug("Link: %s -> %s", prev, state)
	if c.cfg.StatusCallback != nil {
		c.cfg.StatusCallback(state, err)
	}
}

// fail marks the connection dead after retry exhaustion
func (c *Connection) fail(err error) {
	c.alive.Store(false)
	c.setState(LinkStateDead, err)
	c.logger.Error("Link: %v", err)
}

// transmit writes one encoded frame to the channel
func (c *Connection) transmit(ctx context.Context, frame []byte) error {
	if logger.FrameDebug() {
		c.logger.Debug("Link TX [%d bytes]: % X", len(frame), frame)
	}
	if err := c.ch.Write(ctx, frame); err != nil {
		return fmt.Errorf("link write: %w", err)
	}
	c.stats.FrameTx()
	return nil
}

// reply sends a supervisory frame from this endpoint
func (c *Connection) reply(ctx context.Context, ctrl Control, seq byte) error {
	return c.transmit(ctx, EncodeSupervisory(c.address, ControlByte(ctrl, seq)))
}

// await reads the next frame from the peer whose control is in accept,
// bounded by deadline. Information frames with a damaged payload are
// returned together with ErrChecksum or ErrMalformedFrame.
func (c *Connection) await(ctx context.Context, deadline time.Time, accept ControlSet) (*Frame, error) {
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return c.read(waitCtx, ctx, accept)
}

// read is await without the timeout; parent distinguishes our own deadline
// from the caller's
func (c *Connection) read(ctx, parent context.Context, accept ControlSet) (*Frame, error) {
	c.rx.Expect(c.peer, accept)
	f, err := c.rx.ReadFrame(ctx, c.ch)
	if f == nil {
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			return nil, ErrTimeout
		}
		return nil, err
	}
	c.stats.FrameRx()
	if logger.FrameDebug() {
		c.logger.Debug("Link RX %s", f)
	}
	return f, err
}

// verdict is what a transaction does with one response
type verdict int

const (
	verdictDone   verdict = iota // Exchange complete
	verdictRetry                 // Retransmit now
	verdictIgnore                // Keep waiting in the same timeout window
)

// transaction describes one retried request/response exchange
type transaction struct {
	frame  []byte               // Request, sent unchanged on every attempt
	accept ControlSet           // Responses the receiver recognizes
	match  func(*Frame) verdict // Classifies a response
	sent   bool                 // First transmission already happened
}

// transact sends tx.frame and waits for a matching response. A timeout or
// a response judged verdictRetry causes a retransmission of the same frame;
// an ignored response does not restart the timer. After MaxRetries
// transmissions without success the connection is dead.
func (c *Connection) transact(ctx context.Context, tx transaction) (*Frame, error) {
	c.retries = 0
	skip := tx.sent
	if skip {
		c.retries = 1
	}

	for {
		if !skip {
			if c.retries > 0 {
				c.stats.Retransmission()
				c.logger.Debug("Link: retransmission %d/%d", c.retries, c.cfg.MaxRetries-1)
			}
			if err := c.transmit(ctx, tx.frame); err != nil {
				return nil, err
			}
			c.retries++
		}
		skip = false

		if f, err := c.awaitVerdict(ctx, tx); f != nil || err != nil {
			return f, err
		}

		if c.retries >= c.cfg.MaxRetries {
			err := fmt.Errorf("%w after %d transmissions: %w", ErrMaxRetriesExceeded, c.retries, ErrConnectivity)
			c.fail(err)
			return nil, err
		}
	}
}

// awaitVerdict waits one timeout window for a response that completes tx.
// It returns nil, nil when tx.frame should be sent again.
func (c *Connection) awaitVerdict(ctx context.Context, tx transaction) (*Frame, error) {
	deadline := time.Now().Add(c.cfg.Timeout)
	for {
		f, err := c.await(ctx, deadline, tx.accept)
		switch {
		case errors.Is(err, ErrTimeout):
			c.stats.Timeout()
			c.logger.Debug("Link: timeout after %v", c.cfg.Timeout)
			return nil, nil
		case err != nil:
			return nil, err
		}

		switch tx.match(f) {
		case verdictDone:
			return f, nil
		case verdictRetry:
			c.logger.Debug("Link: %s, retransmitting", f)
			return nil, nil
		default:
			c.logger.Debug("Link: ignoring stale %s", f)
		}
	}
}

// release closes the channel exactly once
func (c *Connection) release() error {
	if c.released {
		return nil
	}
	c.released = true
	return c.ch.Close()
}
