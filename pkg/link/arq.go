package link

import (
	"context"
	"fmt"
)

// Send delivers payload as one information frame using stop-and-wait. The
// frame is retransmitted unchanged on timeout or REJ. A stale RR, a late
// answer to an earlier transmission, is ignored without restarting the
// timer. The send sequence bit flips only once RR(next) arrives. After
// MaxRetries transmissions the connection is dead.
func (c *Connection) Send(ctx context.Context, payload []byte) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if len(payload) > c.cfg.MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), c.cfg.MaxPayloadSize)
	}

	next := c.sendSeq ^ 1
	_, err := c.transact(ctx, transaction{
		frame:  EncodeInformation(c.address, c.sendSeq, payload),
		accept: AcceptResponse,
		match: func(f *Frame) verdict {
			switch {
			case f.Control == ControlREJ:
				c.stats.RejectReceived()
				return verdictRetry
			case f.Sequence == next:
				return verdictDone
			}
			return verdictIgnore
		},
	})
	if err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}

	c.sendSeq = next
	c.stats.PayloadSent()
	return len(payload), nil
}

// Receive blocks until a new payload arrives and returns it after
// acknowledging it with RR. Retransmitted frames are acknowledged again but
// not redelivered. A frame whose payload fails verification is answered
// with REJ. When the peer sends DISC, Receive answers DISC and returns
// ErrDisconnected; Close then completes the exchange.
func (c *Connection) Receive(ctx context.Context) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	accept := AcceptData
	if c.cfg.Role == RoleResponder {
		// The initiator repeats SET if our UA was lost
		accept |= AcceptSET
	}

	for {
		f, err := c.read(ctx, ctx, accept)
		if f == nil {
			return nil, fmt.Errorf("receive: %w", err)
		}

		switch f.Control {
		case ControlSET:
			c.logger.Debug("Link: repeated SET, answering UA")
			if err := c.reply(ctx, ControlUA, 0); err != nil {
				return nil, fmt.Errorf("receive: %w", err)
			}

		case ControlDISC:
			c.logger.Info("Link: peer disconnecting")
			c.peerDisc = true
			c.setState(LinkStateDisconnecting, ErrDisconnected)
			if err := c.reply(ctx, ControlDISC, 0); err != nil {
				return nil, fmt.Errorf("receive: %w", err)
			}
			return nil, ErrDisconnected

		case ControlInfo:
			if err == nil && len(f.Payload) > c.cfg.MaxPayloadSize {
				err = ErrPayloadTooLarge
			}
			payload, err := c.acceptInformation(ctx, f, err)
			if err != nil {
				return nil, fmt.Errorf("receive: %w", err)
			}
			if payload != nil {
				return payload, nil
			}
		}
	}
}

// acceptInformation applies the sequence rules to one information frame.
// It returns the payload for a new frame and nil for a duplicate or a
// damaged frame.
func (c *Connection) acceptInformation(ctx context.Context, f *Frame, frameErr error) ([]byte, error) {
	duplicate := f.Sequence != c.expectedSeq

	if frameErr != nil {
		c.stats.ChecksumError()
		if duplicate {
			// Header says we already have it, so the payload is not needed
			c.logger.Debug("Link: damaged duplicate I(%d): %v", f.Sequence, frameErr)
			return nil, c.reply(ctx, ControlRR, c.expectedSeq)
		}
		c.logger.Debug("Link: damaged I(%d): %v, sending REJ(%d)", f.Sequence, frameErr, c.expectedSeq)
		c.stats.RejectSent()
		return nil, c.reply(ctx, ControlREJ, c.expectedSeq)
	}

	if duplicate {
		c.logger.Debug("Link: duplicate I(%d), re-sending RR(%d)", f.Sequence, c.expectedSeq)
		c.stats.Duplicate()
		return nil, c.reply(ctx, ControlRR, c.expectedSeq)
	}

	c.expectedSeq ^= 1
	if err := c.reply(ctx, ControlRR, c.expectedSeq); err != nil {
		return nil, err
	}

	payload := f.Payload
	if payload == nil {
		payload = []byte{}
	}
	c.stats.PayloadReceived(len(payload))
	return payload, nil
}

func (c *Connection) checkOpen() error {
	switch {
	case !c.IsAlive():
		return ErrConnectionDead
	case c.peerDisc || c.State() == LinkStateDisconnected:
		return ErrDisconnected
	case c.State() != LinkStateOpen || c.released:
		return ErrInvalidState
	}
	return nil
}
