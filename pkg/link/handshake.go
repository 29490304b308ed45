package link

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// openInitiator sends SET until the peer answers UA
func (c *Connection) openInitiator(ctx context.Context) error {
	_, err := c.transact(ctx, transaction{
		frame:  EncodeSupervisory(c.address, CtrlSET),
		accept: AcceptUA,
		match:  matchAny,
	})
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	return nil
}

func matchAny(*Frame) verdict { return verdictDone }

// openResponder blocks until a valid SET arrives and answers UA. There is
// no timer; only ctx bounds the wait.
func (c *Connection) openResponder(ctx context.Context) error {
	if _, err := c.read(ctx, ctx, AcceptSET); err != nil {
		return fmt.Errorf("open: waiting for SET: %w", err)
	}
	if err := c.reply(ctx, ControlUA, 0); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	return nil
}

// Close disconnects and releases the channel. The initiator sends DISC,
// waits for the peer's DISC and answers UA. The responder waits for the
// initiator's DISC if Receive has not already seen it, answers DISC and
// waits for the final UA. The channel is released even if the exchange
// fails.
func (c *Connection) Close(ctx context.Context) error {
	if c.released {
		return nil
	}

	var err error
	switch {
	case !c.IsAlive():
		err = ErrConnectionDead
	case c.State() != LinkStateOpen && c.State() != LinkStateDisconnecting:
		err = ErrInvalidState
	case c.cfg.Role == RoleInitiator:
		err = c.closeInitiator(ctx)
	default:
		err = c.closeResponder(ctx)
	}

	if err == nil {
		c.setState(LinkStateDisconnected, nil)
		c.logger.Info("Link: closed")
	} else {
		c.logger.Warn("Link: close: %v", err)
	}

	if relErr := c.release(); relErr != nil {
		c.logger.Warn("Link: release channel: %v", relErr)
	}
	return err
}

func (c *Connection) closeInitiator(ctx context.Context) error {
	c.setState(LinkStateDisconnecting, nil)

	_, err := c.transact(ctx, transaction{
		frame:  EncodeSupervisory(c.address, CtrlDISC),
		accept: AcceptDISC,
		match:  matchAny,
	})
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if err := c.reply(ctx, ControlUA, 0); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func (c *Connection) closeResponder(ctx context.Context) error {
	if !c.peerDisc {
		if err := c.drainUntilDisc(ctx); err != nil {
			return fmt.Errorf("close: %w", err)
		}
	}

	// Our DISC went out when the peer's DISC was received. A repeated DISC
	// means ours was lost and is answered by retransmitting.
	_, err := c.transact(ctx, transaction{
		frame:  EncodeSupervisory(c.address, CtrlDISC),
		accept: NewControlSet(ControlUA, ControlDISC),
		match: func(f *Frame) verdict {
			if f.Control == ControlUA {
				return verdictDone
			}
			return verdictRetry
		},
		sent:   true,
	})
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// drainUntilDisc keeps servicing the receive path until the initiator's
// DISC arrives, discarding any payloads still in flight. The wait is
// bounded by the full retry budget.
func (c *Connection) drainUntilDisc(ctx context.Context) error {
	budget := time.Duration(c.cfg.MaxRetries) * c.cfg.Timeout
	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	for {
		payload, err := c.Receive(waitCtx)
		switch {
		case errors.Is(err, ErrDisconnected):
			return nil
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			err = fmt.Errorf("%w: no DISC from peer: %w", ErrConnectivity, ErrTimeout)
			c.fail(err)
			return err
		case err != nil:
			return err
		}
		c.logger.Warn("Link: discarding %d byte payload received during close", len(payload))
	}
}
