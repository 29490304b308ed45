package link

import (
	"context"
	"fmt"
	"time"

	"avaneesh/datalink-go/pkg/internal/logger"
)

// Link is the application-facing side of an open connection
type Link interface {
	// Send delivers one payload reliably, returning the payload length
	Send(ctx context.Context, payload []byte) (int, error)

	// Receive blocks for the next new payload. ErrDisconnected reports
	// that the peer closed the link.
	Receive(ctx context.Context) ([]byte, error)

	// Close runs the disconnect handshake and releases the channel
	Close(ctx context.Context) error

	// State management
	State() LinkState
	IsAlive() bool
}

// StatusCallback is called when the link state changes
type StatusCallback func(state LinkState, err error)

// Config contains configuration for a link connection. Both endpoints must
// use the same MaxPayloadSize; it is not negotiated.
type Config struct {
	Role           Role           // Initiator or responder
	Timeout        time.Duration  // Wait for each response
	MaxRetries     int            // Transmissions per frame before giving up
	MaxPayloadSize int            // Largest payload accepted by Send and Receive
	StatusCallback StatusCallback // Callback for state changes
	Logger         logger.Logger  // Optional, defaults to the package logger
}

// DefaultConfig returns default configuration
func DefaultConfig(role Role) Config {
	return Config{
		Role:           role,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		MaxPayloadSize: DefaultMaxPayloadSize,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Role != RoleInitiator && c.Role != RoleResponder {
		return ErrInvalidRole
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.MaxPayloadSize < 1 {
		return fmt.Errorf("max payload size must be at least 1, got %d", c.MaxPayloadSize)
	}
	return nil
}
