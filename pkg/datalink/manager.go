package datalink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"avaneesh/datalink-go/pkg/channel"
	"avaneesh/datalink-go/pkg/internal/logger"
	"avaneesh/datalink-go/pkg/link"
	"avaneesh/datalink-go/pkg/metrics"
)

// Open opens the channel named by channelID and runs the connect
// handshake for role with the default link configuration
func Open(ctx context.Context, channelID string, role link.Role) (*link.Connection, error) {
	ch, err := OpenChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return link.Open(ctx, ch, link.DefaultConfig(role))
}

// Manager owns the open connections of a process, keyed by channel id
type Manager struct {
	links     map[string]*managed
	collector *metrics.LinkCollector
	mu        sync.RWMutex
	logger    logger.Logger
}

type managed struct {
	conn *link.Connection
	ch   channel.ByteChannel
}

// NewManager creates a new manager
func NewManager() *Manager {
	return NewManagerWithLogger(logger.GetDefault())
}

// NewManagerWithLogger creates a new manager with custom logger
func NewManagerWithLogger(log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Manager{
		links:  make(map[string]*managed),
		logger: log,
	}
}

// SetCollector exports every connection opened from now on through c
func (m *Manager) SetCollector(c *metrics.LinkCollector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collector = c
}

// Open opens channelID and establishes a connection over it. The
// connection stays registered until Close or Shutdown.
func (m *Manager) Open(ctx context.Context, channelID string, cfg link.Config, opts ChannelOptions) (*link.Connection, error) {
	m.mu.RLock()
	_, exists := m.links[channelID]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("channel %s already open", channelID)
	}

	ch, err := OpenChannelWithOptions(ctx, channelID, opts)
	if err != nil {
		return nil, err
	}
	log := m.getLogger()
	if cfg.Logger == nil {
		cfg.Logger = log
	}

	conn, err := link.Open(ctx, ch, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open link on %s: %w", channelID, err)
	}

	m.mu.Lock()
	if _, exists := m.links[channelID]; exists {
		m.mu.Unlock()
		if err := conn.Close(ctx); err != nil {
			log.Warn("Manager: Closing duplicate link on %s: %v", channelID, err)
		}
		return nil, fmt.Errorf("channel %s already open", channelID)
	}
	m.links[channelID] = &managed{conn: conn, ch: ch}
	if m.collector != nil {
		m.collector.Track(channelID, conn, ch)
	}
	m.mu.Unlock()

	log.Info("Manager: Opened %s link on %s", cfg.Role, channelID)
	return conn, nil
}

// Get returns the connection open on channelID
func (m *Manager) Get(channelID string) (*link.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.links[channelID]
	if !exists {
		return nil, false
	}
	return entry.conn, true
}

// Close disconnects the link on channelID and forgets it
func (m *Manager) Close(ctx context.Context, channelID string) error {
	m.mu.Lock()
	entry, exists := m.links[channelID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("channel %s not found", channelID)
	}
	delete(m.links, channelID)
	collector := m.collector
	log := m.logger
	m.mu.Unlock()

	if collector != nil {
		collector.Untrack(channelID)
	}
	err := entry.conn.Close(ctx)
	if err != nil {
		log.Error("Manager: Error closing %s: %v", channelID, err)
	} else {
		log.Info("Manager: Closed %s", channelID)
	}
	return err
}

// Shutdown closes every connection, returning the joined close errors
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	log := m.logger
	m.mu.Unlock()

	log.Info("Manager: Shutting down")

	var errs []error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}

	log.Info("Manager: Shutdown complete")
	return errors.Join(errs...)
}

// Count returns the number of open connections
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.links)
}

// SetLogger sets the logger for connections opened from now on
func (m *Manager) SetLogger(log logger.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = log
}

func (m *Manager) getLogger() logger.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}
