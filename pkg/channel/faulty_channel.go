package channel

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
)

// FaultConfig controls the impairments applied by FaultyChannel. Each
// Write call is treated as one frame.
type FaultConfig struct {
	DropRate    float64 // Probability of silently discarding a write
	CorruptRate float64 // Probability of flipping one bit in a write
	Seed        int64   // Seed for the random source (0 = 1)
}

// FaultStats reports the impairments applied so far
type FaultStats struct {
	Dropped   uint64
	Corrupted uint64
}

// FaultyChannel wraps a ByteChannel and impairs outgoing writes. It is used
// to exercise retransmission over otherwise perfect channels.
type FaultyChannel struct {
	ByteChannel

	config FaultConfig

	mu          sync.Mutex
	rng         *rand.Rand
	dropNext    int
	corruptNext int

	dropped   atomic.Uint64
	corrupted atomic.Uint64
}

// NewFaultyChannel wraps inner with the given fault configuration
func NewFaultyChannel(inner ByteChannel, config FaultConfig) *FaultyChannel {
	seed := config.Seed
	if seed == 0 {
		seed = 1
	}
	return &FaultyChannel{
		ByteChannel: inner,
		config:      config,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// DropWrites discards the next n writes unconditionally
func (f *FaultyChannel) DropWrites(n int) {
	f.mu.Lock()
	f.dropNext += n
	f.mu.Unlock()
}

// CorruptWrites flips a bit in each of the next n writes unconditionally
func (f *FaultyChannel) CorruptWrites(n int) {
	f.mu.Lock()
	f.corruptNext += n
	f.mu.Unlock()
}

// FaultStats returns the number of writes dropped and corrupted
func (f *FaultyChannel) FaultStats() FaultStats {
	return FaultStats{
		Dropped:   f.dropped.Load(),
		Corrupted: f.corrupted.Load(),
	}
}

// Write implements ByteChannel.Write
func (f *FaultyChannel) Write(ctx context.Context, data []byte) error {
	drop, corrupt, bit := f.decide(len(data))

	if drop {
		f.dropped.Add(1)
		return nil
	}
	if corrupt {
		f.corrupted.Add(1)
		mangled := make([]byte, len(data))
		copy(mangled, data)
		mangled[bit/8] ^= 1 << (bit % 8)
		data = mangled
	}
	return f.ByteChannel.Write(ctx, data)
}

// decide picks the impairment for a write of n bytes. Corruption never
// touches the opening or closing flag so that the damage stays inside the
// frame.
func (f *FaultyChannel) decide(n int) (drop, corrupt bool, bit int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.dropNext > 0:
		f.dropNext--
		return true, false, 0
	case f.config.DropRate > 0 && f.rng.Float64() < f.config.DropRate:
		return true, false, 0
	}

	if n < 3 {
		return false, false, 0
	}
	switch {
	case f.corruptNext > 0:
		f.corruptNext--
	case f.config.CorruptRate > 0 && f.rng.Float64() < f.config.CorruptRate:
	default:
		return false, false, 0
	}
	return false, true, 8 + f.rng.Intn((n-2)*8)
}
