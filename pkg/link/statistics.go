package link

import "sync/atomic"

// Statistics tracks link-level counters for one connection
type Statistics struct {
	numFramesTx         uint64
	numFramesRx         uint64
	numRetransmissions  uint64
	numTimeouts         uint64
	numRejectsSent      uint64
	numRejectsReceived  uint64
	numDuplicates       uint64
	numChecksumErrors   uint64
	numPayloadsSent     uint64
	numPayloadsReceived uint64
	numBytesDelivered   uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// FrameTx increments transmitted frames
func (s *Statistics) FrameTx() {
	atomic.AddUint64(&s.numFramesTx, 1)
}

// FrameRx increments received valid frames
func (s *Statistics) FrameRx() {
	atomic.AddUint64(&s.numFramesRx, 1)
}

// Retransmission increments frames sent again after a timeout or reject
func (s *Statistics) Retransmission() {
	atomic.AddUint64(&s.numRetransmissions, 1)
}

// Timeout increments expired waits
func (s *Statistics) Timeout() {
	atomic.AddUint64(&s.numTimeouts, 1)
}

// RejectSent increments REJ frames sent
func (s *Statistics) RejectSent() {
	atomic.AddUint64(&s.numRejectsSent, 1)
}

// RejectReceived increments REJ frames received
func (s *Statistics) RejectReceived() {
	atomic.AddUint64(&s.numRejectsReceived, 1)
}

// Duplicate increments suppressed duplicate information frames
func (s *Statistics) Duplicate() {
	atomic.AddUint64(&s.numDuplicates, 1)
}

// ChecksumError increments information frames with a bad payload
func (s *Statistics) ChecksumError() {
	atomic.AddUint64(&s.numChecksumErrors, 1)
}

// PayloadSent records one acknowledged payload
func (s *Statistics) PayloadSent() {
	atomic.AddUint64(&s.numPayloadsSent, 1)
}

// PayloadReceived records one delivered payload of n bytes
func (s *Statistics) PayloadReceived(n int) {
	atomic.AddUint64(&s.numPayloadsReceived, 1)
	atomic.AddUint64(&s.numBytesDelivered, uint64(n))
}

// GetFramesTx returns transmitted frames
func (s *Statistics) GetFramesTx() uint64 {
	return atomic.LoadUint64(&s.numFramesTx)
}

// GetFramesRx returns received valid frames
func (s *Statistics) GetFramesRx() uint64 {
	return atomic.LoadUint64(&s.numFramesRx)
}

// GetRetransmissions returns retransmitted frames
func (s *Statistics) GetRetransmissions() uint64 {
	return atomic.LoadUint64(&s.numRetransmissions)
}

// GetTimeouts returns expired waits
func (s *Statistics) GetTimeouts() uint64 {
	return atomic.LoadUint64(&s.numTimeouts)
}

// GetRejectsSent returns REJ frames sent
func (s *Statistics) GetRejectsSent() uint64 {
	return atomic.LoadUint64(&s.numRejectsSent)
}

// GetRejectsReceived returns REJ frames received
func (s *Statistics) GetRejectsReceived() uint64 {
	return atomic.LoadUint64(&s.numRejectsReceived)
}

// GetDuplicates returns suppressed duplicates
func (s *Statistics) GetDuplicates() uint64 {
	return atomic.LoadUint64(&s.numDuplicates)
}

// GetChecksumErrors returns information frames with a bad payload
func (s *Statistics) GetChecksumErrors() uint64 {
	return atomic.LoadUint64(&s.numChecksumErrors)
}

// GetPayloadsSent returns acknowledged payloads
func (s *Statistics) GetPayloadsSent() uint64 {
	return atomic.LoadUint64(&s.numPayloadsSent)
}

// GetPayloadsReceived returns payloads delivered to the application
func (s *Statistics) GetPayloadsReceived() uint64 {
	return atomic.LoadUint64(&s.numPayloadsReceived)
}

// GetBytesDelivered returns payload bytes delivered to the application
func (s *Statistics) GetBytesDelivered() uint64 {
	return atomic.LoadUint64(&s.numBytesDelivered)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numFramesTx, 0)
	atomic.StoreUint64(&s.numFramesRx, 0)
	atomic.StoreUint64(&s.numRetransmissions, 0)
	atomic.StoreUint64(&s.numTimeouts, 0)
	atomic.StoreUint64(&s.numRejectsSent, 0)
	atomic.StoreUint64(&s.numRejectsReceived, 0)
	atomic.StoreUint64(&s.numDuplicates, 0)
	atomic.StoreUint64(&s.numChecksumErrors, 0)
	atomic.StoreUint64(&s.numPayloadsSent, 0)
	atomic.StoreUint64(&s.numPayloadsReceived, 0)
	atomic.StoreUint64(&s.numBytesDelivered, 0)
}
