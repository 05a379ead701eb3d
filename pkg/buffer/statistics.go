package buffer

import (
	"sync/atomic"
)

// Statistics tracks buffer activity. All counters are cumulative since
// creation; HighWater is the maximum observed occupancy.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	drops     atomic.Int64
	overflows atomic.Int64
	highWater atomic.Int64
}

// NewStatistics creates a zeroed statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Write records a successful write and updates the high-water mark.
func (s *Statistics) Write(size int) {
	s.writes.Add(1)
	for {
		hw := s.highWater.Load()
		if int64(size) <= hw {
			return
		}
		if s.highWater.CompareAndSwap(hw, int64(size)) {
			return
		}
	}
}

// Read records a successful read.
func (s *Statistics) Read(_ int) {
	s.reads.Add(1)
}

// Drop records an item lost to the overflow policy.
func (s *Statistics) Drop() {
	s.drops.Add(1)
}

// Overflow records a write that hit a full buffer.
func (s *Statistics) Overflow() {
	s.overflows.Add(1)
}

// Writes returns the cumulative successful writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the cumulative successful reads.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the cumulative dropped items.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// Overflows returns the cumulative overflow events.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// HighWater returns the maximum observed occupancy.
func (s *Statistics) HighWater() int64 { return s.highWater.Load() }
