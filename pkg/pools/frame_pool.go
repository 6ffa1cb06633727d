// Package pools recycles the byte buffers RPC frames are decompressed into.
package pools

import "sync"

// Frame buffer size classes
const (
	SmallFrame  = 4 << 10
	MediumFrame = 16 << 10
	LargeFrame  = 64 << 10
	MaxPooled   = 256 << 10 // Larger buffers are left to the GC
)

var classes = [...]int{SmallFrame, MediumFrame, LargeFrame, MaxPooled}

// FramePool hands out byte slices by size class.
//
// Concurrent Safety: safe for concurrent use; a buffer must not be used
// after it is Put back.
type FramePool struct {
	pools [len(classes)]sync.Pool
}

// NewFramePool creates an empty pool
func NewFramePool() *FramePool {
	p := &FramePool{}
	for i, size := range classes {
		p.pools[i].New = func() any {
			b := make([]byte, 0, size)
			return &b
		}
	}
	return p
}

func classOf(size int) int {
	for i, c := range classes {
		if size <= c {
			return i
		}
	}
	return -1
}

// Get returns a slice of length size
func (p *FramePool) Get(size int) []byte {
	i := classOf(size)
	if i < 0 {
		return make([]byte, size)
	}
	bp, ok := p.pools[i].Get().(*[]byte)
	if !ok || cap(*bp) < size {
		return make([]byte, size)
	}
	return (*bp)[:size]
}

// Put returns b for reuse. Buffers over MaxPooled are dropped.
func (p *FramePool) Put(b []byte) {
	c := cap(b)
	if c > MaxPooled {
		return
	}
	// File under the largest class the capacity fully covers
	i := len(classes) - 1
	for i >= 0 && classes[i] > c {
		i--
	}
	if i < 0 {
		return
	}
	b = b[:0]
	p.pools[i].Put(&b)
}

var defaultPool = NewFramePool()

// Get returns a buffer from the shared pool
func Get(size int) []byte { return defaultPool.Get(size) }

// Put returns a buffer to the shared pool
func Put(b []byte) { defaultPool.Put(b) }
