package protocol

import (
	"sync"

	"github.com/pkg/errors"
)

var debruijinPos = [...]byte{0, 9, 1, 10, 13, 21, 2, 29, 11, 14, 16, 18, 22, 25, 3, 30, 8, 12, 20, 28, 15, 17, 24, 7, 19, 27, 23, 6, 26, 5, 4, 31}

// Allocator is a power-of-two bucketed []byte pool, the same shape as
// smux's frame allocator: a fixed ladder of sync.Pool buckets sized
// 1B..64K, so the memory wasted by rounding up to the next bucket is
// never more than 50%. Reactor read loops use it for their scratch
// receive buffer, whose lifetime never leaves the call that got it.
type Allocator struct {
	buffers []sync.Pool
}

// NewAllocator builds a ladder of 17 buckets (1B through 64K).
func NewAllocator() *Allocator {
	alloc := &Allocator{buffers: make([]sync.Pool, 17)}
	for k := range alloc.buffers {
		size := 1 << uint(k)
		alloc.buffers[k].New = func() interface{} {
			b := make([]byte, size)
			return &b
		}
	}
	return alloc
}

// Get returns a []byte of length size from the bucket with the
// smallest capacity that still fits it.
func (a *Allocator) Get(size int) *[]byte {
	if size <= 0 || size > 65536 {
		return nil
	}
	bits := msb(size)
	var p *[]byte
	if size == 1<<bits {
		p = a.buffers[bits].Get().(*[]byte)
	} else {
		p = a.buffers[bits+1].Get().(*[]byte)
	}
	*p = (*p)[:size]
	return p
}

// Put returns p to the pool. p's capacity must be exactly a power of
// two, as handed out by Get.
func (a *Allocator) Put(p *[]byte) error {
	if p == nil {
		return errors.New("protocol: allocator Put() on nil buffer")
	}
	bits := msb(cap(*p))
	if cap(*p) == 0 || cap(*p) > 65536 || cap(*p) != 1<<bits {
		return errors.New("protocol: allocator Put() with non-power-of-two capacity")
	}
	a.buffers[bits].Put(p)
	return nil
}

func msb(size int) byte {
	v := uint32(size)
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return debruijinPos[(v*0x07C4ACDD)>>27]
}

// DefaultAllocator is shared process-wide, matching smux's package-level
// defaultAllocator.
var DefaultAllocator = NewAllocator()
