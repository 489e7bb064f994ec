// Package buffer provides pooled byte buffers for chunk assembly and
// in-place skips. Buffers are bucketed by size class so a 2KiB footer fill
// and a 16MiB sequential fetch do not fight over the same pool.
package buffer

import (
	"sync"
	"sync/atomic"
)

// Size classes from the footer zone floor up to large sequential chunks.
var sizeClasses = []int{
	512,
	2 * 1024,
	8 * 1024,
	64 * 1024,
	512 * 1024,
	4 * 1024 * 1024,
	16 * 1024 * 1024,
}

// Pool is a size-bucketed byte slice pool.
type Pool struct {
	pools []sync.Pool

	gets    atomic.Int64
	puts    atomic.Int64
	misses  atomic.Int64
	oversiz atomic.Int64
}

// NewPool creates a buffer pool with one bucket per size class.
func NewPool() *Pool {
	p := &Pool{pools: make([]sync.Pool, len(sizeClasses))}
	for i, size := range sizeClasses {
		size := size
		p.pools[i].New = func() interface{} {
			p.misses.Add(1)
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Get returns a buffer with length n. Requests larger than the biggest size
// class are allocated directly and not pooled on return.
func (p *Pool) Get(n int) []byte {
	p.gets.Add(1)
	idx := classFor(n)
	if idx < 0 {
		p.oversiz.Add(1)
		return make([]byte, n)
	}
	buf := *(p.pools[idx].Get().(*[]byte))
	return buf[:n]
}

// Put returns a buffer to its bucket. Buffers that do not match a size class
// capacity are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	for i, size := range sizeClasses {
		if c == size {
			p.puts.Add(1)
			full := buf[:c]
			p.pools[i].Put(&full)
			return
		}
	}
}

// Stats reports pool activity counters.
func (p *Pool) Stats() (gets, puts, misses, oversized int64) {
	return p.gets.Load(), p.puts.Load(), p.misses.Load(), p.oversiz.Load()
}

func classFor(n int) int {
	for i, size := range sizeClasses {
		if n <= size {
			return i
		}
	}
	return -1
}
