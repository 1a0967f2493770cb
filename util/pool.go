package util

import "sync"

// DefaultReadSize is the size of a single inbound read.  One read is
// one chat payload, so this also caps the length of a message.
const DefaultReadSize = 1024

// BufPool hands out fixed-size read buffers so that a room with many
// idle sessions does not keep one allocation per blocked reader alive
// between messages.
type BufPool struct {
	size int
	pool sync.Pool
}

// NewBufPool returns a pool of size-byte buffers.  A non-positive size
// falls back to [DefaultReadSize].
func NewBufPool(size int) *BufPool {
	if size <= 0 {
		size = DefaultReadSize
	}
	p := &BufPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Size returns the length of every buffer in the pool.
func (p *BufPool) Size() int { return p.size }

// Get retrieves a buffer.  Callers must return it with [BufPool.Put].
func (p *BufPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool.  Buffers of the wrong size are
// dropped.
func (p *BufPool) Put(buf *[]byte) {
	if buf == nil || len(*buf) != p.size {
		return
	}
	p.pool.Put(buf)
}
