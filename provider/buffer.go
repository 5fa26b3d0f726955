package provider

import (
	"io"
	"sync"
)

// DefaultBufferSize is the copy buffer size used by the local backend.
const DefaultBufferSize = 1 * 1024 * 1024

// BufferPool hands out reusable copy buffers so concurrent uploads do not
// allocate one per file.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a BufferPool of buffers of the given size.
// If size is <= 0, DefaultBufferSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of the buffers handed out by the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get retrieves a buffer. The caller must Put it back when done.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns the buffer to the pool.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil {
		bp.pool.Put(b)
	}
}

// Copy copies src to dst through a pooled buffer.
func (bp *BufferPool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := bp.Get()
	defer bp.Put(buf)
	return io.CopyBuffer(dst, src, *buf)
}
