package logfwd

import (
	"github.com/valyala/bytebufferpool"
)

// bufferPool is the free list of staging buffers.
// Guarded by the pipeline mutex; overflow past maxIdleBuffers spills into a bytebufferpool.Pool.
type bufferPool struct {
	free  []*bytebufferpool.ByteBuffer
	spill bytebufferpool.Pool
}

// acquire returns an empty buffer, reusing a released one when available
func (bp *bufferPool) acquire() *bytebufferpool.ByteBuffer {
	if n := len(bp.free); n > 0 {
		buf := bp.free[n-1]
		bp.free[n-1] = nil
		bp.free = bp.free[:n-1]
		return buf
	}
	return bp.spill.Get()
}

// release resets buf and returns it to the free list
func (bp *bufferPool) release(buf *bytebufferpool.ByteBuffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	if len(bp.free) < maxIdleBuffers {
		bp.free = append(bp.free, buf)
		return
	}
	bp.spill.Put(buf)
}

// idle reports the number of buffers held in the free list
func (bp *bufferPool) idle() int {
	return len(bp.free)
}
