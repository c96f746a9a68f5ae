package logfwd

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var goroutinePrefix = []byte("goroutine ")

var stackBuf = sync.Pool{
	New: func() any {
		buf := make([]byte, 64)
		return &buf
	},
}

// goroutineID returns the id of the calling goroutine, or 0 if it cannot be parsed
func goroutineID() uint64 {
	bp := stackBuf.Get().(*[]byte)
	defer stackBuf.Put(bp)
	b := *bp
	b = b[:runtime.Stack(b, false)]
	// Parse the 4707 out of "goroutine 4707 ["
	b = bytes.TrimPrefix(b, goroutinePrefix)
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	n, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
