package ss

import "sync"

// Scratch buffers for sort keys during flushes. Row keys handed to storage
// are always fresh copies, never pooled memory.
var sortKeyBufPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 1024)
	},
}

func getSortKeyBuf() []byte {
	return sortKeyBufPool.Get().([]byte)[:0]
}

func releaseSortKeyBuf(b []byte) {
	sortKeyBufPool.Put(b[:0])
}
