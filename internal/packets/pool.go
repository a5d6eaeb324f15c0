package packets

import "sync"

const pooledBufferSize = 4096

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, pooledBufferSize)
		return &buf
	},
}

// GetBuffer returns a buffer of at least size bytes. Buffers larger than the
// pooled size are allocated directly and never returned to the pool.
func GetBuffer(size int) *[]byte {
	if size > pooledBufferSize {
		buf := make([]byte, size)
		return &buf
	}
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(bufPtr *[]byte) {
	if cap(*bufPtr) != pooledBufferSize {
		return
	}
	bufferPool.Put(bufPtr)
}
