// Package avbuf implements the zero-copy byte-buffer substrate shared by the
// MPEG-TS demuxer and the elementary-stream storage layer: owned or borrowed
// byte regions addressed by three cursors (head, tail, limit) plus a sticky
// overflow flag.
package avbuf

import "fmt"

// Allocator supplies backing storage for owning Buffers. The zero value of
// DefaultAllocator performs ordinary heap allocation and ignores region.
type Allocator interface {
	Alloc(size int, region int) []byte
}

// DefaultAllocator allocates from the Go heap and ignores the region tag.
type DefaultAllocator struct{}

// Alloc returns a freshly made byte slice of the requested size.
func (DefaultAllocator) Alloc(size int, region int) []byte {
	return make([]byte, size)
}

// Buffer is a contiguous byte region with head/tail/limit cursors. size =
// tail - head is the readable span; available = limit - tail is the
// writable span. A Buffer either owns its backing array (allocated through
// an Allocator) or borrows a window of a parent Buffer's backing array.
//
// Buffers are single-owner: copying a Buffer value shares no meaningful
// invariant with the original once either is mutated, so callers pass
// *Buffer, never Buffer by value, once a Buffer has been constructed.
type Buffer struct {
	data     []byte
	head     int
	tail     int
	limit    int
	overflow bool
	region   int
}

// New allocates an owning Buffer of the given size using alloc. A nil
// allocator uses DefaultAllocator.
func New(size int, region int, alloc Allocator) *Buffer {
	if alloc == nil {
		alloc = DefaultAllocator{}
	}
	return &Buffer{
		data:   alloc.Alloc(size, region),
		limit:  size,
		region: region,
	}
}

// Wrap creates a Buffer borrowing an existing byte slice as its backing
// array, with tail initialized past any bytes already present in data.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data, tail: len(data), limit: len(data)}
}

// Size returns the number of unread bytes.
func (b *Buffer) Size() int { return b.tail - b.head }

// Available returns the number of bytes that can still be written.
func (b *Buffer) Available() int { return b.limit - b.tail }

// Empty reports whether the buffer has no unread bytes.
func (b *Buffer) Empty() bool { return b.head == b.tail }

// Overflow reports whether a prior pull or skip exceeded the readable span.
func (b *Buffer) Overflow() bool { return b.overflow }

// Reset rewinds head and tail to the start of the buffer, clearing overflow.
func (b *Buffer) Reset() {
	b.head = 0
	b.tail = 0
	b.overflow = false
}

// Bytes returns the unread portion of the buffer. The returned slice aliases
// the buffer's backing array and is invalidated by the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.data[b.head:b.tail]
}

// PushBytes appends up to min(len(src), Available()) bytes from src,
// returning the number of bytes copied.
func (b *Buffer) PushBytes(src []byte) int {
	n := len(src)
	if avail := b.Available(); n > avail {
		n = avail
	}
	copy(b.data[b.tail:b.tail+n], src[:n])
	b.tail += n
	return n
}

// Obtain reserves n bytes at tail and returns a writable slice over them, or
// nil if fewer than n bytes are available. The caller is responsible for
// filling the returned slice; the buffer's tail is advanced immediately.
func (b *Buffer) Obtain(n int) []byte {
	if n > b.Available() {
		return nil
	}
	s := b.data[b.tail : b.tail+n : b.tail+n]
	b.tail += n
	return s
}

// PullByte consumes and returns one byte from head. On exhaustion it sets
// the overflow flag and returns 0 without advancing head.
func (b *Buffer) PullByte() byte {
	if b.head == b.tail {
		b.overflow = true
		return 0
	}
	v := b.data[b.head]
	b.head++
	return v
}

// PullUint16BE consumes a big-endian uint16.
func (b *Buffer) PullUint16BE() uint16 {
	hi := uint16(b.PullByte())
	lo := uint16(b.PullByte())
	return hi<<8 | lo
}

// PullUint32BE consumes a big-endian uint32.
func (b *Buffer) PullUint32BE() uint32 {
	hi := uint32(b.PullUint16BE())
	lo := uint32(b.PullUint16BE())
	return hi<<16 | lo
}

// Skip advances head by n bytes, clamped to tail. If clamped, sets overflow.
func (b *Buffer) Skip(n int) {
	if b.head+n > b.tail {
		b.head = b.tail
		b.overflow = true
		return
	}
	b.head += n
}

// PullBytesFrom copies min(n, src.Size(), b.Available()) bytes from src into
// b, advancing both buffers' cursors, and returns the count copied.
func (b *Buffer) PullBytesFrom(src *Buffer, n int) int {
	if n > src.Size() {
		n = src.Size()
	}
	if n > b.Available() {
		n = b.Available()
	}
	if n <= 0 {
		return 0
	}
	copy(b.data[b.tail:b.tail+n], src.data[src.head:src.head+n])
	b.tail += n
	src.head += n
	return n
}

// SubBuffer yields a borrowed Buffer rooted at tail+offset within the
// writable region of b, clipped to b's limit. It returns an error if the
// window starts before b's backing array or past b's limit. The returned
// Buffer's own cursors start at zero relative to its own window and it must
// not outlive b's backing array.
func (b *Buffer) SubBuffer(offset, size int) (*Buffer, error) {
	start := b.tail + offset
	end := start + size
	if end > b.limit {
		end = b.limit
	}
	if start < 0 || end < start {
		return nil, fmt.Errorf("avbuf: sub-buffer [%d,%d) out of parent bounds [0,%d)", start, end, b.limit)
	}
	return &Buffer{
		data:  b.data[start:end:end],
		limit: end - start,
	}, nil
}
