// Package buf implements the buffer primitives used by the parser and
// serializer: a flat
// buffer with independent read/write cursors, a two-segment ring buffer
// with the same surface area, and a bounded array-of-buffers table used by
// the serializer to assemble its output sequence without heap traffic per
// message. Grounded on shape-http/pkg/http/marshal.go's sync.Pool-backed
// scratch buffer, generalized to the prepare/commit/consume contract of
// original_source/include/boost/http_proto/detail/flat_buffer.hpp and
// circular_buffer.hpp, and pooled with bytebufferpool the way packetd pools
// its wire-format scratch space.
package buf

import "github.com/valyala/bytebufferpool"

// Flat is a contiguous byte region with a write cursor (the end of the
// committed/readable region) and a read cursor (the start of the unconsumed
// region). Prepare returns writable tail space; Commit extends the readable
// region; Consume advances the read cursor and compacts once it catches up
// to the write cursor.
type Flat struct {
	bb       *bytebufferpool.ByteBuffer
	readPos  int
	writePos int
	max      int
}

// NewFlat creates a Flat buffer with the given maximum capacity. Capacity
// is soft until the first Prepare call that needs it; max bounds growth.
func NewFlat(max int) *Flat {
	return &Flat{bb: bytebufferpool.Get(), max: max}
}

// Release returns the backing buffer to the pool. The Flat must not be used
// afterward.
func (f *Flat) Release() {
	f.bb.Reset()
	bytebufferpool.Put(f.bb)
	f.bb = nil
}

// Reset empties both cursors, retaining the allocation.
func (f *Flat) Reset() {
	f.bb.B = f.bb.B[:0]
	f.readPos = 0
	f.writePos = 0
}

// Max returns the configured capacity ceiling (0 means unbounded).
func (f *Flat) Max() int { return f.max }

// Size returns the number of unconsumed (readable) bytes.
func (f *Flat) Size() int { return f.writePos - f.readPos }

// Data returns the currently readable region. The returned slice is only
// valid until the next Prepare/Consume call that triggers compaction.
func (f *Flat) Data() []byte { return f.bb.B[f.readPos:f.writePos] }

// Prepare returns at least n bytes of writable tail space, growing (and, if
// the read cursor has advanced, compacting) the backing array as needed.
// It returns an error if growth would exceed the configured max.
func (f *Flat) Prepare(n int) ([]byte, error) {
	need := f.writePos + n
	if need > cap(f.bb.B) {
		if f.readPos > 0 {
			f.compact()
			need = f.writePos + n
		}
	}
	if need > cap(f.bb.B) {
		if f.max > 0 && need > f.max {
			return nil, errBufferLimit
		}
		newCap := growCap(cap(f.bb.B), need)
		if f.max > 0 && newCap > f.max {
			newCap = f.max
		}
		grown := make([]byte, len(f.bb.B), newCap)
		copy(grown, f.bb.B)
		f.bb.B = grown
	}
	f.bb.B = f.bb.B[:f.writePos+n]
	return f.bb.B[f.writePos : f.writePos+n], nil
}

// Commit marks n bytes of previously-prepared space as readable.
func (f *Flat) Commit(n int) {
	f.writePos += n
	if f.writePos > len(f.bb.B) {
		f.writePos = len(f.bb.B)
	}
}

// Consume advances the read cursor by n bytes, compacting the backing array
// once the read cursor catches up to the write cursor.
func (f *Flat) Consume(n int) {
	f.readPos += n
	if f.readPos >= f.writePos {
		f.readPos = 0
		f.writePos = 0
		f.bb.B = f.bb.B[:0]
	}
}

func (f *Flat) compact() {
	n := copy(f.bb.B, f.bb.B[f.readPos:f.writePos])
	f.bb.B = f.bb.B[:n]
	f.writePos = n
	f.readPos = 0
}

func growCap(cur, need int) int {
	if cur == 0 {
		cur = 32
	}
	for cur < need {
		cur *= 2
	}
	return cur
}

type bufferLimitError struct{}

func (bufferLimitError) Error() string { return "buf: prepare would exceed configured maximum" }

var errBufferLimit error = bufferLimitError{}
