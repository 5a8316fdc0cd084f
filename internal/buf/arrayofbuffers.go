package buf

// ArrayOfBuffers is a bounded, contiguous table of buffer descriptors with
// push at either end, pop at the front and a slide-to-front operation, used
// by the serializer to assemble its output sequence (header bytes, then
// body bytes or chunk frames).
// Grounded on original_source's detail/array_of_buffers.hpp
// and detail/array_of_const_buffers.hpp.
type ArrayOfBuffers struct {
	segs [][]byte
}

// NewArrayOfBuffers preallocates a table with room for capacity segments.
func NewArrayOfBuffers(capacity int) *ArrayOfBuffers {
	return &ArrayOfBuffers{segs: make([]([]byte), 0, capacity)}
}

// PushBack appends a segment.
func (a *ArrayOfBuffers) PushBack(b []byte) { a.segs = append(a.segs, b) }

// PushFront prepends a segment.
func (a *ArrayOfBuffers) PushFront(b []byte) {
	a.segs = append(a.segs, nil)
	copy(a.segs[1:], a.segs)
	a.segs[0] = b
}

// PopFront removes and discards the first segment.
func (a *ArrayOfBuffers) PopFront() {
	if len(a.segs) == 0 {
		return
	}
	copy(a.segs, a.segs[1:])
	a.segs = a.segs[:len(a.segs)-1]
}

// Segments returns the current buffer sequence in order. The slice is
// shared; callers must not retain it across a mutating call.
func (a *ArrayOfBuffers) Segments() [][]byte { return a.segs }

// Len returns the number of segments currently held.
func (a *ArrayOfBuffers) Len() int { return len(a.segs) }

// TotalLen returns the sum of every segment's length.
func (a *ArrayOfBuffers) TotalLen() int {
	n := 0
	for _, s := range a.segs {
		n += len(s)
	}
	return n
}

// Consume drops n bytes from the front of the sequence, removing exhausted
// segments and trimming the first remaining one (exhausted segments are
// dropped by PopFront, which slides the rest to the front).
func (a *ArrayOfBuffers) Consume(n int) {
	for n > 0 && len(a.segs) > 0 {
		head := a.segs[0]
		if n < len(head) {
			a.segs[0] = head[n:]
			n = 0
			break
		}
		n -= len(head)
		a.PopFront()
	}
}

// Reset empties the table, retaining the allocation.
func (a *ArrayOfBuffers) Reset() { a.segs = a.segs[:0] }
