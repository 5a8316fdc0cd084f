package buf

// Ring is a two-segment circular buffer over a fixed-capacity array,
// exposing the same prepare/commit/consume surface as Flat but without
// compaction: Data and Prepare may each return up to two segments because
// the readable (or writable) region can wrap around the end of the array.
// Used by the serializer as reusable output scratch space for an attached
// filter.
type Ring struct {
	data       []byte
	readPos    int
	writePos   int
	full       bool // writePos == readPos could mean empty or full
}

// NewRing allocates a ring buffer of the given fixed capacity.
func NewRing(capacity int) *Ring {
	return &Ring{data: make([]byte, capacity)}
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return len(r.data) }

// Size returns the number of readable bytes currently buffered.
func (r *Ring) Size() int {
	if r.full {
		return len(r.data)
	}
	if r.writePos >= r.readPos {
		return r.writePos - r.readPos
	}
	return len(r.data) - r.readPos + r.writePos
}

// Free returns the number of bytes of writable space remaining.
func (r *Ring) Free() int { return len(r.data) - r.Size() }

// Data returns up to two contiguous segments covering the readable region,
// in order.
func (r *Ring) Data() [][]byte {
	n := r.Size()
	if n == 0 {
		return nil
	}
	if r.readPos < r.writePos || (r.readPos == r.writePos && r.full) {
		if r.writePos > r.readPos {
			return [][]byte{r.data[r.readPos:r.writePos]}
		}
		// full, writePos == readPos: single wrap-around segment split at 0
		return [][]byte{r.data[r.readPos:], r.data[:r.writePos]}
	}
	return [][]byte{r.data[r.readPos:], r.data[:r.writePos]}
}

// Prepare returns up to two contiguous writable segments covering at least
// n bytes of free space (fewer than n total bytes are returned whenever
// less than n bytes are free; callers must check the total length).
func (r *Ring) Prepare(n int) [][]byte {
	if n > r.Free() {
		n = r.Free()
	}
	if n == 0 {
		return nil
	}
	if r.writePos >= r.readPos && !r.full {
		tail := len(r.data) - r.writePos
		if tail >= n {
			return [][]byte{r.data[r.writePos : r.writePos+n]}
		}
		return [][]byte{r.data[r.writePos:], r.data[:n-tail]}
	}
	return [][]byte{r.data[r.writePos:r.readPos]}
}

// Commit advances the write cursor by n bytes (which must have just been
// filled via the slices returned by Prepare).
func (r *Ring) Commit(n int) {
	if n == 0 {
		return
	}
	r.writePos = (r.writePos + n) % len(r.data)
	if r.writePos == r.readPos {
		r.full = true
	}
}

// Consume advances the read cursor by n bytes.
func (r *Ring) Consume(n int) {
	if n == 0 {
		return
	}
	r.readPos = (r.readPos + n) % len(r.data)
	r.full = false
}

// Reset empties the ring, retaining the allocation.
func (r *Ring) Reset() {
	r.readPos = 0
	r.writePos = 0
	r.full = false
}
