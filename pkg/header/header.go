package header

import (
	"github.com/shapestone/shape-httpwire/internal/rfc7230"
	"github.com/shapestone/shape-httpwire/pkg/wireerr"
)

const (
	// MaxHeaderSize is the default hard cap on a header's total wire size,
	// in bytes, before parsing fails with a header-limit error.
	MaxHeaderSize = 65535
	// MaxFieldCount is the default hard cap on the number of fields.
	MaxFieldCount = 100
	minCapacity   = 32
)

// Kind distinguishes a request header from a response header.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
)

// fieldEntry is one field-index-table row: the well-known id,
// the byte offsets/lengths of the name, and the byte offset of the value.
// The value's length is derived from the next entry (or the end of the
// field block) rather than stored, the same space trick is documented here.
type fieldEntry struct {
	id        FieldID
	nameOff   uint16
	nameLen   uint16
	valueOff  uint16
}

// Header is the mutable, owning representation of one message's start-line
// and field list, laid out as a contiguous wire-format byte buffer plus an
// out-of-band field index. A Go slice can't alias raw pointer
// arithmetic into one allocation as cheaply as the C++ original's "index at
// the back of the same buffer" trick, so this implementation keeps the
// wire-format buffer and the index as two slices that are grown and
// invalidated together; Raw() still returns the wire buffer with no copy.
type Header struct {
	kind Kind
	buf  []byte // prefix | start-line CRLF | field CRLF... | CRLF
	idx  []fieldEntry

	prefixLen int // reserved front region, not part of the wire form
	startLen  int // length of the start-line including its CRLF
	fieldsEnd int // offset just past the terminating CRLF CRLF

	maxSize  int
	maxCount int

	// Derived metadata.
	contentLength    uint64
	hasContentLength bool
	hasChunked       bool

	// Request/response start-line fields, cached for SetStartLine/Find.
	method  string
	target  string
	status  int
	reason  string
	major   int
	minor   int
}

// New creates an empty header of the given kind with default limits.
func New(kind Kind) *Header {
	return &Header{
		kind:     kind,
		maxSize:  MaxHeaderSize,
		maxCount: MaxFieldCount,
		major:    1,
		minor:    1,
	}
}

// SetLimits overrides the default 64 KiB / 100-field caps.
func (h *Header) SetLimits(maxSize, maxCount int) {
	h.maxSize = maxSize
	h.maxCount = maxCount
}

// ReservePrefix grows the buffer's front reserved region to at least n
// bytes, shifting existing wire-format content forward. This lets a
// serializer prepend a status line or chunk-size framing without
// reshifting the rest of the header.
func (h *Header) ReservePrefix(n int) error {
	if n <= h.prefixLen {
		return nil
	}
	delta := n - h.prefixLen
	if err := h.growBy(delta); err != nil {
		return err
	}
	copy(h.buf[h.prefixLen+delta:], h.buf[h.prefixLen:len(h.buf)-delta])
	h.prefixLen += delta
	h.startLen += 0 // start-line offset is always prefixLen-relative via helpers
	for i := range h.idx {
		h.idx[i].nameOff += uint16(delta)
		h.idx[i].valueOff += uint16(delta)
	}
	h.fieldsEnd += delta
	return nil
}

// Kind reports whether this is a request or response header.
func (h *Header) Kind() Kind { return h.kind }

// Raw returns the full serialized form (start-line + fields + CRLF) as a
// contiguous byte slice ready for transmission, with no copy.
func (h *Header) Raw() []byte { return h.buf[h.prefixLen:len(h.buf)] }

// Method, Target, Status, Reason, Version expose the parsed/set start-line.
func (h *Header) Method() string    { return h.method }
func (h *Header) Target() string    { return h.target }
func (h *Header) StatusCode() int   { return h.status }
func (h *Header) Reason() string    { return h.reason }
func (h *Header) VersionMajor() int { return h.major }
func (h *Header) VersionMinor() int { return h.minor }

// ContentLength, HasContentLength, HasChunked expose the derived framing
// metadata cached on the header the moment it is known.
func (h *Header) ContentLength() uint64  { return h.contentLength }
func (h *Header) HasContentLength() bool { return h.hasContentLength }
func (h *Header) HasChunked() bool       { return h.hasChunked }

// Count returns the number of fields currently stored.
func (h *Header) Count() int { return len(h.idx) }

// FieldView is a non-owning (name, value) pair borrowed from the header's
// buffer. It is invalidated by any subsequent mutation of the header.
type FieldView struct {
	Name  []byte
	Value []byte
	ID    FieldID
}

// fieldValueLen derives the i'th field's value length from the next
// entry's name offset (or the end of the field block for the last field).
func (h *Header) fieldValueLen(i int) int {
	var end int
	if i+1 < len(h.idx) {
		end = int(h.idx[i+1].nameOff) - 2 // back off the separating CRLF
	} else {
		end = h.fieldsEnd - 4 // back off the field's own CRLF and the terminating CRLF
	}
	return end - int(h.idx[i].valueOff)
}

func (h *Header) fieldAt(i int) FieldView {
	e := h.idx[i]
	return FieldView{
		Name:  h.buf[e.nameOff : e.nameOff+e.nameLen],
		Value: h.buf[e.valueOff : int(e.valueOff)+h.fieldValueLen(i)],
		ID:    e.id,
	}
}

// Find returns the first field matching name (case-insensitive), and
// whether one was found.
func (h *Header) Find(name string) (FieldView, bool) {
	id := LookupFieldID([]byte(name))
	if id != FieldOther {
		return h.FindID(id)
	}
	nb := []byte(name)
	for i := range h.idx {
		if h.idx[i].id != FieldOther {
			continue
		}
		fv := h.fieldAt(i)
		if rfc7230.EqualFold(fv.Name, nb) {
			return fv, true
		}
	}
	return FieldView{}, false
}

// FindID returns the first field with the given well-known id. Lookup by
// id is a single 16-bit compare per index entry.
func (h *Header) FindID(id FieldID) (FieldView, bool) {
	for i := range h.idx {
		if h.idx[i].id == id {
			return h.fieldAt(i), true
		}
	}
	return FieldView{}, false
}

// FindAll returns every field matching name (case-insensitive) in header
// order. It is the slice realization of "lazy sequence"; callers
// processing very large header sets can use FindAllFunc instead.
func (h *Header) FindAll(name string) []FieldView {
	var out []FieldView
	h.FindAllFunc(name, func(fv FieldView) bool {
		out = append(out, fv)
		return true
	})
	return out
}

// FindAllFunc calls yield for each field matching name, in header order,
// stopping early if yield returns false.
func (h *Header) FindAllFunc(name string, yield func(FieldView) bool) {
	id := LookupFieldID([]byte(name))
	nb := []byte(name)
	for i := range h.idx {
		e := h.idx[i]
		match := false
		if id != FieldOther {
			match = e.id == id
		} else if e.id == FieldOther {
			match = rfc7230.EqualFold(h.buf[e.nameOff:int(e.nameOff)+int(e.nameLen)], nb)
		}
		if match {
			if !yield(h.fieldAt(i)) {
				return
			}
		}
	}
}

// CountName returns the number of fields matching name.
func (h *Header) CountName(name string) int {
	n := 0
	h.FindAllFunc(name, func(FieldView) bool { n++; return true })
	return n
}

// CombineFieldValues returns every value for name joined by ", " in header
// order — the "Combine field values" operation of the glossary, for
// list-valued fields like Accept-Encoding.
func (h *Header) CombineFieldValues(name string) string {
	var out []byte
	first := true
	h.FindAllFunc(name, func(fv FieldView) bool {
		if !first {
			out = append(out, ',', ' ')
		}
		out = append(out, fv.Value...)
		first = false
		return true
	})
	return string(out)
}

func isToken(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !rfc7230.IsTChar(name[i]) {
			return false
		}
	}
	return true
}

// Append adds a new field at the end of the field block without removing
// any existing field of the same name.
func (h *Header) Append(name, value string) error {
	if !isToken(name) {
		return wireerr.New(wireerr.KindArgument, "header.Append", wireerr.CodeInvalidArgument)
	}
	if len(h.idx) >= h.maxCount {
		return wireerr.New(wireerr.KindLimit, "header.Append", wireerr.CodeHeaderLimit)
	}
	line := encodeFieldLine(name, value)
	insertAt := h.fieldsEnd - 2 // just before the terminating CRLF
	if err := h.spliceInsert(insertAt, line); err != nil {
		return err
	}
	id := LookupFieldID([]byte(name))
	h.idx = append(h.idx, fieldEntry{
		id:       id,
		nameOff:  uint16(insertAt),
		nameLen:  uint16(len(name)),
		valueOff: uint16(insertAt + len(name) + 2), // past "Name: "
	})
	h.fieldsEnd += len(line)
	h.onFieldChanged(id, value, true)
	return nil
}

// Set erases every existing match for name then appends one field with
// value.
func (h *Header) Set(name, value string) error {
	h.Erase(name)
	return h.Append(name, value)
}

// Erase removes every field matching name, returning the number removed.
func (h *Header) Erase(name string) int {
	id := LookupFieldID([]byte(name))
	nb := []byte(name)
	removed := 0
	for i := 0; i < len(h.idx); {
		e := h.idx[i]
		match := false
		if id != FieldOther {
			match = e.id == id
		} else if e.id == FieldOther {
			match = rfc7230.EqualFold(h.buf[e.nameOff:int(e.nameOff)+int(e.nameLen)], nb)
		}
		if !match {
			i++
			continue
		}
		h.eraseIndex(i)
		removed++
	}
	if removed > 0 {
		h.recomputeDerived()
	}
	return removed
}

// EraseID removes every field with the given well-known id.
func (h *Header) EraseID(id FieldID) int {
	removed := 0
	for i := 0; i < len(h.idx); {
		if h.idx[i].id != id {
			i++
			continue
		}
		h.eraseIndex(i)
		removed++
	}
	if removed > 0 {
		h.recomputeDerived()
	}
	return removed
}

func (h *Header) eraseIndex(i int) {
	e := h.idx[i]
	lineStart := int(e.nameOff)
	lineEnd := lineStart + int(e.nameLen) + 2 + h.fieldValueLen(i) + 2
	n := lineEnd - lineStart
	copy(h.buf[lineStart:], h.buf[lineEnd:])
	h.buf = h.buf[:len(h.buf)-n]
	h.fieldsEnd -= n
	h.idx = append(h.idx[:i], h.idx[i+1:]...)
	for j := i; j < len(h.idx); j++ {
		h.idx[j].nameOff -= uint16(n)
		h.idx[j].valueOff -= uint16(n)
	}
}

// encodeFieldLine renders "Name: Value\r\n".
func encodeFieldLine(name, value string) []byte {
	out := make([]byte, 0, len(name)+2+len(value)+2)
	out = append(out, name...)
	out = append(out, ':', ' ')
	out = append(out, value...)
	out = append(out, '\r', '\n')
	return out
}

// spliceInsert inserts data at offset pos within the wire-format region,
// growing the backing buffer first if needed.
func (h *Header) spliceInsert(pos int, data []byte) error {
	if err := h.growBy(len(data)); err != nil {
		return err
	}
	copy(h.buf[pos+len(data):], h.buf[pos:len(h.buf)-len(data)])
	copy(h.buf[pos:pos+len(data)], data)
	return nil
}

// growBy extends the buffer length by delta, doubling capacity as needed
// (minimum 32 bytes, clamped to maxSize).
func (h *Header) growBy(delta int) error {
	newLen := len(h.buf) + delta
	if h.maxSize > 0 && newLen-h.prefixLen > h.maxSize {
		return wireerr.New(wireerr.KindLimit, "header.grow", wireerr.CodeLengthError)
	}
	if newLen <= cap(h.buf) {
		h.buf = h.buf[:newLen]
		return nil
	}
	newCap := cap(h.buf)
	if newCap < minCapacity {
		newCap = minCapacity
	}
	for newCap < newLen {
		newCap *= 2
	}
	if h.maxSize > 0 && newCap > h.maxSize+h.prefixLen {
		newCap = h.maxSize + h.prefixLen
	}
	grown := make([]byte, newLen, newCap)
	copy(grown, h.buf)
	h.buf = grown
	return nil
}

// SetStartLine rewrites the request-line region: "METHOD SP TARGET SP
// HTTP/M.m CRLF". It is an error to call this on a response header.
func (h *Header) SetStartLine(method, target string, major, minor int) error {
	if h.kind != KindRequest {
		return wireerr.New(wireerr.KindArgument, "header.SetStartLine", wireerr.CodeInvalidArgument)
	}
	if !isToken(method) {
		return wireerr.New(wireerr.KindArgument, "header.SetStartLine", wireerr.CodeInvalidArgument)
	}
	line := []byte(method)
	line = append(line, ' ')
	line = append(line, target...)
	line = append(line, ' ')
	line = append(line, versionString(major, minor)...)
	line = append(line, '\r', '\n')
	if err := h.replaceStartLine(line); err != nil {
		return err
	}
	h.method, h.target, h.major, h.minor = method, target, major, minor
	return nil
}

// SetStatusLine rewrites the status-line region: "HTTP/M.m SP 3DIGIT SP
// reason CRLF". It is an error to call this on a request header.
func (h *Header) SetStatusLine(major, minor, status int, reason string) error {
	if h.kind != KindResponse {
		return wireerr.New(wireerr.KindArgument, "header.SetStatusLine", wireerr.CodeInvalidArgument)
	}
	if status < 100 || status > 999 {
		return wireerr.New(wireerr.KindArgument, "header.SetStatusLine", wireerr.CodeInvalidArgument)
	}
	line := []byte(versionString(major, minor))
	line = append(line, ' ')
	line = append(line, byte('0'+(status/100)%10), byte('0'+(status/10)%10), byte('0'+status%10))
	line = append(line, ' ')
	line = append(line, reason...)
	line = append(line, '\r', '\n')
	if err := h.replaceStartLine(line); err != nil {
		return err
	}
	h.major, h.minor, h.status, h.reason = major, minor, status, reason
	return nil
}

func versionString(major, minor int) string {
	return "HTTP/" + string(rune('0'+major)) + "." + string(rune('0'+minor))
}

func (h *Header) replaceStartLine(line []byte) error {
	if len(h.buf) == 0 {
		h.buf = make([]byte, h.prefixLen)
	}
	oldLen := h.startLen
	delta := len(line) - oldLen
	if delta != 0 {
		if delta > 0 {
			if err := h.growBy(delta); err != nil {
				return err
			}
			copy(h.buf[h.prefixLen+len(line):], h.buf[h.prefixLen+oldLen:len(h.buf)-delta])
		} else {
			copy(h.buf[h.prefixLen+len(line):], h.buf[h.prefixLen+oldLen:])
			h.buf = h.buf[:len(h.buf)+delta]
		}
		for i := range h.idx {
			h.idx[i].nameOff = uint16(int(h.idx[i].nameOff) + delta)
			h.idx[i].valueOff = uint16(int(h.idx[i].valueOff) + delta)
		}
		h.fieldsEnd += delta
	}
	copy(h.buf[h.prefixLen:], line)
	h.startLen = len(line)
	if h.fieldsEnd < h.prefixLen+h.startLen+2 {
		h.fieldsEnd = h.prefixLen + h.startLen + 2
		if len(h.buf) < h.fieldsEnd {
			if err := h.growBy(h.fieldsEnd - len(h.buf)); err != nil {
				return err
			}
			h.buf[h.fieldsEnd-2] = '\r'
			h.buf[h.fieldsEnd-1] = '\n'
		}
	}
	return nil
}

// onFieldChanged updates the derived metadata cache after a field with the
// given id and value was appended (framing reconciliation runs right away,
// in recomputeDerived, on every Content-Length or Transfer-Encoding change).
func (h *Header) onFieldChanged(id FieldID, value string, appended bool) {
	switch id {
	case FieldContentLength:
		h.recomputeDerived()
	case FieldTransferEncoding:
		h.recomputeDerived()
	}
	_ = appended
}

// recomputeDerived rescans the Content-Length/Transfer-Encoding fields and
// applies the framing reconciliation rule: chunked wins
// over Content-Length if both are present.
func (h *Header) recomputeDerived() {
	h.hasContentLength = false
	h.hasChunked = false
	h.contentLength = 0

	var clValue string
	clCount := 0
	h.FindAllFunc("content-length", func(fv FieldView) bool {
		clCount++
		clValue = string(fv.Value)
		return true
	})
	if clCount == 1 {
		c := &rfc7230.Cursor{Data: []byte(clValue)}
		v, overflow, err := rfc7230.Digits(c)
		if err == nil && c.Pos == len(clValue) && !overflow {
			h.hasContentLength = true
			h.contentLength = v
		}
	}

	h.FindAllFunc("transfer-encoding", func(fv FieldView) bool {
		if rfc7230.EqualFold(fv.Value, []byte("chunked")) {
			h.hasChunked = true
		}
		return true
	})
	if h.hasChunked {
		h.hasContentLength = false
	}
}

// Fields returns every field view in header order. Intended for iteration
// and serialization helpers that need the whole set at once.
func (h *Header) Fields() []FieldView {
	out := make([]FieldView, len(h.idx))
	for i := range h.idx {
		out[i] = h.fieldAt(i)
	}
	return out
}

// FieldsFrom returns the field views from index start to the end, in
// header order. Used to slice out just the fields appended after some
// earlier point, e.g. a chunked body's trailer-part appended after the
// header fields proper.
func (h *Header) FieldsFrom(start int) []FieldView {
	if start < 0 {
		start = 0
	}
	if start >= len(h.idx) {
		return nil
	}
	out := make([]FieldView, len(h.idx)-start)
	for i := start; i < len(h.idx); i++ {
		out[i-start] = h.fieldAt(i)
	}
	return out
}

// Clone returns a deep, independent copy of the header.
func (h *Header) Clone() *Header {
	c := *h
	c.buf = append([]byte(nil), h.buf...)
	c.idx = append([]fieldEntry(nil), h.idx...)
	return &c
}
