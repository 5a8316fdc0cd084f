package httpwire

import (
	"strconv"

	"github.com/shapestone/shape-httpwire/internal/buf"
	"github.com/shapestone/shape-httpwire/internal/rfc7230"
	"github.com/shapestone/shape-httpwire/pkg/filter"
	"github.com/shapestone/shape-httpwire/pkg/header"
	"github.com/shapestone/shape-httpwire/pkg/wireerr"
)

// serializerScratch bounds how many body bytes the serializer pulls from a
// Source (or drains from a Stream) per fill, and the per-call output size
// handed to an attached filter.
const serializerScratch = 4096

// Source supplies body bytes on demand, pulled by the serializer as room
// opens up in its output sequence. A Source may perform I/O; the
// serializer itself never does.
type Source interface {
	// Read copies up to len(p) bytes into p and reports how many were
	// written. done=true means p[:n] is the last chunk this source will
	// ever produce. A Source with nothing ready yet (but not finished) may
	// return n=0, done=false, err=nil; the serializer will retry on the
	// next Prepare call.
	Read(p []byte) (n int, done bool, err error)
}

// sliceSource adapts one fixed, already-in-memory body to the Source
// contract.
type sliceSource struct {
	data []byte
}

func (s *sliceSource) Read(p []byte) (int, bool, error) {
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, len(s.data) == 0, nil
}

// pushSource is the Source behind Stream: a small FIFO the caller feeds via
// Write/Close and the serializer drains via Read.
type pushSource struct {
	buf    []byte
	closed bool
}

func (p *pushSource) push(b []byte) { p.buf = append(p.buf, b...) }

func (p *pushSource) Read(out []byte) (int, bool, error) {
	n := copy(out, p.buf)
	p.buf = p.buf[n:]
	return n, p.closed && len(p.buf) == 0, nil
}

// Stream is the push-delivery counterpart of Source, returned by
// Serializer.StartStream for callers that produce body bytes as they go
// rather than handing over a pull source up front.
type Stream struct {
	src *pushSource
}

// Write buffers p for the serializer to drain on its next fill. It never
// blocks and never fails.
func (st *Stream) Write(p []byte) (int, error) {
	st.src.push(p)
	return len(p), nil
}

// Close signals that no further writes will occur, letting the serializer
// emit the final chunk (or, for identity/close framing, simply finish).
func (st *Stream) Close() error {
	st.src.closed = true
	return nil
}

type serializerState int

const (
	serNeedStart serializerState = iota
	serHeaderOut
	serAwaitingContinue
	serBodyOut
	serChunkOut
	serDone
)

// Serializer incrementally renders a request or response message to wire
// bytes: the header is emitted once from Header.Raw(), then body bytes are
// pulled from a Source (or a push Stream backed by the same interface) and
// re-framed as identity, chunked, or close-delimited according to how the
// header declares its length. Grounded on
// original_source/include/boost/http_proto/serializer.hpp's stream/source
// split and on shape-http/pkg/http/marshal.go's single-pass field
// rendering, adapted here to resumable output instead of a single
// io.Writer.Write call.
type Serializer struct {
	kind header.Kind

	state serializerState
	hdr   *header.Header

	bodyMode bodyMode
	src      Source
	srcDone  bool

	// continuePending is set when the header declared Expect: 100-continue:
	// the serializer halts in serAwaitingContinue right after the header
	// goes out and won't emit any body bytes until Resume is called.
	continuePending bool

	filt filter.Filter

	out *buf.ArrayOfBuffers

	// ring is the filter's reusable output scratch space: Process writes
	// into it instead of a fresh slice per call, and it is fully drained
	// (Consume'd) before the next fill, so it never needs to wrap.
	ring *buf.Ring

	trailer *header.Header // fields to render after the final chunk, if set
}

func NewRequestSerializer() *Serializer  { return newSerializer(header.KindRequest) }
func NewResponseSerializer() *Serializer { return newSerializer(header.KindResponse) }

func newSerializer(kind header.Kind) *Serializer {
	s := &Serializer{
		kind: kind,
		out:  buf.NewArrayOfBuffers(4),
		ring: buf.NewRing(serializerScratch),
	}
	s.Reset()
	return s
}

// Reset returns the serializer to its initial state so it can be reused for
// the next message on the same connection.
func (s *Serializer) Reset() {
	s.state = serNeedStart
	s.hdr = nil
	s.bodyMode = bodyNone
	s.src = nil
	s.srcDone = false
	s.continuePending = false
	s.filt = nil
	s.out.Reset()
	s.ring.Reset()
	s.trailer = nil
}

// AttachFilter wires a content-coding filter (e.g. filter.Gzip) across the
// body on its way out.
func (s *Serializer) AttachFilter(f filter.Filter) { s.filt = f }

// SetTrailer supplies the trailer fields to render after the terminating
// chunk. Only meaningful when the body ends up chunked; ignored otherwise.
func (s *Serializer) SetTrailer(h *header.Header) { s.trailer = h }

// StartEmpty begins a message with no body: a HEAD response, a 204/304, or
// a request carrying no entity.
func (s *Serializer) StartEmpty(h *header.Header) error {
	return s.start(h, bodyNone, nil)
}

// StartWithBody begins a message whose complete body is already in memory.
// If the header doesn't already declare Content-Length or chunked framing,
// Content-Length is set from len(body).
func (s *Serializer) StartWithBody(h *header.Header, body []byte) error {
	if !h.HasChunked() && !h.HasContentLength() {
		if err := h.Append("Content-Length", strconv.FormatUint(uint64(len(body)), 10)); err != nil {
			return err
		}
	}
	mode := bodyIdentity
	if h.HasChunked() {
		mode = bodyChunked
	}
	return s.start(h, mode, &sliceSource{data: body})
}

// StartWithSource begins a message whose body is pulled from src as output
// space becomes available. Framing follows the header: Content-Length if
// already set, chunked if Transfer-Encoding: chunked is already set or the
// message version is 1.1 or later, and connection-close framing otherwise
// (HTTP/1.0 with no declared length).
func (s *Serializer) StartWithSource(h *header.Header, src Source) error {
	mode, err := s.chooseUnknownLengthFraming(h)
	if err != nil {
		return err
	}
	return s.start(h, mode, src)
}

// StartStream begins a message whose body the caller pushes by calling
// Stream.Write as bytes become available, closing the Stream once done.
// Framing is chosen the same way as StartWithSource.
func (s *Serializer) StartStream(h *header.Header) (*Stream, error) {
	mode, err := s.chooseUnknownLengthFraming(h)
	if err != nil {
		return nil, err
	}
	ps := &pushSource{}
	if err := s.start(h, mode, ps); err != nil {
		return nil, err
	}
	return &Stream{src: ps}, nil
}

func (s *Serializer) chooseUnknownLengthFraming(h *header.Header) (bodyMode, error) {
	switch {
	case h.HasChunked():
		return bodyChunked, nil
	case h.HasContentLength():
		return bodyIdentity, nil
	case h.VersionMajor() > 1 || (h.VersionMajor() == 1 && h.VersionMinor() >= 1):
		if err := h.Append("Transfer-Encoding", "chunked"); err != nil {
			return bodyNone, err
		}
		return bodyChunked, nil
	default:
		return bodyClose, nil
	}
}

func (s *Serializer) start(h *header.Header, mode bodyMode, src Source) error {
	if s.state != serNeedStart {
		return wireerr.New(wireerr.KindArgument, "serializer.start", wireerr.CodeInvalidArgument)
	}
	s.hdr = h
	s.bodyMode = mode
	s.src = src
	s.out.PushBack(h.Raw())
	s.state = serHeaderOut
	s.continuePending = h.Kind() == header.KindRequest && expectsContinue(h)
	return nil
}

// expectsContinue reports whether h carries Expect: 100-continue.
func expectsContinue(h *header.Header) bool {
	fv, ok := h.Find("expect")
	return ok && rfc7230.EqualFold(fv.Value, []byte("100-continue"))
}

// AwaitingContinue reports whether the serializer has emitted the header of
// an Expect: 100-continue request and is now holding body emission until
// Resume is called.
func (s *Serializer) AwaitingContinue() bool { return s.state == serAwaitingContinue }

// Resume releases a serializer halted in AwaitingContinue, letting it begin
// emitting the body. Callers typically call this after their parser has
// seen a 100 Continue response (or has decided to send the body anyway).
func (s *Serializer) Resume() error {
	if s.state != serAwaitingContinue {
		return wireerr.New(wireerr.KindArgument, "serializer.Resume", wireerr.CodeInvalidArgument)
	}
	s.continuePending = false
	s.state = serHeaderOut
	return nil
}

// Prepare returns the next sequence of output segments ready to be written,
// refilling from the body source as needed. The returned slices are valid
// only until the next Prepare or Consume call. An empty result with
// !IsDone() means the source has nothing ready yet; call Prepare again
// after feeding it more data.
func (s *Serializer) Prepare() ([][]byte, error) {
	for s.out.TotalLen() == 0 && s.state != serDone {
		before := s.out.TotalLen()
		if err := s.advance(); err != nil {
			return nil, err
		}
		if s.out.TotalLen() == before && s.state != serDone {
			break
		}
	}
	return s.out.Segments(), nil
}

// Consume marks n bytes, counted from the front of the last Prepare
// result, as written.
func (s *Serializer) Consume(n int) {
	s.out.Consume(n)
	if s.state == serHeaderOut && s.continuePending && s.out.TotalLen() == 0 {
		s.state = serAwaitingContinue
	}
}

// IsDone reports whether the entire message, including any trailer, has
// been handed to Consume.
func (s *Serializer) IsDone() bool { return s.state == serDone && s.out.TotalLen() == 0 }

func (s *Serializer) advance() error {
	switch s.state {
	case serHeaderOut:
		if s.continuePending {
			s.state = serAwaitingContinue
			return nil
		}
		if s.bodyMode == bodyNone {
			s.state = serDone
			return nil
		}
		if s.bodyMode == bodyChunked {
			s.state = serChunkOut
			return s.fillChunk()
		}
		s.state = serBodyOut
		return s.fillIdentity()
	case serAwaitingContinue:
		return nil
	case serBodyOut:
		return s.fillIdentity()
	case serChunkOut:
		return s.fillChunk()
	case serDone:
		return nil
	default:
		return wireerr.New(wireerr.KindArgument, "serializer.advance", wireerr.CodeInvalidArgument)
	}
}

// fillIdentity pulls one scratch-sized read from the source for
// identity/close framing (length either declared by Content-Length or left
// open until the connection closes).
func (s *Serializer) fillIdentity() error {
	if s.srcDone {
		s.state = serDone
		return nil
	}
	// Zero-copy path: a body that's already a single in-memory buffer, with
	// no filter to transform it, is handed straight to the output sequence
	// by reference instead of being copied through scratch space.
	if ss, ok := s.src.(*sliceSource); ok && s.filt == nil {
		data := ss.data
		ss.data = nil
		s.srcDone = true
		s.state = serDone
		if len(data) > 0 {
			s.out.PushBack(data)
		}
		return nil
	}
	raw := make([]byte, serializerScratch)
	n, done, err := s.src.Read(raw)
	if err != nil {
		return wireerr.Wrap(wireerr.KindArgument, "serializer.source", wireerr.CodeInvalidArgument, err)
	}
	out, ferr := s.applyFilter(raw[:n], !done)
	if ferr != nil {
		return ferr
	}
	if done {
		s.srcDone = true
		s.state = serDone
	}
	if len(out) > 0 {
		s.out.PushBack(out)
	}
	return nil
}

// fillChunk pulls one scratch-sized read from the source and renders it as
// "size CRLF data CRLF"; once the source is exhausted it emits the
// terminating zero-size chunk, any trailer fields, and the final CRLF.
func (s *Serializer) fillChunk() error {
	if s.srcDone {
		return s.fillChunkTrailer()
	}
	raw := make([]byte, serializerScratch)
	n, done, err := s.src.Read(raw)
	if err != nil {
		return wireerr.Wrap(wireerr.KindArgument, "serializer.source", wireerr.CodeInvalidArgument, err)
	}
	out, ferr := s.applyFilter(raw[:n], !done)
	if ferr != nil {
		return ferr
	}
	if done {
		s.srcDone = true
	}
	if len(out) > 0 {
		frame := make([]byte, 0, len(out)+20)
		frame = append(frame, strconv.FormatUint(uint64(len(out)), 16)...)
		frame = append(frame, '\r', '\n')
		frame = append(frame, out...)
		frame = append(frame, '\r', '\n')
		s.out.PushBack(frame)
	}
	return nil
}

func (s *Serializer) fillChunkTrailer() error {
	tail := []byte("0\r\n")
	if s.trailer != nil {
		for _, f := range s.trailer.Fields() {
			tail = append(tail, f.Name...)
			tail = append(tail, ':', ' ')
			tail = append(tail, f.Value...)
			tail = append(tail, '\r', '\n')
		}
	}
	tail = append(tail, '\r', '\n')
	s.out.PushBack(tail)
	s.state = serDone
	return nil
}

// applyFilter runs raw through the attached filter, if any, driving it
// until it has consumed everything handed to it. more=false flushes the
// filter's internal state (the body's final read).
func (s *Serializer) applyFilter(raw []byte, more bool) ([]byte, error) {
	if s.filt == nil {
		return append([]byte(nil), raw...), nil
	}
	var out []byte
	pending := raw
	for {
		segs := s.ring.Prepare(serializerScratch)
		if len(segs) == 0 {
			break
		}
		scratch := segs[0]
		res, err := s.filt.Process(scratch, pending, more || len(pending) > 0)
		if err != nil {
			return nil, err
		}
		s.ring.Commit(res.OutBytes)
		pending = pending[res.InBytes:]
		for _, seg := range s.ring.Data() {
			out = append(out, seg...)
		}
		s.ring.Consume(s.ring.Size())
		if len(pending) == 0 && (res.Finished || more) {
			break
		}
		if res.OutBytes == 0 && res.InBytes == 0 {
			break
		}
	}
	return out, nil
}
