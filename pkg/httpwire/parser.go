package httpwire

import (
	"github.com/shapestone/shape-httpwire/internal/buf"
	"github.com/shapestone/shape-httpwire/internal/rfc7230"
	"github.com/shapestone/shape-httpwire/pkg/filter"
	"github.com/shapestone/shape-httpwire/pkg/header"
	"github.com/shapestone/shape-httpwire/pkg/wireerr"
)

// Sink receives body bytes pushed by the parser as they become available,
// instead of the caller pulling them off Event.Data after each Parse call.
// Write must copy p if it needs to retain it past the call.
type Sink interface {
	Write(p []byte) error
}

// maxStartLine bounds how many bytes of the request-line/status-line the
// parser will buffer before giving up; well past any real deployment's
// limit, it exists only to bound memory on a misbehaving peer that never
// sends a line terminator.
const maxStartLine = 8192

// Parser incrementally decodes a request or response message from bytes
// the caller commits via Prepare/Commit, driven field-at-a-time so it can
// resume across any fragmentation boundary.
type Parser struct {
	kind header.Kind

	buf *buf.Flat
	eof bool

	state State

	hdr *header.Header
	fs  *fieldScanner

	// Body framing, established once the header is done.
	bodyMode     bodyMode
	remaining    uint64 // identity/eof: remaining declared bytes (identity only)
	chunk        chunkState
	chunkExt     []rfc7230.ChunkExt // extensions on the chunk currently being read
	trailerFS    *fieldScanner
	trailerStart int // hdr field count at the point the trailer block began

	sink Sink
	filt filter.Filter

	maxHeaderSize int
	maxFieldCount int

	bodyForbidden bool // HEAD responses, 1xx/204/304: no body regardless of framing
}

type bodyMode int

const (
	bodyNone bodyMode = iota
	bodyIdentity
	bodyChunked
	bodyEOF
	// bodyClose is the serializer-only counterpart of bodyEOF: a body of
	// unknown length framed by closing the connection after the last byte,
	// used for HTTP/1.0 peers that don't understand chunked coding.
	bodyClose
)

// NewRequestParser creates a Parser for decoding HTTP requests.
func NewRequestParser() *Parser { return newParser(header.KindRequest) }

// NewResponseParser creates a Parser for decoding HTTP responses.
func NewResponseParser() *Parser { return newParser(header.KindResponse) }

func newParser(kind header.Kind) *Parser {
	p := &Parser{
		kind:          kind,
		buf:           buf.NewFlat(0),
		maxHeaderSize: header.MaxHeaderSize,
		maxFieldCount: header.MaxFieldCount,
	}
	p.Reset()
	return p
}

// Reset returns the parser to its initial state, ready to decode a new
// message. The scratch buffer's allocation is retained.
func (p *Parser) Reset() {
	p.buf.Reset()
	p.eof = false
	p.state = StateNeedStartLine
	p.hdr = header.New(p.kind)
	p.hdr.SetLimits(p.maxHeaderSize, p.maxFieldCount)
	p.fs = &fieldScanner{}
	p.bodyMode = bodyNone
	p.remaining = 0
	p.chunk = chunkState{}
	p.chunkExt = nil
	p.trailerFS = nil
	p.trailerStart = 0
	p.filt = nil
	p.bodyForbidden = false
}

// SetLimits overrides the default header size and field count caps that
// will be applied to the next Reset (and the header currently in progress).
func (p *Parser) SetLimits(maxHeaderSize, maxFieldCount int) {
	p.maxHeaderSize = maxHeaderSize
	p.maxFieldCount = maxFieldCount
	p.hdr.SetLimits(maxHeaderSize, maxFieldCount)
}

// AttachSink installs a Sink that receives body data as EventBodyData would
// otherwise report it; once attached, Parse returns EventBodyData with a
// zero-length Data and the caller should ignore it, reading the body from
// the sink instead.
func (p *Parser) AttachSink(s Sink) { p.sink = s }

// AttachFilter installs a content-decoding filter (e.g. from
// filter.Default().NewDecoder("gzip")) that raw body bytes are pushed
// through before being reported as EventBodyData or handed to a Sink.
func (p *Parser) AttachFilter(f filter.Filter) { p.filt = f }

// SetBodyForbidden tells the parser this message cannot carry a body
// regardless of what Content-Length/Transfer-Encoding declare (HEAD
// responses, 1xx, 204, 304). The caller determines this from request
// context the parser itself cannot see.
func (p *Parser) SetBodyForbidden(forbidden bool) { p.bodyForbidden = forbidden }

// Header returns the header parsed so far; fields are only guaranteed
// complete once Parse has returned EventHeaderDone.
func (p *Parser) Header() *header.Header { return p.hdr }

// Trailers returns just the trailer fields parsed after a chunked body's
// final chunk (never the start-line fields), valid once Parse has returned
// EventComplete. Empty if the body wasn't chunked or carried no trailer.
func (p *Parser) Trailers() []header.FieldView {
	if p.trailerFS == nil {
		return nil
	}
	return p.hdr.FieldsFrom(p.trailerStart)
}

// ChunkExtension returns the chunk-ext list attached to the chunk-size line
// most recently read, validated for token/quoted-string form but not
// otherwise interpreted. Valid between a chunk's size line being read and
// the next one.
func (p *Parser) ChunkExtension() []rfc7230.ChunkExt { return p.chunkExt }

// Prepare returns at least n bytes of writable space for the caller to
// fill with freshly received bytes, then call Commit.
func (p *Parser) Prepare(n int) ([]byte, error) {
	return p.buf.Prepare(n)
}

// Commit marks n bytes (previously returned by Prepare and filled in) as
// available input.
func (p *Parser) Commit(n int) { p.buf.Commit(n) }

// CommitEOF tells the parser no further bytes will ever arrive; this
// allows bodies with no explicit length (eof_body) to terminate.
func (p *Parser) CommitEOF() { p.eof = true }

// ReleaseBufferedData returns any bytes committed but not yet consumed by
// the parser (e.g. the start of an Upgrade payload that arrived attached
// to the same read as the final header bytes) and marks them consumed.
// The caller takes ownership of the returned slice.
func (p *Parser) ReleaseBufferedData() []byte {
	out := append([]byte(nil), p.buf.Data()...)
	p.buf.Consume(len(out))
	return out
}

// Parse advances the state machine as far as the currently committed
// bytes allow, returning one Event. Callers should call Parse in a loop
// until it returns EventNeedMore (and then Prepare/Commit more bytes or
// CommitEOF) or EventComplete.
func (p *Parser) Parse() (Event, error) {
	for {
		switch p.state {
		case StateNeedStartLine:
			done, err := p.parseStartLine()
			if err != nil {
				p.state = StateError
				return Event{}, err
			}
			if !done {
				return Event{Kind: EventNeedMore}, nil
			}
			p.state = StateNeedHeader
		case StateNeedHeader:
			done, err := p.parseHeaderFields()
			if err != nil {
				p.state = StateError
				return Event{}, err
			}
			if !done {
				return Event{Kind: EventNeedMore}, nil
			}
			p.state = StateHeaderDone
			p.establishBodyFraming()
			return Event{Kind: EventHeaderDone}, nil
		case StateHeaderDone:
			p.enterBodyState()
		case StateIdentityBody:
			ev, done, err := p.parseIdentityBody()
			if err != nil {
				p.state = StateError
				return Event{}, err
			}
			if done {
				p.state = StateComplete
			}
			return ev, nil
		case StateChunkedBody:
			ev, next, err := p.parseChunkedBody()
			if err != nil {
				p.state = StateError
				return Event{}, err
			}
			p.state = next
			return ev, nil
		case StateEOFBody:
			ev, done, err := p.parseEOFBody()
			if err != nil {
				p.state = StateError
				return Event{}, err
			}
			if done {
				p.state = StateComplete
			}
			return ev, nil
		case StateComplete:
			return Event{Kind: EventComplete}, nil
		case StateError:
			return Event{}, wireerr.New(wireerr.KindArgument, "parser.Parse", wireerr.CodeInvalidArgument)
		}
	}
}

func (p *Parser) parseStartLine() (bool, error) {
	data := p.buf.Data()
	end := findLineEnd(data)
	if end < 0 {
		if len(data) > maxStartLine {
			return false, wireerr.New(wireerr.KindLimit, "parser.startLine", wireerr.CodeHeaderLimit)
		}
		return false, nil
	}
	line := stripLineTerminator(data[:end])
	c := &rfc7230.Cursor{Data: line}
	if p.kind == header.KindRequest {
		method, err := rfc7230.Token(c)
		if err != nil {
			return false, wireerr.Wrap(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadRequestLine, err)
		}
		if c.Pos >= len(c.Data) || c.Data[c.Pos] != ' ' {
			return false, wireerr.New(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadRequestLine)
		}
		c.Pos++
		target, err := rfc7230.RequestTarget(c)
		if err != nil {
			return false, wireerr.Wrap(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadRequestLine, err)
		}
		if c.Pos >= len(c.Data) || c.Data[c.Pos] != ' ' {
			return false, wireerr.New(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadRequestLine)
		}
		c.Pos++
		major, minor, err := rfc7230.Version(c)
		if err != nil {
			return false, wireerr.Wrap(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadVersion, err)
		}
		if c.Pos != len(c.Data) {
			return false, wireerr.New(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadRequestLine)
		}
		if err := p.hdr.SetStartLine(method, target, major, minor); err != nil {
			return false, err
		}
	} else {
		major, minor, err := rfc7230.Version(c)
		if err != nil {
			return false, wireerr.Wrap(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadVersion, err)
		}
		if c.Pos >= len(c.Data) || c.Data[c.Pos] != ' ' {
			return false, wireerr.New(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadStatusLine)
		}
		c.Pos++
		status, err := rfc7230.StatusCode(c)
		if err != nil {
			return false, wireerr.Wrap(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadStatusLine, err)
		}
		reason := ""
		if c.Pos < len(c.Data) {
			if c.Data[c.Pos] != ' ' {
				return false, wireerr.New(wireerr.KindGrammar, "parser.startLine", wireerr.CodeBadStatusLine)
			}
			reason = string(c.Data[c.Pos+1:])
		}
		if err := p.hdr.SetStatusLine(major, minor, status, reason); err != nil {
			return false, err
		}
	}
	p.buf.Consume(end)
	return true, nil
}

// stripLineTerminator removes a trailing CRLF or bare LF from a line
// already known to end in one (per findLineEnd).
func stripLineTerminator(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
	}
	return line
}

// findLineEnd returns the index just past a CRLF (or lenient bare LF)
// terminator, or -1 if data doesn't yet contain one.
func findLineEnd(data []byte) int {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			return i + 1
		}
	}
	return -1
}

func (p *Parser) parseHeaderFields() (bool, error) {
	data := p.buf.Data()
	needMore, err := p.fs.run(data, p.maxHeaderSize, p.maxFieldCount)
	if err != nil {
		return false, err
	}
	if needMore {
		return false, nil
	}
	for _, f := range p.fs.fields {
		if err := p.hdr.Append(string(f.name), string(f.value)); err != nil {
			return false, err
		}
	}
	p.buf.Consume(p.fs.byteLen)
	return true, nil
}

func (p *Parser) establishBodyFraming() {
	switch {
	case p.bodyForbidden:
		p.bodyMode = bodyNone
	case p.hdr.HasChunked():
		p.bodyMode = bodyChunked
	case p.hdr.HasContentLength():
		p.bodyMode = bodyIdentity
		p.remaining = p.hdr.ContentLength()
	case p.kind == header.KindResponse:
		p.bodyMode = bodyEOF
	default:
		p.bodyMode = bodyNone
	}
}

func (p *Parser) enterBodyState() {
	switch p.bodyMode {
	case bodyIdentity:
		if p.remaining == 0 {
			p.state = StateComplete
			return
		}
		p.state = StateIdentityBody
	case bodyChunked:
		p.state = StateChunkedBody
	case bodyEOF:
		p.state = StateEOFBody
	default:
		p.state = StateComplete
	}
}

func (p *Parser) parseIdentityBody() (Event, bool, error) {
	data := p.buf.Data()
	if len(data) == 0 {
		if p.remaining == 0 {
			return Event{Kind: EventComplete}, true, nil
		}
		if p.eof {
			return Event{}, false, wireerr.New(wireerr.KindProtocolMismatch, "parser.identityBody", wireerr.CodeBodyTooShort)
		}
		return Event{Kind: EventNeedMore}, false, nil
	}
	take := uint64(len(data))
	if take > p.remaining {
		take = p.remaining
	}
	chunkOut, err := p.deliverBody(data[:take])
	if err != nil {
		return Event{}, false, err
	}
	p.buf.Consume(int(take))
	p.remaining -= take
	done := p.remaining == 0
	if done && p.hasFilter() {
		// Flush the filter once the last identity byte has been fed.
		flushed, ferr := p.flushFilter()
		if ferr != nil {
			return Event{}, false, ferr
		}
		chunkOut = append(chunkOut, flushed...)
	}
	return Event{Kind: EventBodyData, Data: chunkOut}, done, nil
}

func (p *Parser) parseEOFBody() (Event, bool, error) {
	data := p.buf.Data()
	if len(data) == 0 {
		if p.eof {
			if p.hasFilter() {
				flushed, err := p.flushFilter()
				if err != nil {
					return Event{}, false, err
				}
				return Event{Kind: EventBodyData, Data: flushed}, true, nil
			}
			return Event{Kind: EventComplete}, true, nil
		}
		return Event{Kind: EventNeedMore}, false, nil
	}
	out, err := p.deliverBody(data)
	if err != nil {
		return Event{}, false, err
	}
	p.buf.Consume(len(data))
	return Event{Kind: EventBodyData, Data: out}, false, nil
}

// deliverBody pushes raw body bytes through the attached filter (if any)
// and/or the attached sink, returning bytes to surface via Event.Data
// (empty when a Sink has already consumed them).
func (p *Parser) deliverBody(raw []byte) ([]byte, error) {
	var out []byte
	if p.filt != nil {
		produced, err := p.runFilter(raw, true)
		if err != nil {
			return nil, err
		}
		out = produced
	} else {
		out = append([]byte(nil), raw...)
	}
	if p.sink != nil {
		if len(out) > 0 {
			if err := p.sink.Write(out); err != nil {
				return nil, wireerr.Wrap(wireerr.KindArgument, "parser.sink", wireerr.CodeInvalidArgument, err)
			}
		}
		return nil, nil
	}
	return out, nil
}

func (p *Parser) hasFilter() bool { return p.filt != nil }

func (p *Parser) runFilter(in []byte, more bool) ([]byte, error) {
	var out []byte
	scratch := make([]byte, 4096)
	pending := in
	for {
		res, err := p.filt.Process(scratch, pending, more || len(pending) > 0)
		if err != nil {
			return nil, err
		}
		out = append(out, scratch[:res.OutBytes]...)
		pending = pending[res.InBytes:]
		if len(pending) == 0 && (res.Finished || more) {
			break
		}
		if res.OutBytes == 0 && res.InBytes == 0 {
			break
		}
	}
	return out, nil
}

func (p *Parser) flushFilter() ([]byte, error) {
	return p.runFilter(nil, false)
}
