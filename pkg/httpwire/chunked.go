package httpwire

import (
	"github.com/shapestone/shape-httpwire/internal/rfc7230"
	"github.com/shapestone/shape-httpwire/pkg/wireerr"
)

// chunkPhase tracks where within one chunk (or the terminating zero-size
// chunk's trailer block) the chunked-body sub-state-machine currently is.
type chunkPhase int

const (
	chunkAwaitingSize chunkPhase = iota
	chunkAwaitingData
	chunkAwaitingDataCRLF
	chunkAwaitingTrailer
	chunkDone
)

type chunkState struct {
	phase     chunkPhase
	size      uint64 // size of the chunk currently being read
	remaining uint64 // bytes of that chunk not yet consumed
}

const maxChunkSizeLine = 4096

// parseChunkedBody advances the chunked-transfer-coding sub-state-machine
// by as much as currently committed bytes allow.
func (p *Parser) parseChunkedBody() (Event, State, error) {
	for {
		switch p.chunk.phase {
		case chunkAwaitingSize:
			ok, err := p.readChunkSizeLine()
			if err != nil {
				return Event{}, StateError, err
			}
			if !ok {
				return Event{Kind: EventNeedMore}, StateChunkedBody, nil
			}
			if p.chunk.size == 0 {
				p.chunk.phase = chunkAwaitingTrailer
				p.trailerFS = &fieldScanner{}
				p.trailerStart = p.hdr.Count()
				continue
			}
			p.chunk.remaining = p.chunk.size
			p.chunk.phase = chunkAwaitingData
		case chunkAwaitingData:
			ev, done, err := p.readChunkData()
			if err != nil {
				return Event{}, StateError, err
			}
			if done {
				p.chunk.phase = chunkAwaitingDataCRLF
			}
			return ev, StateChunkedBody, nil
		case chunkAwaitingDataCRLF:
			ok, err := p.consumeChunkTrailingCRLF()
			if err != nil {
				return Event{}, StateError, err
			}
			if !ok {
				return Event{Kind: EventNeedMore}, StateChunkedBody, nil
			}
			p.chunk.phase = chunkAwaitingSize
		case chunkAwaitingTrailer:
			done, err := p.readTrailerFields()
			if err != nil {
				return Event{}, StateError, err
			}
			if !done {
				return Event{Kind: EventNeedMore}, StateChunkedBody, nil
			}
			p.chunk.phase = chunkDone
			if p.hasFilter() {
				flushed, ferr := p.flushFilter()
				if ferr != nil {
					return Event{}, StateError, ferr
				}
				if len(flushed) > 0 {
					return Event{Kind: EventBodyData, Data: flushed}, StateComplete, nil
				}
			}
			return Event{Kind: EventComplete}, StateComplete, nil
		case chunkDone:
			return Event{Kind: EventComplete}, StateComplete, nil
		}
	}
}

// readChunkSizeLine consumes "chunk-size [ chunk-ext ] CRLF" and stores the
// parsed size in p.chunk.size.
func (p *Parser) readChunkSizeLine() (bool, error) {
	data := p.buf.Data()
	end := findLineEnd(data)
	if end < 0 {
		if len(data) > maxChunkSizeLine {
			return false, wireerr.New(wireerr.KindLimit, "parser.chunkSize", wireerr.CodeHeaderLimit)
		}
		return false, nil
	}
	c := &rfc7230.Cursor{Data: stripLineTerminator(data[:end])}
	size, overflow, err := rfc7230.HexDigits(c)
	if err != nil {
		return false, wireerr.Wrap(wireerr.KindGrammar, "parser.chunkSize", wireerr.CodeBadChunk, err)
	}
	if overflow {
		return false, wireerr.New(wireerr.KindLimit, "parser.chunkSize", wireerr.CodeBodyLimit)
	}
	exts, err := rfc7230.ParseChunkExtList(c)
	if err != nil {
		return false, wireerr.Wrap(wireerr.KindGrammar, "parser.chunkSize", wireerr.CodeBadChunkExtension, err)
	}
	if c.Pos != len(c.Data) {
		return false, wireerr.New(wireerr.KindGrammar, "parser.chunkSize", wireerr.CodeBadChunkExtension)
	}
	p.chunk.size = size
	p.chunkExt = exts
	p.buf.Consume(end)
	return true, nil
}

func (p *Parser) readChunkData() (Event, bool, error) {
	data := p.buf.Data()
	if len(data) == 0 {
		if p.eof {
			return Event{}, false, wireerr.New(wireerr.KindProtocolMismatch, "parser.chunkData", wireerr.CodeEndOfStream)
		}
		return Event{Kind: EventNeedMore}, false, nil
	}
	take := uint64(len(data))
	if take > p.chunk.remaining {
		take = p.chunk.remaining
	}
	out, err := p.deliverBody(data[:take])
	if err != nil {
		return Event{}, false, err
	}
	p.buf.Consume(int(take))
	p.chunk.remaining -= take
	done := p.chunk.remaining == 0
	return Event{Kind: EventBodyData, Data: out}, done, nil
}

func (p *Parser) consumeChunkTrailingCRLF() (bool, error) {
	data := p.buf.Data()
	c := &rfc7230.Cursor{Data: data}
	if err := rfc7230.CRLF(c); err != nil {
		if err == rfc7230.ErrNeedMore {
			return false, nil
		}
		return false, wireerr.Wrap(wireerr.KindGrammar, "parser.chunkTrailer", wireerr.CodeBadChunk, err)
	}
	p.buf.Consume(c.Pos)
	return true, nil
}

func (p *Parser) readTrailerFields() (bool, error) {
	data := p.buf.Data()
	needMore, err := p.trailerFS.run(data, p.maxHeaderSize, p.maxFieldCount)
	if err != nil {
		return false, err
	}
	if needMore {
		return false, nil
	}
	for _, f := range p.trailerFS.fields {
		if err := p.hdr.Append(string(f.name), string(f.value)); err != nil {
			return false, err
		}
	}
	p.buf.Consume(p.trailerFS.byteLen)
	return true, nil
}
