// Package filter implements the content-coding filter contract: a stream
// transducer the parser drives on decode and the serializer drives on
// encode, with no opinion about the bytes it transforms. The core defines
// only the contract; concrete codecs are external collaborators wired in
// here against klauspost/compress, the compression library already present
// in the retrieval pack's dependency graph (transitively, via fasthttp, in
// packetd/go.mod).
package filter

import (
	"bytes"
	"compress/flate"
	"errors"
	"io"

	kflate "github.com/klauspost/compress/flate"
	kgzip "github.com/klauspost/compress/gzip"

	"github.com/shapestone/shape-httpwire/pkg/wireerr"
)

// errNeedMore is returned by decodeSource.Read when its buffered compressed
// bytes are exhausted but the caller hasn't signaled end of stream yet; it
// never escapes this package; processDecode translates it into a no-progress
// Result instead of an error.
var errNeedMore = errors.New("filter: decode source needs more input")

// decodeSource is the persistent (non-snapshot) compressed-byte queue a
// gzip/flate Reader pulls from. Each Process call appends its input here, so
// a stream delivered in fragments across many calls is decoded as a whole.
// The decompressors keep the first error they see (errNeedMore included) and
// return it from every later Read, so the decode adapters only queue input
// while more is true and start reading once the final (more=false) call
// arrives.
type decodeSource struct {
	queued []byte
	eof    bool
}

func (s *decodeSource) push(b []byte) { s.queued = append(s.queued, b...) }

func (s *decodeSource) Read(p []byte) (int, error) {
	if len(s.queued) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		return 0, errNeedMore
	}
	n := copy(p, s.queued)
	s.queued = s.queued[n:]
	return n, nil
}

// Result is the outcome of one Process call.
type Result struct {
	OutBytes int
	InBytes  int
	Finished bool
}

// Filter is a stream transducer: it consumes up to len(in)
// bytes of input and produces up to len(out) bytes of output. more=false
// signals no further input will arrive (end-of-stream flush).
// finished=true signals the filter has emitted its last byte.
//
// Implementations must make progress whenever at least one byte of input
// is available or more is false; a call that can do neither must return
// wireerr with Kind KindFilter and Code CodeBadFilter rather than loop
// forever.
type Filter interface {
	Process(out []byte, in []byte, more bool) (Result, error)
	// Reset returns the filter to its initial state so it can be reused
	// for a new message from the same workspace arena.
	Reset()
}

// Identity is the no-op filter: it copies input to output unchanged. The
// parser and serializer do not install it on their own; with no filter
// attached they pass body bytes through directly.
type Identity struct{}

func (Identity) Process(out, in []byte, more bool) (Result, error) {
	n := len(in)
	if n > len(out) {
		n = len(out)
	}
	copy(out, in[:n])
	return Result{OutBytes: n, InBytes: n, Finished: !more && n == len(in)}, nil
}

func (Identity) Reset() {}

// gzipAdapter adapts klauspost/compress/gzip's Reader/Writer to the
// Process contract via an internal staging buffer, since that package
// exposes an io.Reader/io.Writer surface rather than a push-pull one.
type gzipAdapter struct {
	encode bool
	level  int

	gw      *kgzip.Writer
	gr      *kgzip.Reader
	pending bytes.Buffer
	src     *decodeSource
	closed  bool
}

// Gzip returns an encode filter (level defaults to kgzip.DefaultCompression
// when 0) that produces a gzip-framed stream from raw body bytes.
func Gzip(level int) Filter {
	if level == 0 {
		level = kgzip.DefaultCompression
	}
	a := &gzipAdapter{encode: true, level: level}
	a.gw, _ = kgzip.NewWriterLevel(&a.pending, level)
	return a
}

// GzipDecoder returns a decode filter that inflates a gzip-framed stream
// back to raw body bytes.
func GzipDecoder() Filter {
	return &gzipAdapter{encode: false}
}

func (a *gzipAdapter) Process(out, in []byte, more bool) (Result, error) {
	if a.encode {
		return a.processEncode(out, in, more)
	}
	return a.processDecode(out, in, more)
}

func (a *gzipAdapter) processEncode(out, in []byte, more bool) (Result, error) {
	inBytes := 0
	if len(in) > 0 {
		n, err := a.gw.Write(in)
		inBytes = n
		if err != nil {
			return Result{}, wireerr.Wrap(wireerr.KindFilter, "filter.Gzip", wireerr.CodeBadFilter, err)
		}
	}
	if !more && !a.closed {
		if err := a.gw.Close(); err != nil {
			return Result{}, wireerr.Wrap(wireerr.KindFilter, "filter.Gzip", wireerr.CodeBadFilter, err)
		}
		a.closed = true
	}
	n, _ := a.pending.Read(out)
	if a.closed && a.pending.Len() == 0 {
		return Result{OutBytes: n, InBytes: inBytes, Finished: true}, nil
	}
	return Result{OutBytes: n, InBytes: inBytes, Finished: false}, nil
}

func (a *gzipAdapter) processDecode(out, in []byte, more bool) (Result, error) {
	if a.src == nil {
		a.src = &decodeSource{}
	}
	a.src.push(in)
	inBytes := len(in)
	if !more {
		a.src.eof = true
	}
	if more {
		// Queue only; see decodeSource for why reading waits for the end.
		return Result{InBytes: inBytes}, nil
	}
	if a.gr == nil {
		r, err := kgzip.NewReader(a.src)
		if err != nil {
			if errors.Is(err, errNeedMore) {
				return Result{InBytes: inBytes}, nil
			}
			return Result{}, wireerr.Wrap(wireerr.KindFilter, "filter.GzipDecoder", wireerr.CodeBadFilter, err)
		}
		a.gr = r
	}
	n, err := a.gr.Read(out)
	if errors.Is(err, errNeedMore) {
		return Result{OutBytes: n, InBytes: inBytes}, nil
	}
	if err == io.EOF {
		return Result{OutBytes: n, InBytes: inBytes, Finished: true}, nil
	}
	if err != nil {
		return Result{}, wireerr.Wrap(wireerr.KindFilter, "filter.GzipDecoder", wireerr.CodeBadFilter, err)
	}
	return Result{OutBytes: n, InBytes: inBytes, Finished: false}, nil
}

func (a *gzipAdapter) Reset() {
	a.pending.Reset()
	a.src = nil
	a.gr = nil
	a.closed = false
	if a.encode {
		a.gw, _ = kgzip.NewWriterLevel(&a.pending, a.level)
	}
}

// deflateAdapter mirrors gzipAdapter for raw DEFLATE (Content-Encoding:
// deflate), using klauspost/compress/flate for the writer side and the
// standard library's compress/flate for the reader side — klauspost does
// not re-implement the decompressor, so the adapter pulls the decode half
// from stdlib the same way klauspost's own README documents for consumers
// who only need faster compression, not faster decompression.
type deflateAdapter struct {
	encode  bool
	level   int
	fw      *kflate.Writer
	fr      io.ReadCloser
	pending bytes.Buffer
	src     *decodeSource
	closed  bool
}

// Deflate returns an encode filter producing a raw DEFLATE stream.
func Deflate(level int) Filter {
	if level == 0 {
		level = kflate.DefaultCompression
	}
	a := &deflateAdapter{encode: true, level: level}
	a.fw, _ = kflate.NewWriter(&a.pending, level)
	return a
}

// DeflateDecoder returns a decode filter inflating a raw DEFLATE stream.
func DeflateDecoder() Filter { return &deflateAdapter{encode: false} }

func (a *deflateAdapter) Process(out, in []byte, more bool) (Result, error) {
	if a.encode {
		inBytes := 0
		if len(in) > 0 {
			n, err := a.fw.Write(in)
			inBytes = n
			if err != nil {
				return Result{}, wireerr.Wrap(wireerr.KindFilter, "filter.Deflate", wireerr.CodeBadFilter, err)
			}
		}
		if !more && !a.closed {
			if err := a.fw.Close(); err != nil {
				return Result{}, wireerr.Wrap(wireerr.KindFilter, "filter.Deflate", wireerr.CodeBadFilter, err)
			}
			a.closed = true
		}
		n, _ := a.pending.Read(out)
		return Result{OutBytes: n, InBytes: inBytes, Finished: a.closed && a.pending.Len() == 0}, nil
	}

	if a.src == nil {
		a.src = &decodeSource{}
	}
	a.src.push(in)
	inBytes := len(in)
	if !more {
		a.src.eof = true
	}
	if more {
		// Queue only; see decodeSource for why reading waits for the end.
		return Result{InBytes: inBytes}, nil
	}
	if a.fr == nil {
		a.fr = flate.NewReader(a.src)
	}
	n, err := a.fr.Read(out)
	if errors.Is(err, errNeedMore) {
		return Result{OutBytes: n, InBytes: inBytes}, nil
	}
	if err == io.EOF {
		return Result{OutBytes: n, InBytes: inBytes, Finished: true}, nil
	}
	if err != nil {
		return Result{}, wireerr.Wrap(wireerr.KindFilter, "filter.DeflateDecoder", wireerr.CodeBadFilter, err)
	}
	return Result{OutBytes: n, InBytes: inBytes, Finished: false}, nil
}

func (a *deflateAdapter) Reset() {
	a.pending.Reset()
	a.src = nil
	a.fr = nil
	a.closed = false
	if a.encode {
		a.fw, _ = kflate.NewWriter(&a.pending, a.level)
	}
}
