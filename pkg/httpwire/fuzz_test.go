package httpwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shapestone/shape-httpwire/pkg/header"
)

// FuzzChunkedBodyRoundTrip checks the chunked codec round-trip property:
// any body handed to a source-driven chunked Serializer comes back out of
// a Parser fed the rendered wire bytes unchanged.
func FuzzChunkedBodyRoundTrip(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("hello world"))
	f.Add(bytes.Repeat([]byte("ab"), 300))

	f.Fuzz(func(t *testing.T, payload []byte) {
		h := header.New(header.KindResponse)
		require.NoError(t, h.SetStatusLine(1, 1, 200, "OK"))

		s := NewResponseSerializer()
		require.NoError(t, s.StartWithSource(h, &sliceSourceN{parts: [][]byte{payload}}))
		wire := drain(t, s)

		p := NewResponseParser()
		body, kind := feedWhole(t, p, wire)
		require.Equal(t, EventComplete, kind)
		require.Equal(t, payload, body)
	})
}

// driveTolerant is feedChunks without the require.NoError: FuzzFragmentedParseMatchesWhole
// feeds arbitrary, frequently malformed bytes, so a parse error is an
// expected outcome to compare, not a test failure in itself.
func driveTolerant(p *Parser, chunks [][]byte) (body []byte, kind EventKind, ferr error) {
	next := 0
	eof := false
	for {
		ev, err := p.Parse()
		if err != nil {
			return body, 0, err
		}
		switch ev.Kind {
		case EventBodyData:
			body = append(body, ev.Data...)
		case EventComplete:
			return body, EventComplete, nil
		case EventHeaderDone:
			// keep driving
		case EventNeedMore:
			if next < len(chunks) {
				c := chunks[next]
				next++
				dst, perr := p.Prepare(len(c))
				if perr != nil {
					return body, 0, perr
				}
				copy(dst, c)
				p.Commit(len(c))
				continue
			}
			if !eof {
				eof = true
				p.CommitEOF()
				continue
			}
			return body, EventNeedMore, nil
		}
	}
}

// FuzzFragmentedParseMatchesWhole checks the byte-fragmentation invariant:
// splitting an arbitrary byte stream across two Prepare/Commit calls at
// any offset must never change the parser's outcome (both runs fail, or
// both end with the same terminal event and decoded body) versus
// committing it whole.
func FuzzFragmentedParseMatchesWhole(f *testing.F) {
	f.Add([]byte("GET /x HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\n\r\nhello"), 10)
	f.Add([]byte("POST / HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n0\r\n\r\n"), 25)

	f.Fuzz(func(t *testing.T, msg []byte, split int) {
		if len(msg) == 0 {
			return
		}
		split %= len(msg) + 1
		if split < 0 {
			split += len(msg) + 1
		}

		whole := NewRequestParser()
		wholeBody, wholeKind, wholeErr := driveTolerant(whole, [][]byte{append([]byte(nil), msg...)})

		frag := NewRequestParser()
		fragBody, fragKind, fragErr := driveTolerant(frag, [][]byte{
			append([]byte(nil), msg[:split]...),
			append([]byte(nil), msg[split:]...),
		})

		if (wholeErr == nil) != (fragErr == nil) {
			t.Fatalf("fragmentation changed error outcome: whole=%v frag=%v", wholeErr, fragErr)
		}
		if wholeErr != nil {
			return
		}
		if wholeKind != fragKind {
			t.Fatalf("fragmentation changed terminal event: whole=%v frag=%v", wholeKind, fragKind)
		}
		if !bytes.Equal(wholeBody, fragBody) {
			t.Fatalf("fragmentation changed body: whole=%q frag=%q", wholeBody, fragBody)
		}
	})
}
