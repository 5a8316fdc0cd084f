package httpwire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shapestone/shape-httpwire/pkg/wireerr"
)

// feedChunks commits each of chunks to p in order, driving Parse between
// commits exactly the way a caller reading off a fragmenting socket would.
// Once every chunk is committed it signals end-of-stream and keeps parsing
// until the message completes or genuinely stalls.
func feedChunks(t *testing.T, p *Parser, chunks [][]byte) ([]byte, EventKind) {
	t.Helper()
	var body []byte
	next := 0
	for {
		ev, err := p.Parse()
		require.NoError(t, err)
		switch ev.Kind {
		case EventBodyData:
			body = append(body, ev.Data...)
		case EventComplete:
			return body, EventComplete
		case EventHeaderDone:
			// keep driving
		case EventNeedMore:
			if next < len(chunks) {
				c := chunks[next]
				next++
				dst, err := p.Prepare(len(c))
				require.NoError(t, err)
				copy(dst, c)
				p.Commit(len(c))
				continue
			}
			if !p.eof {
				p.CommitEOF()
				continue
			}
			return body, EventNeedMore
		}
	}
}

func feedWhole(t *testing.T, p *Parser, msg []byte) ([]byte, EventKind) {
	t.Helper()
	return feedChunks(t, p, [][]byte{msg})
}

func feedByteAtATime(t *testing.T, p *Parser, msg []byte) ([]byte, EventKind) {
	t.Helper()
	chunks := make([][]byte, len(msg))
	for i, b := range msg {
		chunks[i] = []byte{b}
	}
	return feedChunks(t, p, chunks)
}

func TestParseSimpleGETRequest(t *testing.T) {
	raw := "GET /widgets?id=9 HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"
	p := NewRequestParser()
	body, final := feedWhole(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Empty(t, body)
	require.Equal(t, "GET", p.Header().Method())
	require.Equal(t, "/widgets?id=9", p.Header().Target())
	fv, ok := p.Header().Find("host")
	require.True(t, ok)
	require.Equal(t, "example.com", string(fv.Value))
}

func TestParseResponseWithContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	p := NewResponseParser()
	body, final := feedWhole(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Equal(t, "hello", string(body))
	require.Equal(t, 200, p.Header().StatusCode())
	require.Equal(t, "OK", p.Header().Reason())
}

func TestParseResponseByteAtATime(t *testing.T) {
	raw := "HTTP/1.0 404 Not Found\r\nContent-Length: 13\r\n\r\nhello, world!"
	p := NewResponseParser()
	body, final := feedByteAtATime(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Equal(t, "hello, world!", string(body))
	require.Equal(t, 404, p.Header().StatusCode())
}

func TestParseChunkedBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n, worl\r\n1\r\nd\r\n0\r\n\r\n"
	p := NewResponseParser()
	body, final := feedWhole(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Equal(t, "hello, world", string(body))
}

func TestParseChunkedBodyByteAtATime(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\n\r\n"
	p := NewResponseParser()
	body, final := feedByteAtATime(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Equal(t, "Wikipedia in\r\n\r\nchunks.", string(body))
}

func TestParseChunkedBodyWithTrailer(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nfoo\r\n0\r\nX-Checksum: abc123\r\n\r\n"
	p := NewResponseParser()
	body, final := feedWhole(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Equal(t, "foo", string(body))
	fv, ok := p.Header().Find("x-checksum")
	require.True(t, ok)
	require.Equal(t, "abc123", string(fv.Value))
}

func TestParseObsFoldCollapsesToSingleSpace(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.com\r\nX-Long: part one\r\n  part two\r\n\r\n"
	p := NewRequestParser()
	_, final := feedWhole(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	fv, ok := p.Header().Find("x-long")
	require.True(t, ok)
	require.Equal(t, "part one part two", string(fv.Value))
}

func TestParseRejectsObsFoldAtStartOfFieldBlock(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n  Host: example.com\r\n\r\n"
	p := NewRequestParser()
	dst, err := p.Prepare(64)
	require.NoError(t, err)
	n := copy(dst, raw)
	p.Commit(n)
	_, err = p.Parse()
	require.Error(t, err)
	require.True(t, wireerr.HasKind(err, wireerr.KindGrammar))
	werr, ok := err.(*wireerr.Error)
	require.True(t, ok)
	require.Equal(t, wireerr.CodeBadObsFold, werr.Code)
}

func TestParseRejectsObsFoldAtStartOfTrailerBlock(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nfoo\r\n0\r\n  X-Checksum: abc123\r\n\r\n"
	p := NewResponseParser()
	dst, err := p.Prepare(len(raw))
	require.NoError(t, err)
	n := copy(dst, raw)
	p.Commit(n)
	var lastErr error
	for i := 0; i < 10; i++ {
		var ev Event
		ev, lastErr = p.Parse()
		if lastErr != nil || ev.Kind == EventComplete {
			break
		}
	}
	require.Error(t, lastErr)
	require.True(t, wireerr.HasKind(lastErr, wireerr.KindGrammar))
}

func TestParseChunkExtensionIsExposed(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3;foo=bar\r\nfoo\r\n0\r\n\r\n"
	p := NewResponseParser()
	var sawExt bool
	for {
		ev, err := p.Parse()
		require.NoError(t, err)
		if ev.Kind == EventNeedMore {
			dst, perr := p.Prepare(len(raw))
			require.NoError(t, perr)
			n := copy(dst, raw)
			p.Commit(n)
			raw = raw[n:]
			continue
		}
		if ev.Kind == EventBodyData && len(p.ChunkExtension()) > 0 {
			sawExt = true
			require.Equal(t, "foo", p.ChunkExtension()[0].Name)
			require.Equal(t, "bar", p.ChunkExtension()[0].Value)
		}
		if ev.Kind == EventComplete {
			break
		}
	}
	require.True(t, sawExt)
}

func TestParseChunkedWinsOverContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 999\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"2\r\nhi\r\n0\r\n\r\n"
	p := NewResponseParser()
	body, final := feedWhole(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Equal(t, "hi", string(body))
}

func TestParseBodyForbiddenIgnoresContentLength(t *testing.T) {
	raw := "HTTP/1.1 204 No Content\r\nContent-Length: 10\r\n\r\n"
	p := NewResponseParser()
	p.SetBodyForbidden(true)
	body, final := feedWhole(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Empty(t, body)
}

func TestParseResponseEOFBody(t *testing.T) {
	raw := "HTTP/1.0 200 OK\r\n\r\nno length, read until close"
	p := NewResponseParser()
	body, final := feedWhole(t, p, []byte(raw))
	require.Equal(t, EventComplete, final)
	require.Equal(t, "no length, read until close", string(body))
}

func TestParseRejectsTrailingGarbageOnRequestLine(t *testing.T) {
	p := NewRequestParser()
	dst, err := p.Prepare(64)
	require.NoError(t, err)
	n := copy(dst, "GET / HTTP/1.1 extra\r\n\r\n")
	p.Commit(n)
	_, err = p.Parse()
	require.Error(t, err)
}

func TestParseRejectsBadFieldLine(t *testing.T) {
	p := NewRequestParser()
	dst, err := p.Prepare(64)
	require.NoError(t, err)
	n := copy(dst, "GET / HTTP/1.1\r\nNotAField\r\n\r\n")
	p.Commit(n)
	_, err = p.Parse()
	require.Error(t, err)
}

// TestParseFragmentationInvariant re-parses the same chunked message split
// at every possible byte boundary and checks every split yields the same
// body, since a caller's socket reads may land anywhere.
func TestParseFragmentationInvariant(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nfoo\r\n3\r\nbar\r\n0\r\n\r\n")
	for split := 0; split <= len(raw); split++ {
		p := NewResponseParser()
		body, final := feedChunks(t, p, [][]byte{raw[:split], raw[split:]})
		require.Equal(t, EventComplete, final, "split at %d", split)
		require.Equal(t, "foobar", string(body), "split at %d", split)
	}
}
