package httpwire

import (
	"testing"

	"github.com/shapestone/shape-httpwire/pkg/header"
	"github.com/stretchr/testify/require"
)

// drain pulls every output segment off s until it reports done, Consuming
// each segment in full as a real writer would after a successful write.
func drain(t *testing.T, s *Serializer) []byte {
	t.Helper()
	var out []byte
	stalls := 0
	for !s.IsDone() {
		segs, err := s.Prepare()
		require.NoError(t, err)
		if len(segs) == 0 {
			stalls++
			require.Less(t, stalls, 1000, "serializer made no progress")
			continue
		}
		stalls = 0
		n := 0
		for _, seg := range segs {
			out = append(out, seg...)
			n += len(seg)
		}
		s.Consume(n)
	}
	return out
}

func TestSerializeRequestWithBody(t *testing.T) {
	h := header.New(header.KindRequest)
	require.NoError(t, h.SetStartLine("POST", "/submit", 1, 1))
	require.NoError(t, h.Append("Host", "example.com"))

	s := NewRequestSerializer()
	require.NoError(t, s.StartWithBody(h, []byte("a=1&b=2")))
	out := drain(t, s)

	require.Contains(t, string(out), "POST /submit HTTP/1.1\r\n")
	require.Contains(t, string(out), "Content-Length: 7\r\n")
	require.Contains(t, string(out), "\r\n\r\na=1&b=2")
}

func TestSerializeResponseEmptyBody(t *testing.T) {
	h := header.New(header.KindResponse)
	require.NoError(t, h.SetStatusLine(1, 1, 204, "No Content"))

	s := NewResponseSerializer()
	require.NoError(t, s.StartEmpty(h))
	out := drain(t, s)

	require.Equal(t, "HTTP/1.1 204 No Content\r\n\r\n", string(out))
}

type sliceSourceN struct {
	parts [][]byte
	i     int
}

func (s *sliceSourceN) Read(p []byte) (int, bool, error) {
	if s.i >= len(s.parts) {
		return 0, true, nil
	}
	n := copy(p, s.parts[s.i])
	s.i++
	return n, s.i >= len(s.parts), nil
}

func TestSerializeChunkedFromSource(t *testing.T) {
	h := header.New(header.KindResponse)
	require.NoError(t, h.SetStatusLine(1, 1, 200, "OK"))

	s := NewResponseSerializer()
	src := &sliceSourceN{parts: [][]byte{[]byte("hello, "), []byte("world")}}
	require.NoError(t, s.StartWithSource(h, src))
	out := drain(t, s)

	require.Contains(t, string(out), "Transfer-Encoding: chunked\r\n")
	require.Contains(t, string(out), "7\r\nhello, \r\n")
	require.Contains(t, string(out), "5\r\nworld\r\n")
	require.Contains(t, string(out), "0\r\n\r\n")
}

func TestSerializeStreamPushBody(t *testing.T) {
	h := header.New(header.KindResponse)
	require.NoError(t, h.SetStatusLine(1, 1, 200, "OK"))

	s := NewResponseSerializer()
	stream, err := s.StartStream(h)
	require.NoError(t, err)
	_, _ = stream.Write([]byte("chunk-one"))
	require.NoError(t, stream.Close())
	out := drain(t, s)

	require.Contains(t, string(out), "9\r\nchunk-one\r\n")
	require.Contains(t, string(out), "0\r\n\r\n")
}

func TestSerializeHTTP10UnknownLengthUsesCloseFraming(t *testing.T) {
	h := header.New(header.KindResponse)
	require.NoError(t, h.SetStatusLine(1, 0, 200, "OK"))

	s := NewResponseSerializer()
	src := &sliceSourceN{parts: [][]byte{[]byte("legacy body")}}
	require.NoError(t, s.StartWithSource(h, src))
	out := drain(t, s)

	require.NotContains(t, string(out), "chunked")
	require.Contains(t, string(out), "legacy body")
}

// TestSerializeIdentityBodyIsZeroCopy checks that an in-memory body with no
// filter chain is handed to the output sequence by reference, not copied
// through scratch space: the emitted segment shares the same backing array
// as the caller's buffer.
func TestSerializeIdentityBodyIsZeroCopy(t *testing.T) {
	h := header.New(header.KindResponse)
	require.NoError(t, h.SetStatusLine(1, 1, 200, "OK"))
	body := []byte("zero-copy-body")

	s := NewResponseSerializer()
	require.NoError(t, s.StartWithBody(h, body))

	segs, err := s.Prepare()
	require.NoError(t, err)
	var headerLen int
	for _, seg := range segs {
		headerLen += len(seg)
	}
	s.Consume(headerLen)

	segs, err = s.Prepare()
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, &body[0], &segs[0][0], "body segment should alias the caller's buffer")
	s.Consume(len(segs[0]))
	require.True(t, s.IsDone())
}

func TestSerializeExpectContinueHaltsUntilResume(t *testing.T) {
	h := header.New(header.KindRequest)
	require.NoError(t, h.SetStartLine("POST", "/submit", 1, 1))
	require.NoError(t, h.Append("Host", "example.com"))
	require.NoError(t, h.Append("Expect", "100-continue"))

	s := NewRequestSerializer()
	require.NoError(t, s.StartWithBody(h, []byte("payload")))

	segs, err := s.Prepare()
	require.NoError(t, err)
	var headerOut []byte
	for _, seg := range segs {
		headerOut = append(headerOut, seg...)
	}
	s.Consume(len(headerOut))
	require.Contains(t, string(headerOut), "POST /submit HTTP/1.1\r\n")
	require.Contains(t, string(headerOut), "Expect: 100-continue\r\n")
	require.NotContains(t, string(headerOut), "payload")

	require.True(t, s.AwaitingContinue())
	require.False(t, s.IsDone())

	// Without Resume, repeated Prepare calls make no further progress.
	segs, err = s.Prepare()
	require.NoError(t, err)
	require.Empty(t, segs)
	require.False(t, s.IsDone())

	require.NoError(t, s.Resume())
	require.False(t, s.AwaitingContinue())

	rest := drain(t, s)
	require.Equal(t, "payload", string(rest))
}

// TestParseSerializeRoundTrip renders a chunked response with the
// serializer and feeds the result back through the parser, checking the
// body and framing survive the round trip.
func TestParseSerializeRoundTrip(t *testing.T) {
	h := header.New(header.KindResponse)
	require.NoError(t, h.SetStatusLine(1, 1, 200, "OK"))
	require.NoError(t, h.Append("X-Trace", "abc"))

	s := NewResponseSerializer()
	src := &sliceSourceN{parts: [][]byte{[]byte("round"), []byte("trip")}}
	require.NoError(t, s.StartWithSource(h, src))
	wire := drain(t, s)

	p := NewResponseParser()
	body, final := feedWhole(t, p, wire)
	require.Equal(t, EventComplete, final)
	require.Equal(t, "roundtrip", string(body))
	fv, ok := p.Header().Find("x-trace")
	require.True(t, ok)
	require.Equal(t, "abc", string(fv.Value))
}
