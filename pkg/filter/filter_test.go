package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// drive feeds all of in through f in one logical stream (more=false only on
// the final, empty-input flush call) and returns everything it produced.
func drive(t *testing.T, f Filter, in []byte) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 256)
	pending := in
	for {
		more := len(pending) > 0
		res, err := f.Process(buf, pending, more)
		require.NoError(t, err)
		out = append(out, buf[:res.OutBytes]...)
		pending = pending[res.InBytes:]
		if res.Finished {
			break
		}
	}
	return out
}

func roundtrip(t *testing.T, enc, dec Filter, payload []byte) []byte {
	t.Helper()
	compressed := drive(t, enc, payload)
	return drive(t, dec, compressed)
}

func TestIdentityFilterCopiesBytes(t *testing.T) {
	var id Identity
	out := make([]byte, 5)
	res, err := id.Process(out, []byte("hello"), false)
	require.NoError(t, err)
	require.Equal(t, 5, res.OutBytes)
	require.True(t, res.Finished)
	require.Equal(t, "hello", string(out))
}

func TestGzipRoundtrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly, repeatedly")
	out := roundtrip(t, Gzip(0), GzipDecoder(), payload)
	require.Equal(t, payload, out)
}

func TestDeflateRoundtrip(t *testing.T) {
	payload := []byte("deflate me please, deflate me please, deflate me please")
	out := roundtrip(t, Deflate(0), DeflateDecoder(), payload)
	require.Equal(t, payload, out)
}

// TestGzipDecodeAcrossFragmentedProcessCalls feeds the compressed bytes in
// two separate Process calls, split right after the gzip header, instead of
// handing the whole buffer over on the first call: a decoder that built its
// Reader from a one-time snapshot of the buffered bytes would miss the
// second call's data and report Finished with a truncated body.
func TestGzipDecodeAcrossFragmentedProcessCalls(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly, repeatedly")
	compressed := drive(t, Gzip(0), payload)
	require.Greater(t, len(compressed), 10)

	dec := GzipDecoder()
	var out []byte
	buf := make([]byte, 256)

	first, second := compressed[:10], compressed[10:]

	res, err := dec.Process(buf, first, true)
	require.NoError(t, err)
	out = append(out, buf[:res.OutBytes]...)
	require.False(t, res.Finished)

	for {
		more := len(second) > 0
		res, err := dec.Process(buf, second, more)
		require.NoError(t, err)
		out = append(out, buf[:res.OutBytes]...)
		second = second[res.InBytes:]
		if res.Finished {
			break
		}
	}
	require.Equal(t, payload, out)
}

// TestDeflateDecodeAcrossFragmentedProcessCalls mirrors the gzip case for
// raw DEFLATE.
func TestDeflateDecodeAcrossFragmentedProcessCalls(t *testing.T) {
	payload := []byte("deflate me please, deflate me please, deflate me please")
	compressed := drive(t, Deflate(0), payload)
	require.Greater(t, len(compressed), 4)

	dec := DeflateDecoder()
	var out []byte
	buf := make([]byte, 256)

	first, second := compressed[:4], compressed[4:]

	res, err := dec.Process(buf, first, true)
	require.NoError(t, err)
	out = append(out, buf[:res.OutBytes]...)

	for {
		more := len(second) > 0
		res, err := dec.Process(buf, second, more)
		require.NoError(t, err)
		out = append(out, buf[:res.OutBytes]...)
		second = second[res.InBytes:]
		if res.Finished {
			break
		}
	}
	require.Equal(t, payload, out)
}

func TestRegistryResolvesByToken(t *testing.T) {
	r := Default()
	require.NotNil(t, r.NewEncoder("gzip"))
	require.NotNil(t, r.NewDecoder("gzip"))
	require.Nil(t, r.NewEncoder("br"))
}
