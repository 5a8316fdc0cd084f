package header

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderAppendFindErase(t *testing.T) {
	h := New(KindRequest)
	require.NoError(t, h.SetStartLine("GET", "/", 1, 1))
	require.NoError(t, h.Append("Host", "example.com"))
	require.NoError(t, h.Append("X-Custom", "value1"))
	require.NoError(t, h.Append("X-Custom", "value2"))

	fv, ok := h.Find("host")
	require.True(t, ok)
	require.Equal(t, "example.com", string(fv.Value))
	require.Equal(t, FieldHost, fv.ID)

	all := h.FindAll("X-Custom")
	require.Len(t, all, 2)
	require.Equal(t, "value1", string(all[0].Value))
	require.Equal(t, "value2", string(all[1].Value))

	require.Equal(t, 1, h.Erase("host"))
	_, ok = h.Find("Host")
	require.False(t, ok)

	raw := string(h.Raw())
	require.Contains(t, raw, "GET / HTTP/1.1\r\n")
	require.Contains(t, raw, "X-Custom: value1\r\n")
	require.Contains(t, raw, "X-Custom: value2\r\n")
	require.Contains(t, raw, "\r\n\r\n")
}

func TestHeaderSetReplacesAllMatches(t *testing.T) {
	h := New(KindRequest)
	require.NoError(t, h.SetStartLine("GET", "/", 1, 1))
	require.NoError(t, h.Append("X-Dup", "a"))
	require.NoError(t, h.Append("X-Dup", "b"))
	require.NoError(t, h.Set("X-Dup", "c"))

	all := h.FindAll("X-Dup")
	require.Len(t, all, 1)
	require.Equal(t, "c", string(all[0].Value))
}

func TestHeaderFindIDMatchesFindByName(t *testing.T) {
	h := New(KindResponse)
	require.NoError(t, h.SetStatusLine(1, 1, 200, "OK"))
	require.NoError(t, h.Append("Content-Length", "5"))

	byName, ok1 := h.Find("Content-Length")
	byID, ok2 := h.FindID(FieldContentLength)
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, byName.Value, byID.Value)
}

func TestHeaderFramingReconciliation(t *testing.T) {
	h := New(KindResponse)
	require.NoError(t, h.SetStatusLine(1, 1, 200, "OK"))
	require.NoError(t, h.Append("Content-Length", "5"))
	require.NoError(t, h.Append("Transfer-Encoding", "chunked"))

	require.True(t, h.HasChunked())
	require.False(t, h.HasContentLength())
}

func TestHeaderOffsetIndexAddressesCorrectBytes(t *testing.T) {
	h := New(KindRequest)
	require.NoError(t, h.SetStartLine("POST", "/submit", 1, 1))
	names := []string{"Host", "Content-Type", "X-One", "X-Two", "X-Three"}
	for i, n := range names {
		require.NoError(t, h.Append(n, "v"+string(rune('0'+i))))
	}
	for _, fv := range h.Fields() {
		require.Contains(t, names, string(fv.Name))
	}
}

func TestHeaderAppendRejectsInvalidName(t *testing.T) {
	h := New(KindRequest)
	require.NoError(t, h.SetStartLine("GET", "/", 1, 1))
	err := h.Append("", "x")
	require.Error(t, err)
	err = h.Append("Bad Name", "x")
	require.Error(t, err)
}

func TestHeaderFieldCountLimit(t *testing.T) {
	h := New(KindRequest)
	h.SetLimits(MaxHeaderSize, 2)
	require.NoError(t, h.SetStartLine("GET", "/", 1, 1))
	require.NoError(t, h.Append("A", "1"))
	require.NoError(t, h.Append("B", "2"))
	err := h.Append("C", "3")
	require.Error(t, err)
}

func TestConnectionTokensAndStrip(t *testing.T) {
	h := New(KindResponse)
	require.NoError(t, h.SetStatusLine(1, 1, 101, "Switching Protocols"))
	require.NoError(t, h.Append("Connection", "upgrade, keep-alive"))
	require.NoError(t, h.Append("Upgrade", "websocket"))

	tokens := h.ConnectionTokens()
	require.Equal(t, []string{"upgrade", "keep-alive"}, tokens)

	h.StripHopByHop()
	_, ok := h.Find("Connection")
	require.False(t, ok)
	_, ok = h.Find("Upgrade")
	require.False(t, ok)
}
