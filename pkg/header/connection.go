package header

import "github.com/shapestone/shape-httpwire/internal/rfc7230"

// ConnectionTokens returns the tokens listed across all Connection field
// occurrences, parsed with the RFC 7230 §7 list-rule, e.g. ["close"] or
// ["keep-alive"], or the hop-by-hop header names a proxy must strip.
// Grounded on original_source/include/boost/http_proto/bnf/connection.hpp.
func (h *Header) ConnectionTokens() []string {
	var tokens []string
	h.FindAllFunc("connection", func(fv FieldView) bool {
		c := &rfc7230.Cursor{Data: fv.Value}
		elems, err := rfc7230.ListRule(c, 0, rfc7230.Token)
		if err != nil {
			return true
		}
		for _, e := range elems {
			tokens = append(tokens, e.Value)
		}
		return true
	})
	return tokens
}

// IsClose reports whether Connection: close was present.
func (h *Header) IsClose() bool {
	for _, t := range h.ConnectionTokens() {
		if rfc7230.EqualFold([]byte(t), []byte("close")) {
			return true
		}
	}
	return false
}

// StripHopByHop erases the Connection field itself plus every header it
// names (the hop-by-hop fields a proxy must not forward), per
// bnf/connection.hpp's documented semantics.
func (h *Header) StripHopByHop() {
	tokens := h.ConnectionTokens()
	h.Erase("connection")
	for _, t := range tokens {
		h.Erase(t)
	}
}
