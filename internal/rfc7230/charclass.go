package rfc7230

// Precomputed 256-byte membership tables for the character classes used
// throughout the grammar rules, so hot-path scanning is a single indexed
// load instead of a chain of comparisons. Grounded on the branchless
// ctype tables in original_source/include/boost/http_proto/bnf/impl/ctype.hpp.

var isTCharTable [256]bool
var isVCharOrObsTable [256]bool
var isOWSTable [256]bool

func init() {
	const tspecial = "!#$%&'*+-.^_`|~"
	for c := 0; c < 256; c++ {
		b := byte(c)
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
			isTCharTable[c] = true
		}
	}
	for i := 0; i < len(tspecial); i++ {
		isTCharTable[tspecial[i]] = true
	}
	for c := 0; c < 256; c++ {
		b := byte(c)
		// qdtext / quoted-pair payload: HTAB, SP, VCHAR, obs-text (0x80-0xFF)
		isVCharOrObsTable[c] = b == '\t' || b == ' ' || (b >= 0x21 && b <= 0x7E) || b >= 0x80
	}
	isOWSTable[' '] = true
	isOWSTable['\t'] = true
}

// IsTChar reports whether b is a tchar (token character).
func IsTChar(b byte) bool { return isTCharTable[b] }

// IsOWS reports whether b is optional-whitespace (SP or HTAB).
func IsOWS(b byte) bool { return isOWSTable[b] }

// foldCase converts an ASCII letter to lowercase by flipping bit 5; bytes
// that are not ASCII letters pass through unchanged. Standard fast
// case-insensitive ASCII comparator trick.
func foldCase(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b | 0x20
	}
	return b
}

// EqualFold reports whether a and b are equal under ASCII case-folding,
// without allocating (unlike strings.EqualFold for already-[]byte inputs).
func EqualFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if foldCase(a[i]) != foldCase(b[i]) {
			return false
		}
	}
	return true
}
