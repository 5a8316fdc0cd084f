// Package header implements the header model: a
// mutation-capable, single-contiguous-buffer representation of an HTTP
// message's start-line and field list, with O(1) lookup by well-known
// field identity and O(field-count) lookup by name. Grounded on
// shape-http/pkg/http/types.go's Headers/Header (a []Header slice with
// Get/Set/Add/Del/Clone), generalized to the buffer+index layout and
// case-insensitive known-field enum this model requires.
package header

import (
	"github.com/cespare/xxhash/v2"

	"github.com/shapestone/shape-httpwire/internal/rfc7230"
)

// FieldID is the known-field enum: a closed set of
// canonicalized HTTP field names, plus Other for anything not in the
// table.
type FieldID uint16

// A representative slice of the "few hundred entries" is wanted here:
// the fields this module's framing logic must recognize, plus the most
// common application-facing ones. Unrecognized names parse to FieldOther.
const (
	FieldOther FieldID = iota
	FieldHost
	FieldContentLength
	FieldTransferEncoding
	FieldConnection
	FieldUpgrade
	FieldSetCookie
	FieldCookie
	FieldContentEncoding
	FieldContentType
	FieldExpect
	FieldAccept
	FieldAcceptEncoding
	FieldAcceptLanguage
	FieldAuthorization
	FieldCacheControl
	FieldDate
	FieldETag
	FieldIfMatch
	FieldIfModifiedSince
	FieldIfNoneMatch
	FieldIfRange
	FieldIfUnmodifiedSince
	FieldLastModified
	FieldLocation
	FieldOrigin
	FieldRange
	FieldReferer
	FieldRetryAfter
	FieldServer
	FieldTrailer
	FieldUserAgent
	FieldVary
	FieldVia
	FieldWWWAuthenticate
	FieldXForwardedFor
	FieldXForwardedProto
	fieldCount
)

var canonicalNames = [fieldCount]string{
	FieldOther:             "",
	FieldHost:              "host",
	FieldContentLength:     "content-length",
	FieldTransferEncoding:  "transfer-encoding",
	FieldConnection:        "connection",
	FieldUpgrade:           "upgrade",
	FieldSetCookie:         "set-cookie",
	FieldCookie:            "cookie",
	FieldContentEncoding:   "content-encoding",
	FieldContentType:       "content-type",
	FieldExpect:            "expect",
	FieldAccept:            "accept",
	FieldAcceptEncoding:    "accept-encoding",
	FieldAcceptLanguage:    "accept-language",
	FieldAuthorization:     "authorization",
	FieldCacheControl:      "cache-control",
	FieldDate:              "date",
	FieldETag:              "etag",
	FieldIfMatch:           "if-match",
	FieldIfModifiedSince:   "if-modified-since",
	FieldIfNoneMatch:       "if-none-match",
	FieldIfRange:           "if-range",
	FieldIfUnmodifiedSince: "if-unmodified-since",
	FieldLastModified:      "last-modified",
	FieldLocation:          "location",
	FieldOrigin:            "origin",
	FieldRange:             "range",
	FieldReferer:           "referer",
	FieldRetryAfter:        "retry-after",
	FieldServer:            "server",
	FieldTrailer:           "trailer",
	FieldUserAgent:         "user-agent",
	FieldVary:              "vary",
	FieldVia:               "via",
	FieldWWWAuthenticate:   "www-authenticate",
	FieldXForwardedFor:     "x-forwarded-for",
	FieldXForwardedProto:   "x-forwarded-proto",
}

// fieldByHash maps an xxhash of the lowercase canonical name to its FieldID,
// giving O(1) average lookup by name. xxhash is the hash packetd already
// uses for its own connection/stream keys; reusing it here keeps the
// table's hash grounded in a pack dependency instead of a bespoke FNV loop.
var fieldByHash = make(map[uint64]FieldID, fieldCount)

func init() {
	for id := FieldID(1); id < fieldCount; id++ {
		fieldByHash[hashName(canonicalNames[id])] = id
	}
}

func hashName(lower string) uint64 {
	return xxhash.Sum64String(lower)
}

// CanonicalName returns the canonical (lowercase) name for a known field
// id, or "" for FieldOther.
func (id FieldID) CanonicalName() string {
	if id < fieldCount {
		return canonicalNames[id]
	}
	return ""
}

// LookupFieldID returns the FieldID for a field name, matched
// case-insensitively, or FieldOther if the name is not in the known-field
// table.
func LookupFieldID(name []byte) FieldID {
	if len(name) == 0 || len(name) > 64 {
		return FieldOther
	}
	var lowerBuf [64]byte
	lower := lowerBuf[:len(name)]
	for i, b := range name {
		if b >= 'A' && b <= 'Z' {
			b |= 0x20
		}
		lower[i] = b
	}
	h := xxhash.Sum64(lower)
	id, ok := fieldByHash[h]
	if !ok {
		return FieldOther
	}
	// Hash collision guard: confirm the canonical name actually matches.
	if !rfc7230.EqualFold([]byte(canonicalNames[id]), lower) {
		return FieldOther
	}
	return id
}
