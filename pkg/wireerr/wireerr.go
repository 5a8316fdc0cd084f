// Package wireerr defines the error taxonomy shared by the parser, the
// serializer, and the header model: a closed set of recoverability Kinds
// plus a thin *Error wrapper, in the spirit of shape-http's ParseError.
// Kind tells a caller whether it can keep driving the state machine
// (KindNeedMore) or must discard it (everything else).
package wireerr

import "fmt"

// Kind classifies why an operation failed and whether the caller can
// recover without discarding the parser/serializer.
type Kind int

const (
	// KindNeedMore is not really an error: not enough bytes are buffered
	// yet to make progress. Callers check for it by comparing Kind (see
	// HasKind).
	KindNeedMore Kind = iota
	// KindGrammar is a malformed start-line, field, chunk header, or version.
	KindGrammar
	// KindSemantic is conflicting framing or an out-of-range numeric field.
	KindSemantic
	// KindLimit is a configured header/field/body cap exceeded.
	KindLimit
	// KindFilter is a downstream content-coding filter failure.
	KindFilter
	// KindProtocolMismatch is a body present where forbidden, or an
	// end-of-stream before the body finished.
	KindProtocolMismatch
	// KindArgument is a caller precondition violation (programmer error).
	KindArgument
)

func (k Kind) String() string {
	switch k {
	case KindNeedMore:
		return "need-more"
	case KindGrammar:
		return "grammar"
	case KindSemantic:
		return "semantic"
	case KindLimit:
		return "limit"
	case KindFilter:
		return "filter"
	case KindProtocolMismatch:
		return "protocol-mismatch"
	case KindArgument:
		return "argument"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by this module's packages.
// Op names the failing operation (e.g. "header.Append", "parser.parse").
type Error struct {
	Kind Kind
	Op   string
	Code string // stable machine-readable reason, e.g. "bad_chunk_extension"
	Err  error  // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("httpwire: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("httpwire: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, wireerr.KindSemantic) style checks awkward since
// Kind isn't an error; instead callers use HasKind(err, KindX).
func HasKind(err error, k Kind) bool {
	we, ok := err.(*Error)
	return ok && we.Kind == k
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, op, code string) *Error {
	return &Error{Kind: kind, Op: op, Code: code}
}

// Wrap builds an *Error around an existing error.
func Wrap(kind Kind, op, code string, err error) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Err: err}
}

// Named codes identifying specific failure reasons. Kept as constants so
// callers can switch on Code without string literals scattered through the
// codebase.
const (
	CodeNeedMore             = "need_more"
	CodeBadRequestLine       = "bad_request_line"
	CodeBadStatusLine        = "bad_status_line"
	CodeBadVersion           = "bad_version"
	CodeBadField             = "bad_field"
	CodeBadChunk             = "bad_chunk"
	CodeBadChunkExtension    = "bad_chunk_extension"
	CodeBodyLimit            = "body_limit"
	CodeHeaderLimit          = "header_limit"
	CodeBadObsFold           = "bad_obs_fold"
	CodeBadContentLength     = "bad_content_length"
	CodeBadTransferEncoding  = "bad_transfer_encoding"
	CodeUnexpectedBody       = "unexpected_body"
	CodeEndOfStream          = "end_of_stream"
	CodeBadFilter            = "bad_filter"
	CodeBodyTooLong          = "body_too_long"
	CodeBodyTooShort         = "body_too_short"
	CodeLengthError          = "length_error"
	CodeInvalidArgument      = "invalid_argument"
	CodeCommitBeyondPrepared = "commit_beyond_prepared"
)
