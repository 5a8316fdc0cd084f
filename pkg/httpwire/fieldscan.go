package httpwire

import (
	"bytes"

	"github.com/shapestone/shape-httpwire/internal/rfc7230"
	"github.com/shapestone/shape-httpwire/pkg/wireerr"
)

// rawField is one not-yet-indexed field line, with obs-fold already
// collapsed to single spaces.
type rawField struct {
	name  []byte
	value []byte
}

// fieldScanner incrementally consumes a field block (the header's field
// list, or a chunked body's trailer-part) terminated by a blank line,
// pausing with needMore whenever the committed bytes don't yet contain a
// complete logical field line (accounting for possible obs-fold
// continuations). It is driven field-at-a-time so Parse() never rescans
// bytes it has already committed to the header/trailer index.
type fieldScanner struct {
	fields  []rawField
	byteLen int // bytes of input consumed so far, including the blank-line CRLF once done
	done    bool
}

// scanStep attempts to consume exactly one more logical field line (or the
// terminating blank line) from data[scanner.byteLen:]. It returns needMore
// if data doesn't yet contain a complete line (or enough lookahead to rule
// out an obs-fold continuation).
func (fs *fieldScanner) scanStep(data []byte, maxSize int) (needMore bool, err error) {
	pos := fs.byteLen
	rest := data[pos:]

	// Blank line => end of field block.
	if len(rest) >= 1 && rest[0] == '\n' {
		fs.byteLen = pos + 1
		fs.done = true
		return false, nil
	}
	if len(rest) >= 2 && rest[0] == '\r' && rest[1] == '\n' {
		fs.byteLen = pos + 2
		fs.done = true
		return false, nil
	}
	if len(rest) == 1 && rest[0] == '\r' {
		return true, nil
	}
	if len(rest) == 0 {
		return true, nil
	}

	// obs-fold (a line starting with SP/HTAB) is only meaningful as a
	// continuation of the field line before it; one at the start of the
	// field block, with no preceding field to fold onto, is malformed.
	if len(fs.fields) == 0 && (rest[0] == ' ' || rest[0] == '\t') {
		return false, wireerr.New(wireerr.KindGrammar, "parser.header", wireerr.CodeBadObsFold)
	}

	lineEnd := findCRLF(rest)
	if lineEnd == nil {
		if maxSize > 0 && pos > maxSize {
			return false, wireerr.New(wireerr.KindLimit, "parser.header", wireerr.CodeHeaderLimit)
		}
		return true, nil
	}
	line := rest[:lineEnd.start]
	advance := lineEnd.end

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return false, wireerr.New(wireerr.KindGrammar, "parser.header", wireerr.CodeBadField)
	}
	name := line[:colon]
	if name[len(name)-1] == ' ' || name[len(name)-1] == '\t' {
		return false, wireerr.New(wireerr.KindGrammar, "parser.header", wireerr.CodeBadField)
	}
	for i := 0; i < len(name); i++ {
		if !rfc7230.IsTChar(name[i]) {
			return false, wireerr.New(wireerr.KindGrammar, "parser.header", wireerr.CodeBadField)
		}
	}
	value := trimOWS(line[colon+1:])

	// Look ahead for obs-fold continuation lines: CRLF followed by SP/HTAB.
	valueCopy := append([]byte(nil), value...)
	for {
		afterLine := pos + advance
		if afterLine >= len(data) {
			// Could be a fold continuation we haven't seen yet; since we
			// can't tell, and committing now would be wrong if a fold
			// follows, wait for more bytes.
			return true, nil
		}
		b := data[afterLine]
		if b != ' ' && b != '\t' {
			break
		}
		contRest := data[afterLine:]
		contEnd := findCRLF(contRest)
		if contEnd == nil {
			if maxSize > 0 && afterLine > maxSize {
				return false, wireerr.New(wireerr.KindLimit, "parser.header", wireerr.CodeHeaderLimit)
			}
			return true, nil
		}
		cont := bytes.TrimLeft(contRest[:contEnd.start], " \t")
		valueCopy = append(valueCopy, ' ')
		valueCopy = append(valueCopy, cont...)
		advance += contEnd.end
	}

	fs.fields = append(fs.fields, rawField{name: append([]byte(nil), name...), value: valueCopy})
	fs.byteLen = pos + advance
	if maxSize > 0 && fs.byteLen > maxSize {
		return false, wireerr.New(wireerr.KindLimit, "parser.header", wireerr.CodeHeaderLimit)
	}
	return false, nil
}

// run drives scanStep until the block is complete, bytes run out, or an
// error occurs. maxFields bounds the field count (0 = unbounded).
func (fs *fieldScanner) run(data []byte, maxSize, maxFields int) (needMore bool, err error) {
	for !fs.done {
		if maxFields > 0 && len(fs.fields) > maxFields {
			return false, wireerr.New(wireerr.KindLimit, "parser.header", wireerr.CodeHeaderLimit)
		}
		more, err := fs.scanStep(data, maxSize)
		if err != nil {
			return false, err
		}
		if more {
			return true, nil
		}
	}
	return false, nil
}

type crlfSpan struct {
	start int // index of \r (or \n if bare) relative to the searched slice
	end   int // index just past the terminator
}

func findCRLF(b []byte) *crlfSpanOrNil {
	i := bytes.IndexAny(b, "\r\n")
	if i < 0 {
		return nil
	}
	if b[i] == '\n' {
		return &crlfSpanOrNil{start: i, end: i + 1}
	}
	if i+1 < len(b) && b[i+1] == '\n' {
		return &crlfSpanOrNil{start: i, end: i + 2}
	}
	return nil
}

// crlfSpanOrNil exists only so findCRLF can return nil to mean "no complete
// terminator yet" while still reporting start/end when it finds one.
type crlfSpanOrNil = crlfSpan

func trimOWS(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && rfc7230.IsOWS(b[i]) {
		i++
	}
	for j > i && rfc7230.IsOWS(b[j-1]) {
		j--
	}
	return b[i:j]
}
