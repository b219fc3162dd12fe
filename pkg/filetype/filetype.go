// Package filetype guesses the content type of the files, from their first
// bytes or from the extension of their name.
package filetype

import (
	"bytes"
	"io"
	"mime"
	"path"
	"strings"

	ftype "github.com/h2non/filetype"
)

// DefaultType is the type used when we can't know/guess the filetype.
const DefaultType = "application/octet-stream"

// SniffLen is the number of bytes read from the beginning of a content to
// guess its type.
const SniffLen = 512

// ByExtension calls mime.TypeByExtension, and removes optional parameters, to
// keep only the type and subtype.
// Example: text/html
func ByExtension(ext string) string {
	mimeParts := strings.SplitN(mime.TypeByExtension(ext), ";", 2)
	return strings.TrimSpace(mimeParts[0])
}

// Match returns the mime-type (no charset) if it can guess from the first
// bytes, or the default content-type else.
func Match(buf []byte) string {
	kind, err := ftype.Match(buf)
	if err != nil || kind == ftype.Unknown {
		return DefaultType
	}
	return kind.MIME.Value
}

// Guess returns the type matched from the first bytes of the content, and
// falls back on the extension of the name when they are not recognized.
func Guess(name string, head []byte) string {
	if mimetype := Match(head); mimetype != DefaultType {
		return mimetype
	}
	if mimetype := ByExtension(path.Ext(name)); mimetype != "" {
		return mimetype
	}
	return DefaultType
}

// FromReader takes a reader, sniffs the beginning of it, and returns the
// mime-type (no charset) and a new reader that's the concatenation of the
// bytes sniffed and the remaining reader.
func FromReader(name string, r io.Reader) (string, io.Reader) {
	var buf bytes.Buffer
	_, err := io.Copy(&buf, io.LimitReader(r, SniffLen))
	if err != nil {
		return DefaultType, io.MultiReader(&buf, errReader{err})
	}
	return Guess(name, buf.Bytes()), io.MultiReader(&buf, r)
}

// errReader is an io.Reader which just returns err.
type errReader struct{ err error }

func (er errReader) Read([]byte) (int, error) { return 0, er.err }
