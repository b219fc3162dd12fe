package filetype

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestMatch(t *testing.T) {
	assert.Equal(t, DefaultType, Match(nil))
	assert.Equal(t, DefaultType, Match([]byte("plain text")))
	assert.Equal(t, "application/pdf", Match([]byte("%PDF-1.4\n")))
	assert.Equal(t, "image/png", Match(pngHeader))
}

func TestGuess(t *testing.T) {
	assert.Equal(t, "image/png", Guess("no-extension", pngHeader))
	assert.Equal(t, "image/png", Guess("wrong.pdf", pngHeader))
	assert.Equal(t, "application/pdf", Guess("doc.pdf", []byte("not really a pdf")))
	assert.Equal(t, DefaultType, Guess("unknown.zzz-unknown", []byte("data")))
	assert.Equal(t, DefaultType, Guess("", nil))
}

func TestByExtension(t *testing.T) {
	assert.Equal(t, "text/html", ByExtension(".html"))
	assert.Equal(t, "", ByExtension(".zzz-unknown"))
}

func TestFromReader(t *testing.T) {
	content := string(pngHeader) + strings.Repeat("x", 2*SniffLen)
	mimetype, r := FromReader("image", strings.NewReader(content))
	assert.Equal(t, "image/png", mimetype)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	failure := errors.New("broken pipe")
	mimetype, r = FromReader("image", io.MultiReader(strings.NewReader("abc"), errReader{failure}))
	assert.Equal(t, DefaultType, mimetype)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, failure)
}
