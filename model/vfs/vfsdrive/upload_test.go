package vfsdrive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		header   string
		expected int64
		invalid  bool
	}{
		{"", 0, false},
		{"bytes=0-0", 1, false},
		{"bytes=0-262143", 262144, false},
		{"0-42", 0, true},
		{"bytes=12", 0, true},
		{"bytes=0-x", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			n, err := parseRange(tt.header)
			if tt.invalid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestUploadState(t *testing.T) {
	const size = 4
	state := &uploadState{buf: make([]byte, 0, size+1)}
	r := bytes.NewReader([]byte("0123456789"))

	require.NoError(t, state.fill(r, size))
	data, header := state.chunk(size)
	assert.Equal(t, []byte("0123"), data)
	assert.Equal(t, "bytes 0-3/*", header)

	// Only a part of the chunk has been received
	require.NoError(t, state.advance(2))
	require.NoError(t, state.fill(r, size))
	data, header = state.chunk(size)
	assert.Equal(t, []byte("2345"), data)
	assert.Equal(t, "bytes 2-5/*", header)

	require.NoError(t, state.advance(6))
	require.NoError(t, state.fill(r, size))
	data, header = state.chunk(size)
	assert.Equal(t, []byte("6789"), data)
	assert.Equal(t, "bytes 6-9/10", header)

	assert.Error(t, state.advance(5))
	assert.Error(t, state.advance(11))

	empty := &uploadState{buf: make([]byte, 0, size+1)}
	require.NoError(t, empty.fill(bytes.NewReader(nil), size))
	data, header = empty.chunk(size)
	assert.Empty(t, data)
	assert.Equal(t, "bytes */0", header)
}
