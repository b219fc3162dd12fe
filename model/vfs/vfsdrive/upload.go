package vfsdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vsalavatov/multifs/pkg/filetype"
	"github.com/vsalavatov/multifs/pkg/metrics"
	"github.com/vsalavatov/multifs/pkg/utils"
)

// chunkGranularity is the unit of the chunk sizes accepted by the resumable
// uploads.
const chunkGranularity = 256 << 10

// MaxUploadAttempts is the number of times a chunk is sent when the server
// answers 503.
const MaxUploadAttempts = 4

// statusResumeIncomplete is the status code used by the server to tell that
// a chunk has been received, and possibly only a part of it.
const statusResumeIncomplete = 308

// ErrUploadRetries is returned when a chunk of a resumable upload has been
// rejected with 503 too many times.
var ErrUploadRetries = errors.New("drive: too many attempts to upload a chunk")

// uploadState is the state of a resumable upload between two chunks.
type uploadState struct {
	session string
	// offset is the number of bytes confirmed by the server.
	offset int64
	// attempts is the number of times the current chunk has been rejected
	// with 503.
	attempts int
	// buf holds the bytes read from the input that are not yet confirmed.
	// buf[0] is the byte at offset.
	buf []byte
	eof bool
}

// fill reads from r until buf holds one byte more than a chunk, to know if
// the next chunk is the last one, or until the end of r.
func (s *uploadState) fill(r io.Reader, chunkSize int64) error {
	want := int(chunkSize) + 1
	for !s.eof && len(s.buf) < want {
		n, err := r.Read(s.buf[len(s.buf):want])
		s.buf = s.buf[:len(s.buf)+n]
		if errors.Is(err, io.EOF) {
			s.eof = true
		} else if err != nil {
			return err
		}
	}
	return nil
}

// chunk returns the next chunk to send, and the Content-Range header for it.
func (s *uploadState) chunk(chunkSize int64) ([]byte, string) {
	data := s.buf
	last := s.eof && int64(len(data)) <= chunkSize
	if !last {
		data = data[:chunkSize]
	}
	total := "*"
	if last {
		total = strconv.FormatInt(s.offset+int64(len(data)), 10)
	}
	if len(data) == 0 {
		return data, "bytes */" + total
	}
	return data, fmt.Sprintf("bytes %d-%d/%s", s.offset, s.offset+int64(len(data))-1, total)
}

// advance drops the bytes confirmed by the server.
func (s *uploadState) advance(confirmed int64) error {
	n := confirmed - s.offset
	if n < 0 || n > int64(len(s.buf)) {
		return fmt.Errorf("drive: the server has confirmed %d bytes, expected between %d and %d",
			confirmed, s.offset, s.offset+int64(len(s.buf)))
	}
	rest := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
	s.offset = confirmed
	s.attempts = 0
	return nil
}

// Upload replaces the content of a file with what is read from r, with the
// resumable upload protocol. The content is sent in chunks. The cancellation
// of ctx is checked between two chunks: a chunk being sent is always
// completed. The upload is reported as successful only when the server has
// confirmed the whole content.
func (a *API) Upload(ctx context.Context, id string, r io.Reader) error {
	chunkSize := a.opts.ChunkSize
	state := &uploadState{buf: make([]byte, 0, chunkSize+1)}
	if err := state.fill(r, chunkSize); err != nil {
		return err
	}

	session, err := a.startSession(ctx, id, filetype.Match(state.buf))
	if err != nil {
		return err
	}
	state.session = session

	for {
		if err := ctx.Err(); err != nil {
			a.log.Infof("Resumable upload of %s canceled at offset %d", id, state.offset)
			return err
		}
		if err := state.fill(r, chunkSize); err != nil {
			return err
		}
		done, err := a.sendChunk(ctx, state, chunkSize)
		if err != nil || done {
			return err
		}
	}
}

// startSession asks for a resumable upload session and returns its URL.
func (a *API) startSession(ctx context.Context, id, mimeType string) (string, error) {
	headers := map[string]string{
		"Content-Type":          "application/json; charset=UTF-8",
		"X-Upload-Content-Type": mimeType,
	}
	res, err := a.req(ctx, http.MethodPatch, uploadPath(id), uploadOptions{UploadType: "resumable"}, headers, strings.NewReader("{}"))
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", newAPIError("upload", res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	session := res.Header.Get("Location")
	if session == "" {
		return "", &APIError{Op: "upload", StatusCode: res.StatusCode, Body: "no session URL"}
	}
	return session, nil
}

// sendChunk sends the next chunk and updates the state with the answer. It
// returns true when the upload is complete.
func (a *API) sendChunk(ctx context.Context, state *uploadState, chunkSize int64) (bool, error) {
	data, contentRange := state.chunk(chunkSize)
	headers := map[string]string{"Content-Range": contentRange}
	res, err := a.do(context.WithoutCancel(ctx), http.MethodPut, state.session, headers, bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated:
		_, _ = io.Copy(io.Discard, res.Body)
		if state.eof && int64(len(state.buf)) == int64(len(data)) {
			return true, nil
		}
		return false, &APIError{Op: "upload", StatusCode: res.StatusCode, Body: "upload completed before the end of the content"}
	case statusResumeIncomplete:
		_, _ = io.Copy(io.Discard, res.Body)
		confirmed, err := parseRange(res.Header.Get("Range"))
		if err != nil {
			return false, err
		}
		if confirmed < state.offset+int64(len(data)) {
			a.log.Infof("Chunk partially received, resuming at %d instead of %d", confirmed, state.offset+int64(len(data)))
			metrics.UploadRetries.WithLabelValues("partial").Inc()
		}
		return false, state.advance(confirmed)
	case http.StatusServiceUnavailable:
		_, _ = io.Copy(io.Discard, res.Body)
		state.attempts++
		if state.attempts >= MaxUploadAttempts {
			a.log.Warnf("Chunk at offset %d rejected %d times, giving up", state.offset, state.attempts)
			return false, fmt.Errorf("%w: %s", ErrUploadRetries, contentRange)
		}
		metrics.UploadRetries.WithLabelValues("unavailable").Inc()
		a.log.Warnf("Chunk at offset %d rejected with 503, retrying (attempt %d)", state.offset, state.attempts+1)
		return false, utils.Sleep(ctx, a.opts.RetryDelay)
	default:
		return false, newAPIError("upload", res)
	}
}

// parseRange returns the number of bytes received by the server from the
// Range header of a 308 response, like "bytes=0-42". No header means that
// nothing has been received.
func parseRange(header string) (int64, error) {
	if header == "" {
		return 0, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, fmt.Errorf("drive: invalid Range header %q", header)
	}
	_, end, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, fmt.Errorf("drive: invalid Range header %q", header)
	}
	last, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("drive: invalid Range header %q", header)
	}
	return last + 1, nil
}
