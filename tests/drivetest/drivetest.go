// Package drivetest is an in-memory implementation of the subset of the
// Google Drive API used by multifs, for the tests.
package drivetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
)

// Token is the access token accepted by a new server.
const Token = "drivetest-token"

const folderMimeType = "application/vnd.google-apps.folder"

var parentsQuery = regexp.MustCompile(`^'([^']+)' in parents and trashed = false$`)

var contentRange = regexp.MustCompile(`^bytes (?:(\d+)-(\d+)|\*)/(\d+|\*)$`)

type node struct {
	id       string
	seq      int
	name     string
	mimeType string
	parents  []string
	data     []byte
}

type resource struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	MimeType    string   `json:"mimeType"`
	Parents     []string `json:"parents"`
	Size        int64    `json:"size,string,omitempty"`
	MD5Checksum string   `json:"md5Checksum,omitempty"`
}

type session struct {
	fileID   string
	mimeType string
	data     []byte
}

// Server is a fake Drive server.
type Server struct {
	*httptest.Server

	// RootID is the real id of the root folder, also reachable with the
	// "root" alias.
	RootID string

	mu            sync.Mutex
	seq           int
	nodes         map[string]*node
	sessions      map[string]*session
	token         string
	pageSize      int
	failChunks    int
	partialChunks int
	partialKeep   int64
	chunks        int
	retried       int
	unauthorized  int
}

// NewServer starts a fake Drive server, closed at the end of the test.
func NewServer(t testing.TB) *Server {
	s := &Server{
		RootID:   "0A" + strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", ""),
		nodes:    make(map[string]*node),
		sessions: make(map[string]*session),
		token:    Token,
	}
	s.nodes[s.RootID] = &node{id: s.RootID, name: "My Drive", mimeType: folderMimeType}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.checkToken)
	e.GET("/drive/v3/files", s.list)
	e.POST("/drive/v3/files", s.create)
	e.GET("/drive/v3/files/:id", s.get)
	e.PATCH("/drive/v3/files/:id", s.update)
	e.DELETE("/drive/v3/files/:id", s.delete)
	e.POST("/drive/v3/files/:id/copy", s.copy)
	e.PATCH("/upload/drive/v3/files/:id", s.upload)
	e.PUT("/upload/sessions/:session", s.uploadChunk)

	s.Server = httptest.NewServer(e)
	t.Cleanup(s.Close)
	return s
}

// SetToken changes the access token accepted by the server. The requests
// with another token are rejected with 401.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// SetPageSize limits the number of entries of each page of the listings.
func (s *Server) SetPageSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = size
}

// FailChunks makes the server answer 503 to the next n chunks of resumable
// uploads.
func (s *Server) FailChunks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failChunks = n
}

// PartialChunks makes the server keep only the first keep bytes of the next
// n chunks of resumable uploads.
func (s *Server) PartialChunks(n int, keep int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partialChunks = n
	s.partialKeep = keep
}

// Stats are counters of the requests received by the server.
type Stats struct {
	// Chunks is the number of chunks of resumable uploads received.
	Chunks int
	// Rejected is the number of chunks answered with 503.
	Rejected int
	// Unauthorized is the number of requests answered with 401.
	Unauthorized int
}

// Stats returns the counters of the server.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Chunks: s.chunks, Rejected: s.retried, Unauthorized: s.unauthorized}
}

// Content returns the content of a file.
func (s *Server) Content(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[s.resolve(id)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Put creates a node without any check, like the real API which accepts
// several nodes with the same name in a folder. It returns the id of the
// new node.
func (s *Server) Put(parentID, name string, folder bool, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	mimeType := "application/octet-stream"
	if folder {
		mimeType = folderMimeType
	}
	return s.add(s.resolve(parentID), name, mimeType, data).id
}

func (s *Server) resolve(id string) string {
	if id == "root" {
		return s.RootID
	}
	return id
}

func (s *Server) add(parentID, name, mimeType string, data []byte) *node {
	s.seq++
	n := &node{
		id:       strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", ""),
		seq:      s.seq,
		name:     name,
		mimeType: mimeType,
		parents:  []string{parentID},
		data:     data,
	}
	s.nodes[n.id] = n
	return n
}

func (s *Server) isFolder(id string) bool {
	n, ok := s.nodes[id]
	return ok && n.mimeType == folderMimeType
}

func toResource(n *node) *resource {
	r := &resource{ID: n.id, Name: n.name, MimeType: n.mimeType, Parents: n.parents}
	if n.mimeType != folderMimeType {
		r.Size = int64(len(n.data))
	}
	return r
}

func apiError(c echo.Context, code int, format string, args ...interface{}) error {
	return c.JSON(code, echo.Map{
		"error": echo.Map{"code": code, "message": fmt.Sprintf(format, args...)},
	})
}

func (s *Server) checkToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		expected := "Bearer " + s.token
		ok := c.Request().Header.Get(echo.HeaderAuthorization) == expected
		if !ok {
			s.unauthorized++
		}
		s.mu.Unlock()
		if !ok {
			return apiError(c, http.StatusUnauthorized, "Invalid Credentials")
		}
		return next(c)
	}
}

func (s *Server) list(c echo.Context) error {
	m := parentsQuery.FindStringSubmatch(c.QueryParam("q"))
	if m == nil {
		return apiError(c, http.StatusBadRequest, "Invalid query")
	}
	pageSize, err := strconv.Atoi(c.QueryParam("pageSize"))
	if err != nil || pageSize <= 0 || pageSize > 1000 {
		return apiError(c, http.StatusBadRequest, "Invalid pageSize")
	}
	offset := 0
	if token := c.QueryParam("pageToken"); token != "" {
		if offset, err = strconv.Atoi(token); err != nil {
			return apiError(c, http.StatusBadRequest, "Invalid pageToken")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageSize > 0 && s.pageSize < pageSize {
		pageSize = s.pageSize
	}
	parentID := s.resolve(m[1])
	var children []*node
	for _, n := range s.nodes {
		for _, p := range n.parents {
			if p == parentID {
				children = append(children, n)
				break
			}
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].seq < children[j].seq })

	files := []*resource{}
	for i := offset; i < len(children) && i < offset+pageSize; i++ {
		files = append(files, toResource(children[i]))
	}
	res := echo.Map{"files": files}
	if offset+pageSize < len(children) {
		res["nextPageToken"] = strconv.Itoa(offset + pageSize)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) create(c echo.Context) error {
	var in resource
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
		return apiError(c, http.StatusBadRequest, "Invalid body: %s", err)
	}
	if in.Name == "" || len(in.Parents) != 1 {
		return apiError(c, http.StatusBadRequest, "A name and a parent are required")
	}
	if in.MimeType == "" {
		in.MimeType = "application/octet-stream"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	parentID := s.resolve(in.Parents[0])
	if !s.isFolder(parentID) {
		return apiError(c, http.StatusNotFound, "File not found: %s", in.Parents[0])
	}
	n := s.add(parentID, in.Name, in.MimeType, nil)
	return c.JSON(http.StatusOK, toResource(n))
}

func (s *Server) get(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[s.resolve(c.Param("id"))]
	if !ok {
		return apiError(c, http.StatusNotFound, "File not found: %s", c.Param("id"))
	}
	if c.QueryParam("alt") == "media" {
		if n.mimeType == folderMimeType {
			return apiError(c, http.StatusForbidden, "Only files with binary content can be downloaded")
		}
		return c.Blob(http.StatusOK, n.mimeType, append([]byte(nil), n.data...))
	}
	return c.JSON(http.StatusOK, toResource(n))
}

func (s *Server) update(c echo.Context) error {
	var in resource
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil && err != io.EOF {
		return apiError(c, http.StatusBadRequest, "Invalid body: %s", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[s.resolve(c.Param("id"))]
	if !ok || n.id == s.RootID {
		return apiError(c, http.StatusNotFound, "File not found: %s", c.Param("id"))
	}
	if add := c.QueryParam("addParents"); add != "" {
		add = s.resolve(add)
		if !s.isFolder(add) {
			return apiError(c, http.StatusNotFound, "File not found: %s", add)
		}
		remove := s.resolve(c.QueryParam("removeParents"))
		parents := []string{add}
		for _, p := range n.parents {
			if p != remove && p != add {
				parents = append(parents, p)
			}
		}
		n.parents = parents
	}
	if in.Name != "" {
		n.name = in.Name
	}
	return c.JSON(http.StatusOK, toResource(n))
}

func (s *Server) delete(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.resolve(c.Param("id"))
	if _, ok := s.nodes[id]; !ok || id == s.RootID {
		return apiError(c, http.StatusNotFound, "File not found: %s", c.Param("id"))
	}
	s.deleteTree(id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteTree(id string) {
	delete(s.nodes, id)
	for childID, n := range s.nodes {
		for _, p := range n.parents {
			if p == id {
				s.deleteTree(childID)
				break
			}
		}
	}
}

func (s *Server) copy(c echo.Context) error {
	var in resource
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil && err != io.EOF {
		return apiError(c, http.StatusBadRequest, "Invalid body: %s", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.nodes[s.resolve(c.Param("id"))]
	if !ok {
		return apiError(c, http.StatusNotFound, "File not found: %s", c.Param("id"))
	}
	if src.mimeType == folderMimeType {
		return apiError(c, http.StatusForbidden, "Folders cannot be copied")
	}
	parentID := src.parents[0]
	if len(in.Parents) > 0 {
		parentID = s.resolve(in.Parents[0])
	}
	if !s.isFolder(parentID) {
		return apiError(c, http.StatusNotFound, "File not found: %s", parentID)
	}
	name := in.Name
	if name == "" {
		name = "Copy of " + src.name
	}
	n := s.add(parentID, name, src.mimeType, append([]byte(nil), src.data...))
	return c.JSON(http.StatusOK, toResource(n))
}

func (s *Server) upload(c echo.Context) error {
	s.mu.Lock()
	n, ok := s.nodes[s.resolve(c.Param("id"))]
	s.mu.Unlock()
	if !ok || n.mimeType == folderMimeType {
		return apiError(c, http.StatusNotFound, "File not found: %s", c.Param("id"))
	}

	switch c.QueryParam("uploadType") {
	case "media":
		data, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return apiError(c, http.StatusBadRequest, "Cannot read the body: %s", err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.nodes[n.id]; !ok {
			return apiError(c, http.StatusNotFound, "File not found: %s", n.id)
		}
		n.data = data
		n.mimeType = c.Request().Header.Get(echo.HeaderContentType)
		return c.JSON(http.StatusOK, toResource(n))
	case "resumable":
		sid := uuid.Must(uuid.NewV4()).String()
		s.mu.Lock()
		s.sessions[sid] = &session{fileID: n.id, mimeType: c.Request().Header.Get("X-Upload-Content-Type")}
		s.mu.Unlock()
		c.Response().Header().Set(echo.HeaderLocation, s.URL+"/upload/sessions/"+sid)
		return c.JSON(http.StatusOK, echo.Map{})
	default:
		return apiError(c, http.StatusBadRequest, "Invalid uploadType")
	}
}

func (s *Server) uploadChunk(c echo.Context) error {
	m := contentRange.FindStringSubmatch(c.Request().Header.Get("Content-Range"))
	if m == nil {
		return apiError(c, http.StatusBadRequest, "Invalid Content-Range")
	}
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apiError(c, http.StatusBadRequest, "Cannot read the body: %s", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[c.Param("session")]
	if !ok {
		return apiError(c, http.StatusNotFound, "Unknown upload session")
	}
	s.chunks++
	if s.failChunks > 0 {
		s.failChunks--
		s.retried++
		return apiError(c, http.StatusServiceUnavailable, "Service unavailable")
	}

	if m[1] != "" {
		start, _ := strconv.ParseInt(m[1], 10, 64)
		end, _ := strconv.ParseInt(m[2], 10, 64)
		if start != int64(len(sess.data)) || end-start+1 != int64(len(data)) {
			return apiError(c, http.StatusBadRequest, "Unexpected range %d-%d", start, end)
		}
		if s.partialChunks > 0 && s.partialKeep < int64(len(data)) {
			s.partialChunks--
			data = data[:s.partialKeep]
		}
		sess.data = append(sess.data, data...)
	}

	if m[3] != "*" {
		total, _ := strconv.ParseInt(m[3], 10, 64)
		if int64(len(sess.data)) == total {
			n, ok := s.nodes[sess.fileID]
			if !ok {
				return apiError(c, http.StatusNotFound, "File not found: %s", sess.fileID)
			}
			n.data = sess.data
			n.mimeType = sess.mimeType
			delete(s.sessions, c.Param("session"))
			return c.JSON(http.StatusOK, toResource(n))
		}
	}
	if len(sess.data) > 0 {
		c.Response().Header().Set("Range", fmt.Sprintf("bytes=0-%d", len(sess.data)-1))
	}
	return c.NoContent(http.StatusPermanentRedirect)
}
