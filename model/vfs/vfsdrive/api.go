package vfsdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	build "github.com/vsalavatov/multifs/pkg/config"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/pkg/filetype"
	"github.com/vsalavatov/multifs/pkg/googleauth"
	"github.com/vsalavatov/multifs/pkg/logger"
	"github.com/vsalavatov/multifs/pkg/metrics"
)

// FolderMimeType is the MIME type of the folders in Google Drive.
const FolderMimeType = "application/vnd.google-apps.folder"

// DefaultMimeType is the MIME type used for the files when nothing better is
// known.
const DefaultMimeType = filetype.DefaultType

// RootID is the alias of the root folder of the drive.
const RootID = "root"

// PageSize is the number of entries asked for each page of a listing. It is
// the maximum accepted by the API.
const PageSize = 1000

const resourceFields = "id, name, mimeType, parents, size, md5Checksum"

// Resource is a file or a folder as described by the Drive API.
type Resource struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	MimeType    string   `json:"mimeType,omitempty"`
	Parents     []string `json:"parents,omitempty"`
	Size        int64    `json:"size,string,omitempty"`
	MD5Checksum string   `json:"md5Checksum,omitempty"`
}

// IsFolder returns true if the resource is a folder.
func (r *Resource) IsFolder() bool {
	return r.MimeType == FolderMimeType
}

type fileList struct {
	NextPageToken string     `json:"nextPageToken"`
	Files         []Resource `json:"files"`
}

type listOptions struct {
	Q         string `url:"q"`
	PageSize  int    `url:"pageSize"`
	PageToken string `url:"pageToken,omitempty"`
	Fields    string `url:"fields"`
}

type getOptions struct {
	Alt    string `url:"alt,omitempty"`
	Fields string `url:"fields,omitempty"`
}

type updateOptions struct {
	AddParents    string `url:"addParents,omitempty"`
	RemoveParents string `url:"removeParents,omitempty"`
	Fields        string `url:"fields"`
}

type uploadOptions struct {
	UploadType string `url:"uploadType"`
	Fields     string `url:"fields,omitempty"`
}

// APIError is returned when the Drive API answers with an unexpected status
// code.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("drive: %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("drive: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Options are the parameters of the Drive API client.
type Options struct {
	// BaseURL is the URL of the API, https://www.googleapis.com by default.
	BaseURL string
	// Requester gives the tokens for the bearer authorization.
	Requester googleauth.Requester
	// Transport is the underlying http transport. http.DefaultTransport is
	// used if nil.
	Transport http.RoundTripper
	// Files up to this size are uploaded in a single request. Larger files,
	// and the streams, use a resumable upload.
	SimpleUploadLimit int64
	// ChunkSize is the size of the chunks of the resumable uploads. It must
	// be a multiple of 256KiB.
	ChunkSize int64
	// RetryDelay is the delay before sending again a chunk after a 503.
	RetryDelay time.Duration
	// Timeout of the http requests.
	Timeout time.Duration
}

// OptionsFromConfig returns the options of the client from the Drive
// section of the configuration.
func OptionsFromConfig(cfg config.Drive, requester googleauth.Requester) Options {
	return Options{
		BaseURL:           cfg.BaseURL,
		Requester:         requester,
		SimpleUploadLimit: cfg.SimpleUploadLimit,
		ChunkSize:         cfg.ChunkSize,
		RetryDelay:        cfg.RetryDelay,
		Timeout:           cfg.Timeout,
	}
}

// API is a client for the subset of the Google Drive v3 REST API used by
// the backend. Files are identified by their opaque ids.
type API struct {
	base   *url.URL
	client *http.Client
	opts   Options
	log    *logger.Entry
}

// NewAPI returns a client of the Drive API.
func NewAPI(opts Options) (*API, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultDriveBaseURL
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("drive: invalid base URL: %w", err)
	}
	if opts.Requester == nil {
		return nil, fmt.Errorf("drive: no authorization requester")
	}
	if opts.SimpleUploadLimit <= 0 {
		opts.SimpleUploadLimit = config.DefaultSimpleUploadLimit
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = config.DefaultChunkSize
	}
	if opts.ChunkSize%chunkGranularity != 0 {
		return nil, fmt.Errorf("drive: the chunk size must be a multiple of %d", chunkGranularity)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	transport = promhttp.InstrumentRoundTripperDuration(metrics.RemoteRequestDurations, transport)
	return &API{
		base: base,
		client: &http.Client{
			Transport: newBearerTransport(transport, opts.Requester),
			Timeout:   opts.Timeout,
		},
		opts: opts,
		log:  logger.WithNamespace("vfsdrive"),
	}, nil
}

func (a *API) endpoint(pth string, params interface{}) (string, error) {
	u := *a.base
	u.Path += pth
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return "", err
		}
		u.RawQuery = v.Encode()
	}
	return u.String(), nil
}

func (a *API) req(ctx context.Context, method, pth string, params interface{}, headers map[string]string, body io.Reader) (*http.Response, error) {
	u, err := a.endpoint(pth, params)
	if err != nil {
		return nil, err
	}
	return a.do(ctx, method, u, headers, body)
}

func (a *API) do(ctx context.Context, method, u string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "multifs "+build.Version+" ("+runtime.Version()+")")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	a.log.Debugf("%s %s: %d", method, req.URL.Path, res.StatusCode)
	return res, nil
}

func (a *API) jsonReq(ctx context.Context, op, method, pth string, params, in, out interface{}) error {
	var body io.Reader
	var headers map[string]string
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
		headers = map[string]string{"Content-Type": "application/json; charset=UTF-8"}
	}
	res, err := a.req(ctx, method, pth, params, headers, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return newAPIError(op, res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// newAPIError reads the body of the response to build an APIError.
func newAPIError(op string, res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &APIError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(b))}
}

func filePath(id string) string {
	return "/drive/v3/files/" + url.PathEscape(id)
}

func uploadPath(id string) string {
	return "/upload/drive/v3/files/" + url.PathEscape(id)
}

// List returns the children of a folder, accumulated over all the pages.
func (a *API) List(ctx context.Context, folderID string) ([]Resource, error) {
	opts := listOptions{
		Q:        fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID)),
		PageSize: PageSize,
		Fields:   "nextPageToken, files(" + resourceFields + ")",
	}
	var all []Resource
	for {
		var page fileList
		if err := a.jsonReq(ctx, "list", http.MethodGet, "/drive/v3/files", opts, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Files...)
		if page.NextPageToken == "" {
			return all, nil
		}
		opts.PageToken = page.NextPageToken
	}
}

// Get returns the metadata of a file or folder.
func (a *API) Get(ctx context.Context, id string) (*Resource, error) {
	var res Resource
	err := a.jsonReq(ctx, "get", http.MethodGet, filePath(id), getOptions{Fields: resourceFields}, nil, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Create creates an empty file, or a folder if mimeType is FolderMimeType.
func (a *API) Create(ctx context.Context, name, parentID, mimeType string) (*Resource, error) {
	in := &Resource{Name: name, MimeType: mimeType, Parents: []string{parentID}}
	var res Resource
	err := a.jsonReq(ctx, "create", http.MethodPost, "/drive/v3/files", getOptions{Fields: resourceFields}, in, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Delete deletes a file, or a folder with all its descendants.
func (a *API) Delete(ctx context.Context, id string) error {
	return a.jsonReq(ctx, "delete", http.MethodDelete, filePath(id), nil, nil, nil)
}

// Copy makes a server-side copy of a file in the given folder.
func (a *API) Copy(ctx context.Context, id, name, parentID string) (*Resource, error) {
	in := &Resource{Name: name, Parents: []string{parentID}}
	var res Resource
	err := a.jsonReq(ctx, "copy", http.MethodPost, filePath(id)+"/copy", getOptions{Fields: resourceFields}, in, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Update renames a file and moves it from a parent to another. The parents
// are left untouched if they are the same.
func (a *API) Update(ctx context.Context, id, name, oldParentID, newParentID string) (*Resource, error) {
	opts := updateOptions{Fields: resourceFields}
	if oldParentID != newParentID {
		opts.AddParents = newParentID
		opts.RemoveParents = oldParentID
	}
	var res Resource
	err := a.jsonReq(ctx, "update", http.MethodPatch, filePath(id), opts, &Resource{Name: name}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Download returns the content of a file. The caller must close the reader.
func (a *API) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	res, err := a.req(ctx, http.MethodGet, filePath(id), getOptions{Alt: "media"}, nil, nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		return nil, newAPIError("download", res)
	}
	return res.Body, nil
}

// UploadSimple replaces the content of a file in a single request, and
// returns the updated metadata of the file.
func (a *API) UploadSimple(ctx context.Context, id string, data []byte) (*Resource, error) {
	headers := map[string]string{"Content-Type": filetype.Match(data)}
	res, err := a.req(ctx, http.MethodPatch, uploadPath(id), uploadOptions{UploadType: "media", Fields: resourceFields}, headers, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, newAPIError("upload", res)
	}
	var out Resource
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// escapeQuery escapes a value for a string literal of the search queries.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
