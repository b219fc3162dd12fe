package vfsdrive

import (
	"io"
	"net/http"
	"sync"

	"github.com/vsalavatov/multifs/pkg/googleauth"
	"golang.org/x/oauth2"
)

// bearerTransport adds the access token to the requests. When the API
// answers 401, the token is refreshed once and the request is sent again.
type bearerTransport struct {
	base      http.RoundTripper
	requester googleauth.Requester

	mu    sync.Mutex
	token *oauth2.Token
}

func newBearerTransport(base http.RoundTripper, requester googleauth.Requester) *bearerTransport {
	return &bearerTransport{base: base, requester: requester}
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.current(req)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	res, err := t.base.RoundTrip(authorize(req, tok))
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return res, nil
	}

	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
	fresh, err := t.refresh(req, tok)
	if err != nil {
		return nil, err
	}
	replay := req.Clone(req.Context())
	if req.GetBody != nil {
		if replay.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	return t.base.RoundTrip(authorize(replay, fresh))
}

func (t *bearerTransport) current(req *http.Request) (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != nil {
		return t.token, nil
	}
	tok, err := t.requester.RequestAuthorization(req.Context())
	if err != nil {
		return nil, err
	}
	t.token = tok
	return tok, nil
}

// refresh replaces the rejected token. If another request has already
// replaced it, its new token is used.
func (t *bearerTransport) refresh(req *http.Request, rejected *oauth2.Token) (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != nil && t.token != rejected {
		return t.token, nil
	}
	tok, err := t.requester.RefreshAuthorization(req.Context(), rejected)
	if err != nil {
		return nil, err
	}
	t.token = tok
	return tok, nil
}

func authorize(req *http.Request, tok *oauth2.Token) *http.Request {
	r := req.Clone(req.Context())
	tok.SetAuthHeader(r)
	return r
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
