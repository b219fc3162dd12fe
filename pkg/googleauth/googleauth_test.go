package googleauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/pkg/googleauth"
	"github.com/vsalavatov/multifs/tests/testutils"
	"golang.org/x/oauth2"
)

// tokenServer is a fake OAuth2 token endpoint.
type tokenServer struct {
	*httptest.Server
	refreshStatus int
	forms         []url.Values
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{refreshStatus: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ts.forms = append(ts.forms, r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			if ts.refreshStatus != http.StatusOK {
				w.WriteHeader(ts.refreshStatus)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "refreshed-access",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		case "authorization_code":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "access-" + r.PostForm.Get("code"),
				"refresh_token": "refresh-" + r.PostForm.Get("code"),
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) oauthConfig() *oauth2.Config {
	return googleauth.NewConfig(config.Drive{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{config.DefaultDriveScope},
		AuthURL:      ts.URL + "/auth",
		TokenURL:     ts.URL + "/token",
	})
}

// countingRequester counts the calls made by the code under test.
type countingRequester struct {
	requests  int32
	refreshes int32
}

func (c *countingRequester) RequestAuthorization(ctx context.Context) (*oauth2.Token, error) {
	atomic.AddInt32(&c.requests, 1)
	return &oauth2.Token{AccessToken: "requested", RefreshToken: "requested-refresh", Expiry: time.Now().Add(time.Hour)}, nil
}

func (c *countingRequester) RefreshAuthorization(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error) {
	atomic.AddInt32(&c.refreshes, 1)
	return &oauth2.Token{AccessToken: "refreshed", RefreshToken: expired.RefreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func TestTryRefresh(t *testing.T) {
	config.UseTestFile(t)
	ctx := context.Background()
	fallback := &countingRequester{}

	t.Run("KeepsTheRefreshToken", func(t *testing.T) {
		ts := newTokenServer(t)
		expired := &oauth2.Token{AccessToken: "old", RefreshToken: "the-refresh-token"}
		tok, err := googleauth.TryRefresh(ctx, ts.oauthConfig(), expired, fallback.RequestAuthorization)
		require.NoError(t, err)
		assert.Equal(t, "refreshed-access", tok.AccessToken)
		assert.Equal(t, "the-refresh-token", tok.RefreshToken)
		require.Len(t, ts.forms, 1)
		assert.Equal(t, "the-refresh-token", ts.forms[0].Get("refresh_token"))
		assert.Equal(t, "client-id", ts.forms[0].Get("client_id"))
		assert.EqualValues(t, 0, atomic.LoadInt32(&fallback.requests))
	})

	t.Run("InvalidGrant", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.refreshStatus = http.StatusBadRequest
		before := atomic.LoadInt32(&fallback.requests)
		expired := &oauth2.Token{AccessToken: "old", RefreshToken: "revoked"}
		tok, err := googleauth.TryRefresh(ctx, ts.oauthConfig(), expired, fallback.RequestAuthorization)
		require.NoError(t, err)
		assert.Equal(t, "requested", tok.AccessToken)
		assert.Equal(t, before+1, atomic.LoadInt32(&fallback.requests))
	})

	t.Run("NoRefreshToken", func(t *testing.T) {
		ts := newTokenServer(t)
		before := atomic.LoadInt32(&fallback.requests)
		tok, err := googleauth.TryRefresh(ctx, ts.oauthConfig(), &oauth2.Token{AccessToken: "old"}, fallback.RequestAuthorization)
		require.NoError(t, err)
		assert.Equal(t, "requested", tok.AccessToken)
		assert.Equal(t, before+1, atomic.LoadInt32(&fallback.requests))
		assert.Empty(t, ts.forms)
	})

	t.Run("ServerError", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.refreshStatus = http.StatusInternalServerError
		before := atomic.LoadInt32(&fallback.requests)
		_, err := googleauth.TryRefresh(ctx, ts.oauthConfig(), &oauth2.Token{RefreshToken: "r"}, fallback.RequestAuthorization)
		require.Error(t, err)
		var rerr *oauth2.RetrieveError
		assert.True(t, errors.As(err, &rerr))
		assert.Equal(t, before, atomic.LoadInt32(&fallback.requests))
	})
}

func TestStaticRequester(t *testing.T) {
	config.UseTestFile(t)
	ctx := context.Background()

	s := &googleauth.StaticRequester{AccessToken: "fixed"}
	tok, err := s.RequestAuthorization(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fixed", tok.AccessToken)
	assert.Empty(t, tok.RefreshToken)

	tok, err = s.RefreshAuthorization(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "fixed", tok.AccessToken)

	_, err = (&googleauth.StaticRequester{}).RequestAuthorization(ctx)
	assert.Error(t, err)
}

func TestCachedRequester(t *testing.T) {
	config.UseTestFile(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "multifs", "token.json")

	inner := &countingRequester{}
	cached := &googleauth.CachedRequester{Requester: inner, Path: path}
	tok, err := cached.RequestAuthorization(ctx)
	require.NoError(t, err)
	assert.Equal(t, "requested", tok.AccessToken)
	assert.FileExists(t, path)

	// Another process reads the token from the file.
	other := &googleauth.CachedRequester{Requester: inner, Path: path}
	tok, err = other.RequestAuthorization(ctx)
	require.NoError(t, err)
	assert.Equal(t, "requested", tok.AccessToken)
	assert.EqualValues(t, 1, atomic.LoadInt32(&inner.requests))

	tok, err = other.RefreshAuthorization(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", tok.AccessToken)
	assert.EqualValues(t, 1, atomic.LoadInt32(&inner.refreshes))

	// The refreshed token has replaced the cached one.
	tok, err = cached.RequestAuthorization(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", tok.AccessToken)

	t.Run("ExpiredCachedToken", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		expired, err := json.Marshal(&oauth2.Token{
			AccessToken:  "stale",
			RefreshToken: "stale-refresh",
			Expiry:       time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, expired, 0600))

		inner := &countingRequester{}
		cached := &googleauth.CachedRequester{Requester: inner, Path: path}
		tok, err := cached.RequestAuthorization(ctx)
		require.NoError(t, err)
		assert.Equal(t, "refreshed", tok.AccessToken)
		assert.Equal(t, "stale-refresh", tok.RefreshToken)
		assert.EqualValues(t, 0, atomic.LoadInt32(&inner.requests))
	})
}

func TestCallbackRequester(t *testing.T) {
	config.UseTestFile(t)
	ctx := context.Background()

	t.Run("Granted", func(t *testing.T) {
		ts := newTokenServer(t)
		r := &googleauth.CallbackRequester{
			Config: ts.oauthConfig(),
			OpenURL: func(authURL string) error {
				u, err := url.Parse(authURL)
				require.NoError(t, err)
				q := u.Query()
				assert.Equal(t, "client-id", q.Get("client_id"))
				assert.Equal(t, "offline", q.Get("access_type"))

				e := testutils.CreateTestClient(t, q.Get("redirect_uri"))
				e.GET("/").
					WithQuery("state", "not-the-state").
					WithQuery("code", "forged").
					Expect().Status(400)
				e.GET("/").
					WithQuery("state", q.Get("state")).
					WithQuery("code", "the-code").
					Expect().Status(200).
					Body().Contains("granted")
				return nil
			},
		}

		tok, err := r.RequestAuthorization(ctx)
		require.NoError(t, err)
		assert.Equal(t, "access-the-code", tok.AccessToken)
		assert.Equal(t, "refresh-the-code", tok.RefreshToken)

		require.Len(t, ts.forms, 1)
		form := ts.forms[0]
		assert.Equal(t, "authorization_code", form.Get("grant_type"))
		assert.Equal(t, "the-code", form.Get("code"))
		assert.Equal(t, "client-id", form.Get("client_id"))
		assert.Equal(t, "client-secret", form.Get("client_secret"))
		assert.NotEmpty(t, form.Get("redirect_uri"))
	})

	t.Run("Denied", func(t *testing.T) {
		ts := newTokenServer(t)
		r := &googleauth.CallbackRequester{
			Config: ts.oauthConfig(),
			OpenURL: func(authURL string) error {
				u, err := url.Parse(authURL)
				require.NoError(t, err)
				q := u.Query()
				e := testutils.CreateTestClient(t, q.Get("redirect_uri"))
				e.GET("/").
					WithQuery("state", q.Get("state")).
					WithQuery("error", "access_denied").
					Expect().Status(403)
				return nil
			},
		}
		_, err := r.RequestAuthorization(ctx)
		assert.ErrorContains(t, err, "access_denied")
		assert.Empty(t, ts.forms)
	})

	t.Run("Canceled", func(t *testing.T) {
		ts := newTokenServer(t)
		canceled, cancel := context.WithCancel(ctx)
		r := &googleauth.CallbackRequester{
			Config: ts.oauthConfig(),
			OpenURL: func(string) error {
				cancel()
				return nil
			},
		}
		_, err := r.RequestAuthorization(canceled)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("RefreshFallsBackToTheFlow", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.refreshStatus = http.StatusBadRequest
		var opened int32
		r := &googleauth.CallbackRequester{
			Config: ts.oauthConfig(),
			OpenURL: func(authURL string) error {
				atomic.AddInt32(&opened, 1)
				u, err := url.Parse(authURL)
				require.NoError(t, err)
				q := u.Query()
				e := testutils.CreateTestClient(t, q.Get("redirect_uri"))
				e.GET("/").
					WithQuery("state", q.Get("state")).
					WithQuery("code", "again").
					Expect().Status(200)
				return nil
			},
		}
		tok, err := r.RefreshAuthorization(ctx, &oauth2.Token{AccessToken: "old", RefreshToken: "revoked"})
		require.NoError(t, err)
		assert.Equal(t, "access-again", tok.AccessToken)
		assert.EqualValues(t, 1, atomic.LoadInt32(&opened))
	})
}

func TestNewRequester(t *testing.T) {
	config.UseTestFile(t)

	r, err := googleauth.NewRequester(config.Drive{AccessToken: "fixed"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &googleauth.StaticRequester{}, r)

	r, err = googleauth.NewRequester(config.Drive{
		ClientID:  "id",
		TokenFile: filepath.Join(t.TempDir(), "token.json"),
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &googleauth.CachedRequester{}, r)

	_, err = googleauth.NewRequester(config.Drive{}, nil)
	assert.Error(t, err)
}
