// Package googleauth provides the OAuth2 tokens used to access the Google
// Drive API.
package googleauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/pkg/logger"
	"golang.org/x/oauth2"
)

var log = logger.WithNamespace("googleauth")

// Requester is something that can obtain an authorization for the Drive API.
type Requester interface {
	// RequestAuthorization asks for a new token, possibly involving the user.
	RequestAuthorization(ctx context.Context) (*oauth2.Token, error)
	// RefreshAuthorization returns a new token to replace one that is no
	// longer accepted.
	RefreshAuthorization(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error)
}

// RequestFunc is the signature of Requester.RequestAuthorization.
type RequestFunc func(ctx context.Context) (*oauth2.Token, error)

// NewConfig returns the OAuth2 configuration for the Drive API.
func NewConfig(cfg config.Drive) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// TryRefresh exchanges the refresh token of the expired token for a new
// token. If there is no refresh token, or if the token endpoint rejects it,
// a new authorization is requested with requestNew.
func TryRefresh(ctx context.Context, conf *oauth2.Config, expired *oauth2.Token, requestNew RequestFunc) (*oauth2.Token, error) {
	if conf == nil || expired == nil || expired.RefreshToken == "" {
		log.Debugf("No refresh token, requesting a new authorization")
		return requestNew(ctx)
	}

	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: expired.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusBadRequest {
			log.Infof("Refresh token rejected (%s), requesting a new authorization", rerr.ErrorCode)
			return requestNew(ctx)
		}
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = expired.RefreshToken
	}
	log.Debugf("Token refreshed, expires at %s", tok.Expiry)
	return tok, nil
}

// StaticRequester returns always the same access token. It has no refresh
// token, so the refresh gives the same token again.
type StaticRequester struct {
	AccessToken string
}

// RequestAuthorization is part of the Requester interface.
func (s *StaticRequester) RequestAuthorization(ctx context.Context) (*oauth2.Token, error) {
	if s.AccessToken == "" {
		return nil, errors.New("googleauth: no access token configured")
	}
	return &oauth2.Token{AccessToken: s.AccessToken, TokenType: "Bearer"}, nil
}

// RefreshAuthorization is part of the Requester interface.
func (s *StaticRequester) RefreshAuthorization(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error) {
	return TryRefresh(ctx, nil, expired, s.RequestAuthorization)
}

// NewRequester returns the requester matching the Drive configuration: a
// static token if one is configured, and else the loopback authorization
// flow with the tokens cached on disk.
func NewRequester(cfg config.Drive, openURL func(authURL string) error) (Requester, error) {
	if cfg.AccessToken != "" {
		return &StaticRequester{AccessToken: cfg.AccessToken}, nil
	}
	if cfg.ClientID == "" {
		return nil, errors.New("googleauth: drive.client_id or drive.access_token must be configured")
	}
	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		var err error
		if tokenFile, err = DefaultTokenFile(); err != nil {
			return nil, err
		}
	}
	return &CachedRequester{
		Requester: &CallbackRequester{
			Config:  NewConfig(cfg),
			Port:    cfg.RedirectPort,
			OpenURL: openURL,
		},
		Path: tokenFile,
	}, nil
}

var (
	_ Requester = (*StaticRequester)(nil)
	_ Requester = (*CallbackRequester)(nil)
	_ Requester = (*CachedRequester)(nil)
)
