package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
)

// DefaultTokenFile returns the path of the file where the Drive tokens are
// cached, in the XDG config directory of the user.
func DefaultTokenFile() (string, error) {
	return xdg.ConfigFile(filepath.Join("multifs", "drive-token.json"))
}

// CachedRequester wraps a Requester to keep the tokens in a file.
type CachedRequester struct {
	Requester Requester
	Path      string

	mu sync.Mutex
}

// RequestAuthorization returns the cached token if there is one. An expired
// cached token is refreshed first.
func (c *CachedRequester) RequestAuthorization(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, err := c.load()
	if err != nil {
		log.Warnf("Cannot read the cached token from %s: %s", c.Path, err)
	}
	if tok != nil && tok.AccessToken != "" {
		if tok.Expiry.IsZero() || tok.Expiry.After(time.Now()) {
			return tok, nil
		}
		tok, err = c.Requester.RefreshAuthorization(ctx, tok)
	} else {
		tok, err = c.Requester.RequestAuthorization(ctx)
	}
	if err != nil {
		return nil, err
	}
	c.save(tok)
	return tok, nil
}

// RefreshAuthorization is part of the Requester interface.
func (c *CachedRequester) RefreshAuthorization(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, err := c.Requester.RefreshAuthorization(ctx, expired)
	if err != nil {
		return nil, err
	}
	c.save(tok)
	return tok, nil
}

func (c *CachedRequester) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	return &tok, nil
}

// save writes the token in the cache file. Failures are only logged.
func (c *CachedRequester) save(tok *oauth2.Token) {
	data, err := json.Marshal(tok)
	if err == nil {
		if err = os.MkdirAll(filepath.Dir(c.Path), 0700); err == nil {
			err = os.WriteFile(c.Path, data, 0600)
		}
	}
	if err != nil {
		log.Warnf("Cannot cache the token in %s: %s", c.Path, err)
		return
	}
	log.Debugf("Token cached in %s", c.Path)
}
