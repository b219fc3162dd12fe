package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
)

const successPage = `<!DOCTYPE html>
<html><head><title>multifs</title></head>
<body><p>The authorization has been granted to multifs. You can close this window.</p></body>
</html>`

const failurePage = `<!DOCTYPE html>
<html><head><title>multifs</title></head>
<body><p>The authorization has failed: %s</p></body>
</html>`

// CallbackRequester runs the authorization code flow for an installed
// application: the user consents in a browser, which is then redirected to a
// local HTTP server receiving the code.
type CallbackRequester struct {
	Config *oauth2.Config
	// Port is the port of the local server. 0 means a random port.
	Port int
	// OpenURL is called with the consent URL.
	OpenURL func(authURL string) error
}

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// RequestAuthorization is part of the Requester interface.
func (r *CallbackRequester) RequestAuthorization(ctx context.Context) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", r.Port))
	if err != nil {
		return nil, fmt.Errorf("googleauth: cannot listen for the callback: %w", err)
	}

	conf := *r.Config
	conf.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr())
	state, err := uuid.NewV4()
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	results := make(chan callbackResult, 1)
	send := func(res callbackResult) {
		select {
		case results <- res:
		default:
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = ln
	e.GET("/", func(c echo.Context) error {
		if c.QueryParam("state") != state.String() {
			return c.HTML(http.StatusBadRequest, fmt.Sprintf(failurePage, "invalid state"))
		}
		if msg := c.QueryParam("error"); msg != "" {
			send(callbackResult{err: fmt.Errorf("googleauth: authorization denied: %s", msg)})
			return c.HTML(http.StatusForbidden, fmt.Sprintf(failurePage, msg))
		}
		code := c.QueryParam("code")
		if code == "" {
			return c.HTML(http.StatusBadRequest, fmt.Sprintf(failurePage, "missing code"))
		}
		tok, err := conf.Exchange(ctx, code)
		if err != nil {
			send(callbackResult{err: fmt.Errorf("googleauth: cannot exchange the code: %w", err)})
			return c.HTML(http.StatusBadGateway, fmt.Sprintf(failurePage, "cannot exchange the code"))
		}
		send(callbackResult{token: tok})
		return c.HTML(http.StatusOK, successPage)
	})

	go func() {
		if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			send(callbackResult{err: err})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Cannot stop the callback server: %s", err)
		}
	}()

	authURL := conf.AuthCodeURL(state.String(), oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	log.Debugf("Waiting for the authorization on %s", conf.RedirectURL)
	if r.OpenURL != nil {
		if err := r.OpenURL(authURL); err != nil {
			return nil, err
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		log.Infof("Authorization granted")
		return res.token, nil
	}
}

// RefreshAuthorization is part of the Requester interface.
func (r *CallbackRequester) RefreshAuthorization(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error) {
	return TryRefresh(ctx, r.Config, expired, r.RequestAuthorization)
}
