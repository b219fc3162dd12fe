package vfsswift

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/ncw/swift/v2"
	build "github.com/vsalavatov/multifs/pkg/config"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/pkg/logger"
	"github.com/vsalavatov/multifs/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// DefaultContainer is the container used when the URL of the backend has no
// path.
const DefaultContainer = "multifs"

// maxSimultaneousCalls is the maximal number of simultaneous calls to Swift to
// delete the objects of a folder.
const maxSimultaneousCalls = 8

// authRetryDelay is the delay before the first retry of a failed
// authentication. It doubles after each failure.
const authRetryDelay = 200 * time.Millisecond

// ContainerName returns the container configured in the URL of a swift
// backend: the first segment of its path.
func ContainerName(swiftURL *url.URL) string {
	container, _, _ := strings.Cut(strings.TrimPrefix(swiftURL.Path, "/"), "/")
	if container == "" {
		return DefaultContainer
	}
	return container
}

// NewConnection returns an authenticated connection to the swift server
// described by the URL, like
// swift://host/container?UserName=...&Password=...&AuthURL=...
func NewConnection(ctx context.Context, swiftURL *url.URL, cfg config.Swift) (*swift.Connection, error) {
	q := swiftURL.Query()

	var authURL *url.URL
	var err error
	auth := q.Get("AuthURL")
	if auth == "" {
		scheme := "http"
		if swiftURL.Scheme == config.SchemeSwiftSecure {
			scheme = "https"
		}
		authURL = &url.URL{
			Scheme: scheme,
			Host:   swiftURL.Host,
			Path:   "/identity/v3",
		}
	} else {
		authURL, err = url.Parse(auth)
		if err != nil {
			return nil, fmt.Errorf("swift: could not parse AuthURL: %w", err)
		}
	}

	var username, password string
	if q.Get("UserName") != "" {
		username = q.Get("UserName")
		password = q.Get("Password")
	} else {
		password = q.Get("Token")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	c := &swift.Connection{
		UserName:       username,
		ApiKey:         password,
		AuthUrl:        authURL.String(),
		Domain:         q.Get("UserDomainName"),
		Tenant:         q.Get("ProjectName"),
		TenantId:       q.Get("ProjectID"),
		TenantDomain:   q.Get("ProjectDomain"),
		TenantDomainId: q.Get("ProjectDomainID"),
		Region:         q.Get("Region"),
		UserAgent:      "multifs/" + build.Version,
		// Copying a file needs a long timeout on large files
		ConnectTimeout: timeout,
		Timeout:        timeout,
	}

	log := logger.WithNamespace("vfsswift")
	err = utils.RetryWithExpBackoff(ctx, cfg.AuthRetries, authRetryDelay, func() error {
		return c.Authenticate(ctx)
	})
	if err != nil {
		log.Errorf("Authentication failed with the OpenStack Swift server on %s", c.AuthUrl)
		return nil, err
	}
	log.Infof("Successfully authenticated with server %s", c.AuthUrl)
	return c, nil
}

// deleteObjects deletes the given objects with a limited number of
// simultaneous calls. The objects already deleted are ignored, and the other
// failures are all returned.
func deleteObjects(ctx context.Context, c *swift.Connection, container string, objectNames []string) error {
	var errm error
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(maxSimultaneousCalls)
	for _, name := range objectNames {
		name := name
		g.Go(func() error {
			err := c.ObjectDelete(ctx, container, name)
			if err != nil && !errors.Is(err, swift.ObjectNotFound) {
				mu.Lock()
				errm = multierror.Append(errm, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errm
}
