// Package storage opens the backends declared in the configuration, by their
// name, and releases their resources when they are no longer needed.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/vsalavatov/multifs/model/vfs"
	"github.com/vsalavatov/multifs/model/vfs/vfsafero"
	"github.com/vsalavatov/multifs/model/vfs/vfsdrive"
	"github.com/vsalavatov/multifs/model/vfs/vfssqlite"
	"github.com/vsalavatov/multifs/model/vfs/vfsswift"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/pkg/googleauth"
	"github.com/vsalavatov/multifs/pkg/logger"
	"github.com/vsalavatov/multifs/pkg/utils"
)

var log = logger.WithNamespace("storage")

// Storage keeps the backends opened for a command, so that a backend used
// twice, like the source and the destination of a copy, is opened once.
type Storage struct {
	// OpenURL is called with the consent page when a Drive backend needs an
	// authorization from the user.
	OpenURL func(authURL string) error

	mu      sync.Mutex
	opened  map[string]vfs.VFS
	closers *utils.GroupShutdown
}

// New returns an empty Storage.
func New(openURL func(authURL string) error) *Storage {
	return &Storage{
		OpenURL: openURL,
		opened:  make(map[string]vfs.VFS),
		closers: utils.NewGroupShutdown(),
	}
}

// Open returns the backend with the given name in the configuration.
func (s *Storage) Open(ctx context.Context, name string) (vfs.VFS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.opened[name]; ok {
		return fs, nil
	}
	u, err := config.Backend(name)
	if err != nil {
		return nil, err
	}
	fs, err := s.open(ctx, name, u)
	if err != nil {
		return nil, fmt.Errorf("cannot open the backend %q: %w", name, err)
	}
	log.Debugf("Opened backend %s (%s)", name, utils.RedactURL(u))
	s.opened[name] = fs
	return fs, nil
}

func (s *Storage) open(ctx context.Context, name string, u *url.URL) (vfs.VFS, error) {
	cfg := config.GetConfig()
	switch u.Scheme {
	case config.SchemeFile, config.SchemeMem:
		return vfsafero.New(u)
	case config.SchemeSQLite:
		if u.Host != "" {
			return nil, fmt.Errorf("a sqlite URL has no host: %s", u.String())
		}
		db, err := vfssqlite.OpenDB(u.Path, cfg.SQLite.BusyTimeout)
		if err != nil {
			return nil, err
		}
		fs, err := vfssqlite.New(ctx, db, name)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.closers.Add(utils.CloserShutdown(db.Close))
		return fs, nil
	case config.SchemeDrive:
		requester, err := googleauth.NewRequester(cfg.Drive, s.OpenURL)
		if err != nil {
			return nil, err
		}
		api, err := vfsdrive.NewAPI(vfsdrive.OptionsFromConfig(cfg.Drive, requester))
		if err != nil {
			return nil, err
		}
		return vfsdrive.New(api, name), nil
	case config.SchemeSwift, config.SchemeSwiftSecure:
		c, err := vfsswift.NewConnection(ctx, u, cfg.Swift)
		if err != nil {
			return nil, err
		}
		return vfsswift.New(ctx, c, vfsswift.ContainerName(u))
	}
	return nil, fmt.Errorf("unknown scheme %q", u.Scheme)
}

// Shutdown releases the resources of the opened backends.
func (s *Storage) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = make(map[string]vfs.VFS)
	closers := s.closers
	s.closers = utils.NewGroupShutdown()
	return closers.Shutdown(ctx)
}

// Location is a node designated by a backend name and a path, written
// "backend:/path/to/node" on the command line.
type Location struct {
	Backend string
	Path    vfs.Path
}

func (l Location) String() string {
	return l.Backend + ":" + l.Path.String()
}

// ParseLocation parses a location like "backend:/path". A missing path is
// the root folder.
func ParseLocation(s string) (Location, error) {
	backend, rest, ok := strings.Cut(s, ":")
	if !ok || backend == "" || strings.Contains(backend, "/") {
		return Location{}, fmt.Errorf("invalid location %q: expected backend:/path", s)
	}
	p, err := vfs.ParsePath(rest)
	if err != nil {
		return Location{}, fmt.Errorf("invalid location %q: %w", s, err)
	}
	return Location{Backend: backend, Path: p}, nil
}

// Resolve opens the backend of a location and returns the node at its path.
func (s *Storage) Resolve(ctx context.Context, loc Location) (vfs.Node, error) {
	fs, err := s.Open(ctx, loc.Backend)
	if err != nil {
		return nil, err
	}
	return vfs.Lookup(ctx, fs.Root(), loc.Path)
}

// ResolveFolder is like Resolve for a location that must be a folder.
func (s *Storage) ResolveFolder(ctx context.Context, loc Location) (vfs.Folder, error) {
	fs, err := s.Open(ctx, loc.Backend)
	if err != nil {
		return nil, err
	}
	return vfs.LookupFolder(ctx, fs.Root(), loc.Path)
}

// ResolveFile is like Resolve for a location that must be a file.
func (s *Storage) ResolveFile(ctx context.Context, loc Location) (vfs.File, error) {
	fs, err := s.Open(ctx, loc.Backend)
	if err != nil {
		return nil, err
	}
	return vfs.LookupFile(ctx, fs.Root(), loc.Path)
}
