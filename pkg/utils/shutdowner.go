package utils

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Shutdowner is an interface with a Shutdown method to release the resources
// held by a backend: database handles, loopback servers...
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// GroupShutdown allow to group multiple Shutdowner into a single one.
type GroupShutdown struct {
	s []Shutdowner
}

// NewGroupShutdown returns a new GroupShutdown
func NewGroupShutdown(s ...Shutdowner) *GroupShutdown {
	return &GroupShutdown{s}
}

// ShutdownFunc is an adapter to use a function as a Shutdowner.
type ShutdownFunc func(ctx context.Context) error

// Shutdown calls f(ctx).
func (f ShutdownFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// CloserShutdown returns a Shutdowner that calls the given close function.
func CloserShutdown(c func() error) Shutdowner {
	return ShutdownFunc(func(context.Context) error { return c() })
}

// Add appends a Shutdowner to the group. It is not safe to call it while
// the group is shutting down.
func (g *GroupShutdown) Add(s Shutdowner) {
	g.s = append(g.s, s)
}

// Shutdown closes all the encapsulated [Shutdowner] in parallel an returns
// the concatenated errors.
func (g *GroupShutdown) Shutdown(ctx context.Context) error {
	var errm error
	l := sync.Mutex{}
	w := sync.WaitGroup{}

	for _, s := range g.s {
		s := s
		w.Add(1)

		go (func() {
			defer w.Done()

			err := s.Shutdown(ctx)
			if err != nil {
				l.Lock()
				defer l.Unlock()
				errm = multierror.Append(errm, err)
			}
		})()
	}

	w.Wait()

	return errm
}
