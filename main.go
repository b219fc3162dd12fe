// multifs is a command line tool giving the same file operations on several
// kinds of storage:
//
// - local folders, or an in-memory tree for tests;
//
// - SQLite databases, where the whole tree is kept in a single table;
//
// - Google Drive accounts, with resumable uploads for the large files;
//
// - OpenStack Swift containers.
//
// The backends are declared by name in the configuration, and a file can be
// copied or moved from any of them to any other.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vsalavatov/multifs/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.RootCmd.ExecuteContext(ctx)
	stop()
	if err != nil && !errors.Is(err, cmd.ErrUsage) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error()) // #nosec
		os.Exit(1)
	}
}
