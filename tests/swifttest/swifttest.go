// This script can be used to start a Swift-like server that keeps in memory
// its files. It can be started with `go run ./tests/swifttest`, and it prints
// the backend to add in the multifs configuration. The username and password
// to use are both 'swifttest'.

package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"

	"github.com/ncw/swift/v2/swifttest"
)

func main() {
	srv, err := swifttest.NewSwiftServer("localhost")
	if err != nil {
		panic(err)
	}
	defer srv.Close()

	q := url.Values{}
	q.Set("UserName", "swifttest")
	q.Set("Password", "swifttest")
	q.Set("AuthURL", srv.AuthURL)
	backend := url.URL{Scheme: "swift", Host: "localhost", Path: "/multifs", RawQuery: q.Encode()}

	fmt.Printf("backends:\n  swift: %q\n", backend.String())

	// Wait for CTRL-C
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c
}
