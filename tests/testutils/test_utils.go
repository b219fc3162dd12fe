package testutils

import (
	"flag"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/ncw/swift/v2/swifttest"
	"github.com/stretchr/testify/require"
)

var useDebug bool

func init() {
	flag.BoolVar(&useDebug, "debug", false, "display the requests content")
}

// CreateTestClient setup an httpexpect.Expect client used to make http tests.
//
// This init take allow to use the `--debug` flag in your tests in order to
// print the requests/responses content.
//
// example: `go test ./pkg/googleauth --debug`.
func CreateTestClient(t testing.TB, url string) *httpexpect.Expect {
	var printer httpexpect.Printer

	t.Helper()

	flag.Parse()

	if useDebug {
		printer = httpexpect.NewDebugPrinter(t, true)
	} else {
		printer = httpexpect.NewCompactPrinter(t)
	}

	return httpexpect.WithConfig(httpexpect.Config{
		TestName: t.Name(),
		BaseURL:  url,
		Reporter: httpexpect.NewAssertReporter(t),
		Printers: []httpexpect.Printer{printer},
	})
}

// WithSwiftServer starts an in-memory swift server for the duration of the
// test and returns its authentication URL.
func WithSwiftServer(t testing.TB) string {
	t.Helper()

	srv, err := swifttest.NewSwiftServer("localhost")
	require.NoError(t, err, "failed to create swift server")
	t.Cleanup(srv.Close)
	return srv.AuthURL
}
