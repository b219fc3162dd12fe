package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// TransferNative is the path label for copies and moves made with the
	// native operations of a backend.
	TransferNative = "native"
	// TransferGeneric is the path label for copies and moves made by reading
	// and writing the content.
	TransferGeneric = "generic"
	// TransferNoop is the path label for copies and moves of a file on
	// itself.
	TransferNoop = "noop"
)

// TransferCounter is a counter number of the copy and move operations,
// labelled by the backend of the destination, the operation and the path
// taken to do it.
var TransferCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "multifs",
		Subsystem: "vfs",
		Name:      "transfers_total",

		Help: "Number of copy and move operations, labelled by backend, operation and path.",
	},
	[]string{"backend", "op", "path"},
)

// TransferBytes is a counter of the bytes transferred by the generic copy and
// move operations, labelled by the backend of the destination.
var TransferBytes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "multifs",
		Subsystem: "vfs",
		Name:      "transfer_bytes_total",

		Help: "Bytes transferred by the generic copy and move operations, labelled by backend.",
	},
	[]string{"backend"},
)

func init() {
	prometheus.MustRegister(
		TransferCounter,
		TransferBytes,
	)
}
