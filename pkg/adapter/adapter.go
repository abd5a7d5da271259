// Package adapter defines the contract between GatewayServer and the
// protocol front ends it runs.
package adapter

import "context"

// Adapter is one file-transfer protocol served over the shared account
// store and view factory. Both are injected when the adapter is built;
// GatewayServer owns only start and stop.
type Adapter interface {
	// Serve accepts sessions until ctx is cancelled, then closes them and
	// returns nil or ctx.Err(). Returning while ctx is still live is fatal
	// for the whole gateway.
	Serve(ctx context.Context) error

	// Stop begins a graceful shutdown bounded by ctx. It must be idempotent
	// and may run concurrently with Serve.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs and metrics, e.g. "FTP".
	Protocol() string

	// Port is the control port the adapter listens on.
	Port() int
}
