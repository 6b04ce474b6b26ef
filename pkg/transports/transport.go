package transports

import "context"

// Transport is a channel listener owned by the relay lifecycle.
// Start must return bind errors synchronously; Drain stops accepting new
// subscribers while existing ones keep receiving until Stop.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Addr() string
	Drain()
	Stop(ctx context.Context) error
}
