// Package host defines the application surface cavy tests run against and
// the persisted-state stores backing it.
package host

import "context"

// Host is the application under test.
type Host interface {
	// Clear resets persisted application state. It returns once the reset is durable.
	Clear(ctx context.Context) error
	// ReRender rebuilds the observable application state so each test starts from a fresh render.
	ReRender(ctx context.Context) error
}

// Store is the persisted state of a host application.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Close() error
}
