// Package kvstore provides the key-value blob backends the record store
// persists into.
package kvstore

import (
	"context"
	"errors"
)

// Default keys. The clicks key is reserved; clicks are nested in URL records.
const (
	DefaultURLsKey   = "url_shortener_urls"
	DefaultClicksKey = "url_shortener_clicks"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("kvstore: backend closed")

// Backend is a string blob store addressed by fixed keys.
type Backend interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set replaces any prior value for key.
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Close() error
}
