// Package storage holds key-value string backends that a cart store mirrors its state into.
package storage

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("key not found")

// Storage is synchronous key-value string storage that survives process restarts
// (or page reloads, for the in-memory fake within one process).
type Storage interface {
	Initialize(ctx context.Context) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error

	Ping(ctx context.Context) bool
}
