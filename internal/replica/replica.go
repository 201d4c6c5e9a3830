// Package replica talks to the secondary store that mirrors account credentials.
package replica

import (
	"context"
	"errors"
)

// Fields is the set of attributes written to a replica record.
type Fields map[string]any

var ErrRecordMissing = errors.New("replica record missing")

// Client writes records keyed by the account id shared with the primary store.
type Client interface {
	// Put creates or replaces the whole record.
	Put(ctx context.Context, id string, fields Fields) error
	// Patch updates the given attributes of an existing record.
	Patch(ctx context.Context, id string, fields Fields) error
}
