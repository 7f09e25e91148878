// Package callid attaches a correlation id to the context a call runs
// under. Lifecycle events carry the id so subscribers can stitch batches
// back to their call.
package callid

import (
	"context"
	"math/rand/v2"
)

// key is the context key for the call ID.
type key struct{}

// NewContext returns a copy of parent with a new random call ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int64()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the call ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(key{})
	id, ok := v.(int64)
	return id, ok
}
