// Package events defines the lifecycle events the transport publishes
// through the eventbus. Each event is a plain struct; context carries the
// call correlation id.
package events

import (
	"time"

	"github.com/hanpama/callwire/internal/wire"
)

// BatchSubmit is emitted when a hook accepts a batch for execution.
// Seq is unique per call and correlates the matching BatchComplete.
type BatchSubmit struct {
	CallID int64
	Seq    int64
	Ops    []wire.OpKind
}

// BatchComplete is emitted after the transport posts the batch's completion
// tag. OK is the raw transport outcome; per-op finalization runs later, on
// the queue consumer's pop.
type BatchComplete struct {
	CallID   int64
	Seq      int64
	Ops      []wire.OpKind
	OK       bool
	Duration time.Duration
}
