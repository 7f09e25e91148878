// Package cq is the completion queue collaborator: transports post finished
// batch tags here, and a consumer pops them with Next. Finalization runs on
// the consumer's pop path, so tags must not block inside FinalizeResult.
package cq

import (
	"context"
	"errors"
	"sync"
)

// ErrShutdown is returned by Next and Post after Shutdown, once any
// already-posted events have been drained.
var ErrShutdown = errors.New("cq: queue is shut down")

// Tag is implemented by values used as completion tags. FinalizeResult
// consumes the raw transport outcome: it may flip *ok from true to false,
// never the reverse. The returned out value is what Next hands to the
// consumer; visible=false tells Next to keep popping (the tag's side effects
// have run, but this completion is not a user-visible event).
type Tag interface {
	FinalizeResult(ok *bool) (out any, visible bool)
}

type event struct {
	tag Tag
	ok  bool
}

// Queue delivers batch completions from a transport to one consumer.
// Post is safe for concurrent use; Next is meant for a single consumer.
type Queue struct {
	events chan event
	done   chan struct{}
	once   sync.Once
}

const defaultDepth = 64

// New creates a queue with the default event buffer.
func New() *Queue { return NewSized(defaultDepth) }

// NewSized creates a queue buffering up to depth pending completions.
func NewSized(depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{
		events: make(chan event, depth),
		done:   make(chan struct{}),
	}
}

// Post enqueues a completion. ok is the raw transport outcome for the batch.
func (q *Queue) Post(t Tag, ok bool) error {
	select {
	case <-q.done:
		return ErrShutdown
	default:
	}
	select {
	case q.events <- event{tag: t, ok: ok}:
		return nil
	case <-q.done:
		return ErrShutdown
	}
}

// Next blocks for the next externally visible completion and returns its
// output tag and finalized outcome. Silent completions are finalized and
// skipped. After Shutdown, Next drains remaining events and then returns
// ErrShutdown.
func (q *Queue) Next(ctx context.Context) (any, bool, error) {
	for {
		// Prefer already-posted events over shutdown.
		select {
		case ev := <-q.events:
			if out, ok, visible := finalize(ev); visible {
				return out, ok, nil
			}
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case ev := <-q.events:
			if out, ok, visible := finalize(ev); visible {
				return out, ok, nil
			}
		case <-q.done:
			select {
			case ev := <-q.events:
				if out, ok, visible := finalize(ev); visible {
					return out, ok, nil
				}
			default:
				return nil, false, ErrShutdown
			}
		}
	}
}

func finalize(ev event) (out any, ok bool, visible bool) {
	ok = ev.ok
	out, visible = ev.tag.FinalizeResult(&ok)
	return out, ok, visible
}

// Shutdown stops the queue. Pending events remain poppable via Next until
// drained; further Posts fail with ErrShutdown.
func (q *Queue) Shutdown() {
	q.once.Do(func() { close(q.done) })
}
