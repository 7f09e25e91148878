package callops

import (
	"github.com/hanpama/callwire/internal/cq"
	"github.com/hanpama/callwire/internal/wire"
)

// Set is the batch-side contract a Hook submits: build the native descriptor
// array once, then act as the batch's completion tag. Satisfied by OpSet and
// SilentOpSet.
type Set interface {
	cq.Tag
	FillOps(ops *[]wire.Op)
	SetMaxRecvBytes(n int)
	Kinds() []wire.OpKind
}

// Hook is implemented by a call's owner — the client channel or the server —
// and performs the native submission of a batch against a call. The hook
// must associate the set itself as the completion tag posted to the call's
// queue once every op in the batch has been executed.
type Hook interface {
	PerformOpsOnCall(set Set, call *Call)
}

// Call binds an opaque native call object to the completion queue its
// batches complete on and to the Hook that submits them. The native object
// is exclusively owned by the RPC's originator for the call's lifetime; the
// queue and hook are shared, not owned, and must outlive the handle. A Call
// outlives every OpSet submitted through it.
type Call struct {
	hook         Hook
	queue        *cq.Queue
	native       any
	maxRecvBytes int
}

// NewCall builds a handle with no receive size bound.
func NewCall(native any, hook Hook, queue *cq.Queue) *Call {
	return NewCallWithLimit(native, hook, queue, -1)
}

// NewCallWithLimit builds a handle whose receive ops enforce maxRecvBytes
// during finalize. Negative means unbounded.
func NewCallWithLimit(native any, hook Hook, queue *cq.Queue, maxRecvBytes int) *Call {
	return &Call{hook: hook, queue: queue, native: native, maxRecvBytes: maxRecvBytes}
}

// PerformOps submits one batch. It propagates the call's receive size bound
// into the set and delegates submission to the hook; the handle itself
// performs no I/O and does not block.
func (c *Call) PerformOps(set Set) {
	set.SetMaxRecvBytes(c.maxRecvBytes)
	c.hook.PerformOpsOnCall(set, c)
}

// Native returns the transport-owned call object.
func (c *Call) Native() any { return c.native }

// Queue returns the completion queue batches on this call complete on.
func (c *Call) Queue() *cq.Queue { return c.queue }

// MaxRecvBytes returns the negotiated receive size bound, negative when
// unbounded.
func (c *Call) MaxRecvBytes() int { return c.maxRecvBytes }
