// Package chantp links a client call and a server call through shared
// in-process state and implements the submission hook for both ends. It is
// the transport collaborator behind internal/callops: a batch submitted on
// either end executes against the shared call, and its completion tag is
// posted to the submitting end's queue with the batch's raw outcome.
//
// chantp moves buffers and metadata entries; it never looks inside a
// payload. No wire protocol, flow control, or retries.
package chantp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/hanpama/callwire/internal/callid"
	"github.com/hanpama/callwire/internal/callops"
	"github.com/hanpama/callwire/internal/cq"
	"github.com/hanpama/callwire/internal/eventbus"
	"github.com/hanpama/callwire/internal/events"
	"github.com/hanpama/callwire/internal/wire"
)

// Pair is one in-process call with a client end and a server end. Each end
// owns its handle and pops completions from its own queue; the RPC's two
// sides may live on different goroutines.
type Pair struct {
	Client      *callops.Call
	ClientQueue *cq.Queue
	Server      *callops.Call
	ServerQueue *cq.Queue

	ctx     context.Context
	callID  int64
	st      *state
	seq     atomic.Int64
	endOnce sync.Once
}

// end is the opaque native call object bound into each handle.
type end struct {
	server bool
}

// NewPair creates one in-process call. ctx scopes the pair's lifecycle
// events; a call id is attached when the context carries none.
func NewPair(ctx context.Context, opts ...Option) *Pair {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	id, ok := callid.FromContext(ctx)
	if !ok {
		ctx, id = callid.NewContext(ctx)
	}
	p := &Pair{
		ClientQueue: cq.NewSized(o.QueueDepth),
		ServerQueue: cq.NewSized(o.QueueDepth),
		ctx:         ctx,
		callID:      id,
		st:          newState(),
	}
	h := &hook{p: p}
	p.Client = callops.NewCallWithLimit(&end{server: false}, h, p.ClientQueue, o.MaxRecvBytes)
	p.Server = callops.NewCallWithLimit(&end{server: true}, h, p.ServerQueue, o.MaxRecvBytes)
	eventbus.Publish(ctx, events.CallStart{CallID: id})
	return p
}

// Close tears the pair down: parked receives fail, and a Canceled status is
// synthesized when the server never sent one. The completion queues stay
// usable so in-flight batches can still surface their failures.
func (p *Pair) Close() {
	if p.st.close(int(codes.Canceled), "call closed") {
		p.emitEnd(codes.Canceled)
	}
}

func (p *Pair) emitEnd(code codes.Code) {
	p.endOnce.Do(func() {
		eventbus.Publish(p.ctx, events.CallEnd{CallID: p.callID, Code: code})
	})
}

type hook struct {
	p *Pair
}

// PerformOpsOnCall builds the native array from the set and executes it on
// its own goroutine; submission never blocks. The set itself is posted as
// the batch's completion tag once every op has resolved.
func (h *hook) PerformOpsOnCall(set callops.Set, call *callops.Call) {
	e := call.Native().(*end)
	kinds := set.Kinds()
	var ops []wire.Op
	set.FillOps(&ops)
	seq := h.p.seq.Add(1)
	eventbus.Publish(h.p.ctx, events.BatchSubmit{CallID: h.p.callID, Seq: seq, Ops: kinds})
	start := time.Now()
	queue := call.Queue()
	go func() {
		ok := h.p.st.run(e.server, ops)
		_ = queue.Post(set, ok)
		eventbus.Publish(h.p.ctx, events.BatchComplete{
			CallID:   h.p.callID,
			Seq:      seq,
			Ops:      kinds,
			OK:       ok,
			Duration: time.Since(start),
		})
		if ok && e.server {
			for i := range ops {
				if ops[i].Kind == wire.SendStatusFromServer {
					h.p.emitEnd(codes.Code(ops[i].StatusCode))
				}
			}
		}
	}()
}
