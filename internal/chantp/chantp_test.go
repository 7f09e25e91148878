package chantp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"github.com/hanpama/callwire/internal/callops"
	"github.com/hanpama/callwire/internal/codec"
	"github.com/hanpama/callwire/internal/eventbus"
	"github.com/hanpama/callwire/internal/events"
	"github.com/hanpama/callwire/internal/rpcstatus"
	"github.com/hanpama/callwire/internal/wire"
)

type echoReq struct {
	Text string
}

// serveOnce is the minimal unary server: one receive batch, one reply batch.
func serveOnce(ctx context.Context, t *testing.T, p *Pair, reply func(req []byte) ([]byte, rpcstatus.Status)) {
	t.Helper()

	var (
		reqBytes []byte
		clientMD metadata.MD
		recvMsg  callops.GenericRecvMessage
		recvMD   callops.RecvInitialMetadata
	)
	recvMsg.Set(callops.DecodeInto(&reqBytes, codec.Raw{}))
	recvMD.Set(&clientMD)
	in := callops.NewOpSet(&recvMsg, &recvMD)
	p.Server.PerformOps(in)
	_, ok, err := p.ServerQueue.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, recvMsg.GotMessage)
	require.Equal(t, metadata.MD{"client": {"test"}}, clientMD)

	respBytes, st := reply(reqBytes)

	var (
		sendMD  callops.SendInitialMetadata
		sendMsg callops.SendMessage
		sendSt  callops.ServerSendStatus
	)
	sendMD.Set(metadata.Pairs("server", "chantp"))
	sendSt.Set(metadata.Pairs("trailer", "bye"), st)
	ops := []callops.Op{&sendMD, &sendSt}
	if respBytes != nil {
		require.NoError(t, sendMsg.Set(respBytes, codec.Raw{}))
		ops = append(ops, &sendMsg)
	}
	out := callops.NewOpSet(ops...)
	p.Server.PerformOps(out)
	_, ok, err = p.ServerQueue.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnaryEchoRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPair(ctx)
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOnce(ctx, t, p, func(req []byte) ([]byte, rpcstatus.Status) {
			return req, rpcstatus.OK
		})
	}()

	var (
		sendMD  callops.SendInitialMetadata
		sendMsg callops.SendMessage
		closeOp callops.ClientSendClose
		recvMD  callops.RecvInitialMetadata
		recvMsg callops.RecvMessage[echoReq]
		recvSt  callops.ClientRecvStatus
	)
	sendMD.Set(metadata.Pairs("client", "test"))
	require.NoError(t, sendMsg.Set(&echoReq{Text: "ping"}, codec.JSON{}))
	closeOp.Set()
	var initialMD, trailingMD metadata.MD
	recvMD.Set(&initialMD)
	var reply echoReq
	recvMsg.Set(&reply, codec.JSON{})
	var st rpcstatus.Status
	recvSt.Set(&trailingMD, &st)

	set := callops.NewOpSet(&sendMD, &sendMsg, &recvMsg, &closeOp, &recvMD, &recvSt)
	p.Client.PerformOps(set)

	out, ok, err := p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, set, out)

	require.True(t, recvMsg.GotMessage)
	require.Equal(t, echoReq{Text: "ping"}, reply)
	require.Equal(t, metadata.MD{"server": {"chantp"}}, initialMD)
	require.Equal(t, metadata.MD{"trailer": {"bye"}}, trailingMD)
	require.Equal(t, rpcstatus.OK, st)
	<-done
}

func TestSilentSendBatchNeverSurfaces(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPair(ctx)
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOnce(ctx, t, p, func(req []byte) ([]byte, rpcstatus.Status) {
			return req, rpcstatus.OK
		})
	}()

	// The send side runs as a silent batch: its side effects (the request
	// reaching the server) must happen without a user-visible completion.
	var (
		sendMD  callops.SendInitialMetadata
		sendMsg callops.SendMessage
		closeOp callops.ClientSendClose
	)
	sendMD.Set(metadata.Pairs("client", "test"))
	require.NoError(t, sendMsg.Set(&echoReq{Text: "quiet"}, codec.JSON{}))
	closeOp.Set()
	silent := callops.NewSilentOpSet(&sendMD, &sendMsg, &closeOp)
	p.Client.PerformOps(silent)

	var (
		recvMD  callops.RecvInitialMetadata
		recvMsg callops.RecvMessage[echoReq]
		recvSt  callops.ClientRecvStatus
	)
	var initialMD, trailingMD metadata.MD
	recvMD.Set(&initialMD)
	var reply echoReq
	recvMsg.Set(&reply, codec.JSON{})
	var st rpcstatus.Status
	recvSt.Set(&trailingMD, &st)
	visible := callops.NewOpSet(&recvMsg, &recvMD, &recvSt)
	p.Client.PerformOps(visible)

	// Only the visible batch may surface, regardless of posting order.
	out, ok, err := p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, visible, out)
	require.Equal(t, echoReq{Text: "quiet"}, reply)
	require.Equal(t, rpcstatus.OK, st)
	<-done

	// Nothing else surfaces; the silent completion is consumed on the way.
	short, shortCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer shortCancel()
	_, _, err = p.ClientQueue.Next(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStatusOnlyResponseFailsPendingReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPair(ctx)
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOnce(ctx, t, p, func(req []byte) ([]byte, rpcstatus.Status) {
			return nil, rpcstatus.New(codes.NotFound, "no such thing")
		})
	}()

	var (
		sendMD  callops.SendInitialMetadata
		sendMsg callops.SendMessage
		closeOp callops.ClientSendClose
		recvMD  callops.RecvInitialMetadata
		recvMsg callops.RecvMessage[echoReq]
		recvSt  callops.ClientRecvStatus
	)
	sendMD.Set(metadata.Pairs("client", "test"))
	require.NoError(t, sendMsg.Set(&echoReq{Text: "ping"}, codec.JSON{}))
	closeOp.Set()
	var initialMD, trailingMD metadata.MD
	recvMD.Set(&initialMD)
	var reply echoReq
	recvMsg.Set(&reply, codec.JSON{})
	var st rpcstatus.Status
	recvSt.Set(&trailingMD, &st)

	set := callops.NewOpSet(&sendMD, &sendMsg, &recvMsg, &closeOp, &recvMD, &recvSt)
	p.Client.PerformOps(set)

	_, ok, err := p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	// No reply payload was delivered for an armed receive, so the batch is
	// downgraded, while the application-level status still comes through.
	require.False(t, ok)
	require.False(t, recvMsg.GotMessage)
	require.Equal(t, rpcstatus.New(codes.NotFound, "no such thing"), st)
	<-done
}

func TestCloseFailsParkedReceives(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPair(ctx)

	var (
		recvMsg callops.RecvMessage[echoReq]
		recvSt  callops.ClientRecvStatus
	)
	var reply echoReq
	recvMsg.Set(&reply, codec.JSON{})
	var st rpcstatus.Status
	recvSt.Set(nil, &st)
	set := callops.NewOpSet(&recvMsg, &recvSt)
	p.Client.PerformOps(set)

	// Give the receives a moment to park, then tear the call down.
	time.Sleep(10 * time.Millisecond)
	p.Close()

	_, ok, err := p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, recvMsg.GotMessage)
	require.Equal(t, codes.Canceled, st.Code)
}

func TestMaxRecvBytesBoundsClientReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPair(ctx, WithMaxRecvBytes(8))
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Reply with a payload larger than the negotiated bound.
		serveOnce(ctx, t, p, func(req []byte) ([]byte, rpcstatus.Status) {
			return make([]byte, 64), rpcstatus.OK
		})
	}()

	var (
		sendMD  callops.SendInitialMetadata
		sendMsg callops.SendMessage
		closeOp callops.ClientSendClose
		recvMsg callops.GenericRecvMessage
		recvSt  callops.ClientRecvStatus
	)
	sendMD.Set(metadata.Pairs("client", "test"))
	require.NoError(t, sendMsg.Set([]byte("hi"), codec.Raw{}))
	closeOp.Set()
	var respBytes []byte
	recvMsg.Set(callops.DecodeInto(&respBytes, codec.Raw{}))
	var st rpcstatus.Status
	recvSt.Set(nil, &st)

	set := callops.NewOpSet(&sendMD, &sendMsg, &recvMsg, &closeOp, &recvSt)
	p.Client.PerformOps(set)

	_, ok, err := p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok, "oversized payload must downgrade the batch")
	require.False(t, recvMsg.GotMessage)
	require.Equal(t, rpcstatus.OK, st, "application status is independent of the size failure")
	<-done
}

func TestSendMessageAfterCloseFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPair(ctx)
	defer p.Close()

	var closeOp callops.ClientSendClose
	closeOp.Set()
	first := callops.NewOpSet(&closeOp)
	p.Client.PerformOps(first)
	_, ok, err := p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	var sendMsg callops.SendMessage
	require.NoError(t, sendMsg.Set(&echoReq{Text: "late"}, codec.JSON{}))
	second := callops.NewOpSet(&sendMsg)
	p.Client.PerformOps(second)
	_, ok, err = p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok, "sending after half-close must fail the batch")
}

func TestLifecycleEventsPublished(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)

	var (
		mu        sync.Mutex
		starts    []events.CallStart
		ends      []events.CallEnd
		submits   []events.BatchSubmit
		completes []events.BatchComplete
	)
	defer eventbus.Subscribe(func(_ context.Context, e events.CallStart) {
		mu.Lock()
		starts = append(starts, e)
		mu.Unlock()
	})()
	defer eventbus.Subscribe(func(_ context.Context, e events.CallEnd) {
		mu.Lock()
		ends = append(ends, e)
		mu.Unlock()
	})()
	defer eventbus.Subscribe(func(_ context.Context, e events.BatchSubmit) {
		mu.Lock()
		submits = append(submits, e)
		mu.Unlock()
	})()
	defer eventbus.Subscribe(func(_ context.Context, e events.BatchComplete) {
		mu.Lock()
		completes = append(completes, e)
		mu.Unlock()
	})()

	p := NewPair(ctx)
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOnce(ctx, t, p, func(req []byte) ([]byte, rpcstatus.Status) {
			return req, rpcstatus.OK
		})
	}()

	var (
		sendMD  callops.SendInitialMetadata
		sendMsg callops.SendMessage
		closeOp callops.ClientSendClose
		recvMsg callops.RecvMessage[echoReq]
		recvSt  callops.ClientRecvStatus
	)
	sendMD.Set(metadata.Pairs("client", "test"))
	require.NoError(t, sendMsg.Set(&echoReq{Text: "observe"}, codec.JSON{}))
	closeOp.Set()
	var reply echoReq
	recvMsg.Set(&reply, codec.JSON{})
	var st rpcstatus.Status
	recvSt.Set(nil, &st)

	set := callops.NewOpSet(&sendMD, &sendMsg, &recvMsg, &closeOp, &recvSt)
	p.Client.PerformOps(set)
	_, ok, err := p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	<-done

	mu.Lock()
	require.Len(t, starts, 1)
	callID := starts[0].CallID
	require.Len(t, submits, 3)
	for _, e := range submits {
		require.Equal(t, callID, e.CallID)
		require.NotEmpty(t, e.Ops)
	}
	require.Equal(t, wire.SendInitialMetadata, submits[2].Ops[0])
	mu.Unlock()

	// Completions and the call-end event land on the transport goroutines.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completes) == 3 && len(ends) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, e := range completes {
		require.Equal(t, callID, e.CallID)
		require.True(t, e.OK)
	}
	require.Equal(t, events.CallEnd{CallID: callID, Code: codes.OK}, ends[0])
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPair(ctx)
	p.Close()
	p.Close()

	var recvSt callops.ClientRecvStatus
	var st rpcstatus.Status
	recvSt.Set(nil, &st)
	set := callops.NewOpSet(&recvSt)
	p.Client.PerformOps(set)

	// The synthesized status resolves a status-only batch normally.
	_, ok, err := p.ClientQueue.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, codes.Canceled, st.Code)
	require.Equal(t, "call closed", st.Message)
}
