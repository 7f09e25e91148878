package callops

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"github.com/hanpama/callwire/internal/codec"
	"github.com/hanpama/callwire/internal/rpcstatus"
	"github.com/hanpama/callwire/internal/wire"
)

// slot is an op's fixed position within an OpSet. Contribution and
// finalization both walk slots in declaration order.
type slot int

const (
	slotSendInitialMetadata slot = iota
	slotSendMessage
	slotRecvMessage
	slotSendCloseOrStatus
	slotRecvInitialMetadata
	slotRecvStatus
	numSlots
)

// Op is one composable unit of call behavior. Each op type occupies a fixed
// slot; the zero value of every op is idle and contributes nothing until
// armed with Set.
type Op interface {
	// addTo appends the op's native descriptor iff armed.
	addTo(ops *[]wire.Op)
	// finish consumes the post-completion result iff armed. It may flip
	// *ok from true to false, never the reverse.
	finish(ok *bool, maxRecvBytes int)
	slot() slot
}

// SendInitialMetadata sends the call's initial metadata entries.
type SendInitialMetadata struct {
	send    bool
	entries []wire.MetadataEntry
}

// Set arms the op with md. Duplicate keys are permitted.
func (o *SendInitialMetadata) Set(md metadata.MD) {
	o.send = true
	o.entries = metadataEntries(md)
}

func (o *SendInitialMetadata) addTo(ops *[]wire.Op) {
	if !o.send {
		return
	}
	*ops = append(*ops, wire.Op{Kind: wire.SendInitialMetadata, Metadata: o.entries})
}

func (o *SendInitialMetadata) finish(*bool, int) {}

func (o *SendInitialMetadata) slot() slot { return slotSendInitialMetadata }

// SendMessage sends one serialized message payload.
type SendMessage struct {
	buf *wire.Buffer
}

// Set serializes msg with c and arms the op. On error the op stays idle and
// the caller must not submit the batch.
func (o *SendMessage) Set(msg any, c codec.Codec) error {
	data, err := c.Marshal(msg)
	if err != nil {
		return fmt.Errorf("callops: send message: %w", err)
	}
	o.buf = &wire.Buffer{Data: data}
	return nil
}

func (o *SendMessage) addTo(ops *[]wire.Op) {
	if o.buf == nil {
		return
	}
	*ops = append(*ops, wire.Op{Kind: wire.SendMessage, SendBuf: o.buf})
}

// finish drops the send buffer so a finalized batch does not pin the payload.
func (o *SendMessage) finish(*bool, int) { o.buf = nil }

func (o *SendMessage) slot() slot { return slotSendMessage }

// RecvMessage receives one message and decodes it into a typed destination.
// After finalize, GotMessage reports whether a payload was delivered and
// decoded successfully.
type RecvMessage[T any] struct {
	GotMessage bool

	dst   *T
	codec codec.Codec
	recv  wire.RecvMessageDst
}

// Set arms the op with a destination and the codec bound to it.
func (o *RecvMessage[T]) Set(dst *T, c codec.Codec) {
	if dst == nil {
		panic("callops: RecvMessage destination must not be nil")
	}
	o.dst = dst
	o.codec = c
}

func (o *RecvMessage[T]) addTo(ops *[]wire.Op) {
	if o.dst == nil {
		return
	}
	*ops = append(*ops, wire.Op{Kind: wire.RecvMessage, RecvMsg: &o.recv})
}

func (o *RecvMessage[T]) finish(ok *bool, maxRecvBytes int) {
	if o.dst == nil {
		return
	}
	o.GotMessage, *ok = finishRecv(*ok, &o.recv, maxRecvBytes, func(data []byte, bound int) rpcstatus.Status {
		return codec.UnmarshalBounded(o.codec, data, o.dst, bound)
	})
}

func (o *RecvMessage[T]) slot() slot { return slotRecvMessage }

// DecodeFunc decodes one delivered payload under the batch's size bound.
type DecodeFunc func(data []byte, maxRecvBytes int) rpcstatus.Status

// DecodeInto builds a DecodeFunc that decodes into dst using c.
func DecodeInto(dst any, c codec.Codec) DecodeFunc {
	return func(data []byte, maxRecvBytes int) rpcstatus.Status {
		return codec.UnmarshalBounded(c, data, dst, maxRecvBytes)
	}
}

// GenericRecvMessage is the type-erased receive: the decode step is captured
// as a closure at arm time, so one op type serves any message category.
type GenericRecvMessage struct {
	GotMessage bool

	decode DecodeFunc
	recv   wire.RecvMessageDst
}

// Set arms the op with the captured decode step.
func (o *GenericRecvMessage) Set(decode DecodeFunc) {
	if decode == nil {
		panic("callops: GenericRecvMessage decode func must not be nil")
	}
	o.decode = decode
}

func (o *GenericRecvMessage) addTo(ops *[]wire.Op) {
	if o.decode == nil {
		return
	}
	*ops = append(*ops, wire.Op{Kind: wire.RecvMessage, RecvMsg: &o.recv})
}

func (o *GenericRecvMessage) finish(ok *bool, maxRecvBytes int) {
	if o.decode == nil {
		return
	}
	o.GotMessage, *ok = finishRecv(*ok, &o.recv, maxRecvBytes, o.decode)
}

func (o *GenericRecvMessage) slot() slot { return slotRecvMessage }

// finishRecv applies the shared receive policy: a missing buffer under a
// successful completion is an error; a failed completion releases the buffer
// without decoding; a decode or size-bound failure downgrades success.
func finishRecv(ok bool, recv *wire.RecvMessageDst, maxRecvBytes int, decode DecodeFunc) (gotMessage, stillOK bool) {
	buf := recv.Buf
	recv.Buf = nil
	if buf == nil {
		return false, false
	}
	if !ok {
		return false, false
	}
	if st := decode(buf.Data, maxRecvBytes); !st.IsOK() {
		return false, false
	}
	return true, true
}

// ClientSendClose half-closes the client's send side. No payload.
type ClientSendClose struct {
	send bool
}

// Set arms the op.
func (o *ClientSendClose) Set() { o.send = true }

func (o *ClientSendClose) addTo(ops *[]wire.Op) {
	if !o.send {
		return
	}
	*ops = append(*ops, wire.Op{Kind: wire.SendCloseFromClient})
}

func (o *ClientSendClose) finish(*bool, int) {}

func (o *ClientSendClose) slot() slot { return slotSendCloseOrStatus }

// ServerSendStatus sends the call's terminal status and trailing metadata.
type ServerSendStatus struct {
	send    bool
	entries []wire.MetadataEntry
	code    int
	details string
}

// Set arms the op with trailing metadata and the status to send.
func (o *ServerSendStatus) Set(trailing metadata.MD, st rpcstatus.Status) {
	o.send = true
	o.entries = metadataEntries(trailing)
	o.code = int(st.Code)
	o.details = st.Message
}

func (o *ServerSendStatus) addTo(ops *[]wire.Op) {
	if !o.send {
		return
	}
	var details *string
	if o.details != "" {
		details = &o.details
	}
	*ops = append(*ops, wire.Op{
		Kind:             wire.SendStatusFromServer,
		TrailingMetadata: o.entries,
		StatusCode:       o.code,
		StatusDetails:    details,
	})
}

func (o *ServerSendStatus) finish(*bool, int) {}

func (o *ServerSendStatus) slot() slot { return slotSendCloseOrStatus }

// RecvInitialMetadata fills a caller-owned map with the initial metadata the
// peer sent.
type RecvInitialMetadata struct {
	dst *metadata.MD
	arr wire.MetadataArray
}

// Set arms the op with the destination map.
func (o *RecvInitialMetadata) Set(dst *metadata.MD) {
	if dst == nil {
		panic("callops: RecvInitialMetadata destination must not be nil")
	}
	o.dst = dst
}

func (o *RecvInitialMetadata) addTo(ops *[]wire.Op) {
	if o.dst == nil {
		return
	}
	*ops = append(*ops, wire.Op{Kind: wire.RecvInitialMetadata, RecvMetadata: &o.arr})
}

func (o *RecvInitialMetadata) finish(*bool, int) {
	if o.dst == nil {
		return
	}
	fillMetadata(&o.arr, o.dst)
}

func (o *RecvInitialMetadata) slot() slot { return slotRecvInitialMetadata }

// ClientRecvStatus receives the call's terminal status and trailing
// metadata on the client.
type ClientRecvStatus struct {
	trailing *metadata.MD
	dst      *rpcstatus.Status
	recv     wire.RecvStatusDst
}

// Set arms the op. trailing may be nil when the caller has no use for
// trailing metadata; dst must not be.
func (o *ClientRecvStatus) Set(trailing *metadata.MD, dst *rpcstatus.Status) {
	if dst == nil {
		panic("callops: ClientRecvStatus destination must not be nil")
	}
	o.trailing = trailing
	o.dst = dst
}

func (o *ClientRecvStatus) addTo(ops *[]wire.Op) {
	if o.dst == nil {
		return
	}
	*ops = append(*ops, wire.Op{Kind: wire.RecvStatusOnClient, RecvStatus: &o.recv})
}

// finish runs whenever armed and ignores the transport outcome: a call that
// failed in transport still yields a meaningful application-level status.
func (o *ClientRecvStatus) finish(*bool, int) {
	if o.dst == nil {
		return
	}
	if o.trailing != nil {
		fillMetadata(&o.recv.Metadata, o.trailing)
	}
	details := ""
	if o.recv.Details != nil {
		details = *o.recv.Details
	}
	*o.dst = rpcstatus.New(codes.Code(o.recv.Code), details)
}

func (o *ClientRecvStatus) slot() slot { return slotRecvStatus }
