// Package wire defines the untyped operation descriptors exchanged between
// the batching core and a transport. A transport consumes []Op, executes each
// descriptor against its native call, writes results into the receive
// destinations, and posts the batch's completion tag to the owning queue.
//
// Everything here is deliberately dumb data: no methods with behavior, no
// knowledge of codecs or metadata map types. The typed view lives in
// internal/callops.
package wire

// OpKind identifies one native call operation.
type OpKind int

const (
	SendInitialMetadata OpKind = iota
	SendMessage
	SendCloseFromClient
	SendStatusFromServer
	RecvInitialMetadata
	RecvMessage
	RecvStatusOnClient
	// RecvCloseOnServer is part of the wire vocabulary for the server-side
	// counterpart of this core. No client-facing op emits it.
	RecvCloseOnServer
)

var opKindNames = map[OpKind]string{
	SendInitialMetadata:  "send-initial-metadata",
	SendMessage:          "send-message",
	SendCloseFromClient:  "send-close-from-client",
	SendStatusFromServer: "send-status-from-server",
	RecvInitialMetadata:  "recv-initial-metadata",
	RecvMessage:          "recv-message",
	RecvStatusOnClient:   "recv-status-on-client",
	RecvCloseOnServer:    "recv-close-on-server",
}

func (k OpKind) String() string {
	if s, ok := opKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Buffer is an opaque serialized payload. A nil *Buffer in a receive
// destination means no payload was delivered; a non-nil *Buffer with empty
// Data is a delivered zero-length payload. The two are not the same thing.
type Buffer struct {
	Data []byte
}

// Len reports the payload size in bytes. Safe on a nil receiver.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// MetadataEntry is one key/value pair. Duplicate keys are permitted and
// order is preserved as given by the sender.
type MetadataEntry struct {
	Key   string
	Value string
}

// MetadataArray is a receive destination for metadata entries. It is owned
// by the receiving op until that op's finalize step drains it.
type MetadataArray struct {
	Entries []MetadataEntry
}

// RecvMessageDst is the receive destination for one message payload. The
// transport stores the delivered buffer in Buf; the receiving op consumes
// and clears it during finalize.
type RecvMessageDst struct {
	Buf *Buffer
}

// RecvStatusDst is the receive destination for a call's terminal status.
// Details is nil when the transport delivered no detail string, which the
// consumer must read as "".
type RecvStatusDst struct {
	Metadata MetadataArray
	Code     int
	Details  *string
}

// Op is one native operation descriptor. Kind selects which of the
// remaining fields are meaningful; the rest stay zero.
type Op struct {
	Kind OpKind

	// SendInitialMetadata
	Metadata []MetadataEntry

	// SendMessage
	SendBuf *Buffer

	// SendStatusFromServer
	TrailingMetadata []MetadataEntry
	StatusCode       int
	StatusDetails    *string

	// RecvInitialMetadata
	RecvMetadata *MetadataArray

	// RecvMessage
	RecvMsg *RecvMessageDst

	// RecvStatusOnClient
	RecvStatus *RecvStatusDst
}
