package chantp

import (
	"sync"

	"github.com/hanpama/callwire/internal/wire"
)

// state is the shared core of one in-process call. Both ends mutate it
// under one mutex; receive ops park on the condition until the counterpart
// delivers or the call dies.
type state struct {
	mu   sync.Mutex
	cond *sync.Cond

	// client → server
	clientMD     []wire.MetadataEntry
	clientMDSet  bool
	toServer     []*wire.Buffer
	clientClosed bool

	// server → client
	serverMD      []wire.MetadataEntry
	serverMDSet   bool
	toClient      []*wire.Buffer
	statusSet     bool
	statusCode    int
	statusDetails *string
	statusMD      []wire.MetadataEntry

	dead bool
}

func newState() *state {
	s := &state{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// run executes one batch's descriptors. Send ops apply immediately in batch
// order, so metadata-before-message ordering is preserved on the wire;
// receive ops then resolve concurrently, each parking until its input is
// available. The result is the AND of every op's outcome and becomes the
// batch's raw completion flag.
func (s *state) run(serverSide bool, ops []wire.Op) bool {
	ok := true
	var recvs []*wire.Op
	for i := range ops {
		op := &ops[i]
		switch op.Kind {
		case wire.SendInitialMetadata, wire.SendMessage,
			wire.SendCloseFromClient, wire.SendStatusFromServer:
			if !s.execSend(serverSide, op) {
				ok = false
			}
		default:
			recvs = append(recvs, op)
		}
	}
	if len(recvs) == 0 {
		return ok
	}
	results := make([]bool, len(recvs))
	var wg sync.WaitGroup
	wg.Add(len(recvs))
	for i, op := range recvs {
		go func(i int, op *wire.Op) {
			defer wg.Done()
			results[i] = s.execRecv(serverSide, op)
		}(i, op)
	}
	wg.Wait()
	for _, r := range results {
		if !r {
			ok = false
		}
	}
	return ok
}

func (s *state) execSend(serverSide bool, op *wire.Op) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.cond.Broadcast()
	if s.dead {
		return false
	}
	switch op.Kind {
	case wire.SendInitialMetadata:
		if serverSide {
			s.serverMD = op.Metadata
			s.serverMDSet = true
		} else {
			s.clientMD = op.Metadata
			s.clientMDSet = true
		}
	case wire.SendMessage:
		if s.statusSet {
			return false // call already finished
		}
		buf := &wire.Buffer{Data: op.SendBuf.Data}
		if serverSide {
			s.toClient = append(s.toClient, buf)
		} else {
			if s.clientClosed {
				return false
			}
			s.toServer = append(s.toServer, buf)
		}
	case wire.SendCloseFromClient:
		if serverSide {
			return false
		}
		s.clientClosed = true
	case wire.SendStatusFromServer:
		if !serverSide || s.statusSet {
			return false
		}
		s.statusSet = true
		s.statusCode = op.StatusCode
		s.statusDetails = op.StatusDetails
		s.statusMD = op.TrailingMetadata
	}
	return true
}

func (s *state) execRecv(serverSide bool, op *wire.Op) bool {
	switch op.Kind {
	case wire.RecvInitialMetadata:
		return s.recvInitialMetadata(serverSide, op.RecvMetadata)
	case wire.RecvMessage:
		return s.recvMessage(serverSide, op.RecvMsg)
	case wire.RecvStatusOnClient:
		if serverSide {
			return false
		}
		return s.recvStatus(op.RecvStatus)
	case wire.RecvCloseOnServer:
		if !serverSide {
			return false
		}
		return s.recvClose()
	}
	return false
}

func (s *state) recvInitialMetadata(serverSide bool, dst *wire.MetadataArray) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if serverSide {
		for !(s.clientMDSet || s.clientClosed || s.dead) {
			s.cond.Wait()
		}
		if s.dead {
			return false
		}
		if s.clientMDSet {
			dst.Entries = append([]wire.MetadataEntry(nil), s.clientMD...)
		}
		return true
	}
	// A terminal status without initial metadata (trailers only) releases
	// the wait with an empty result.
	for !(s.serverMDSet || s.statusSet || s.dead) {
		s.cond.Wait()
	}
	if s.dead {
		return false
	}
	if s.serverMDSet {
		dst.Entries = append([]wire.MetadataEntry(nil), s.serverMD...)
	}
	return true
}

func (s *state) recvMessage(serverSide bool, dst *wire.RecvMessageDst) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if serverSide {
		for !(len(s.toServer) > 0 || s.clientClosed || s.statusSet || s.dead) {
			s.cond.Wait()
		}
		if s.dead {
			return false
		}
		if len(s.toServer) > 0 {
			dst.Buf = s.toServer[0]
			s.toServer = s.toServer[1:]
		}
		// End of the client's send side: complete with no payload and let
		// the receive op's finalize decide what that means.
		return true
	}
	for !(len(s.toClient) > 0 || s.statusSet || s.dead) {
		s.cond.Wait()
	}
	if s.dead {
		return false
	}
	if len(s.toClient) > 0 {
		dst.Buf = s.toClient[0]
		s.toClient = s.toClient[1:]
	}
	return true
}

func (s *state) recvStatus(dst *wire.RecvStatusDst) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !(s.statusSet || s.dead) {
		s.cond.Wait()
	}
	if !s.statusSet {
		return false
	}
	dst.Code = s.statusCode
	if s.statusDetails != nil {
		d := *s.statusDetails
		dst.Details = &d
	}
	dst.Metadata.Entries = append([]wire.MetadataEntry(nil), s.statusMD...)
	return true
}

func (s *state) recvClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !(s.clientClosed || s.dead) {
		s.cond.Wait()
	}
	return !s.dead
}

// close tears the call down. It reports whether a status had to be
// synthesized because the server never sent one.
func (s *state) close(code int, details string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.cond.Broadcast()
	if s.dead {
		return false
	}
	s.dead = true
	if s.statusSet {
		return false
	}
	s.statusSet = true
	s.statusCode = code
	s.statusDetails = &details
	return true
}
