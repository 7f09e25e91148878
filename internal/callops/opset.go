package callops

import (
	"fmt"

	"github.com/hanpama/callwire/internal/wire"
)

// OpSet composes up to six ops into one atomic batch. Unoccupied slots
// contribute nothing. The set itself is the default completion tag; use
// SetOutputTag to surface a different key.
//
// An OpSet is not safe for concurrent use and is single-use by contract:
// arm, submit once, finalize once.
type OpSet struct {
	slots        [numSlots]Op
	maxRecvBytes int
	returnTag    any
	submitted    bool
	finalized    bool
}

// NewOpSet places each op into its fixed slot. Configuring the same slot
// twice (including ClientSendClose together with ServerSendStatus, which
// share one) is a contract violation and panics.
func NewOpSet(ops ...Op) *OpSet {
	s := &OpSet{maxRecvBytes: -1}
	s.returnTag = s
	s.place(ops)
	return s
}

func (s *OpSet) place(ops []Op) {
	for _, op := range ops {
		if op == nil {
			continue
		}
		i := op.slot()
		if s.slots[i] != nil {
			panic(fmt.Sprintf("callops: slot %d configured twice", i))
		}
		s.slots[i] = op
	}
}

// SetOutputTag overrides the tag surfaced on finalize, letting a caller
// multiplex several batches' completions onto one observer key.
func (s *OpSet) SetOutputTag(tag any) { s.returnTag = tag }

// SetMaxRecvBytes sets the size bound receive ops enforce during finalize.
// Negative means unbounded. Call.PerformOps propagates the call's bound
// here before submission.
func (s *OpSet) SetMaxRecvBytes(n int) { s.maxRecvBytes = n }

// Kinds reports the armed ops' native kinds in contribution order, without
// consuming the set. Intended for instrumentation.
func (s *OpSet) Kinds() []wire.OpKind {
	var probe []wire.Op
	for _, op := range s.slots {
		if op != nil {
			op.addTo(&probe)
		}
	}
	kinds := make([]wire.OpKind, len(probe))
	for i, op := range probe {
		kinds[i] = op.Kind
	}
	return kinds
}

// FillOps appends the armed ops' native descriptors in fixed slot order and
// marks the set submitted. The resulting array length equals exactly the
// number of armed ops. Filling twice panics.
func (s *OpSet) FillOps(ops *[]wire.Op) {
	if s.submitted {
		panic("callops: op set submitted twice")
	}
	s.submitted = true
	for _, op := range s.slots {
		if op != nil {
			op.addTo(ops)
		}
	}
}

// FinalizeResult runs every armed op's finalize step in the same fixed slot
// order FillOps contributed in. Each step may flip *ok to false, never back
// to true. The configured return tag is surfaced as an externally visible
// completion.
func (s *OpSet) FinalizeResult(ok *bool) (out any, visible bool) {
	if !s.submitted {
		panic("callops: finalizing an unsubmitted op set")
	}
	if s.finalized {
		panic("callops: op set finalized twice")
	}
	s.finalized = true
	for _, op := range s.slots {
		if op != nil {
			op.finish(ok, s.maxRecvBytes)
		}
	}
	return s.returnTag, true
}

// SilentOpSet is an OpSet whose completion never surfaces to the queue
// consumer: finalize runs every op's side effects, then reports "not
// externally complete". Used to chain a batch whose result must be observed
// internally only.
type SilentOpSet struct {
	OpSet
}

// NewSilentOpSet composes ops exactly like NewOpSet.
func NewSilentOpSet(ops ...Op) *SilentOpSet {
	s := &SilentOpSet{}
	s.maxRecvBytes = -1
	s.returnTag = s
	s.place(ops)
	return s
}

func (s *SilentOpSet) FinalizeResult(ok *bool) (any, bool) {
	out, _ := s.OpSet.FinalizeResult(ok)
	return out, false
}
