// Package callops assembles heterogeneous call operations into atomic
// batches and turns raw transport completions back into typed results.
//
// A caller arms any subset of ops (send initial metadata, send a message,
// receive a message, close the send side, send or receive terminal status,
// receive initial metadata), composes them into an OpSet, and submits the
// set exactly once through a Call handle. The owning transport builds the
// native descriptor array from the set and later posts the set to the
// call's completion queue; the queue consumer's pop drives FinalizeResult,
// which extracts typed values, fills caller-owned destinations, and
// aggregates the batch's single success flag.
//
// Ordering is structural: descriptors are contributed, and later finalized,
// in the fixed slot order
//
//	send-initial-metadata, send-message, recv-message,
//	send-close-or-status, recv-initial-metadata, recv-status-on-client
//
// regardless of the order ops were armed in, so the protocol's required
// sequencing holds for whichever subset is configured.
//
// An OpSet is single-use: armed, submitted once, finalized once. Submitting
// or finalizing twice is a contract violation and panics.
package callops
