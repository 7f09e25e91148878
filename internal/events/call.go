package events

import (
	"google.golang.org/grpc/codes"
)

// CallStart is emitted when a call pair is created.
type CallStart struct {
	CallID int64
}

// CallEnd is emitted once per call, when the terminal status is delivered
// or the call is torn down.
type CallEnd struct {
	CallID int64
	Code   codes.Code
}
