// Package rpcstatus carries the (code, message) outcome of a call. A Status
// is produced either locally, when serialization or a size bound fails, or by
// the transport when the client receives the call's terminal status.
package rpcstatus

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// Status is an application-level call outcome. The zero value is OK.
type Status struct {
	Code    codes.Code
	Message string
}

// OK is the successful status.
var OK = Status{Code: codes.OK}

// New returns a Status with the given code and message.
func New(code codes.Code, message string) Status {
	return Status{Code: code, Message: message}
}

// Newf returns a Status with a formatted message.
func Newf(code codes.Code, format string, args ...any) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsOK reports whether the status code is codes.OK.
func (s Status) IsOK() bool { return s.Code == codes.OK }

// Err returns nil for an OK status and a descriptive error otherwise.
func (s Status) Err() error {
	if s.IsOK() {
		return nil
	}
	return &statusError{s}
}

func (s Status) String() string {
	if s.IsOK() {
		return "OK"
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

type statusError struct {
	status Status
}

func (e *statusError) Error() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", e.status.Code, e.status.Message)
}
