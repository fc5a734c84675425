package domain

import "fmt"

// Status is a result code carried in node headers and returned by remote
// entry points. Non-negative values returned by an entry point are its own
// result (for the graph manager, the number of nodes processed).
type Status int32

const (
	StatusSuccess          Status = 1
	StatusFailure          Status = 0
	StatusVersionMismatch  Status = -1
	StatusNotImplemented   Status = -7
	StatusInvalidParameter Status = -8
	StatusNoMemory         Status = -9
	StatusNoResource       Status = -10
)

// Transport level statuses. Anything at or below StatusTransportFailure was
// produced by the call machinery, not by the remote function.
const (
	StatusTransportFailure Status = -100
	StatusTimeout          Status = -101
	StatusUnknownFunction  Status = -102
	StatusCoreUnavailable  Status = -103
)

// Transport reports whether s lies in the transport range.
func (s Status) Transport() bool { return s <= StatusTransportFailure }

// OK reports whether s is StatusSuccess.
func (s Status) OK() bool { return s == StatusSuccess }

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusVersionMismatch:
		return "version mismatch"
	case StatusNotImplemented:
		return "not implemented"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusNoMemory:
		return "no memory"
	case StatusNoResource:
		return "no resource"
	case StatusTransportFailure:
		return "transport failure"
	case StatusTimeout:
		return "timeout"
	case StatusUnknownFunction:
		return "unknown function"
	case StatusCoreUnavailable:
		return "core unavailable"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}
