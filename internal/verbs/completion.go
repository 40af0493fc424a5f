// File: internal/verbs/completion.go
// Author: momentics <momentics@gmail.com>
//
// Completion tagged union, grounded on the teacher's api/poll.go
// Event-as-sum-type idiom: a discriminant plus a small fixed payload,
// matched exhaustively by callers instead of inspected via type switch on
// an interface.

package verbs

// Opcode discriminates the two completion kinds delivered by the software
// verbs engine, matching spec §4.1's opcode set exactly.
type Opcode int

const (
	OpWriteCompletedLocally Opcode = iota
	OpReceiveWithImmediate
)

func (op Opcode) String() string {
	switch op {
	case OpWriteCompletedLocally:
		return "write_completed_locally"
	case OpReceiveWithImmediate:
		return "receive_with_immediate"
	default:
		return "unknown_opcode"
	}
}

// Status discriminates success from a fatal transport failure. Spec §4.1:
// "Any non-success status is fatal."
type Status int

const (
	StatusSuccess Status = iota
	StatusError
)

// Completion is the payload surfaced by PollOnce.
type Completion struct {
	Status    Status
	Opcode    Opcode
	Immediate uint32
	Err       error // set when Status == StatusError
}
