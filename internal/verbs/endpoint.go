// File: internal/verbs/endpoint.go
// Author: momentics <momentics@gmail.com>
//
// Queue-pair endpoint and its state machine. Grounded on the teacher's
// reactor/epoll_reactor.go register/unregister/poll shape for the
// runtime plumbing and protocol/connection.go for connection-state
// handling; the state machine itself is spec §3's
// fresh -> init -> ready_to_receive -> ready_to_send -> error|closed.

package verbs

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/ringallreduce/api"
)

// EndpointState enumerates the queue-pair lifecycle from spec §3.
type EndpointState int

const (
	StateFresh EndpointState = iota
	StateInit
	StateReadyToReceive
	StateReadyToSend
	StateError
	StateClosed
)

func (s EndpointState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateInit:
		return "init"
	case StateReadyToReceive:
		return "ready_to_receive"
	case StateReadyToSend:
		return "ready_to_send"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Caps bounds outstanding work requests per spec §4.1: "N-1 outstanding
// receives plus one outstanding send."
type Caps struct {
	MaxSendWR int
	MaxRecvWR int
	MaxSendSGE int
	MaxRecvSGE int
}

// Info is the endpoint_info record (local identifier, queue-pair number,
// packet sequence number, global identifier) published to a peer during
// bootstrap.
type Info struct {
	LocalID uint16
	QPN     uint32
	PSN     uint32
	GID     [16]byte
}

// ReadyToReceiveParams carries the peer identifiers needed for the
// init -> ready_to_receive transition (spec §4.1).
type ReadyToReceiveParams struct {
	RemoteInfo  Info
	PathMTU     int
	MinRNRTimer int
}

// ReadyToSendParams carries the local sequence/retry parameters needed
// for the ready_to_receive -> ready_to_send transition (spec §4.1).
type ReadyToSendParams struct {
	RetryCount    int
	RNRRetryCount int
}

// Endpoint represents one reliable connection to one neighbor.
type Endpoint struct {
	device *Device
	pd     *ProtectionDomain
	cq     *CompletionQueue
	caps   Caps

	Local  Info
	Remote Info

	mu    sync.Mutex
	state EndpointState

	conn         net.Conn
	recvRegion   *Region
	recvCredits  chan struct{}
	readerDone   chan struct{}
	readerErr    atomic.Value // error
}

// CreateEndpoint allocates a fresh, unconnected endpoint with the given
// caps. The queue-pair number and packet-sequence number are generated
// locally and published over the side channel during bootstrap.
func CreateEndpoint(device *Device, pd *ProtectionDomain, cq *CompletionQueue, caps Caps) (*Endpoint, error) {
	if err := pd.checkOpen(); err != nil {
		return nil, err
	}
	if caps.MaxSendSGE != 1 || caps.MaxRecvSGE != 1 {
		return nil, api.NewError(api.ErrCodeBadArg, "max_send_sge and max_recv_sge must be 1")
	}
	var gid [16]byte
	if _, err := rand.Read(gid[:]); err != nil {
		return nil, api.Wrap(api.ErrCodeTransportInitFailed, "generating local gid", err)
	}
	var psnBuf [4]byte
	if _, err := rand.Read(psnBuf[:]); err != nil {
		return nil, api.Wrap(api.ErrCodeTransportInitFailed, "generating local psn", err)
	}
	ep := &Endpoint{
		device: device,
		pd:     pd,
		cq:     cq,
		caps:   caps,
		state:  StateFresh,
		Local: Info{
			LocalID: uint16(device.allocQPN()),
			QPN:     device.allocQPN(),
			PSN:     uint32(psnBuf[0])<<24 | uint32(psnBuf[1])<<16 | uint32(psnBuf[2])<<8 | uint32(psnBuf[3]),
			GID:     gid,
		},
		recvCredits: make(chan struct{}, caps.MaxRecvWR),
		readerDone:  make(chan struct{}),
	}
	return ep, nil
}

// State returns the current endpoint state.
func (ep *Endpoint) State() EndpointState {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.state
}

// Transition drives the endpoint's state machine. Order is strict per
// spec §4.1: init -> ready_to_receive -> ready_to_send. error is
// reachable from any non-terminal state and is itself terminal.
func (ep *Endpoint) Transition(target EndpointState, rtr *ReadyToReceiveParams, rts *ReadyToSendParams) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	valid := func(from, to EndpointState) bool {
		switch {
		case to == StateError:
			return from != StateClosed
		case from == StateFresh && to == StateInit:
			return true
		case from == StateInit && to == StateReadyToReceive:
			return true
		case from == StateReadyToReceive && to == StateReadyToSend:
			return true
		default:
			return false
		}
	}
	if !valid(ep.state, target) {
		return api.NewError(api.ErrCodeTransportInitFailed,
			fmt.Sprintf("invalid endpoint transition %s -> %s", ep.state, target))
	}
	switch target {
	case StateReadyToReceive:
		if rtr == nil {
			return api.NewError(api.ErrCodeBadArg, "ready_to_receive requires remote endpoint params")
		}
		ep.Remote = rtr.RemoteInfo
	case StateReadyToSend:
		if rts == nil {
			return api.NewError(api.ErrCodeBadArg, "ready_to_send requires local sequence params")
		}
	}
	ep.state = target
	return nil
}

// bindTransport attaches the reliable byte-stream connection and the
// local region into which incoming one-sided writes are applied. Called
// once bootstrap has handed off the established socket (spec §9: memory
// credentials "must be in hand before the first post_write_with_immediate",
// satisfied because bindTransport runs after ready_to_send).
func (ep *Endpoint) bindTransport(conn net.Conn, recvRegion *Region) {
	ep.mu.Lock()
	ep.conn = conn
	ep.recvRegion = recvRegion
	ep.mu.Unlock()
}

// Close marks the endpoint closed and closes its bound connection, if
// any. It does not pass through the error state, and it drains neither
// posted receive credits nor pending completions. Idempotent per the
// handle-level Testable Property 4.
func (ep *Endpoint) Close() error {
	ep.mu.Lock()
	conn := ep.conn
	already := ep.state == StateClosed
	ep.state = StateClosed
	ep.mu.Unlock()
	if already {
		return nil
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
