// File: internal/verbs/softverbs.go
// Author: momentics <momentics@gmail.com>
//
// Software emulation of one-sided write-with-immediate over a reliable
// byte stream. No cgo libibverbs binding exists anywhere in the retrieval
// pack, so this is the "NIC": the destination side's reader goroutine
// parses a small wire header, copies the payload directly into the
// destination region at the sender-chosen offset, and synthesizes a
// receive-with-immediate completion — the same role a real RDMA NIC plays
// when it services a write-with-immediate work request.

package verbs

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/momentics/ringallreduce/api"
)

const wireHeaderLen = 12 // destOffset(4) + length(4) + immediate(4), big-endian

// BindSend attaches conn as ep's outbound transport only, for an endpoint
// that posts writes but never receives on this connection (spec §4.7:
// each physical link carries traffic in one ring direction only, so the
// sending side's endpoint needs no receive region or reader goroutine).
func (ep *Endpoint) BindSend(conn net.Conn) {
	ep.bindTransport(conn, nil)
}

// StartReader attaches conn as the transport for ep and launches the
// background goroutine that applies incoming one-sided writes into
// recvRegion. Must be called only once ep has reached ready_to_send and
// the peer's memory credentials are not required locally (the sender
// encodes destination offsets the receiver already agrees on: chunk index
// times chunk byte width, identical on both ends).
func (ep *Endpoint) StartReader(conn net.Conn, recvRegion *Region) {
	ep.bindTransport(conn, recvRegion)
	go ep.readLoop(conn, recvRegion)
}

func (ep *Endpoint) readLoop(conn net.Conn, recvRegion *Region) {
	defer close(ep.readerDone)
	hdr := make([]byte, wireHeaderLen)
	for {
		if _, err := io.ReadFull(conn, hdr); err != nil {
			if err != io.EOF {
				ep.readerErr.Store(err)
			}
			return
		}
		destOffset := binary.BigEndian.Uint32(hdr[0:4])
		length := binary.BigEndian.Uint32(hdr[4:8])
		immediate := binary.BigEndian.Uint32(hdr[8:12])

		if int(destOffset)+int(length) > len(recvRegion.Data) {
			ep.readerErr.Store(api.NewError(api.ErrCodeTransportError, "incoming write exceeds region bounds"))
			ep.cq.push(Completion{Status: StatusError, Opcode: OpReceiveWithImmediate,
				Err: api.NewError(api.ErrCodeTransportError, "incoming write exceeds region bounds")})
			return
		}
		if _, err := io.ReadFull(conn, recvRegion.Data[destOffset:destOffset+length]); err != nil {
			ep.readerErr.Store(err)
			ep.cq.push(Completion{Status: StatusError, Opcode: OpReceiveWithImmediate, Err: err})
			return
		}

		// The write has landed; a completion is only surfaced once a
		// matching zero-length receive has been pre-posted (spec §4.1:
		// "the receive's only purpose is to consume the immediate").
		<-ep.recvCredits
		ep.cq.push(Completion{Status: StatusSuccess, Opcode: OpReceiveWithImmediate, Immediate: immediate})
	}
}

// PostReceive arms one pre-posted, zero-length, immediate-only receive on
// ep. Spec §4.1: "a receive of length zero is legal and mandatory here."
func (ep *Endpoint) PostReceive() error {
	if ep.State() != StateReadyToSend {
		return api.NewError(api.ErrCodeTransportError, "post_receive requires ready_to_send endpoint")
	}
	select {
	case ep.recvCredits <- struct{}{}:
		return nil
	default:
		return api.NewError(api.ErrCodeTransportError, "receive queue full")
	}
}

// PostWriteImmediate posts a one-sided write of src into the peer's region
// at remoteOffset, carrying immediate. Per spec §4.1, a local
// write-completed-locally completion is enqueued once the write is
// accepted by the transport.
func (ep *Endpoint) PostWriteImmediate(src []byte, remoteOffset int, immediate uint32) error {
	if ep.State() != StateReadyToSend {
		return api.NewError(api.ErrCodeTransportError, "post_write_with_immediate requires ready_to_send endpoint")
	}
	ep.mu.Lock()
	conn := ep.conn
	ep.mu.Unlock()
	if conn == nil {
		return api.NewError(api.ErrCodeTransportError, "endpoint has no bound transport")
	}

	hdr := make([]byte, wireHeaderLen)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(remoteOffset))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(src)))
	binary.BigEndian.PutUint32(hdr[8:12], immediate)

	if _, err := conn.Write(hdr); err != nil {
		ep.cq.push(Completion{Status: StatusError, Opcode: OpWriteCompletedLocally, Err: err})
		return api.Wrap(api.ErrCodeTransportError, "posting write header", err)
	}
	if _, err := conn.Write(src); err != nil {
		ep.cq.push(Completion{Status: StatusError, Opcode: OpWriteCompletedLocally, Err: err})
		return api.Wrap(api.ErrCodeTransportError, "posting write payload", err)
	}
	ep.cq.push(Completion{Status: StatusSuccess, Opcode: OpWriteCompletedLocally})
	return nil
}

// PollOnce polls ep's completion queue once, matching spec §4.1's
// "poll_once(cq) -> completion | empty".
func (ep *Endpoint) PollOnce() (Completion, bool) {
	return ep.cq.PollOnce()
}
