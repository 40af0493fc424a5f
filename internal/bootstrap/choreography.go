// File: internal/bootstrap/choreography.go
// Author: momentics <momentics@gmail.com>
//
// Side-channel bootstrap: establishes one reliable connection to the front
// neighbor and one to the back neighbor per spec §4.2, using the
// rank-0-connects-first / everyone-else-accepts-first choreography that
// avoids the N-way simultaneous-dial deadlock. Retry/backoff follows the
// teacher's bird-adapter reconnect loop (modules/route/bird-adapter/service.go
// in the wider retrieval pack), built on github.com/cenkalti/backoff/v5.

package bootstrap

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/momentics/ringallreduce/api"
	"github.com/momentics/ringallreduce/control"
	"github.com/momentics/ringallreduce/internal/verbs"
)

// NeighborConn is one established, tuned side-channel connection together
// with the endpoint/memory records exchanged over it.
type NeighborConn struct {
	Conn        net.Conn
	RemoteInfo  verbs.Info
	RemoteCreds memoryCredentials
}

// Exchange carries everything a rank needs to dial or accept from both
// ring neighbors.
type Exchange struct {
	World    []string // host:basePort-less addresses, index == rank
	Rank     int
	SelfHost string // local bind address; may differ from World[Rank] behind NAT
	BasePort int
	Logger   *zap.Logger
	Tunables control.Snapshot
}

func (x Exchange) frontRank() int { return (x.Rank + 1) % len(x.World) }
func (x Exchange) backRank() int  { return (x.Rank - 1 + len(x.World)) % len(x.World) }

// Run performs the full bootstrap choreography and returns the two
// established, tuned neighbor connections (front, back). It does not
// perform the endpoint/memory record exchange itself — callers use
// ExchangeEndpointInfo / ExchangeMemoryCredentials once local state (QPN,
// regions) is ready, matching the init -> ready_to_receive ordering of
// spec §4.1: bootstrap-the-pipe first, negotiate-the-queue-pair second.
func (x Exchange) Run(ctx context.Context) (front, back net.Conn, err error) {
	n := len(x.World)
	if n < 2 {
		return nil, nil, api.NewError(api.ErrCodeBadArg, "world size must be at least 2")
	}

	ln, err := listen(listenAddr(x.SelfHost, x.BasePort, x.Rank))
	if err != nil {
		return nil, nil, err
	}
	defer ln.Close()

	if x.Rank == 0 {
		front, err = x.dial(ctx, x.frontRank())
		if err != nil {
			return nil, nil, err
		}
		back, err = x.accept(ctx, ln)
		if err != nil {
			front.Close()
			return nil, nil, err
		}
		return front, back, nil
	}

	back, err = x.accept(ctx, ln)
	if err != nil {
		return nil, nil, err
	}
	front, err = x.dial(ctx, x.frontRank())
	if err != nil {
		back.Close()
		return nil, nil, err
	}
	return front, back, nil
}

// dial connects to peerRank's bootstrap listener with bounded exponential
// backoff, tolerating the listener not being up yet.
func (x Exchange) dial(ctx context.Context, peerRank int) (net.Conn, error) {
	addr := listenAddr(x.World[peerRank], x.BasePort, peerRank)

	op := func() (net.Conn, error) {
		d := net.Dialer{Timeout: x.Tunables.BootstrapTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			if x.Logger != nil {
				x.Logger.Debug("bootstrap dial retrying", zap.Int("peer_rank", peerRank), zap.Error(err))
			}
			return nil, err
		}
		return conn, nil
	}

	bo := backoff.ExponentialBackOff{
		InitialInterval:     x.Tunables.BootstrapRetryInitial,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         x.Tunables.BootstrapRetryMax,
	}

	conn, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&bo),
		backoff.WithMaxTries(uint(x.Tunables.BootstrapRetryBudget)),
	)
	if err != nil {
		return nil, api.Wrap(api.ErrCodeBootstrapFailed, "dialing ring neighbor", err)
	}
	if err := tuneConn(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// accept waits for the single inbound connection from this rank's back
// neighbor, bounded by the bootstrap timeout.
func (x Exchange) accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	timer := time.NewTimer(x.Tunables.BootstrapTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, api.Wrap(api.ErrCodeBootstrapFailed, "accepting ring neighbor connection", ctx.Err())
	case <-timer.C:
		return nil, api.NewError(api.ErrCodeBootstrapFailed, "timed out accepting ring neighbor connection")
	case r := <-ch:
		if r.err != nil {
			return nil, api.Wrap(api.ErrCodeBootstrapFailed, "accepting ring neighbor connection", r.err)
		}
		if err := tuneConn(r.conn); err != nil {
			r.conn.Close()
			return nil, err
		}
		return r.conn, nil
	}
}

// ExchangeEndpointInfo performs a symmetric endpoint_info swap over conn:
// both sides write their own record, then read the peer's, avoiding a
// fixed initiator/responder ordering since both sides already hold a
// connected socket at this point.
func ExchangeEndpointInfo(conn net.Conn, local verbs.Info) (verbs.Info, error) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- writeRecord(conn, encodeEndpointInfo(local))
	}()

	buf := make([]byte, endpointInfoWireLen)
	readErr := readRecord(conn, buf)
	writeErr := <-errCh

	if writeErr != nil {
		return verbs.Info{}, api.Wrap(api.ErrCodeBootstrapFailed, "sending endpoint_info", writeErr)
	}
	if readErr != nil {
		return verbs.Info{}, api.Wrap(api.ErrCodeBootstrapFailed, "receiving endpoint_info", readErr)
	}
	return decodeEndpointInfo(buf)
}

// ExchangeMemoryCredentials performs a symmetric memory_credentials swap:
// each side sends the credentials of the region it will receive into,
// paired with its send-region credentials, so the peer can compute
// matching destination offsets without a further round trip (spec §6).
func ExchangeMemoryCredentials(conn net.Conn, localRecv, localSend verbs.Credentials) (memoryCredentials, error) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- writeRecord(conn, encodeMemoryCredentials(localRecv, localSend))
	}()

	buf := make([]byte, memoryCredentialsWireLen)
	readErr := readRecord(conn, buf)
	writeErr := <-errCh

	if writeErr != nil {
		return memoryCredentials{}, api.Wrap(api.ErrCodeBootstrapFailed, "sending memory_credentials", writeErr)
	}
	if readErr != nil {
		return memoryCredentials{}, api.Wrap(api.ErrCodeBootstrapFailed, "receiving memory_credentials", readErr)
	}
	return decodeMemoryCredentials(buf)
}
