// File: group/handle.go
// Author: momentics <momentics@gmail.com>
//
// Process-group handle: the public facade over device/pd/cq/endpoints/
// regions, directly adapted from the teacher's facade/hioload.go HioloadWS
// struct and New/lifecycle pattern — one struct holds every subsystem,
// constructed top-to-bottom, torn down bottom-to-top, with
// sync.RWMutex-guarded flags gating re-entry (started there; here tainted
// for spec §7's handle_tainted family, and closed for the idempotent
// Close of Testable Property 4).

package group

import (
	"context"
	"net"
	"sync"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/momentics/ringallreduce/api"
	"github.com/momentics/ringallreduce/control"
	"github.com/momentics/ringallreduce/internal/bootstrap"
	"github.com/momentics/ringallreduce/internal/ring"
	"github.com/momentics/ringallreduce/internal/verbs"
)

// Handle is one process's membership in a ring all-reduce group. Obtain
// one via Connect; release it via Close.
type Handle struct {
	mu      sync.RWMutex
	tainted bool
	closed  bool

	connID   xid.ID
	log      *zap.Logger
	tunables *control.Tunables

	rank  int
	world int

	device *verbs.Device
	pd     *verbs.ProtectionDomain
	cq     *verbs.CompletionQueue

	frontConn net.Conn
	backConn  net.Conn

	frontEP *verbs.Endpoint
	backEP  *verbs.Endpoint

	sendRegion *verbs.Region
	recvRegion *verbs.Region

	engine *ring.Engine
}

// defaultCaps bounds outstanding work per spec §4.1: N-1 outstanding
// receives (one per round, pre-posted in a batch) plus one outstanding
// send, single scatter-gather entry each.
func defaultCaps(world int) verbs.Caps {
	return verbs.Caps{
		MaxSendWR:  1,
		MaxRecvWR:  world - 1,
		MaxSendSGE: 1,
		MaxRecvSGE: 1,
	}
}

// Connect builds the local device context, allocates a protection domain
// and completion queue, creates both ring-neighbor endpoints, runs the
// side-channel bootstrap choreography, and drives both endpoints through
// init -> ready_to_receive -> ready_to_send (spec §4.7). Regions are
// registered separately via Register, since the caller's buffers are not
// known until then.
func Connect(world []string, rank int, selfHost string, opts ...Option) (*Handle, error) {
	if len(world) < 2 {
		return nil, api.NewError(api.ErrCodeBadArg, "world size must be at least 2")
	}
	if rank < 0 || rank >= len(world) {
		return nil, api.NewError(api.ErrCodeBadArg, "rank out of range")
	}

	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	h := &Handle{
		connID:   xid.New(),
		log:      o.log,
		tunables: o.tunables,
		rank:     rank,
		world:    len(world),
	}

	device, err := verbs.OpenDevice()
	if err != nil {
		return nil, err
	}
	h.device = device

	pd, err := verbs.AllocProtectionDomain(device)
	if err != nil {
		h.device.Close()
		return nil, err
	}
	h.pd = pd

	snap := h.tunables.Snapshot()
	cq, err := verbs.CreateCompletionQueue(pd, snap.CQDepthMultiplier*(h.world-1))
	if err != nil {
		h.teardownAfterFailure()
		return nil, err
	}
	h.cq = cq

	caps := defaultCaps(h.world)
	h.frontEP, err = verbs.CreateEndpoint(device, pd, cq, caps)
	if err != nil {
		h.teardownAfterFailure()
		return nil, err
	}
	h.backEP, err = verbs.CreateEndpoint(device, pd, cq, caps)
	if err != nil {
		h.teardownAfterFailure()
		return nil, err
	}
	if err := h.frontEP.Transition(verbs.StateInit, nil, nil); err != nil {
		h.teardownAfterFailure()
		return nil, err
	}
	if err := h.backEP.Transition(verbs.StateInit, nil, nil); err != nil {
		h.teardownAfterFailure()
		return nil, err
	}

	ex := bootstrap.Exchange{
		World:    world,
		Rank:     rank,
		SelfHost: selfHost,
		BasePort: snap.BasePort,
		Logger:   h.log,
		Tunables: snap,
	}
	ctx, cancel := context.WithTimeout(context.Background(), snap.BootstrapTimeout)
	defer cancel()
	front, back, err := ex.Run(ctx)
	if err != nil {
		h.teardownAfterFailure()
		return nil, err
	}
	h.frontConn, h.backConn = front, back

	// Both swaps run at once: this rank's front swap is its front
	// neighbor's back swap, so doing them one after the other on every
	// rank would leave the whole ring waiting on itself.
	var remoteBack verbs.Info
	backErr := make(chan error, 1)
	go func() {
		var err error
		remoteBack, err = bootstrap.ExchangeEndpointInfo(back, h.backEP.Local)
		backErr <- err
	}()
	remoteFront, err := bootstrap.ExchangeEndpointInfo(front, h.frontEP.Local)
	if err == nil {
		err = <-backErr
	}
	if err != nil {
		h.teardownAfterFailure()
		return nil, err
	}

	rtr := func(remote verbs.Info) *verbs.ReadyToReceiveParams {
		return &verbs.ReadyToReceiveParams{RemoteInfo: remote, PathMTU: 1024, MinRNRTimer: 0}
	}
	rts := &verbs.ReadyToSendParams{RetryCount: 7, RNRRetryCount: 7}

	if err := h.frontEP.Transition(verbs.StateReadyToReceive, rtr(remoteFront), nil); err != nil {
		h.teardownAfterFailure()
		return nil, err
	}
	if err := h.backEP.Transition(verbs.StateReadyToReceive, rtr(remoteBack), nil); err != nil {
		h.teardownAfterFailure()
		return nil, err
	}
	if err := h.frontEP.Transition(verbs.StateReadyToSend, nil, rts); err != nil {
		h.teardownAfterFailure()
		return nil, err
	}
	if err := h.backEP.Transition(verbs.StateReadyToSend, nil, rts); err != nil {
		h.teardownAfterFailure()
		return nil, err
	}

	h.log.Info("ring endpoints ready_to_send",
		zap.String("conn_id", h.connID.String()), zap.Int("rank", rank), zap.Int("world", h.world))
	return h, nil
}

// Register pins the caller's send and receive buffers, exchanges memory
// credentials with both neighbors over the now-established side channel
// (spec §9: "remote credentials must be in hand before the first
// post_write_with_immediate"), and binds the transport to both endpoints.
// count must be evenly divisible by the world size.
func (h *Handle) Register(sendBase, recvBase []byte, et api.ElementType, count int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tainted {
		return api.NewError(api.ErrCodeHandleTainted, "handle is tainted by a prior failure")
	}
	if !et.Valid() {
		return api.NewError(api.ErrCodeBadArg, "invalid element type")
	}
	if count <= 0 || count%h.world != 0 {
		return api.NewError(api.ErrCodeBadArg, "count must be a positive multiple of world size").
			WithContext("reason", "bad_count")
	}
	width := et.Width()
	if len(sendBase) < count*width || len(recvBase) < count*width {
		return api.NewError(api.ErrCodeBadArg, "buffers shorter than count*width")
	}

	sendRegion, err := verbs.RegisterRegion(h.pd, sendBase, verbs.AccessLocalWrite|verbs.AccessRemoteWrite)
	if err != nil {
		h.tainted = true
		return err
	}
	recvRegion, err := verbs.RegisterRegion(h.pd, recvBase, verbs.AccessLocalWrite|verbs.AccessRemoteWrite)
	if err != nil {
		h.tainted = true
		return err
	}
	h.sendRegion, h.recvRegion = sendRegion, recvRegion

	// The neighbor's remote_credentials are discarded here: the soft-verbs
	// write path (internal/verbs/softverbs.go) addresses the destination
	// region by an offset computed locally rather than by the remote rkey,
	// so nothing downstream needs the peer's returned record.
	// As in Connect, the front and back swaps run concurrently so the ring
	// does not wait on itself.
	backErr := make(chan error, 1)
	go func() {
		_, err := bootstrap.ExchangeMemoryCredentials(h.backConn, recvRegion.Credentials(), sendRegion.Credentials())
		backErr <- err
	}()
	_, err = bootstrap.ExchangeMemoryCredentials(h.frontConn, recvRegion.Credentials(), sendRegion.Credentials())
	if err == nil {
		err = <-backErr
	}
	if err != nil {
		h.tainted = true
		return err
	}

	// Each physical link carries writes in one ring direction only: the
	// front endpoint posts outbound writes and never receives on that
	// connection, the back endpoint's connection is where this rank's
	// back neighbor writes in (spec §4.7).
	h.frontEP.BindSend(h.frontConn)
	h.backEP.StartReader(h.backConn, recvRegion)

	h.engine = &ring.Engine{
		Rank:       h.rank,
		World:      h.world,
		ChunkSize:  count / h.world,
		Width:      width,
		SendRegion: sendRegion,
		RecvRegion: recvRegion,
		Front:      h.frontEP,
		Back:       h.backEP,
		SpinLimit:  h.tunables.Snapshot().PollSpinLimit,
	}
	return nil
}

// AllReduce runs the collective over the registered regions. On success
// every chunk of the send buffer passed to Register holds the global
// reduced vector. If the collective itself fails the handle is tainted
// and must be Closed; no further collectives may be attempted on it.
// Argument errors (no prior Register, invalid element type or operation)
// are returned without tainting the handle.
func (h *Handle) AllReduce(et api.ElementType, op api.Operation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tainted {
		return api.NewError(api.ErrCodeHandleTainted, "handle is tainted by a prior failure")
	}
	if h.engine == nil {
		return api.NewError(api.ErrCodeBadArg, "Register must be called before AllReduce")
	}
	if !et.Valid() || !op.Valid() {
		return api.NewError(api.ErrCodeBadArg, "invalid element type or operation")
	}
	if err := h.engine.AllReduce(et, op); err != nil {
		h.tainted = true
		return err
	}
	return nil
}

// teardownAfterFailure releases whatever subsystems were constructed
// before a Connect step failed, in reverse order, then marks the handle
// tainted so a caller that somehow retains it cannot reuse it.
func (h *Handle) teardownAfterFailure() {
	h.tainted = true
	if h.backConn != nil {
		h.backConn.Close()
	}
	if h.frontConn != nil {
		h.frontConn.Close()
	}
	if h.backEP != nil {
		h.backEP.Close()
	}
	if h.frontEP != nil {
		h.frontEP.Close()
	}
	if h.cq != nil {
		h.cq.Close()
	}
	if h.pd != nil {
		h.pd.Close()
	}
	if h.device != nil {
		h.device.Close()
	}
}

// Close tears down the handle (spec §4.7): endpoints first, back then
// front (each marked closed and its bound connection closed), then the
// receive and send regions, completion queue, protection domain, device
// context. Close is idempotent (Testable Property 4).
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if h.backEP != nil {
		record(h.backEP.Close())
	}
	if h.frontEP != nil {
		record(h.frontEP.Close())
	}
	if h.recvRegion != nil {
		record(h.recvRegion.Deregister())
	}
	if h.sendRegion != nil {
		record(h.sendRegion.Deregister())
	}
	if h.cq != nil {
		record(h.cq.Close())
	}
	if h.pd != nil {
		record(h.pd.Close())
	}
	if h.device != nil {
		record(h.device.Close())
	}
	return firstErr
}

// Rank returns this process's rank within the group.
func (h *Handle) Rank() int { return h.rank }

// World returns the group's world size.
func (h *Handle) World() int { return h.world }

// Debug returns a probe registry exposing this handle's live state
// (rank, world, taint/close flags, the connection's correlation id, and
// platform CPU count) for operational inspection, mirroring the
// teacher's control.DebugProbes introspection hook.
func (h *Handle) Debug() *control.DebugProbes {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("rank", func() any { return h.rank })
	dp.RegisterProbe("world", func() any { return h.world })
	dp.RegisterProbe("conn_id", func() any { return h.connID.String() })
	dp.RegisterProbe("tainted", func() any {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.tainted
	})
	dp.RegisterProbe("closed", func() any {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.closed
	})
	control.RegisterPlatformProbes(dp)
	return dp
}
