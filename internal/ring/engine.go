// File: internal/ring/engine.go
// Author: momentics <momentics@gmail.com>
//
// Shared ring-engine state and chunk-index arithmetic. Grounded on the
// teacher's pool/ring.go RingBuffer[T] for the mask/round bookkeeping
// style (small arithmetic helpers kept next to the struct they serve,
// rather than a free-floating package of index math).

package ring

import (
	"time"

	"github.com/momentics/ringallreduce/api"
	"github.com/momentics/ringallreduce/internal/verbs"
)

// Engine drives one rank's reduce-scatter/all-gather/all-reduce over its
// two ring neighbor endpoints (spec §3 "Round", §4.4-§4.6).
type Engine struct {
	Rank      int
	World     int
	ChunkSize int // elements per chunk; count / World
	Width     int // bytes per element

	SendRegion *verbs.Region
	RecvRegion *verbs.Region

	// Front is this rank's connection to (rank+1)%World, used to post
	// writes. Back is the connection to (rank-1+World)%World, used to
	// pre-post receives and poll for arriving writes. Both endpoints
	// share one completion queue (see group.Handle), so polling either
	// side observes both write_completed_locally and
	// receive_with_immediate completions.
	Front *verbs.Endpoint
	Back  *verbs.Endpoint

	SpinLimit int
}

// chunkByteRange returns the [start, end) byte offsets of chunk c within
// a region holding Engine.World chunks of ChunkSize elements each.
func (e *Engine) chunkByteRange(c int) (int, int) {
	start := c * e.ChunkSize * e.Width
	end := start + e.ChunkSize*e.Width
	return start, end
}

func (e *Engine) frontRank() int { return (e.Rank + 1) % e.World }
func (e *Engine) backRank() int  { return (e.Rank - 1 + e.World) % e.World }

// prePostReceives arms World-1 zero-length, immediate-only receives on
// the back endpoint, per spec §4.4 step 1 / §4.5.
func (e *Engine) prePostReceives() error {
	for i := 0; i < e.World-1; i++ {
		if err := e.Back.PostReceive(); err != nil {
			return err
		}
	}
	return nil
}

// awaitReceive busy-spins then yields on the shared completion queue
// until a receive_with_immediate completion arrives, discarding
// write_completed_locally completions along the way (spec §5: "busy-spin
// then yield" polling discipline). Returns the decoded immediate (chunk
// index) or an error if any completion reports a non-success status.
func (e *Engine) awaitReceive() (uint32, error) {
	spins := 0
	for {
		comp, ok := e.Back.PollOnce()
		if !ok {
			spins++
			if spins >= e.SpinLimit {
				time.Sleep(time.Microsecond)
				spins = 0
			}
			continue
		}
		if comp.Status != verbs.StatusSuccess {
			return 0, api.Wrap(api.ErrCodeTransportError, "completion reported failure", comp.Err)
		}
		switch comp.Opcode {
		case verbs.OpReceiveWithImmediate:
			return comp.Immediate, nil
		case verbs.OpWriteCompletedLocally:
			continue
		}
	}
}
