// File: internal/ring/all_gather.go
// Author: momentics <momentics@gmail.com>
//
// All-gather phase, spec §4.5. Mirrors reduce-scatter's round structure
// but propagates the already-owned final chunk outward with no combine:
// each received chunk is copied (not reduced) into the send region so it
// can be forwarded on the next round.

package ring

import "github.com/momentics/ringallreduce/api"

// AllGather runs the all-gather phase. Contract: chunk (rank+1)%World of
// the send region must already hold this rank's final reduced sub-vector
// (i.e. ReduceScatter has already succeeded).
func (e *Engine) AllGather() error {
	if err := e.prePostReceives(); err != nil {
		return api.Wrap(api.ErrCodeTransportError, "pre-posting all-gather receives", err)
	}

	// Round 0 forwards the chunk this rank already owns outright
	// ((rank+1)%World), then each subsequent round forwards whatever
	// chunk arrived the round before — the same backward chunk-index
	// walk reduce-scatter uses, offset by one.
	owned := (e.Rank + 1) % e.World

	for r := 0; r < e.World-1; r++ {
		sendChunk := (owned - r + e.World) % e.World
		start, end := e.chunkByteRange(sendChunk)

		if err := e.Front.PostWriteImmediate(e.SendRegion.Data[start:end], start, uint32(sendChunk)); err != nil {
			return api.Wrap(api.ErrCodeTransportError, "posting all-gather write", err)
		}

		immediate, err := e.awaitReceive()
		if err != nil {
			return err
		}
		recvChunk := int(immediate)
		rs, re := e.chunkByteRange(recvChunk)

		// No combine here: the arriving chunk already landed in the
		// receive region via the one-sided write; copy it into the
		// send region's matching slot so it propagates on the next
		// round and so the caller finds the full vector in the send
		// region once all rounds complete.
		copy(e.SendRegion.Data[rs:re], e.RecvRegion.Data[rs:re])
	}
	return nil
}
