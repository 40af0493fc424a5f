// File: internal/ring/reduce_scatter.go
// Author: momentics <momentics@gmail.com>
//
// Reduce-scatter phase, spec §4.4. After World-1 rounds, chunk
// (rank+1)%World of the send region holds the fully reduced sub-vector;
// every other chunk holds an undefined intermediate value.

package ring

import (
	"github.com/momentics/ringallreduce/api"
	"github.com/momentics/ringallreduce/internal/reduceop"
)

// ReduceScatter runs the reduce-scatter phase for the given element type
// and operation. The vector is World*ChunkSize elements long; the caller
// rejects counts not evenly divisible by World before building the
// engine (spec §4.4 "bad_count").
func (e *Engine) ReduceScatter(et api.ElementType, op api.Operation) error {
	if err := e.prePostReceives(); err != nil {
		return api.Wrap(api.ErrCodeTransportError, "pre-posting reduce-scatter receives", err)
	}

	for r := 0; r < e.World-1; r++ {
		sendChunk := (e.Rank - r + e.World) % e.World
		start, end := e.chunkByteRange(sendChunk)

		if err := e.Front.PostWriteImmediate(e.SendRegion.Data[start:end], start, uint32(sendChunk)); err != nil {
			return api.Wrap(api.ErrCodeTransportError, "posting reduce-scatter write", err)
		}

		immediate, err := e.awaitReceive()
		if err != nil {
			return err
		}
		recvChunk := int(immediate)
		rs, re := e.chunkByteRange(recvChunk)

		// Combine in place, writing the result back into the send
		// region: the next round forwards this chunk onward (spec
		// §4.4: "Writing the result back into the send region is
		// critical").
		if err := reduceop.Reduce(et, op, e.SendRegion.Data[rs:re], e.RecvRegion.Data[rs:re], e.ChunkSize); err != nil {
			return err
		}
	}

	if op == api.Mean {
		finalChunk := (e.Rank + 1) % e.World
		start, end := e.chunkByteRange(finalChunk)
		if err := reduceop.ScaleMean(et, e.SendRegion.Data[start:end], e.ChunkSize, e.World); err != nil {
			return err
		}
	}
	return nil
}
