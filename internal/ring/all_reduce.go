// File: internal/ring/all_reduce.go
// Author: momentics <momentics@gmail.com>
//
// All-reduce composition, spec §4.6: reduce_scatter then all_gather. If
// reduce-scatter fails, all-gather is never attempted — the caller is
// responsible for tainting the handle on any returned error (group.Handle
// does this at the call site, matching the teacher's facade.New
// compose-then-teardown call shape for multi-subsystem operations).

package ring

import "github.com/momentics/ringallreduce/api"

// AllReduce runs the full collective: ReduceScatter followed by
// AllGather. On success every chunk of the send region holds the global
// reduced vector.
func (e *Engine) AllReduce(et api.ElementType, op api.Operation) error {
	if err := e.ReduceScatter(et, op); err != nil {
		return err
	}
	return e.AllGather()
}
