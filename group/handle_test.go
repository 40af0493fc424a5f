// File: group/handle_test.go
// Author: momentics <momentics@gmail.com>
//
// End-to-end scenario tests: each rank runs in its own goroutine and
// dials real TCP loopback connections through Connect, then drives
// Register/AllReduce/Close, matching how a real multi-process launch
// behaves but folded into one test binary.

package group

import (
	"encoding/binary"
	"math"
	"net"
	"sync"
	"testing"

	"github.com/momentics/ringallreduce/api"
	"github.com/momentics/ringallreduce/control"
)

func freeBasePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func encodeF64(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeF64(buf []byte, i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
}

// TestGroupAllReduceSumEndToEnd connects a 3-rank group over real TCP
// loopback sockets, registers a 3-element vector per rank, runs one
// all-reduce sum, and checks every rank agrees on the global result.
func TestGroupAllReduceSumEndToEnd(t *testing.T) {
	const n = 3
	const count = 3
	world := []string{"127.0.0.1", "127.0.0.1", "127.0.0.1"}
	basePort := freeBasePort(t)
	tunables := control.DefaultTunables().WithBasePort(basePort).WithBootstrapRetryBudget(50)

	handles := make([]*Handle, n)
	sendBufs := make([][]byte, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			h, err := Connect(world, r, "127.0.0.1", WithTunables(tunables))
			if err != nil {
				errs[r] = err
				return
			}
			handles[r] = h
		}(r)
	}
	wg.Wait()

	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Connect: %v", r, err)
		}
	}
	defer func() {
		for _, h := range handles {
			if h != nil {
				h.Close()
			}
		}
	}()

	for r := 0; r < n; r++ {
		buf := make([]byte, count*8)
		for c := 0; c < count; c++ {
			copy(buf[c*8:c*8+8], encodeF64(float64(r+1)))
		}
		sendBufs[r] = buf
	}

	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			recvBuf := make([]byte, count*8)
			if err := handles[r].Register(sendBufs[r], recvBuf, api.Float64, count); err != nil {
				errs[r] = err
				return
			}
			errs[r] = handles[r].AllReduce(api.Float64, api.Sum)
		}(r)
	}
	wg.Wait()

	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Register/AllReduce: %v", r, err)
		}
	}

	want := 0.0
	for r := 0; r < n; r++ {
		want += float64(r + 1)
	}
	for r := 0; r < n; r++ {
		for c := 0; c < count; c++ {
			got := decodeF64(sendBufs[r], c)
			if got != want {
				t.Errorf("rank %d chunk %d = %v, want %v", r, c, got, want)
			}
		}
	}
}

// TestGroupConnectRejectsBadWorldSize covers the bad_arg path without
// touching the network.
func TestGroupConnectRejectsBadWorldSize(t *testing.T) {
	if _, err := Connect([]string{"127.0.0.1"}, 0, "127.0.0.1"); err == nil {
		t.Error("expected error for world size < 2")
	}
}

func TestGroupConnectRejectsRankOutOfRange(t *testing.T) {
	if _, err := Connect([]string{"127.0.0.1", "127.0.0.1"}, 5, "127.0.0.1"); err == nil {
		t.Error("expected error for out-of-range rank")
	}
}

// TestGroupCloseIsIdempotent connects a minimal 2-rank group and checks
// that Close can be called twice without error.
func TestGroupCloseIsIdempotent(t *testing.T) {
	const n = 2
	world := []string{"127.0.0.1", "127.0.0.1"}
	basePort := freeBasePort(t)
	tunables := control.DefaultTunables().WithBasePort(basePort).WithBootstrapRetryBudget(50)

	handles := make([]*Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			h, err := Connect(world, r, "127.0.0.1", WithTunables(tunables))
			handles[r] = h
			errs[r] = err
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Connect: %v", r, err)
		}
	}

	for _, h := range handles {
		if err := h.Close(); err != nil {
			t.Fatalf("first Close: %v", err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
	}
}

// TestGroupAllReduceRejectsBeforeRegister checks the bad_arg path when a
// caller invokes AllReduce before Register has built the engine.
func TestGroupAllReduceRejectsBeforeRegister(t *testing.T) {
	const n = 2
	world := []string{"127.0.0.1", "127.0.0.1"}
	basePort := freeBasePort(t)
	tunables := control.DefaultTunables().WithBasePort(basePort).WithBootstrapRetryBudget(50)

	handles := make([]*Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			h, err := Connect(world, r, "127.0.0.1", WithTunables(tunables))
			handles[r] = h
			errs[r] = err
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Connect: %v", r, err)
		}
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	if err := handles[0].AllReduce(api.Float64, api.Sum); err == nil {
		t.Error("expected error calling AllReduce before Register")
	}
}

func TestHandleRankAndWorldAccessors(t *testing.T) {
	const n = 2
	world := []string{"127.0.0.1", "127.0.0.1"}
	basePort := freeBasePort(t)
	tunables := control.DefaultTunables().WithBasePort(basePort).WithBootstrapRetryBudget(50)

	handles := make([]*Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			h, err := Connect(world, r, "127.0.0.1", WithTunables(tunables))
			handles[r] = h
			errs[r] = err
		}(r)
	}
	wg.Wait()
	defer func() {
		for _, h := range handles {
			if h != nil {
				h.Close()
			}
		}
	}()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Connect: %v", r, err)
		}
	}

	for r, h := range handles {
		if h.Rank() != r {
			t.Errorf("Rank() = %d, want %d", h.Rank(), r)
		}
		if h.World() != n {
			t.Errorf("World() = %d, want %d", h.World(), n)
		}
	}
}

// TestGroupRegisterRejectsBadCount covers scenario S5: a count not evenly
// divisible by the world size must fail Register with a bad_arg error
// rather than silently truncating a chunk.
func TestGroupRegisterRejectsBadCount(t *testing.T) {
	const n = 4
	world := []string{"127.0.0.1", "127.0.0.1", "127.0.0.1", "127.0.0.1"}
	basePort := freeBasePort(t)
	tunables := control.DefaultTunables().WithBasePort(basePort).WithBootstrapRetryBudget(50)

	handles := make([]*Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			h, err := Connect(world, r, "127.0.0.1", WithTunables(tunables))
			handles[r] = h
			errs[r] = err
		}(r)
	}
	wg.Wait()
	defer func() {
		for _, h := range handles {
			if h != nil {
				h.Close()
			}
		}
	}()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Connect: %v", r, err)
		}
	}

	const count = 21 // not divisible by n=4, per scenario S5
	sendBuf := make([]byte, count*4)
	recvBuf := make([]byte, count*4)
	if err := handles[0].Register(sendBuf, recvBuf, api.Int32, count); err == nil {
		t.Error("expected bad_count error for count not divisible by world size")
	}
}

func TestHandleDebugProbesReflectLiveState(t *testing.T) {
	const n = 2
	world := []string{"127.0.0.1", "127.0.0.1"}
	basePort := freeBasePort(t)
	tunables := control.DefaultTunables().WithBasePort(basePort).WithBootstrapRetryBudget(50)

	handles := make([]*Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			h, err := Connect(world, r, "127.0.0.1", WithTunables(tunables))
			handles[r] = h
			errs[r] = err
		}(r)
	}
	wg.Wait()
	defer func() {
		for _, h := range handles {
			if h != nil {
				h.Close()
			}
		}
	}()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Connect: %v", r, err)
		}
	}

	h := handles[1]
	state := h.Debug().DumpState()
	if state["rank"] != 1 {
		t.Errorf("rank probe = %v, want 1", state["rank"])
	}
	if state["world"] != n {
		t.Errorf("world probe = %v, want %d", state["world"], n)
	}
	if state["tainted"] != false {
		t.Errorf("tainted probe = %v, want false", state["tainted"])
	}
	if _, ok := state["conn_id"]; !ok {
		t.Error("expected conn_id probe to be present")
	}
	if _, ok := state["platform.cpus"]; !ok {
		t.Error("expected platform.cpus probe to be present")
	}
}
