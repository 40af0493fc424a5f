// File: internal/bootstrap/choreography_test.go
// Author: momentics <momentics@gmail.com>

package bootstrap

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/ringallreduce/control"
	"github.com/momentics/ringallreduce/internal/verbs"
)

// freePort picks a currently unused TCP port on loopback by opening and
// immediately closing a listener, mirroring how ephemeral test harnesses
// avoid colliding with other suites sharing the machine.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testSnapshot() control.Snapshot {
	return control.DefaultTunables().
		WithBootstrapRetryBudget(50).
		Snapshot()
}

// TestTwoRankRingBootstrap drives the rank-0-dials-first / others-accept-
// first choreography for a 2-rank ring, where each rank's front and back
// neighbor is the other rank (so each establishes exactly two TCP
// connections to the same peer), and confirms both connections transport
// bytes in both directions.
func TestTwoRankRingBootstrap(t *testing.T) {
	basePort := freePort(t)
	world := []string{"127.0.0.1", "127.0.0.1"}

	results := make([]struct {
		front, back net.Conn
		err         error
	}, 2)

	var wg sync.WaitGroup
	for rank := 0; rank < 2; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			ex := Exchange{
				World:    world,
				Rank:     rank,
				SelfHost: "127.0.0.1",
				BasePort: basePort,
				Tunables: testSnapshot(),
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			front, back, err := ex.Run(ctx)
			results[rank].front = front
			results[rank].back = back
			results[rank].err = err
		}(rank)
	}
	wg.Wait()

	for rank, r := range results {
		if r.err != nil {
			t.Fatalf("rank %d Run returned error: %v", rank, r.err)
		}
		if r.front == nil || r.back == nil {
			t.Fatalf("rank %d returned nil connection(s)", rank)
		}
		defer r.front.Close()
		defer r.back.Close()
	}

	// Byte-level sanity: write on rank 0's front connection, read on the
	// peer side of that same physical link.
	msg := []byte("ring-bootstrap-ok")
	go results[0].front.Write(msg)
	buf := make([]byte, len(msg))
	results[1].back.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := net.Conn(results[1].back).Read(buf); err != nil {
		t.Fatalf("reading across bootstrapped connection: %v", err)
	}
	if string(buf) != string(msg) {
		t.Errorf("got %q, want %q", buf, msg)
	}
}

func TestExchangeRejectsUndersizedWorld(t *testing.T) {
	ex := Exchange{World: []string{"127.0.0.1"}, Rank: 0, SelfHost: "127.0.0.1", BasePort: freePort(t), Tunables: testSnapshot()}
	if _, _, err := ex.Run(context.Background()); err == nil {
		t.Error("expected error for world size < 2")
	}
}

func TestExchangeEndpointInfoRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	localA := verbs.Info{LocalID: 1, QPN: 10, PSN: 100}
	localB := verbs.Info{LocalID: 2, QPN: 20, PSN: 200}

	var gotA, gotB verbs.Info
	var errA, errB error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		gotA, errA = ExchangeEndpointInfo(a, localA)
	}()
	go func() {
		defer wg.Done()
		gotB, errB = ExchangeEndpointInfo(b, localB)
	}()
	wg.Wait()

	if errA != nil || errB != nil {
		t.Fatalf("ExchangeEndpointInfo errors: %v, %v", errA, errB)
	}
	if gotA != localB {
		t.Errorf("side A received %+v, want %+v", gotA, localB)
	}
	if gotB != localA {
		t.Errorf("side B received %+v, want %+v", gotB, localA)
	}
}
