// File: control/debug_test.go
// Author: momentics <momentics@gmail.com>

package control

import "testing"

func TestDebugProbesRegisterAndDump(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	dp.RegisterProbe("name", func() any { return "rank-0" })

	state := dp.DumpState()
	if state["answer"] != 42 {
		t.Errorf("answer = %v, want 42", state["answer"])
	}
	if state["name"] != "rank-0" {
		t.Errorf("name = %v, want rank-0", state["name"])
	}
}

func TestDebugProbesOverwriteByName(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("x", func() any { return 1 })
	dp.RegisterProbe("x", func() any { return 2 })

	state := dp.DumpState()
	if state["x"] != 2 {
		t.Errorf("x = %v, want 2 (last registration wins)", state["x"])
	}
}

func TestRegisterPlatformProbesAddsCPUCount(t *testing.T) {
	dp := NewDebugProbes()
	RegisterPlatformProbes(dp)

	state := dp.DumpState()
	if _, ok := state["platform.cpus"]; !ok {
		t.Error("expected platform.cpus probe to be registered")
	}
}
