// File: cmd/launch/run.go
// Author: momentics <momentics@gmail.com>
//
// Shared run path for both the flag and legacy-positional CLI forms:
// join the group, fill a demo vector via datagen, run one collective,
// verify it against the external verifier, print one status line, and
// exit 0/1 per spec.md §6/§7.

package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/momentics/ringallreduce/api"
	"github.com/momentics/ringallreduce/control"
	"github.com/momentics/ringallreduce/datagen"
	"github.com/momentics/ringallreduce/group"
	"github.com/momentics/ringallreduce/verify"
)

type launchConfig struct {
	rank      int
	world     []string
	operation string
	pattern   string
	count     int
	elemType  string
	logLevel  string
}

func runOnce(cfg launchConfig) error {
	logger, _, err := control.NewLogger(cfg.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	et, err := parseElementType(cfg.elemType)
	if err != nil {
		return err
	}
	op, err := parseOperation(cfg.operation)
	if err != nil {
		return err
	}
	pattern, err := parsePattern(cfg.pattern)
	if err != nil {
		return err
	}

	h, err := group.Connect(cfg.world, cfg.rank, cfg.world[cfg.rank], group.WithLogger(logger))
	if err != nil {
		return fail(logger, "connect", err)
	}
	defer h.Close()

	sendBuf, err := datagen.Fill(et, pattern, cfg.rank, cfg.count, 1)
	if err != nil {
		return fail(logger, "generate input", err)
	}
	recvBuf := make([]byte, len(sendBuf))

	if err := h.Register(sendBuf, recvBuf, et, cfg.count); err != nil {
		return fail(logger, "register regions", err)
	}
	if err := h.AllReduce(et, op); err != nil {
		return fail(logger, "all_reduce", err)
	}

	inputs := make([][]byte, len(cfg.world))
	for r := range cfg.world {
		buf, err := datagen.Fill(et, pattern, r, cfg.count, 1)
		if err != nil {
			return fail(logger, "generate reference input", err)
		}
		inputs[r] = buf
	}
	expected, err := verify.Expected(et, op, inputs, cfg.count)
	if err != nil {
		return fail(logger, "compute expected", err)
	}
	mismatches := verify.Compare(et, expected, sendBuf, cfg.count, verify.DefaultFloatTolerance)

	report := verify.Report(mismatches)
	logger.Info("collective complete", zap.Int("rank", cfg.rank), zap.String("result", report))
	fmt.Println(report)
	if len(mismatches) > 0 {
		os.Exit(1)
	}
	return nil
}

func fail(logger *zap.Logger, step string, err error) error {
	logger.Error("launch failed", zap.String("step", step), zap.Error(err))
	fmt.Printf("FAIL: %s: %v\n", step, err)
	os.Exit(1)
	return nil
}

func parseElementType(s string) (api.ElementType, error) {
	switch s {
	case "int32":
		return api.Int32, nil
	case "float32":
		return api.Float32, nil
	case "float64":
		return api.Float64, nil
	default:
		return 0, fmt.Errorf("unknown element type %q", s)
	}
}

func parseOperation(s string) (api.Operation, error) {
	switch s {
	case "sum":
		return api.Sum, nil
	case "min":
		return api.Min, nil
	case "max":
		return api.Max, nil
	case "product":
		return api.Product, nil
	case "mean":
		return api.Mean, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

func parsePattern(s string) (datagen.Pattern, error) {
	switch s {
	case "constant":
		return datagen.Constant, nil
	case "rank-indexed":
		return datagen.RankIndexed, nil
	case "powers-of-ten":
		return datagen.PowersOfTen, nil
	default:
		return 0, fmt.Errorf("unknown fill pattern %q", s)
	}
}
