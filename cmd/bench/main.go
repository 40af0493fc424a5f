// File: cmd/bench/main.go
// Author: momentics <momentics@gmail.com>
//
// Bandwidth/latency self-test, supplemented from original_source's
// bw_template.h/test_send.c ping-pong harness: run a fixed number of
// all-reduce iterations at a chosen vector size and report measured MB/s
// and average per-iteration latency, the same two numbers
// calculate_throughput/print_throughput compute in the original.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/ringallreduce/api"
	"github.com/momentics/ringallreduce/control"
	"github.com/momentics/ringallreduce/datagen"
	"github.com/momentics/ringallreduce/group"
)

const megabyte = 1024 * 1024

var benchArgs struct {
	myIndex  int
	list     []string
	count    int
	iters    int
	elemType string
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "ringallreduce-bench",
	Short: "Measure ring all-reduce throughput and latency",
	RunE:  runBench,
}

func init() {
	// pflag only binds these long (--myindex/--list); the single-dash
	// spelling from the legacy C launcher does not parse here.
	rootCmd.Flags().IntVar(&benchArgs.myIndex, "myindex", -1, "this process's rank within the world list (pass as --myindex)")
	rootCmd.Flags().StringSliceVar(&benchArgs.list, "list", nil, "world list: one host per rank, in rank order (pass as --list)")
	rootCmd.Flags().IntVar(&benchArgs.count, "count", 1<<16, "vector length in elements per iteration")
	rootCmd.Flags().IntVar(&benchArgs.iters, "iters", 50, "number of all_reduce iterations to time")
	rootCmd.Flags().StringVar(&benchArgs.elemType, "type", "float32", "element type: int32|float32|float64")
	rootCmd.Flags().StringVar(&benchArgs.logLevel, "log-level", "warn", "zap log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchArgs.myIndex < 0 {
		return fmt.Errorf("--myindex is required")
	}
	if len(benchArgs.list) < 2 {
		return fmt.Errorf("--list must name at least two hosts")
	}

	var et api.ElementType
	switch benchArgs.elemType {
	case "int32":
		et = api.Int32
	case "float32":
		et = api.Float32
	case "float64":
		et = api.Float64
	default:
		return fmt.Errorf("unknown element type %q", benchArgs.elemType)
	}

	logger, _, err := control.NewLogger(benchArgs.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	h, err := group.Connect(benchArgs.list, benchArgs.myIndex, benchArgs.list[benchArgs.myIndex], group.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer h.Close()

	sendBuf, err := datagen.Fill(et, datagen.RankIndexed, benchArgs.myIndex, benchArgs.count, 0)
	if err != nil {
		return fmt.Errorf("generate input: %w", err)
	}
	recvBuf := make([]byte, len(sendBuf))
	if err := h.Register(sendBuf, recvBuf, et, benchArgs.count); err != nil {
		return fmt.Errorf("register regions: %w", err)
	}

	metrics := control.NewMetricsRegistry()
	bytesPerIter := int64(len(sendBuf))

	start := time.Now()
	for i := 0; i < benchArgs.iters; i++ {
		iterStart := time.Now()
		if err := h.AllReduce(et, api.Sum); err != nil {
			return fmt.Errorf("all_reduce iteration %d: %w", i, err)
		}
		metrics.Incr("bytes_moved", bytesPerIter)
		metrics.Incr("rounds", int64(h.World()-1))
		metrics.Set(fmt.Sprintf("iter_%d_us", i), time.Since(iterStart).Microseconds())
	}
	elapsed := time.Since(start)

	mb := float64(bytesPerIter*int64(benchArgs.iters)) / megabyte
	throughput := mb / elapsed.Seconds()
	avgLatency := elapsed / time.Duration(benchArgs.iters)

	fmt.Printf("rank %d: %d iterations, %.2f MB/s, avg latency %s\n",
		benchArgs.myIndex, benchArgs.iters, throughput, avgLatency)
	return nil
}
