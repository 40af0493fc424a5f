// File: cmd/launch/main.go
// Author: momentics <momentics@gmail.com>
//
// Launcher entry point: one process per rank, joining a ring all-reduce
// group, filling a demo vector, running one collective, and verifying the
// result. Flag style follows the teacher's cobra root-command pattern
// (sakateka-yanet2/controlplane/cmd/bird-adapter/main.go), with a legacy
// positional form and a LOCAL_RANK environment override layered on top
// per spec.md §6.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ringallreduce-launch",
	Short: "Join a ring all-reduce group and run one collective",
	RunE:  runLaunch,
}

var launchArgs struct {
	myIndex    int
	list       []string
	operation  string
	pattern    string
	count      int
	elemType   string
	logLevel   string
}

func init() {
	// pflag only binds these long (--myindex/--list); main rewrites the
	// single-dash -myindex/-list spelling from the legacy C launcher to the
	// long form before cobra parses. Hosts after the first --list value
	// arrive as positional args and are appended by resolveRankAndWorld,
	// which also handles the legacy positional form.
	rootCmd.Flags().IntVar(&launchArgs.myIndex, "myindex", -1, "this process's rank within the world list (pass as --myindex)")
	rootCmd.Flags().StringSliceVar(&launchArgs.list, "list", nil, "world list: one host per rank, in rank order (pass as --list)")
	rootCmd.Flags().StringVar(&launchArgs.operation, "op", "sum", "reduction operation: sum|min|max|product|mean")
	rootCmd.Flags().StringVar(&launchArgs.pattern, "pattern", "rank-indexed", "fill pattern: constant|rank-indexed|powers-of-ten")
	rootCmd.Flags().IntVar(&launchArgs.count, "count", 1024, "vector length in elements (must divide evenly by world size)")
	rootCmd.Flags().StringVar(&launchArgs.elemType, "type", "float64", "element type: int32|float32|float64")
	rootCmd.Flags().StringVar(&launchArgs.logLevel, "log-level", "info", "zap log level")
}

func main() {
	for i, a := range os.Args {
		if a == "-myindex" || a == "-list" {
			os.Args[i] = "-" + a
		}
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

// runLaunch resolves the legacy positional form and the LOCAL_RANK
// override before handing off to the shared run path in run.go.
func runLaunch(cmd *cobra.Command, args []string) error {
	myIndex, world, err := resolveRankAndWorld(args)
	if err != nil {
		return err
	}
	cfg := launchConfig{
		rank:      myIndex,
		world:     world,
		operation: launchArgs.operation,
		pattern:   launchArgs.pattern,
		count:     launchArgs.count,
		elemType:  launchArgs.elemType,
		logLevel:  launchArgs.logLevel,
	}
	return runOnce(cfg)
}

// resolveRankAndWorld implements spec.md §6's two accepted forms:
//   - flag form: --myindex N --list host1 host2 ... (hosts after the first
//     reach here as positional args and are appended to the list)
//   - legacy positional form: <rank> <host1> <host2> ...
//
// and the LOCAL_RANK environment override, which takes precedence over
// either form's rank when set (multi-process-per-host deployments that
// can't pass a per-process flag value easily).
func resolveRankAndWorld(positional []string) (int, []string, error) {
	rank := launchArgs.myIndex
	world := launchArgs.list

	if rank < 0 && len(positional) > 0 {
		parsed, err := parseRank(positional[0])
		if err != nil {
			return 0, nil, err
		}
		rank = parsed
		world = positional[1:]
	} else if len(positional) > 0 {
		world = append(append([]string(nil), world...), positional...)
	}

	if override, ok := os.LookupEnv("LOCAL_RANK"); ok {
		parsed, err := parseRank(override)
		if err != nil {
			return 0, nil, fmt.Errorf("LOCAL_RANK: %w", err)
		}
		rank = parsed
	}

	if rank < 0 {
		return 0, nil, fmt.Errorf("rank not specified: pass --myindex, a positional rank, or LOCAL_RANK")
	}
	if len(world) < 2 {
		return 0, nil, fmt.Errorf("world list must name at least two hosts")
	}
	return rank, world, nil
}

func parseRank(s string) (int, error) {
	var rank int
	if _, err := fmt.Sscanf(s, "%d", &rank); err != nil {
		return 0, fmt.Errorf("invalid rank %q: %w", s, err)
	}
	return rank, nil
}
