// Command railsim runs the traffic engine headless on a generated demo map.
// The engine is normally embedded in an external host that owns transport
// and rendering; this binary stands in for one during development and
// benchmarking.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/engine"
	"github.com/pthm-cable/railsim/sim"
)

var (
	flagConfig     string
	flagFabs       int
	flagVehicles   int
	flagWorkers    int
	flagDuration   time.Duration
	flagOutputDir  string
	flagLoggerPort int
)

func main() {
	root := &cobra.Command{
		Use:   "railsim",
		Short: "Headless multi-fab rail traffic simulator",
		RunE:  run,
	}
	root.Flags().StringVar(&flagConfig, "config", "", "config file (embedded defaults when empty)")
	root.Flags().IntVar(&flagFabs, "fabs", 2, "number of demo fabs")
	root.Flags().IntVar(&flagVehicles, "vehicles", 20, "vehicles per fab")
	root.Flags().IntVar(&flagWorkers, "workers", 2, "worker count")
	root.Flags().DurationVar(&flagDuration, "duration", 30*time.Second, "run time (0 = forever)")
	root.Flags().StringVar(&flagOutputDir, "output", "", "perf CSV output directory")
	root.Flags().IntVar(&flagLoggerPort, "logger-port", 0, "transit log websocket port (0 = disabled)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	fabs := make([]sim.FabInit, flagFabs)
	for i := range fabs {
		fabID := fmt.Sprintf("fab_%d", i)
		fabs[i] = sim.FabInit{
			Params: engine.InitParams{
				FabID:       fabID,
				Nodes:       demoNodes(),
				Edges:       demoEdges(),
				NumVehicles: flagVehicles,
				Seed:        1,
				OffsetX:     float32(i%8) * 250,
				OffsetY:     float32(i/8) * 250,
			},
			MaxVehicles: flagVehicles,
		}
	}

	start := time.Now()
	ctrl, err := sim.NewController(cfg, fabs, flagWorkers, sim.Options{
		OutputDir: flagOutputDir,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer ctrl.Dispose()

	if flagLoggerPort > 0 {
		ctrl.SetLoggerPort(flagLoggerPort)
	}

	total := 0
	for _, n := range ctrl.FabVehicleCounts() {
		total += n
	}
	log.Info("simulation running",
		"fabs", flagFabs, "workers", flagWorkers, "vehicles", total,
		"startup_ms", time.Since(start).Milliseconds())

	var deadline <-chan time.Time
	if flagDuration > 0 {
		deadline = time.After(flagDuration)
	}

	for {
		select {
		case ev := <-ctrl.Events():
			logEvent(log, ev)
		case <-deadline:
			log.Info("run complete", "unusual_moves", ctrl.UnusualMoveCount())
			return nil
		}
	}
}

func logEvent(log *slog.Logger, ev sim.Event) {
	switch ev.Type {
	case sim.EvPerfStats:
		log.Info("perf", "worker_id", ev.WorkerID, "stats", ev.Perf)
	case sim.EvUnusualMove:
		m := ev.UnusualMove
		log.Warn("unusual move",
			"fab_id", m.FabID, "vehicle", m.VehicleIndex,
			"prev_edge", m.PrevEdgeName, "next_edge", m.NextEdgeName,
			"x", m.X, "y", m.Y)
	case sim.EvError:
		log.Error("worker error", "worker_id", ev.WorkerID, "err", ev.Err)
	}
}
