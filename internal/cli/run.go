package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"

	"dynsched/internal/sched"
	"dynsched/internal/sim"
)

func newRunCmd() *cobra.Command {
	var (
		cpus   int
		ticks  int64
		tickMS int
		csv    string
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation and trace scheduler events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sim.Load(flagConfig)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("cpus") {
				cfg.CPUs = cpus
				cfg.Sched.MaxCPUs = max(cfg.Sched.MaxCPUs, cpus)
			}
			if cmd.Flags().Changed("ticks") {
				cfg.Ticks = ticks
			}
			if cmd.Flags().Changed("tick-ms") {
				cfg.TickMS = tickMS
			}

			var out io.Writer = cmd.OutOrStdout()
			if quiet {
				out = nil
			}
			trace := sim.NewTrace(out)
			if csv != "" {
				if err := trace.EnableCSV(csv); err != nil {
					return fmt.Errorf("open csv: %w", err)
				}
				logger.Info("recording events", "path", csv)
			}

			events := make(chan sched.Event, 1024)
			m, err := sim.New(cfg, sim.WithLogger(logger), sim.WithEvents(events))
			if err != nil {
				trace.Close()
				return fmt.Errorf("create machine: %w", err)
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				trace.Consume(events)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			report, runErr := m.Run(ctx)
			close(events)
			wg.Wait()

			if err := trace.Close(); err != nil {
				logger.Error("close csv", "error", err)
			}
			printReport(cmd.OutOrStdout(), report)

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return fmt.Errorf("run: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&cpus, "cpus", 0, "Override the number of processors")
	cmd.Flags().Int64Var(&ticks, "ticks", 0, "Override the number of ticks to simulate")
	cmd.Flags().IntVar(&tickMS, "tick-ms", 0, "Override the tick interval in milliseconds (0 runs flat out)")
	cmd.Flags().StringVar(&csv, "csv", "", "Record every event to this CSV file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print events")

	return cmd
}

func printReport(w io.Writer, r sim.Report) {
	fmt.Fprintf(w, "\n%d ticks, %d switches, %d events dropped\n\n", r.Ticks, r.Switches, r.Dropped)
	fmt.Fprintf(w, "%-6s  %-8s  %-8s  %-8s  %-12s  %-5s  %-6s  %-6s  %s\n",
		"TASK", "RAN", "DISPATCH", "BLOCKS", "CLASS", "PRIO", "SCHED", "UNFAIR", "STATE")
	fmt.Fprintf(w, "%-6s  %-8s  %-8s  %-8s  %-12s  %-5s  %-6s  %-6s  %s\n",
		"----", "---", "--------", "------", "-----", "----", "-----", "------", "-----")
	for _, t := range r.Tasks {
		state := "live"
		if t.Exited {
			state = "exited"
		}
		fmt.Fprintf(w, "%-6d  %-8d  %-8d  %-8d  %-12s  %-5d  %-6d  %-6d  %s\n",
			t.ID, t.Ran, t.Dispatches, t.Blocks, t.Class, t.Priority, t.SchedPriority, t.UnfairCount, state)
	}
}
