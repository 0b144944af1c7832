package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentflow/agentflow/internal/core/sequencer"
	"github.com/agentflow/agentflow/internal/core/timer"
	"github.com/agentflow/agentflow/pkg/agentflow"
)

// simulationEpoch anchors virtual runs so timelines are reproducible
var simulationEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type simulateOptions struct {
	ticks        bool
	jsonOutput   bool
	fileSelected bool
	limit        int
}

func newSimulateCmd(global *globalOptions) *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a pipeline on a virtual clock and print its timeline",
		Long: `Runs one pipeline animation on a virtual clock, without waiting in real
time, and prints every event in order. The same --seed (default 1) always
yields the same timeline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, name, p, err := global.resolve(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			seed := int64(1)
			if cfg.Pipeline.Seed != nil {
				seed = *cfg.Pipeline.Seed
			}

			var events []sequencer.Event
			clock := timer.NewVirtual(simulationEpoch)
			rt, err := agentflow.New(
				agentflow.WithPipeline(name, p),
				agentflow.WithScheduler(clock),
				agentflow.WithSeed(seed),
				agentflow.WithListener(func(ev sequencer.Event) {
					if ev.Type != sequencer.EventTick || opts.ticks {
						events = append(events, ev)
					}
				}),
			)
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.Start(agentflow.StartRunRequest{FileSelected: opts.fileSelected || rt.RequiresFile()}); err != nil {
				return err
			}
			clock.RunUntilIdle(opts.limit)

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeEventsJSON(out, events)
			}
			writeTimeline(out, events)
			st := rt.Snapshot()
			fmt.Fprintf(out, "\n%s: %s in %s, %d documents processed, seed %d\n",
				name, st.Phase, sequencer.FormatElapsed(st.Elapsed), st.ProcessedCount, seed)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.ticks, "ticks", false, "include elapsed-time ticks")
	f.BoolVar(&opts.jsonOutput, "json", false, "print events as JSON lines")
	f.BoolVar(&opts.fileSelected, "file-selected", false, "mark a file as selected (implied for simulation)")
	f.IntVar(&opts.limit, "limit", 100000, "maximum callbacks to fire")
	return cmd
}

func writeTimeline(w io.Writer, events []sequencer.Event) {
	for _, ev := range events {
		fmt.Fprintln(w, formatEvent(ev))
	}
}

func writeEventsJSON(w io.Writer, events []sequencer.Event) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// formatEvent renders one timeline line: offset, event type and subject
func formatEvent(ev sequencer.Event) string {
	subject := ev.Node
	if ev.Transfer != nil {
		subject = ev.Transfer.From + " -> " + ev.Transfer.To
	}
	if subject == "" {
		subject = "-"
	}
	return fmt.Sprintf("%9s  %-18s %s", fmt.Sprintf("+%.3fs", ev.Elapsed.Seconds()), ev.Type, subject)
}
