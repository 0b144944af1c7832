package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentflow/agentflow/internal/app/services"
	"github.com/agentflow/agentflow/internal/bootstrap"
	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/internal/core/sequencer"
	"github.com/agentflow/agentflow/pkg/agentflow"
)

type runOptions struct {
	fileSelected bool
	ticks        bool
	verbose      bool
	timeout      time.Duration
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Animate one run in real time and print the result",
		Long: `Starts a run on a real-time clock, prints each event as it happens and,
once the run has settled, the result document as JSON. Checkpoints go to
the configured journal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			return runRealTime(ctx, cmd, global, opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.fileSelected, "file-selected", false, "mark a file as selected for pipelines that need one")
	f.BoolVar(&opts.ticks, "ticks", false, "print elapsed-time ticks")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "give up after this long (0 waits forever)")
	return cmd
}

func runRealTime(ctx context.Context, cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	cfg, name, p, err := global.resolve(ctx, cmd)
	if err != nil {
		return err
	}
	logger, err := cliLogger(cfg, opts.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	journal, err := bootstrap.OpenJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	rtOpts := []agentflow.Option{agentflow.WithPipeline(name, p), agentflow.WithLogger(logger)}
	if cfg.Pipeline.Seed != nil {
		rtOpts = append(rtOpts, agentflow.WithSeed(*cfg.Pipeline.Seed))
	}
	if journal.Saver != nil {
		rtOpts = append(rtOpts, agentflow.WithJournal(journal.Saver, journal.Backend,
			services.WithQueueSize(cfg.Journal.QueueSize),
			services.WithSaveTimeout(cfg.Journal.SaveTimeout),
		))
	}
	rt, err := agentflow.New(rtOpts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	sub, err := rt.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Close()

	resp, err := rt.Start(agentflow.StartRunRequest{FileSelected: opts.fileSelected})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: run %s started, %d transfers\n", name, resp.RunID, resp.Transfers)

	for {
		select {
		case <-ctx.Done():
			rt.Halt()
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			if ev.Type == sequencer.EventTick && !opts.ticks {
				continue
			}
			fmt.Fprintln(out, formatEvent(ev))
			if ev.Type != sequencer.EventResultReady {
				continue
			}
			data, err := json.MarshalIndent(ev.Result, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprintln(out, string(data))
			if err := rt.Close(); err != nil {
				logger.Warn("close runtime", zap.Error(err))
			}
			views, err := rt.Journal(ctx, checkpoint.Filter{RunID: resp.RunID})
			if err != nil {
				return err
			}
			if journal.Saver != nil {
				logger.Info("run journaled",
					zap.String("run_id", resp.RunID),
					zap.String("backend", journal.Backend),
					zap.Int("checkpoints", len(views)),
				)
			}
			return nil
		}
	}
}
